package resolve

import "thoth/internal/models"

// DisplayAuthor picks the author fields a card shows. Precedence: the
// viewer's own session identity for their own posts, then the live profile,
// then the snapshot embedded in the post. Empty text fields never overwrite.
//
// Historical views such as bookmarks do not call this; they show the snapshot.
func DisplayAuthor(snapshot models.Author, live *models.Profile, viewer models.Identity) models.Author {
	out := snapshot
	if live != nil && live.ID == snapshot.ID {
		merge(&out, live.Identity())
	}
	if !viewer.IsZero() && viewer.UID == snapshot.ID {
		merge(&out, viewer)
	}
	return out
}

func merge(dst *models.Author, src models.Identity) {
	if src.Name != "" {
		dst.Name = src.Name
	}
	if src.Username != "" {
		dst.Username = src.Username
	}
	if src.Avatar != "" {
		dst.Avatar = src.Avatar
	}
	dst.Verified = src.Verified
}
