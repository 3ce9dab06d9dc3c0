package models

import "time"

type PostType string

const (
	PostTypeGeneral  PostType = "general"
	PostTypeStudy    PostType = "study"
	PostTypeResource PostType = "resource"
	PostTypeEvent    PostType = "event"
	PostTypeQuestion PostType = "question"
)

func (t PostType) Valid() bool {
	switch t {
	case PostTypeGeneral, PostTypeStudy, PostTypeResource, PostTypeEvent, PostTypeQuestion:
		return true
	}
	return false
}

// PostKind discriminates the two shapes a post document can take.
type PostKind string

const (
	KindOriginal PostKind = "original"
	KindRepost   PostKind = "repost"
)

// RepostRef records one user in a root post's repostedBy list.
type RepostRef struct {
	UID  string `json:"uid" bson:"uid" validate:"required"`
	Name string `json:"name" bson:"name"`
}

type Attachment struct {
	Name        string `json:"name" bson:"name" validate:"required"`
	URL         string `json:"url" bson:"url" validate:"required,url"`
	ContentType string `json:"contentType" bson:"contentType"`
	Size        int64  `json:"size" bson:"size"`
}

// Post is either an original or a repost wrapper. A wrapper has OriginalPostID,
// OriginalAuthor and OriginalTimestamp set and always points at a root original.
type Post struct {
	ID                string      `json:"id" bson:"_id" validate:"required"`
	Author            Author      `json:"author" bson:"author"`
	Content           string      `json:"content" bson:"content" validate:"required"`
	Tags              []string    `json:"tags" bson:"tags"`
	Images            []string    `json:"images" bson:"images" validate:"dive,url"`
	PostType          PostType    `json:"postType" bson:"postType" validate:"required"`
	ExternalLink      string      `json:"externalLink,omitempty" bson:"externalLink,omitempty" validate:"omitempty,url"`
	AttachmentFile    *Attachment `json:"attachmentFile,omitempty" bson:"attachmentFile,omitempty"`
	Likes             int         `json:"likes" bson:"likes" validate:"min=0"`
	LikedBy           []string    `json:"likedBy" bson:"likedBy"`
	RepostedBy        []RepostRef `json:"repostedBy" bson:"repostedBy" validate:"dive"`
	Replies           int         `json:"replies" bson:"replies"`
	OriginalPostID    string      `json:"originalPostId,omitempty" bson:"originalPostId,omitempty"`
	OriginalAuthor    *Author     `json:"originalAuthor,omitempty" bson:"originalAuthor,omitempty"`
	OriginalTimestamp *time.Time  `json:"originalTimestamp,omitempty" bson:"originalTimestamp,omitempty"`
	CreatedAt         time.Time   `json:"createdAt" bson:"createdAt"`
	UpdatedAt         time.Time   `json:"updatedAt" bson:"updatedAt"`
}

func (p *Post) Kind() PostKind {
	if p.OriginalPostID != "" {
		return KindRepost
	}
	return KindOriginal
}

func (p *Post) IsRepost() bool {
	return p.Kind() == KindRepost
}

// RootID is the id of the original this document displays.
func (p *Post) RootID() string {
	if p.IsRepost() {
		return p.OriginalPostID
	}
	return p.ID
}

func (p *Post) LikedByUser(uid string) bool {
	for _, id := range p.LikedBy {
		if id == uid {
			return true
		}
	}
	return false
}

func (p *Post) RepostedByUser(uid string) bool {
	for _, ref := range p.RepostedBy {
		if ref.UID == uid {
			return true
		}
	}
	return false
}

// Action is a user interaction issued from a rendered post card.
type Action string

const (
	ActionLike     Action = "like"
	ActionBookmark Action = "bookmark"
	ActionRepost   Action = "repost"
	ActionDelete   Action = "delete"
)

// TargetID returns the document an action must be written to. Like, bookmark
// and repost converge on the root original; delete only ever touches this document.
func (p *Post) TargetID(action Action) string {
	if action == ActionDelete {
		return p.ID
	}
	return p.RootID()
}

// Clone returns a deep copy.
func (p *Post) Clone() *Post {
	if p == nil {
		return nil
	}
	c := *p
	c.Tags = cloneStrings(p.Tags)
	c.Images = cloneStrings(p.Images)
	c.LikedBy = cloneStrings(p.LikedBy)
	c.RepostedBy = append([]RepostRef{}, p.RepostedBy...)
	if p.AttachmentFile != nil {
		a := *p.AttachmentFile
		c.AttachmentFile = &a
	}
	if p.OriginalAuthor != nil {
		a := *p.OriginalAuthor
		c.OriginalAuthor = &a
	}
	if p.OriginalTimestamp != nil {
		ts := *p.OriginalTimestamp
		c.OriginalTimestamp = &ts
	}
	return &c
}

// PostPatch is a shallow partial update; nil fields are left untouched.
type PostPatch struct {
	Content        *string     `json:"content,omitempty"`
	Tags           *[]string   `json:"tags,omitempty"`
	Images         *[]string   `json:"images,omitempty"`
	PostType       *PostType   `json:"postType,omitempty"`
	ExternalLink   *string     `json:"externalLink,omitempty"`
	AttachmentFile *Attachment `json:"attachmentFile,omitempty"`
}

func (p PostPatch) IsEmpty() bool {
	return p.Content == nil && p.Tags == nil && p.Images == nil &&
		p.PostType == nil && p.ExternalLink == nil && p.AttachmentFile == nil
}

// Apply merges the patch into post in place.
func (p PostPatch) Apply(post *Post) {
	if p.Content != nil {
		post.Content = *p.Content
	}
	if p.Tags != nil {
		post.Tags = cloneStrings(*p.Tags)
	}
	if p.Images != nil {
		post.Images = cloneStrings(*p.Images)
	}
	if p.PostType != nil {
		post.PostType = *p.PostType
	}
	if p.ExternalLink != nil {
		post.ExternalLink = *p.ExternalLink
	}
	if p.AttachmentFile != nil {
		a := *p.AttachmentFile
		post.AttachmentFile = &a
	}
}

func cloneStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
