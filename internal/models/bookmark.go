package models

import "time"

// Bookmark is a per-user snapshot of a post. It is not removed when the source post is.
type Bookmark struct {
	ID                string      `json:"id" bson:"postId"`
	UserID            string      `json:"userId" bson:"userId"`
	Content           string      `json:"content" bson:"content"`
	Author            Author      `json:"author" bson:"author"`
	Images            []string    `json:"images" bson:"images"`
	Tags              []string    `json:"tags" bson:"tags"`
	PostType          PostType    `json:"postType" bson:"postType"`
	ExternalLink      string      `json:"externalLink,omitempty" bson:"externalLink,omitempty"`
	AttachmentFile    *Attachment `json:"attachmentFile,omitempty" bson:"attachmentFile,omitempty"`
	OriginalPostID    string      `json:"originalPostId,omitempty" bson:"originalPostId,omitempty"`
	RepostedBy        *RepostRef  `json:"repostedBy,omitempty" bson:"repostedBy,omitempty"`
	OriginalAuthor    *Author     `json:"originalAuthor,omitempty" bson:"originalAuthor,omitempty"`
	OriginalTimestamp *time.Time  `json:"originalTimestamp,omitempty" bson:"originalTimestamp,omitempty"`
	CreatedAt         time.Time   `json:"createdAt" bson:"createdAt"`
	BookmarkedAt      time.Time   `json:"bookmarkedAt" bson:"bookmarkedAt"`
}

// AsPost renders the snapshot in post shape for the bookmarks feed filter.
// The returned post is always an original.
func (b *Bookmark) AsPost() *Post {
	return &Post{
		ID:             b.ID,
		Author:         b.Author,
		Content:        b.Content,
		Tags:           cloneStrings(b.Tags),
		Images:         cloneStrings(b.Images),
		PostType:       b.PostType,
		ExternalLink:   b.ExternalLink,
		AttachmentFile: b.AttachmentFile,
		LikedBy:        []string{},
		RepostedBy:     []RepostRef{},
		CreatedAt:      b.CreatedAt,
		UpdatedAt:      b.BookmarkedAt,
	}
}
