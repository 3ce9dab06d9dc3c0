// Package api holds the JSON shapes shared by the HTTP handlers and clients.
package api

// ErrorResponse is the body of every failed request. Code is an AppError code.
type ErrorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

type LikeRequest struct {
	PostID string `json:"postId"`
	Liked  bool   `json:"liked"`
}

type BookmarkRequest struct {
	PostID     string `json:"postId"`
	Bookmarked bool   `json:"bookmarked"`
}

type RepostRequest struct {
	PostID string `json:"postId"`
}

type ConnectionRequest struct {
	TargetID string `json:"targetId"`
}

type DeviceRequest struct {
	Token string `json:"token"`
}

type EventActionRequest struct {
	EventID    string `json:"eventId"`
	Interested bool   `json:"interested,omitempty"`
}

// ImageRequest asks for one generated image.
type ImageRequest struct {
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspectRatio,omitempty"`
}

type MediaResponse struct {
	MIMEType string `json:"mimeType"`
	URL      string `json:"url,omitempty"`
	Data     []byte `json:"data,omitempty"`
}
