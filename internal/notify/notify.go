// Package notify delivers interaction notices to post authors.
package notify

import (
	"context"
	"errors"
	"fmt"
)

type Kind string

const (
	KindLike   Kind = "like"
	KindRepost Kind = "repost"
)

// Notification tells a post author that someone interacted with their post.
type Notification struct {
	Kind      Kind   `json:"kind"`
	PostID    string `json:"postId"`
	ActorID   string `json:"actorId"`
	ActorName string `json:"actorName"`
	Excerpt   string `json:"excerpt,omitempty"`
}

func (n Notification) Title() string {
	switch n.Kind {
	case KindLike:
		return "New like"
	case KindRepost:
		return "New repost"
	}
	return "Thoth"
}

func (n Notification) Body() string {
	name := n.ActorName
	if name == "" {
		name = "Someone"
	}
	switch n.Kind {
	case KindLike:
		return fmt.Sprintf("%s liked your post: %s", name, n.Excerpt)
	case KindRepost:
		return fmt.Sprintf("%s reposted your post: %s", name, n.Excerpt)
	}
	return name + " interacted with your post"
}

func (n Notification) Data() map[string]string {
	return map[string]string{
		"kind":    string(n.Kind),
		"postId":  n.PostID,
		"actorId": n.ActorID,
	}
}

type Notifier interface {
	Notify(ctx context.Context, recipientID string, n Notification) error
}

// Noop drops every notification.
type Noop struct{}

func (Noop) Notify(context.Context, string, Notification) error { return nil }

// Multi fans a notification out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, recipientID string, n Notification) error {
	var errs []error
	for _, notifier := range m {
		if err := notifier.Notify(ctx, recipientID, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Excerpt shortens content for a notification body.
func Excerpt(content string, max int) string {
	runes := []rune(content)
	if len(runes) <= max {
		return content
	}
	return string(runes[:max]) + "…"
}
