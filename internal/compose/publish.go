package compose

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"thoth/internal/models"
	"thoth/internal/posts"
	"thoth/internal/storage"
	"thoth/internal/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// PostCreator is the store side of publishing.
type PostCreator interface {
	CreatePost(ctx context.Context, actor models.Identity, in posts.NewPost) (*models.Post, error)
}

type Publisher struct {
	uploader storage.Uploader
	posts    PostCreator
}

func NewPublisher(uploader storage.Uploader, posts PostCreator) *Publisher {
	return &Publisher{uploader: uploader, posts: posts}
}

// Publish uploads the draft's attachments in parallel, creates the post and
// releases the draft. A draft with problems is refused before any upload.
// On failure the draft keeps its attachments so the user can retry.
func (p *Publisher) Publish(ctx context.Context, actor models.Identity, d *Draft) (*models.Post, error) {
	if actor.IsZero() {
		return nil, utils.NewUnauthorizedError("sign in to post")
	}
	if problems := d.Problems(); len(problems) > 0 {
		msgs := make([]string, len(problems))
		for i, pr := range problems {
			msgs[i] = pr.Field + ": " + pr.Message
		}
		return nil, utils.NewAppError(utils.ErrInvalidInput, strings.Join(msgs, "; "), nil)
	}

	uploadID := uuid.NewString()
	images := d.Images()
	urls := make([]string, len(images))
	var attachment *models.Attachment

	g, gctx := errgroup.WithContext(ctx)
	for i, img := range images {
		g.Go(func() error {
			url, err := p.upload(gctx, actor, fmt.Sprintf("%s-%d", uploadID, i), img)
			urls[i] = url
			return err
		})
	}
	if f := d.File(); f != nil {
		g.Go(func() error {
			url, err := p.upload(gctx, actor, uploadID+"-file", f)
			if err == nil {
				attachment = &models.Attachment{Name: f.Name, URL: url, ContentType: f.ContentType, Size: int64(len(f.Data))}
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		utils.Logger.Warn("attachment upload failed", zap.String("author", actor.UID), zap.Error(err))
		return nil, utils.NewAppError(utils.ErrUpstream, "failed to upload attachments", err)
	}

	post, err := p.posts.CreatePost(ctx, actor, posts.NewPost{
		Content:        d.Content,
		Tags:           d.Tags,
		Images:         urls,
		PostType:       d.PostType,
		ExternalLink:   d.ExternalLink,
		AttachmentFile: attachment,
	})
	if err != nil {
		return nil, err
	}
	d.Release()
	return post, nil
}

func (p *Publisher) upload(ctx context.Context, actor models.Identity, uploadID string, s *Staged) (string, error) {
	path := storage.ObjectPath(actor.UID, uploadID, s.Name)
	return p.uploader.Upload(ctx, path, bytes.NewReader(s.Data), int64(len(s.Data)), s.ContentType)
}
