// Package posts implements the post commands: create, edit, delete with
// cascade, like, bookmark and repost.
package posts

import (
	"context"
	"errors"
	"strings"
	"time"

	"thoth/internal/database"
	"thoth/internal/models"
	"thoth/internal/notify"
	"thoth/internal/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store is the slice of the document store the post commands use.
type Store interface {
	database.PostStore
	database.BookmarkStore
	database.IntentStore
}

type Service struct {
	store         Store
	notifier      notify.Notifier
	metrics       *utils.MetricsCollector
	newID         func() string
	now           func() time.Time
	notifyTimeout time.Duration
	repairMinAge  time.Duration
}

// NewPost is the content of a post being created.
type NewPost struct {
	Content        string             `json:"content"`
	Tags           []string           `json:"tags"`
	Images         []string           `json:"images"`
	PostType       models.PostType    `json:"postType"`
	ExternalLink   string             `json:"externalLink,omitempty"`
	AttachmentFile *models.Attachment `json:"attachmentFile,omitempty"`
}

func NewService(store Store, notifier notify.Notifier, metrics *utils.MetricsCollector) *Service {
	if notifier == nil {
		notifier = notify.Noop{}
	}
	if metrics == nil {
		metrics = utils.NewMetricsCollector()
	}
	return &Service{
		store:         store,
		notifier:      notifier,
		metrics:       metrics,
		newID:         uuid.NewString,
		now:           time.Now,
		notifyTimeout: 10 * time.Second,
		repairMinAge:  DefaultRepairMinAge,
	}
}

// WithRepairMinAge sets how old a pending intent must be before Repair
// replays it. Younger intents may belong to an operation still running.
func (s *Service) WithRepairMinAge(d time.Duration) *Service {
	if d < 0 {
		d = 0
	}
	s.repairMinAge = d
	return s
}

func (s *Service) observe(op string, start time.Time, err error) {
	s.metrics.AddOperationLatency(op, time.Since(start))
	s.metrics.RecordOutcome(op, err)
}

func (s *Service) GetPost(ctx context.Context, id string) (*models.Post, error) {
	return s.store.GetPost(ctx, id)
}

func (s *Service) CountPosts(ctx context.Context) (int64, error) {
	return s.store.CountPosts(ctx)
}

// CreatePost writes a new original authored by actor. Only blank content is
// rejected; length and tag limits belong to the composer.
func (s *Service) CreatePost(ctx context.Context, actor models.Identity, in NewPost) (post *models.Post, err error) {
	defer func(start time.Time) { s.observe("create_post", start, err) }(time.Now())

	if actor.IsZero() {
		return nil, utils.NewUnauthorizedError("sign in to post")
	}
	if strings.TrimSpace(in.Content) == "" {
		return nil, utils.NewAppError(utils.ErrInvalidInput, "content is required", nil)
	}
	postType := in.PostType
	if postType == "" {
		postType = models.PostTypeGeneral
	}
	if !postType.Valid() {
		return nil, utils.NewAppError(utils.ErrInvalidInput, "unknown post type: "+string(postType), nil)
	}

	post = &models.Post{
		ID:             s.newID(),
		Author:         actor.Author(),
		Content:        in.Content,
		Tags:           in.Tags,
		Images:         in.Images,
		PostType:       postType,
		ExternalLink:   in.ExternalLink,
		AttachmentFile: in.AttachmentFile,
		Likes:          0,
		LikedBy:        []string{},
		RepostedBy:     []models.RepostRef{},
	}
	if err := s.store.InsertPost(ctx, post); err != nil {
		return nil, err
	}
	utils.Logger.Debug("post created", zap.String("postId", post.ID), zap.String("author", actor.UID))
	return post, nil
}

// UpdatePost merges patch into a post the actor wrote. Concurrent edits are
// last-write-wins per field.
func (s *Service) UpdatePost(ctx context.Context, actor models.Identity, id string, patch models.PostPatch) (err error) {
	defer func(start time.Time) { s.observe("update_post", start, err) }(time.Now())

	if patch.IsEmpty() {
		return utils.NewAppError(utils.ErrInvalidInput, "nothing to update", nil)
	}
	if patch.Content != nil && strings.TrimSpace(*patch.Content) == "" {
		return utils.NewAppError(utils.ErrInvalidInput, "content is required", nil)
	}
	if patch.PostType != nil && !patch.PostType.Valid() {
		return utils.NewAppError(utils.ErrInvalidInput, "unknown post type: "+string(*patch.PostType), nil)
	}

	post, err := s.store.GetPost(ctx, id)
	if err != nil {
		return err
	}
	if post.Author.ID != actor.UID {
		return utils.NewAppError(utils.ErrForbidden, "only the author can edit this post", nil)
	}
	if post.IsRepost() {
		return utils.NewAppError(utils.ErrInvalidInput, "reposts cannot be edited", nil)
	}
	return s.store.UpdatePost(ctx, id, patch)
}

// DeletePost removes a post the actor wrote. Deleting a repost drops the
// actor from the root's repostedBy; deleting an original also deletes every
// repost of it. The steps run under an intent so an interrupted delete can be
// finished by Repair.
func (s *Service) DeletePost(ctx context.Context, actor models.Identity, id string) (err error) {
	defer func(start time.Time) { s.observe("delete_post", start, err) }(time.Now())

	post, err := s.store.GetPost(ctx, id)
	if err != nil {
		return err
	}
	if post.Author.ID != actor.UID {
		return utils.NewAppError(utils.ErrForbidden, "only the author can delete this post", nil)
	}

	intent := &models.Intent{
		ID:        s.newID(),
		Kind:      models.IntentDeletePost,
		PostID:    post.ID,
		RootID:    post.OriginalPostID,
		ActorID:   actor.UID,
		ActorName: actor.Name,
	}
	if err := s.store.SaveIntent(ctx, intent); err != nil {
		return err
	}
	if err := s.runDelete(ctx, intent); err != nil {
		return s.abandon(ctx, intent, "post deletion incomplete", err)
	}
	s.complete(ctx, intent)
	return nil
}

func (s *Service) runDelete(ctx context.Context, intent *models.Intent) error {
	if intent.RootID != "" {
		if err := s.releaseRepostRef(ctx, intent); err != nil {
			return err
		}
	}
	if err := s.store.DeletePost(ctx, intent.PostID); ignoreNotFound(err) != nil {
		return err
	}
	if intent.RootID != "" {
		return nil
	}

	reposts, err := s.store.FindReposts(ctx, intent.PostID)
	if err != nil {
		return err
	}
	var errs []error
	for _, r := range reposts {
		if err := s.store.DeletePost(ctx, r.ID); ignoreNotFound(err) != nil {
			errs = append(errs, err)
		}
	}
	if len(reposts) > 0 {
		utils.Logger.Debug("cascade deleted reposts",
			zap.String("postId", intent.PostID),
			zap.Int("reposts", len(reposts)-len(errs)))
	}
	return errors.Join(errs...)
}

// ToggleLike sets the actor's like on the post a card displays. Likes issued
// on a repost land on its root original. It returns the id that was written.
func (s *Service) ToggleLike(ctx context.Context, actor models.Identity, postID string, liked bool) (target string, err error) {
	defer func(start time.Time) { s.observe("toggle_like", start, err) }(time.Now())

	if actor.IsZero() {
		return "", utils.NewUnauthorizedError("sign in to like")
	}
	_, root, err := s.resolveRoot(ctx, postID)
	if err != nil {
		return "", err
	}
	changed, err := s.store.SetLike(ctx, root.ID, actor.UID, liked)
	if err != nil {
		return "", err
	}
	if changed && liked {
		s.notifyAuthor(root, actor, notify.KindLike)
	}
	return root.ID, nil
}

// ToggleBookmark stores or removes the actor's snapshot of the displayed
// post. Removing works even after the source post is gone.
func (s *Service) ToggleBookmark(ctx context.Context, actor models.Identity, postID string, bookmarked bool) (target string, err error) {
	defer func(start time.Time) { s.observe("toggle_bookmark", start, err) }(time.Now())

	if actor.IsZero() {
		return "", utils.NewUnauthorizedError("sign in to bookmark")
	}

	if !bookmarked {
		target = postID
		if post, err := s.store.GetPost(ctx, postID); err == nil {
			target = post.TargetID(models.ActionBookmark)
		} else if !utils.IsErrorCode(err, utils.ErrNotFound) {
			return "", err
		}
		if err := s.store.DeleteBookmark(ctx, actor.UID, target); ignoreNotFound(err) != nil {
			return "", err
		}
		return target, nil
	}

	card, root, err := s.resolveRoot(ctx, postID)
	if err != nil {
		return "", err
	}
	if err := s.store.PutBookmark(ctx, snapshot(actor, card, root)); err != nil {
		return "", err
	}
	return root.ID, nil
}

func snapshot(actor models.Identity, card, root *models.Post) *models.Bookmark {
	b := &models.Bookmark{
		ID:             root.ID,
		UserID:         actor.UID,
		Content:        root.Content,
		Author:         root.Author,
		Images:         root.Images,
		Tags:           root.Tags,
		PostType:       root.PostType,
		ExternalLink:   root.ExternalLink,
		AttachmentFile: root.AttachmentFile,
		CreatedAt:      root.CreatedAt,
	}
	if card.IsRepost() {
		author := root.Author
		ts := root.CreatedAt
		b.OriginalPostID = root.ID
		b.OriginalAuthor = &author
		b.OriginalTimestamp = &ts
		b.RepostedBy = &models.RepostRef{UID: card.Author.ID, Name: card.Author.Name}
	}
	return b
}

// Repost creates a wrapper authored by actor that points at the root original
// of postID, never at an intermediate repost. The actor's repostedBy entry is
// claimed before the wrapper is written, so a user can hold at most one repost
// of a root even when requests race.
func (s *Service) Repost(ctx context.Context, actor models.Identity, postID string) (wrapper *models.Post, err error) {
	defer func(start time.Time) { s.observe("repost", start, err) }(time.Now())

	if actor.IsZero() {
		return nil, utils.NewUnauthorizedError("sign in to repost")
	}
	_, root, err := s.resolveRoot(ctx, postID)
	if err != nil {
		return nil, err
	}
	if root.RepostedByUser(actor.UID) {
		return nil, utils.NewAppError(utils.ErrDuplicate, "already reposted", nil)
	}

	rootAuthor := root.Author
	rootCreated := root.CreatedAt
	wrapper = &models.Post{
		ID:                s.newID(),
		Author:            actor.Author(),
		Content:           root.Content,
		Tags:              append([]string{}, root.Tags...),
		Images:            append([]string{}, root.Images...),
		PostType:          root.PostType,
		ExternalLink:      root.ExternalLink,
		AttachmentFile:    root.AttachmentFile,
		LikedBy:           []string{},
		RepostedBy:        []models.RepostRef{},
		OriginalPostID:    root.ID,
		OriginalAuthor:    &rootAuthor,
		OriginalTimestamp: &rootCreated,
	}

	intent := &models.Intent{
		ID:        s.newID(),
		Kind:      models.IntentRepost,
		PostID:    wrapper.ID,
		RootID:    root.ID,
		ActorID:   actor.UID,
		ActorName: actor.Name,
	}
	if err := s.store.SaveIntent(ctx, intent); err != nil {
		return nil, err
	}

	added, err := s.store.AddRepostRef(ctx, root.ID, models.RepostRef{UID: actor.UID, Name: actor.Name})
	if err != nil {
		return nil, s.abandon(ctx, intent, "repost incomplete", err)
	}
	if !added {
		s.complete(ctx, intent)
		return nil, utils.NewAppError(utils.ErrDuplicate, "already reposted", nil)
	}

	if err := s.store.InsertPost(ctx, wrapper); err != nil {
		if rerr := s.store.RemoveRepostRef(ctx, root.ID, actor.UID); rerr != nil {
			return nil, s.abandon(ctx, intent, "repost incomplete", errors.Join(err, rerr))
		}
		s.complete(ctx, intent)
		return nil, err
	}
	s.complete(ctx, intent)
	s.notifyAuthor(root, actor, notify.KindRepost)
	return wrapper, nil
}

// resolveRoot loads postID and, for a repost, the original it points at.
func (s *Service) resolveRoot(ctx context.Context, postID string) (post, root *models.Post, err error) {
	post, err = s.store.GetPost(ctx, postID)
	if err != nil {
		return nil, nil, err
	}
	if !post.IsRepost() {
		return post, post, nil
	}
	root, err = s.store.GetPost(ctx, post.OriginalPostID)
	if utils.IsErrorCode(err, utils.ErrNotFound) {
		return nil, nil, utils.NewAppError(utils.ErrNotFound, "original post no longer exists", err)
	}
	if err != nil {
		return nil, nil, err
	}
	return post, root, nil
}

func (s *Service) notifyAuthor(root *models.Post, actor models.Identity, kind notify.Kind) {
	if root.Author.ID == actor.UID {
		return
	}
	n := notify.Notification{
		Kind:      kind,
		PostID:    root.ID,
		ActorID:   actor.UID,
		ActorName: actor.Name,
		Excerpt:   notify.Excerpt(root.Content, 80),
	}
	recipient := root.Author.ID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.notifyTimeout)
		defer cancel()
		if err := s.notifier.Notify(ctx, recipient, n); err != nil {
			utils.Logger.Warn("failed to notify author",
				zap.String("recipient", recipient),
				zap.String("kind", string(kind)),
				zap.Error(err))
		}
	}()
}

func (s *Service) complete(ctx context.Context, intent *models.Intent) {
	if err := s.store.CompleteIntent(ctx, intent.ID); err != nil {
		utils.Logger.Warn("failed to complete intent", zap.String("intentId", intent.ID), zap.Error(err))
	}
}

// abandon leaves the intent pending for Repair and reports a partial failure.
func (s *Service) abandon(ctx context.Context, intent *models.Intent, message string, cause error) error {
	utils.Logger.Warn(message,
		zap.String("intentId", intent.ID),
		zap.String("kind", string(intent.Kind)),
		zap.String("postId", intent.PostID),
		zap.Error(cause))
	if err := s.store.FailIntent(ctx, intent.ID, cause.Error(), false); err != nil {
		utils.Logger.Warn("failed to record intent failure", zap.String("intentId", intent.ID), zap.Error(err))
	}
	return utils.NewAppError(utils.ErrPartialFailure, message+"; queued for repair", cause)
}

func ignoreNotFound(err error) error {
	if utils.IsErrorCode(err, utils.ErrNotFound) {
		return nil
	}
	return err
}
