package database

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"thoth/internal/models"
	"thoth/internal/utils"
)

// MemoryStore is an in-process Store. It backs DB_TYPE=memory and the tests.
// Documents are copied on the way in and out so callers never share state.
type MemoryStore struct {
	mu        sync.RWMutex
	posts     map[string]*models.Post
	seq       map[string]int64
	nextSeq   int64
	bookmarks map[string]map[string]*models.Bookmark
	profiles  map[string]*models.Profile
	events    map[string]*models.Event
	intents   map[string]*models.Intent
	watchers  map[string]map[chan PostEvent]struct{}
	now       func() time.Time
}

const watchBuffer = 8

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		posts:     make(map[string]*models.Post),
		seq:       make(map[string]int64),
		bookmarks: make(map[string]map[string]*models.Bookmark),
		profiles:  make(map[string]*models.Profile),
		events:    make(map[string]*models.Event),
		intents:   make(map[string]*models.Intent),
		watchers:  make(map[string]map[chan PostEvent]struct{}),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the timestamp source.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, chans := range s.watchers {
		for ch := range chans {
			close(ch)
		}
		delete(s.watchers, id)
	}
	return nil
}

// Posts

func (s *MemoryStore) InsertPost(ctx context.Context, post *models.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	normalizePost(post)
	now := s.now()
	post.CreatedAt, post.UpdatedAt = now, now
	if err := checkPost(post, true); err != nil {
		return err
	}
	if _, exists := s.posts[post.ID]; exists {
		return utils.NewAppError(utils.ErrDuplicate, "post already exists: "+post.ID, nil)
	}
	s.nextSeq++
	s.seq[post.ID] = s.nextSeq
	s.posts[post.ID] = post.Clone()
	s.publishLocked(post.ID)
	return nil
}

func (s *MemoryStore) GetPost(ctx context.Context, id string) (*models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	post, ok := s.posts[id]
	if !ok {
		return nil, utils.NewNotFoundError("post", id)
	}
	return post.Clone(), nil
}

func (s *MemoryStore) UpdatePost(ctx context.Context, id string, patch models.PostPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	post, ok := s.posts[id]
	if !ok {
		return utils.NewNotFoundError("post", id)
	}
	updated := post.Clone()
	patch.Apply(updated)
	updated.UpdatedAt = s.now()
	if err := checkPost(updated, true); err != nil {
		return err
	}
	s.posts[id] = updated
	s.publishLocked(id)
	return nil
}

func (s *MemoryStore) DeletePost(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.posts[id]; !ok {
		return utils.NewNotFoundError("post", id)
	}
	delete(s.posts, id)
	delete(s.seq, id)
	s.publishLocked(id)
	return nil
}

func (s *MemoryStore) SetLike(ctx context.Context, postID, userID string, liked bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	post, ok := s.posts[postID]
	if !ok {
		return false, utils.NewNotFoundError("post", postID)
	}
	if post.LikedByUser(userID) == liked {
		return false, nil
	}
	if liked {
		post.LikedBy = append(post.LikedBy, userID)
		post.Likes++
	} else {
		post.LikedBy = removeString(post.LikedBy, userID)
		post.Likes--
	}
	s.publishLocked(postID)
	return true, nil
}

func (s *MemoryStore) AddRepostRef(ctx context.Context, postID string, ref models.RepostRef) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	post, ok := s.posts[postID]
	if !ok {
		return false, utils.NewNotFoundError("post", postID)
	}
	if post.RepostedByUser(ref.UID) {
		return false, nil
	}
	post.RepostedBy = append(post.RepostedBy, ref)
	s.publishLocked(postID)
	return true, nil
}

func (s *MemoryStore) RemoveRepostRef(ctx context.Context, postID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	post, ok := s.posts[postID]
	if !ok {
		return utils.NewNotFoundError("post", postID)
	}
	kept := post.RepostedBy[:0]
	for _, ref := range post.RepostedBy {
		if ref.UID != userID {
			kept = append(kept, ref)
		}
	}
	post.RepostedBy = kept
	s.publishLocked(postID)
	return nil
}

func (s *MemoryStore) FindPostsByAuthors(ctx context.Context, authorIDs []string, limit int) ([]*models.Post, error) {
	if len(authorIDs) > MaxInValues {
		return nil, tooManyAuthors(len(authorIDs))
	}
	allowed := make(map[string]bool, len(authorIDs))
	for _, id := range authorIDs {
		allowed[id] = true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Post
	for _, post := range s.posts {
		if allowed[post.Author.ID] {
			out = append(out, post)
		}
	}
	s.sortNewestLocked(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return clonePosts(out), nil
}

func (s *MemoryStore) FindReposts(ctx context.Context, originalID string) ([]*models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Post
	for _, post := range s.posts {
		if post.OriginalPostID == originalID {
			out = append(out, post)
		}
	}
	s.sortNewestLocked(out)
	return clonePosts(out), nil
}

func (s *MemoryStore) CountPosts(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.posts)), nil
}

func (s *MemoryStore) WatchPost(ctx context.Context, id string) (<-chan PostEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan PostEvent, watchBuffer)
	post, ok := s.posts[id]
	if !ok {
		ch <- PostEvent{PostID: id, Deleted: true}
		close(ch)
		return ch, nil
	}
	ch <- PostEvent{PostID: id, Post: post.Clone()}

	if s.watchers[id] == nil {
		s.watchers[id] = make(map[chan PostEvent]struct{})
	}
	s.watchers[id][ch] = struct{}{}

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		if chans, ok := s.watchers[id]; ok {
			if _, ok := chans[ch]; ok {
				delete(chans, ch)
				close(ch)
				if len(chans) == 0 {
					delete(s.watchers, id)
				}
			}
		}
	}()
	return ch, nil
}

// publishLocked pushes the current state of id to its watchers. A slow watcher
// loses its oldest pending event rather than blocking writers. Deletion is
// terminal and closes every watcher.
func (s *MemoryStore) publishLocked(id string) {
	chans := s.watchers[id]
	if len(chans) == 0 {
		return
	}
	post, exists := s.posts[id]
	for ch := range chans {
		ev := PostEvent{PostID: id, Deleted: !exists}
		if exists {
			ev.Post = post.Clone()
		}
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
		if !exists {
			close(ch)
		}
	}
	if !exists {
		delete(s.watchers, id)
	}
}

func (s *MemoryStore) sortNewestLocked(posts []*models.Post) {
	sort.Slice(posts, func(i, j int) bool {
		if !posts[i].CreatedAt.Equal(posts[j].CreatedAt) {
			return posts[i].CreatedAt.After(posts[j].CreatedAt)
		}
		return s.seq[posts[i].ID] > s.seq[posts[j].ID]
	})
}

// Bookmarks

func (s *MemoryStore) PutBookmark(ctx context.Context, bookmark *models.Bookmark) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bookmark.BookmarkedAt = s.now()
	if s.bookmarks[bookmark.UserID] == nil {
		s.bookmarks[bookmark.UserID] = make(map[string]*models.Bookmark)
	}
	c := *bookmark
	c.Tags = append([]string{}, bookmark.Tags...)
	c.Images = append([]string{}, bookmark.Images...)
	s.nextSeq++
	s.seq["bookmark:"+bookmark.UserID+"/"+bookmark.ID] = s.nextSeq
	s.bookmarks[bookmark.UserID][bookmark.ID] = &c
	return nil
}

func (s *MemoryStore) DeleteBookmark(ctx context.Context, userID, postID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bookmarks[userID][postID]; !ok {
		return utils.NewNotFoundError("bookmark", postID)
	}
	delete(s.bookmarks[userID], postID)
	delete(s.seq, "bookmark:"+userID+"/"+postID)
	return nil
}

func (s *MemoryStore) ListBookmarks(ctx context.Context, userID string) ([]*models.Bookmark, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Bookmark, 0, len(s.bookmarks[userID]))
	for _, b := range s.bookmarks[userID] {
		c := *b
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].BookmarkedAt.Equal(out[j].BookmarkedAt) {
			return out[i].BookmarkedAt.After(out[j].BookmarkedAt)
		}
		return s.seq["bookmark:"+userID+"/"+out[i].ID] > s.seq["bookmark:"+userID+"/"+out[j].ID]
	})
	return out, nil
}

// Profiles

func (s *MemoryStore) SaveProfile(ctx context.Context, profile *models.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.profiles[profile.ID]; exists {
		return utils.NewAppError(utils.ErrDuplicate, "profile already exists: "+profile.ID, nil)
	}
	for _, p := range s.profiles {
		if strings.EqualFold(p.Email, profile.Email) {
			return utils.NewAppError(utils.ErrDuplicate, "email already registered", nil)
		}
		if strings.EqualFold(p.Username, profile.Username) {
			return utils.NewAppError(utils.ErrDuplicate, "username already taken", nil)
		}
	}
	now := s.now()
	profile.CreatedAt, profile.UpdatedAt = now, now
	if profile.Connections == nil {
		profile.Connections = []string{}
	}
	s.profiles[profile.ID] = cloneProfile(profile)
	return nil
}

func (s *MemoryStore) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[id]
	if !ok {
		return nil, utils.NewNotFoundError("profile", id)
	}
	return cloneProfile(p), nil
}

func (s *MemoryStore) GetProfileByEmail(ctx context.Context, email string) (*models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.profiles {
		if strings.EqualFold(p.Email, email) {
			return cloneProfile(p), nil
		}
	}
	return nil, utils.NewNotFoundError("profile", email)
}

func (s *MemoryStore) GetProfileByUsername(ctx context.Context, username string) (*models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.profiles {
		if strings.EqualFold(p.Username, username) {
			return cloneProfile(p), nil
		}
	}
	return nil, utils.NewNotFoundError("profile", username)
}

func (s *MemoryStore) UpdateProfile(ctx context.Context, id string, patch models.ProfilePatch) error {
	return s.mutateProfile(id, func(p *models.Profile) {
		if patch.Name != nil {
			p.Name = *patch.Name
		}
		if patch.Avatar != nil {
			p.Avatar = *patch.Avatar
		}
		if patch.Bio != nil {
			p.Bio = *patch.Bio
		}
	})
}

func (s *MemoryStore) AddConnection(ctx context.Context, userID, targetID string) error {
	return s.mutateProfile(userID, func(p *models.Profile) {
		if !containsString(p.Connections, targetID) {
			p.Connections = append(p.Connections, targetID)
		}
	})
}

func (s *MemoryStore) RemoveConnection(ctx context.Context, userID, targetID string) error {
	return s.mutateProfile(userID, func(p *models.Profile) {
		p.Connections = removeString(p.Connections, targetID)
	})
}

func (s *MemoryStore) GetConnections(ctx context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[userID]
	if !ok {
		return nil, utils.NewNotFoundError("profile", userID)
	}
	return append([]string{}, p.Connections...), nil
}

func (s *MemoryStore) AddDeviceToken(ctx context.Context, userID, token string) error {
	return s.mutateProfile(userID, func(p *models.Profile) {
		if !containsString(p.DeviceTokens, token) {
			p.DeviceTokens = append(p.DeviceTokens, token)
		}
	})
}

func (s *MemoryStore) RemoveDeviceToken(ctx context.Context, userID, token string) error {
	return s.mutateProfile(userID, func(p *models.Profile) {
		p.DeviceTokens = removeString(p.DeviceTokens, token)
	})
}

func (s *MemoryStore) mutateProfile(id string, fn func(*models.Profile)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[id]
	if !ok {
		return utils.NewNotFoundError("profile", id)
	}
	fn(p)
	p.UpdatedAt = s.now()
	return nil
}

// Events

func (s *MemoryStore) SaveEvent(ctx context.Context, event *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.Participants == nil {
		event.Participants = []string{}
	}
	if event.Interested == nil {
		event.Interested = []string{}
	}
	event.CreatedAt = s.now()
	s.events[event.ID] = event.Clone()
	return nil
}

func (s *MemoryStore) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.events[id]
	if !ok {
		return nil, utils.NewNotFoundError("event", id)
	}
	return e.Clone(), nil
}

func (s *MemoryStore) ListEvents(ctx context.Context, from time.Time, limit int) ([]*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Event
	for _, e := range s.events {
		if !e.Date.Before(from) {
			out = append(out, e.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) AddParticipant(ctx context.Context, eventID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[eventID]
	if !ok {
		return false, utils.NewNotFoundError("event", eventID)
	}
	if e.HasParticipant(userID) {
		return true, nil
	}
	if e.Full() {
		return false, nil
	}
	e.Participants = append(e.Participants, userID)
	return true, nil
}

func (s *MemoryStore) RemoveParticipant(ctx context.Context, eventID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[eventID]
	if !ok {
		return utils.NewNotFoundError("event", eventID)
	}
	e.Participants = removeString(e.Participants, userID)
	return nil
}

func (s *MemoryStore) SetInterest(ctx context.Context, eventID, userID string, interested bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[eventID]
	if !ok {
		return utils.NewNotFoundError("event", eventID)
	}
	if interested {
		if !containsString(e.Interested, userID) {
			e.Interested = append(e.Interested, userID)
		}
	} else {
		e.Interested = removeString(e.Interested, userID)
	}
	return nil
}

// Intents

func (s *MemoryStore) SaveIntent(ctx context.Context, intent *models.Intent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if intent.CreatedAt.IsZero() {
		intent.CreatedAt = s.now()
	}
	if intent.Status == "" {
		intent.Status = models.IntentPending
	}
	c := *intent
	s.intents[intent.ID] = &c
	return nil
}

func (s *MemoryStore) CompleteIntent(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	intent, ok := s.intents[id]
	if !ok {
		return utils.NewNotFoundError("intent", id)
	}
	now := s.now()
	intent.Status = models.IntentDone
	intent.CompletedAt = &now
	return nil
}

func (s *MemoryStore) FailIntent(ctx context.Context, id, reason string, final bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	intent, ok := s.intents[id]
	if !ok {
		return utils.NewNotFoundError("intent", id)
	}
	intent.Attempts++
	intent.Error = reason
	if final {
		intent.Status = models.IntentFailed
	}
	return nil
}

func (s *MemoryStore) ListPendingIntents(ctx context.Context, createdBefore time.Time, limit int) ([]*models.Intent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Intent
	for _, intent := range s.intents {
		if intent.Status != models.IntentPending {
			continue
		}
		if createdBefore.IsZero() || !intent.CreatedAt.After(createdBefore) {
			c := *intent
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func clonePosts(in []*models.Post) []*models.Post {
	out := make([]*models.Post, len(in))
	for i, p := range in {
		out[i] = p.Clone()
	}
	return out
}

func cloneProfile(p *models.Profile) *models.Profile {
	c := *p
	c.Connections = append([]string{}, p.Connections...)
	c.DeviceTokens = append([]string{}, p.DeviceTokens...)
	return &c
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func removeString(list []string, v string) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}
