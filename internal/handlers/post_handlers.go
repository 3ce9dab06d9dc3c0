package handlers

import (
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"thoth/internal/api"
	"thoth/internal/compose"
	"thoth/internal/engine/actors"
	"thoth/internal/models"
	"thoth/internal/posts"
	"thoth/internal/utils"
)

// actorPostCreator lets the composer publish through the post actor.
type actorPostCreator struct {
	s *Server
}

func (c actorPostCreator) CreatePost(ctx context.Context, actor models.Identity, in posts.NewPost) (*models.Post, error) {
	result, err := c.s.Engine.Ask(c.s.Engine.GetPostActor(), &actors.CreatePostMsg{Actor: actor, Post: in})
	if err != nil {
		return nil, err
	}
	return result.(*models.Post), nil
}

// HandlePosts creates (JSON or multipart with attachments), reads, edits and deletes posts.
func (s *Server) HandlePosts() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete) {
			return
		}
		me, err := s.identity(r)
		if err != nil {
			writeError(w, err)
			return
		}

		id := r.URL.Query().Get("id")
		if r.Method != http.MethodPost && id == "" {
			writeError(w, utils.NewAppError(utils.ErrInvalidInput, "id is required", nil))
			return
		}

		switch r.Method {
		case http.MethodPost:
			if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
				s.publishDraft(w, r, me)
				return
			}
			var req posts.NewPost
			if err := decode(r, &req); err != nil {
				writeError(w, err)
				return
			}
			result, err := s.Engine.Ask(s.Engine.GetPostActor(), &actors.CreatePostMsg{Actor: me, Post: req})
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, result)

		case http.MethodGet:
			result, err := s.Engine.Ask(s.Engine.GetPostActor(), &actors.GetPostMsg{Viewer: me, PostID: id})
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, result)

		case http.MethodPatch:
			var patch models.PostPatch
			if err := decode(r, &patch); err != nil {
				writeError(w, err)
				return
			}
			result, err := s.Engine.Ask(s.Engine.GetPostActor(), &actors.UpdatePostMsg{Actor: me, PostID: id, Patch: patch})
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, result)

		case http.MethodDelete:
			if _, err := s.Engine.Ask(s.Engine.GetPostActor(), &actors.DeletePostMsg{Actor: me, PostID: id}); err != nil {
				writeError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		}
	}
}

// publishDraft builds a draft from a multipart form (content, tags, postType,
// externalLink, images[], file) and publishes it with its attachments.
func (s *Server) publishDraft(w http.ResponseWriter, r *http.Request, me models.Identity) {
	if s.Uploader == nil {
		writeError(w, utils.NewAppError(utils.ErrUpstream, "attachments are not configured", nil))
		return
	}
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, utils.NewAppError(utils.ErrInvalidInput, "invalid form", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	draft := compose.NewDraft(s.Previews)
	defer draft.Release()

	draft.Content = r.FormValue("content")
	draft.ExternalLink = strings.TrimSpace(r.FormValue("externalLink"))
	if pt := r.FormValue("postType"); pt != "" {
		draft.PostType = models.PostType(pt)
	}
	for _, tag := range r.MultipartForm.Value["tags"] {
		for _, t := range strings.Split(tag, ",") {
			if t = strings.TrimSpace(t); t != "" {
				draft.Tags = append(draft.Tags, t)
			}
		}
	}

	for _, fh := range r.MultipartForm.File["images"] {
		data, err := readPart(fh)
		if err != nil {
			writeError(w, err)
			return
		}
		if _, err := draft.StageImage(fh.Filename, fh.Header.Get("Content-Type"), data); err != nil {
			writeError(w, err)
			return
		}
	}
	if files := r.MultipartForm.File["file"]; len(files) > 0 {
		data, err := readPart(files[0])
		if err != nil {
			writeError(w, err)
			return
		}
		draft.StageFile(files[0].Filename, files[0].Header.Get("Content-Type"), data)
	}

	if problems := draft.Problems(); len(problems) > 0 {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"code":     utils.ErrInvalidInput,
			"error":    "draft cannot be published",
			"problems": problems,
		})
		return
	}

	post, err := compose.NewPublisher(s.Uploader, actorPostCreator{s}).Publish(r.Context(), me, draft)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, post)
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, utils.NewAppError(utils.ErrInvalidInput, "unreadable attachment "+fh.Filename, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrInvalidInput, "unreadable attachment "+fh.Filename, err)
	}
	return data, nil
}

// HandleLike sets or clears the caller's like on the post a card shows.
func (s *Server) HandleLike() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodPost) {
			return
		}
		me, err := s.identity(r)
		if err != nil {
			writeError(w, err)
			return
		}
		var req api.LikeRequest
		if err := decode(r, &req); err != nil {
			writeError(w, err)
			return
		}
		result, err := s.Engine.Ask(s.Engine.GetPostActor(), &actors.LikePostMsg{Actor: me, PostID: req.PostID, Liked: req.Liked})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func (s *Server) HandleBookmark() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodPost) {
			return
		}
		me, err := s.identity(r)
		if err != nil {
			writeError(w, err)
			return
		}
		var req api.BookmarkRequest
		if err := decode(r, &req); err != nil {
			writeError(w, err)
			return
		}
		result, err := s.Engine.Ask(s.Engine.GetPostActor(), &actors.BookmarkPostMsg{Actor: me, PostID: req.PostID, Bookmarked: req.Bookmarked})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func (s *Server) HandleRepost() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodPost) {
			return
		}
		me, err := s.identity(r)
		if err != nil {
			writeError(w, err)
			return
		}
		var req api.RepostRequest
		if err := decode(r, &req); err != nil {
			writeError(w, err)
			return
		}
		result, err := s.Engine.Ask(s.Engine.GetPostActor(), &actors.RepostMsg{Actor: me, PostID: req.PostID})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, result)
	}
}

// HandleFeed returns the caller's feed tab as resolved cards.
func (s *Server) HandleFeed() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodGet) {
			return
		}
		me, err := s.identity(r)
		if err != nil {
			writeError(w, err)
			return
		}
		filter, err := models.ParseFeedFilter(r.URL.Query().Get("filter"))
		if err != nil {
			writeError(w, utils.NewAppError(utils.ErrInvalidInput, err.Error(), err))
			return
		}
		result, err := s.Engine.Ask(s.Engine.GetFeedActor(), &actors.GetFeedMsg{Viewer: me, Filter: filter})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"filter": filter, "cards": result})
	}
}
