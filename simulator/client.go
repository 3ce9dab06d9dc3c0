package simulator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"thoth/internal/api"
	"thoth/internal/models"
	"thoth/internal/utils"
)

// apiClient talks JSON to the engine and turns error bodies back into AppErrors.
type apiClient struct {
	baseURL string
	http    *http.Client
	stats   *SimulationStats
}

func newAPIClient(baseURL string, stats *SimulationStats) *apiClient {
	return &apiClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		stats:   stats,
	}
}

func (c *apiClient) do(ctx context.Context, method, endpoint, token string, data, out interface{}) error {
	var body io.Reader
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.stats.recordRequest(start, err)
		return utils.NewAppError(utils.ErrUpstream, "request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err == nil && resp.StatusCode >= 400 {
		err = decodeError(resp.StatusCode, raw)
	}
	c.stats.recordRequest(start, err)
	if err != nil {
		return err
	}
	if out != nil && len(raw) > 0 {
		return json.Unmarshal(raw, out)
	}
	return nil
}

func decodeError(status int, raw []byte) error {
	var e api.ErrorResponse
	if json.Unmarshal(raw, &e) == nil && e.Code != "" {
		return utils.NewAppError(e.Code, e.Error, nil)
	}
	return utils.NewAppError(utils.ErrUpstream, fmt.Sprintf("request failed with status: %d", status), nil)
}

// httpMutator is the remote half of the interaction controller for one session.
type httpMutator struct {
	client *apiClient
	token  string
}

func (m httpMutator) Like(ctx context.Context, _ models.Identity, postID string, liked bool) error {
	return m.client.do(ctx, http.MethodPost, "/posts/like", m.token, api.LikeRequest{PostID: postID, Liked: liked}, nil)
}

func (m httpMutator) Bookmark(ctx context.Context, _ models.Identity, postID string, bookmarked bool) error {
	return m.client.do(ctx, http.MethodPost, "/posts/bookmark", m.token, api.BookmarkRequest{PostID: postID, Bookmarked: bookmarked}, nil)
}

func (m httpMutator) Repost(ctx context.Context, _ models.Identity, postID string) error {
	return m.client.do(ctx, http.MethodPost, "/posts/repost", m.token, api.RepostRequest{PostID: postID}, nil)
}
