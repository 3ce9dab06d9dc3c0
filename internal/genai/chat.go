package genai

import (
	"context"
	"strings"
	"time"

	"thoth/internal/utils"

	googleai "google.golang.org/genai"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

type ChatRequest struct {
	History []Message `json:"history"`
	Prompt  string    `json:"prompt"`
	// Grounded enables web search grounding; answers then carry sources.
	Grounded bool `json:"grounded"`
}

type Source struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

type ChatResponse struct {
	Text    string   `json:"text"`
	Sources []Source `json:"sources"`
}

// Chat sends the conversation so far plus a new prompt.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (resp *ChatResponse, err error) {
	start := time.Now()
	defer func() {
		c.metrics.AddOperationLatency("ai_chat", time.Since(start))
		c.metrics.RecordOutcome("ai_chat", err)
	}()

	if strings.TrimSpace(req.Prompt) == "" {
		return nil, utils.NewAppError(utils.ErrInvalidInput, "prompt is required", nil)
	}
	contents := make([]*googleai.Content, 0, len(req.History)+1)
	for _, m := range req.History {
		contents = append(contents, &googleai.Content{Role: string(m.Role), Parts: []*googleai.Part{{Text: m.Text}}})
	}
	contents = append(contents, &googleai.Content{Role: string(RoleUser), Parts: []*googleai.Part{{Text: req.Prompt}}})

	var settings *googleai.GenerateContentConfig
	if req.Grounded {
		settings = &googleai.GenerateContentConfig{
			Tools: []*googleai.Tool{{GoogleSearch: &googleai.GoogleSearch{}}},
		}
	}

	var out *googleai.GenerateContentResponse
	err = c.do(ctx, "chat", func(sdk *googleai.Client) error {
		var err error
		out, err = sdk.Models.GenerateContent(ctx, c.cfg.ChatModel, contents, settings)
		return err
	})
	if err != nil {
		return nil, err
	}
	if out == nil || len(out.Candidates) == 0 || out.Candidates[0] == nil {
		return nil, utils.NewAppError(utils.ErrUpstream, "AI backend returned no answer", nil)
	}

	cand := out.Candidates[0]
	var text strings.Builder
	if cand.Content != nil {
		for _, p := range cand.Content.Parts {
			if p != nil {
				text.WriteString(p.Text)
			}
		}
	}
	resp = &ChatResponse{Text: text.String(), Sources: []Source{}}
	if cand.GroundingMetadata != nil {
		seen := map[string]bool{}
		for _, chunk := range cand.GroundingMetadata.GroundingChunks {
			if chunk == nil || chunk.Web == nil || chunk.Web.URI == "" || seen[chunk.Web.URI] {
				continue
			}
			seen[chunk.Web.URI] = true
			resp.Sources = append(resp.Sources, Source{URI: chunk.Web.URI, Title: chunk.Web.Title})
		}
	}
	return resp, nil
}
