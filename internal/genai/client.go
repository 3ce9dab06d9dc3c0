// Package genai is the client for the generative AI backend: grounded chat,
// image synthesis, long-running video synthesis and live audio sessions.
package genai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"thoth/internal/config"
	"thoth/internal/utils"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	googleai "google.golang.org/genai"
)

const apiVersion = "v1beta"

type Client struct {
	cfg     config.AIConfig
	http    *http.Client
	sdk     *googleai.Client
	breaker *gobreaker.CircuitBreaker
	metrics *utils.MetricsCollector
}

// New builds a client. httpClient may be nil. Without an API key the client
// is built but not Configured, and every call fails with UPSTREAM.
func New(cfg *config.AIConfig, httpClient *http.Client, metrics *utils.MetricsCollector) *Client {
	c := *config.DefaultAIConfig()
	if cfg != nil {
		c = *cfg
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: c.Timeout}
	}
	if metrics == nil {
		metrics = utils.NewMetricsCollector()
	}
	client := &Client{
		cfg:  c,
		http: httpClient,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "genai",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 3 && failureRatio >= 0.6
			},
			IsSuccessful: healthyOutcome,
			OnStateChange: func(name string, from, to gobreaker.State) {
				utils.Logger.Warn("circuit breaker state changed",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		}),
		metrics: metrics,
	}

	if c.APIKey != "" {
		sdk, err := googleai.NewClient(context.Background(), &googleai.ClientConfig{
			APIKey:     c.APIKey,
			Backend:    googleai.BackendGeminiAPI,
			HTTPClient: httpClient,
			HTTPOptions: googleai.HTTPOptions{
				BaseURL:    strings.TrimRight(c.BaseURL, "/") + "/",
				APIVersion: apiVersion,
			},
		})
		if err != nil {
			utils.Logger.Error("failed to build AI backend client", zap.Error(err))
		} else {
			client.sdk = sdk
		}
	}
	return client
}

// healthyOutcome decides what the breaker counts as a backend failure.
// Rejected prompts and callers that gave up say nothing about the backend.
// do returns the caller's ctx.Err() unwrapped, so a backend timeout wrapped
// in an AppError still counts.
func healthyOutcome(err error) bool {
	return err == nil ||
		err == context.Canceled ||
		err == context.DeadlineExceeded ||
		utils.IsErrorCode(err, utils.ErrInvalidInput)
}

// Configured reports whether an API key is set.
func (c *Client) Configured() bool {
	return c.sdk != nil
}

// do runs fn through the circuit breaker and maps its error.
func (c *Client) do(ctx context.Context, op string, fn func(sdk *googleai.Client) error) error {
	if !c.Configured() {
		return utils.NewAppError(utils.ErrUpstream, "AI backend is not configured", nil)
	}
	start := time.Now()
	_, err := c.breaker.Execute(func() (interface{}, error) {
		err := fn(c.sdk)
		if err == nil {
			return nil, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, backendError(err)
	})
	c.metrics.AddOperationLatency("genai_"+op, time.Since(start))
	return breakerError(err)
}

// backendError turns an SDK error into an AppError. A 400 means the request
// itself was refused; everything else is the backend's problem.
func backendError(err error) error {
	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	status, msg := 0, err.Error()
	var apiErr googleai.APIError
	var apiErrPtr *googleai.APIError
	switch {
	case errors.As(err, &apiErr):
		status, msg = apiErr.Code, apiErr.Message
	case errors.As(err, &apiErrPtr) && apiErrPtr != nil:
		status, msg = apiErrPtr.Code, apiErrPtr.Message
	}
	if msg == "" {
		msg = http.StatusText(status)
	}

	cause := fmt.Errorf("status %d: %w", status, err)
	switch {
	case status == http.StatusBadRequest:
		return utils.NewAppError(utils.ErrInvalidInput, msg, cause)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return utils.NewAppError(utils.ErrUpstream, "AI backend rejected the API key: "+msg, cause)
	case status == 0:
		return utils.NewAppError(utils.ErrUpstream, "AI backend unreachable", err)
	default:
		return utils.NewAppError(utils.ErrUpstream, msg, cause)
	}
}

func breakerError(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return utils.NewAppError(utils.ErrUpstream, "AI backend temporarily unavailable", err)
	}
	return err
}

// fetch downloads a generated file. The backend serves these as plain
// authenticated GETs outside the generation API.
func (c *Client) fetch(ctx context.Context, uri string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrUpstream, "invalid download link", err)
	}
	req.Header.Set("x-goog-api-key", c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, utils.NewAppError(utils.ErrUpstream, "AI backend unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, utils.NewAppError(utils.ErrUpstream, "download failed: "+resp.Status, nil)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, utils.NewAppError(utils.ErrUpstream, "failed to read download", err)
	}
	return data, nil
}
