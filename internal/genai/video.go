package genai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"thoth/internal/utils"

	"go.uber.org/zap"
	googleai "google.golang.org/genai"
)

// maxVideoBytes bounds a downloaded video.
const maxVideoBytes = 256 << 20

// PollPolicy bounds how a long-running operation is polled. The wait between
// polls starts at Interval and grows by Multiplier up to MaxInterval; the
// whole wait gives up after MaxWait.
type PollPolicy struct {
	Interval    time.Duration
	MaxInterval time.Duration
	Multiplier  float64
	MaxWait     time.Duration
}

func (p PollPolicy) withDefaults() PollPolicy {
	if p.Interval <= 0 {
		p.Interval = 10 * time.Second
	}
	if p.MaxInterval < p.Interval {
		p.MaxInterval = p.Interval
	}
	if p.Multiplier < 1 {
		p.Multiplier = 1.5
	}
	if p.MaxWait <= 0 {
		p.MaxWait = 10 * time.Minute
	}
	return p
}

func (p PollPolicy) next(cur time.Duration) time.Duration {
	n := time.Duration(float64(cur) * p.Multiplier)
	if n > p.MaxInterval {
		return p.MaxInterval
	}
	return n
}

// Poll calls check until it reports done. It returns ctx.Err() if ctx ends
// first and a TIMEOUT error once MaxWait has passed.
func Poll(ctx context.Context, policy PollPolicy, check func(ctx context.Context) (bool, error)) error {
	policy = policy.withDefaults()
	waitCtx, cancel := context.WithTimeout(ctx, policy.MaxWait)
	defer cancel()

	interval := policy.Interval
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for attempt := 1; ; attempt++ {
		select {
		case <-waitCtx.Done():
			if err := ctx.Err(); err != nil {
				return err
			}
			return utils.NewAppError(utils.ErrTimeout,
				fmt.Sprintf("operation not finished after %s", policy.MaxWait), waitCtx.Err())
		case <-timer.C:
		}

		done, err := check(waitCtx)
		if err != nil {
			if waitCtx.Err() != nil && ctx.Err() == nil {
				return utils.NewAppError(utils.ErrTimeout,
					fmt.Sprintf("operation not finished after %s", policy.MaxWait), err)
			}
			return err
		}
		if done {
			return nil
		}
		utils.Logger.Debug("operation still running", zap.Int("attempt", attempt), zap.Duration("next", interval))
		interval = policy.next(interval)
		timer.Reset(interval)
	}
}

type VideoRequest struct {
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspectRatio"`
	// Image optionally seeds the first frame.
	Image *Image `json:"-"`
}

type Video struct {
	Data     []byte
	MIMEType string
}

// PollPolicy returns the configured video polling policy.
func (c *Client) PollPolicy() PollPolicy {
	return PollPolicy{
		Interval:    c.cfg.PollInterval,
		MaxInterval: c.cfg.MaxPollInterval,
		Multiplier:  1.5,
		MaxWait:     c.cfg.MaxVideoWait,
	}
}

// GenerateVideo submits a video job, waits for it under the client's poll
// policy and downloads the result.
func (c *Client) GenerateVideo(ctx context.Context, req VideoRequest) (*Video, error) {
	return c.GenerateVideoWithPolicy(ctx, req, c.PollPolicy())
}

func (c *Client) GenerateVideoWithPolicy(ctx context.Context, req VideoRequest, policy PollPolicy) (video *Video, err error) {
	start := time.Now()
	defer func() {
		c.metrics.AddOperationLatency("ai_video", time.Since(start))
		c.metrics.RecordOutcome("ai_video", err)
	}()

	if strings.TrimSpace(req.Prompt) == "" {
		return nil, utils.NewAppError(utils.ErrInvalidInput, "prompt is required", nil)
	}
	var seed *googleai.Image
	if req.Image != nil {
		seed = &googleai.Image{ImageBytes: req.Image.Data, MIMEType: req.Image.MIMEType}
	}
	settings := &googleai.GenerateVideosConfig{AspectRatio: req.AspectRatio}

	var op *googleai.GenerateVideosOperation
	err = c.do(ctx, "video", func(sdk *googleai.Client) error {
		var err error
		op, err = sdk.Models.GenerateVideos(ctx, c.cfg.VideoModel, req.Prompt, seed, settings)
		return err
	})
	if err != nil {
		return nil, err
	}
	if op == nil || op.Name == "" {
		return nil, utils.NewAppError(utils.ErrUpstream, "AI backend returned no operation", nil)
	}
	utils.Logger.Info("video generation started", zap.String("operation", op.Name))

	err = Poll(ctx, policy, func(ctx context.Context) (bool, error) {
		err := c.do(ctx, "video_poll", func(sdk *googleai.Client) error {
			next, err := sdk.Operations.GetVideosOperation(ctx, op, nil)
			if err == nil && next != nil {
				op = next
			}
			return err
		})
		return op.Done, err
	})
	if err != nil {
		return nil, err
	}
	if len(op.Error) > 0 {
		msg, _ := op.Error["message"].(string)
		return nil, utils.NewAppError(utils.ErrUpstream, "video generation failed: "+msg, nil)
	}
	if op.Response == nil || len(op.Response.GeneratedVideos) == 0 ||
		op.Response.GeneratedVideos[0] == nil || op.Response.GeneratedVideos[0].Video == nil {
		return nil, utils.NewAppError(utils.ErrUpstream, "video generation returned no video", nil)
	}

	generated := op.Response.GeneratedVideos[0].Video
	mimeType := generated.MIMEType
	if mimeType == "" {
		mimeType = "video/mp4"
	}
	if len(generated.VideoBytes) > 0 {
		return &Video{Data: generated.VideoBytes, MIMEType: mimeType}, nil
	}
	data, err := c.download(ctx, generated.URI)
	if err != nil {
		return nil, err
	}
	return &Video{Data: data, MIMEType: mimeType}, nil
}

func (c *Client) download(ctx context.Context, uri string) ([]byte, error) {
	if uri == "" {
		return nil, utils.NewAppError(utils.ErrUpstream, "video has no download link", nil)
	}
	var data []byte
	_, err := c.breaker.Execute(func() (interface{}, error) {
		raw, err := c.fetch(ctx, uri, maxVideoBytes)
		data = raw
		return nil, err
	})
	if err != nil {
		return nil, breakerError(err)
	}
	return data, nil
}
