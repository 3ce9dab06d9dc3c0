package genai

import (
	"context"
	"strings"
	"time"

	"thoth/internal/utils"

	googleai "google.golang.org/genai"
)

var aspectRatios = map[string]bool{"1:1": true, "3:4": true, "4:3": true, "9:16": true, "16:9": true}

type Image struct {
	Data     []byte
	MIMEType string
}

// GenerateImage renders one image for prompt. aspectRatio defaults to 1:1.
func (c *Client) GenerateImage(ctx context.Context, prompt, aspectRatio string) (img *Image, err error) {
	start := time.Now()
	defer func() {
		c.metrics.AddOperationLatency("ai_image", time.Since(start))
		c.metrics.RecordOutcome("ai_image", err)
	}()

	if strings.TrimSpace(prompt) == "" {
		return nil, utils.NewAppError(utils.ErrInvalidInput, "prompt is required", nil)
	}
	if aspectRatio == "" {
		aspectRatio = "1:1"
	}
	if !aspectRatios[aspectRatio] {
		return nil, utils.NewAppError(utils.ErrInvalidInput, "unsupported aspect ratio "+aspectRatio, nil)
	}

	var out *googleai.GenerateImagesResponse
	err = c.do(ctx, "image", func(sdk *googleai.Client) error {
		var err error
		out, err = sdk.Models.GenerateImages(ctx, c.cfg.ImageModel, prompt, &googleai.GenerateImagesConfig{
			NumberOfImages: 1,
			AspectRatio:    aspectRatio,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	if out == nil || len(out.GeneratedImages) == 0 || out.GeneratedImages[0] == nil ||
		out.GeneratedImages[0].Image == nil || len(out.GeneratedImages[0].Image.ImageBytes) == 0 {
		return nil, utils.NewAppError(utils.ErrUpstream, "no image was generated", nil)
	}

	generated := out.GeneratedImages[0].Image
	mimeType := generated.MIMEType
	if mimeType == "" {
		mimeType = "image/png"
	}
	return &Image{Data: generated.ImageBytes, MIMEType: mimeType}, nil
}
