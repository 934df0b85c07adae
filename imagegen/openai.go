// Package imagegen supplies the images and prompts of daily polls.
package imagegen

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// ErrEmptyImage the provider answered without an image url
var ErrEmptyImage = errors.New("image response contained no url")

// OpenAISupplier requests images from the OpenAI images API.
type OpenAISupplier struct {
	client *openai.Client
	model  string
	size   string
}

// NewOpenAISupplier creates a supplier for apiKey.
func NewOpenAISupplier(apiKey, model, size string) *OpenAISupplier {
	return NewOpenAISupplierWithConfig(openai.DefaultConfig(apiKey), model, size)
}

// NewOpenAISupplierWithConfig creates a supplier with a custom client config,
// for example another base url.
func NewOpenAISupplierWithConfig(cfg openai.ClientConfig, model, size string) *OpenAISupplier {
	if model == "" {
		model = openai.CreateImageModelDallE3
	}
	if size == "" {
		size = openai.CreateImageSize1024x1024
	}
	return &OpenAISupplier{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		size:   size,
	}
}

// RequestImage generates one image for prompt and returns its url.
func (s *OpenAISupplier) RequestImage(ctx context.Context, prompt string) (string, error) {
	resp, err := s.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          s.model,
		N:              1,
		Size:           s.size,
		ResponseFormat: openai.CreateImageResponseFormatURL,
	})
	if err != nil {
		return "", fmt.Errorf("create image: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return "", ErrEmptyImage
	}
	return resp.Data[0].URL, nil
}
