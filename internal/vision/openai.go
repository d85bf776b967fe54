package vision

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAI calls a chat-completions endpoint with image content parts.
type OpenAI struct {
	cli     *openai.Client
	model   string
	timeout time.Duration
}

// NewOpenAI creates a client. An empty baseURL uses the OpenAI API.
func NewOpenAI(apiKey, baseURL, model string, timeout time.Duration) *OpenAI {
	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}
	return &OpenAI{
		cli:     openai.NewClientWithConfig(clientConfig),
		model:   model,
		timeout: timeout,
	}
}

// Analyze sends one chat completion with req's images inline as data URLs.
func (o *OpenAI) Analyze(ctx context.Context, req Request) (*Response, error) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	chatReq := openai.ChatCompletionRequest{
		Model:     o.model,
		Messages:  buildMessages(req),
		MaxTokens: req.MaxTokens,
	}

	resp, err := o.cli.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}

	return &Response{
		Text:             strings.TrimSpace(resp.Choices[0].Message.Content),
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

func buildMessages(req Request) []openai.ChatCompletionMessage {
	var msgs []openai.ChatCompletionMessage
	if req.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}

	if len(req.Images) == 0 {
		return append(msgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: req.Prompt,
		})
	}

	parts := []openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: req.Prompt}}
	for _, img := range req.Images {
		if img.Label != "" {
			parts = append(parts, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: img.Label})
		}
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(img.JPEG),
				Detail: imageDetail(req.Detail),
			},
		})
	}
	return append(msgs, openai.ChatCompletionMessage{
		Role:         openai.ChatMessageRoleUser,
		MultiContent: parts,
	})
}

func imageDetail(d Detail) openai.ImageURLDetail {
	switch d {
	case DetailLow:
		return openai.ImageURLDetailLow
	case DetailHigh:
		return openai.ImageURLDetailHigh
	}
	return openai.ImageURLDetailAuto
}
