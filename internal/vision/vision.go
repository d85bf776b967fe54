// Package vision is the boundary to the remote image-understanding service.
package vision

import (
	"context"
	"fmt"
	"strings"

	"github.com/hpungsan/lens/internal/config"
)

// Detail is the requested image detail level.
type Detail string

const (
	DetailLow  Detail = "low"
	DetailHigh Detail = "high"
	DetailAuto Detail = "auto"
)

// Image is one encoded still sent with a request.
type Image struct {
	JPEG []byte
	// Label is placed as text before the image, e.g. "t=1.25s".
	Label string
}

// Request is one call to the service.
type Request struct {
	System    string
	Prompt    string
	Images    []Image
	Detail    Detail
	MaxTokens int
}

// Response is the generated text plus token usage.
type Response struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}

// Client analyzes images.
type Client interface {
	Analyze(ctx context.Context, req Request) (*Response, error)
}

// New builds the client selected by cfg.Provider.
func New(cfg *config.Config) (Client, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("no API key: set LENS_API_KEY or OPENAI_API_KEY")
		}
		return NewOpenAI(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.RequestTimeout()), nil
	case "mock":
		return NewMock(), nil
	}
	return nil, fmt.Errorf("unknown provider %q (use openai or mock)", cfg.Provider)
}
