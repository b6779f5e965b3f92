package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	aoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/tidwall/gjson"

	"github.com/joescharf/codereview/internal/models"
)

// anthropicTransport talks to the Anthropic Messages API.
type anthropicTransport struct {
	client anthropic.Client
}

func newAnthropicTransport(cfg Config) *anthropicTransport {
	opts := []aoption.RequestOption{aoption.WithMaxRetries(0)}
	if cfg.BaseURL != "" && cfg.BaseURL != DefaultBaseURL {
		opts = append(opts, aoption.WithBaseURL(cfg.BaseURL))
	}
	if cfg.APIKey != "" {
		opts = append(opts, aoption.WithAPIKey(cfg.APIKey))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, aoption.WithHTTPClient(cfg.HTTPClient))
	}
	return &anthropicTransport{client: anthropic.NewClient(opts...)}
}

func (t *anthropicTransport) complete(ctx context.Context, prompt string, rc RequestConfig) (*completion, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(rc.ModelID),
		MaxTokens:   int64(rc.MaxTokens),
		Temperature: anthropic.Float(rc.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	var raw []byte
	if _, err := t.client.Messages.New(ctx, params, aoption.WithResponseBodyInto(&raw)); err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return nil, &StatusError{Code: apiErr.StatusCode, Msg: apiErr.Error()}
		}
		return nil, err
	}
	return parseAnthropicBody(raw)
}

func parseAnthropicBody(raw []byte) (*completion, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%w: body is not JSON", errMalformed)
	}
	body := gjson.ParseBytes(raw)

	var sb strings.Builder
	for _, block := range body.Get("content").Array() {
		if block.Get("type").String() == "text" {
			sb.WriteString(block.Get("text").String())
		}
	}

	usage := body.Get("usage")
	in, out := usage.Get("input_tokens"), usage.Get("output_tokens")
	return &completion{
		Text: sb.String(),
		Usage: models.TokenUsage{
			Prompt:     int(in.Int()),
			Completion: int(out.Int()),
			Total:      int(in.Int() + out.Int()),
		},
		HasUsage: in.Exists() && out.Exists(),
		ModelID:  body.Get("model").String(),
	}, nil
}
