package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/tidwall/gjson"

	"github.com/joescharf/codereview/internal/models"
)

// openAITransport talks to any OpenAI-compatible chat-completions endpoint.
type openAITransport struct {
	client openai.Client
}

func newOpenAITransport(cfg Config) *openAITransport {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	opts := []option.RequestOption{
		option.WithBaseURL(base),
		option.WithMaxRetries(0),
		option.WithHeader("X-Title", "codereview"),
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	return &openAITransport{client: openai.NewClient(opts...)}
}

func (t *openAITransport) complete(ctx context.Context, prompt string, rc RequestConfig) (*completion, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(rc.ModelID),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		MaxTokens:   openai.Int(int64(rc.MaxTokens)),
		Temperature: openai.Float(rc.Temperature),
	}

	var raw []byte
	if _, err := t.client.Chat.Completions.New(ctx, params, option.WithResponseBodyInto(&raw)); err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, &StatusError{Code: apiErr.StatusCode, Msg: apiErr.Error()}
		}
		return nil, err
	}
	return parseOpenAIBody(raw)
}

func parseOpenAIBody(raw []byte) (*completion, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%w: body is not JSON", errMalformed)
	}
	body := gjson.ParseBytes(raw)
	usage := body.Get("usage")
	return &completion{
		Text: body.Get("choices.0.message.content").String(),
		Usage: models.TokenUsage{
			Prompt:     int(usage.Get("prompt_tokens").Int()),
			Completion: int(usage.Get("completion_tokens").Int()),
			Total:      int(usage.Get("total_tokens").Int()),
		},
		HasUsage: usage.IsObject() && usage.Get("total_tokens").Exists(),
		ModelID:  body.Get("model").String(),
	}, nil
}
