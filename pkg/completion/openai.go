package completion

import (
	"context"
	"math"

	"github.com/go-go-golems/chattier/pkg/settings"
	"github.com/pkg/errors"
	go_openai "github.com/sashabaranov/go-openai"
)

type OpenAICompleter struct {
	client *go_openai.Client
}

// NewOpenAICompleter builds a client from the openai key and base URL of cs.
func NewOpenAICompleter(cs *settings.ClientSettings) (*OpenAICompleter, error) {
	apiKey := cs.APIKey(settings.ProviderOpenAI)
	if apiKey == "" {
		return nil, errors.Wrap(ErrMissingAPIKey, "openai")
	}

	config := go_openai.DefaultConfig(apiKey)
	if baseURL := cs.BaseURL(settings.ProviderOpenAI); baseURL != "" {
		config.BaseURL = baseURL
	}
	config.HTTPClient = cs.Client()

	return &OpenAICompleter{client: go_openai.NewClientWithConfig(config)}, nil
}

// nonZero keeps an explicit 0 from being dropped by the omitempty tags of the
// request, which would make the API fall back to its default of 1.
func nonZero(v float64) float32 {
	if v == 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(v)
}

func makeCompletionRequest(req *Request) go_openai.ChatCompletionRequest {
	msgs := make([]go_openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, go_openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	return go_openai.ChatCompletionRequest{
		Model:            req.Model,
		Messages:         msgs,
		MaxTokens:        req.MaxTokens,
		Temperature:      nonZero(req.Temperature),
		TopP:             nonZero(req.TopP),
		FrequencyPenalty: float32(req.FrequencyPenalty),
		PresencePenalty:  float32(req.PresencePenalty),
	}
}

func (c *OpenAICompleter) Complete(ctx context.Context, req *Request) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, makeCompletionRequest(req))
	if err != nil {
		var apiErr *go_openai.APIError
		var reqErr *go_openai.RequestError
		switch {
		case errors.As(err, &apiErr):
			return "", withStatus(apiErr.HTTPStatusCode, err)
		case errors.As(err, &reqErr):
			return "", withStatus(reqErr.HTTPStatusCode, err)
		}
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}
