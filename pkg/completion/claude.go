package completion

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/go-go-golems/chattier/pkg/settings"
	"github.com/pkg/errors"
)

const DefaultClaudeBaseURL = "https://api.anthropic.com"

// ClaudeCompleter talks to the Anthropic messages API. The API has no
// frequency or presence penalties, those parameters are ignored.
type ClaudeCompleter struct {
	client anthropic.Client
}

func NewClaudeCompleter(cs *settings.ClientSettings) (*ClaudeCompleter, error) {
	apiKey := cs.APIKey(settings.ProviderClaude)
	if apiKey == "" {
		return nil, errors.Wrap(ErrMissingAPIKey, "claude")
	}
	baseURL := cs.BaseURL(settings.ProviderClaude)
	if baseURL == "" {
		baseURL = DefaultClaudeBaseURL
	}

	client := anthropic.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(cs.Client()),
		option.WithMaxRetries(0),
	)
	return &ClaudeCompleter{client: client}, nil
}

func makeMessageParams(req *Request) anthropic.MessageNewParams {
	system, rest := req.SystemPrompt()

	msgs := make([]anthropic.MessageParam, 0, len(rest))
	for _, m := range rest {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == "assistant" {
			msgs = append(msgs, anthropic.NewAssistantMessage(block))
		} else {
			msgs = append(msgs, anthropic.NewUserMessage(block))
		}
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(req.Model),
		MaxTokens:   int64(req.MaxTokens),
		Messages:    msgs,
		Temperature: anthropic.Float(req.Temperature),
	}
	// Some models reject requests setting both temperature and top_p.
	if req.TopP != 1 {
		params.TopP = anthropic.Float(req.TopP)
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	return params
}

func (c *ClaudeCompleter) Complete(ctx context.Context, req *Request) (string, error) {
	msg, err := c.client.Messages.New(ctx, makeMessageParams(req))
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", withStatus(apiErr.StatusCode, err)
		}
		return "", err
	}

	var texts []string
	for _, block := range msg.Content {
		if block.Type == "text" {
			texts = append(texts, block.Text)
		}
	}
	if len(texts) == 0 {
		return "", ErrEmptyResponse
	}
	return strings.Join(texts, ""), nil
}
