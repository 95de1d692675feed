package completion

import (
	"context"
	"net/url"
	"strings"

	"github.com/go-go-golems/chattier/pkg/settings"
	"github.com/ollama/ollama/api"
	"github.com/pkg/errors"
)

const DefaultOllamaHost = "http://localhost:11434"

type OllamaCompleter struct {
	client *api.Client
}

func NewOllamaCompleter(cs *settings.ClientSettings) (*OllamaCompleter, error) {
	host := cs.BaseURL(settings.ProviderOllama)
	if host == "" {
		host = DefaultOllamaHost
	}
	u, err := url.Parse(host)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid ollama host %q", host)
	}
	return &OllamaCompleter{client: api.NewClient(u, cs.Client())}, nil
}

// ollamaOptions maps the generation parameters onto ollama's model options.
func ollamaOptions(req *Request) map[string]any {
	return map[string]any{
		"temperature":       req.Temperature,
		"top_p":             req.TopP,
		"num_predict":       req.MaxTokens,
		"frequency_penalty": req.FrequencyPenalty,
		"presence_penalty":  req.PresencePenalty,
	}
}

func (c *OllamaCompleter) Complete(ctx context.Context, req *Request) (string, error) {
	msgs := make([]api.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, api.Message{Role: m.Role, Content: m.Content})
	}

	stream := false
	chatReq := &api.ChatRequest{
		Model:    req.Model,
		Messages: msgs,
		Stream:   &stream,
		Options:  ollamaOptions(req),
	}

	var reply strings.Builder
	done := false
	err := c.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		reply.WriteString(resp.Message.Content)
		done = done || resp.Done
		return nil
	})
	if err != nil {
		var statusErr api.StatusError
		if errors.As(err, &statusErr) {
			return "", withStatus(statusErr.StatusCode, err)
		}
		return "", err
	}
	if !done {
		return "", ErrEmptyResponse
	}
	return reply.String(), nil
}
