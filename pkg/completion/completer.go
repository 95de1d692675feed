// Package completion sends a conversation context to a chat completion
// provider and returns the reply text.
//
// A Gateway owns one Completer. Completers translate a Request into the
// provider's wire format and do a single blocking call; the Gateway turns any
// failure into a *CompletionFailure and normalizes the reply.
package completion

import (
	"context"

	"github.com/go-go-golems/chattier/pkg/conversation"
	"github.com/go-go-golems/chattier/pkg/settings"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is everything a provider needs for one completion.
type Request struct {
	Model            string    `json:"model"`
	Messages         []Message `json:"messages"`
	Temperature      float64   `json:"temperature"`
	TopP             float64   `json:"top_p"`
	MaxTokens        int       `json:"max_tokens"`
	FrequencyPenalty float64   `json:"frequency_penalty"`
	PresencePenalty  float64   `json:"presence_penalty"`
}

// NewRequest builds a request from an already truncated context.
func NewRequest(model string, window []*conversation.Node, p settings.GenerationParams) *Request {
	msgs := make([]Message, 0, len(window))
	for _, n := range window {
		msgs = append(msgs, Message{Role: string(n.Role), Content: n.Content})
	}
	return &Request{
		Model:            model,
		Messages:         msgs,
		Temperature:      p.Temperature,
		TopP:             p.TopP,
		MaxTokens:        p.MaxTokens,
		FrequencyPenalty: p.FrequencyPenalty,
		PresencePenalty:  p.PresencePenalty,
	}
}

// SystemPrompt splits the leading system messages from the rest, for
// providers that take the system prompt separately.
func (r *Request) SystemPrompt() (string, []Message) {
	system := ""
	i := 0
	for ; i < len(r.Messages) && r.Messages[i].Role == string(conversation.RoleSystem); i++ {
		if system != "" {
			system += "\n\n"
		}
		system += r.Messages[i].Content
	}
	return system, r.Messages[i:]
}

// Completer performs a single completion call.
type Completer interface {
	Complete(ctx context.Context, req *Request) (string, error)
}

type CompleterFunc func(ctx context.Context, req *Request) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, req *Request) (string, error) {
	return f(ctx, req)
}
