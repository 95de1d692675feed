package completion

import (
	"context"
	"strings"
	"time"

	"github.com/go-go-golems/chattier/pkg/conversation"
	"github.com/go-go-golems/chattier/pkg/settings"
	"github.com/rs/zerolog/log"
)

// Gateway sends conversation contexts to a single provider.
type Gateway struct {
	provider  string
	completer Completer
}

func NewGateway(provider string, completer Completer) *Gateway {
	return &Gateway{provider: provider, completer: completer}
}

func (g *Gateway) Provider() string {
	return g.provider
}

// Generate requests a reply for window, which must already be truncated,
// and returns it with surrounding whitespace removed. The call is made once;
// any error is returned as a *CompletionFailure.
func (g *Gateway) Generate(
	ctx context.Context,
	model string,
	window []*conversation.Node,
	p settings.GenerationParams,
) (string, error) {
	req := NewRequest(model, window, p)

	log.Debug().
		Str("provider", g.provider).
		Str("model", model).
		Int("messages", len(req.Messages)).
		Int("context_tokens", conversation.ContextTotal(window)).
		Msg("requesting completion")

	start := time.Now()
	text, err := g.completer.Complete(ctx, req)
	if err != nil {
		f := NewFailure(g.provider, err)
		log.Warn().Err(err).
			Str("provider", g.provider).
			Str("reason", f.Reason).
			Dur("elapsed", time.Since(start)).
			Msg("completion failed")
		return "", f
	}

	log.Debug().
		Str("provider", g.provider).
		Dur("elapsed", time.Since(start)).
		Int("length", len(text)).
		Msg("completion done")
	return strings.TrimSpace(text), nil
}
