package completion

import (
	"github.com/go-go-golems/chattier/pkg/settings"
	"github.com/pkg/errors"
)

// New returns a gateway for the provider selected in cs.
func New(cs *settings.ClientSettings) (*Gateway, error) {
	var (
		c   Completer
		err error
	)
	switch cs.Provider {
	case settings.ProviderOpenAI, "":
		c, err = NewOpenAICompleter(cs)
	case settings.ProviderOllama:
		c, err = NewOllamaCompleter(cs)
	case settings.ProviderClaude:
		c, err = NewClaudeCompleter(cs)
	case settings.ProviderEcho:
		c = &EchoCompleter{}
	default:
		return nil, errors.Wrapf(ErrUnknownProvider, "%q", cs.Provider)
	}
	if err != nil {
		return nil, err
	}

	provider := string(cs.Provider)
	if provider == "" {
		provider = string(settings.ProviderOpenAI)
	}
	return NewGateway(provider, c), nil
}
