// Package cmds holds the chattier subcommands.
package cmds

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-go-golems/chattier/pkg/chat"
	"github.com/go-go-golems/chattier/pkg/completion"
	"github.com/go-go-golems/chattier/pkg/conversation"
	"github.com/go-go-golems/chattier/pkg/prompts"
	"github.com/go-go-golems/chattier/pkg/settings"
	"github.com/go-go-golems/chattier/pkg/storage"
	"github.com/go-go-golems/chattier/pkg/tokens"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	DefaultOllamaHost        = completion.DefaultOllamaHost
	DefaultTimeout           = 60 * time.Second
	DefaultTokenizerFallback = tokens.DefaultFallbackEncoding
)

// App is everything a command needs to work on the stored chats.
type App struct {
	Store   storage.Store
	Library *chat.Library
	Session *chat.Session
}

// DataDir returns the configured data directory, ~/.chattier by default.
func DataDir() (string, error) {
	if dir := viper.GetString("data-dir"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "could not find home directory")
	}
	return filepath.Join(home, ".chattier"), nil
}

// ClientSettings reads the provider configuration from viper.
func ClientSettings() *settings.ClientSettings {
	cs := settings.NewClientSettings()
	if p := viper.GetString("provider"); p != "" {
		cs.Provider = settings.Provider(p)
	}
	set := func(m map[string]string, p settings.Provider, key string) {
		if v := viper.GetString(key); v != "" {
			m[string(p)] = v
		}
	}
	set(cs.APIKeys, settings.ProviderOpenAI, "openai-api-key")
	set(cs.BaseURLs, settings.ProviderOpenAI, "openai-base-url")
	set(cs.APIKeys, settings.ProviderClaude, "claude-api-key")
	set(cs.BaseURLs, settings.ProviderClaude, "claude-base-url")
	set(cs.BaseURLs, settings.ProviderOllama, "ollama-host")
	if timeout := viper.GetDuration("timeout"); timeout > 0 {
		cs.Timeout = &timeout
	}
	return cs
}

// lazyGenerator creates the gateway on first use, so that commands that
// never complete do not need a configured provider.
type lazyGenerator struct {
	cs      *settings.ClientSettings
	once    sync.Once
	gateway *completion.Gateway
	err     error
}

func (g *lazyGenerator) Generate(
	ctx context.Context,
	model string,
	window []*conversation.Node,
	p settings.GenerationParams,
) (string, error) {
	g.once.Do(func() {
		g.gateway, g.err = completion.New(g.cs)
	})
	if g.err != nil {
		provider := string(g.cs.Provider)
		if provider == "" {
			provider = string(settings.ProviderOpenAI)
		}
		return "", completion.NewFailure(provider, g.err)
	}
	return g.gateway.Generate(ctx, model, window, p)
}

// NewApp opens the configured store and builds a session over it.
func NewApp() (*App, error) {
	dataDir, err := DataDir()
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(viper.GetString("storage"), dataDir)
	if err != nil {
		return nil, err
	}

	library := chat.NewLibrary(store, tokens.NewResolver(viper.GetString("tokenizer-fallback")))

	defaults, err := settings.NewDefaults()
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	if model := viper.GetString("model"); model != "" {
		defaults.Model = model
	}

	promptsDir := viper.GetString("prompts-dir")
	if promptsDir == "" {
		promptsDir = filepath.Join(dataDir, "prompts")
	}

	session, err := chat.NewSession(library,
		chat.WithGenerator(&lazyGenerator{cs: ClientSettings()}),
		chat.WithPrompts(prompts.NewLibrary(promptsDir)),
		chat.WithDefaults(*defaults),
	)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	log.Debug().
		Str("data_dir", dataDir).
		Str("storage", viper.GetString("storage")).
		Str("provider", viper.GetString("provider")).
		Msg("opened chat store")

	return &App{Store: store, Library: library, Session: session}, nil
}

func (a *App) Close() error {
	return a.Store.Close()
}

// runWithApp runs fn with an App that is closed afterwards.
func runWithApp(fn func(app *App) error) error {
	app, err := NewApp()
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Warn().Err(err).Msg("could not close store")
		}
	}()
	return fn(app)
}

func withApp(fn func(cmd *cobra.Command, args []string, app *App) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		return runWithApp(func(app *App) error {
			return fn(cmd, args, app)
		})
	}
}

// openChat makes the chat given by --chat current, if set.
func openChat(cmd *cobra.Command, app *App) error {
	id, _ := cmd.Flags().GetString("chat")
	if id == "" {
		return nil
	}
	return app.Session.Open(cmd.Context(), id)
}

func addChatFlag(cmd *cobra.Command) {
	cmd.Flags().String("chat", "", "Chat to work on (default: the most recently modified one)")
}
