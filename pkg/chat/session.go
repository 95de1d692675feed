// Package chat connects the conversation tree to storage, prompts and the
// completion gateway. A Session is what a user interface drives: it owns the
// current chat and persists it after every change.
package chat

import (
	"context"
	"time"

	"github.com/go-go-golems/chattier/pkg/conversation"
	"github.com/go-go-golems/chattier/pkg/prompts"
	"github.com/go-go-golems/chattier/pkg/settings"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Generator produces a reply for a truncated context. *completion.Gateway
// implements it.
type Generator interface {
	Generate(ctx context.Context, model string, window []*conversation.Node, p settings.GenerationParams) (string, error)
}

var ErrNoGenerator = errors.New("no completion provider configured")

type Session struct {
	library   *Library
	generator Generator
	prompts   *prompts.Library
	defaults  settings.Defaults
	now       func() time.Time

	current *conversation.Conversation
}

type SessionOption func(*Session)

func WithGenerator(g Generator) SessionOption {
	return func(s *Session) {
		s.generator = g
	}
}

func WithPrompts(p *prompts.Library) SessionOption {
	return func(s *Session) {
		s.prompts = p
	}
}

// WithDefaults sets the model and parameters of new chats.
func WithDefaults(d settings.Defaults) SessionOption {
	return func(s *Session) {
		s.defaults = d
	}
}

func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) {
		s.now = now
	}
}

func NewSession(library *Library, options ...SessionOption) (*Session, error) {
	d, err := settings.NewDefaults()
	if err != nil {
		return nil, err
	}
	s := &Session{
		library:  library,
		defaults: *d,
		now:      time.Now,
	}
	for _, option := range options {
		option(s)
	}
	if s.prompts == nil {
		s.prompts = prompts.NewLibrary("")
	}
	return s, nil
}

func (s *Session) Library() *Library {
	return s.library
}

func (s *Session) Prompts() *prompts.Library {
	return s.prompts
}

// Current returns the open chat. When none is open the most recently
// modified chat is opened, or a new one is started if there is none.
func (s *Session) Current(ctx context.Context) (*conversation.Conversation, error) {
	if s.current != nil {
		return s.current, nil
	}

	entries, err := s.library.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return s.NewChat(ctx)
	}
	if err := s.Open(ctx, entries[0].ID); err != nil {
		return nil, err
	}
	return s.current, nil
}

// Open makes the stored chat id the current one.
func (s *Session) Open(ctx context.Context, id string) error {
	c, err := s.library.Load(ctx, id)
	if err != nil {
		return err
	}
	s.current = c
	log.Debug().Str("chat", id).Msg("opened chat")
	return nil
}

// NewChat starts and saves a chat with the default system prompt.
func (s *Session) NewChat(ctx context.Context) (*conversation.Conversation, error) {
	system, err := s.prompts.Default()
	if err != nil {
		return nil, err
	}

	created := s.now().Unix()
	for {
		exists, err := s.library.Exists(ctx, conversation.ResourceID(created))
		if err != nil {
			return nil, err
		}
		if !exists {
			break
		}
		created++
	}

	c, err := conversation.New(
		conversation.WithCreated(created),
		conversation.WithModel(s.defaults.Model),
		conversation.WithParams(s.defaults.Params.Clone()),
		conversation.WithResolver(s.library.Resolver()),
		conversation.WithSystemPrompt(system),
	)
	if err != nil {
		return nil, err
	}
	if err := s.library.Save(ctx, c); err != nil {
		return nil, err
	}

	s.current = c
	log.Info().Str("chat", c.ID()).Str("model", c.Model).Msg("started chat")
	return c, nil
}

// mutate runs fn on the current chat and saves it. If fn or the save fails,
// the chat is put back into the state it had before.
func (s *Session) mutate(ctx context.Context, fn func(c *conversation.Conversation) error) error {
	c, err := s.Current(ctx)
	if err != nil {
		return err
	}

	snapshot := c.Snapshot()
	if err := fn(c); err != nil {
		c.Restore(snapshot)
		return err
	}
	if err := s.library.Save(ctx, c); err != nil {
		c.Restore(snapshot)
		return err
	}
	return nil
}

func (s *Session) generate(ctx context.Context, c *conversation.Conversation, limit int) (string, error) {
	if s.generator == nil {
		return "", ErrNoGenerator
	}
	return s.generator.Generate(ctx, c.Model, c.ContextWindow(limit), c.Params)
}

// Send adds prompt as a user message, unless it is empty, and appends the
// generated reply. Nothing is kept if the completion fails.
func (s *Session) Send(ctx context.Context, prompt string) error {
	return s.mutate(ctx, func(c *conversation.Conversation) error {
		if len(prompt) > 0 {
			if _, err := c.AddMessage(prompt, conversation.RoleUser, 0); err != nil {
				return err
			}
		}
		reply, err := s.generate(ctx, c, 0)
		if err != nil {
			return err
		}
		_, err = c.AddMessage(reply, conversation.RoleAssistant, 0)
		return err
	})
}

// Regenerate generates a new version of the message at position at from the
// messages before it. The new version becomes the active one; the previous
// versions are kept.
func (s *Session) Regenerate(ctx context.Context, at int) error {
	return s.mutate(ctx, func(c *conversation.Conversation) error {
		if _, _, err := c.Versions(at); err != nil {
			return err
		}
		reply, err := s.generate(ctx, c, at)
		if err != nil {
			return err
		}
		_, err = c.AddMessage(reply, conversation.RoleAssistant, at)
		return err
	})
}

func (s *Session) Edit(ctx context.Context, at int, content string) error {
	return s.mutate(ctx, func(c *conversation.Conversation) error {
		return c.EditMessage(at, content)
	})
}

func (s *Session) DeleteMessage(ctx context.Context, at int) error {
	return s.mutate(ctx, func(c *conversation.Conversation) error {
		return c.DeleteMessage(at)
	})
}

func (s *Session) SelectVersion(ctx context.Context, at int, version int) error {
	return s.mutate(ctx, func(c *conversation.Conversation) error {
		return c.SelectVersion(at, version)
	})
}

func (s *Session) SetParams(ctx context.Context, p settings.GenerationParams) error {
	return s.mutate(ctx, func(c *conversation.Conversation) error {
		return c.SetParams(p)
	})
}

func (s *Session) SetModel(ctx context.Context, model string) error {
	return s.mutate(ctx, func(c *conversation.Conversation) error {
		return c.SetModel(model)
	})
}

func (s *Session) SetSystemPrompt(ctx context.Context, content string) error {
	return s.mutate(ctx, func(c *conversation.Conversation) error {
		return c.SetSystemPrompt(content)
	})
}

// LoadPrompt replaces the system prompt with a prompt from the library.
func (s *Session) LoadPrompt(ctx context.Context, name string) error {
	text, err := s.prompts.Load(name)
	if err != nil {
		return err
	}
	return s.SetSystemPrompt(ctx, text)
}

// DeleteChat removes a stored chat. Deleting the current chat closes it.
func (s *Session) DeleteChat(ctx context.Context, id string) error {
	if err := s.library.Delete(ctx, id); err != nil {
		return err
	}
	if s.current != nil && s.current.ID() == id {
		s.current = nil
	}
	return nil
}

func (s *Session) RenameChat(ctx context.Context, id string, name string) error {
	return s.library.Rename(ctx, id, name)
}

// View renders the current chat.
func (s *Session) View(ctx context.Context) (*View, error) {
	c, err := s.Current(ctx)
	if err != nil {
		return nil, err
	}
	name, err := s.library.Name(ctx, c.ID())
	if err != nil {
		return nil, err
	}
	return NewView(c, name)
}
