package chat

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/go-go-golems/chattier/pkg/conversation"
	"github.com/go-go-golems/chattier/pkg/storage"
	"github.com/go-go-golems/chattier/pkg/tokens"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/sahilm/fuzzy"
)

// Entry is a stored chat as shown in the chat list.
type Entry struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Created  int64     `json:"created"`
	Modified time.Time `json:"modified"`
}

// Library manages the stored chats and their display names.
type Library struct {
	store    storage.Store
	resolver tokens.Resolver
}

// NewLibrary returns a library over store. resolver binds the tokenizer of
// loaded chats; nil means tokens.ForModel.
func NewLibrary(store storage.Store, resolver tokens.Resolver) *Library {
	if resolver == nil {
		resolver = tokens.ForModel
	}
	return &Library{store: store, resolver: resolver}
}

func (l *Library) Store() storage.Store {
	return l.store
}

func (l *Library) Resolver() tokens.Resolver {
	return l.resolver
}

// List returns all chats, most recently modified first. The name registry
// is reconciled with the stored chats and saved when it changed.
func (l *Library) List(ctx context.Context) ([]Entry, error) {
	resources, err := l.store.List(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(resources))
	ids := make([]string, 0, len(resources))
	for _, r := range resources {
		created, err := conversation.ParseResourceID(r.ID)
		if err != nil {
			continue
		}
		entries = append(entries, Entry{ID: r.ID, Created: created, Modified: r.Modified})
		ids = append(ids, r.ID)
	}

	registry, err := l.Reconcile(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].Name = registry.Name(entries[i].ID)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Modified.Equal(entries[j].Modified) {
			return entries[i].Created > entries[j].Created
		}
		return entries[i].Modified.After(entries[j].Modified)
	})
	return entries, nil
}

// Reconcile loads the registry, aligns it with ids and saves it if needed.
func (l *Library) Reconcile(ctx context.Context, ids []string) (*Registry, error) {
	registry, err := LoadRegistry(ctx, l.store)
	if err != nil {
		return nil, err
	}
	if registry.Reconcile(ids) {
		if err := registry.Save(ctx, l.store); err != nil {
			return nil, err
		}
		log.Debug().Int("chats", registry.Len()).Msg("reconciled chat names")
	}
	return registry, nil
}

type entrySource []Entry

func (e entrySource) String(i int) string { return e[i].Name }
func (e entrySource) Len() int            { return len(e) }

// Filter returns the chats whose name fuzzily matches query, best match
// first. A blank query returns List.
func (l *Library) Filter(ctx context.Context, query string) ([]Entry, error) {
	entries, err := l.List(ctx)
	if err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return entries, nil
	}

	matches := fuzzy.FindFrom(query, entrySource(entries))
	ret := make([]Entry, 0, len(matches))
	for _, m := range matches {
		ret = append(ret, entries[m.Index])
	}
	return ret, nil
}

// Name returns the display name of a chat.
func (l *Library) Name(ctx context.Context, id string) (string, error) {
	registry, err := LoadRegistry(ctx, l.store)
	if err != nil {
		return "", err
	}
	return registry.Name(id), nil
}

// Rename sets the display name of a chat. Names are trimmed and blank names
// are ignored.
func (l *Library) Rename(ctx context.Context, id string, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	if _, err := l.store.Get(ctx, id); err != nil {
		return err
	}

	registry, err := LoadRegistry(ctx, l.store)
	if err != nil {
		return err
	}
	registry.Set(id, name)
	return registry.Save(ctx, l.store)
}

// Delete removes a chat and its display name.
func (l *Library) Delete(ctx context.Context, id string) error {
	if id == RegistryID {
		return errors.Wrap(storage.ErrInvalidID, "the name registry is not a chat")
	}
	if err := l.store.Delete(ctx, id); err != nil {
		return err
	}

	registry, err := LoadRegistry(ctx, l.store)
	if err != nil {
		return err
	}
	registry.Remove(id)
	return registry.Save(ctx, l.store)
}

// Exists reports whether a chat is stored under id.
func (l *Library) Exists(ctx context.Context, id string) (bool, error) {
	_, err := l.store.Get(ctx, id)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, storage.ErrNotFound):
		return false, nil
	}
	return false, err
}

// Save writes the whole conversation.
func (l *Library) Save(ctx context.Context, c *conversation.Conversation) error {
	data, err := conversation.Marshal(c)
	if err != nil {
		return err
	}
	return l.store.Put(ctx, c.ID(), data)
}

func (l *Library) Load(ctx context.Context, id string) (*conversation.Conversation, error) {
	if _, err := conversation.ParseResourceID(id); err != nil {
		return nil, errors.Wrap(storage.ErrInvalidID, err.Error())
	}
	data, err := l.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	c, err := conversation.Unmarshal(data, l.resolver)
	if err != nil {
		return nil, errors.Wrapf(err, "could not load chat %s", id)
	}
	return c, nil
}
