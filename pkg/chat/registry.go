package chat

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-go-golems/chattier/pkg/conversation"
	"github.com/go-go-golems/chattier/pkg/storage"
	"github.com/pkg/errors"
)

// RegistryID is the resource holding the display names of all chats.
const RegistryID = "chat_names.json"

const nameLayout = "2006-01-02 15:04:05"

// DefaultName is the display name of a chat that was never renamed: its
// creation time in local time.
func DefaultName(id string) string {
	created, err := conversation.ParseResourceID(id)
	if err != nil {
		return id
	}
	return time.Unix(created, 0).Format(nameLayout)
}

// Registry maps resource ids to display names. It is stored as a flat JSON
// object next to the chats.
type Registry struct {
	names map[string]string
}

func NewRegistry() *Registry {
	return &Registry{names: map[string]string{}}
}

// LoadRegistry reads the registry from store. A missing registry is empty.
func LoadRegistry(ctx context.Context, store storage.Store) (*Registry, error) {
	data, err := store.Get(ctx, RegistryID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return NewRegistry(), nil
		}
		return nil, err
	}

	r := NewRegistry()
	if err := json.Unmarshal(data, &r.names); err != nil {
		return nil, errors.Wrap(err, "could not decode chat names")
	}
	if r.names == nil {
		r.names = map[string]string{}
	}
	return r, nil
}

func (r *Registry) Save(ctx context.Context, store storage.Store) error {
	data, err := json.Marshal(r.names)
	if err != nil {
		return errors.Wrap(err, "could not encode chat names")
	}
	return store.Put(ctx, RegistryID, data)
}

// Name returns the display name of id, falling back to DefaultName.
func (r *Registry) Name(id string) string {
	if name, ok := r.names[id]; ok {
		return name
	}
	return DefaultName(id)
}

func (r *Registry) Set(id string, name string) {
	r.names[id] = name
}

func (r *Registry) Remove(id string) {
	delete(r.names, id)
}

func (r *Registry) Len() int {
	return len(r.names)
}

// Reconcile makes the registry hold exactly ids: unknown ids get their
// default name and names of ids that are gone are dropped. It reports whether
// anything changed.
func (r *Registry) Reconcile(ids []string) bool {
	changed := false
	present := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		present[id] = struct{}{}
		if _, ok := r.names[id]; !ok {
			r.names[id] = DefaultName(id)
			changed = true
		}
	}
	for id := range r.names {
		if _, ok := present[id]; !ok {
			delete(r.names, id)
			changed = true
		}
	}
	return changed
}
