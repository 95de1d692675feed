package storage

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// FileStore keeps each resource in its own file. Files are private to the
// user: 0600 in a 0700 directory.
type FileStore struct {
	dir string
}

var _ Store = (*FileStore)(nil)

func NewFileStore(dir string) (*FileStore, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fail("open", "", err)
	}
	if err := os.MkdirAll(abs, 0o700); err != nil {
		return nil, fail("open", "", err)
	}
	return &FileStore{dir: abs}, nil
}

func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) path(op, id string) (string, error) {
	if err := ValidateID(id); err != nil {
		return "", fail(op, id, err)
	}
	return filepath.Join(s.dir, id), nil
}

// Put writes to a temporary file next to the target and renames it into place.
func (s *FileStore) Put(ctx context.Context, id string, data []byte) error {
	p, err := s.path("put", id)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fail("put", id, err)
	}

	tmpName := filepath.Join(s.dir, ".tmp-"+uuid.NewString())
	tmp, err := os.OpenFile(tmpName, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fail("put", id, err)
	}

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fail("put", id, errors.Wrap(err, "write temp"))
	}
	if err := tmp.Sync(); err != nil {
		return fail("put", id, errors.Wrap(err, "fsync"))
	}
	if err := tmp.Close(); err != nil {
		return fail("put", id, errors.Wrap(err, "close temp"))
	}
	if err := os.Rename(tmpName, p); err != nil {
		return fail("put", id, errors.Wrap(err, "rename"))
	}
	success = true

	log.Debug().Str("id", id).Int("bytes", len(data)).Msg("stored resource")
	return nil
}

func (s *FileStore) Get(ctx context.Context, id string) ([]byte, error) {
	p, err := s.path("get", id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fail("get", id, ErrNotFound)
		}
		return nil, fail("get", id, err)
	}
	return data, nil
}

func (s *FileStore) List(ctx context.Context) ([]Resource, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fail("list", "", err)
	}

	ret := make([]Resource, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// removed between ReadDir and Info
			if os.IsNotExist(err) {
				continue
			}
			return nil, fail("list", e.Name(), err)
		}
		ret = append(ret, Resource{ID: e.Name(), Modified: info.ModTime()})
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].ID < ret[j].ID })
	return ret, nil
}

func (s *FileStore) Delete(ctx context.Context, id string) error {
	p, err := s.path("delete", id)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if os.IsNotExist(err) {
			return fail("delete", id, ErrNotFound)
		}
		return fail("delete", id, err)
	}
	log.Debug().Str("id", id).Msg("deleted resource")
	return nil
}

func (s *FileStore) Close() error {
	return nil
}

type EventKind string

const (
	EventWritten EventKind = "written"
	EventRemoved EventKind = "removed"
)

// Event reports a change of a resource made by any process.
type Event struct {
	ID   string
	Kind EventKind
}

// Watch calls fn for every change to a resource in the store directory until
// ctx is cancelled. Temporary files of in-flight writes are not reported.
func (s *FileStore) Watch(ctx context.Context, fn func(Event)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fail("watch", "", err)
	}
	defer w.Close()

	if err := w.Add(s.dir); err != nil {
		return fail("watch", "", err)
	}
	log.Debug().Str("dir", s.dir).Msg("watching store")

	for {
		select {
		case <-ctx.Done():
			return nil

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Str("dir", s.dir).Msg("watch error")

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			id := filepath.Base(ev.Name)
			if ValidateID(id) != nil {
				continue
			}
			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				fn(Event{ID: id, Kind: EventWritten})
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				fn(Event{ID: id, Kind: EventRemoved})
			}
		}
	}
}
