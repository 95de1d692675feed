// Package storage keeps opaque blobs under string ids.
//
// Conversations and the chat name registry are each stored as one resource
// and always written as a whole. Two backends exist: a directory with one
// file per resource and a single SQLite table.
package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrNotFound  = errors.New("resource not found")
	ErrInvalidID = errors.New("invalid resource id")
)

// Resource describes a stored blob.
type Resource struct {
	ID       string    `json:"id"`
	Modified time.Time `json:"modified"`
}

type Store interface {
	// Put replaces the resource atomically. Readers see the old or the new
	// content, never a mix.
	Put(ctx context.Context, id string, data []byte) error
	Get(ctx context.Context, id string) ([]byte, error)
	// List returns all resources ordered by id.
	List(ctx context.Context) ([]Resource, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// Failure wraps every error returned by a Store. Missing resources wrap
// ErrNotFound.
type Failure struct {
	Op  string
	ID  string
	Err error
}

func (f *Failure) Error() string {
	if f.ID == "" {
		return fmt.Sprintf("storage %s: %v", f.Op, f.Err)
	}
	return fmt.Sprintf("storage %s %s: %v", f.Op, f.ID, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

func fail(op, id string, err error) error {
	return &Failure{Op: op, ID: id, Err: err}
}

// ValidateID rejects ids that could not be used as a plain file name.
func ValidateID(id string) error {
	switch {
	case id == "", id == ".", id == "..":
		return ErrInvalidID
	case strings.HasPrefix(id, "."):
		return errors.Wrap(ErrInvalidID, "ids may not start with a dot")
	case strings.ContainsAny(id, `/\`+"\x00"):
		return errors.Wrap(ErrInvalidID, "ids may not contain path separators")
	}
	return nil
}

const (
	KindFS     = "fs"
	KindSQLite = "sqlite"
)

// SQLiteFileName is the database file used by the sqlite backend inside the
// data directory.
const SQLiteFileName = "chats.db"

// ChatsDir is the directory of the file backend inside the data directory.
const ChatsDir = "chats"

// Open returns the backend of the given kind inside the data directory.
func Open(kind string, dataDir string) (Store, error) {
	switch kind {
	case KindFS, "":
		return NewFileStore(filepath.Join(dataDir, ChatsDir))
	case KindSQLite:
		return NewSQLiteStore(dataDir)
	}
	return nil, errors.Errorf("unknown storage kind %q", kind)
}
