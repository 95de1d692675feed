package chat

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-go-golems/chattier/pkg/completion"
	"github.com/go-go-golems/chattier/pkg/conversation"
	"github.com/go-go-golems/chattier/pkg/prompts"
	"github.com/go-go-golems/chattier/pkg/settings"
	"github.com/go-go-golems/chattier/pkg/storage"
	"github.com/go-go-golems/chattier/pkg/tokens"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

var wordCounter = tokens.CounterFunc(func(text string) (int, error) {
	return len(strings.Fields(text)), nil
})

func wordResolver(string) (tokens.Counter, error) {
	return wordCounter, nil
}

type fakeGenerator struct {
	err   error
	calls [][]string
}

func (f *fakeGenerator) Generate(
	ctx context.Context,
	model string,
	window []*conversation.Node,
	p settings.GenerationParams,
) (string, error) {
	contents := make([]string, 0, len(window))
	for _, n := range window {
		contents = append(contents, n.Content)
	}
	f.calls = append(f.calls, contents)
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("reply %d", len(f.calls)), nil
}

func (f *fakeGenerator) lastCall() []string {
	if len(f.calls) == 0 {
		return nil
	}
	return f.calls[len(f.calls)-1]
}

// flakyStore fails every Put while failPut is set.
type flakyStore struct {
	storage.Store
	failPut bool
}

func (s *flakyStore) Put(ctx context.Context, id string, data []byte) error {
	if s.failPut {
		return &storage.Failure{Op: "put", ID: id, Err: errors.New("disk full")}
	}
	return s.Store.Put(ctx, id, data)
}

type fixture struct {
	store     *flakyStore
	fs        *storage.FileStore
	library   *Library
	generator *fakeGenerator
	session   *Session
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fs, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)

	f := &fixture{
		store:     &flakyStore{Store: fs},
		fs:        fs,
		generator: &fakeGenerator{},
		now:       time.Date(2023, 4, 9, 10, 0, 0, 0, time.UTC),
	}
	f.library = NewLibrary(f.store, wordResolver)

	promptDir := t.TempDir()
	f.session, err = NewSession(f.library,
		WithGenerator(f.generator),
		WithPrompts(prompts.NewLibrary(promptDir)),
		WithClock(func() time.Time { return f.now }),
	)
	require.NoError(t, err)
	return f
}

func (f *fixture) current(t *testing.T) *conversation.Conversation {
	t.Helper()
	c, err := f.session.Current(context.Background())
	require.NoError(t, err)
	return c
}

// stored loads the persisted state of the current chat.
func (f *fixture) stored(t *testing.T) *conversation.Document {
	t.Helper()
	c, err := f.library.Load(context.Background(), f.current(t).ID())
	require.NoError(t, err)
	return c.Document()
}

func pathContents(c *conversation.Conversation) []string {
	var ret []string
	for _, n := range c.SelectedPath(0) {
		ret = append(ret, n.Content)
	}
	return ret
}

var _ Generator = (*completion.Gateway)(nil)

// touch sets the modification time of a stored chat to a fixed point in the
// future plus hours, so equal hours give equal times.
func touch(t *testing.T, fs *storage.FileStore, id string, hours int) {
	t.Helper()
	ts := time.Date(2040, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(hours) * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(fs.Dir(), id), ts, ts))
}
