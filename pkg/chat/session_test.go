package chat

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-go-golems/chattier/pkg/completion"
	"github.com/go-go-golems/chattier/pkg/conversation"
	"github.com/go-go-golems/chattier/pkg/prompts"
	"github.com/go-go-golems/chattier/pkg/settings"
	"github.com/go-go-golems/chattier/pkg/storage"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurrentStartsChatWhenNoneStored(t *testing.T) {
	f := newFixture(t)

	c := f.current(t)
	assert.Equal(t, f.now.Unix(), c.Created)
	assert.Equal(t, "gpt-3.5-turbo", c.Model)
	assert.Contains(t, c.Root().Content, "helpful assistant")

	exists, err := f.library.Exists(context.Background(), c.ID())
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestNewChatAvoidsTakenIDs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.session.NewChat(ctx)
	require.NoError(t, err)
	second, err := f.session.NewChat(ctx)
	require.NoError(t, err)

	assert.Equal(t, first.Created+1, second.Created)
	assert.Same(t, second, f.current(t))
}

func TestCurrentOpensMostRecentChat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.session.NewChat(ctx)
	require.NoError(t, err)
	_, err = f.session.NewChat(ctx)
	require.NoError(t, err)
	require.NoError(t, f.session.Send(ctx, "hello"))
	// make the first chat the most recently modified one
	touch(t, f.fs, first.ID(), 1)

	s, err := NewSession(f.library, WithGenerator(f.generator))
	require.NoError(t, err)
	c, err := s.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID(), c.ID())
}

func TestSendAddsPromptAndReply(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.session.Send(ctx, "hello there"))

	c := f.current(t)
	system := c.Root().Content
	assert.Equal(t, []string{system, "hello there", "reply 1"}, pathContents(c))
	assert.Equal(t, []string{system, "hello there"}, f.generator.lastCall())
	assert.Equal(t, conversation.RoleAssistant, c.SelectedPath(0)[2].Role)
	assert.Equal(t, c.Document(), f.stored(t))
}

func TestSendEmptyPromptOnlyGenerates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.session.Send(ctx, "q"))

	require.NoError(t, f.session.Send(ctx, ""))

	c := f.current(t)
	assert.Len(t, c.SelectedPath(0), 4)
	assert.Equal(t, "reply 2", c.SelectedPath(0)[3].Content)
}

func TestSendFailureLeavesChatUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.session.Send(ctx, "q1"))
	before := f.current(t).Document()

	f.generator.err = &completion.CompletionFailure{Provider: "fake", Reason: "rate limited", Err: errors.New("429")}
	err := f.session.Send(ctx, "q2")

	var failure *completion.CompletionFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, before, f.current(t).Document())
	assert.Equal(t, before, f.stored(t))
}

func TestSaveFailureRestoresChat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.session.Send(ctx, "q1"))
	before := f.current(t).Document()

	f.store.failPut = true
	err := f.session.Send(ctx, "q2")

	var sf *storage.Failure
	require.ErrorAs(t, err, &sf)
	assert.Equal(t, before, f.current(t).Document())

	f.store.failPut = false
	assert.Equal(t, before, f.stored(t))
}

func TestRegenerateAddsActiveSibling(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.session.Send(ctx, "q1"))
	c := f.current(t)
	_, err := c.AddMessage("q2", conversation.RoleUser, 0)
	require.NoError(t, err)
	require.Len(t, c.SelectedPath(0), 4)

	require.NoError(t, f.session.Regenerate(ctx, 2))

	system := c.Root().Content
	assert.Equal(t, []string{system, "q1"}, f.generator.lastCall())

	q1 := c.SelectedPath(0)[1]
	require.Len(t, q1.Children, 2)
	assert.Equal(t, 1, *q1.Selected)
	assert.Equal(t, []string{system, "q1", "reply 2"}, pathContents(c))

	old, ok := c.Tree.Get(q1.Children[0])
	require.True(t, ok)
	assert.Equal(t, "reply 1", old.Content)

	require.NoError(t, f.session.SelectVersion(ctx, 2, 0))
	assert.Equal(t, []string{system, "q1", "reply 1", "q2"}, pathContents(c))
	assert.Equal(t, c.Document(), f.stored(t))
}

func TestRegenerateRejectsInvalidPositions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.session.Send(ctx, "q1"))

	require.ErrorIs(t, f.session.Regenerate(ctx, 0), conversation.ErrRootImmutable)
	require.ErrorIs(t, f.session.Regenerate(ctx, 3), conversation.ErrInvalidPosition)
	assert.Len(t, f.generator.calls, 1)
}

func TestEditAndDeletePersist(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.session.Send(ctx, "q1"))

	require.NoError(t, f.session.Edit(ctx, 1, "q1 with more words"))
	c := f.current(t)
	assert.Equal(t, "q1 with more words", c.SelectedPath(0)[1].Content)
	assert.Equal(t, c.Document(), f.stored(t))

	require.NoError(t, f.session.DeleteMessage(ctx, 1))
	assert.Len(t, c.SelectedPath(0), 1)
	assert.Equal(t, c.Document(), f.stored(t))

	require.ErrorIs(t, f.session.DeleteMessage(ctx, 1), conversation.ErrInvalidPosition)
}

func TestParamsAndModel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.current(t)

	p := c.Params
	p.MaxTokens = 0
	require.ErrorIs(t, f.session.SetParams(ctx, p), settings.ErrInvalidParams)
	assert.Equal(t, 512, c.Params.MaxTokens)

	p.MaxTokens = 256
	p.SetContextWindow(4096)
	require.NoError(t, f.session.SetParams(ctx, p))
	assert.Equal(t, 256, f.stored(t).MaxTokens)
	assert.Equal(t, 3840, f.stored(t).MaxContextTokens)

	require.NoError(t, f.session.SetModel(ctx, "gpt-4"))
	assert.Equal(t, "gpt-4", f.stored(t).Model)
}

func TestLoadPrompt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pirate.txt"), []byte("Talk like a pirate."), 0o600))
	f.session.prompts = prompts.NewLibrary(dir)

	require.NoError(t, f.session.LoadPrompt(ctx, "pirate.txt"))
	c := f.current(t)
	assert.Equal(t, "Talk like a pirate.", c.Root().Content)
	assert.Equal(t, 4+5, c.Root().Tokens)

	require.ErrorIs(t, f.session.LoadPrompt(ctx, "missing.txt"), prompts.ErrNotFound)
	assert.Equal(t, "Talk like a pirate.", c.Root().Content)
}

func TestDeleteCurrentChat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.current(t)

	require.NoError(t, f.session.DeleteChat(ctx, c.ID()))
	exists, err := f.library.Exists(ctx, c.ID())
	require.NoError(t, err)
	assert.False(t, exists)

	f.now = f.now.Add(time.Minute)
	next := f.current(t)
	assert.NotEqual(t, c.ID(), next.ID())
}

func TestNoGenerator(t *testing.T) {
	f := newFixture(t)
	s, err := NewSession(f.library)
	require.NoError(t, err)

	require.ErrorIs(t, s.Send(context.Background(), "hi"), ErrNoGenerator)
}
