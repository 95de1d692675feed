package prompts

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePrompt(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestListIncludesDefault(t *testing.T) {
	dir := t.TempDir()
	writePrompt(t, dir, "pirate.txt", "Talk like a pirate.")
	writePrompt(t, dir, ".hidden", "x")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "drafts"), 0o700))

	names, err := NewLibrary(dir).List()
	require.NoError(t, err)
	assert.Equal(t, []string{"default_en.txt", "pirate.txt"}, names)

	names, err = NewLibrary(filepath.Join(dir, "missing")).List()
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultName}, names)
}

func TestLoadPrefersDirectory(t *testing.T) {
	dir := t.TempDir()
	l := NewLibrary(dir)

	embedded, err := l.Default()
	require.NoError(t, err)
	assert.Contains(t, embedded, "helpful assistant")

	writePrompt(t, dir, DefaultName, "Be rude.")
	text, err := l.Default()
	require.NoError(t, err)
	assert.Equal(t, "Be rude.", text)
}

func TestLoadRendersTemplates(t *testing.T) {
	dir := t.TempDir()
	writePrompt(t, dir, "dated.tmpl", `Today is {{ .Date }}. You are {{ .Name | upper }}.`)
	now := time.Date(2023, 4, 9, 10, 0, 0, 0, time.UTC)

	text, err := NewLibrary(dir, WithClock(func() time.Time { return now })).Load("dated.tmpl")
	require.NoError(t, err)
	assert.Equal(t, "Today is 2023-04-09. You are DATED.", text)

	writePrompt(t, dir, "broken.tmpl", `{{ .Date `)
	_, err = NewLibrary(dir).Load("broken.tmpl")
	require.Error(t, err)
}

func TestLoadRejectsUnknownNames(t *testing.T) {
	l := NewLibrary(t.TempDir())

	for _, name := range []string{"missing.txt", "../etc/passwd", "", ".hidden"} {
		_, err := l.Load(name)
		require.ErrorIs(t, err, ErrNotFound, name)
	}
}
