// Package prompts loads system prompts from a directory.
//
// Every regular file in the directory is a prompt named after the file.
// Files ending in .tmpl are Go templates rendered with the sprig functions.
package prompts

import (
	"bytes"
	"embed"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/Masterminds/sprig"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// DefaultName is the prompt new chats start with.
const DefaultName = "default_en.txt"

const templateSuffix = ".tmpl"

//go:embed defaults
var defaults embed.FS

var ErrNotFound = errors.New("prompt not found")

// TemplateData is passed to .tmpl prompts.
type TemplateData struct {
	Name string
	Now  time.Time
	Date string
}

type Library struct {
	dir string
	now func() time.Time
}

type Option func(*Library)

// WithClock overrides the time passed to templates.
func WithClock(now func() time.Time) Option {
	return func(l *Library) {
		l.now = now
	}
}

// NewLibrary returns a library over dir. The directory does not need to exist.
func NewLibrary(dir string, options ...Option) *Library {
	l := &Library{dir: dir, now: time.Now}
	for _, option := range options {
		option(l)
	}
	return l
}

// List returns the sorted prompt names. The default prompt is always listed.
func (l *Library) List() ([]string, error) {
	names := map[string]struct{}{DefaultName: {}}

	if l.dir != "" {
		entries, err := os.ReadDir(l.dir)
		if err != nil && !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "could not read prompts from %s", l.dir)
		}
		for _, e := range entries {
			if e.Type().IsRegular() && !strings.HasPrefix(e.Name(), ".") {
				names[e.Name()] = struct{}{}
			}
		}
	}

	ret := make([]string, 0, len(names))
	for n := range names {
		ret = append(ret, n)
	}
	sort.Strings(ret)
	return ret, nil
}

// Load returns the text of a prompt, rendering templates.
func (l *Library) Load(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", errors.Wrapf(ErrNotFound, "invalid prompt name %q", name)
	}

	data, err := l.read(name)
	if err != nil {
		return "", err
	}
	if !strings.HasSuffix(name, templateSuffix) {
		return string(data), nil
	}
	return l.render(name, string(data))
}

// Default returns the prompt new chats start with.
func (l *Library) Default() (string, error) {
	return l.Load(DefaultName)
}

func (l *Library) read(name string) ([]byte, error) {
	if l.dir != "" {
		data, err := os.ReadFile(filepath.Join(l.dir, name))
		if err == nil {
			return data, nil
		}
		if !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "could not read prompt %s", name)
		}
	}

	data, err := defaults.ReadFile("defaults/" + name)
	if err != nil {
		return nil, errors.Wrapf(ErrNotFound, "%s", name)
	}
	log.Debug().Str("prompt", name).Msg("using embedded prompt")
	return data, nil
}

func (l *Library) render(name string, text string) (string, error) {
	tmpl, err := template.New(name).Funcs(sprig.TxtFuncMap()).Parse(text)
	if err != nil {
		return "", errors.Wrapf(err, "could not parse prompt template %s", name)
	}

	now := l.now()
	var buf bytes.Buffer
	err = tmpl.Execute(&buf, TemplateData{
		Name: strings.TrimSuffix(name, templateSuffix),
		Now:  now,
		Date: now.Format("2006-01-02"),
	})
	if err != nil {
		return "", errors.Wrapf(err, "could not render prompt template %s", name)
	}
	return buf.String(), nil
}
