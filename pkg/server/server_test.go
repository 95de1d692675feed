package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-go-golems/chattier/pkg/chat"
	"github.com/go-go-golems/chattier/pkg/completion"
	"github.com/go-go-golems/chattier/pkg/conversation"
	"github.com/go-go-golems/chattier/pkg/prompts"
	"github.com/go-go-golems/chattier/pkg/storage"
	"github.com/go-go-golems/chattier/pkg/tokens"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	router  http.Handler
	store   *storage.FileStore
	session *chat.Session
	failing bool
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)

	words := tokens.CounterFunc(func(text string) (int, error) {
		return len(strings.Fields(text)), nil
	})
	library := chat.NewLibrary(store, func(string) (tokens.Counter, error) { return words, nil })

	env := &testEnv{store: store}
	echo := &completion.EchoCompleter{Prefix: "echo: "}
	gateway := completion.NewGateway("test", completion.CompleterFunc(
		func(ctx context.Context, req *completion.Request) (string, error) {
			if env.failing {
				return "", errors.New("connection refused")
			}
			return echo.Complete(ctx, req)
		}))

	env.session, err = chat.NewSession(library,
		chat.WithGenerator(gateway),
		chat.WithPrompts(prompts.NewLibrary(t.TempDir())),
	)
	require.NoError(t, err)
	env.router = New(env.session).Router()
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeView(t *testing.T, w *httptest.ResponseRecorder) *chat.View {
	t.Helper()
	var v chat.View
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return &v
}

func contents(v *chat.View) []string {
	ret := []string{}
	for _, m := range v.Messages {
		ret = append(ret, m.Content)
	}
	return ret
}

func TestSendAndView(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/conversation/messages", map[string]string{"content": "hello"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	v := decodeView(t, w)
	assert.Equal(t, []string{"hello", "echo: hello"}, contents(v))
	assert.Equal(t, "<p>echo: hello</p>\n", v.Messages[1].HTML)

	w = env.do(t, http.MethodGet, "/api/conversation", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"hello", "echo: hello"}, contents(decodeView(t, w)))
}

func TestCompletionFailureIsBadGateway(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/conversation/messages", map[string]string{"content": "one"})
	env.failing = true

	w := env.do(t, http.MethodPost, "/api/conversation/messages", map[string]string{"content": "two"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")

	w = env.do(t, http.MethodGet, "/api/conversation", nil)
	assert.Equal(t, []string{"one", "echo: one"}, contents(decodeView(t, w)))
}

func TestMessageOperations(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/conversation/messages", map[string]string{"content": "q"})

	w := env.do(t, http.MethodPut, "/api/conversation/messages/1", map[string]string{"content": "q edited"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []string{"q edited", "echo: q"}, contents(decodeView(t, w)))

	w = env.do(t, http.MethodPost, "/api/conversation/messages/2/regenerate", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	v := decodeView(t, w)
	assert.Equal(t, []string{"q edited", "echo: q edited"}, contents(v))
	assert.Equal(t, 2, v.Messages[1].Versions)
	assert.Equal(t, 1, v.Messages[1].Version)

	w = env.do(t, http.MethodPut, "/api/conversation/messages/2/version", map[string]int{"version": 0})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []string{"q edited", "echo: q"}, contents(decodeView(t, w)))

	w = env.do(t, http.MethodDelete, "/api/conversation/messages/2", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	v = decodeView(t, w)
	assert.Equal(t, []string{"q edited", "echo: q edited"}, contents(v))
	assert.Equal(t, 1, v.Messages[1].Versions)
}

func TestInvalidRequests(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/conversation/messages", map[string]string{"content": "q"})

	for name, tc := range map[string]struct {
		method string
		path   string
		body   any
		status int
	}{
		"root":          {http.MethodDelete, "/api/conversation/messages/0", nil, http.StatusBadRequest},
		"out of range":  {http.MethodDelete, "/api/conversation/messages/7", nil, http.StatusBadRequest},
		"not a number":  {http.MethodDelete, "/api/conversation/messages/x", nil, http.StatusBadRequest},
		"bad version":   {http.MethodPut, "/api/conversation/messages/1/version", map[string]int{"version": 3}, http.StatusBadRequest},
		"unknown field": {http.MethodPost, "/api/conversation/messages", map[string]string{"text": "q"}, http.StatusBadRequest},
		"bad params":    {http.MethodPut, "/api/conversation/params", map[string]float64{"temperature": 1.5}, http.StatusBadRequest},
		"missing chat":  {http.MethodGet, "/api/chats/42.json", nil, http.StatusNotFound},
		"bad chat id":   {http.MethodGet, "/api/chats/.hidden", nil, http.StatusBadRequest},
		"names file":    {http.MethodGet, "/api/chats/" + chat.RegistryID, nil, http.StatusBadRequest},
		"no model":      {http.MethodPut, "/api/conversation/model", map[string]string{}, http.StatusBadRequest},
		"bad prompt":    {http.MethodPut, "/api/conversation/system-prompt", map[string]string{"prompt": "nope.txt"}, http.StatusNotFound},
		"both prompts": {http.MethodPut, "/api/conversation/system-prompt",
			map[string]string{"prompt": "a", "content": "b"}, http.StatusBadRequest},
	} {
		t.Run(name, func(t *testing.T) {
			w := env.do(t, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.status, w.Code, w.Body.String())
		})
	}

	w := env.do(t, http.MethodGet, "/api/conversation", nil)
	assert.Equal(t, []string{"q", "echo: q"}, contents(decodeView(t, w)))
}

func TestParamsAndSystemPrompt(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPut, "/api/conversation/params", map[string]float64{"temperature": 0.2})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	v := decodeView(t, w)
	assert.InDelta(t, 0.2, v.Params.Temperature, 1e-9)
	assert.Equal(t, 512, v.Params.MaxTokens)

	w = env.do(t, http.MethodPut, "/api/conversation/model", map[string]string{"model": "gpt-4"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "gpt-4", decodeView(t, w).Model)

	w = env.do(t, http.MethodPut, "/api/conversation/system-prompt", map[string]string{"content": "Be brief."})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	v = decodeView(t, w)
	assert.Equal(t, "Be brief.", v.SystemPrompt)
	assert.Equal(t, 2+tokens.Overhead, v.SystemTokens)

	w = env.do(t, http.MethodPut, "/api/conversation/system-prompt", map[string]string{"prompt": prompts.DefaultName})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, decodeView(t, w).SystemPrompt, "helpful assistant")
}

func TestChats(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/chats", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	first := decodeView(t, w)

	w = env.do(t, http.MethodPost, "/api/chats", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	second := decodeView(t, w)
	require.NotEqual(t, first.ID, second.ID)

	w = env.do(t, http.MethodPut, "/api/chats/"+first.ID+"/name", map[string]string{"name": "Groceries"})
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	w = env.do(t, http.MethodGet, "/api/chats?q=groc", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Chats []chat.Entry `json:"chats"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Chats, 1)
	assert.Equal(t, first.ID, list.Chats[0].ID)
	assert.Equal(t, "Groceries", list.Chats[0].Name)

	w = env.do(t, http.MethodGet, "/api/chats/"+first.ID, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Groceries", decodeView(t, w).Name)

	w = env.do(t, http.MethodDelete, "/api/chats/"+first.ID, nil)
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	w = env.do(t, http.MethodGet, "/api/chats", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Chats, 1)
	assert.Equal(t, second.ID, list.Chats[0].ID)
}

func TestPromptsAndTooltips(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/prompts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), prompts.DefaultName)

	w = env.do(t, http.MethodGet, "/api/tooltips", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var tips map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tips))
	assert.NotEmpty(t, tips["temperature"])
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadGateway, statusFor(chat.ErrNoGenerator))
	assert.Equal(t, http.StatusNotFound, statusFor(errors.Wrap(storage.ErrNotFound, "x")))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
	assert.Equal(t, http.StatusBadRequest, statusFor(errors.Wrap(conversation.ErrInvalidDocument, "x")))
	assert.Equal(t, http.StatusBadGateway, statusFor(completion.NewFailure("openai", completion.ErrMissingAPIKey)))
}

func TestRunReconcilesExternalWrites(t *testing.T) {
	env := newTestEnv(t)
	s := New(env.session, WithWatcher(env.store))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, "127.0.0.1:0")
	}()
	defer func() {
		cancel()
		assert.NoError(t, <-done)
	}()

	c, err := conversation.New(
		conversation.WithCreated(1681000000),
		conversation.WithResolver(func(string) (tokens.Counter, error) {
			return tokens.CounterFunc(func(text string) (int, error) { return len(text), nil }), nil
		}),
	)
	require.NoError(t, err)
	data, err := conversation.Marshal(c)
	require.NoError(t, err)

	id := c.ID()
	path := filepath.Join(env.store.Dir(), id)
	require.Eventually(t, func() bool {
		// written again on every attempt in case the watcher was not up yet
		if err := os.WriteFile(path, data, 0o600); err != nil {
			return false
		}
		raw, err := os.ReadFile(filepath.Join(env.store.Dir(), chat.RegistryID))
		if err != nil {
			return false
		}
		names := map[string]string{}
		if err := json.Unmarshal(raw, &names); err != nil {
			return false
		}
		return names[id] == chat.DefaultName(id)
	}, 5*time.Second, 50*time.Millisecond)
}
