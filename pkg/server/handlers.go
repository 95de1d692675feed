package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-go-golems/chattier/pkg/prompts"
	"github.com/go-go-golems/chattier/pkg/settings"
	"github.com/pkg/errors"
)

type contentRequest struct {
	Content string `json:"content"`
}

type nameRequest struct {
	Name string `json:"name"`
}

type versionRequest struct {
	Version int `json:"version"`
}

type modelRequest struct {
	Model string `json:"model"`
}

// systemPromptRequest sets the system prompt either to Content or to the
// library prompt named Prompt.
type systemPromptRequest struct {
	Content *string `json:"content"`
	Prompt  string  `json:"prompt"`
}

func position(r *http.Request) (int, error) {
	at, err := strconv.Atoi(chi.URLParam(r, "pos"))
	if err != nil {
		return 0, errors.Wrapf(errBadRequest, "invalid position %q", chi.URLParam(r, "pos"))
	}
	return at, nil
}

// respondView writes the current chat after a successful change.
func (s *Server) respondView(w http.ResponseWriter, r *http.Request, status int) {
	v, err := s.session.View(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, status, v)
}

// mutate runs fn under the session lock and answers with the current chat.
func (s *Server) mutate(w http.ResponseWriter, r *http.Request, fn func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := fn(); err != nil {
		writeError(w, r, err)
		return
	}
	s.respondView(w, r, http.StatusOK)
}

func (s *Server) listChats(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.session.Library().Filter(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chats": entries})
}

func (s *Server) newChat(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.session.NewChat(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	s.respondView(w, r, http.StatusCreated)
}

func (s *Server) openChat(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func() error {
		return s.session.Open(r.Context(), chi.URLParam(r, "id"))
	})
}

func (s *Server) renameChat(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.session.RenameChat(r.Context(), chi.URLParam(r, "id"), req.Name); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteChat(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.session.DeleteChat(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) view(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.respondView(w, r, http.StatusOK)
}

func (s *Server) send(w http.ResponseWriter, r *http.Request) {
	var req contentRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	s.mutate(w, r, func() error {
		return s.session.Send(r.Context(), req.Content)
	})
}

func (s *Server) editMessage(w http.ResponseWriter, r *http.Request) {
	at, err := position(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req contentRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	s.mutate(w, r, func() error {
		return s.session.Edit(r.Context(), at, req.Content)
	})
}

func (s *Server) deleteMessage(w http.ResponseWriter, r *http.Request) {
	at, err := position(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.mutate(w, r, func() error {
		return s.session.DeleteMessage(r.Context(), at)
	})
}

func (s *Server) regenerate(w http.ResponseWriter, r *http.Request) {
	at, err := position(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.mutate(w, r, func() error {
		return s.session.Regenerate(r.Context(), at)
	})
}

func (s *Server) selectVersion(w http.ResponseWriter, r *http.Request) {
	at, err := position(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req versionRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	s.mutate(w, r, func() error {
		return s.session.SelectVersion(r.Context(), at, req.Version)
	})
}

// setParams applies a partial update: fields missing from the body keep
// their current value.
func (s *Server) setParams(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func() error {
		c, err := s.session.Current(r.Context())
		if err != nil {
			return err
		}
		p := c.Params
		if err := readJSON(r, &p); err != nil {
			return err
		}
		return s.session.SetParams(r.Context(), p)
	})
}

func (s *Server) setModel(w http.ResponseWriter, r *http.Request) {
	var req modelRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Model == "" {
		writeError(w, r, errors.Wrap(errBadRequest, "model is required"))
		return
	}
	s.mutate(w, r, func() error {
		return s.session.SetModel(r.Context(), req.Model)
	})
}

func (s *Server) setSystemPrompt(w http.ResponseWriter, r *http.Request) {
	var req systemPromptRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if (req.Content == nil) == (req.Prompt == "") {
		writeError(w, r, errors.Wrap(errBadRequest, "exactly one of content and prompt is required"))
		return
	}
	s.mutate(w, r, func() error {
		if req.Content != nil {
			return s.session.SetSystemPrompt(r.Context(), *req.Content)
		}
		return s.session.LoadPrompt(r.Context(), req.Prompt)
	})
}

func (s *Server) listPrompts(w http.ResponseWriter, r *http.Request) {
	names, err := s.session.Prompts().List()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"prompts": names, "default": prompts.DefaultName})
}

func (s *Server) tooltips(w http.ResponseWriter, r *http.Request) {
	tips, err := settings.Tooltips()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tips)
}
