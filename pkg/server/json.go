package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-go-golems/chattier/pkg/chat"
	"github.com/go-go-golems/chattier/pkg/completion"
	"github.com/go-go-golems/chattier/pkg/conversation"
	"github.com/go-go-golems/chattier/pkg/prompts"
	"github.com/go-go-golems/chattier/pkg/settings"
	"github.com/go-go-golems/chattier/pkg/storage"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const maxBodySize = 1 << 20

var errBadRequest = errors.New("bad request")

type errResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("could not encode response")
	}
}

func readJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Wrapf(errBadRequest, "invalid body: %v", err)
	}
	return nil
}

// statusFor maps the errors of the chat packages to HTTP status codes.
func statusFor(err error) int {
	var failure *completion.CompletionFailure
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, conversation.ErrInvalidPosition),
		errors.Is(err, conversation.ErrInvalidVersion),
		errors.Is(err, conversation.ErrRootImmutable),
		errors.Is(err, conversation.ErrInvalidRole),
		errors.Is(err, conversation.ErrInvalidDocument),
		errors.Is(err, settings.ErrInvalidParams),
		errors.Is(err, storage.ErrInvalidID):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound),
		errors.Is(err, prompts.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &failure),
		errors.Is(err, chat.ErrNoGenerator):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	} else {
		log.Debug().Err(err).Str("path", r.URL.Path).Msg("request rejected")
	}
	writeJSON(w, status, errResponse{Error: err.Error()})
}
