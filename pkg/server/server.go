// Package server exposes a chat session as a JSON API.
package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-go-golems/chattier/pkg/chat"
	"github.com/go-go-golems/chattier/pkg/storage"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// Server serialises all requests on a single session.
type Server struct {
	mu      sync.Mutex
	session *chat.Session
	watcher *storage.FileStore
}

type Option func(*Server)

// WithWatcher reconciles the chat names whenever chats are written or
// removed in the directory of store by another process.
func WithWatcher(store *storage.FileStore) Option {
	return func(s *Server) {
		s.watcher = store
	}
}

func New(session *chat.Session, options ...Option) *Server {
	s := &Server{session: session}
	for _, option := range options {
		option(s)
	}
	return s
}

func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/chats", s.listChats)
		r.Post("/chats", s.newChat)
		r.Get("/chats/{id}", s.openChat)
		r.Put("/chats/{id}/name", s.renameChat)
		r.Delete("/chats/{id}", s.deleteChat)

		r.Get("/conversation", s.view)
		r.Post("/conversation/messages", s.send)
		r.Put("/conversation/messages/{pos}", s.editMessage)
		r.Delete("/conversation/messages/{pos}", s.deleteMessage)
		r.Post("/conversation/messages/{pos}/regenerate", s.regenerate)
		r.Put("/conversation/messages/{pos}/version", s.selectVersion)
		r.Put("/conversation/params", s.setParams)
		r.Put("/conversation/model", s.setModel)
		r.Put("/conversation/system-prompt", s.setSystemPrompt)

		r.Get("/prompts", s.listPrompts)
		r.Get("/tooltips", s.tooltips)
	})
	return r
}

// Run serves the API on addr until ctx is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	if s.watcher != nil {
		g.Go(func() error {
			return s.watch(gCtx)
		})
	}

	g.Go(func() error {
		log.Info().Str("address", addr).Msg("starting http server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server failed")
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		log.Info().Msg("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("http server shutdown failed")
		}
		return nil
	})

	return g.Wait()
}

func (s *Server) watch(ctx context.Context) error {
	return s.watcher.Watch(ctx, func(ev storage.Event) {
		if ev.ID == chat.RegistryID {
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		// List reconciles the registry with the stored chats.
		if _, err := s.session.Library().List(ctx); err != nil {
			log.Warn().Err(err).Str("chat", ev.ID).Msg("could not reconcile chat names")
		}
	})
}
