package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"notesync/internal/config"
	"notesync/internal/domain"
	"notesync/internal/usecase"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

type Server struct {
	router   *chi.Mux
	notes    usecase.Notes
	validate *validator.Validate
}

type accepted struct {
	ID     string        `json:"id"`
	Status domain.Status `json:"status"`
	Note   *domain.Note  `json:"note,omitempty"`
}

// NewServer wires the HTTP routes. metrics may be nil.
func NewServer(notes usecase.Notes, metrics http.Handler) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		notes:    notes,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}

	r := s.router
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		loggerHandler(func(r *http.Request) bool { return r.URL.Path == "/healthz" || r.URL.Path == "/metrics" }),
		middleware.Recoverer,
	)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Route("/users/{owner}/notes", func(r chi.Router) {
		r.Get("/", s.listNotes)
		r.Post("/", s.createNote)
		r.Put("/", s.saveNotes)
		r.Get("/export", s.exportNotes)
		r.Post("/import", s.importNotes)
		r.Put("/{id}", s.saveNote)
		r.Delete("/{id}", s.deleteNote)
	})
	r.Get("/notes/{id}/status", s.streamStatus)

	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx is done and then shuts down gracefully.
func (s *Server) Run(ctx context.Context, cfg config.HTTP) error {
	httpServer := http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     s.router,
		ReadTimeout: cfg.ReadTimeout,
		// WriteTimeout would cut status streams
		IdleTimeout: cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Msgf("server serving on port %d", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen and serve: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("Server is shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info().Msg("Server stopped")
	return nil
}

func (s *Server) listNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := s.notes.List(r.Context(), chi.URLParam(r, "owner"))
	if err != nil {
		writeUsecaseError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, notes)
}

func (s *Server) createNote(w http.ResponseWriter, r *http.Request) {
	n, ok := s.decodeNote(w, r)
	if !ok {
		return
	}
	s.enqueueSave(w, r, n)
}

func (s *Server) saveNote(w http.ResponseWriter, r *http.Request) {
	n, ok := s.decodeNote(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if n.ID != "" && n.ID != id {
		writeError(w, http.StatusBadRequest, "note id does not match path")
		return
	}
	n.ID = id
	s.enqueueSave(w, r, n)
}

func (s *Server) enqueueSave(w http.ResponseWriter, r *http.Request, n domain.Note) {
	saved, err := s.notes.Save(r.Context(), chi.URLParam(r, "owner"), n)
	if err != nil {
		writeUsecaseError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, accepted{ID: saved.ID, Status: domain.StatusPending, Note: &saved})
}

func (s *Server) deleteNote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.notes.Delete(r.Context(), chi.URLParam(r, "owner"), id); err != nil {
		writeUsecaseError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, accepted{ID: id, Status: domain.StatusPending})
}

func (s *Server) saveNotes(w http.ResponseWriter, r *http.Request) {
	notes, ok := s.decodeNotes(w, r)
	if !ok {
		return
	}
	saved, err := s.notes.SaveBulk(r.Context(), chi.URLParam(r, "owner"), notes)
	if err != nil {
		writeUsecaseError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, saved)
}

func (s *Server) decodeNotes(w http.ResponseWriter, r *http.Request) ([]domain.Note, bool) {
	var notes []domain.Note
	if err := json.NewDecoder(r.Body).Decode(&notes); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	for i, n := range notes {
		if err := s.validate.Struct(n); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("note %d: %s", i, err))
			return nil, false
		}
	}
	return notes, true
}

func (s *Server) decodeNote(w http.ResponseWriter, r *http.Request) (domain.Note, bool) {
	var n domain.Note
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return n, false
	}
	if err := s.validate.Struct(n); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return n, false
	}
	return n, true
}

func writeUsecaseError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, usecase.ErrOwnerRequired), errors.Is(err, usecase.ErrNoteIDRequired):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		log.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
