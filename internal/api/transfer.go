package api

import (
	"encoding/json"
	"net/http"
	"notesync/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// exportNotes downloads all notes of the owner as JSON (default) or markdown.
func (s *Server) exportNotes(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}
	if format != "json" && format != "md" {
		writeError(w, http.StatusBadRequest, "format must be json or md")
		return
	}

	notes, err := s.notes.List(r.Context(), chi.URLParam(r, "owner"))
	if err != nil {
		writeUsecaseError(w, err)
		return
	}

	if format == "md" {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="notes.md"`)
		err = usecase.WriteMarkdown(w, notes)
	} else {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", `attachment; filename="notes.json"`)
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		err = enc.Encode(notes)
	}
	if err != nil {
		log.Ctx(r.Context()).Warn().Err(err).Msg("export interrupted")
	}
}

// importNotes queues every note of a previously exported JSON array.
func (s *Server) importNotes(w http.ResponseWriter, r *http.Request) {
	notes, ok := s.decodeNotes(w, r)
	if !ok {
		return
	}
	saved, err := s.notes.Import(r.Context(), chi.URLParam(r, "owner"), notes)
	if err != nil {
		writeUsecaseError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, saved)
}
