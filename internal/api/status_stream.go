package api

import (
	"fmt"
	"net/http"
	"notesync/internal/domain"

	"github.com/go-chi/chi/v5"
)

// streamStatus writes status transitions of one note as server-sent events.
// With ?follow=false the stream ends after the first terminal status.
func (s *Server) streamStatus(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	id := chi.URLParam(r, "id")
	follow := r.URL.Query().Get("follow") != "false"

	// the callback runs on the queue worker and must not block on a slow client
	ch := make(chan domain.Status, 32)
	unsubscribe := s.notes.Watch(id, func(st domain.Status) {
		select {
		case ch <- st:
		default:
		}
	})
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": subscribed\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case st := <-ch:
			if _, err := fmt.Fprintf(w, "event: status\ndata: %s\n\n", st); err != nil {
				return
			}
			flusher.Flush()
			if !follow && st.IsTerminal() {
				return
			}
		}
	}
}
