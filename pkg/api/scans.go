package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) getScan(w http.ResponseWriter, r *http.Request) {
	scan, err := s.store.GetScan(r.Context(), chi.URLParam(r, "scanID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, scan)
}

// scanLog serves the captured fetcher output as plain text.
func (s *Server) scanLog(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "scanID")
	if _, err := s.store.GetScan(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	l, err := s.logs.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(l.Log))
}
