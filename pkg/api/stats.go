package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	bErrors "github.com/Tim-sandbox/barista/pkg/errors"
	"github.com/Tim-sandbox/barista/pkg/model"
	"github.com/Tim-sandbox/barista/pkg/stats"
	"github.com/Tim-sandbox/barista/pkg/store"
)

func fleetFilter(r *http.Request) store.Filter {
	return stats.Fleet(store.ParseOwnerIDs(r.URL.Query().Get("filterbyuser"))...)
}

func (s *Server) fleetSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.stats.Summarize(r.Context(), fleetFilter(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// fleetIndex serves an index as a bare JSON number.
func (s *Server) fleetIndex(fn func(context.Context, store.Filter) (float64, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := fn(r.Context(), fleetFilter(r))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func (s *Server) fleetCounts(fn func(context.Context, store.Filter) ([]model.Count, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		counts, err := fn(r.Context(), fleetFilter(r))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, namedValues(counts))
	}
}

func (s *Server) badge(w http.ResponseWriter, r *http.Request) {
	id, err := projectID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	b, err := s.stats.Badge(r.Context(), id, chi.URLParam(r, "kind"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) badges(w http.ResponseWriter, r *http.Request) {
	id, err := projectID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	b, err := s.stats.Badges(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, http.StatusOK, b)
}

func invalid(err error) error {
	return bErrors.New(bErrors.ErrCodeInvalidInput, "%v", err)
}
