package api

import (
	"net/http"

	bErrors "github.com/Tim-sandbox/barista/pkg/errors"
	"github.com/Tim-sandbox/barista/pkg/model"
	"github.com/Tim-sandbox/barista/pkg/store"
)

// maxScanList bounds GET /projects/{id}/scans.
const maxScanList = 100

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	f := store.Filter{OwnerIDs: store.ParseOwnerIDs(r.URL.Query().Get("filterbyuser"))}
	if dt := r.URL.Query().Get("developmentType"); dt != "" {
		f.DevelopmentType = dt
	}
	projects, err := s.store.ListProjects(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if projects == nil {
		projects = []model.Project{}
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) createProject(w http.ResponseWriter, r *http.Request) {
	var p model.Project
	if err := decodeJSON(r, &p); err != nil {
		s.writeError(w, r, err)
		return
	}
	p.ID = 0
	if err := s.store.CreateProject(r.Context(), &p); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("project created", "project", p.ID, "name", p.Name, "owner", p.UserID)
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) getProject(w http.ResponseWriter, r *http.Request) {
	id, err := projectID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.store.GetProject(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) updateProject(w http.ResponseWriter, r *http.Request) {
	id, err := projectID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var p model.Project
	if err := decodeJSON(r, &p); err != nil {
		s.writeError(w, r, err)
		return
	}
	p.ID = id
	opts := store.UpdateOptions{AdminOverride: r.URL.Query().Get("adminOverride") == "true"}
	if err := s.store.UpdateProject(r.Context(), &p, opts); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// validateProject reports whether a repository URL is reachable. An
// unreachable repository is a normal answer, not an error response.
func (s *Server) validateProject(w http.ResponseWriter, r *http.Request) {
	gitURL := r.URL.Query().Get("gitUrl")
	if gitURL == "" {
		s.writeError(w, r, bErrors.New(bErrors.ErrCodeInvalidInput, "gitUrl is required"))
		return
	}
	resp := struct {
		Valid   bool   `json:"valid"`
		Message string `json:"message,omitempty"`
	}{Valid: true}
	if err := s.repo.Validate(r.Context(), gitURL); err != nil {
		resp.Valid, resp.Message = false, bErrors.UserMessage(err)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) branches(w http.ResponseWriter, r *http.Request) {
	id, err := projectID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	refs, err := s.runner.Refs(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, refs)
}

func (s *Server) listScans(w http.ResponseWriter, r *http.Request) {
	id, err := projectID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	limit, err := intParam(r, "limit")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if limit == 0 || limit > maxScanList {
		limit = maxScanList
	}
	if _, err := s.store.GetProject(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	scans, err := s.store.ListScans(r.Context(), id, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if scans == nil {
		scans = []model.Scan{}
	}
	writeJSON(w, http.StatusOK, scans)
}

func (s *Server) startScan(w http.ResponseWriter, r *http.Request) {
	id, err := projectID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req struct {
		Branch string `json:"branch"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	scan, err := s.runner.Start(r.Context(), id, req.Branch)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/scans/"+scan.ID)
	writeJSON(w, http.StatusAccepted, scan)
}
