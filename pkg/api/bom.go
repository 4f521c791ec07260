package api

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/Tim-sandbox/barista/pkg/aggregate"
	"github.com/Tim-sandbox/barista/pkg/model"
	"github.com/Tim-sandbox/barista/pkg/sbom"
)

// projectStatus is the rollup of both dimensions for one project.
type projectStatus struct {
	LatestScan *model.Scan  `json:"latestScan"`
	License    model.Rollup `json:"licenseStatus"`
	Security   model.Rollup `json:"securityStatus"`
}

func (s *Server) projectStatus(w http.ResponseWriter, r *http.Request) {
	id, err := projectID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ctx := r.Context()
	if _, err := s.store.GetProject(ctx, id); err != nil {
		s.writeError(w, r, err)
		return
	}
	var st projectStatus
	if st.LatestScan, err = s.agg.LatestCompletedScan(ctx, id); err != nil {
		s.writeError(w, r, err)
		return
	}
	if st.License, err = s.agg.HighestStatus(ctx, id, model.DimensionLicense); err != nil {
		s.writeError(w, r, err)
		return
	}
	if st.Security, err = s.agg.HighestStatus(ctx, id, model.DimensionSecurity); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// distinctQuery fixes the dimension and key of a distinct-count route.
type distinctQuery struct {
	dim model.Dimension
	key string
}

var (
	distinctLicenses        = &distinctQuery{model.DimensionLicense, aggregate.KeyName}
	distinctSeverities      = &distinctQuery{model.DimensionSecurity, aggregate.KeySeverity}
	distinctVulnerabilities = &distinctQuery{model.DimensionSecurity, aggregate.KeyPackage}
)

// distinct serves DistinctBy. A nil query reads dimension and key from the
// query string.
func (s *Server) distinct(fixed *distinctQuery) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := projectID(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		q := fixed
		if q == nil {
			dim, err := model.ParseDimension(r.URL.Query().Get("dimension"))
			if err != nil {
				s.writeError(w, r, invalid(err))
				return
			}
			q = &distinctQuery{dim, r.URL.Query().Get("key")}
		}
		if _, err := s.store.GetProject(r.Context(), id); err != nil {
			s.writeError(w, r, err)
			return
		}
		counts, err := s.agg.DistinctBy(r.Context(), id, q.dim, q.key)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, namedValues(counts))
	}
}

func (s *Server) licenseBOM(w http.ResponseWriter, r *http.Request) {
	id, q, ok := s.bomRequest(w, r)
	if !ok {
		return
	}
	page, err := s.agg.LicenseBOM(r.Context(), id, q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) securityBOM(w http.ResponseWriter, r *http.Request) {
	id, q, ok := s.bomRequest(w, r)
	if !ok {
		return
	}
	page, err := s.agg.SecurityBOM(r.Context(), id, q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) licensesOnly(w http.ResponseWriter, r *http.Request) {
	id, q, ok := s.bomRequest(w, r)
	if !ok {
		return
	}
	page, err := s.agg.LicensesOnly(r.Context(), id, q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// bomRequest parses the project and listing query, writing the error
// response itself when either is invalid.
func (s *Server) bomRequest(w http.ResponseWriter, r *http.Request) (int64, model.BOMQuery, bool) {
	id, err := projectID(r)
	if err != nil {
		s.writeError(w, r, err)
		return 0, model.BOMQuery{}, false
	}
	q, err := bomQuery(r)
	if err != nil {
		s.writeError(w, r, err)
		return 0, model.BOMQuery{}, false
	}
	if _, err := s.store.GetProject(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return 0, model.BOMQuery{}, false
	}
	return id, q, true
}

func (s *Server) exportBOM(w http.ResponseWriter, r *http.Request) {
	id, err := projectID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	format, err := sbom.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var in *sbom.Input
	if scanID := r.URL.Query().Get("scan"); scanID != "" {
		in, err = sbom.LoadProjectScan(r.Context(), s.store, id, scanID)
	} else {
		in, err = sbom.Load(r.Context(), s.store, id)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := sbom.Write(&buf, format, in); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", in.Project.Name+format.Extension()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
