package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	bErrors "github.com/Tim-sandbox/barista/pkg/errors"
	"github.com/Tim-sandbox/barista/pkg/model"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusOf maps an error code to an HTTP status.
func statusOf(code bErrors.Code) int {
	switch code {
	case bErrors.ErrCodeNotFound:
		return http.StatusNotFound
	case bErrors.ErrCodeScanInProgress:
		return http.StatusConflict
	case bErrors.ErrCodeInvalidInput, bErrors.ErrCodeInvalidPackage, bErrors.ErrCodeInvalidPath, bErrors.ErrCodeUnsupported:
		return http.StatusBadRequest
	case bErrors.ErrCodeRepositoryAccess, bErrors.ErrCodeFetchFailed, bErrors.ErrCodeNetwork, bErrors.ErrCodeTimeout:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := bErrors.GetCode(err)
	status := statusOf(code)
	msg := bErrors.UserMessage(err)
	if code == "" {
		code = bErrors.ErrCodeInternal
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Code: string(code), Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return bErrors.Wrap(bErrors.ErrCodeInvalidInput, err, "invalid request body")
	}
	return nil
}

func projectID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "projectID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, bErrors.New(bErrors.ErrCodeInvalidInput, "invalid project id %q", raw)
	}
	return id, nil
}

// intParam parses an optional non-negative integer query parameter.
func intParam(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, bErrors.New(bErrors.ErrCodeInvalidInput, "invalid %s %q", name, raw)
	}
	return n, nil
}

// bomQuery reads filter, license, page and pageSize. filterText is accepted
// as an alias of filter.
func bomQuery(r *http.Request) (model.BOMQuery, error) {
	page, err := intParam(r, "page")
	if err != nil {
		return model.BOMQuery{}, err
	}
	size, err := intParam(r, "pageSize")
	if err != nil {
		return model.BOMQuery{}, err
	}
	q := r.URL.Query()
	filter := q.Get("filter")
	if filter == "" {
		filter = q.Get("filterText")
	}
	return model.BOMQuery{
		FilterText: filter,
		License:    q.Get("license"),
		Page:       page,
		PageSize:   size,
	}, nil
}

// namedValue is the chart-friendly shape of fleet and distinct counts.
type namedValue struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

func namedValues(counts []model.Count) []namedValue {
	out := make([]namedValue, len(counts))
	for i, c := range counts {
		out[i] = namedValue{Name: c.Key, Value: c.Count}
	}
	return out
}
