package httpapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/schema"
)

var (
	rangeDecoder  = schema.NewDecoder()
	rangeValidate = validator.New()
)

func init() {
	rangeDecoder.IgnoreUnknownKeys(true)
}

// rangeParams is the internal DTO for GET /ts. It is the one request shape
// validated with validator/v10 — producer-supplied object metadata and
// data are deliberately never schema-validated (spec.md §1's
// non-goal), but the timeseries window bounds are plain query parameters
// this server itself parses, so validating them is just input hygiene.
type rangeParams struct {
	T0 float64 `schema:"t0"`
	T1 float64 `schema:"t1" validate:"required,gtfield=T0"`
}

func (s *server) handleTimeseries(w http.ResponseWriter, r *http.Request) {
	var params rangeParams
	if err := rangeDecoder.Decode(&params, r.URL.Query()); err != nil {
		writeNotFound(w)
		return
	}
	if err := rangeValidate.Struct(params); err != nil {
		writeNotFound(w)
		return
	}

	if s.cfg.Timeseries == nil {
		writeJSON(w, http.StatusOK, []struct{}{})
		return
	}

	entries, err := s.cfg.Timeseries.Range(r.Context(), params.T0, params.T1)
	if err != nil {
		writeNotFound(w)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *server) handleInfo(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Timeseries == nil {
		writeJSON(w, http.StatusOK, []map[string]any{})
		return
	}

	info, err := s.cfg.Timeseries.Info(r.Context())
	if err != nil {
		writeNotFound(w)
		return
	}
	writeJSON(w, http.StatusOK, info)
}
