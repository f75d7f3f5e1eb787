// Package httpapi is the HTTP edge: it translates requests into
// beacon.Coordinator operations and beacon.Store reads, and frames
// responses as JSON, octet-stream, or SSE per spec.md §6.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/cvldata/beacon"
	"github.com/cvldata/beacon/middleware"
	"github.com/cvldata/beacon/timeseries"
)

// Config wires the HTTP edge to the coordinator and its collaborators.
type Config struct {
	Store       *beacon.Store
	Coordinator *beacon.Coordinator
	Timeseries  *timeseries.Manager // nil if no timeseries sources are configured
	ReadOnly    bool
	Logger      *slog.Logger
}

// NewHandler assembles the full HTTP edge: CORS, request logging, gzip
// compression, and the endpoint routes from spec.md §6.
func NewHandler(cfg Config) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &server{cfg: cfg}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /object", s.handleGetObject)
	mux.HandleFunc("GET /list", s.handleList)
	mux.HandleFunc("GET /events", s.handleEvents)
	mux.HandleFunc("GET /ts", s.handleTimeseries)
	mux.HandleFunc("GET /info", s.handleInfo)
	mux.HandleFunc("GET /trust", s.handleTrust)
	mux.HandleFunc("POST /publish", s.requireWritable(s.handlePublishMeta))
	mux.HandleFunc("PUT /publish", s.requireWritable(s.handlePublishData))
	mux.HandleFunc("POST /delete", s.requireWritable(s.handleDelete))
	mux.HandleFunc("POST /control", s.requireWritable(s.handleControl))
	mux.HandleFunc("POST /query", s.requireWritable(s.handleQuery))
	mux.HandleFunc("POST /state", s.requireWritable(s.handleState))

	var handler http.Handler = mux
	handler = middleware.Gzip()(handler)
	handler = middleware.Logging(cfg.Logger)(handler)
	handler = middleware.CORS()(handler)
	return handler
}

type server struct {
	cfg Config
}

// requireWritable short-circuits mutating endpoints with 404 in read-only
// mode, per spec.md §5 ("a process-wide flag short-circuits all mutating
// paths before enqueueing").
func (s *server) requireWritable(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.ReadOnly {
			writeNotFound(w)
			return
		}
		next(w, r)
	}
}
