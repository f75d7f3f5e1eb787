package httpapi

import (
	"encoding/json"
	"net/http"
)

func (s *server) handleControl(w http.ResponseWriter, r *http.Request) {
	var body any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeNotFound(w)
		return
	}
	if err := s.cfg.Coordinator.Control(r.Context(), body); err != nil {
		writeNotFound(w)
		return
	}
	writeNoContent(w)
}

func (s *server) handleState(w http.ResponseWriter, r *http.Request) {
	var body any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeNotFound(w)
		return
	}
	if err := s.cfg.Coordinator.Reply(r.Context(), r.RemoteAddr, body); err != nil {
		writeNotFound(w)
		return
	}
	writeNoContent(w)
}

// handleQuery implements the broadcast-query protocol (spec.md §4.1): it
// starts a query, then blocks on the calling goroutine — not the
// coordinator's — until either every expected subscriber has replied or
// the 2-second deadline passes, and returns whatever replies arrived.
func (s *server) handleQuery(w http.ResponseWriter, r *http.Request) {
	q, err := s.cfg.Coordinator.StartQuery(r.Context())
	if err != nil {
		writeNotFound(w)
		return
	}
	writeJSON(w, http.StatusOK, q.Wait())
}

// handleTrust is a lightweight unauthenticated probe: a visualization
// client talking to a self-signed TLS endpoint hits this first to confirm
// the certificate is accepted before issuing real requests. It carries no
// state and performs no check beyond "the server answered" — consistent
// with the non-goal of authentication/authorization (spec.md §1).
func (s *server) handleTrust(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
