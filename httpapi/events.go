package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cvldata/beacon"
)

// heartbeatInterval keeps idle event-stream connections (and the
// intermediaries between them) from timing out. Sent as an SSE comment
// line, which the spec's frame format has no use for and clients ignore,
// the same shape as the teacher's stream heartbeat.
const heartbeatInterval = 30 * time.Second

// writeTimeout bounds a single SSE write; a client that can't keep up
// within this window is treated as disconnected.
const writeTimeout = 10 * time.Second

func (s *server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := beacon.NewSubscriber(r.RemoteAddr)
	ctx := r.Context()
	if err := s.cfg.Coordinator.AddConnection(ctx, sub); err != nil {
		return
	}
	defer s.cfg.Coordinator.RemoveConnection(context.Background(), sub.Addr)

	rc := http.NewResponseController(w)
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Closed():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case frame, ok := <-sub.Frames():
			if !ok {
				return
			}
			rc.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := writeSSEFrame(w, frame)
			rc.SetWriteDeadline(time.Time{})
			if err != nil {
				s.cfg.Logger.Debug("subscriber write failed", slog.String("addr", sub.Addr), slog.Any("error", err))
				return
			}
			flusher.Flush()
		}
	}
}

// writeSSEFrame frames a JSON payload as one or more "data:" lines
// terminated by a blank line, per spec.md §6: every newline in the
// payload starts a new data: record.
func writeSSEFrame(w http.ResponseWriter, payload string) error {
	for _, line := range strings.Split(payload, "\n") {
		if _, err := fmt.Fprintf(w, "data: %s\n", line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprint(w, "\n")
	return err
}
