package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/cvldata/beacon"
)

func (s *server) handleGetObject(w http.ResponseWriter, r *http.Request) {
	key := objectKey(r)
	if key == "" {
		writeNotFound(w)
		return
	}
	obj, ok := s.cfg.Store.Get(key)
	if !ok {
		writeNotFound(w)
		return
	}

	q := r.URL.Query()
	switch {
	case q.Has("meta"):
		if obj.Metadata == nil {
			writeNotFound(w)
			return
		}
		writeJSON(w, http.StatusOK, obj.Metadata)
	case q.Has("data"):
		if obj.Data == nil {
			writeNotFound(w)
			return
		}
		writeOctet(w, obj.Data)
	default:
		// Neither ?meta nor ?data is an unsupported path component
		// (spec.md §7).
		writeNotFound(w)
	}
}

func (s *server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Store.Keys())
}

func (s *server) handlePublishMeta(w http.ResponseWriter, r *http.Request) {
	key := objectKey(r)
	if key == "" {
		writeNotFound(w)
		return
	}

	var metadata beacon.Metadata
	if err := json.NewDecoder(r.Body).Decode(&metadata); err != nil {
		// Unparseable JSON is swallowed into a 404, matching the
		// original's observed behavior (spec.md §7).
		writeNotFound(w)
		return
	}

	if err := s.cfg.Coordinator.Publish(r.Context(), key, metadata); err != nil {
		writeNotFound(w)
		return
	}
	writeNoContent(w)
}

func (s *server) handlePublishData(w http.ResponseWriter, r *http.Request) {
	key := objectKey(r)
	if key == "" {
		writeNotFound(w)
		return
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeNotFound(w)
		return
	}
	if len(data) > 0 {
		if err := s.cfg.Coordinator.PublishData(r.Context(), key, data); err != nil {
			writeNotFound(w)
			return
		}
	}
	writeNoContent(w)
}

func (s *server) handleDelete(w http.ResponseWriter, r *http.Request) {
	key := objectKey(r)
	if key == "" {
		writeNotFound(w)
		return
	}
	if err := s.cfg.Coordinator.Delete(r.Context(), key); err != nil {
		writeNotFound(w)
		return
	}
	writeNoContent(w)
}
