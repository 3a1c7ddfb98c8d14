package handler

import (
	"encoding/json"
	"net/http"

	"hugchat/internal/domain/models/chat"
)

// updateStreamWriter writes message updates as NDJSON: one JSON-encoded
// update per line, flushed immediately so tokens reach the browser as
// they are generated.
type updateStreamWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	encoder *json.Encoder
	failed  bool
}

func newUpdateStreamWriter(w http.ResponseWriter) *updateStreamWriter {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no") // disable nginx buffering
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	return &updateStreamWriter{
		w:       w,
		flusher: flusher,
		encoder: json.NewEncoder(w),
	}
}

// Write emits one update line. After the first failed write the client is
// gone and further writes are skipped; the caller keeps draining its
// source regardless.
func (s *updateStreamWriter) Write(update chat.MessageUpdate) {
	if s.failed {
		return
	}
	if err := s.encoder.Encode(update); err != nil {
		s.failed = true
		return
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
}
