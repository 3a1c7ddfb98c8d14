package handler

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"hugchat/internal/domain/models/chat"
)

func TestUpdateStreamWriter_OneLinePerUpdate(t *testing.T) {
	rec := httptest.NewRecorder()
	stream := newUpdateStreamWriter(rec)

	stream.Write(chat.StatusUpdate{Status: chat.StatusStarted})
	stream.Write(chat.StreamUpdate{Token: "Hel"})
	stream.Write(chat.FinalAnswerUpdate{Text: "Hello"})

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3:\n%s", len(lines), rec.Body.String())
	}
	for _, line := range lines {
		if _, err := chat.DecodeUpdate([]byte(line)); err != nil {
			t.Errorf("line %q does not decode: %v", line, err)
		}
	}
}

// failingWriter drops the connection after the first write.
type failingWriter struct {
	header http.Header
	writes int
}

func (f *failingWriter) Header() http.Header { return f.header }
func (f *failingWriter) Write(b []byte) (int, error) {
	f.writes++
	if f.writes > 1 {
		return 0, errors.New("broken pipe")
	}
	return len(b), nil
}
func (f *failingWriter) WriteHeader(status int) {}

func TestUpdateStreamWriter_LatchesAfterFailedWrite(t *testing.T) {
	w := &failingWriter{header: make(http.Header)}
	stream := newUpdateStreamWriter(w)

	stream.Write(chat.StreamUpdate{Token: "a"}) // succeeds
	stream.Write(chat.StreamUpdate{Token: "b"}) // fails, latches
	stream.Write(chat.StreamUpdate{Token: "c"}) // skipped
	stream.Write(chat.StreamUpdate{Token: "d"}) // skipped

	if w.writes != 2 {
		t.Errorf("underlying writes = %d, want 2 (one success, one failure, rest skipped)", w.writes)
	}
}
