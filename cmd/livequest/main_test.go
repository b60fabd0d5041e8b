package main

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// syncBuffer is a concurrency-safe writer for collecting watch output.
type syncBuffer struct {
	mu sync.Mutex
	sb strings.Builder
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sb.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sb.String()
}

func writeHostPage(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "host.html")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write host page: %v", err)
	}
	return path
}

func TestWatchPageStreamsRenderedMarkup(t *testing.T) {
	var mu sync.Mutex
	body := `{"updates":[{"id":"u1","content":{"type":"text","text":"Kickoff"},"publishedAt":"2024-01-01T12:00:00Z","pinned":false}]}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/feed") {
			http.NotFound(w, r)
			return
		}
		mu.Lock()
		defer mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	}))
	defer srv.Close()

	page := writeHostPage(t, `<html><body><div data-liveblog-id="blog-1" data-mode="native"></div></body></html>`)

	out := &syncBuffer{}
	done := make(chan struct{})
	finished := make(chan error, 1)
	go func() {
		finished <- watchPage(page, srv.URL, out, done)
	}()

	waitForOutput(t, out, "Kickoff")

	// A content change shows up on the next poll without re-running anything.
	mu.Lock()
	body = `{"updates":[{"id":"u2","content":{"type":"text","text":"Full time"},"publishedAt":"2024-01-01T14:00:00Z","pinned":false},{"id":"u1","content":{"type":"text","text":"Kickoff"},"publishedAt":"2024-01-01T12:00:00Z","pinned":false}]}`
	mu.Unlock()
	waitForOutput(t, out, "Full time")

	close(done)
	select {
	case err := <-finished:
		if err != nil {
			t.Fatalf("watchPage returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watchPage did not stop")
	}
}

func TestWatchPageNoMounts(t *testing.T) {
	page := writeHostPage(t, `<html><body><p>nothing here</p></body></html>`)

	out := &syncBuffer{}
	done := make(chan struct{})
	close(done)
	if err := watchPage(page, "http://localhost:0", out, done); err != nil {
		t.Fatalf("watchPage returned error: %v", err)
	}
	if !strings.Contains(out.String(), "no liveblog mounts found") {
		t.Errorf("output = %q, want the no-mounts notice", out.String())
	}
}

func waitForOutput(t *testing.T, out *syncBuffer, want string) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for !strings.Contains(out.String(), want) {
		if time.Now().After(deadline) {
			t.Fatalf("output never contained %q, got: %s", want, out.String())
		}
		time.Sleep(20 * time.Millisecond)
	}
}
