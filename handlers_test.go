package livequest

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

func setupTestApp(t *testing.T, mutate func(*Config)) (*App, *httptest.Server) {
	t.Helper()
	dir := t.TempDir()
	cfg := Config{
		DatabasePath:          filepath.Join(dir, "livequest.db"),
		AnalyticsDatabasePath: filepath.Join(dir, "analytics.db"),
		StorageDir:            filepath.Join(dir, "storage"),
		SessionSecret:         "test-secret",
		FeedCacheTTL:          time.Millisecond, // near-instant expiry keeps tests deterministic
	}
	if mutate != nil {
		mutate(&cfg)
	}

	app := New(cfg, zerolog.Nop())
	if err := app.Setup(); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	srv := httptest.NewServer(app.Echo)
	t.Cleanup(func() {
		srv.Close()
		app.Close()
	})
	return app, srv
}

func publish(t *testing.T, app *App, id, liveblogID, text, publishedAt string) {
	t.Helper()
	u := textUpdate(id, liveblogID, text, publishedAt)
	if err := app.PublishUpdate(u); err != nil {
		t.Fatalf("PublishUpdate failed: %v", err)
	}
}

func getFeed(t *testing.T, srv *httptest.Server, liveblogID string) feedResponse {
	t.Helper()
	resp, err := http.Get(srv.URL + "/api/embed/" + liveblogID + "/feed")
	if err != nil {
		t.Fatalf("feed request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("feed status = %d, want 200", resp.StatusCode)
	}
	var out feedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("feed decode failed: %v", err)
	}
	return out
}

func TestFeedEmptyLiveblog(t *testing.T) {
	_, srv := setupTestApp(t, nil)

	resp, err := http.Get(srv.URL + "/api/embed/nope/feed")
	if err != nil {
		t.Fatalf("feed request failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `"updates":[]`) {
		t.Errorf("empty feed should serialize updates as [], got %s", body)
	}
}

func TestFeedReflectsPublishes(t *testing.T) {
	app, srv := setupTestApp(t, nil)

	publish(t, app, "u1", "blog-1", "kickoff", "2024-01-01T12:00:00Z")
	got := getFeed(t, srv, "blog-1")
	if len(got.Updates) != 1 || got.Updates[0].ID != "u1" {
		t.Fatalf("feed = %v, want [u1]", got.Updates)
	}

	// Publishing invalidates the cache, so the next poll sees the new row.
	publish(t, app, "u2", "blog-1", "goal", "2024-01-01T12:30:00Z")
	got = getFeed(t, srv, "blog-1")
	if len(got.Updates) != 2 || got.Updates[0].ID != "u2" {
		t.Fatalf("feed after second publish = %v, want [u2 u1]", got.Updates)
	}

	if err := app.RemoveUpdate("blog-1", "u2"); err != nil {
		t.Fatalf("RemoveUpdate failed: %v", err)
	}
	got = getFeed(t, srv, "blog-1")
	if len(got.Updates) != 1 || got.Updates[0].ID != "u1" {
		t.Fatalf("feed after delete = %v, want [u1]", got.Updates)
	}
}

func TestStreamDeliversChangeEvents(t *testing.T) {
	app, srv := setupTestApp(t, nil)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/embed/blog-1/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	// Wait for the subscription to register before publishing.
	deadline := time.Now().Add(2 * time.Second)
	for app.Hub.Subscribers("blog-1") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("stream never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	publish(t, app, "u1", "blog-1", "kickoff", "2024-01-01T12:00:00Z")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var ev Event
	if err := json.Unmarshal(msg, &ev); err != nil {
		t.Fatalf("event decode failed: %v", err)
	}
	if ev.Event != EventInsert {
		t.Errorf("event = %q, want %q", ev.Event, EventInsert)
	}
}

func postTrack(t *testing.T, srv *httptest.Server, liveblogID, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(srv.URL+"/api/embed/"+liveblogID+"/track", "application/json", bytes.NewReader([]byte(body)))
	if err != nil {
		t.Fatalf("track request failed: %v", err)
	}
	resp.Body.Close()
	return resp
}

func TestTrackAcceptsValidEvents(t *testing.T) {
	_, srv := setupTestApp(t, nil)

	resp := postTrack(t, srv, "blog-1", `{"sessionId":"abc-123","event":"start","mode":"native"}`)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("start status = %d, want 204", resp.StatusCode)
	}
	resp = postTrack(t, srv, "blog-1", `{"sessionId":"abc-123","event":"ping","mode":"native"}`)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("ping status = %d, want 204", resp.StatusCode)
	}
}

func TestTrackRejectsBadPayloads(t *testing.T) {
	_, srv := setupTestApp(t, nil)

	cases := []struct {
		name string
		body string
	}{
		{"broken json", `{"sessionId":`},
		{"missing session", `{"event":"start","mode":"native"}`},
		{"unknown event", `{"sessionId":"abc","event":"stop","mode":"native"}`},
		{"unknown mode", `{"sessionId":"abc","event":"start","mode":"popup"}`},
	}
	for _, tc := range cases {
		resp := postTrack(t, srv, "blog-1", tc.body)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", tc.name, resp.StatusCode)
		}
	}
}

func TestTrackRateLimit(t *testing.T) {
	_, srv := setupTestApp(t, func(cfg *Config) {
		cfg.TrackRateLimit = 2
		cfg.TrackRateWindow = time.Minute
	})

	body := `{"sessionId":"abc-123","event":"ping","mode":"iframe"}`
	for i := 0; i < 2; i++ {
		resp := postTrack(t, srv, "blog-1", body)
		if resp.StatusCode != http.StatusNoContent {
			t.Fatalf("request %d status = %d, want 204", i, resp.StatusCode)
		}
	}
	resp := postTrack(t, srv, "blog-1", body)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("over-limit status = %d, want 429", resp.StatusCode)
	}
}

func TestStatsSummarizesSessions(t *testing.T) {
	_, srv := setupTestApp(t, nil)

	postTrack(t, srv, "blog-1", `{"sessionId":"s1","event":"start","mode":"native"}`)
	postTrack(t, srv, "blog-1", `{"sessionId":"s2","event":"start","mode":"iframe"}`)

	resp, err := http.Get(srv.URL + "/api/embed/blog-1/stats")
	if err != nil {
		t.Fatalf("stats request failed: %v", err)
	}
	defer resp.Body.Close()
	var stats struct {
		TotalSessions int `json:"total_sessions"`
		ActiveNow     int `json:"active_now"`
		NativeCount   int `json:"native_count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("stats decode failed: %v", err)
	}
	if stats.TotalSessions != 2 {
		t.Errorf("TotalSessions = %d, want 2", stats.TotalSessions)
	}
	if stats.ActiveNow != 2 {
		t.Errorf("ActiveNow = %d, want 2", stats.ActiveNow)
	}
	if stats.NativeCount != 1 {
		t.Errorf("NativeCount = %d, want 1", stats.NativeCount)
	}
}

func TestViewerPageRendersFeed(t *testing.T) {
	app, srv := setupTestApp(t, nil)
	publish(t, app, "u1", "blog-1", "Kickoff!", "2024-01-01T12:00:00Z")

	resp, err := http.Get(srv.URL + "/embed/blog-1")
	if err != nil {
		t.Fatalf("viewer request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("viewer status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	page := string(body)
	if !strings.Contains(page, "lq-embed") {
		t.Error("viewer page should contain the widget scope")
	}
	if !strings.Contains(page, "Kickoff!") {
		t.Error("viewer page should contain the update text")
	}
	if !strings.Contains(page, "/api/embed/blog-1/stream") {
		t.Error("viewer page should reference the stream endpoint")
	}
}

func viewerCookie(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	resp, err := http.Get(srv.URL + "/embed/blog-1")
	if err != nil {
		t.Fatalf("viewer request failed: %v", err)
	}
	resp.Body.Close()
	for _, raw := range resp.Header.Values("Set-Cookie") {
		if strings.HasPrefix(raw, viewerSessionName+"=") {
			return raw
		}
	}
	t.Fatal("viewer session cookie was not set")
	return ""
}

func TestViewerCookieAttributes(t *testing.T) {
	// Plain HTTP deployments cannot use SameSite=None, browsers require
	// Secure with it, so the store falls back to Lax.
	_, srv := setupTestApp(t, nil)
	cookie := viewerCookie(t, srv)
	if !strings.Contains(cookie, "SameSite=Lax") {
		t.Errorf("insecure cookie = %q, want SameSite=Lax", cookie)
	}
	if strings.Contains(cookie, "Secure") {
		t.Errorf("insecure cookie = %q, must not be Secure", cookie)
	}

	// Behind TLS the cookie must survive third-party iframe contexts.
	_, srv = setupTestApp(t, func(cfg *Config) { cfg.CookieSecure = true })
	cookie = viewerCookie(t, srv)
	if !strings.Contains(cookie, "SameSite=None") {
		t.Errorf("secure cookie = %q, want SameSite=None", cookie)
	}
	if !strings.Contains(cookie, "Secure") {
		t.Errorf("secure cookie = %q, want Secure", cookie)
	}
}

func TestFeedXML(t *testing.T) {
	app, srv := setupTestApp(t, nil)
	publish(t, app, "u1", "blog-1", "Kickoff!", "2024-01-01T12:00:00Z")

	resp, err := http.Get(srv.URL + "/embed/blog-1/feed.xml")
	if err != nil {
		t.Fatalf("rss request failed: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "rss") {
		t.Errorf("Content-Type = %q, want rss", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "Kickoff!") {
		t.Errorf("rss should contain the update text, got %s", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, srv := setupTestApp(t, nil)

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("metrics status = %d, want 200", resp.StatusCode)
	}
}
