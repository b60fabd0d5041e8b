package livequest

import (
	"path/filepath"
	"strconv"
	"testing"

	json "github.com/goccy/go-json"
)

func setupTestStore(t *testing.T) (*Store, func()) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test_livequest.db")

	s, err := NewStore(path)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	cleanup := func() {
		s.Close()
	}

	return s, cleanup
}

func textUpdate(id, liveblogID, text, publishedAt string) StoredUpdate {
	body, _ := json.Marshal(map[string]string{"type": "text", "text": text})
	u := StoredUpdate{ID: id, LiveblogID: liveblogID, Content: body}
	if publishedAt != "" {
		u.PublishedAt = &publishedAt
	}
	return u
}

func TestSaveAndListFeed(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	existed, err := s.SaveUpdate(textUpdate("u1", "blog-1", "kickoff", "2024-01-01T12:00:00Z"))
	if err != nil {
		t.Fatalf("SaveUpdate failed: %v", err)
	}
	if existed {
		t.Error("first save should report a new row")
	}

	got, err := s.ListFeed("blog-1", 50)
	if err != nil {
		t.Fatalf("ListFeed failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("ListFeed count = %d, want 1", len(got))
	}
	if got[0].ID != "u1" {
		t.Errorf("ID = %q, want %q", got[0].ID, "u1")
	}
	if got[0].PublishedAt == nil || *got[0].PublishedAt != "2024-01-01T12:00:00Z" {
		t.Errorf("PublishedAt = %v, want 2024-01-01T12:00:00Z", got[0].PublishedAt)
	}
}

func TestSaveUpdateUpsert(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	if _, err := s.SaveUpdate(textUpdate("u1", "blog-1", "first", "2024-01-01T12:00:00Z")); err != nil {
		t.Fatalf("SaveUpdate failed: %v", err)
	}

	existed, err := s.SaveUpdate(textUpdate("u1", "blog-1", "edited", "2024-01-01T12:00:00Z"))
	if err != nil {
		t.Fatalf("SaveUpdate failed: %v", err)
	}
	if !existed {
		t.Error("second save of same id should report an existing row")
	}

	got, err := s.ListFeed("blog-1", 50)
	if err != nil {
		t.Fatalf("ListFeed failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("ListFeed count = %d, want 1", len(got))
	}
	var body map[string]string
	if err := json.Unmarshal(got[0].Content, &body); err != nil {
		t.Fatalf("content did not round-trip: %v", err)
	}
	if body["text"] != "edited" {
		t.Errorf("text = %q, want %q", body["text"], "edited")
	}
}

func TestListFeedOrdering(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	rows := []StoredUpdate{
		textUpdate("old", "blog-1", "old", "2024-01-01T10:00:00Z"),
		textUpdate("new", "blog-1", "new", "2024-01-01T12:00:00Z"),
		textUpdate("pinned", "blog-1", "pinned", "2024-01-01T09:00:00Z"),
	}
	rows[2].Pinned = true

	for _, r := range rows {
		if _, err := s.SaveUpdate(r); err != nil {
			t.Fatalf("SaveUpdate failed: %v", err)
		}
	}

	got, err := s.ListFeed("blog-1", 50)
	if err != nil {
		t.Fatalf("ListFeed failed: %v", err)
	}
	want := []string{"pinned", "new", "old"}
	if len(got) != len(want) {
		t.Fatalf("ListFeed count = %d, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("ListFeed[%d] = %q, want %q", i, got[i].ID, id)
		}
	}
}

func TestListFeedExcludesDraftsAndDeleted(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	if _, err := s.SaveUpdate(textUpdate("live", "blog-1", "live", "2024-01-01T12:00:00Z")); err != nil {
		t.Fatalf("SaveUpdate failed: %v", err)
	}
	if _, err := s.SaveUpdate(textUpdate("draft", "blog-1", "draft", "")); err != nil {
		t.Fatalf("SaveUpdate failed: %v", err)
	}
	if _, err := s.SaveUpdate(textUpdate("gone", "blog-1", "gone", "2024-01-01T13:00:00Z")); err != nil {
		t.Fatalf("SaveUpdate failed: %v", err)
	}
	if err := s.DeleteUpdate("gone"); err != nil {
		t.Fatalf("DeleteUpdate failed: %v", err)
	}

	got, err := s.ListFeed("blog-1", 50)
	if err != nil {
		t.Fatalf("ListFeed failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "live" {
		t.Errorf("ListFeed = %v, want only the live row", got)
	}
}

func TestListFeedScopedToLiveblog(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	if _, err := s.SaveUpdate(textUpdate("a1", "blog-a", "a", "2024-01-01T12:00:00Z")); err != nil {
		t.Fatalf("SaveUpdate failed: %v", err)
	}
	if _, err := s.SaveUpdate(textUpdate("b1", "blog-b", "b", "2024-01-01T12:00:00Z")); err != nil {
		t.Fatalf("SaveUpdate failed: %v", err)
	}

	got, err := s.ListFeed("blog-a", 50)
	if err != nil {
		t.Fatalf("ListFeed failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "a1" {
		t.Errorf("ListFeed(blog-a) = %v, want only a1", got)
	}
}

func TestListFeedCap(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	for i := 0; i < 5; i++ {
		n := strconv.Itoa(i)
		if _, err := s.SaveUpdate(textUpdate("u"+n, "blog-1", "x", "2024-01-01T12:00:0"+n+"Z")); err != nil {
			t.Fatalf("SaveUpdate failed: %v", err)
		}
	}

	got, err := s.ListFeed("blog-1", 3)
	if err != nil {
		t.Fatalf("ListFeed failed: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("ListFeed count = %d, want 3", len(got))
	}
	if got[0].ID != "u4" {
		t.Errorf("newest survives the cap, got %q", got[0].ID)
	}
}

func TestDeleteNonexistentUpdate(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	if err := s.DeleteUpdate("nonexistent"); err != nil {
		t.Errorf("DeleteUpdate on nonexistent should not error, got: %v", err)
	}
}

func TestNullContentRoundTrip(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	ts := "2024-01-01T12:00:00Z"
	u := StoredUpdate{ID: "bare", LiveblogID: "blog-1", Content: json.RawMessage("null"), PublishedAt: &ts}
	if _, err := s.SaveUpdate(u); err != nil {
		t.Fatalf("SaveUpdate failed: %v", err)
	}

	got, err := s.ListFeed("blog-1", 50)
	if err != nil {
		t.Fatalf("ListFeed failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("ListFeed count = %d, want 1", len(got))
	}
	if string(got[0].Content) != "null" {
		t.Errorf("Content = %q, want null", got[0].Content)
	}
}
