package embed

import (
	"net/url"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
)

func TestRenderFeedTextCard(t *testing.T) {
	r := &Renderer{StorageBaseURL: "https://cdn.example.com/public"}
	u := NewUpdate("1", json.RawMessage(`{"type":"text","text":"Kickoff"}`), ts("2024-01-01T12:00:00Z"), false)

	out := r.RenderFeed([]Update{u})
	if !strings.Contains(out, "Kickoff") {
		t.Errorf("rendered output missing text body: %s", out)
	}
	if !strings.Contains(out, "01 Jan 2024, 12:00:00") {
		t.Errorf("rendered output missing formatted timestamp: %s", out)
	}
	if !strings.Contains(out, `data-update-id="1"`) {
		t.Errorf("rendered output missing card id: %s", out)
	}
}

func TestRenderFeedEmptyPlaceholder(t *testing.T) {
	r := &Renderer{}
	out := r.RenderFeed(nil)
	if !strings.Contains(out, "No updates yet") {
		t.Errorf("empty feed should render placeholder, got: %s", out)
	}
}

func TestRenderFeedEscapesHostileText(t *testing.T) {
	r := &Renderer{}
	u := NewUpdate("1", json.RawMessage(`{"type":"text","text":"<script>alert(1)</script>"}`), nil, false)
	out := r.RenderFeed([]Update{u})
	if strings.Contains(out, "<script>alert(1)</script>") {
		t.Fatal("text content was not escaped")
	}
	if !strings.Contains(out, "&lt;script&gt;") {
		t.Errorf("expected escaped script tag in output: %s", out)
	}
}

func TestRenderFeedUnknownFallback(t *testing.T) {
	r := &Renderer{}
	u := NewUpdate("1", json.RawMessage(`{"type":"video","url":"x"}`), nil, false)
	out := r.RenderFeed([]Update{u})
	if !strings.Contains(out, "lq-unknown") {
		t.Fatalf("unknown content should render the fallback, got: %s", out)
	}
	if !strings.Contains(out, "video") {
		t.Errorf("fallback should show the payload so authors can spot it: %s", out)
	}
}

func TestRenderFeedNullContentChromeOnly(t *testing.T) {
	r := &Renderer{}
	u := NewUpdate("1", json.RawMessage(`null`), ts("2024-01-01T12:00:00Z"), true)
	out := r.RenderFeed([]Update{u})
	if !strings.Contains(out, "lq-pin") {
		t.Errorf("pin chrome should render: %s", out)
	}
	if !strings.Contains(out, "01 Jan 2024") {
		t.Errorf("timestamp chrome should render: %s", out)
	}
	if strings.Contains(out, "lq-text") || strings.Contains(out, "lq-unknown") {
		t.Errorf("null content should produce no body: %s", out)
	}
}

func TestRenderTextWithAttachedImage(t *testing.T) {
	r := &Renderer{StorageBaseURL: "https://cdn.example.com/public"}
	u := NewUpdate("1", json.RawMessage(`{"type":"text","text":"Look","image":{"path":"pics/goal.jpg","width":800,"height":600}}`), nil, false)
	out := r.RenderFeed([]Update{u})
	if !strings.Contains(out, "Look") {
		t.Errorf("text missing: %s", out)
	}
	if !strings.Contains(out, "https://cdn.example.com/public/pics/goal.jpg") {
		t.Errorf("resolved image URL missing: %s", out)
	}
	if !strings.Contains(out, `width="800"`) || !strings.Contains(out, `height="600"`) {
		t.Errorf("dimension hints missing: %s", out)
	}
}

func TestRenderLinkCard(t *testing.T) {
	r := &Renderer{}
	u := NewUpdate("1", json.RawMessage(`{"type":"link","url":"https://example.com/story","title":"Big story","description":"What happened","siteName":"The Example"}`), nil, false)
	out := r.RenderFeed([]Update{u})
	for _, want := range []string{`href="https://example.com/story"`, "Big story", "What happened", "The Example", `rel="noopener noreferrer"`} {
		if !strings.Contains(out, want) {
			t.Errorf("link card missing %q: %s", want, out)
		}
	}
}

func TestRenderYouTubeEmbed(t *testing.T) {
	r := &Renderer{}
	u := NewUpdate("1", json.RawMessage(`{"type":"link","url":"https://www.youtube.com/watch?v=abc123","embed":{"provider":"youtube"}}`), nil, false)
	out := r.RenderFeed([]Update{u})
	if !strings.Contains(out, "https://www.youtube.com/embed/abc123") {
		t.Errorf("expected embeddable player URL: %s", out)
	}
	if !strings.Contains(out, "lq-video") {
		t.Errorf("expected responsive wrapper: %s", out)
	}
}

func TestRenderEmbedHTMLInjectedInScope(t *testing.T) {
	r := &Renderer{}
	u := NewUpdate("1", json.RawMessage(`{"type":"link","url":"https://x.com/post/1","embed":{"provider":"twitter","html":"<blockquote>quoted</blockquote>"}}`), nil, false)
	out := r.RenderFeed([]Update{u})
	if !strings.Contains(out, "<blockquote>quoted</blockquote>") {
		t.Errorf("preview HTML should be injected as-is: %s", out)
	}
	if !strings.HasPrefix(out, `<div class="lq-embed">`) {
		t.Errorf("injection must stay inside the scoped container: %s", out)
	}
}

func TestResolveImageURLEncodesSegments(t *testing.T) {
	got := ResolveImageURL("https://cdn.example.com/public", "folder/a b.png")
	want := "https://cdn.example.com/public/folder/a%20b.png"
	if got != want {
		t.Fatalf("ResolveImageURL = %q, want %q", got, want)
	}

	// Round-trip: decoding gives back the original path.
	u, err := url.Parse(got)
	if err != nil {
		t.Fatalf("resolved URL does not parse: %v", err)
	}
	if u.Path != "/public/folder/a b.png" {
		t.Errorf("decoded path = %q, want %q", u.Path, "/public/folder/a b.png")
	}
}

func TestResolveImageURLPreservesSeparators(t *testing.T) {
	got := ResolveImageURL("https://cdn.example.com/public/", "/a/b/c.png")
	want := "https://cdn.example.com/public/a/b/c.png"
	if got != want {
		t.Fatalf("ResolveImageURL = %q, want %q", got, want)
	}
}

func TestYouTubeEmbedURL(t *testing.T) {
	cases := []struct{ in, want string }{
		{"https://www.youtube.com/watch?v=abc123", "https://www.youtube.com/embed/abc123"},
		{"https://youtu.be/abc123", "https://www.youtube.com/embed/abc123"},
		{"https://www.youtube.com/shorts/abc123", "https://www.youtube.com/embed/abc123"},
		{"https://www.youtube.com/embed/abc123", "https://www.youtube.com/embed/abc123"},
		{"https://example.com/video", "https://example.com/video"},
	}
	for _, c := range cases {
		if got := youTubeEmbedURL(c.in); got != c.want {
			t.Errorf("youTubeEmbedURL(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
