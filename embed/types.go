package embed

import (
	"time"

	json "github.com/goccy/go-json"
)

// Update is one published content item in a liveblog feed. IDs are opaque and
// unique within a feed; the Feed never holds two entries with the same ID.
type Update struct {
	ID          string
	Content     Content
	PublishedAt *time.Time
	Pinned      bool
}

// NewUpdate builds an Update from already-decoded fields, classifying the raw
// content body on the way in.
func NewUpdate(id string, content json.RawMessage, publishedAt *time.Time, pinned bool) Update {
	return Update{
		ID:          id,
		Content:     Normalize(content),
		PublishedAt: publishedAt,
		Pinned:      pinned,
	}
}

// Content is the tagged union of renderable update bodies. A nil Content
// renders no body; only the timestamp and pin chrome appear.
type Content interface {
	contentType() string
}

// TextContent is a prose update, optionally titled, optionally carrying an
// attached image and a pass-through event tag.
type TextContent struct {
	Text  string
	Title string
	Image *ImageRef
	Event string
}

// ImageRef points at a storage-relative object. Width and height are hints
// from the composer and may be zero.
type ImageRef struct {
	Path   string
	Width  int
	Height int
}

// ImageContent is a standalone image update.
type ImageContent struct {
	ImageRef
}

// LinkContent is a shared link with server-generated preview metadata.
type LinkContent struct {
	URL         string
	Title       string
	Description string
	Image       string // absolute thumbnail URL
	SiteName    string
	Embed       *LinkEmbed
}

// LinkEmbed carries a social-embed payload produced by the server-side
// preview generator.
type LinkEmbed struct {
	Provider string
	HTML     string
}

// UnknownContent preserves a body that matched no known shape so it can be
// rendered as a visible fallback instead of being dropped.
type UnknownContent struct {
	Raw json.RawMessage
}

func (TextContent) contentType() string    { return "text" }
func (ImageContent) contentType() string   { return "image" }
func (LinkContent) contentType() string    { return "link" }
func (UnknownContent) contentType() string { return "unknown" }

// wireUpdate is the JSON shape delivered by the feed endpoint.
type wireUpdate struct {
	ID          string          `json:"id"`
	Content     json.RawMessage `json:"content"`
	PublishedAt *string         `json:"publishedAt"`
	Pinned      bool            `json:"pinned"`
}

// wireSnapshot is the feed endpoint response envelope.
type wireSnapshot struct {
	Updates []wireUpdate `json:"updates"`
}

// DecodeSnapshot parses a feed endpoint response body into Updates. Rows with
// an empty id are skipped; timestamps that do not parse are treated as absent.
func DecodeSnapshot(data []byte) ([]Update, error) {
	var snap wireSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	updates := make([]Update, 0, len(snap.Updates))
	for _, w := range snap.Updates {
		if w.ID == "" {
			continue
		}
		var ts *time.Time
		if w.PublishedAt != nil {
			if t, err := time.Parse(time.RFC3339, *w.PublishedAt); err == nil {
				ts = &t
			}
		}
		updates = append(updates, NewUpdate(w.ID, w.Content, ts, w.Pinned))
	}
	return updates, nil
}
