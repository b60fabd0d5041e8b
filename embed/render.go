package embed

import (
	"bytes"
	"fmt"
	"html"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// timestampFormat renders absolute times the same way for every viewer:
// en-GB day-first with a 24-hour clock, fixed to UTC so editors and viewers
// in different timezones see identical times.
const timestampFormat = "02 Jan 2006, 15:04:05"

// Renderer turns a sorted update list into an HTML fragment. Everything is
// emitted inside a single .lq-embed container with its own stylesheet so
// host-page CSS cannot leak in or out.
type Renderer struct {
	// StorageBaseURL is the public base that storage-relative image paths
	// resolve against.
	StorageBaseURL string
}

// RenderFeed draws one card per update, or the empty-state placeholder when
// there is nothing to show.
func (r *Renderer) RenderFeed(updates []Update) string {
	var buf bytes.Buffer
	buf.WriteString(`<div class="lq-embed">`)
	buf.WriteString("<style>")
	buf.WriteString(widgetCSS)
	buf.WriteString("</style>")
	if len(updates) == 0 {
		buf.WriteString(`<p class="lq-empty">No updates yet.</p>`)
	} else {
		for i := range updates {
			r.renderCard(&buf, updates[i])
		}
	}
	buf.WriteString(`</div>`)
	return buf.String()
}

func (r *Renderer) renderCard(buf *bytes.Buffer, u Update) {
	fmt.Fprintf(buf, `<article class="lq-card" data-update-id="%s">`, html.EscapeString(u.ID))
	if u.Pinned {
		buf.WriteString(`<span class="lq-pin">Pinned</span>`)
	}
	if tc, ok := u.Content.(TextContent); ok && tc.Event != "" {
		fmt.Fprintf(buf, `<span class="lq-event">%s</span>`, html.EscapeString(tc.Event))
	}

	switch c := u.Content.(type) {
	case nil:
		// Null content: only the chrome renders.
	case TextContent:
		r.renderText(buf, c)
	case ImageContent:
		r.renderImage(buf, c.ImageRef)
	case LinkContent:
		r.renderLink(buf, c)
	case UnknownContent:
		renderUnknown(buf, c.Raw)
	default:
		// Future variants degrade to the visible fallback too.
		raw, _ := json.Marshal(c)
		renderUnknown(buf, raw)
	}

	if u.PublishedAt != nil {
		ts := u.PublishedAt.UTC()
		fmt.Fprintf(buf, `<time class="lq-time" datetime="%s">%s</time>`,
			html.EscapeString(ts.Format(time.RFC3339)), ts.Format(timestampFormat))
	}
	buf.WriteString(`</article>`)
}

func (r *Renderer) renderText(buf *bytes.Buffer, c TextContent) {
	if c.Title != "" {
		fmt.Fprintf(buf, `<h3 class="lq-title">%s</h3>`, html.EscapeString(c.Title))
	}
	if c.Text != "" {
		fmt.Fprintf(buf, `<p class="lq-text">%s</p>`, html.EscapeString(c.Text))
	}
	if c.Image != nil {
		r.renderImage(buf, *c.Image)
	}
}

func (r *Renderer) renderImage(buf *bytes.Buffer, ref ImageRef) {
	src := ResolveImageURL(r.StorageBaseURL, ref.Path)
	buf.WriteString(`<img class="lq-image" src="` + html.EscapeString(src) + `" alt=""`)
	if ref.Width > 0 {
		fmt.Fprintf(buf, ` width="%d"`, ref.Width)
	}
	if ref.Height > 0 {
		fmt.Fprintf(buf, ` height="%d"`, ref.Height)
	}
	buf.WriteString(` loading="lazy"/>`)
}

func (r *Renderer) renderLink(buf *bytes.Buffer, c LinkContent) {
	if c.Embed != nil {
		if strings.EqualFold(c.Embed.Provider, "youtube") {
			fmt.Fprintf(buf,
				`<div class="lq-video"><iframe src="%s" title="%s" allow="accelerometer; autoplay; clipboard-write; encrypted-media; gyroscope; picture-in-picture" allowfullscreen></iframe></div>`,
				html.EscapeString(youTubeEmbedURL(c.URL)), html.EscapeString(linkLabel(c)))
			return
		}
		if c.Embed.HTML != "" {
			// Preview HTML comes from the server-side embed generator, not
			// viewer input; it is injected as-is inside the scoped container.
			buf.WriteString(c.Embed.HTML)
			return
		}
	}

	fmt.Fprintf(buf, `<a class="lq-link" href="%s" target="_blank" rel="noopener noreferrer">`, html.EscapeString(c.URL))
	if c.Image != "" {
		fmt.Fprintf(buf, `<img class="lq-link-thumb" src="%s" alt="" loading="lazy"/>`, html.EscapeString(c.Image))
	}
	fmt.Fprintf(buf, `<span class="lq-link-title">%s</span>`, html.EscapeString(linkLabel(c)))
	if c.Description != "" {
		fmt.Fprintf(buf, `<p class="lq-link-desc">%s</p>`, html.EscapeString(c.Description))
	}
	if c.SiteName != "" {
		fmt.Fprintf(buf, `<span class="lq-link-site">%s</span>`, html.EscapeString(c.SiteName))
	}
	buf.WriteString(`</a>`)
}

// renderUnknown pretty-prints a body that matched no known shape so authors
// can spot malformed payloads instead of the widget silently losing them.
func renderUnknown(buf *bytes.Buffer, raw json.RawMessage) {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		pretty.Reset()
		pretty.Write(raw)
	}
	fmt.Fprintf(buf, `<pre class="lq-unknown">%s</pre>`, html.EscapeString(pretty.String()))
}

func linkLabel(c LinkContent) string {
	if c.Title != "" {
		return c.Title
	}
	return c.URL
}

// ResolveImageURL joins a storage-relative object path onto the public base
// URL, percent-encoding each path segment independently so special characters
// in filenames survive while separators are preserved.
func ResolveImageURL(base, path string) string {
	segs := strings.Split(strings.TrimLeft(path, "/"), "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.TrimRight(base, "/") + "/" + strings.Join(segs, "/")
}

// youTubeEmbedURL maps the common YouTube URL shapes onto the embeddable
// player URL. Unrecognized shapes pass through untouched.
func youTubeEmbedURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	switch {
	case host == "youtu.be":
		if id := strings.Trim(u.Path, "/"); id != "" {
			return "https://www.youtube.com/embed/" + id
		}
	case host == "youtube.com" || host == "m.youtube.com":
		if id := u.Query().Get("v"); id != "" {
			return "https://www.youtube.com/embed/" + id
		}
		if id := strings.TrimPrefix(u.Path, "/shorts/"); id != u.Path && id != "" {
			return "https://www.youtube.com/embed/" + strings.Trim(id, "/")
		}
		if strings.HasPrefix(u.Path, "/embed/") {
			return raw
		}
	}
	return raw
}
