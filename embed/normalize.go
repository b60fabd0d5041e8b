package embed

import (
	"strings"

	json "github.com/goccy/go-json"
)

// Normalize classifies an arbitrary decoded content body into exactly one
// variant of the Content union. Classification looks only at the "type"
// discriminator plus the minimal field that type requires; anything that
// fails every predicate becomes UnknownContent. Normalize never fails and
// never panics; optional fields may be absent in any variant it returns.
func Normalize(raw json.RawMessage) Content {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return UnknownContent{Raw: raw}
	}

	typ, _ := m["type"].(string)
	switch typ {
	case "text":
		text, textOK := m["text"].(string)
		title, titleOK := m["title"].(string)
		img := imageRefFrom(m["image"])
		// Text and title may both be absent only when an image is attached.
		if !textOK && !titleOK && img == nil {
			return UnknownContent{Raw: raw}
		}
		event, _ := m["event"].(string)
		return TextContent{Text: text, Title: title, Image: img, Event: event}

	case "image":
		if path, ok := m["path"].(string); ok {
			return ImageContent{ImageRef{
				Path:   path,
				Width:  intFrom(m["width"]),
				Height: intFrom(m["height"]),
			}}
		}

	case "link":
		if u, ok := m["url"].(string); ok {
			c := LinkContent{URL: u}
			c.Title, _ = m["title"].(string)
			c.Description, _ = m["description"].(string)
			c.Image, _ = m["image"].(string)
			c.SiteName, _ = m["siteName"].(string)
			if em, ok := m["embed"].(map[string]any); ok {
				provider, _ := em["provider"].(string)
				if provider != "" {
					le := &LinkEmbed{Provider: provider}
					le.HTML, _ = em["html"].(string)
					c.Embed = le
				}
			}
			return c
		}
	}

	return UnknownContent{Raw: raw}
}

// imageRefFrom extracts an attached image object, or nil if the value is not
// an object with a string path.
func imageRefFrom(v any) *ImageRef {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	path, ok := m["path"].(string)
	if !ok || path == "" {
		return nil
	}
	return &ImageRef{
		Path:   path,
		Width:  intFrom(m["width"]),
		Height: intFrom(m["height"]),
	}
}

// intFrom reads a numeric JSON field as an int, tolerating absence and
// non-numeric values.
func intFrom(v any) int {
	f, ok := v.(float64)
	if !ok || f < 0 {
		return 0
	}
	return int(f)
}
