package embed

import (
	"io"
	"strings"

	"golang.org/x/net/html"
)

// Mode selects how a mount embeds the liveblog.
type Mode string

const (
	// ModeIframe delegates everything to the hosted standalone viewer page
	// inside an isolated frame. This is the default.
	ModeIframe Mode = "iframe"
	// ModeNative wires transport, feed, renderer, and session tracking
	// directly inside the mount's style boundary.
	ModeNative Mode = "native"
)

// MountConfig is the declarative configuration read from one host-page mount
// element: the required data-liveblog-id plus data-mode, data-order, and the
// data-lazy flag.
type MountConfig struct {
	LiveblogID string
	Mode       Mode
	Order      Order
	Lazy       bool
}

// FindMounts scans host-page HTML for elements carrying data-liveblog-id.
// Pages with no mount element yield zero configs (and therefore zero DOM
// work and zero network requests) rather than an error; a misconfigured
// snippet must never break the host page.
func FindMounts(page io.Reader) ([]MountConfig, error) {
	doc, err := html.Parse(page)
	if err != nil {
		return nil, err
	}

	var mounts []MountConfig
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if cfg, ok := mountConfigFor(n); ok {
				mounts = append(mounts, cfg)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return mounts, nil
}

func mountConfigFor(n *html.Node) (MountConfig, bool) {
	attrs := make(map[string]string, len(n.Attr))
	for _, a := range n.Attr {
		attrs[strings.ToLower(a.Key)] = a.Val
	}

	id := strings.TrimSpace(attrs["data-liveblog-id"])
	if id == "" {
		return MountConfig{}, false
	}

	cfg := MountConfig{
		LiveblogID: id,
		Mode:       ModeIframe,
		Order:      ParseOrder(attrs["data-order"]),
	}
	if strings.EqualFold(attrs["data-mode"], string(ModeNative)) {
		cfg.Mode = ModeNative
	}
	// data-lazy is a boolean attribute: presence enables it unless the value
	// is explicitly "false".
	if v, ok := attrs["data-lazy"]; ok && !strings.EqualFold(v, "false") {
		cfg.Lazy = true
	}
	return cfg, true
}
