package livequest

import (
	"encoding/xml"
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/aaquib90/livequest/embed"
)

type rssXML struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title       string    `xml:"title"`
	Link        string    `xml:"link"`
	Description string    `xml:"description"`
	Items       []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description,omitempty"`
	PubDate     string `xml:"pubDate,omitempty"`
	GUID        string `xml:"guid"`
}

// handleFeedXML serves one liveblog's updates as RSS so readers can follow
// a liveblog outside the widget.
func (a *App) handleFeedXML(c echo.Context) error {
	liveblogID := c.Param("id")
	body, err := a.Cache.Snapshot(liveblogID)
	if err != nil {
		return err
	}
	updates, err := embed.DecodeSnapshot(body)
	if err != nil {
		return err
	}

	pageURL := a.Config.PublicURL + "/embed/" + url.PathEscape(liveblogID)
	items := make([]rssItem, 0, len(updates))
	for _, u := range updates {
		title, desc := rssText(u.Content)
		pubDate := ""
		if u.PublishedAt != nil {
			pubDate = u.PublishedAt.Format(time.RFC1123Z)
		}
		items = append(items, rssItem{
			Title:       title,
			Link:        pageURL + "#" + url.PathEscape(u.ID),
			Description: desc,
			PubDate:     pubDate,
			GUID:        liveblogID + "/" + u.ID,
		})
	}

	feed := rssXML{
		Version: "2.0",
		Channel: rssChannel{
			Title:       "Live updates",
			Link:        pageURL,
			Description: "Latest updates for this liveblog",
			Items:       items,
		},
	}
	c.Response().Header().Set(echo.HeaderContentType, "application/rss+xml; charset=utf-8")
	c.Response().WriteHeader(http.StatusOK)
	c.Response().Write([]byte(xml.Header))
	return xml.NewEncoder(c.Response()).Encode(feed)
}

// rssText derives an item title and description from an update body.
func rssText(content embed.Content) (title, desc string) {
	switch c := content.(type) {
	case embed.TextContent:
		if c.Title != "" {
			return c.Title, c.Text
		}
		return firstLine(c.Text), ""
	case embed.ImageContent:
		return "Photo update", ""
	case embed.LinkContent:
		if c.Title != "" {
			return c.Title, c.Description
		}
		return c.URL, c.Description
	default:
		return "Update", ""
	}
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	if s == "" {
		return "Update"
	}
	return s
}
