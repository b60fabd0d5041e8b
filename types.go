package livequest

import json "github.com/goccy/go-json"

// StoredUpdate is one row of a liveblog's feed as persisted and as served by
// the snapshot endpoint. Content is kept as the raw JSON the composer
// authored; the embed client classifies it on its side.
type StoredUpdate struct {
	ID          string          `json:"id"`
	LiveblogID  string          `json:"-"`
	Content     json.RawMessage `json:"content"`
	PublishedAt *string         `json:"publishedAt"` // RFC3339, nil for drafts
	Pinned      bool            `json:"pinned"`
	Deleted     bool            `json:"-"`
}

// feedResponse is the snapshot endpoint envelope.
type feedResponse struct {
	Updates []StoredUpdate `json:"updates"`
}

// trackRequest is the telemetry call body accepted by the track endpoint.
type trackRequest struct {
	SessionID string `json:"sessionId"`
	Event     string `json:"event"`
	Mode      string `json:"mode"`
}
