// Package analytics records the viewer sessions reported by embedded
// liveblog widgets. A widget sends a start event when it attaches and ping
// heartbeats while it stays on screen; the store aggregates those into
// per-liveblog session rows.
package analytics

import "time"

// Events a widget may report.
const (
	EventStart = "start"
	EventPing  = "ping"
)

// Embed modes a widget may report.
const (
	ModeIframe = "iframe"
	ModeNative = "native"
)

// maxSessionIDLen bounds accepted session ids. UUIDs are 36 chars; anything
// much longer is garbage or abuse.
const maxSessionIDLen = 64

// ValidEvent reports whether e is an event name the tracker accepts.
func ValidEvent(e string) bool {
	return e == EventStart || e == EventPing
}

// ValidMode reports whether m is a recognized embed mode.
func ValidMode(m string) bool {
	return m == ModeIframe || m == ModeNative
}

// ValidSessionID reports whether sid is a plausible client session id.
func ValidSessionID(sid string) bool {
	return sid != "" && len(sid) <= maxSessionIDLen
}

// Session is one widget's presence on one liveblog.
type Session struct {
	SessionID  string    `json:"session_id"`
	LiveblogID string    `json:"liveblog_id"`
	Mode       string    `json:"mode"`
	StartedAt  time.Time `json:"started_at"`
	LastSeen   time.Time `json:"last_seen"`
	Pings      int       `json:"pings"`
}

// Stats summarizes viewer activity for one liveblog.
type Stats struct {
	LiveblogID    string `json:"liveblog_id"`
	TotalSessions int    `json:"total_sessions"`
	ActiveNow     int    `json:"active_now"`
	IframeCount   int    `json:"iframe_count"`
	NativeCount   int    `json:"native_count"`
}
