package views

// ViewerData carries everything the iframe viewer page needs to render one
// liveblog: the server-rendered feed markup plus the endpoints the page's
// refresh script talks to.
type ViewerData struct {
	LiveblogID  string // used as the title fallback when Title is empty
	Title       string
	FeedHTML    string // pre-rendered widget markup, inserted as-is
	StreamPath  string // websocket path for change notifications
	TrackPath   string // viewer presence endpoint
	SessionID   string
	PollSeconds int // fallback refresh interval when the stream is down
}
