package views

import (
	"bytes"
	"context"
	"html"
	"io"
	"strconv"

	"github.com/a-h/templ"
	json "github.com/goccy/go-json"
)

// Viewer renders the standalone page an iframe embed points at: a bare HTML
// shell around the pre-rendered feed, plus a small script that keeps the
// feed fresh and reports viewer presence.
func Viewer(data ViewerData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var buf bytes.Buffer
		renderViewer(&buf, data)
		_, err := w.Write(buf.Bytes())
		return err
	})
}

func renderViewer(buf *bytes.Buffer, data ViewerData) {
	title := data.Title
	if title == "" {
		title = "Live updates"
		if data.LiveblogID != "" {
			title = "Live updates: " + data.LiveblogID
		}
	}
	buf.WriteString("<!DOCTYPE html><html lang=\"en\"><head>")
	buf.WriteString("<meta charset=\"utf-8\">")
	buf.WriteString("<meta name=\"viewport\" content=\"width=device-width, initial-scale=1\">")
	buf.WriteString("<meta name=\"robots\" content=\"noindex\">")
	buf.WriteString("<title>" + html.EscapeString(title) + "</title>")
	buf.WriteString("<style>body{margin:0;background:transparent}</style>")
	buf.WriteString("</head><body>")
	buf.WriteString("<main id=\"lq-feed\">")
	buf.WriteString(data.FeedHTML)
	buf.WriteString("</main>")
	renderViewerScript(buf, data)
	buf.WriteString("</body></html>")
}

// renderViewerScript emits the refresh loop. It listens on the change
// stream and re-fetches the page on every event; if the stream drops it
// falls back to interval polling for the rest of the page's life.
func renderViewerScript(buf *bytes.Buffer, data ViewerData) {
	poll := data.PollSeconds
	if poll <= 0 {
		poll = 5
	}
	buf.WriteString("<script>(function(){")
	buf.WriteString("var stream=" + jsString(data.StreamPath) + ",track=" + jsString(data.TrackPath) + ",sid=" + jsString(data.SessionID) + ";")
	buf.WriteString("var pollMs=" + strconv.Itoa(poll*1000) + ";")
	buf.WriteString(`function refresh(){fetch(location.href,{cache:"no-store"}).then(function(r){return r.text()}).then(function(t){var d=new DOMParser().parseFromString(t,"text/html");var f=d.getElementById("lq-feed");if(f){document.getElementById("lq-feed").innerHTML=f.innerHTML}}).catch(function(){})}`)
	buf.WriteString(`function send(ev){if(!track||!sid)return;fetch(track,{method:"POST",headers:{"Content-Type":"application/json"},body:JSON.stringify({sessionId:sid,event:ev,mode:"iframe"})}).catch(function(){})}`)
	buf.WriteString("send(\"start\");setInterval(function(){send(\"ping\")},15000);")
	buf.WriteString("var polling=false;function startPolling(){if(polling)return;polling=true;setInterval(refresh,pollMs)}")
	buf.WriteString("if(stream&&window.WebSocket){var proto=location.protocol===\"https:\"?\"wss://\":\"ws://\";")
	buf.WriteString("try{var ws=new WebSocket(proto+location.host+stream);ws.onmessage=refresh;ws.onerror=startPolling;ws.onclose=startPolling}catch(e){startPolling()}")
	buf.WriteString("}else{startPolling()}")
	buf.WriteString("})();</script>")
}

// jsString encodes s as a JavaScript string literal.
func jsString(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(b)
}
