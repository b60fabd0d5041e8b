package livequest

import (
	"net/http"
	"net/url"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"

	"github.com/aaquib90/livequest/analytics"
	"github.com/aaquib90/livequest/embed"
	"github.com/aaquib90/livequest/views"
)

const (
	streamWriteWait = 10 * time.Second
	streamPingEvery = 30 * time.Second
	maxTrackBody    = 4 << 10
)

// handleFeed serves the snapshot for one liveblog. The body comes from the
// TTL cache so poll storms collapse into one query per window.
func (a *App) handleFeed(c echo.Context) error {
	liveblogID := c.Param("id")
	body, err := a.Cache.Snapshot(liveblogID)
	if err != nil {
		return err
	}
	a.metrics.SnapshotRequests.Inc()
	return c.JSONBlob(http.StatusOK, body)
}

var streamUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Widgets connect from arbitrary host origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleStream upgrades to a websocket and forwards change events for one
// liveblog until the client goes away.
func (a *App) handleStream(c echo.Context) error {
	liveblogID := c.Param("id")
	conn, err := streamUpgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	events, cancel := a.Hub.Subscribe(liveblogID)
	defer cancel()
	a.metrics.StreamClients.Inc()
	defer a.metrics.StreamClients.Dec()

	// Reader drains control frames and signals disconnect.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(streamPingEvery)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				return nil
			}
			conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return nil
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		case <-closed:
			return nil
		}
	}
}

// handleTrack ingests widget presence telemetry. Bad payloads get a 400,
// rate-limited callers a 429; accepted events record and return 204.
func (a *App) handleTrack(c echo.Context) error {
	liveblogID := c.Param("id")

	var req trackRequest
	body := http.MaxBytesReader(c.Response(), c.Request().Body, maxTrackBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if !analytics.ValidSessionID(req.SessionID) || !analytics.ValidEvent(req.Event) || !analytics.ValidMode(req.Mode) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid event")
	}

	if !a.trackLimiter.Allow(c.RealIP()) {
		a.metrics.TrackRejected.Inc()
		return echo.NewHTTPError(http.StatusTooManyRequests, "slow down")
	}

	var err error
	switch req.Event {
	case analytics.EventStart:
		err = a.analytics.RecordStart(req.SessionID, liveblogID, req.Mode)
	case analytics.EventPing:
		err = a.analytics.RecordPing(req.SessionID, liveblogID, req.Mode)
	}
	if err != nil {
		// Telemetry loss is acceptable; the widget never needs to know.
		a.log.Warn().Err(err).Str("liveblog", liveblogID).Msg("track record failed")
	}
	a.metrics.TrackEvents.WithLabelValues(req.Event).Inc()
	return c.NoContent(http.StatusNoContent)
}

// handleStats exposes the per-liveblog session summary.
func (a *App) handleStats(c echo.Context) error {
	stats, err := a.analytics.GetStats(c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}

// handleViewer serves the hosted page iframe embeds point at: the feed
// rendered server-side with the same engine the native widget uses, plus a
// signed cookie so repeat visits keep one session id.
func (a *App) handleViewer(c echo.Context) error {
	liveblogID := c.Param("id")

	body, err := a.Cache.Snapshot(liveblogID)
	if err != nil {
		return err
	}
	updates, err := embed.DecodeSnapshot(body)
	if err != nil {
		return err
	}
	if order := embed.ParseOrder(c.QueryParam("order")); order == embed.OrderOldest {
		feed := embed.NewFeed()
		feed.ReplaceAll(updates)
		updates = feed.Sorted(order)
	}

	idPath := url.PathEscape(liveblogID)
	data := views.ViewerData{
		LiveblogID:  liveblogID,
		FeedHTML:    a.renderer.RenderFeed(updates),
		StreamPath:  "/api/embed/" + idPath + "/stream",
		TrackPath:   "/api/embed/" + idPath + "/track",
		SessionID:   a.viewerSessionID(c),
		PollSeconds: 5,
	}
	return RenderHTML(c, http.StatusOK, views.Viewer(data))
}

// viewerSessionID returns the visitor's stable session id, minting one into
// the cookie on first sight. Cookie failures degrade to a per-request id.
func (a *App) viewerSessionID(c echo.Context) string {
	sess, err := session.Get(viewerSessionName, c)
	if err != nil {
		return uuid.NewString()
	}
	if sid, ok := sess.Values["sid"].(string); ok && sid != "" {
		return sid
	}
	sid := uuid.NewString()
	sess.Values["sid"] = sid
	if err := sess.Save(c.Request(), c.Response()); err != nil {
		a.log.Debug().Err(err).Msg("viewer session save failed")
	}
	return sid
}
