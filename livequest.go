// Package livequest is the serving side of the Livequest embed widget: the
// snapshot feed, the change-notification stream, viewer session telemetry,
// the hosted viewer page, and the public storage tree.
//
// The embeddable client lives in the embed subpackage; this package gives it
// a real collaborator to talk to.
package livequest

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/aaquib90/livequest/analytics"
	"github.com/aaquib90/livequest/embed"
)

// App is the central livequest application. It wires together the updates
// store, the snapshot cache, the change hub, session telemetry, and the
// HTTP surface.
type App struct {
	Config Config
	Echo   *echo.Echo
	Store  *Store
	Cache  *FeedCache
	Hub    *Hub

	log          zerolog.Logger
	renderer     *embed.Renderer
	analytics    *analytics.Store
	trackLimiter *analytics.Limiter
	metrics      *Metrics
	stopCleanup  func()
	ready        bool
}

// New creates a livequest App with the given configuration. Nothing is
// opened until Setup or Start.
func New(cfg Config, log zerolog.Logger) *App {
	cfg.setDefaults()
	return &App{
		Config: cfg,
		Echo:   echo.New(),
		Hub:    NewHub(),
		log:    log,
	}
}

// Setup opens the stores and installs middleware and routes without starting
// the listener. Start calls it; tests serve a.Echo directly after it.
func (a *App) Setup() error {
	if a.ready {
		return nil
	}
	if a.Config.SessionSecret == "" {
		return fmt.Errorf("livequest: SessionSecret is required")
	}

	store, err := NewStore(a.Config.DatabasePath)
	if err != nil {
		return fmt.Errorf("livequest: init store: %w", err)
	}
	a.Store = store

	a.Cache = NewFeedCache(a.Store, a.Config.FeedCacheTTL, a.Config.FeedPageSize)
	a.renderer = &embed.Renderer{StorageBaseURL: a.Config.PublicURL + "/storage"}
	a.trackLimiter = analytics.NewLimiter(a.Config.TrackRateLimit, a.Config.TrackRateWindow)
	a.metrics = NewMetrics()

	analyticsStore, err := analytics.NewStore(a.Config.AnalyticsDatabasePath, a.log)
	if err != nil {
		return fmt.Errorf("livequest: init analytics: %w", err)
	}
	a.analytics = analyticsStore
	a.stopCleanup = analyticsStore.StartCleanupScheduler(90, 24*time.Hour)

	a.Echo.HideBanner = true
	a.setupMiddleware()
	a.setupRoutes()
	a.ready = true
	return nil
}

// Start initializes the app and serves until the listener fails or the
// server is shut down.
func (a *App) Start() error {
	if err := a.Setup(); err != nil {
		return err
	}
	a.log.Info().Str("addr", a.Config.Addr).Msg("livequest listening")
	if err := a.Echo.Start(a.Config.Addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (a *App) setupRoutes() {
	e := a.Echo

	// Widget-facing API
	e.GET("/api/embed/:id/feed", a.handleFeed)
	e.GET("/api/embed/:id/stream", a.handleStream)
	e.POST("/api/embed/:id/track", a.handleTrack)
	e.GET("/api/embed/:id/stats", a.handleStats)

	// Hosted viewer page, iframe mode target
	e.GET("/embed/:id", a.handleViewer)
	e.GET("/embed/:id/feed.xml", a.handleFeedXML)

	// Public storage objects and the resizing thumbnail proxy
	e.GET("/storage/thumb/:width/*", a.handleThumbnail)
	e.Static("/storage", a.Config.StorageDir)

	e.GET("/metrics", echo.WrapHandler(a.metrics.Handler()))
	e.GET("/healthz", handleHealthz)
}

// PublishUpdate saves an update, drops the cached snapshot, and notifies
// every connected widget of that liveblog.
func (a *App) PublishUpdate(u StoredUpdate) error {
	existed, err := a.Store.SaveUpdate(u)
	if err != nil {
		return fmt.Errorf("save update: %w", err)
	}
	a.Cache.Invalidate(u.LiveblogID)
	ev := Event{Event: EventInsert}
	if existed {
		ev.Event = EventUpdate
	}
	a.Hub.Broadcast(u.LiveblogID, ev)
	return nil
}

// RemoveUpdate soft-deletes an update and notifies connected widgets.
func (a *App) RemoveUpdate(liveblogID, updateID string) error {
	if err := a.Store.DeleteUpdate(updateID); err != nil {
		return fmt.Errorf("delete update: %w", err)
	}
	a.Cache.Invalidate(liveblogID)
	a.Hub.Broadcast(liveblogID, Event{Event: EventDelete})
	return nil
}

// Close cleans up resources. Call this when the app is shutting down.
func (a *App) Close() error {
	if a.stopCleanup != nil {
		a.stopCleanup()
	}
	if a.trackLimiter != nil {
		a.trackLimiter.Stop()
	}
	if a.Store != nil {
		a.Store.Close()
	}
	if a.analytics != nil {
		a.analytics.Close()
	}
	return nil
}

func handleHealthz(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}
