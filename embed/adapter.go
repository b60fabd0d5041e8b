// Package embed is the Livequest embeddable live-update client: it discovers
// mount points in arbitrary host pages, keeps an in-memory feed synchronized
// with the backend over a push channel with polling fallback, tracks viewing
// sessions, and renders the feed as a style-isolated HTML fragment.
//
// Nothing in this package is fatal. Configuration errors are silent no-ops,
// transport errors recover locally, telemetry errors are swallowed, and
// malformed content degrades to a visible fallback. A host page can never be
// broken by anything originating here.
package embed

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Options configures embeds created by New or Attach.
type Options struct {
	// APIBaseURL is the backend root, e.g. "https://studio.example.com".
	APIBaseURL string
	// StorageBaseURL resolves storage-relative image paths. Defaults to
	// APIBaseURL + "/storage".
	StorageBaseURL string
	// ViewerBaseURL is where iframe-mode frames point. Defaults to
	// APIBaseURL + "/embed".
	ViewerBaseURL string
	// PollInterval is the fallback polling cadence (default 5s).
	PollInterval time.Duration
	// Heartbeat is the telemetry ping cadence (default 15s).
	Heartbeat time.Duration
	// HTTPClient is shared by snapshot fetches and telemetry calls.
	HTTPClient *http.Client
	// Sessions persists per-liveblog session ids (default in-memory).
	Sessions SessionStore
	// Logger receives local-only failure logging (default disabled).
	Logger *zerolog.Logger
	// OnRender fires with fresh widget HTML after every feed mutation.
	OnRender func(liveblogID, html string)
}

func (o *Options) setDefaults() {
	if o.StorageBaseURL == "" {
		o.StorageBaseURL = strings.TrimRight(o.APIBaseURL, "/") + "/storage"
	}
	if o.ViewerBaseURL == "" {
		o.ViewerBaseURL = strings.TrimRight(o.APIBaseURL, "/") + "/embed"
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 5 * time.Second
	}
	if o.Heartbeat <= 0 {
		o.Heartbeat = 15 * time.Second
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if o.Sessions == nil {
		o.Sessions = NewMemSessionStore()
	}
	if o.Logger == nil {
		nop := zerolog.Nop()
		o.Logger = &nop
	}
}

// Embed is one live widget instance bound to a single mount point. Construct
// with New, start with Start, release with Close. Close is idempotent and
// guarantees no work happens after teardown.
type Embed struct {
	cfg  MountConfig
	opts Options
	log  zerolog.Logger

	feed     *Feed
	renderer *Renderer

	mu        sync.Mutex
	html      string
	started   bool
	cancel    context.CancelFunc
	transport *Transport
	tracker   *Tracker

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New constructs an embed for one mount. No network or timer work happens
// until Start.
func New(cfg MountConfig, opts Options) *Embed {
	opts.setDefaults()
	if cfg.Mode == "" {
		cfg.Mode = ModeIframe
	}
	if cfg.Order == "" {
		cfg.Order = OrderNewest
	}
	log := opts.Logger.With().Str("liveblog", cfg.LiveblogID).Logger()
	return &Embed{
		cfg:      cfg,
		opts:     opts,
		log:      log,
		feed:     NewFeed(),
		renderer: &Renderer{StorageBaseURL: opts.StorageBaseURL},
		done:     make(chan struct{}),
	}
}

// Attach discovers every mount in a host page and starts the non-lazy ones.
// A page without mounts yields an empty slice and no side effects.
func Attach(ctx context.Context, page io.Reader, opts Options) ([]*Embed, error) {
	mounts, err := FindMounts(page)
	if err != nil {
		return nil, err
	}
	embeds := make([]*Embed, 0, len(mounts))
	for _, m := range mounts {
		e := New(m, opts)
		if !m.Lazy {
			e.Start(ctx)
		}
		embeds = append(embeds, e)
	}
	return embeds, nil
}

// Config returns the mount configuration this embed was built from.
func (e *Embed) Config() MountConfig {
	return e.cfg
}

// Start brings the embed up. Iframe mode only emits the frame snippet; native
// mode wires transport, feed, renderer, and session tracking. Lazy mounts call
// Start when the host decides the mount is near the viewport. Starting twice
// or starting after Close is a no-op.
func (e *Embed) Start(ctx context.Context) {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return
	}
	select {
	case <-e.done:
		e.mu.Unlock()
		return
	default:
	}
	e.started = true
	ctx, e.cancel = context.WithCancel(ctx)

	if e.cfg.Mode == ModeIframe {
		e.mu.Unlock()
		e.setHTML(e.iframeHTML())
		return
	}

	e.tracker = NewTracker(e.endpoint("track"), e.cfg.LiveblogID, e.cfg.Mode, e.opts.Sessions, e.opts.HTTPClient, e.log)
	e.transport = NewTransport(e.endpoint("feed"), e.endpoint("stream"), e.opts.PollInterval, e.opts.HTTPClient, e.log, e.feed, e.redraw)
	transport, tracker := e.transport, e.tracker
	e.mu.Unlock()

	e.redraw()
	transport.Start(ctx)

	// Telemetry is detached from the render path: start once, then heartbeat
	// on a fixed cadence regardless of channel state.
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		tracker.Start(ctx)
	}()
	e.wg.Add(1)
	go e.heartbeatLoop(ctx, tracker)
}

// Close tears the embed down: the push channel and every timer are released
// exactly once, and no fetch is issued afterwards. Safe to call repeatedly.
func (e *Embed) Close() {
	e.closeOnce.Do(func() {
		close(e.done)
		e.mu.Lock()
		cancel, transport := e.cancel, e.transport
		e.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		if transport != nil {
			transport.Close()
		}
		e.wg.Wait()
	})
}

// HTML returns the most recently rendered widget fragment.
func (e *Embed) HTML() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.html
}

// State reports the transport channel state. Iframe-mode embeds always
// report loading since the hosted page owns the transport.
func (e *Embed) State() ChannelState {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.transport == nil {
		return StateLoading
	}
	return e.transport.State()
}

// Feed exposes the underlying feed store, useful for hosts that want to read
// the current items directly.
func (e *Embed) Feed() *Feed {
	return e.feed
}

func (e *Embed) heartbeatLoop(ctx context.Context, tracker *Tracker) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.opts.Heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-e.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			tracker.Ping(ctx)
		}
	}
}

// redraw re-renders on every feed mutation: full redraw per update, no
// diffing.
func (e *Embed) redraw() {
	e.setHTML(e.renderer.RenderFeed(e.feed.Sorted(e.cfg.Order)))
}

func (e *Embed) setHTML(fragment string) {
	e.mu.Lock()
	e.html = fragment
	cb := e.opts.OnRender
	e.mu.Unlock()
	if cb != nil {
		cb(e.cfg.LiveblogID, fragment)
	}
}

// endpoint builds the backend URL for one of the embed API operations.
func (e *Embed) endpoint(op string) string {
	return strings.TrimRight(e.opts.APIBaseURL, "/") + "/api/embed/" + url.PathEscape(e.cfg.LiveblogID) + "/" + op
}

// iframeHTML emits the isolated frame pointed at the hosted viewer page. The
// adapter's only responsibility in this mode is frame creation and sizing.
func (e *Embed) iframeHTML() string {
	src := strings.TrimRight(e.opts.ViewerBaseURL, "/") + "/" + url.PathEscape(e.cfg.LiveblogID)
	if e.cfg.Order != OrderNewest {
		src += "?order=" + string(e.cfg.Order)
	}
	return fmt.Sprintf(
		`<iframe class="lq-frame" src="%s" title="Live updates" loading="lazy" style="width:100%%;border:0;min-height:480px"></iframe>`,
		html.EscapeString(src))
}
