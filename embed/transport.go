package embed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// ChannelState describes how the transport is currently receiving changes.
type ChannelState int

const (
	// StateLoading covers the window before the initial snapshot lands.
	StateLoading ChannelState = iota
	// StateLive means the push channel is connected.
	StateLive
	// StatePolling means the push channel failed and fixed-interval polling
	// carries the feed for the rest of the embed's life.
	StatePolling
)

func (s ChannelState) String() string {
	switch s {
	case StateLive:
		return "live"
	case StatePolling:
		return "polling"
	default:
		return "loading"
	}
}

// pushEnvelope is the change notification shape. Only the event discriminator
// is read; the payload body is ignored and a full snapshot re-fetch applies
// the change, so an unknown event shape can never crash the embed.
type pushEnvelope struct {
	Event string `json:"event"`
}

// maxSnapshotBytes bounds how much of a feed response the transport will read.
const maxSnapshotBytes = 4 << 20

// Transport keeps a Feed synchronized with the backend: one snapshot fetch on
// start, a push channel for change notifications, and a permanent fallback to
// fixed-interval polling if the channel fails to establish or errors.
// Nothing it does surfaces an error to the host; failures are logged and
// recovered locally.
type Transport struct {
	feedURL  string
	pushURL  string
	interval time.Duration
	client   *http.Client
	log      zerolog.Logger
	feed     *Feed
	onChange func()

	mu    sync.Mutex
	state ChannelState
	conn  *websocket.Conn

	fetchMu  sync.Mutex
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewTransport wires a transport to a feed. onChange fires after every
// applied snapshot and may be nil.
func NewTransport(feedURL, pushURL string, interval time.Duration, client *http.Client, log zerolog.Logger, feed *Feed, onChange func()) *Transport {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Transport{
		feedURL:  feedURL,
		pushURL:  pushURL,
		interval: interval,
		client:   client,
		log:      log,
		feed:     feed,
		onChange: onChange,
		stop:     make(chan struct{}),
	}
}

// Start fetches the initial snapshot and then attempts the push channel.
// It returns immediately; all work happens on background goroutines.
func (t *Transport) Start(ctx context.Context) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.refetch(ctx, true)
		t.connect(ctx)
	}()
}

// State reports the current channel state.
func (t *Transport) State() ChannelState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Close releases the push channel and all timers exactly once. No further
// fetches are issued after Close returns.
func (t *Transport) Close() {
	t.stopOnce.Do(func() {
		close(t.stop)
		t.mu.Lock()
		conn := t.conn
		t.conn = nil
		t.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		t.wg.Wait()
	})
}

// connect dials the push channel. Dial failure drops straight to polling.
func (t *Transport) connect(ctx context.Context) {
	select {
	case <-t.stop:
		return
	case <-ctx.Done():
		return
	default:
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, wsURL(t.pushURL), nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		t.log.Debug().Err(err).Msg("push channel dial failed, falling back to polling")
		t.fallToPolling(ctx)
		return
	}

	t.mu.Lock()
	select {
	case <-t.stop:
		t.mu.Unlock()
		conn.Close()
		return
	default:
	}
	t.conn = conn
	t.state = StateLive
	t.mu.Unlock()

	t.wg.Add(1)
	go t.listen(ctx, conn)
}

// listen consumes change notifications until the channel errors or the
// transport is torn down. Any readable message means the feed changed, so a
// full snapshot re-fetch is applied rather than patching from the payload.
func (t *Transport) listen(ctx context.Context, conn *websocket.Conn) {
	defer t.wg.Done()
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-t.stop:
				return
			case <-ctx.Done():
				return
			default:
			}
			t.log.Debug().Err(err).Msg("push channel error, falling back to polling")
			t.mu.Lock()
			if t.conn == conn {
				t.conn = nil
			}
			t.mu.Unlock()
			conn.Close()
			t.fallToPolling(ctx)
			return
		}

		var env pushEnvelope
		if err := json.Unmarshal(message, &env); err != nil {
			t.log.Debug().Err(err).Msg("unrecognized push payload")
		} else {
			t.log.Debug().Str("event", env.Event).Msg("change notification")
		}
		t.refetch(ctx, false)
	}
}

// fallToPolling switches the channel state and runs the fixed-interval poll
// loop until teardown.
func (t *Transport) fallToPolling(ctx context.Context) {
	select {
	case <-t.stop:
		return
	case <-ctx.Done():
		return
	default:
	}
	t.mu.Lock()
	if t.state == StatePolling {
		t.mu.Unlock()
		return
	}
	t.state = StatePolling
	t.mu.Unlock()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		for {
			select {
			case <-t.stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.refetch(ctx, false)
			}
		}
	}()
}

// refetch loads the current snapshot and replaces the feed wholesale.
// Fetches are serialized so a slow response cannot interleave with a fresher
// one. The initial fetch failing surfaces as an empty feed; later failures
// keep whatever the feed already holds.
func (t *Transport) refetch(ctx context.Context, initial bool) {
	t.fetchMu.Lock()
	defer t.fetchMu.Unlock()

	select {
	case <-t.stop:
		return
	case <-ctx.Done():
		return
	default:
	}

	updates, err := t.fetchSnapshot(ctx)
	if err != nil {
		t.log.Debug().Err(err).Msg("snapshot fetch failed")
		if initial {
			t.feed.ReplaceAll(nil)
			t.notify()
		}
		return
	}
	t.feed.ReplaceAll(updates)
	t.notify()
}

func (t *Transport) fetchSnapshot(ctx context.Context) ([]Update, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.feedURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed endpoint returned %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSnapshotBytes))
	if err != nil {
		return nil, err
	}
	return DecodeSnapshot(body)
}

func (t *Transport) notify() {
	if t.onChange != nil {
		t.onChange()
	}
}

// wsURL converts an http(s) endpoint to its ws(s) equivalent. Already-ws
// URLs pass through unchanged.
func wsURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	return u.String()
}
