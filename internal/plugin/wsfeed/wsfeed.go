// Package wsfeed implements a Platform over a real-time market feed: a
// single websocket connection per platform instance, a background reader
// that keeps only the most recent JSON message, and probes that snapshot
// that message into facts under the feed.* namespace. The wire framing
// is deliberately minimal: the only assumption is that each message is a
// JSON object.
package wsfeed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"monitord/internal/fact"
	"monitord/internal/platform"
	"monitord/internal/probe"
	"monitord/internal/state"
)

const probeTypeLatest = "latest"

type Platform struct {
	mu        sync.Mutex
	conn      *websocket.Conn
	latest    map[string]any
	latestAt  time.Time
	staleness time.Duration
	readDone  chan struct{}
	readErr   error
	closed    bool
}

func New() *Platform {
	return &Platform{staleness: time.Minute}
}

func (p *Platform) Describe() platform.Descriptor {
	return platform.Descriptor{
		ID:                  "wsfeed",
		DisplayName:         "WebSocket Market Feed",
		Version:             "1.0.0",
		SupportedProbeTypes: map[string]struct{}{probeTypeLatest: {}},
	}
}

func (p *Platform) Initialize(ctx context.Context, config map[string]any) error {
	rawURL, _ := config["url"].(string)
	if rawURL == "" {
		return fmt.Errorf("wsfeed: config.url is required")
	}
	if raw, ok := config["staleness"].(string); ok && raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("wsfeed: config.staleness: %w", err)
		}
		p.staleness = d
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		return fmt.Errorf("wsfeed: dial %s: %w", rawURL, err)
	}
	if raw, ok := config["subscribe"].(map[string]any); ok {
		if err := conn.WriteJSON(raw); err != nil {
			conn.Close()
			return fmt.Errorf("wsfeed: subscribe: %w", err)
		}
	}
	p.conn = conn
	p.readDone = make(chan struct{})
	go p.readLoop(conn)
	return nil
}

// readLoop keeps only the latest message. It exits on any read error;
// HealthCheck then reports unhealthy. A normal or going-away close is
// treated as the feed simply ending, while an unexpected close is kept
// so probes can surface it as a feed.error fact.
func (p *Platform) readLoop(conn *websocket.Conn) {
	defer close(p.readDone)
	for {
		var doc map[string]any
		if err := conn.ReadJSON(&doc); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				p.mu.Lock()
				p.readErr = err
				p.mu.Unlock()
			}
			return
		}
		p.mu.Lock()
		p.latest = doc
		p.latestAt = time.Now()
		p.mu.Unlock()
	}
}

func (p *Platform) CreateProbe(probeType string, descriptor probe.Descriptor) (probe.Probe, error) {
	if probeType != probeTypeLatest {
		return nil, fmt.Errorf("wsfeed: unsupported probe type %q", probeType)
	}
	var fields []string
	if raw, ok := descriptor.Config["fields"].([]any); ok {
		for _, f := range raw {
			if s, ok := f.(string); ok {
				fields = append(fields, s)
			}
		}
	}
	return &probeImpl{platform: p, fields: fields}, nil
}

func (p *Platform) Destroy(ctx context.Context) error {
	p.mu.Lock()
	conn := p.conn
	done := p.readDone
	p.closed = true
	p.mu.Unlock()
	if conn == nil {
		return nil
	}
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	err := conn.Close()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
	case <-ctx.Done():
	}
	return err
}

func (p *Platform) HealthCheck(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil || p.closed {
		return false
	}
	select {
	case <-p.readDone:
		return false
	default:
	}
	return true
}

// snapshot returns the latest message, whether it is fresh enough to
// serve facts from, and the read loop's terminal error if it died on an
// unexpected close.
func (p *Platform) snapshot() (doc map[string]any, fresh bool, readErr error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.latest == nil {
		return nil, false, p.readErr
	}
	return p.latest, time.Since(p.latestAt) <= p.staleness, p.readErr
}

type probeImpl struct {
	platform *Platform
	fields   []string
}

// Collect snapshots the buffered message. No message yet, or a message
// older than the staleness bound, degrades to feed.status = "stale"
// soft facts rather than a run failure; the upstream may simply be
// quiet. If the read loop died on an unexpected close, the stale facts
// carry feed.status = "error" and the close error instead.
func (pr *probeImpl) Collect(ctx context.Context, st state.ProbeState) (fact.Bag, error) {
	bag := fact.Bag{}
	doc, fresh, readErr := pr.platform.snapshot()
	if !fresh {
		if readErr != nil {
			bag.Set("feed.status", "error")
			bag.Set("feed.error", readErr.Error())
		} else {
			bag.Set("feed.status", "stale")
		}
		return bag, nil
	}
	bag.Set("feed.status", "ok")
	if len(pr.fields) == 0 {
		for key, value := range doc {
			bag["feed."+key] = fact.From(value)
		}
		return bag, nil
	}
	for _, key := range pr.fields {
		bag["feed."+key] = fact.From(doc[key])
	}
	return bag, nil
}
