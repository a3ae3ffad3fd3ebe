package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/skillminer/memoryd/internal/memory"
	"github.com/skillminer/memoryd/internal/stm"
)

// ServiceName is the service under which the hub is published.
const ServiceName = "memory.events"

const (
	defaultBuffer       = 64
	defaultPingInterval = 30 * time.Second
	writeTimeout        = 10 * time.Second
)

// Hub fans events out to websocket subscribers. It implements
// memory.Observer, so it can sit next to the log and metrics observers.
// Publishing never blocks: a subscriber whose buffer is full misses the
// event and the drop is counted.
type Hub struct {
	logger       *slog.Logger
	now          func() time.Time
	pingInterval time.Duration
	buffer       int

	mu     sync.RWMutex
	subs   map[*subscriber]struct{}
	closed bool
	done   chan struct{}

	dropped atomic.Int64
}

var (
	_ memory.Observer = (*Hub)(nil)
	_ http.Handler    = (*Hub)(nil)
)

type subscriber struct {
	owner string
	ch    chan Event
}

// NewHub creates a hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:       logger.With("component", "events"),
		now:          time.Now,
		pingInterval: defaultPingInterval,
		buffer:       defaultBuffer,
		subs:         make(map[*subscriber]struct{}),
		done:         make(chan struct{}),
	}
}

// Degraded implements memory.Observer.
func (h *Hub) Degraded(_ context.Context, ev memory.DegradedEvent) {
	h.Publish(degradedEvent(ev, h.now()))
}

// SessionExpired publishes the removal of an idle session. It matches the
// signature of stm.Manager.SetExpireHook.
func (h *Hub) SessionExpired(info stm.Info) {
	h.Publish(expiredEvent(info, h.now()))
}

// Publish delivers ev to every subscriber whose owner filter matches.
func (h *Hub) Publish(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs {
		if s.owner != "" && s.owner != ev.OwnerID {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			h.dropped.Add(1)
		}
	}
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns how many deliveries were skipped because a subscriber
// was too slow.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }

// Close disconnects every subscriber and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	close(h.done)
}

func (h *Hub) subscribe(owner string) (*subscriber, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	s := &subscriber{owner: owner, ch: make(chan Event, h.buffer)}
	h.subs[s] = struct{}{}
	return s, true
}

func (h *Hub) unsubscribe(s *subscriber) {
	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()
}

// ServeHTTP upgrades the request to a websocket and streams events until
// the client goes away or the hub is closed. The optional "owner" query
// parameter restricts the stream to one owner. The stream is write-only:
// a data message from the client closes it.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer func() { _ = conn.CloseNow() }()

	sub, ok := h.subscribe(r.URL.Query().Get("owner"))
	if !ok {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer h.unsubscribe(sub)
	h.logger.Debug("event subscriber connected", "owner", sub.owner)

	ctx := conn.CloseRead(r.Context())
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		case ev := <-sub.ch:
			if err := h.write(ctx, conn, ev); err != nil {
				h.logger.Debug("event write failed", "error", err)
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				h.logger.Debug("event subscriber ping failed", "error", err)
				return
			}
		}
	}
}

func (h *Hub) write(ctx context.Context, conn *websocket.Conn, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}
