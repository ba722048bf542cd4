package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/qtcstream/qtcstream/server/internal/api"
	"github.com/qtcstream/qtcstream/server/internal/store"
)

// Viewer connection timing. Pings go out well inside pongWait.
const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
	pingEvery = pongWait * 9 / 10
	readLimit = 512
)

// Origin checks belong to the reverse proxy.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Message is the JSON envelope sent to viewers. Event is "snapshot" for the
// periodic push and the greeting, "batch" after Notify.
type Message struct {
	Event string               `json:"event"`
	Data  api.SnapshotResponse `json:"data"`
}

// Hub pushes the relation snapshot to every viewer, every interval and after
// each Notify. Every message is a complete snapshot, so a viewer holds at most
// one undelivered message and a newer one replaces it.
type Hub struct {
	store    *store.Store
	interval time.Duration
	nudge    chan struct{}

	mu      sync.Mutex
	viewers map[*viewer]struct{}
	stopped bool
}

// New creates a Hub that reads from st and pushes every interval.
func New(st *store.Store, interval time.Duration) *Hub {
	return &Hub{
		store:    st,
		interval: interval,
		nudge:    make(chan struct{}, 1),
		viewers:  make(map[*viewer]struct{}),
	}
}

// Notify asks for a "batch" push. It never blocks; calls that arrive while one
// is pending are merged.
func (h *Hub) Notify() {
	select {
	case h.nudge <- struct{}{}:
	default:
	}
}

// Run pushes until ctx is cancelled, then says goodbye to every viewer.
func (h *Hub) Run(ctx context.Context) {
	t := time.NewTicker(h.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			h.stop()
			return
		case <-t.C:
			h.push("snapshot")
		case <-h.nudge:
			h.push("batch")
		}
	}
}

// ServeHTTP upgrades the request, greets the viewer with the current snapshot
// and streams pushes until either side goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return // the upgrader has replied
	}

	v := newViewer(conn)
	if msg, err := h.encode("snapshot"); err == nil {
		v.offer(msg)
	}
	if !h.join(v) {
		conn.Close()
		return
	}
	defer h.leave(v)

	go v.write()
	v.read()
}

// Count returns the number of connected viewers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.viewers)
}

func (h *Hub) join(v *viewer) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return false
	}
	h.viewers[v] = struct{}{}
	return true
}

func (h *Hub) leave(v *viewer) {
	h.mu.Lock()
	delete(h.viewers, v)
	h.mu.Unlock()
	v.close()
}

func (h *Hub) stop() {
	h.mu.Lock()
	h.stopped = true
	gone := h.viewers
	h.viewers = make(map[*viewer]struct{})
	h.mu.Unlock()

	for v := range gone {
		v.close()
	}
}

// push encodes the snapshot once and offers it to every viewer.
func (h *Hub) push(event string) {
	h.mu.Lock()
	targets := make([]*viewer, 0, len(h.viewers))
	for v := range h.viewers {
		targets = append(targets, v)
	}
	h.mu.Unlock()
	if len(targets) == 0 {
		return
	}

	msg, err := h.encode(event)
	if err != nil {
		slog.Error("ws: encode snapshot", "event", event, "err", err)
		return
	}
	for _, v := range targets {
		if v.offer(msg) {
			slog.Debug("ws: viewer behind, replaced pending snapshot",
				"remote", v.conn.RemoteAddr().String())
		}
	}
}

func (h *Hub) encode(event string) ([]byte, error) {
	return json.Marshal(Message{Event: event, Data: api.BuildSnapshot(h.store)})
}

// viewer is one websocket connection. pending has room for a single message.
type viewer struct {
	conn    *websocket.Conn
	pending chan []byte
	done    chan struct{}
	once    sync.Once
}

func newViewer(conn *websocket.Conn) *viewer {
	return &viewer{
		conn:    conn,
		pending: make(chan []byte, 1),
		done:    make(chan struct{}),
	}
}

// offer queues msg, discarding an undelivered older message. It reports
// whether one was discarded.
func (v *viewer) offer(msg []byte) (replaced bool) {
	for {
		select {
		case v.pending <- msg:
			return replaced
		default:
		}
		select {
		case <-v.pending:
			replaced = true
		default:
		}
	}
}

func (v *viewer) close() {
	v.once.Do(func() { close(v.done) })
}

// write delivers pending messages and keeps the connection alive with pings.
// It owns the connection and closes it on return.
func (v *viewer) write() {
	ping := time.NewTicker(pingEvery)
	defer func() {
		ping.Stop()
		v.conn.Close()
	}()

	for {
		var (
			kind = websocket.PingMessage
			data []byte
		)
		select {
		case <-v.done:
			v.conn.SetWriteDeadline(time.Now().Add(writeWait))
			v.conn.WriteMessage(websocket.CloseMessage, //nolint:errcheck
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		case data = <-v.pending:
			kind = websocket.TextMessage
		case <-ping.C:
		}
		v.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := v.conn.WriteMessage(kind, data); err != nil {
			return
		}
	}
}

// read discards viewer frames and returns once the connection fails or the
// viewer stops answering pings.
func (v *viewer) read() {
	v.conn.SetReadLimit(readLimit)
	v.conn.SetReadDeadline(time.Now().Add(pongWait))
	v.conn.SetPongHandler(func(string) error {
		return v.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := v.conn.ReadMessage(); err != nil {
			return
		}
	}
}
