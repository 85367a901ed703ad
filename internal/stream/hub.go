// Package stream implements the Stream Service (C6): an authenticated
// push channel per job, bridging broker pub/sub job:<id>:updates to
// subscribed clients, sending an initial snapshot on join and enforcing
// connection/event limits. Generalises the teacher's JobWSHub/JobWSClient
// (internal/services/jobmanager/websocket.go) from one hub for the whole
// process to one hub per job id, created on first subscriber and torn
// down when the room empties — the multi-room fan-out shape is further
// grounded on the other_examples RemedyIQ streaming hub's
// topic->clients map.
package stream

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/codr-run/codr/internal/apierr"
	"github.com/codr-run/codr/internal/broker"
	"github.com/codr-run/codr/internal/common"
	"github.com/codr-run/codr/internal/interfaces"
	"github.com/codr-run/codr/internal/models"
	"github.com/codr-run/codr/internal/resultsvc"
	"github.com/codr-run/codr/internal/streamtoken"
)

const (
	idleTimeout   = 300 * time.Second
	lifetimeCap   = 3600 * time.Second
	sweepInterval = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// room is the set of connections subscribed to one job id, plus its
// single Bridge Task (spec.md glossary).
type room struct {
	jobID        string
	mu           sync.Mutex
	conns        map[string]*Connection
	cancelBridge context.CancelFunc
}

// Hub owns every room, the per-process connection table described in
// spec.md §5 ("job_id -> {connection_id -> socket}"), mutated only from
// its own methods.
type Hub struct {
	mu        sync.Mutex
	rooms     map[string]*room
	logger    *common.Logger
	broker    interfaces.Broker
	results   *resultsvc.Service
	tokens    *streamtoken.Service
	ips       *ipGuard
	closed    chan struct{}
	closeOnce sync.Once
}

// New constructs a Stream Service hub.
func New(b interfaces.Broker, results *resultsvc.Service, tokens *streamtoken.Service, logger *common.Logger) *Hub {
	h := &Hub{
		rooms:   make(map[string]*room),
		logger:  logger,
		broker:  b,
		results: results,
		tokens:  tokens,
		ips:     newIPGuard(),
		closed:  make(chan struct{}),
	}
	go h.sweepLoop()
	return h
}

// Shutdown cancels every bridge task and closes every connection
// gracefully (spec.md §5: "When the process terminates, cancel all
// bridge tasks and close connections gracefully").
func (h *Hub) Shutdown() {
	h.closeOnce.Do(func() { close(h.closed) })

	h.mu.Lock()
	rooms := make([]*room, 0, len(h.rooms))
	for _, r := range h.rooms {
		rooms = append(rooms, r)
	}
	h.mu.Unlock()

	for _, r := range rooms {
		r.mu.Lock()
		for _, c := range r.conns {
			c.closeWithCode(websocket.CloseNormalClosure, "server shutting down")
		}
		r.cancelBridge()
		r.mu.Unlock()
	}
}

// clientIP extracts the caller's address per §4.6 step 1: X-Forwarded-For
// first hop, else peer address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// HandleUpgrade runs the full handshake of §4.6 and, on success, serves
// the connection until it closes.
func (h *Hub) HandleUpgrade(w http.ResponseWriter, r *http.Request, pathJobID string) {
	ip := clientIP(r)

	if !h.ips.checkAndReserve(ip) {
		http.Error(w, "rate limited", apierr.RateLimited.ToHTTPStatus())
		return
	}

	token := r.URL.Query().Get("token")
	claims, err := h.tokens.Verify(token)
	if err != nil || claims.JobID != pathJobID {
		h.ips.release(ip)
		if rejected, upErr := upgrader.Upgrade(w, r, nil); upErr == nil {
			msg := websocket.FormatCloseMessage(apierr.AuthInvalid.ToCloseCode(), "invalid token or token/path job mismatch")
			rejected.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			rejected.Close()
		}
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.ips.release(ip)
		if h.logger != nil {
			h.logger.Warn().Err(err).Msg("stream: websocket upgrade failed")
		}
		return
	}

	connection := newConnection(uuid.NewString(), pathJobID, ip, conn)
	h.register(connection)

	go connection.writePump()
	go connection.readPump(h.handleInbound, func(c *Connection) { h.unregister(c) })

	h.sendSnapshot(connection)
}

// register adds connection to its job's room, spawning the Bridge Task
// if this is the first subscriber.
func (h *Hub) register(c *Connection) {
	h.mu.Lock()
	r, ok := h.rooms[c.JobID]
	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		r = &room{jobID: c.JobID, conns: make(map[string]*Connection), cancelBridge: cancel}
		h.rooms[c.JobID] = r
		go h.runBridge(ctx, r)
	}
	h.mu.Unlock()

	r.mu.Lock()
	r.conns[c.ID] = c
	r.mu.Unlock()
}

// unregister removes connection from its room; when the room empties the
// bridge task is cancelled within one iteration and the room is dropped.
func (h *Hub) unregister(c *Connection) {
	h.ips.release(c.IP)

	h.mu.Lock()
	r, ok := h.rooms[c.JobID]
	if !ok {
		h.mu.Unlock()
		return
	}
	r.mu.Lock()
	delete(r.conns, c.ID)
	empty := len(r.conns) == 0
	r.mu.Unlock()
	if empty {
		delete(h.rooms, c.JobID)
	}
	h.mu.Unlock()

	if empty {
		r.cancelBridge()
	}
}

// runBridge is the single per-job cooperative task forwarding broker
// pub/sub messages to the room (spec.md glossary: Bridge Task).
func (h *Hub) runBridge(ctx context.Context, r *room) {
	sub, err := h.broker.Subscribe(ctx, broker.UpdatesChannel(r.jobID))
	if err != nil {
		if h.logger != nil {
			h.logger.Warn().Err(err).Str("job_id", r.jobID).Msg("stream: bridge subscribe failed")
		}
		return
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-sub.Channel():
			if !ok {
				return
			}
			h.broadcastToRoom(r, payload)
		}
	}
}

// broadcastToRoom parses, validates, and fans payload out to every
// connection in r, per §4.6's Bridge Task contract: drop malformed
// messages, drop job_id mismatches, annotate with a server timestamp if
// absent.
func (h *Hub) broadcastToRoom(r *room, payload []byte) {
	var update models.StatusUpdate
	if err := json.Unmarshal(payload, &update); err != nil {
		return
	}
	var envelope struct {
		JobID string `json:"job_id"`
	}
	if json.Unmarshal(payload, &envelope) == nil && envelope.JobID != "" && envelope.JobID != r.jobID {
		return
	}
	if update.Ts == 0 {
		update.Ts = time.Now().Unix()
	}

	data, err := json.Marshal(update)
	if err != nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.conns {
		select {
		case c.send <- data:
		default:
			// slow consumer; drop rather than block the bridge task
		}
	}
}

// sendSnapshot implements §4.6 step 6: send the initial status_update
// derived from the current Job record, exactly at the
// AUTHED -> ACTIVE edge.
func (h *Hub) sendSnapshot(c *Connection) {
	resp, err := h.results.GetResult(context.Background(), c.JobID)
	if err != nil {
		return
	}
	update := models.NewStatusUpdate(resp.Status, time.Now().Unix())
	update.Result = resp.Result
	update.Error = resp.Error

	data, err := json.Marshal(update)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// handleInbound implements §4.6's inbound protocol: only type=="ping" is
// honored; anything else is logged and ignored.
func (h *Hub) handleInbound(c *Connection, data []byte) {
	var msg models.WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	if msg.Type != "ping" {
		if h.logger != nil {
			h.logger.Debug().Str("type", msg.Type).Msg("stream: ignoring non-ping inbound message")
		}
		return
	}
	pong := models.PongMessage{Type: "pong", Timestamp: time.Now().Unix()}
	data, err := json.Marshal(pong)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// sweepLoop implements §4.6's idle & lifetime policy: every 60s,
// disconnect connections idle > 300s or open > 3600s.
func (h *Hub) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-h.closed:
			return
		case <-ticker.C:
			h.sweep()
		}
	}
}

func (h *Hub) sweep() {
	now := time.Now()

	h.mu.Lock()
	rooms := make([]*room, 0, len(h.rooms))
	for _, r := range h.rooms {
		rooms = append(rooms, r)
	}
	h.mu.Unlock()

	for _, r := range rooms {
		r.mu.Lock()
		var stale []*Connection
		for _, c := range r.conns {
			if now.Sub(c.lastActivity) > idleTimeout || now.Sub(c.connectedAt) > lifetimeCap {
				stale = append(stale, c)
			}
		}
		r.mu.Unlock()

		for _, c := range stale {
			c.closeWithCode(apierr.WSClosePolicyViolation, "idle or lifetime cap exceeded")
		}
	}
}

// RoomSize reports how many connections are subscribed to jobID, mainly
// for tests and observability.
func (h *Hub) RoomSize(jobID string) int {
	h.mu.Lock()
	r, ok := h.rooms[jobID]
	h.mu.Unlock()
	if !ok {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}
