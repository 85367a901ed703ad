package stream

import (
	"time"

	"github.com/gorilla/websocket"
)

// writeWait, pongWait, pingPeriod mirror the teacher's
// JobWSClient write/read pump deadlines
// (internal/services/jobmanager/websocket.go), narrowed to this
// connection's own lifecycle bookkeeping.
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4096
	sendBufferSize = 64
)

// Connection is one authenticated stream client. Per spec.md §4.6, its
// state only mutates from its owning Room goroutine set (register,
// writePump, readPump, sweeper) — no cross-goroutine field access besides
// the channels and the lastActivity timestamp, which is only read by the
// sweeper under the Room's mutex.
type Connection struct {
	ID           string
	JobID        string
	IP           string
	conn         *websocket.Conn
	send         chan []byte
	connectedAt  time.Time
	lastActivity time.Time
}

func newConnection(id, jobID, ip string, conn *websocket.Conn) *Connection {
	now := time.Now()
	return &Connection{
		ID:           id,
		JobID:        jobID,
		IP:           ip,
		conn:         conn,
		send:         make(chan []byte, sendBufferSize),
		connectedAt:  now,
		lastActivity: now,
	}
}

// writePump forwards queued frames to the socket and pings on an
// interval, exactly the teacher's writePump shape.
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads inbound frames, handling the ping/pong inbound protocol
// (§4.6) and updating lastActivity on every successful read.
func (c *Connection) readPump(onMessage func(*Connection, []byte), onClose func(*Connection)) {
	defer onClose(c)

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.touch()
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.touch()
		onMessage(c, data)
	}
}

func (c *Connection) touch() {
	c.lastActivity = time.Now()
}

func (c *Connection) closeWithCode(code int, reason string) {
	deadline := time.Now().Add(writeWait)
	msg := websocket.FormatCloseMessage(code, reason)
	c.conn.WriteControl(websocket.CloseMessage, msg, deadline)
	c.conn.Close()
}
