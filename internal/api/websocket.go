package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/FocuswithJustin/versecite/core/refscan"
	"github.com/FocuswithJustin/versecite/internal/logging"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// ScanMessage is sent over the WebSocket while a text is scanned: one
// "reference" message per citation as the scan yields it, a "diagnostic"
// message per skipped run, then "complete" with the reference count.
// "error" reports a rejected message.
type ScanMessage struct {
	Type       string                  `json:"type"`
	ScanID     string                  `json:"scan_id,omitempty"`
	Index      int                     `json:"index"`
	Reference  *refscan.BibleReference `json:"reference,omitempty"`
	Diagnostic *refscan.Diagnostic     `json:"diagnostic,omitempty"`
	Count      int                     `json:"count"`
	Message    string                  `json:"message,omitempty"`
	Timestamp  string                  `json:"timestamp"`
}

// wsClient is one WebSocket connection. readPump owns send and closes it;
// writePump closes done when it stops writing.
type wsClient struct {
	server *Server
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	rate   *tokenBucket
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		logging.WebSocketEvent("upgrade_failed", "error", err, "origin", r.Header.Get("Origin"))
		return
	}
	conn.SetReadLimit(s.cfg.MaxBodyBytes)

	rate := float64(s.cfg.WSMessageRate)
	c := &wsClient{
		server: s,
		conn:   conn,
		send:   make(chan []byte, 256),
		done:   make(chan struct{}),
		rate:   newTokenBucket(rate*2, rate),
	}
	logging.WebSocketEvent("connected", "remote_addr", clientIP(r))

	go c.writePump()
	go c.readPump()
}

// enqueue hands a message to writePump. It reports false once the connection
// is gone.
func (c *wsClient) enqueue(msg ScanMessage) bool {
	msg.Timestamp = time.Now().UTC().Format(time.RFC3339)
	data, err := json.Marshal(msg)
	if err != nil {
		logging.Error("failed to marshal scan message", "error", err)
		return false
	}
	select {
	case c.send <- data:
		return true
	case <-c.done:
		return false
	}
}

func (c *wsClient) readPump() {
	defer func() {
		close(c.send)
		logging.WebSocketEvent("disconnected")
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		msgType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.WebSocketEvent("unexpected_close", "error", err)
			}
			return
		}
		if !c.rate.allow() {
			c.enqueue(ScanMessage{Type: "error", Message: "rate limit exceeded"})
			logging.WebSocketEvent("rate_limited")
			return
		}
		if msgType != websocket.TextMessage {
			if !c.enqueue(ScanMessage{Type: "error", Message: "only text messages are scanned"}) {
				return
			}
			continue
		}
		if !c.scan(string(message)) {
			return
		}
	}
}

// scan streams the references and diagnostics of text to the client.
func (c *wsClient) scan(text string) bool {
	scanID := uuid.NewString()
	alive := true
	diagnostics := 0
	p := refscan.NewParser(
		refscan.WithMaxBookWords(c.server.parser.MaxBookWords()),
		refscan.WithMaxValue(c.server.parser.MaxValue()),
		refscan.WithDiagnostics(func(d refscan.Diagnostic) {
			if alive {
				alive = c.enqueue(ScanMessage{Type: "diagnostic", ScanID: scanID, Index: diagnostics, Diagnostic: &d})
			}
			diagnostics++
		}),
	)

	count := 0
	for ref := range p.Scan(text) {
		if !alive || !c.enqueue(ScanMessage{Type: "reference", ScanID: scanID, Index: count, Reference: &ref}) {
			return false
		}
		count++
	}
	if !alive {
		return false
	}
	logging.ScanCompleted("websocket", count, diagnostics, "scan_id", scanID)
	return c.enqueue(ScanMessage{Type: "complete", ScanID: scanID, Count: count})
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		close(c.done)
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
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
