// Package transport wraps gorilla/websocket with the duplex, mixed
// JSON-and-binary framing the session gateway and upstream adapter both
// need: a single connection carrying control events as JSON text frames
// and PCM audio as binary frames, in both directions.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// FrameType distinguishes the two payload kinds carried on the socket.
type FrameType int

const (
	FrameText FrameType = iota
	FrameBinary
)

// Frame is one inbound message, already classified.
type Frame struct {
	Type FrameType
	Data []byte
}

// Conn is a single-writer wrapper around *websocket.Conn. Writes from
// multiple goroutines are serialized with a mutex; gorilla/websocket
// connections are not safe for concurrent writers, only concurrent
// reader+writer.
type Conn struct {
	ws       *websocket.Conn
	writeMu  sync.Mutex
	closeMu  sync.Mutex
	closed   bool
}

// New wraps an already-established *websocket.Conn.
func New(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  8192,
	WriteBufferSize: 8192,
}

// Upgrade upgrades an HTTP request to a websocket connection, accepting
// only origins present in allowedOrigins (empty allowedOrigins permits any
// origin, matching the teacher's permissive local-dev default).
func Upgrade(w http.ResponseWriter, r *http.Request, allowedOrigins []string) (*Conn, error) {
	u := upgrader
	u.CheckOrigin = func(r *http.Request) bool {
		if len(allowedOrigins) == 0 {
			return true
		}
		origin := r.Header.Get("Origin")
		for _, o := range allowedOrigins {
			if o == origin {
				return true
			}
		}
		return false
	}

	ws, err := u.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket upgrade: %w", err)
	}
	return New(ws), nil
}

// Dial opens a client-side websocket connection, used by internal/upstream
// to connect to the speech-to-text provider.
func Dial(ctx context.Context, url string, header http.Header) (*Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	ws, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	return New(ws), nil
}

// SendJSON marshals v and sends it as a text frame.
func (c *Conn) SendJSON(v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

// SendBinary sends a raw binary frame.
func (c *Conn) SendBinary(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.BinaryMessage, data)
}

// Recv reads the next frame, classified by wire opcode. Returns io.EOF once
// the connection has been closed, mirroring provider.DuplexStream's contract.
func (c *Conn) Recv() (Frame, error) {
	kind, data, err := c.ws.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return Frame{}, io.EOF
		}
		return Frame{}, err
	}

	ft := FrameBinary
	if kind == websocket.TextMessage {
		ft = FrameText
	}
	return Frame{Type: ft, Data: data}, nil
}

// Close closes the underlying connection. Idempotent.
func (c *Conn) Close() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.ws.Close()
}
