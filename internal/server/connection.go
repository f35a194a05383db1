package server

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/life-stream-dev/life-stream-go-pdf-collector/internal/logger"
)

const (
	writeWait       = 10 * time.Second
	defaultPongWait = 2 * time.Minute
)

// Connection wraps one WebSocket. Writes are serialized; gorilla allows
// at most one concurrent writer.
type Connection struct {
	key       string
	ws        *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

func newConnection(key string, ws *websocket.Conn) *Connection {
	return &Connection{
		key:    key,
		ws:     ws,
		closed: make(chan struct{}),
	}
}

func (c *Connection) Key() string {
	return c.key
}

// Send writes v as one JSON text frame.
func (c *Connection) Send(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteJSON(v); err != nil {
		logger.ErrorF("[%s] Fail to send data, details: %v", c.key, err)
		return err
	}
	return nil
}

func (c *Connection) SetReadLimit(limit int64) {
	c.ws.SetReadLimit(limit)
}

func (c *Connection) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// Close ends the connection with a normal closure.
func (c *Connection) Close() error {
	return c.CloseWith(websocket.CloseNormalClosure, "")
}

// CloseWith sends a close frame carrying code and reason, then drops the
// socket. Only the first call has any effect.
func (c *Connection) CloseWith(code int, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(code, reason)
		if werr := c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); werr != nil && !isNetClosedError(werr) {
			logger.DebugF("[%s] Fail to send close frame, details: %v", c.key, werr)
		}
		c.writeMu.Unlock()
		close(c.closed)
		err = c.ws.Close()
	})
	if err != nil && isNetClosedError(err) {
		return nil
	}
	return err
}

// Done is closed once the connection has been closed locally.
func (c *Connection) Done() <-chan struct{} {
	return c.closed
}
