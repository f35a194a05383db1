package server

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/life-stream-dev/life-stream-go-pdf-collector/internal/collector"
	"github.com/life-stream-dev/life-stream-go-pdf-collector/internal/fault"
	"github.com/life-stream-dev/life-stream-go-pdf-collector/internal/logger"
)

type ConnectionHandler struct {
	conn        *Connection
	handler     *collector.Handler
	connections *ConnectionManager
	// pongWait bounds how long the next frame or pong may take once the
	// connection is idle; pings go out at 9/10 of it.
	pongWait time.Duration
}

func (c *ConnectionHandler) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(c.pongWait * 9 / 10)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.conn.Done():
			return
		case <-ticker.C:
			if err := c.conn.ping(); err != nil {
				logger.DebugF("[%s] Fail to send ping, details: %v", c.conn.Key(), err)
				return
			}
		}
	}
}

func (c *ConnectionHandler) handleMessage(ctx context.Context) {
	ws := c.conn.ws
	for {
		// armed only while waiting, so a slow message never eats the
		// budget of the next read
		_ = ws.SetReadDeadline(time.Now().Add(c.pongWait))
		messageType, raw, err := ws.ReadMessage()
		if err != nil {
			handleReadError(c.conn.Key(), err)
			return
		}

		if messageType != websocket.TextMessage {
			logger.WarnF("[%s] Binary frame has not been supported, %d bytes dropped", c.conn.Key(), len(raw))
			continue
		}

		err = c.handler.OnMessage(ctx, c.conn, raw)
		if err == nil {
			continue
		}
		if kind := fault.KindOf(err); kind.Rejects() {
			logger.WarnF("[%s] Message rejected with %s, details: %v", c.conn.Key(), kind, err)
			continue
		}
		logger.ErrorF("[%s] Fail to handle message, details: %v", c.conn.Key(), err)
		_ = c.conn.CloseWith(websocket.CloseInternalServerErr, "internal error")
		return
	}
}

func (c *ConnectionHandler) handleConnection(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	key := c.conn.Key()

	c.connections.AddConnection(c.conn)
	defer func() {
		cancel()
		c.handler.OnDisconnect(key)
		c.connections.RemoveConnection(key)
		logger.DebugF("[%s] Connection closed", key)
		if err := c.conn.Close(); err != nil {
			logger.WarnF("[%s] Error occured while closing connection, details: %v", key, err)
		}
	}()

	c.handler.OnConnect(c.conn)

	ws := c.conn.ws
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(c.pongWait))
	})
	go c.keepAlive(ctx)

	c.handleMessage(ctx)
}
