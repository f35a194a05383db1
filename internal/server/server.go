// Package server terminates the page-collection WebSocket and feeds every
// text frame of a connection, in order, to the collector.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/life-stream-dev/life-stream-go-pdf-collector/internal/collector"
	"github.com/life-stream-dev/life-stream-go-pdf-collector/internal/config"
	"github.com/life-stream-dev/life-stream-go-pdf-collector/internal/logger"
	"github.com/life-stream-dev/life-stream-go-pdf-collector/internal/utils"
)

const defaultMaxConnections = 10000

type Server struct {
	handler     *collector.Handler
	path        string
	port        int
	upgrader    websocket.Upgrader
	sem         chan struct{}
	pongWait    time.Duration
	connections *ConnectionManager
	wg          sync.WaitGroup

	baseCtx    context.Context
	cancelBase context.CancelFunc

	mu         sync.Mutex
	httpServer *http.Server
}

func NewServer(c config.Config, handler *collector.Handler) *Server {
	maxConnections := c.MaxConnections
	if maxConnections <= 0 {
		maxConnections = defaultMaxConnections
	}
	path := c.WebSocketPath
	if path == "" {
		path = config.Default().WebSocketPath
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		handler: handler,
		path:    path,
		port:    c.AppPort,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin(c.AllowedOrigins),
		},
		sem:         make(chan struct{}, maxConnections),
		pongWait:    utils.ParseStringTime(c.HeartbeatTimeout, defaultPongWait),
		connections: NewConnectionManager(),
		baseCtx:     ctx,
		cancelBase:  cancel,
	}
}

// Handler returns the HTTP handler serving the WebSocket endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.path, s.serveWebSocket)
	return mux
}

func (s *Server) Connections() *ConnectionManager {
	return s.connections
}

func (s *Server) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	select {
	case s.sem <- struct{}{}:
	default:
		logger.WarnF("Connection limit %d reached, rejecting %s", cap(s.sem), r.RemoteAddr)
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		<-s.sem
		logger.WarnF("Fail to upgrade connection from %s, details: %v", r.RemoteAddr, err)
		return
	}

	conn := newConnection(uuid.NewString(), ws)
	logger.DebugF("[%s] Accepted new connection from %s", conn.Key(), r.RemoteAddr)

	s.wg.Add(1)
	go func() {
		defer func() {
			<-s.sem
			s.wg.Done()
		}()
		ch := &ConnectionHandler{
			conn:        conn,
			handler:     s.handler,
			connections: s.connections,
			pongWait:    s.pongWait,
		}
		ch.handleConnection(s.baseCtx)
	}()
}

// Start listens on the configured port and blocks until Invoke shuts the
// server down.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", ":"+strconv.Itoa(s.port))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", s.port, err)
	}
	return s.Serve(ln)
}

func (s *Server) Serve(ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return s.baseCtx },
	}
	s.mu.Lock()
	s.httpServer = httpServer
	s.mu.Unlock()

	logger.InfoF("PDF Collector Server Listen On %s%s", ln.Addr().String(), s.path)
	if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// Invoke shuts the server down: stops accepting, closes every live
// connection and waits for their sessions to be cleaned up.
func (s *Server) Invoke(ctx context.Context) error {
	logger.Info("Shutting down pdf collector server")

	var errs []error
	s.mu.Lock()
	httpServer := s.httpServer
	s.mu.Unlock()
	if httpServer != nil {
		if err := httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}

	s.cancelBase()
	closed := s.connections.CloseAll(websocket.CloseGoingAway, "server shutting down")
	logger.DebugF("Closed %d live connections", closed)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("wait for connections: %w", ctx.Err()))
	}
	return errors.Join(errs...)
}
