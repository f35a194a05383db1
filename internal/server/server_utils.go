package server

import (
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/life-stream-dev/life-stream-go-pdf-collector/internal/logger"
)

// checkOrigin allows every origin when the list is empty or holds "*".
// Entries match either the full origin or just its host.
func checkOrigin(allowed []string) func(r *http.Request) bool {
	allowAll := len(allowed) == 0
	for _, origin := range allowed {
		if strings.TrimSpace(origin) == "*" {
			allowAll = true
		}
	}
	return func(r *http.Request) bool {
		if allowAll {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		host := ""
		if u, err := url.Parse(origin); err == nil {
			host = u.Host
		}
		for _, candidate := range allowed {
			candidate = strings.TrimSpace(candidate)
			if strings.EqualFold(candidate, origin) || (host != "" && strings.EqualFold(candidate, host)) {
				return true
			}
		}
		logger.WarnF("Origin %s rejected for %s", origin, r.RemoteAddr)
		return false
	}
}

func isNetClosedError(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, websocket.ErrCloseSent)
}

func handleReadError(connID string, err error) {
	switch {
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		logger.InfoF("[%s] Client close connection", connID)
	case errors.Is(err, websocket.ErrReadLimit):
		logger.WarnF("[%s] Frame exceeds read limit, closing", connID)
	case os.IsTimeout(err):
		logger.WarnF("[%s] Reading timeout", connID)
	case isNetClosedError(err), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		logger.DebugF("[%s] Connection already closed", connID)
	default:
		logger.ErrorF("[%s] Error occured while reading message, details: %v", connID, err)
	}
}
