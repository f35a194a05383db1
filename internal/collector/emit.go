package collector

import (
	"github.com/life-stream-dev/life-stream-go-pdf-collector/internal/fault"
	"github.com/life-stream-dev/life-stream-go-pdf-collector/internal/logger"
)

// emit sends one reply. A failed send leaves the connection unusable, so
// it is reported as an internal fault.
func emit(conn Conn, op string, v any) error {
	if err := conn.Send(v); err != nil {
		logger.ErrorF("[%s] Fail to send %s reply, details: %v", conn.Key(), op, err)
		return fault.Wrap(fault.KindInternal, op, err)
	}
	logger.DebugF("[%s] Send %s reply to client", conn.Key(), op)
	return nil
}
