package collector

import "github.com/life-stream-dev/life-stream-go-pdf-collector/internal/logger"

func (h *Handler) handleJoin(conn Conn) error {
	if _, err := h.registry.Create(conn.Key()); err != nil {
		return err
	}
	conn.SetReadLimit(h.joinedReadLimit)
	logger.DebugF("[%s] Read limit raised to %d bytes", conn.Key(), h.joinedReadLimit)
	return nil
}
