package collector

import (
	"github.com/life-stream-dev/life-stream-go-pdf-collector/internal/logger"
	"github.com/life-stream-dev/life-stream-go-pdf-collector/internal/protocol"
)

func (h *Handler) handleDelete(conn Conn, envelope *protocol.Envelope) error {
	const op = "delete"

	index, err := envelope.IndexData()
	if err != nil {
		return err
	}

	s, err := h.registry.MustGet(conn.Key(), op)
	if err != nil {
		return err
	}

	s.Lock()
	defer s.Unlock()
	if err := s.CheckActive(op); err != nil {
		return err
	}

	pageID, err := s.RemoveAt(index)
	if err != nil {
		return err
	}
	h.store.DeletePage(s.StagingID(), pageID)
	logger.DebugF("[%s] Page %s at index %d deleted, %d pages left", conn.Key(), pageID, index, s.Len())

	return emit(conn, op, protocol.NewDeleteAck(index))
}
