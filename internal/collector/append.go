package collector

import (
	"github.com/google/uuid"
	"github.com/life-stream-dev/life-stream-go-pdf-collector/internal/fault"
	"github.com/life-stream-dev/life-stream-go-pdf-collector/internal/imaging"
	"github.com/life-stream-dev/life-stream-go-pdf-collector/internal/logger"
	"github.com/life-stream-dev/life-stream-go-pdf-collector/internal/preview"
	"github.com/life-stream-dev/life-stream-go-pdf-collector/internal/protocol"
)

// handleAppend stages the page before replying, so a preview always
// refers to a page that is on disk.
func (h *Handler) handleAppend(conn Conn, envelope *protocol.Envelope) error {
	const op = "append"

	payload, err := envelope.StringData()
	if err != nil {
		return err
	}

	s, err := h.registry.MustGet(conn.Key(), op)
	if err != nil {
		return err
	}

	raw, err := imaging.DecodeBase64(payload)
	if err != nil {
		return err
	}
	thumbnail, err := preview.Generate(raw)
	if err != nil {
		return err
	}

	s.Lock()
	defer s.Unlock()
	if err := s.CheckActive(op); err != nil {
		return err
	}

	pageID := uuid.New()
	if err := h.store.WritePage(s.StagingID(), pageID, []byte(payload)); err != nil {
		return fault.Wrap(fault.KindInternal, op, err)
	}
	s.AppendPage(pageID)
	logger.DebugF("[%s] Page %s staged at position %d", conn.Key(), pageID, s.Len()-1)

	return emit(conn, op, protocol.PreviewMessage{PreviewBase64: thumbnail})
}
