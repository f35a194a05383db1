package collector

import (
	"context"
	"fmt"

	"github.com/life-stream-dev/life-stream-go-pdf-collector/internal/assembler"
	"github.com/life-stream-dev/life-stream-go-pdf-collector/internal/database"
	"github.com/life-stream-dev/life-stream-go-pdf-collector/internal/fault"
	"github.com/life-stream-dev/life-stream-go-pdf-collector/internal/gateway"
	"github.com/life-stream-dev/life-stream-go-pdf-collector/internal/imaging"
	"github.com/life-stream-dev/life-stream-go-pdf-collector/internal/logger"
	"github.com/life-stream-dev/life-stream-go-pdf-collector/internal/protocol"
	"github.com/life-stream-dev/life-stream-go-pdf-collector/internal/session"
)

// handleForm assembles every staged page, uploads the result and ends the
// session. On failure the session and its pages stay in place so the
// client may retry.
func (h *Handler) handleForm(ctx context.Context, conn Conn, envelope *protocol.Envelope) error {
	const op = "form"

	fileName, err := envelope.StringData()
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

	stagingID := s.StagingID()
	if !h.store.Exists(stagingID) {
		return fault.New(fault.KindStagingNotFound, op, "staging directory %s does not exist", stagingID)
	}
	if s.Len() == 0 {
		// every page was deleted again; nothing left worth keeping
		h.store.PurgeAll(stagingID)
		return fault.New(fault.KindStagingNotFound, op, "staging directory %s holds no pages", stagingID)
	}
	if err := gateway.CheckFileName(fileName); err != nil {
		return err
	}

	pages, err := h.loadPages(s)
	if err != nil {
		return err
	}

	doc, err := h.assembler.Assemble(pages)
	if err != nil {
		return err
	}
	logger.InfoF("[%s] Document %s assembled, %d pages, %d bytes", conn.Key(), fileName, len(pages), len(doc))

	metadata, err := h.uploader.Upload(ctx, doc, fileName)
	if err != nil {
		return err
	}

	s.Terminate()
	h.registry.Remove(conn.Key())
	h.store.PurgeAll(stagingID)
	h.record(ctx, s, metadata, fileName, len(doc))

	if err := emit(conn, op, metadata); err != nil {
		return err
	}
	if err := conn.Close(); err != nil {
		logger.WarnF("[%s] Error occured while closing connection, details: %v", conn.Key(), err)
	}
	return nil
}

func (h *Handler) loadPages(s *session.Session) ([]assembler.Page, error) {
	order := s.Pages()
	pages := make([]assembler.Page, 0, len(order))
	for i, pageID := range order {
		text, err := h.store.ReadPage(s.StagingID(), pageID)
		if err != nil {
			return nil, err
		}
		raw, err := imaging.DecodeBase64(string(text))
		if err != nil {
			return nil, fmt.Errorf("page %d (%s): %w", i, pageID, err)
		}
		pages = append(pages, assembler.Page{Name: pageID.String(), Data: raw})
	}
	return pages, nil
}

// record stores the formed document in the ledger. Failures are logged only.
func (h *Handler) record(ctx context.Context, s *session.Session, metadata *gateway.Metadata, fileName string, size int) {
	if h.ledger == nil {
		return
	}
	externalID := ""
	if metadata.ID != nil {
		externalID = metadata.ID.String()
	}
	record := database.NewDocumentRecord(s.StagingID().String(), s.Key(), externalID, fileName, metadata.NumberOfPages, size)
	if err := h.ledger.SaveDocument(ctx, record); err != nil {
		logger.WarnF("[%s] Fail to record document %s, details: %v", s.Key(), fileName, err)
	}
}
