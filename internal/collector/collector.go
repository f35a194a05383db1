// Package collector drives the page-collection protocol: it owns the
// session registry, dispatches inbound envelopes by action and talks to
// the staging store, preview generator, assembler and upload gateway.
package collector

import (
	"context"
	"errors"

	"github.com/life-stream-dev/life-stream-go-pdf-collector/internal/assembler"
	"github.com/life-stream-dev/life-stream-go-pdf-collector/internal/database"
	"github.com/life-stream-dev/life-stream-go-pdf-collector/internal/fault"
	"github.com/life-stream-dev/life-stream-go-pdf-collector/internal/gateway"
	"github.com/life-stream-dev/life-stream-go-pdf-collector/internal/logger"
	"github.com/life-stream-dev/life-stream-go-pdf-collector/internal/protocol"
	"github.com/life-stream-dev/life-stream-go-pdf-collector/internal/session"
	"github.com/life-stream-dev/life-stream-go-pdf-collector/internal/staging"
)

const (
	DefaultInitialReadLimit int64 = 64 * 1024
	DefaultJoinedReadLimit  int64 = 70920 * 1024
)

var (
	ErrNoStore     = errors.New("collector: staging store is required")
	ErrNoAssembler = errors.New("collector: assembler is required")
	ErrNoUploader  = errors.New("collector: uploader is required")
)

// Conn is the transport side of one connection.
type Conn interface {
	Key() string
	// Send writes v as one JSON text frame.
	Send(v any) error
	SetReadLimit(limit int64)
	Close() error
}

type Uploader interface {
	Upload(ctx context.Context, doc []byte, fileName string) (*gateway.Metadata, error)
}

type Options struct {
	Store     *staging.Store
	Assembler *assembler.Assembler
	Uploader  Uploader
	// Ledger is optional; formed documents are recorded best-effort.
	Ledger           database.DocumentStore
	InitialReadLimit int64
	JoinedReadLimit  int64
}

type Handler struct {
	registry         *session.Registry
	store            *staging.Store
	assembler        *assembler.Assembler
	uploader         Uploader
	ledger           database.DocumentStore
	initialReadLimit int64
	joinedReadLimit  int64
}

func NewHandler(opts Options) (*Handler, error) {
	switch {
	case opts.Store == nil:
		return nil, ErrNoStore
	case opts.Assembler == nil:
		return nil, ErrNoAssembler
	case opts.Uploader == nil:
		return nil, ErrNoUploader
	}
	if opts.InitialReadLimit <= 0 {
		opts.InitialReadLimit = DefaultInitialReadLimit
	}
	if opts.JoinedReadLimit <= 0 {
		opts.JoinedReadLimit = DefaultJoinedReadLimit
	}
	return &Handler{
		registry:         session.NewRegistry(),
		store:            opts.Store,
		assembler:        opts.Assembler,
		uploader:         opts.Uploader,
		ledger:           opts.Ledger,
		initialReadLimit: opts.InitialReadLimit,
		joinedReadLimit:  opts.JoinedReadLimit,
	}, nil
}

// Sessions reports how many connections currently hold a session.
func (h *Handler) Sessions() int {
	return h.registry.Len()
}

// OnConnect applies the pre-join frame limit. No session exists until join.
func (h *Handler) OnConnect(conn Conn) {
	conn.SetReadLimit(h.initialReadLimit)
	logger.DebugF("[%s] Connection opened, read limit %d bytes", conn.Key(), h.initialReadLimit)
}

// OnMessage handles one inbound frame. Returned errors carry a fault.Kind;
// the caller decides from it whether only the message is rejected.
func (h *Handler) OnMessage(ctx context.Context, conn Conn, raw []byte) error {
	envelope, err := protocol.ParseEnvelope(raw)
	if err != nil {
		return err
	}

	logger.DebugF("[%s] Receive %s message, %d bytes", conn.Key(), envelope.Type, len(raw))

	switch envelope.Type {
	case protocol.JOIN:
		return h.handleJoin(conn)
	case protocol.APPEND:
		return h.handleAppend(conn, envelope)
	case protocol.DELETE:
		return h.handleDelete(conn, envelope)
	case protocol.FORM:
		return h.handleForm(ctx, conn, envelope)
	}
	return fault.New(fault.KindProtocol, "dispatch", "no handler for action %s", envelope.Type)
}

// OnDisconnect ends the session bound to key and purges its staging
// directory. A key without a session is a no-op.
func (h *Handler) OnDisconnect(key string) {
	s, ok := h.registry.Remove(key)
	if !ok {
		logger.DebugF("[%s] Disconnect without session, nothing to clean", key)
		return
	}

	s.Lock()
	defer s.Unlock()
	if !s.Terminate() {
		return
	}
	logger.InfoF("[%s] Client disconnect, purging staging %s (%d pages)", key, s.StagingID(), s.Len())
	h.store.PurgeAll(s.StagingID())
}
