package collector

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"sync"
	"testing"

	fitz "github.com/gen2brain/go-fitz"
	"github.com/google/uuid"
	"github.com/life-stream-dev/life-stream-go-pdf-collector/internal/assembler"
	"github.com/life-stream-dev/life-stream-go-pdf-collector/internal/database"
	"github.com/life-stream-dev/life-stream-go-pdf-collector/internal/fault"
	"github.com/life-stream-dev/life-stream-go-pdf-collector/internal/gateway"
	"github.com/life-stream-dev/life-stream-go-pdf-collector/internal/protocol"
	"github.com/life-stream-dev/life-stream-go-pdf-collector/internal/staging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	key    string
	mu     sync.Mutex
	frames [][]byte
	limit  int64
	closed bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{key: uuid.NewString()}
}

func (c *fakeConn) Key() string { return c.key }

func (c *fakeConn) Send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("connection closed")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.frames = append(c.frames, data)
	return nil
}

func (c *fakeConn) SetReadLimit(limit int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.limit = limit
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) lastFrame(t *testing.T) map[string]any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.frames)
	var out map[string]any
	require.NoError(t, json.Unmarshal(c.frames[len(c.frames)-1], &out))
	return out
}

func (c *fakeConn) frameCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

type fakeUploader struct {
	mu   sync.Mutex
	docs [][]byte
	err  error
}

func (u *fakeUploader) Upload(_ context.Context, doc []byte, fileName string) (*gateway.Metadata, error) {
	if err := gateway.CheckFileName(fileName); err != nil {
		return nil, err
	}
	if u.err != nil {
		return nil, u.err
	}
	pages, err := gateway.CountPages(doc)
	if err != nil {
		return nil, err
	}
	u.mu.Lock()
	u.docs = append(u.docs, doc)
	u.mu.Unlock()
	id := uuid.New()
	return &gateway.Metadata{ID: &id, NumberOfPages: pages}, nil
}

type fixture struct {
	handler  *Handler
	store    *staging.Store
	uploader *fakeUploader
	ledger   *database.MemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := staging.NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	f := &fixture{
		store:    store,
		uploader: &fakeUploader{},
		ledger:   database.NewMemoryStore(),
	}
	f.handler, err = NewHandler(Options{
		Store:           store,
		Assembler:       assembler.New("pdf-collector-test"),
		Uploader:        f.uploader,
		Ledger:          f.ledger,
		JoinedReadLimit: 1 << 20,
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) send(t *testing.T, conn *fakeConn, action string, data any) error {
	t.Helper()
	frame := map[string]any{"someType": action}
	if data != nil {
		frame["data"] = data
	}
	raw, err := json.Marshal(frame)
	require.NoError(t, err)
	return f.handler.OnMessage(context.Background(), conn, raw)
}

func (f *fixture) pageOrder(t *testing.T, conn *fakeConn) []uuid.UUID {
	t.Helper()
	s, ok := f.handler.registry.Get(conn.Key())
	require.True(t, ok)
	s.Lock()
	defer s.Unlock()
	return s.Pages()
}

func (f *fixture) stagingID(t *testing.T, conn *fakeConn) uuid.UUID {
	t.Helper()
	s, ok := f.handler.registry.Get(conn.Key())
	require.True(t, ok)
	return s.StagingID()
}

func encodedImage(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.SetNRGBA(x, h/2, color.NRGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func joined(t *testing.T, f *fixture) *fakeConn {
	t.Helper()
	conn := newFakeConn()
	f.handler.OnConnect(conn)
	require.NoError(t, f.send(t, conn, "join", nil))
	return conn
}

func TestJoinRaisesReadLimit(t *testing.T) {
	f := newFixture(t)
	conn := newFakeConn()

	f.handler.OnConnect(conn)
	assert.Equal(t, DefaultInitialReadLimit, conn.limit)

	require.NoError(t, f.send(t, conn, "join", nil))
	assert.Equal(t, int64(1<<20), conn.limit)
	assert.Equal(t, 1, f.handler.Sessions())
	assert.Zero(t, conn.frameCount(), "join has no reply")

	err := f.send(t, conn, "join", nil)
	assert.Equal(t, fault.KindProtocol, fault.KindOf(err))
	assert.Equal(t, 1, f.handler.Sessions())
}

func TestAppendRepliesWithPreview(t *testing.T) {
	f := newFixture(t)
	conn := joined(t, f)

	require.NoError(t, f.send(t, conn, "append", encodedImage(t, 200, 300)))

	reply := conn.lastFrame(t)
	encoded, ok := reply["previewBase64"].(string)
	require.True(t, ok, "reply %v", reply)
	thumb, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	img, err := jpeg.Decode(bytes.NewReader(thumb))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 64, 90), img.Bounds())

	stored, err := f.store.Pages(f.stagingID(t, conn))
	require.NoError(t, err)
	assert.Len(t, stored, 1)
	assert.Equal(t, f.pageOrder(t, conn), stored)
}

func TestAppendKeepsCallOrder(t *testing.T) {
	f := newFixture(t)
	conn := joined(t, f)

	const n = 5
	for i := 0; i < n; i++ {
		require.NoError(t, f.send(t, conn, "append", encodedImage(t, 10+i, 20)))
	}
	order := f.pageOrder(t, conn)
	require.Len(t, order, n)
	assert.Equal(t, n, conn.frameCount())

	stored, err := f.store.Pages(f.stagingID(t, conn))
	require.NoError(t, err)
	assert.ElementsMatch(t, order, stored)

	// artifacts hold the payload as sent
	payload, err := f.store.ReadPage(f.stagingID(t, conn), order[2])
	require.NoError(t, err)
	assert.Equal(t, encodedImage(t, 12, 20), string(payload))
}

func TestAppendRejectsUndecodableImage(t *testing.T) {
	f := newFixture(t)
	conn := joined(t, f)

	err := f.send(t, conn, "append", "not base64 at all!")
	assert.Equal(t, fault.KindDecode, fault.KindOf(err))

	err = f.send(t, conn, "append", base64.StdEncoding.EncodeToString([]byte("plain text")))
	assert.Equal(t, fault.KindDecode, fault.KindOf(err))

	assert.Empty(t, f.pageOrder(t, conn))
	assert.False(t, f.store.Exists(f.stagingID(t, conn)))
	assert.Zero(t, conn.frameCount())
}

func TestDeleteShiftsLaterPages(t *testing.T) {
	f := newFixture(t)
	conn := joined(t, f)
	require.NoError(t, f.send(t, conn, "append", encodedImage(t, 20, 20)))
	require.NoError(t, f.send(t, conn, "append", encodedImage(t, 30, 30)))
	before := f.pageOrder(t, conn)

	require.NoError(t, f.send(t, conn, "delete", 0))

	after := f.pageOrder(t, conn)
	require.Len(t, after, 1)
	assert.Equal(t, before[1], after[0])
	assert.Equal(t, map[string]any{"status": "deleteIndexThumbnail", "index": float64(0)}, conn.lastFrame(t))

	_, err := f.store.ReadPage(f.stagingID(t, conn), before[0])
	assert.Error(t, err)
}

func TestDeleteAcceptsNumericString(t *testing.T) {
	f := newFixture(t)
	conn := joined(t, f)
	require.NoError(t, f.send(t, conn, "append", encodedImage(t, 20, 20)))

	require.NoError(t, f.send(t, conn, "delete", "0"))
	assert.Empty(t, f.pageOrder(t, conn))
}

func TestDeleteOutOfRangeChangesNothing(t *testing.T) {
	f := newFixture(t)
	conn := joined(t, f)
	require.NoError(t, f.send(t, conn, "append", encodedImage(t, 20, 20)))
	require.NoError(t, f.send(t, conn, "append", encodedImage(t, 20, 20)))
	before := f.pageOrder(t, conn)
	frames := conn.frameCount()

	for _, index := range []int{-1, 2, 100} {
		err := f.send(t, conn, "delete", index)
		assert.Equal(t, fault.KindIndexOutOfRange, fault.KindOf(err), "index %d", index)
	}

	assert.Equal(t, before, f.pageOrder(t, conn))
	stored, err := f.store.Pages(f.stagingID(t, conn))
	require.NoError(t, err)
	assert.ElementsMatch(t, before, stored)
	assert.Equal(t, frames, conn.frameCount())
}

func TestFormUploadsAndCloses(t *testing.T) {
	f := newFixture(t)
	conn := joined(t, f)
	require.NoError(t, f.send(t, conn, "append", encodedImage(t, 200, 300)))
	stagingID := f.stagingID(t, conn)

	require.NoError(t, f.send(t, conn, "form", "scan.pdf"))

	reply := conn.lastFrame(t)
	assert.NotNil(t, reply["id"])
	assert.Equal(t, float64(1), reply["numberOfPages"])
	assert.True(t, conn.closed)
	assert.False(t, f.store.Exists(stagingID))
	assert.Zero(t, f.handler.Sessions())

	record, err := f.ledger.GetDocument(context.Background(), stagingID.String())
	require.NoError(t, err)
	assert.Equal(t, reply["id"], record.ExternalID)
	assert.Equal(t, 1, record.PageCount)
	assert.Equal(t, "scan.pdf", record.FileName)

	// the transport still reports the close; nothing is left to clean
	f.handler.OnDisconnect(conn.Key())
}

func TestFormPagesFollowPageOrder(t *testing.T) {
	f := newFixture(t)
	conn := joined(t, f)
	sizes := []image.Point{{200, 300}, {120, 80}, {64, 64}, {33, 99}}
	for _, size := range sizes {
		require.NoError(t, f.send(t, conn, "append", encodedImage(t, size.X, size.Y)))
	}
	require.NoError(t, f.send(t, conn, "delete", 2))
	sizes = append(sizes[:2], sizes[3:]...)

	require.NoError(t, f.send(t, conn, "form", "Scan.PDF"))
	require.Len(t, f.uploader.docs, 1)

	doc, err := fitz.NewFromMemory(f.uploader.docs[0])
	require.NoError(t, err)
	defer doc.Close()

	require.Equal(t, len(sizes), doc.NumPage())
	for i, size := range sizes {
		bound, err := doc.Bound(i)
		require.NoError(t, err)
		assert.Equal(t, size.X, bound.Dx(), "page %d width", i)
		assert.Equal(t, size.Y, bound.Dy(), "page %d height", i)
	}
}

func TestFormWithoutPages(t *testing.T) {
	f := newFixture(t)
	conn := joined(t, f)

	err := f.send(t, conn, "form", "scan.pdf")
	assert.Equal(t, fault.KindStagingNotFound, fault.KindOf(err))
	assert.False(t, conn.closed)
	assert.Equal(t, 1, f.handler.Sessions())

	// pages appended and deleted again leave an empty directory behind
	require.NoError(t, f.send(t, conn, "append", encodedImage(t, 20, 20)))
	require.NoError(t, f.send(t, conn, "delete", 0))
	stagingID := f.stagingID(t, conn)
	require.True(t, f.store.Exists(stagingID))

	err = f.send(t, conn, "form", "scan.pdf")
	assert.Equal(t, fault.KindStagingNotFound, fault.KindOf(err))
	assert.False(t, f.store.Exists(stagingID))
	assert.False(t, conn.closed)
	assert.Empty(t, f.uploader.docs)
}

func TestFormFailureKeepsSession(t *testing.T) {
	f := newFixture(t)
	conn := joined(t, f)
	require.NoError(t, f.send(t, conn, "append", encodedImage(t, 20, 20)))
	stagingID := f.stagingID(t, conn)

	err := f.send(t, conn, "form", "scan.png")
	assert.Equal(t, fault.KindUnsupportedFormat, fault.KindOf(err))

	f.uploader.err = fault.New(fault.KindUpstream, "upload", "unexpected status 502")
	err = f.send(t, conn, "form", "scan.pdf")
	assert.Equal(t, fault.KindUpstream, fault.KindOf(err))

	assert.False(t, conn.closed)
	assert.True(t, f.store.Exists(stagingID))
	assert.Len(t, f.pageOrder(t, conn), 1)

	f.uploader.err = nil
	require.NoError(t, f.send(t, conn, "form", "scan.pdf"))
	assert.True(t, conn.closed)
}

func TestActionsRequireSession(t *testing.T) {
	f := newFixture(t)
	conn := newFakeConn()
	f.handler.OnConnect(conn)

	cases := []struct {
		action string
		data   any
	}{
		{"append", encodedImage(t, 10, 10)},
		{"delete", 0},
		{"form", "scan.pdf"},
	}
	for _, c := range cases {
		err := f.send(t, conn, c.action, c.data)
		assert.Equal(t, fault.KindProtocol, fault.KindOf(err), c.action)
	}
	assert.Zero(t, conn.frameCount())
}

func TestMalformedEnvelopes(t *testing.T) {
	f := newFixture(t)
	conn := joined(t, f)

	for _, raw := range []string{`not json`, `{"someType":"rotate","data":1}`, `{"data":"x"}`, `{"someType":"append"}`, `{"someType":"delete","data":"first"}`} {
		err := f.handler.OnMessage(context.Background(), conn, []byte(raw))
		assert.Equal(t, fault.KindProtocol, fault.KindOf(err), raw)
	}
	assert.Equal(t, 1, f.handler.Sessions())
}

func TestRegisteredActionWithoutHandler(t *testing.T) {
	protocol.ActionTypeMap["rotate"] = "ROTATE"
	t.Cleanup(func() { delete(protocol.ActionTypeMap, "rotate") })

	f := newFixture(t)
	conn := joined(t, f)

	err := f.send(t, conn, "rotate", 90)
	assert.Equal(t, fault.KindProtocol, fault.KindOf(err))
	assert.Contains(t, err.Error(), "no handler")
	assert.Zero(t, conn.frameCount())
}

func TestDisconnectPurgesStaging(t *testing.T) {
	f := newFixture(t)
	conn := joined(t, f)
	require.NoError(t, f.send(t, conn, "append", encodedImage(t, 20, 20)))
	stagingID := f.stagingID(t, conn)
	require.True(t, f.store.Exists(stagingID))

	f.handler.OnDisconnect(conn.Key())

	assert.False(t, f.store.Exists(stagingID))
	assert.Zero(t, f.handler.Sessions())
	err := f.send(t, conn, "append", encodedImage(t, 20, 20))
	assert.Equal(t, fault.KindProtocol, fault.KindOf(err))
	assert.False(t, f.store.Exists(stagingID))
}

func TestDisconnectWithoutJoin(t *testing.T) {
	f := newFixture(t)
	conn := newFakeConn()
	f.handler.OnConnect(conn)

	assert.NotPanics(t, func() { f.handler.OnDisconnect(conn.Key()) })
	assert.NotPanics(t, func() { f.handler.OnDisconnect("never-seen") })
}

func TestSendFailureIsInternal(t *testing.T) {
	f := newFixture(t)
	conn := joined(t, f)
	_ = conn.Close()

	err := f.send(t, conn, "append", encodedImage(t, 20, 20))
	require.Error(t, err)
	assert.Equal(t, fault.KindInternal, fault.KindOf(err))
	assert.False(t, fault.KindOf(err).Rejects())
}

func TestConcurrentSessionsAreIsolated(t *testing.T) {
	f := newFixture(t)
	const sessions, pages = 8, 4

	conns := make([]*fakeConn, sessions)
	for i := range conns {
		conns[i] = joined(t, f)
	}

	frames := make([][][]byte, sessions)
	for i := range frames {
		for p := 0; p < pages; p++ {
			raw, err := json.Marshal(map[string]any{"someType": "append", "data": encodedImage(t, 10+i, 10+p)})
			require.NoError(t, err)
			frames[i] = append(frames[i], raw)
		}
	}

	var wg sync.WaitGroup
	errs := make(chan error, sessions)
	for i, conn := range conns {
		wg.Add(1)
		go func(i int, conn *fakeConn) {
			defer wg.Done()
			for p, raw := range frames[i] {
				if err := f.handler.OnMessage(context.Background(), conn, raw); err != nil {
					errs <- fmt.Errorf("session %d page %d: %w", i, p, err)
					return
				}
			}
			if i%2 == 0 {
				f.handler.OnDisconnect(conn.Key())
			}
		}(i, conn)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	assert.Equal(t, sessions/2, f.handler.Sessions())
	entries, err := os.ReadDir(f.store.Root())
	require.NoError(t, err)
	dirs := 0
	for _, entry := range entries {
		if entry.IsDir() {
			dirs++
		}
	}
	assert.Equal(t, sessions/2, dirs)
	for i, conn := range conns {
		if i%2 == 0 {
			continue
		}
		stored, err := f.store.Pages(f.stagingID(t, conn))
		require.NoError(t, err)
		assert.Len(t, stored, pages)
		assert.Len(t, f.pageOrder(t, conn), pages)
	}
}

func TestNewHandlerRequiresCollaborators(t *testing.T) {
	store, err := staging.NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	_, err = NewHandler(Options{Assembler: assembler.New(""), Uploader: &fakeUploader{}})
	assert.ErrorIs(t, err, ErrNoStore)
	_, err = NewHandler(Options{Store: store, Uploader: &fakeUploader{}})
	assert.ErrorIs(t, err, ErrNoAssembler)
	_, err = NewHandler(Options{Store: store, Assembler: assembler.New("")})
	assert.ErrorIs(t, err, ErrNoUploader)
}
