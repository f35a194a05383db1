package database

import (
	"context"
	"sync"

	"github.com/life-stream-dev/life-stream-go-pdf-collector/internal/logger"
)

// MemoryStore keeps the ledger in process memory; used when no database
// is configured.
type MemoryStore struct {
	mu        sync.RWMutex
	documents map[string]DocumentRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		documents: make(map[string]DocumentRecord),
	}
}

func (ms *MemoryStore) SaveDocument(_ context.Context, record *DocumentRecord) error {
	if record.StagingID == "" {
		return ErrStagingIDEmpty
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.documents[record.StagingID] = *record
	return nil
}

func (ms *MemoryStore) GetDocument(_ context.Context, stagingID string) (*DocumentRecord, error) {
	if stagingID == "" {
		return nil, ErrStagingIDEmpty
	}
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	record, ok := ms.documents[stagingID]
	if !ok {
		logger.DebugF("Document does not exist for staging id %s", stagingID)
		return nil, ErrDocumentNotFound
	}
	return &record, nil
}

func (ms *MemoryStore) DeleteDocument(_ context.Context, stagingID string) error {
	if stagingID == "" {
		return ErrStagingIDEmpty
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	delete(ms.documents, stagingID)
	return nil
}

func (ms *MemoryStore) CountDocuments(_ context.Context) (int64, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return int64(len(ms.documents)), nil
}
