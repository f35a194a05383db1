package database

import (
	"context"
	"errors"
	"time"
)

const (
	DocumentCollectionName = "documents"
)

var (
	ErrStagingIDEmpty   = errors.New("staging_id is empty")
	ErrDocumentNotFound = errors.New("document does not exist")
)

// DocumentRecord describes one document handed to the storage gateway.
type DocumentRecord struct {
	StagingID  string    `bson:"staging_id"`
	SessionKey string    `bson:"session_key"`
	ExternalID string    `bson:"external_id,omitempty"`
	FileName   string    `bson:"file_name"`
	PageCount  int       `bson:"page_count"`
	SizeBytes  int       `bson:"size_bytes"`
	CreatedAt  time.Time `bson:"created_at"`
}

// DocumentStore is the ledger of formed documents, keyed by staging id.
type DocumentStore interface {
	SaveDocument(ctx context.Context, record *DocumentRecord) error
	GetDocument(ctx context.Context, stagingID string) (*DocumentRecord, error)
	DeleteDocument(ctx context.Context, stagingID string) error
	CountDocuments(ctx context.Context) (int64, error)
}

func NewDocumentRecord(stagingID, sessionKey, externalID, fileName string, pageCount, size int) *DocumentRecord {
	return &DocumentRecord{
		StagingID:  stagingID,
		SessionKey: sessionKey,
		ExternalID: externalID,
		FileName:   fileName,
		PageCount:  pageCount,
		SizeBytes:  size,
		CreatedAt:  time.Now().UTC(),
	}
}
