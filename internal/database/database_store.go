package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/life-stream-dev/life-stream-go-pdf-collector/internal/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const defaultCacheSize = 256

type DBStore struct {
	client           *mongo.Client
	documents        *mongo.Collection
	operationTimeout time.Duration
	cache            *lru.Cache[string, DocumentRecord]
}

func NewDatabaseStore(client *mongo.Client, documents *mongo.Collection, operationTimeout time.Duration, cacheSize int) (*DBStore, error) {
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	cache, err := lru.New[string, DocumentRecord](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create document cache: %w", err)
	}
	return &DBStore{
		client:           client,
		documents:        documents,
		operationTimeout: operationTimeout,
		cache:            cache,
	}, nil
}

func wrapDBError(err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("unique key conflicts: %w", err)
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%w: %w", ErrDocumentNotFound, err)
	}
	return fmt.Errorf("database operation failed: %w", err)
}

func (ds *DBStore) SaveDocument(ctx context.Context, record *DocumentRecord) error {
	ctx, cancel := context.WithTimeout(ctx, ds.operationTimeout)
	defer cancel()

	if record.StagingID == "" {
		return ErrStagingIDEmpty
	}

	filter := bson.D{{Key: "staging_id", Value: record.StagingID}}
	opts := options.Replace().SetUpsert(true)

	result, err := ds.documents.ReplaceOne(ctx, filter, record, opts)
	if err != nil {
		return wrapDBError(err)
	}
	ds.cache.Add(record.StagingID, *record)

	logger.InfoF("Document saved: staging_id=%s, external_id=%s, matched=%d, modified=%d, upserted=%v",
		record.StagingID,
		record.ExternalID,
		result.MatchedCount,
		result.ModifiedCount,
		result.UpsertedID != nil,
	)
	return nil
}

func (ds *DBStore) GetDocument(ctx context.Context, stagingID string) (*DocumentRecord, error) {
	if stagingID == "" {
		return nil, ErrStagingIDEmpty
	}
	if record, ok := ds.cache.Get(stagingID); ok {
		return &record, nil
	}

	ctx, cancel := context.WithTimeout(ctx, ds.operationTimeout)
	defer cancel()

	filter := bson.D{{Key: "staging_id", Value: stagingID}}
	var record DocumentRecord

	startTime := time.Now()
	err := ds.documents.FindOne(ctx, filter).Decode(&record)
	logger.DebugF("document query cost: %v", time.Since(startTime))
	if err != nil {
		return nil, wrapDBError(err)
	}

	ds.cache.Add(stagingID, record)
	return &record, nil
}

func (ds *DBStore) DeleteDocument(ctx context.Context, stagingID string) error {
	ctx, cancel := context.WithTimeout(ctx, ds.operationTimeout)
	defer cancel()

	if stagingID == "" {
		return ErrStagingIDEmpty
	}
	ds.cache.Remove(stagingID)

	filter := bson.D{{Key: "staging_id", Value: stagingID}}
	result, err := ds.documents.DeleteOne(ctx, filter)
	if err != nil {
		return wrapDBError(err)
	}

	logger.InfoF("Document deleted: staging_id=%s, deleted=%d", stagingID, result.DeletedCount)
	return nil
}

func (ds *DBStore) CountDocuments(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, ds.operationTimeout)
	defer cancel()

	count, err := ds.documents.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, wrapDBError(err)
	}
	return count, nil
}
