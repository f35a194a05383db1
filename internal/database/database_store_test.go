package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// newOfflineStore builds a DBStore whose client never dials; only paths
// that stay in the cache or fail validation may be exercised.
func newOfflineStore(t *testing.T) *DBStore {
	t.Helper()
	client, err := mongo.Connect(context.Background(), options.Client().ApplyURI("mongodb://127.0.0.1:1"))
	if err != nil {
		t.Fatalf("Connect error: %v", err)
	}
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	store, err := NewDatabaseStore(client, client.Database("test").Collection(DocumentCollectionName), time.Second, 0)
	if err != nil {
		t.Fatalf("NewDatabaseStore error: %v", err)
	}
	return store
}

func TestDatabaseStoreValidation(t *testing.T) {
	store := newOfflineStore(t)
	ctx := context.Background()

	if err := store.SaveDocument(ctx, &DocumentRecord{}); !errors.Is(err, ErrStagingIDEmpty) {
		t.Fatalf("Expected empty staging id error, got %v", err)
	}
	if _, err := store.GetDocument(ctx, ""); !errors.Is(err, ErrStagingIDEmpty) {
		t.Fatalf("Expected empty staging id error, got %v", err)
	}
	if err := store.DeleteDocument(ctx, ""); !errors.Is(err, ErrStagingIDEmpty) {
		t.Fatalf("Expected empty staging id error, got %v", err)
	}
}

func TestDatabaseStoreServesFromCache(t *testing.T) {
	store := newOfflineStore(t)
	record := NewDocumentRecord("s1", "c1", "e1", "scan.pdf", 3, 1024)
	store.cache.Add(record.StagingID, *record)

	got, err := store.GetDocument(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Expected cached record, got error %v", err)
	}
	if got.ExternalID != "e1" || got.PageCount != 3 {
		t.Fatalf("Unexpected record %+v", got)
	}
	if store.cache.Len() != 1 {
		t.Fatalf("Unexpected cache state, len %d", store.cache.Len())
	}
}

func TestWrapDBError(t *testing.T) {
	if err := wrapDBError(mongo.ErrNoDocuments); !errors.Is(err, ErrDocumentNotFound) {
		t.Fatalf("Expected not found error, got %v", err)
	}
	if err := wrapDBError(errors.New("boom")); errors.Is(err, ErrDocumentNotFound) {
		t.Fatalf("Unexpected not found error %v", err)
	}
}
