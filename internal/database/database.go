package database

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"time"

	c "github.com/life-stream-dev/life-stream-go-pdf-collector/internal/config"
	event2 "github.com/life-stream-dev/life-stream-go-pdf-collector/internal/event"
	"github.com/life-stream-dev/life-stream-go-pdf-collector/internal/logger"
	"github.com/life-stream-dev/life-stream-go-pdf-collector/internal/utils"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/event"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	connectTimeout          = 15 * time.Second
	defaultOperationTimeout = 5 * time.Second
)

type DBCloseCallback struct {
	client  *mongo.Client
	timeout time.Duration
}

func (dc *DBCloseCallback) Invoke(ctx context.Context) error {
	logger.InfoF("Closing database connection")
	ctx, cancel := context.WithTimeout(ctx, dc.timeout)
	defer cancel()
	return dc.client.Disconnect(ctx)
}

// OpenDocumentStore returns the MongoDB ledger when the database is
// enabled and the in-memory ledger otherwise.
func OpenDocumentStore(config c.Config) (DocumentStore, error) {
	if !config.Database.Enabled {
		logger.Info("Database disabled, documents are recorded in memory")
		return NewMemoryStore(), nil
	}
	return ConnectDatabase(config)
}

func ConnectDatabase(config c.Config) (*DBStore, error) {
	logger.DebugF("Connecting to database...")
	dbConfig := config.Database
	operationTimeout := utils.ParseStringTime(dbConfig.OperationTimeout, defaultOperationTimeout)

	encodedUser := url.QueryEscape(dbConfig.Username)
	encodedPass := url.QueryEscape(dbConfig.Password)
	credentials := ""
	if encodedUser != "" {
		credentials = fmt.Sprintf("%s:%s@", encodedUser, encodedPass)
	}
	databaseUrl := fmt.Sprintf("mongodb://%s%s:%d/?authSource=admin",
		credentials,
		dbConfig.Host,
		dbConfig.Port,
	)

	clientOptions := options.Client().ApplyURI(databaseUrl).SetAppName(config.AppName)
	clientOptions.SetMinPoolSize(dbConfig.MinPoolSize)
	clientOptions.SetMaxPoolSize(dbConfig.MaxPoolSize)
	clientOptions.SetMaxConnIdleTime(utils.ParseStringTime(dbConfig.ConnectIdleTimeout, 5*time.Minute))
	clientOptions.SetConnectTimeout(utils.ParseStringTime(dbConfig.ConnectTimeout, 10*time.Second))
	clientOptions.SetSocketTimeout(utils.ParseStringTime(dbConfig.SocketTimeout, 30*time.Second))
	clientOptions.SetHeartbeatInterval(utils.ParseStringTime(dbConfig.Heartbeat, 10*time.Second))
	if dbConfig.UseTLS {
		clientOptions.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	clientOptions.SetPoolMonitor(&event.PoolMonitor{
		Event: func(evt *event.PoolEvent) {
			switch evt.Type {
			case event.ConnectionCreated:
				logger.DebugF("Database connection created: %+v", evt)
			case event.ConnectionClosed:
				logger.DebugF("Database connection closed: %+v", evt)
			}
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("error occured while connecting to database: %w", err)
	}

	if err = client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("error occured while pinging database: %w", err)
	}

	documents := client.Database(dbConfig.Database).Collection(DocumentCollectionName)
	_, err = documents.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "staging_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("documents_staging_id_unique"),
		},
		{
			Keys:    bson.D{{Key: "external_id", Value: 1}},
			Options: options.Index().SetSparse(true).SetName("documents_external_id"),
		},
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("error occured while creating database indexes: %w", err)
	}

	store, err := NewDatabaseStore(client, documents, operationTimeout, dbConfig.CacheSize)
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	event2.NewCleaner().Add(&DBCloseCallback{client: client, timeout: operationTimeout})
	logger.InfoF("Database connected, ledger collection %s.%s", dbConfig.Database, DocumentCollectionName)
	return store, nil
}
