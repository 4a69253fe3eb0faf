package storage

import (
	"fmt"
	"log/slog"

	"github.com/johnwmail/clipsync/config"
)

// NewClipStore creates a storage backend based on the configuration
func NewClipStore(cfg *config.Config, logger *slog.Logger) (ClipStore, error) {
	switch cfg.StorageType {
	case "memory":
		logger.Warn("Using in-memory storage; clips are lost on restart and not shared between processes")
		return NewMemoryStore(), nil

	case "mongodb":
		logger.Info("Using MongoDB storage",
			"uri", cfg.MongoDBURI,
			"database", cfg.MongoDBDatabase,
			"collection", cfg.MongoDBCollection)
		return NewMongoStore(cfg.MongoDBURI, cfg.MongoDBDatabase, cfg.MongoDBCollection)

	case "dynamodb":
		logger.Info("Using DynamoDB storage",
			"table", cfg.DynamoDBTable,
			"poll", cfg.DynamoDBPollInterval)
		return NewDynamoStore(cfg.DynamoDBTable, cfg.DynamoDBRegion, cfg.DynamoDBPollInterval, logger)

	default:
		return nil, fmt.Errorf("unsupported storage type: %s (supported: memory, mongodb, dynamodb)", cfg.StorageType)
	}
}
