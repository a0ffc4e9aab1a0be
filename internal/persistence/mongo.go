package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"github.com/spec-kit/portal-session/internal/config"
)

const (
	mongoConnectAttempts = 3
	mongoRetryInterval   = 2 * time.Second
)

// ErrMongoUnavailable is returned when every connection attempt failed.
var ErrMongoUnavailable = errors.New("failed to connect to mongo")

// Mongo wraps a mongo client bound to one database.
type Mongo struct {
	Client   *mongo.Client
	Database *mongo.Database
}

// NewMongo connects when a URL is provided, retrying a few times before giving up.
func NewMongo(ctx context.Context, cfg config.MongoConfig, logger *zap.Logger) (*Mongo, error) {
	if cfg.URL == "" {
		logger.Warn("MONGODB_URL not provided; skipping mongo connection")
		return &Mongo{}, nil
	}

	var lastErr error
	for attempt := 1; attempt <= mongoConnectAttempts; attempt++ {
		client, err := mongo.Connect(
			options.Client().
				ApplyURI(cfg.URL).
				SetConnectTimeout(cfg.ConnectTimeout).
				SetRetryReads(true),
		)
		if err == nil {
			pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
			err = client.Ping(pingCtx, nil)
			cancel()
			if err == nil {
				logger.Info("connected to mongo", zap.String("database", cfg.Database))
				return &Mongo{Client: client, Database: client.Database(cfg.Database)}, nil
			}
			_ = client.Disconnect(context.Background())
		}
		lastErr = err
		logger.Warn("mongo connection attempt failed", zap.Int("attempt", attempt), zap.Error(err))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(mongoRetryInterval):
		}
	}
	return nil, fmt.Errorf("%w: %w", ErrMongoUnavailable, lastErr)
}

// Close disconnects the client.
func (m *Mongo) Close(ctx context.Context) {
	if m != nil && m.Client != nil {
		_ = m.Client.Disconnect(ctx)
	}
}

// Ping verifies Mongo connectivity.
func (m *Mongo) Ping(ctx context.Context) error {
	if m == nil || m.Client == nil {
		return errors.New("mongo client not configured")
	}
	return m.Client.Ping(ctx, nil)
}
