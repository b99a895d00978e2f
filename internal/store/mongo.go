package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"traffic-router/internal/config"
)

// Server error codes meaning "an index with this name or key pattern is
// already there".
const (
	codeIndexAlreadyExists    = 68
	codeIndexOptionsConflict  = 85
	codeIndexKeySpecsConflict = 86
)

// Mongo owns a connected client and the database documents are written to.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect dials the server and pings it with retry support, using the
// attempts and delay of retryCfg between failed pings.
func Connect(ctx context.Context, cfg config.MongoConfig, retryCfg config.RetryConfig) (*Mongo, error) {
	if retryCfg.Attempts == 0 {
		retryCfg.Attempts = 3
	}
	if retryCfg.DelayMS == 0 {
		retryCfg.DelayMS = 1500
	}

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetAppName("traffic-router").
		SetTimeout(cfg.Timeout())

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}

	for attempt := 1; attempt <= retryCfg.Attempts; attempt++ {
		pctx, cancel := context.WithTimeout(ctx, cfg.Timeout())
		err = client.Ping(pctx, readpref.Primary())
		cancel()
		if err == nil {
			logrus.Infof("Connected to MongoDB | database=%s", cfg.Database)
			return &Mongo{client: client, db: client.Database(cfg.Database)}, nil
		}

		logrus.Warnf("mongo ping failed (attempt %d/%d): %v", attempt, retryCfg.Attempts, err)

		if attempt < retryCfg.Attempts {
			select {
			case <-ctx.Done():
				_ = client.Disconnect(context.Background())
				return nil, ctx.Err()
			case <-time.After(time.Duration(retryCfg.DelayMS) * time.Millisecond):
			}
		}
	}

	_ = client.Disconnect(context.Background())
	return nil, fmt.Errorf("mongo ping: %w", err)
}

// Collection returns a handle for the named collection.
func (m *Mongo) Collection(name string) Collection {
	return &mongoCollection{coll: m.db.Collection(name)}
}

// Disconnect closes the client, waiting at most until ctx is done.
func (m *Mongo) Disconnect(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

type mongoCollection struct {
	coll *mongo.Collection
}

func (c *mongoCollection) Name() string { return c.coll.Name() }

func (c *mongoCollection) HasDocuments(ctx context.Context) (bool, error) {
	n, err := c.coll.CountDocuments(ctx, bson.D{}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *mongoCollection) CreateIndex(ctx context.Context, spec IndexSpec) error {
	_, err := c.coll.Indexes().CreateOne(ctx, indexModel(spec))
	if isIndexExists(err) {
		return nil
	}
	return err
}

func (c *mongoCollection) InsertOne(ctx context.Context, doc interface{}) error {
	_, err := c.coll.InsertOne(ctx, doc)
	return err
}

func indexModel(spec IndexSpec) mongo.IndexModel {
	keys := make(bson.D, 0, len(spec.Keys))
	for _, k := range spec.Keys {
		var v interface{}
		switch k.Kind {
		case Descending:
			v = -1
		case Geo2DSphere:
			v = "2dsphere"
		default:
			v = 1
		}
		keys = append(keys, bson.E{Key: k.Field, Value: v})
	}
	return mongo.IndexModel{Keys: keys, Options: options.Index().SetName(spec.Name())}
}

func isIndexExists(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) {
		return ce.HasErrorCode(codeIndexAlreadyExists) ||
			ce.HasErrorCode(codeIndexOptionsConflict) ||
			ce.HasErrorCode(codeIndexKeySpecsConflict)
	}
	return false
}

// IsConnectionError reports whether err means the server could not be
// reached rather than that it rejected the operation.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	return mongo.IsNetworkError(err) ||
		mongo.IsTimeout(err) ||
		errors.Is(err, mongo.ErrClientDisconnected) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}
