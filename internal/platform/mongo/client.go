// Package mongo connects to the document store. The service only pings it for
// /status; nothing reads or writes documents.
package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"sovren/internal/platform/config"
)

// Client wraps the driver client with a health check.
type Client struct {
	client *mongo.Client
}

// New connects lazily; the driver dials on first use. Returns nil when the URL
// is empty (document store not configured).
func New(ctx context.Context, cfg config.MongoConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URL))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	return &Client{client: client}, nil
}

// Health sends {ping: 1} to the admin database.
func (c *Client) Health(ctx context.Context) error {
	return c.client.Database("admin").RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Err()
}

// Close disconnects the client.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}
