package db

import (
	"context"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	storiesCollection       = "stories"
	contributionsCollection = "contributions"
	settingsCollection      = "guild_settings"
	usageCollection         = "usage"
)

// Mongo is the persistence gateway. It owns the durable copies of stories,
// contributions, guild settings and usage counters; the session engine is the
// only caller that mutates them.
type Mongo struct {
	client   *mongo.Client
	database *mongo.Database
}

// Connect establishes the MongoDB connection and verifies it with a ping.
func Connect(ctx context.Context, uri, dbName string) (*Mongo, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	clientOptions := options.Client().ApplyURI(uri)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, err
	}

	// Ping the database to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}

	log.Println("Connected to MongoDB successfully")
	return &Mongo{
		client:   client,
		database: client.Database(dbName),
	}, nil
}

// Collection returns a MongoDB collection by name.
func (m *Mongo) Collection(name string) *mongo.Collection {
	return m.database.Collection(name)
}

// Close closes the MongoDB connection.
func (m *Mongo) Close() error {
	if m.client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return m.client.Disconnect(ctx)
	}
	return nil
}
