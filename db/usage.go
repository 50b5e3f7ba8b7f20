package db

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storybot/models"
)

// IncrementDailyUsage bumps the date-bucketed counter for a guild+feature+day
// and returns the count after the increment. The single-document
// FindOneAndUpdate keeps the increment atomic across concurrent callers.
func (m *Mongo) IncrementDailyUsage(ctx context.Context, guildID, feature, day string) (int, error) {
	update := bson.M{
		"$inc": bson.M{"count": 1},
		"$set": bson.M{"updated_at": time.Now()},
		"$setOnInsert": bson.M{
			"guild_id": guildID,
			"feature":  feature,
			"day":      day,
		},
	}

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var counter models.UsageCounter
	err := m.Collection(usageCollection).
		FindOneAndUpdate(ctx, bson.M{"_id": models.UsageKey(guildID, feature, day)}, update, opts).
		Decode(&counter)
	if err != nil {
		return 0, err
	}
	return counter.Count, nil
}
