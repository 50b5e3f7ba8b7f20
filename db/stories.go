package db

import (
	"context"
	"errors"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storybot/models"
)

// CreateStory inserts a new story and returns its ID
func (m *Mongo) CreateStory(ctx context.Context, story *models.Story) (string, error) {
	result, err := m.Collection(storiesCollection).InsertOne(ctx, story)
	if err != nil {
		return "", err
	}
	return result.InsertedID.(primitive.ObjectID).Hex(), nil
}

// GetStory fetches a story by ID. Returns (nil, nil) when absent.
func (m *Mongo) GetStory(ctx context.Context, id string) (*models.Story, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, err
	}

	var story models.Story
	err = m.Collection(storiesCollection).FindOne(ctx, bson.M{"_id": objID}).Decode(&story)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &story, nil
}

// AppendStoryText writes the grown final text and bumps the contribution
// counter in a single update, so an accepted turn is one durable write.
func (m *Mongo) AppendStoryText(ctx context.Context, id, finalText string) error {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return err
	}

	_, err = m.Collection(storiesCollection).UpdateOne(ctx, bson.M{"_id": objID}, bson.M{
		"$set": bson.M{"final_text": finalText},
		"$inc": bson.M{"contribution_count": 1},
	})
	return err
}

// EndStory marks a story as ended with its final text snapshot. The ended_at
// timestamp is set once and never touched again.
func (m *Mongo) EndStory(ctx context.Context, id, finalText string, endedAt time.Time) error {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return err
	}

	_, err = m.Collection(storiesCollection).UpdateOne(ctx, bson.M{"_id": objID}, bson.M{
		"$set": bson.M{
			"final_text": finalText,
			"ended_at":   endedAt,
		},
	})
	return err
}

// SetStoryDocURL records the exported document reference on the story.
func (m *Mongo) SetStoryDocURL(ctx context.Context, id, url string) error {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return err
	}

	_, err = m.Collection(storiesCollection).UpdateOne(ctx, bson.M{"_id": objID}, bson.M{
		"$set": bson.M{"doc_url": url},
	})
	return err
}

// GetActiveStories returns every story without an end timestamp.
func (m *Mongo) GetActiveStories(ctx context.Context) ([]models.Story, error) {
	cursor, err := m.Collection(storiesCollection).Find(ctx, bson.M{"ended_at": nil})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var stories []models.Story
	if err := cursor.All(ctx, &stories); err != nil {
		return nil, err
	}
	return stories, nil
}

// GetRecentStories returns up to limit stories for a channel, newest first.
// Falls back to an unordered query when the sorted one fails (for example
// when the started_at index is missing on a capped deployment).
func (m *Mongo) GetRecentStories(ctx context.Context, channelID string, limit int) ([]models.Story, error) {
	filter := bson.M{"channel_id": channelID}
	opts := options.Find().
		SetSort(bson.D{{Key: "started_at", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := m.Collection(storiesCollection).Find(ctx, filter, opts)
	if err != nil {
		log.Printf("[STORIES] Sorted recent-stories query failed, retrying unsorted: %v", err)
		cursor, err = m.Collection(storiesCollection).Find(ctx, filter, options.Find().SetLimit(int64(limit)))
		if err != nil {
			return nil, err
		}
	}
	defer cursor.Close(ctx)

	var stories []models.Story
	if err := cursor.All(ctx, &stories); err != nil {
		return nil, err
	}
	return stories, nil
}

// GetEndedStories returns a guild's ended stories, oldest first, for the
// retention pass.
func (m *Mongo) GetEndedStories(ctx context.Context, guildID string) ([]models.Story, error) {
	filter := bson.M{
		"guild_id": guildID,
		"ended_at": bson.M{"$ne": nil},
	}
	opts := options.Find().SetSort(bson.D{{Key: "ended_at", Value: 1}})

	cursor, err := m.Collection(storiesCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var stories []models.Story
	if err := cursor.All(ctx, &stories); err != nil {
		return nil, err
	}
	return stories, nil
}

// DeleteStoryCascade removes a story and all of its contributions.
func (m *Mongo) DeleteStoryCascade(ctx context.Context, id string) error {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return err
	}

	if _, err := m.Collection(contributionsCollection).DeleteMany(ctx, bson.M{"story_id": id}); err != nil {
		return err
	}
	_, err = m.Collection(storiesCollection).DeleteOne(ctx, bson.M{"_id": objID})
	return err
}

// AddContribution appends a turn to the durable history and returns its ID.
func (m *Mongo) AddContribution(ctx context.Context, contribution *models.Contribution) (string, error) {
	collection := m.Collection(contributionsCollection)

	// Add retry logic for transient failures
	var lastErr error
	for i := 0; i < 3; i++ {
		result, err := collection.InsertOne(ctx, contribution)
		if err == nil {
			return result.InsertedID.(primitive.ObjectID).Hex(), nil
		}
		lastErr = err
		time.Sleep(time.Millisecond * 100 * time.Duration(i+1)) // Exponential backoff
	}

	return "", lastErr
}

// GetContributions returns a story's contributions in narrative order.
func (m *Mongo) GetContributions(ctx context.Context, storyID string) ([]models.Contribution, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}})

	cursor, err := m.Collection(contributionsCollection).Find(ctx, bson.M{"story_id": storyID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var contributions []models.Contribution
	if err := cursor.All(ctx, &contributions); err != nil {
		return nil, err
	}
	return contributions, nil
}

// CreateIndexes creates necessary indexes for performance
func (m *Mongo) CreateIndexes(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	storyIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "channel_id", Value: 1}, {Key: "started_at", Value: -1}}},
		{Keys: bson.D{{Key: "ended_at", Value: 1}}},
		{Keys: bson.D{{Key: "guild_id", Value: 1}, {Key: "ended_at", Value: 1}}},
	}
	if _, err := m.Collection(storiesCollection).Indexes().CreateMany(ctx, storyIndexes); err != nil {
		log.Printf("Failed to create story indexes: %v", err)
	}

	contributionIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "story_id", Value: 1}, {Key: "timestamp", Value: 1}}},
	}
	if _, err := m.Collection(contributionsCollection).Indexes().CreateMany(ctx, contributionIndexes); err != nil {
		log.Printf("Failed to create contribution indexes: %v", err)
	}
}
