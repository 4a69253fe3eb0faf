package storage

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/johnwmail/clipsync/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore implements ClipStore using MongoDB. Documents of every user share one
// collection; the _id is prefixed with the user id so change-stream events for deletes,
// which carry only the document key, can still be routed to the right partition.
// Change streams require a replica set.
type MongoStore struct {
	client     *mongo.Client
	database   *mongo.Database
	collection *mongo.Collection
}

// mongoClip is the stored document
type mongoClip struct {
	ID            string `bson:"_id"`
	UserID        string `bson:"userId"`
	models.Record `bson:",inline"`
	PurgeAt       time.Time `bson:"purgeAt"`
}

// NewMongoStore creates a new MongoDB storage backend
func NewMongoStore(url, dbName, collName string) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(url))
	if err != nil {
		return nil, unavailable("mongo connect", err)
	}

	// Test the connection
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, unavailable("mongo ping", err)
	}

	database := client.Database(dbName)
	store := &MongoStore{
		client:     client,
		database:   database,
		collection: database.Collection(collName),
	}

	if err := store.createIndexes(); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, unavailable("mongo indexes", err)
	}

	return store, nil
}

// createIndexes creates necessary indexes for the collection
func (m *MongoStore) createIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Server-side TTL monitor, an extra sweep layer on top of the client and backend sweeps
	ttlIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "purgeAt", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	}

	liveIndex := mongo.IndexModel{
		Keys: bson.D{{Key: "userId", Value: 1}, {Key: "expiresAt", Value: -1}},
	}

	_, err := m.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		ttlIndex,
		liveIndex,
	})
	return err
}

// Write inserts a new document
func (m *MongoStore) Write(ctx context.Context, userID string, rec models.Record) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("user id cannot be empty")
	}
	doc := newMongoClip(userID, rec)
	if _, err := m.collection.InsertOne(ctx, doc); err != nil {
		return "", unavailable("mongo insert", err)
	}
	return doc.ID, nil
}

func newMongoClip(userID string, rec models.Record) mongoClip {
	rec.ID = ""
	return mongoClip{
		ID:      userID + ":" + primitive.NewObjectID().Hex(),
		UserID:  userID,
		Record:  rec,
		PurgeAt: time.UnixMilli(rec.ExpiresAt),
	}
}

// DeleteByID removes one document of the user's partition
func (m *MongoStore) DeleteByID(ctx context.Context, userID, id string) error {
	_, err := m.collection.DeleteOne(ctx, bson.M{"_id": id, "userId": userID})
	return unavailable("mongo delete", err)
}

// DeleteExpired removes up to limit expired documents of the user's partition
func (m *MongoStore) DeleteExpired(ctx context.Context, userID string, now time.Time, limit int) (int, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "expiresAt", Value: 1}}).
		SetProjection(bson.M{"_id": 1})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := m.collection.Find(ctx, expiredFilter(userID, now), opts)
	if err != nil {
		return 0, unavailable("mongo find expired", err)
	}
	var keys []struct {
		ID string `bson:"_id"`
	}
	if err := cursor.All(ctx, &keys); err != nil {
		return 0, unavailable("mongo read expired", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	ids := make(bson.A, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, k.ID)
	}
	res, err := m.collection.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}, "userId": userID})
	if err != nil {
		return 0, unavailable("mongo delete expired", err)
	}
	return int(res.DeletedCount), nil
}

// SubscribeLive watches the user's partition with a change stream and re-queries the live
// set on every event
func (m *MongoStore) SubscribeLive(ctx context.Context, userID string, limit int, now time.Time) (Subscription, error) {
	subCtx, cancel := context.WithCancel(ctx)

	// Open the stream before the first query so no change falls in between
	cs, err := m.collection.Watch(subCtx, changeStreamPipeline(userID))
	if err != nil {
		cancel()
		return nil, unavailable("mongo watch", err)
	}

	f := newFeed(cancel)
	go func() {
		defer func() {
			_ = cs.Close(context.Background())
		}()
		defer f.finish()

		publish := func() {
			recs, err := m.queryLive(subCtx, userID, limit, now)
			if err != nil {
				if subCtx.Err() == nil {
					f.publish(Snapshot{Err: err})
				}
				return
			}
			f.publish(Snapshot{Records: recs})
		}

		publish()
		for cs.Next(subCtx) {
			publish()
		}
		if subCtx.Err() == nil {
			if err := cs.Err(); err != nil {
				f.publish(Snapshot{Err: unavailable("mongo change stream", err)})
			}
		}
	}()

	return f, nil
}

func (m *MongoStore) queryLive(ctx context.Context, userID string, limit int, now time.Time) ([]models.Record, error) {
	opts := options.Find().SetSort(bson.D{{Key: "expiresAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := m.collection.Find(ctx, liveFilter(userID, now), opts)
	if err != nil {
		return nil, unavailable("mongo find live", err)
	}
	var docs []mongoClip
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, unavailable("mongo read live", err)
	}

	recs := make([]models.Record, 0, len(docs))
	for _, d := range docs {
		rec := d.Record
		rec.ID = d.ID
		recs = append(recs, rec)
	}
	return recs, nil
}

// Partitions lists the distinct user ids in the collection
func (m *MongoStore) Partitions(ctx context.Context) ([]string, error) {
	values, err := m.collection.Distinct(ctx, "userId", bson.M{})
	if err != nil {
		return nil, unavailable("mongo distinct", err)
	}
	ids := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok && s != "" {
			ids = append(ids, s)
		}
	}
	return ids, nil
}

// Close closes the MongoDB connection
func (m *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return m.client.Disconnect(ctx)
}

func liveFilter(userID string, now time.Time) bson.M {
	return bson.M{"userId": userID, "expiresAt": bson.M{"$gt": now.UnixMilli()}}
}

func expiredFilter(userID string, now time.Time) bson.M {
	return bson.M{"userId": userID, "expiresAt": bson.M{"$lt": now.UnixMilli()}}
}

func changeStreamPipeline(userID string) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: "documentKey._id", Value: primitive.Regex{Pattern: "^" + regexp.QuoteMeta(userID+":")}},
		}}},
	}
}
