package mongodb

import (
	"context"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// conn is the shared connection handle. One mutex serializes the
// individual store calls; it is held only for the duration of a
// single read or write, never across a multi-step sequence, so the
// sequences built on top of it are interleavable and must tolerate
// that (see the manager implementations).
type conn struct {
	mu sync.Mutex
	db *mongo.Database
}

func (c *conn) findOne(ctx context.Context, collection string, filter bson.D, out any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.db.Collection(collection).FindOne(ctx, filter).Decode(out)
}

func (c *conn) insertOne(ctx context.Context, collection string, doc any) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res, err := c.db.Collection(collection).InsertOne(ctx, doc)
	if err != nil {
		return nil, err
	}
	return res.InsertedID, nil
}

func (c *conn) updateOne(ctx context.Context, collection string, filter, update bson.D) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.db.Collection(collection).UpdateOne(ctx, filter, update)
	return err
}

// updateOneMatched is updateOne for callers that need to know
// whether the filter matched anything.
func (c *conn) updateOneMatched(ctx context.Context, collection string, filter, update bson.D) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res, err := c.db.Collection(collection).UpdateOne(ctx, filter, update)
	if err != nil {
		return 0, err
	}
	return res.MatchedCount, nil
}

func (c *conn) updateMany(ctx context.Context, collection string, filter, update bson.D) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.db.Collection(collection).UpdateMany(ctx, filter, update)
	return err
}

func (c *conn) deleteOne(ctx context.Context, collection string, filter bson.D) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.db.Collection(collection).DeleteOne(ctx, filter)
	return err
}

func (c *conn) deleteMany(ctx context.Context, collection string, filter bson.D) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.db.Collection(collection).DeleteMany(ctx, filter)
	return err
}

// byID is the filter matching a document by its _id.
func byID(id string) bson.D {
	return bson.D{{Key: "_id", Value: id}}
}
