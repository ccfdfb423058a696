package cluster

import (
	"context"
	"fmt"
	"time"

	"communityera/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore keeps reports in a MongoDB collection.
type MongoStore struct {
	coll *mongo.Collection
}

func NewMongoStore(coll *mongo.Collection) *MongoStore {
	return &MongoStore{coll: coll}
}

var oldestFirst = bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}

// EnsureIndexes creates the indexes the matcher, the children lookup and the
// listing sorts rely on.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "category", Value: 1}, {Key: "status", Value: 1}, {Key: "parentReport", Value: 1}}},
		{Keys: bson.D{{Key: "parentReport", Value: 1}, {Key: "createdAt", Value: 1}}},
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "votes", Value: -1}}},
		{Keys: bson.D{{Key: "reportedBy", Value: 1}, {Key: "createdAt", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("create report indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) FindRoots(ctx context.Context, q RootQuery) ([]models.Report, error) {
	filter := bson.M{
		"status":       bson.M{"$in": models.ActiveStatuses},
		"parentReport": nil,
	}
	if q.Category != "" {
		filter["category"] = q.Category
	}
	if !q.Exclude.IsZero() {
		filter["_id"] = bson.M{"$ne": q.Exclude}
	}
	if b := q.Within; b != nil {
		filter["location.coordinates.lat"] = bson.M{"$gte": b.MinLat, "$lte": b.MaxLat}
		filter["location.coordinates.lng"] = bson.M{"$gte": b.MinLng, "$lte": b.MaxLng}
	}
	return s.find(ctx, filter)
}

func (s *MongoStore) FindChildren(ctx context.Context, parentIDs []primitive.ObjectID) ([]models.Report, error) {
	if len(parentIDs) == 0 {
		return nil, nil
	}
	return s.find(ctx, bson.M{"parentReport": bson.M{"$in": parentIDs}})
}

func (s *MongoStore) find(ctx context.Context, filter bson.M) ([]models.Report, error) {
	cur, err := s.coll.Find(ctx, filter, options.Find().SetSort(oldestFirst))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Report
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *MongoStore) Insert(ctx context.Context, r *models.Report) error {
	res, err := s.coll.InsertOne(ctx, r)
	if err != nil {
		return err
	}
	r.ID = res.InsertedID.(primitive.ObjectID)
	return nil
}

func (s *MongoStore) SetParent(ctx context.Context, childID, parentID primitive.ObjectID) error {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": childID, "parentReport": nil},
		bson.M{"$set": bson.M{"parentReport": parentID, "updatedAt": time.Now().UTC()}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotRoot
	}
	return nil
}

func (s *MongoStore) ReparentChildren(ctx context.Context, from, to primitive.ObjectID) (int64, error) {
	res, err := s.coll.UpdateMany(ctx,
		bson.M{"parentReport": from},
		bson.M{"$set": bson.M{"parentReport": to, "updatedAt": time.Now().UTC()}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}
