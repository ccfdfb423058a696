package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"communityera/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type fakeVotes struct {
	inserted  []models.Vote
	deleted   []interface{}
	insertErr error
	deleteErr error
}

func (f *fakeVotes) InsertOne(_ context.Context, doc interface{}, _ ...*options.InsertOneOptions) (*mongo.InsertOneResult, error) {
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	f.inserted = append(f.inserted, *doc.(*models.Vote))
	return &mongo.InsertOneResult{InsertedID: primitive.NewObjectID()}, nil
}

func (f *fakeVotes) DeleteOne(_ context.Context, filter interface{}, _ ...*options.DeleteOptions) (*mongo.DeleteResult, error) {
	f.deleted = append(f.deleted, filter)
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	return &mongo.DeleteResult{DeletedCount: 1}, nil
}

type fakeCounter struct {
	updates []interface{}
	err     error
}

func (f *fakeCounter) UpdateByID(_ context.Context, _ interface{}, update interface{}, _ ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.updates = append(f.updates, update)
	return &mongo.UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil
}

func newVote() models.Vote {
	return models.Vote{Report: primitive.NewObjectID(), User: primitive.NewObjectID(), CreatedAt: time.Now().UTC()}
}

func TestCastVote(t *testing.T) {
	votes, counter := &fakeVotes{}, &fakeCounter{}
	v := newVote()

	require.NoError(t, castVote(context.Background(), votes, counter, v))

	require.Len(t, votes.inserted, 1)
	assert.Equal(t, v.Report, votes.inserted[0].Report)
	require.Len(t, counter.updates, 1)
	assert.Equal(t, bson.M{"votes": 1}, counter.updates[0].(bson.M)["$inc"])
	assert.Empty(t, votes.deleted)
}

func TestCastVoteInsertFailureLeavesCounter(t *testing.T) {
	votes := &fakeVotes{insertErr: mongo.WriteException{WriteErrors: mongo.WriteErrors{{Code: 11000}}}}
	counter := &fakeCounter{}

	err := castVote(context.Background(), votes, counter, newVote())

	assert.True(t, mongo.IsDuplicateKeyError(err))
	assert.Empty(t, counter.updates)
}

func TestCastVoteRollsBackWhenCounterFails(t *testing.T) {
	votes := &fakeVotes{}
	counter := &fakeCounter{err: errors.New("connection reset")}
	v := newVote()

	err := castVote(context.Background(), votes, counter, v)

	require.Error(t, err)
	assert.False(t, mongo.IsDuplicateKeyError(err))
	require.Len(t, votes.deleted, 1)
	assert.Equal(t, bson.M{"report": v.Report, "user": v.User}, votes.deleted[0])
}

func TestCastVoteReportsFailedRollback(t *testing.T) {
	votes := &fakeVotes{deleteErr: errors.New("still down")}
	counter := &fakeCounter{err: errors.New("connection reset")}

	err := castVote(context.Background(), votes, counter, newVote())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "rollback failed")
}
