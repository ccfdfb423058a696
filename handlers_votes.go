package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"communityera/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// handleVote records one vote per user per report and bumps the counter.
func (a *App) handleVote(w http.ResponseWriter, r *http.Request) {
	uid := mustUserID(r)
	var req voteReq
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	rid, _ := primitive.ObjectIDFromHex(req.ReportID) // checked by the mongodb validator

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := a.reports.FindOne(ctx, bson.M{"_id": rid}).Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			http.Error(w, "report not found", http.StatusNotFound)
			return
		}
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}

	v := models.Vote{Report: rid, User: uid, CreatedAt: time.Now().UTC()}
	if err := castVote(ctx, a.votes, a.reports, v); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			http.Error(w, "already voted", http.StatusConflict)
			return
		}
		a.log.Error("cast vote", zap.String("report_id", rid.Hex()), zap.Error(err))
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, bson.M{"ok": true})
}

// voteWriter and counterWriter are the parts of *mongo.Collection castVote uses.
type voteWriter interface {
	InsertOne(ctx context.Context, doc interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	DeleteOne(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
}

type counterWriter interface {
	UpdateByID(ctx context.Context, id interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
}

// castVote inserts the vote and then bumps the report counter. The unique
// (report, user) index decides "already voted", so a failed increment removes
// the vote row again; otherwise the user could never retry.
func castVote(ctx context.Context, votes voteWriter, reports counterWriter, v models.Vote) error {
	if _, err := votes.InsertOne(ctx, &v); err != nil {
		return err
	}
	_, err := reports.UpdateByID(ctx, v.Report, bson.M{
		"$inc":      bson.M{"votes": 1},
		"$addToSet": bson.M{"voters": v.User},
	})
	if err == nil {
		return nil
	}
	if _, derr := votes.DeleteOne(ctx, bson.M{"report": v.Report, "user": v.User}); derr != nil {
		return fmt.Errorf("increment votes: %w (rollback failed: %v)", err, derr)
	}
	return fmt.Errorf("increment votes: %w", err)
}

// handleUnvote withdraws the caller's vote; the counter never goes below zero.
func (a *App) handleUnvote(w http.ResponseWriter, r *http.Request) {
	uid := mustUserID(r)
	rid, ok := idParam(w, r, "reportId")
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := a.votes.FindOneAndDelete(ctx, bson.M{"report": rid, "user": uid}).Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			http.Error(w, "vote not found", http.StatusNotFound)
			return
		}
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	if _, err := a.reports.UpdateByID(ctx, rid, bson.M{"$pull": bson.M{"voters": uid}}); err != nil {
		a.log.Warn("pull voter", zap.String("report_id", rid.Hex()), zap.Error(err))
	}
	if _, err := a.reports.UpdateOne(ctx,
		bson.M{"_id": rid, "votes": bson.M{"$gt": 0}},
		bson.M{"$inc": bson.M{"votes": -1}},
	); err != nil {
		a.log.Error("decrement votes", zap.String("report_id", rid.Hex()), zap.Error(err))
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(bson.M{"ok": true})
}

// handleCheckVote tells whether the caller has voted on a report.
func (a *App) handleCheckVote(w http.ResponseWriter, r *http.Request) {
	uid := mustUserID(r)
	rid, ok := idParam(w, r, "reportId")
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	n, err := a.votes.CountDocuments(ctx, bson.M{"report": rid, "user": uid})
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(bson.M{"hasVoted": n > 0})
}
