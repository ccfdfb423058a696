package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"communityera/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"
)

// handleHealth is the liveness probe.
func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	_ = json.NewEncoder(w).Encode(bson.M{"status": "OK", "time": time.Now().UTC()})
}

// handleRegister creates a new user with bcrypt-hashed password and signs them in.
func (a *App) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerReq
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	if req.Location.City == "" {
		http.Error(w, "location.city is required", http.StatusBadRequest)
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "hash error", http.StatusInternalServerError)
		return
	}
	now := time.Now().UTC()
	u := models.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
		Role:         models.RoleUser,
		Location:     req.Location,
		CreatedAt:    now,
		LastActive:   &now,
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	res, err := a.users.InsertOne(ctx, &u)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			http.Error(w, duplicateUserMessage(err), http.StatusConflict)
			return
		}
		a.log.Error("insert user", zap.Error(err))
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	u.ID = res.InsertedID.(primitive.ObjectID)

	tok, err := signJWT(a.cfg.JWTSecret, u.ID)
	if err != nil {
		http.Error(w, "jwt error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, authResp{Token: tok, User: u})
}

// duplicateUserMessage tells which unique key the insert collided with.
func duplicateUserMessage(err error) string {
	if strings.Contains(err.Error(), "username") {
		return "username already taken"
	}
	return "email already registered"
}

// handleLogin verifies credentials and returns a JWT token.
func (a *App) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginReq
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var u models.User
	if err := a.users.FindOne(ctx, bson.M{"email": req.Email}).Decode(&u); err != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	now := time.Now().UTC()
	if _, err := a.users.UpdateByID(ctx, u.ID, bson.M{"$set": bson.M{"lastActive": now}}); err != nil {
		a.log.Warn("update lastActive", zap.String("user_id", u.ID.Hex()), zap.Error(err))
	} else {
		u.LastActive = &now
	}

	tok, err := signJWT(a.cfg.JWTSecret, u.ID)
	if err != nil {
		http.Error(w, "jwt error", http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(authResp{Token: tok, User: u})
}

// handleMe returns the current user's profile (without password hash).
func (a *App) handleMe(w http.ResponseWriter, r *http.Request) {
	uid := mustUserID(r)
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var u models.User
	if err := a.users.FindOne(ctx, bson.M{"_id": uid}).Decode(&u); err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	_ = json.NewEncoder(w).Encode(u)
}

const recentActivityLimit = 5

// impactPipeline sums the votes collected by every report uid filed.
func impactPipeline(uid primitive.ObjectID) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"reportedBy": uid}}},
		{{Key: "$group", Value: bson.M{"_id": nil, "totalVotes": bson.M{"$sum": "$votes"}}}},
	}
}

// handleProfileStats summarises the caller's reporting activity.
func (a *App) handleProfileStats(w http.ResponseWriter, r *http.Request) {
	uid := mustUserID(r)
	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	out := profileStatsResp{RecentActivity: []activityItem{}}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		out.TotalReports, err = a.reports.CountDocuments(gctx, bson.M{"reportedBy": uid})
		return err
	})
	g.Go(func() error {
		var err error
		out.ResolvedReports, err = a.reports.CountDocuments(gctx, bson.M{"reportedBy": uid, "status": models.StatusResolved})
		return err
	})
	g.Go(func() error {
		cur, err := a.reports.Aggregate(gctx, impactPipeline(uid))
		if err != nil {
			return err
		}
		defer cur.Close(gctx)
		var rows []struct {
			TotalVotes int64 `bson:"totalVotes"`
		}
		if err := cur.All(gctx, &rows); err != nil {
			return err
		}
		if len(rows) > 0 {
			out.ImpactScore = rows[0].TotalVotes
		}
		return nil
	})
	g.Go(func() error {
		opts := options.Find().
			SetSort(bson.D{{Key: "createdAt", Value: -1}}).
			SetLimit(recentActivityLimit).
			SetProjection(bson.M{"title": 1, "status": 1, "category": 1, "votes": 1, "createdAt": 1})
		cur, err := a.reports.Find(gctx, bson.M{"reportedBy": uid}, opts)
		if err != nil {
			return err
		}
		defer cur.Close(gctx)
		return cur.All(gctx, &out.RecentActivity)
	})
	if err := g.Wait(); err != nil {
		a.log.Error("profile stats", zap.String("user_id", uid.Hex()), zap.Error(err))
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(out)
}

// handleUpdateProfile changes the caller's username and profile image.
func (a *App) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	uid := mustUserID(r)
	var req updateProfileReq
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	set := bson.M{"username": req.Username}
	if req.ProfileImage != nil {
		set["profileImage"] = *req.ProfileImage
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	res := a.users.FindOneAndUpdate(ctx,
		bson.M{"_id": uid},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	)
	var u models.User
	if err := res.Decode(&u); err != nil {
		switch {
		case mongo.IsDuplicateKeyError(err):
			http.Error(w, "username already taken", http.StatusConflict)
		case errors.Is(err, mongo.ErrNoDocuments):
			http.Error(w, "not found", http.StatusNotFound)
		default:
			a.log.Error("update profile", zap.String("user_id", uid.Hex()), zap.Error(err))
			http.Error(w, "db error", http.StatusInternalServerError)
		}
		return
	}
	_ = json.NewEncoder(w).Encode(u)
}

// handleDeleteMe removes the caller's account and withdraws their votes.
// Reports they filed stay public.
func (a *App) handleDeleteMe(w http.ResponseWriter, r *http.Request) {
	uid := mustUserID(r)
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	res, err := a.users.DeleteOne(ctx, bson.M{"_id": uid})
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	if res.DeletedCount == 0 {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	voted, err := a.votes.Distinct(ctx, "report", bson.M{"user": uid})
	if err != nil {
		a.log.Warn("list votes of deleted user", zap.String("user_id", uid.Hex()), zap.Error(err))
	} else if len(voted) > 0 {
		if _, err := a.reports.UpdateMany(ctx,
			bson.M{"_id": bson.M{"$in": voted}, "votes": bson.M{"$gt": 0}},
			bson.M{"$inc": bson.M{"votes": -1}, "$pull": bson.M{"voters": uid}},
		); err != nil {
			a.log.Warn("withdraw votes of deleted user", zap.String("user_id", uid.Hex()), zap.Error(err))
		}
	}
	if _, err := a.votes.DeleteMany(ctx, bson.M{"user": uid}); err != nil {
		a.log.Warn("delete votes of deleted user", zap.String("user_id", uid.Hex()), zap.Error(err))
	}
	_ = json.NewEncoder(w).Encode(bson.M{"ok": true})
}
