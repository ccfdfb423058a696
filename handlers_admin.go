package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"communityera/cluster"
	"communityera/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// userFilter matches username or email case-insensitively; the search term is
// treated as a literal.
func userFilter(search string) bson.M {
	search = strings.TrimSpace(search)
	if search == "" {
		return bson.M{}
	}
	re := primitive.Regex{Pattern: regexp.QuoteMeta(search), Options: "i"}
	return bson.M{"$or": bson.A{
		bson.M{"username": re},
		bson.M{"email": re},
	}}
}

// handleListUsers pages through accounts, most recently active first.
func (a *App) handleListUsers(w http.ResponseWriter, r *http.Request) {
	page, limit, err := parsePage(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	filter := userFilter(r.URL.Query().Get("search"))

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	var (
		users []models.User
		total int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		opts := options.Find().
			SetSort(bson.D{{Key: "lastActive", Value: -1}, {Key: "createdAt", Value: -1}}).
			SetSkip(int64((page - 1) * limit)).
			SetLimit(int64(limit)).
			SetProjection(bson.M{"passwordHash": 0})
		cur, err := a.users.Find(gctx, filter, opts)
		if err != nil {
			return err
		}
		defer cur.Close(gctx)
		return cur.All(gctx, &users)
	})
	g.Go(func() error {
		var err error
		total, err = a.users.CountDocuments(gctx, filter)
		return err
	})
	if err := g.Wait(); err != nil {
		a.log.Error("list users", zap.Error(err))
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	if users == nil {
		users = []models.User{}
	}
	_ = json.NewEncoder(w).Encode(listUsersResp{Users: users, Pagination: newPagination(page, limit, total)})
}

// handleSetUserRole promotes or demotes a user.
func (a *App) handleSetUserRole(w http.ResponseWriter, r *http.Request) {
	oid, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var req roleReq
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	a.setRole(w, r, oid, req.Role)
}

// handleMakeAdmin is the older promotion endpoint kept for existing clients.
func (a *App) handleMakeAdmin(w http.ResponseWriter, r *http.Request) {
	oid, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	a.setRole(w, r, oid, models.RoleAdmin)
}

func (a *App) setRole(w http.ResponseWriter, r *http.Request, oid primitive.ObjectID, role models.Role) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	res := a.users.FindOneAndUpdate(ctx,
		bson.M{"_id": oid},
		bson.M{"$set": bson.M{"role": role}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	)
	var u models.User
	if err := res.Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	a.log.Info("user role changed",
		zap.String("user_id", oid.Hex()),
		zap.String("role", string(role)),
		zap.String("by", mustUserID(r).Hex()),
	)
	_ = json.NewEncoder(w).Encode(u)
}

// handleDeleteUser removes an account. Admins cannot delete themselves.
func (a *App) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	oid, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	if oid == mustUserID(r) {
		http.Error(w, "cannot delete yourself", http.StatusBadRequest)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	res, err := a.users.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	if res.DeletedCount == 0 {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	_ = json.NewEncoder(w).Encode(bson.M{"ok": true})
}

// handleClusterSweep runs the retroactive clustering pass synchronously.
func (a *App) handleClusterSweep(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), a.cfg.SweepTimeout)
	defer cancel()

	res, err := a.engine.Sweep(ctx)
	if err != nil {
		if errors.Is(err, cluster.ErrSweepRunning) {
			http.Error(w, "cluster sweep already running", http.StatusConflict)
			return
		}
		if errors.Is(err, context.DeadlineExceeded) {
			a.log.Warn("cluster sweep timed out", zap.String("run_id", res.RunID), zap.Int("merged", res.Merged))
			http.Error(w, "cluster sweep timed out", http.StatusGatewayTimeout)
			return
		}
		a.log.Error("cluster sweep", zap.String("run_id", res.RunID), zap.Error(err))
		http.Error(w, "cluster sweep failed", http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(res)
}
