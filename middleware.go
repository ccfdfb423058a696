package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"communityera/models"

	"github.com/go-chi/chi/v5/middleware"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

type ctxKey string

const userIDKey ctxKey = "userID"

// authMiddleware extracts and validates Bearer token and injects userID into context.
func (a *App) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authz := r.Header.Get("Authorization")
		if !strings.HasPrefix(authz, "Bearer ") {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		raw := strings.TrimPrefix(authz, "Bearer ")
		uid, err := parseJWT(a.cfg.JWTSecret, raw)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, uid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// adminOnly must run after authMiddleware. The role is read from the store on
// every request so a demotion takes effect immediately.
func (a *App) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role, err := a.roleOf(r.Context(), mustUserID(r))
		if err != nil {
			http.Error(w, "user not found", http.StatusUnauthorized)
			return
		}
		if role != models.RoleAdmin {
			http.Error(w, "admin only", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// lookupRole reads a user's role from the users collection.
func (a *App) lookupRole(ctx context.Context, uid primitive.ObjectID) (models.Role, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var u struct {
		Role models.Role `bson:"role"`
	}
	err := a.users.FindOne(ctx, bson.M{"_id": uid}, options.FindOne().SetProjection(bson.M{"role": 1})).Decode(&u)
	if err != nil {
		return "", err
	}
	return u.Role, nil
}

// isOwnerOrAdmin reports whether the caller may modify a resource owned by owner.
func (a *App) isOwnerOrAdmin(r *http.Request, owner primitive.ObjectID) bool {
	uid := mustUserID(r)
	if uid == owner {
		return true
	}
	role, err := a.roleOf(r.Context(), uid)
	return err == nil && role == models.RoleAdmin
}

// mustUserID returns the userID from context or NilObjectID if missing.
func mustUserID(r *http.Request) primitive.ObjectID {
	val := r.Context().Value(userIDKey)
	if val == nil {
		return primitive.NilObjectID
	}
	return val.(primitive.ObjectID)
}

// requestLogger logs one line per request with the status written.
func (a *App) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		fields := []zap.Field{
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("took", time.Since(start)),
		}
		if status >= http.StatusInternalServerError {
			a.log.Error("request", fields...)
			return
		}
		a.log.Info("request", fields...)
	})
}
