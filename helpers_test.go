package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"communityera/cluster"
	"communityera/models"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

// stubStore is a minimal in-memory cluster.Store for handler tests.
type stubStore struct {
	mu      sync.Mutex
	reports []models.Report
}

func (s *stubStore) FindRoots(_ context.Context, q cluster.RootQuery) ([]models.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Report
	for _, r := range s.reports {
		if r.IsRoot() && r.Status.Active() && (q.Category == "" || r.Category == q.Category) && r.ID != q.Exclude {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *stubStore) FindChildren(_ context.Context, ids []primitive.ObjectID) ([]models.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Report
	for _, r := range s.reports {
		for _, id := range ids {
			if r.ParentReport != nil && *r.ParentReport == id {
				out = append(out, r)
			}
		}
	}
	return out, nil
}

func (s *stubStore) Insert(_ context.Context, r *models.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = primitive.NewObjectID()
	s.reports = append(s.reports, *r)
	return nil
}

func (s *stubStore) SetParent(_ context.Context, child, parent primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.reports {
		if s.reports[i].ID == child {
			if !s.reports[i].IsRoot() {
				return cluster.ErrNotRoot
			}
			p := parent
			s.reports[i].ParentReport = &p
			return nil
		}
	}
	return cluster.ErrNotRoot
}

func (s *stubStore) ReparentChildren(_ context.Context, from, to primitive.ObjectID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for i := range s.reports {
		if p := s.reports[i].ParentReport; p != nil && *p == from {
			t := to
			s.reports[i].ParentReport = &t
			n++
		}
	}
	return n, nil
}

// newTestApp builds an App with no database: only handlers that stay inside
// the cluster engine or fail validation may be exercised.
func newTestApp(store cluster.Store, locker cluster.Locker, role models.Role) *App {
	log := zap.NewNop()
	return &App{
		cfg: Config{
			JWTSecret:    testSecret,
			SweepTimeout: time.Minute,
			CORSOrigins:  []string{"*"},
		},
		log:      log,
		engine:   cluster.NewEngine(store, cluster.DefaultConfig(), locker, log),
		validate: newValidator(),
		roleOf: func(context.Context, primitive.ObjectID) (models.Role, error) {
			return role, nil
		},
	}
}

func authHeader(t *testing.T, uid primitive.ObjectID) string {
	t.Helper()
	tok, err := signJWT(testSecret, uid)
	require.NoError(t, err)
	return "Bearer " + tok
}

func do(t *testing.T, h http.Handler, method, path, body, authz string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}
