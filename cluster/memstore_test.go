package cluster

import (
	"context"
	"sort"
	"sync"

	"communityera/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// memStore is an in-memory Store used by the engine tests. Failure hooks let
// tests inject errors on specific calls.
type memStore struct {
	mu      sync.RWMutex
	reports map[primitive.ObjectID]models.Report

	findRootsErr    error
	findChildrenErr error
	insertErr       error
	setParentErr    map[primitive.ObjectID]error

	findChildrenCalls int
}

func newMemStore() *memStore {
	return &memStore{
		reports:      map[primitive.ObjectID]models.Report{},
		setParentErr: map[primitive.ObjectID]error{},
	}
}

// put stores r as-is (bypassing the engine), assigning an id when missing.
func (s *memStore) put(r models.Report) models.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID.IsZero() {
		r.ID = primitive.NewObjectID()
	}
	s.reports[r.ID] = r
	return r
}

func (s *memStore) get(id primitive.ObjectID) models.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reports[id]
}

// remove deletes a report without touching its children, as the API's delete does.
func (s *memStore) remove(id primitive.ObjectID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.reports, id)
}

func (s *memStore) sorted(keep func(models.Report) bool) []models.Report {
	var out []models.Report
	for _, r := range s.reports {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return older(&out[i], &out[j]) })
	return out
}

func (s *memStore) FindRoots(_ context.Context, q RootQuery) ([]models.Report, error) {
	if s.findRootsErr != nil {
		return nil, s.findRootsErr
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sorted(func(r models.Report) bool {
		if !r.IsRoot() || !r.Status.Active() {
			return false
		}
		if q.Category != "" && r.Category != q.Category {
			return false
		}
		if !q.Exclude.IsZero() && r.ID == q.Exclude {
			return false
		}
		return q.Within == nil || q.Within.Contains(r.Location.Coordinates)
	}), nil
}

func (s *memStore) FindChildren(_ context.Context, parentIDs []primitive.ObjectID) ([]models.Report, error) {
	s.findChildrenCalls++
	if s.findChildrenErr != nil {
		return nil, s.findChildrenErr
	}
	want := make(map[primitive.ObjectID]bool, len(parentIDs))
	for _, id := range parentIDs {
		want[id] = true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sorted(func(r models.Report) bool {
		return r.ParentReport != nil && want[*r.ParentReport]
	}), nil
}

func (s *memStore) Insert(_ context.Context, r *models.Report) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = primitive.NewObjectID()
	s.reports[r.ID] = *r
	return nil
}

func (s *memStore) SetParent(_ context.Context, childID, parentID primitive.ObjectID) error {
	if err := s.setParentErr[childID]; err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[childID]
	if !ok || !r.IsRoot() {
		return ErrNotRoot
	}
	pid := parentID
	r.ParentReport = &pid
	s.reports[childID] = r
	return nil
}

func (s *memStore) ReparentChildren(_ context.Context, from, to primitive.ObjectID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, r := range s.reports {
		if r.ParentReport != nil && *r.ParentReport == from {
			pid := to
			r.ParentReport = &pid
			s.reports[id] = r
			n++
		}
	}
	return n, nil
}
