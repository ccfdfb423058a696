package cluster

import (
	"context"
	"errors"

	"communityera/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrNotRoot is returned when a report that already has a parent is used
// where a cluster root is required.
var ErrNotRoot = errors.New("cluster: report is not a root")

// Root is a report known to anchor its own cluster. It can only be built from
// a report with no parent, so a child can never be handed out as a parent.
type Root struct {
	report models.Report
}

// NewRoot wraps r, rejecting reports that are already children or were never stored.
func NewRoot(r models.Report) (Root, error) {
	if !r.IsRoot() {
		return Root{}, ErrNotRoot
	}
	if r.ID.IsZero() {
		return Root{}, errors.New("cluster: root has no id")
	}
	return Root{report: r}, nil
}

func (r Root) ID() primitive.ObjectID { return r.report.ID }

func (r Root) Report() models.Report { return r.report }

// Match picks the parent for a report of the given category at the given
// coordinates out of candidates. Only active roots of the same category other
// than exclude qualify. When several qualify the oldest wins, ties broken by id.
// A zero exclude excludes nothing.
func Match(candidates []models.Report, category models.Category, at models.Coordinates, exclude primitive.ObjectID, th Threshold) (Root, bool) {
	var best *models.Report
	for i := range candidates {
		c := &candidates[i]
		if !c.IsRoot() || !c.Status.Active() || c.Category != category || c.ID.IsZero() {
			continue
		}
		if !exclude.IsZero() && c.ID == exclude {
			continue
		}
		if !th.Near(c.Location.Coordinates, at) {
			continue
		}
		if best == nil || older(c, best) {
			best = c
		}
	}
	if best == nil {
		return Root{}, false
	}
	return Root{report: *best}, true
}

func older(a, b *models.Report) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID.Hex() < b.ID.Hex()
}

// FindMatch looks up the root a report at the given coordinates should join.
// The boolean is false when nothing is near enough; that is not an error.
func (e *Engine) FindMatch(ctx context.Context, category models.Category, at models.Coordinates, exclude primitive.ObjectID, th Threshold) (Root, bool, error) {
	box := th.Box(at)
	candidates, err := e.store.FindRoots(ctx, RootQuery{
		Category: category,
		Exclude:  exclude,
		Within:   &box,
	})
	if err != nil {
		return Root{}, false, err
	}
	root, ok := Match(candidates, category, at, exclude, th)
	return root, ok, nil
}

// attach makes child a member of parent's cluster.
func attach(child *models.Report, parent Root) error {
	if !parent.report.IsRoot() || parent.ID().IsZero() {
		return ErrNotRoot
	}
	if child.ID == parent.ID() {
		return errors.New("cluster: report cannot be its own parent")
	}
	id := parent.ID()
	child.ParentReport = &id
	return nil
}
