package cluster

import (
	"context"

	"communityera/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RootQuery selects active (open or in-progress) root reports.
type RootQuery struct {
	Category models.Category    // empty matches every category
	Exclude  primitive.ObjectID // zero excludes nothing
	Within   *Box               // nil matches everywhere
}

// Store is the persistence the clustering engine needs. Every method that
// returns reports orders them by createdAt ascending, then by id.
type Store interface {
	FindRoots(ctx context.Context, q RootQuery) ([]models.Report, error)
	FindChildren(ctx context.Context, parentIDs []primitive.ObjectID) ([]models.Report, error)
	Insert(ctx context.Context, r *models.Report) error
	// SetParent links childID under parentID only while childID is still a
	// root; otherwise it returns ErrNotRoot.
	SetParent(ctx context.Context, childID, parentID primitive.ObjectID) error
	ReparentChildren(ctx context.Context, from, to primitive.ObjectID) (int64, error)
}
