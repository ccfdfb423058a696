// Package cluster groups nearby reports of the same category into one-level
// parent/child clusters and computes cluster statistics at read time.
package cluster

import (
	"context"
	"fmt"
	"time"

	"communityera/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type Config struct {
	Attach Threshold // creation-time tolerance
	Sweep  Threshold // maintenance tolerance
}

func DefaultConfig() Config {
	return Config{Attach: AttachThreshold, Sweep: SweepThreshold}
}

type Engine struct {
	store  Store
	cfg    Config
	locker Locker
	log    *zap.Logger
	now    func() time.Time
}

// NewEngine builds an engine over store. Invalid thresholds fall back to the
// defaults; a nil locker serialises sweeps within this process only.
func NewEngine(store Store, cfg Config, locker Locker, log *zap.Logger) *Engine {
	if !cfg.Attach.valid() {
		cfg.Attach = AttachThreshold
	}
	if !cfg.Sweep.valid() {
		cfg.Sweep = SweepThreshold
	}
	if locker == nil {
		locker = &LocalLocker{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		store:  store,
		cfg:    cfg,
		locker: locker,
		log:    log.Named("cluster"),
		now:    time.Now,
	}
}

func (e *Engine) Config() Config { return e.cfg }

// Create persists a new report, deciding once whether it joins an existing
// nearby cluster or starts its own. A failed parent lookup aborts the
// creation: the report is never stored with a guessed membership.
//
// Two reports created at the same moment can both miss each other and become
// separate roots; Sweep merges them later.
func (e *Engine) Create(ctx context.Context, r *models.Report) error {
	if _, err := models.ParseCategory(string(r.Category)); err != nil {
		return err
	}
	if err := r.Location.Coordinates.Validate(); err != nil {
		return err
	}

	now := e.now().UTC().Truncate(time.Millisecond)
	r.ID = primitive.NilObjectID
	r.ParentReport = nil
	if r.Status == "" {
		r.Status = models.StatusOpen
	}
	if r.Severity == "" {
		r.Severity = models.SeverityMedium
	}
	if r.Images == nil {
		r.Images = []string{}
	}
	if r.Voters == nil {
		r.Voters = []primitive.ObjectID{}
	}
	r.CreatedAt, r.UpdatedAt = now, now

	if r.Status.Active() {
		parent, ok, err := e.FindMatch(ctx, r.Category, r.Location.Coordinates, primitive.NilObjectID, e.cfg.Attach)
		if err != nil {
			return fmt.Errorf("find cluster parent: %w", err)
		}
		if ok {
			if err := attach(r, parent); err != nil {
				return err
			}
		}
	}

	if err := e.store.Insert(ctx, r); err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	if r.ParentReport != nil {
		e.log.Debug("report joined cluster",
			zap.String("report_id", r.ID.Hex()),
			zap.String("parent_id", r.ParentReport.Hex()),
			zap.String("category", string(r.Category)),
		)
	}
	return nil
}

// Children returns the members of rootID's cluster, oldest first.
func (e *Engine) Children(ctx context.Context, rootID primitive.ObjectID) ([]models.Report, error) {
	out, err := e.store.FindChildren(ctx, []primitive.ObjectID{rootID})
	if err != nil {
		return nil, fmt.Errorf("find children: %w", err)
	}
	return out, nil
}
