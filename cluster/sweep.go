package cluster

import (
	"context"
	"errors"
	"fmt"
	"time"

	"communityera/models"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// SweepResult summarises one maintenance run.
type SweepResult struct {
	RunID      string    `json:"runId"`
	Scanned    int       `json:"scanned"`     // roots evaluated as parents
	Merged     int       `json:"mergedCount"` // roots newly attached as children
	Reparented int       `json:"reparented"`  // existing children moved along with a merged root
	Skipped    int       `json:"skipped"`     // candidates that stopped being roots mid-run
	Failed     int       `json:"failed"`      // writes or lookups that failed and were skipped
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

func (r SweepResult) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

// Sweep merges active roots that lie within the sweep threshold of an older
// active root of the same category. Roots are visited oldest first and a root
// absorbed during the run is never visited as a parent, so every cluster stays
// one level deep. When an absorbed root already had children they move to the
// new parent with it.
//
// A failed write is logged and counted; the run carries on. Cancellation is
// honoured between roots and returns the partial result with ctx.Err().
// Running it again converges: with no new reports the second run merges 0.
func (e *Engine) Sweep(ctx context.Context) (SweepResult, error) {
	release, err := e.locker.Acquire(ctx)
	if err != nil {
		return SweepResult{}, err
	}
	defer release()

	res := SweepResult{RunID: uuid.NewString(), StartedAt: e.now().UTC()}
	log := e.log.With(zap.String("run_id", res.RunID))
	log.Info("cluster sweep started",
		zap.Float64("eps_lat", e.cfg.Sweep.Lat),
		zap.Float64("eps_lng", e.cfg.Sweep.Lng),
	)

	roots, err := e.store.FindRoots(ctx, RootQuery{})
	if err != nil {
		res.FinishedAt = e.now().UTC()
		return res, fmt.Errorf("load roots: %w", err)
	}

	absorbed := make(map[primitive.ObjectID]struct{})
	for _, p := range roots {
		if err := ctx.Err(); err != nil {
			res.FinishedAt = e.now().UTC()
			log.Warn("cluster sweep interrupted", zap.Int("merged", res.Merged), zap.Error(err))
			return res, err
		}
		if _, gone := absorbed[p.ID]; gone {
			continue
		}
		parent, err := NewRoot(p)
		if err != nil {
			continue
		}
		res.Scanned++
		e.absorbNear(ctx, log, parent, absorbed, &res)
	}

	res.FinishedAt = e.now().UTC()
	log.Info("cluster sweep finished",
		zap.Int("scanned", res.Scanned),
		zap.Int("merged", res.Merged),
		zap.Int("reparented", res.Reparented),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed),
		zap.Duration("took", res.Duration()),
	)
	return res, nil
}

func (e *Engine) absorbNear(ctx context.Context, log *zap.Logger, parent Root, absorbed map[primitive.ObjectID]struct{}, res *SweepResult) {
	p := parent.Report()
	box := e.cfg.Sweep.Box(p.Location.Coordinates)
	candidates, err := e.store.FindRoots(ctx, RootQuery{Category: p.Category, Exclude: p.ID, Within: &box})
	if err != nil {
		res.Failed++
		log.Warn("cluster sweep candidate lookup failed", zap.String("parent_id", p.ID.Hex()), zap.Error(err))
		return
	}

	for _, c := range candidates {
		if _, gone := absorbed[c.ID]; gone || !eligibleChild(c, p, e.cfg.Sweep) {
			continue
		}

		// Move grandchildren first: if the second write fails the cluster is
		// still one level deep and the next run picks c up again.
		moved, err := e.store.ReparentChildren(ctx, c.ID, p.ID)
		if err != nil {
			res.Failed++
			log.Error("cluster sweep failed to move children",
				zap.String("from_id", c.ID.Hex()),
				zap.String("to_id", p.ID.Hex()),
				zap.Error(err),
			)
			continue
		}
		res.Reparented += int(moved)

		err = e.store.SetParent(ctx, c.ID, p.ID)
		switch {
		case errors.Is(err, ErrNotRoot):
			absorbed[c.ID] = struct{}{}
			res.Skipped++
		case err != nil:
			res.Failed++
			log.Error("cluster sweep failed to attach report",
				zap.String("report_id", c.ID.Hex()),
				zap.String("parent_id", p.ID.Hex()),
				zap.Error(err),
			)
		default:
			absorbed[c.ID] = struct{}{}
			res.Merged++
		}
	}
}

// eligibleChild keeps the oldest root as the anchor: a candidate older than p
// is never attached under it.
func eligibleChild(c, p models.Report, th Threshold) bool {
	return c.ID != p.ID &&
		older(&p, &c) &&
		c.IsRoot() &&
		c.Status.Active() &&
		c.Category == p.Category &&
		th.Near(c.Location.Coordinates, p.Location.Coordinates)
}
