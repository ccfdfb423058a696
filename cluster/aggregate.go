package cluster

import (
	"context"

	"communityera/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Enrich attaches cluster statistics to a page of root reports using one
// batched children lookup. Output order matches input order. If the lookup
// fails every report is returned as a cluster of one. Nothing is written.
//
// Children attached between the caller's root query and this lookup may or
// may not be counted.
func (e *Engine) Enrich(ctx context.Context, roots []models.Report) []models.ClusterView {
	out := make([]models.ClusterView, len(roots))
	pos := make(map[primitive.ObjectID][]int, len(roots))
	ids := make([]primitive.ObjectID, 0, len(roots))
	for i, r := range roots {
		out[i] = models.ClusterView{
			Report:       r,
			ClusterCount: 1,
			TotalVotes:   r.Votes,
			AllImages:    append([]string{}, r.Images...),
		}
		if r.ID.IsZero() {
			continue
		}
		if _, seen := pos[r.ID]; !seen {
			ids = append(ids, r.ID)
		}
		pos[r.ID] = append(pos[r.ID], i)
	}
	if len(ids) == 0 {
		return out
	}

	children, err := e.store.FindChildren(ctx, ids)
	if err != nil {
		e.log.Warn("cluster enrichment degraded", zap.Int("roots", len(ids)), zap.Error(err))
		return out
	}
	for _, c := range children {
		if c.ParentReport == nil {
			continue
		}
		for _, i := range pos[*c.ParentReport] {
			v := &out[i]
			v.ClusterCount++
			v.TotalVotes += c.Votes
			v.AllImages = append(v.AllImages, c.Images...)
		}
	}
	return out
}
