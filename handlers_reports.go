package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"communityera/models"

	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// reportListQuery is the parsed query string of GET /api/reports.
type reportListQuery struct {
	Page     int
	Limit    int
	Category models.Category
	Status   models.ReportStatus
	Sort     string // votes | date | severity
}

func parsePage(v url.Values) (page, limit int, err error) {
	page, limit = 1, defaultPageSize
	if s := v.Get("page"); s != "" {
		if page, err = strconv.Atoi(s); err != nil || page < 1 {
			return 0, 0, fmt.Errorf("page must be a positive integer")
		}
	}
	if s := v.Get("limit"); s != "" {
		if limit, err = strconv.Atoi(s); err != nil || limit < 1 {
			return 0, 0, fmt.Errorf("limit must be a positive integer")
		}
		if limit > maxPageSize {
			limit = maxPageSize
		}
	}
	return page, limit, nil
}

func parseListQuery(v url.Values) (reportListQuery, error) {
	var q reportListQuery
	var err error
	if q.Page, q.Limit, err = parsePage(v); err != nil {
		return q, err
	}
	if s := v.Get("category"); s != "" {
		if q.Category, err = models.ParseCategory(s); err != nil {
			return q, err
		}
	}
	if s := v.Get("status"); s != "" {
		if q.Status, err = models.ParseStatus(s); err != nil {
			return q, err
		}
	}
	q.Sort = v.Get("sort")
	switch q.Sort {
	case "":
		q.Sort = "votes"
	case "votes", "date", "severity":
	default:
		return q, fmt.Errorf("sort must be one of [votes date severity]")
	}
	return q, nil
}

// filter selects cluster roots only; children are reached through their root.
func (q reportListQuery) filter() bson.M {
	f := bson.M{"parentReport": nil}
	if q.Category != "" {
		f["category"] = q.Category
	}
	if q.Status != "" {
		f["status"] = q.Status
	}
	return f
}

func (q reportListQuery) pipeline() mongo.Pipeline {
	p := mongo.Pipeline{{{Key: "$match", Value: q.filter()}}}
	switch q.Sort {
	case "votes":
		p = append(p, bson.D{{Key: "$sort", Value: bson.D{{Key: "votes", Value: -1}, {Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}}})
	case "severity":
		p = append(p,
			bson.D{{Key: "$addFields", Value: bson.M{
				"severityRank": bson.M{"$indexOfArray": bson.A{models.SeverityRank, "$severity"}},
			}}},
			bson.D{{Key: "$sort", Value: bson.D{{Key: "severityRank", Value: -1}, {Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}}},
		)
	default:
		p = append(p, bson.D{{Key: "$sort", Value: bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}}})
	}
	p = append(p,
		bson.D{{Key: "$skip", Value: int64((q.Page - 1) * q.Limit)}},
		bson.D{{Key: "$limit", Value: int64(q.Limit)}},
	)
	if q.Sort == "severity" {
		p = append(p, bson.D{{Key: "$project", Value: bson.M{"severityRank": 0}}})
	}
	return p
}

// handleListReports returns one page of cluster roots with their cluster stats.
func (a *App) handleListReports(w http.ResponseWriter, r *http.Request) {
	q, err := parseListQuery(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	var (
		roots []models.Report
		total int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cur, err := a.reports.Aggregate(gctx, q.pipeline())
		if err != nil {
			return err
		}
		defer cur.Close(gctx)
		return cur.All(gctx, &roots)
	})
	g.Go(func() error {
		var err error
		total, err = a.reports.CountDocuments(gctx, q.filter())
		return err
	})
	if err := g.Wait(); err != nil {
		a.log.Error("list reports", zap.Error(err))
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}

	_ = json.NewEncoder(w).Encode(listReportsResp{
		Reports:    a.engine.Enrich(ctx, roots),
		Pagination: newPagination(q.Page, q.Limit, total),
	})
}

// handleGetReport returns a single report as stored, without cluster stats.
func (a *App) handleGetReport(w http.ResponseWriter, r *http.Request) {
	oid, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var rep models.Report
	if err := a.reports.FindOne(ctx, bson.M{"_id": oid}).Decode(&rep); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(rep)
}

// handleListChildren returns the members of a cluster, oldest first.
func (a *App) handleListChildren(w http.ResponseWriter, r *http.Request) {
	oid, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	out, err := a.engine.Children(ctx, oid)
	if err != nil {
		a.log.Error("list children", zap.String("report_id", oid.Hex()), zap.Error(err))
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	if out == nil {
		out = []models.Report{}
	}
	_ = json.NewEncoder(w).Encode(out)
}

// handleCreateReport files a new report; the cluster engine decides whether it
// joins a nearby cluster.
func (a *App) handleCreateReport(w http.ResponseWriter, r *http.Request) {
	uid := mustUserID(r)

	var req createReportReq
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	category, err := models.ParseCategory(req.Category)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	severity, err := models.ParseSeverity(req.Severity)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	coords := models.Coordinates{Lat: *req.Location.Coordinates.Lat, Lng: *req.Location.Coordinates.Lng}
	if err := coords.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	address := req.Location.Address
	if address == "" {
		address = a.geocoder.describeLocation(ctx, coords)
	}
	rep := models.Report{
		Title:       req.Title,
		Description: req.Description,
		Category:    category,
		Severity:    severity,
		Location: models.Location{
			Address:     address,
			Coordinates: coords,
			City:        req.Location.City,
			Area:        req.Location.Area,
		},
		ReportedBy: uid,
		Images:     req.Images,
	}
	if err := a.engine.Create(ctx, &rep); err != nil {
		if errors.Is(err, models.ErrInvalidCategory) || errors.Is(err, models.ErrInvalidCoordinates) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		a.log.Error("create report", zap.String("user_id", uid.Hex()), zap.Error(err))
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, rep)
}

// handleUpdateReport applies a partial update. Cluster membership is fixed at
// creation and never recomputed here.
func (a *App) handleUpdateReport(w http.ResponseWriter, r *http.Request) {
	oid, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var req updateReportReq
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	set, err := req.changes()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(set) == 0 {
		http.Error(w, "nothing to update", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if !a.authorizeReport(ctx, w, r, oid) {
		return
	}

	set["updatedAt"] = time.Now().UTC().Truncate(time.Millisecond)
	res := a.reports.FindOneAndUpdate(
		ctx,
		bson.M{"_id": oid},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	)
	var out models.Report
	if err := res.Decode(&out); err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	_ = json.NewEncoder(w).Encode(out)
}

// changes turns the request into a $set document, parsing enum fields.
func (req *updateReportReq) changes() (bson.M, error) {
	set := bson.M{}
	if req.Title != nil {
		set["title"] = *req.Title
	}
	if req.Description != nil {
		set["description"] = *req.Description
	}
	if req.Category != nil {
		c, err := models.ParseCategory(*req.Category)
		if err != nil {
			return nil, err
		}
		set["category"] = c
	}
	if req.Severity != nil {
		s, err := models.ParseSeverity(*req.Severity)
		if err != nil {
			return nil, err
		}
		set["severity"] = s
	}
	if req.Status != nil {
		s, err := models.ParseStatus(*req.Status)
		if err != nil {
			return nil, err
		}
		set["status"] = s
	}
	if req.Images != nil {
		set["images"] = *req.Images
	}
	if l := req.Location; l != nil {
		if l.Coordinates.Lat != nil || l.Coordinates.Lng != nil {
			if l.Coordinates.Lat == nil || l.Coordinates.Lng == nil {
				return nil, fmt.Errorf("%w: lat and lng must be given together", models.ErrInvalidCoordinates)
			}
			c := models.Coordinates{Lat: *l.Coordinates.Lat, Lng: *l.Coordinates.Lng}
			if err := c.Validate(); err != nil {
				return nil, err
			}
			set["location.coordinates"] = c
		}
		if l.Address != "" {
			set["location.address"] = l.Address
		}
		if l.City != "" {
			set["location.city"] = l.City
		}
		if l.Area != "" {
			set["location.area"] = l.Area
		}
	}
	return set, nil
}

// handleDeleteReport removes one report and its votes. Children of a deleted
// root are left in place.
func (a *App) handleDeleteReport(w http.ResponseWriter, r *http.Request) {
	oid, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if !a.authorizeReport(ctx, w, r, oid) {
		return
	}

	res, err := a.reports.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	if res.DeletedCount == 0 {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if _, err := a.votes.DeleteMany(ctx, bson.M{"report": oid}); err != nil {
		a.log.Warn("delete report votes", zap.String("report_id", oid.Hex()), zap.Error(err))
	}
	_ = json.NewEncoder(w).Encode(bson.M{"ok": true})
}

// authorizeReport loads the report owner and writes 404/403 when the caller
// may not modify it.
func (a *App) authorizeReport(ctx context.Context, w http.ResponseWriter, r *http.Request, oid primitive.ObjectID) bool {
	var owner struct {
		ReportedBy primitive.ObjectID `bson:"reportedBy"`
	}
	err := a.reports.FindOne(ctx, bson.M{"_id": oid}, options.FindOne().SetProjection(bson.M{"reportedBy": 1})).Decode(&owner)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			http.Error(w, "not found", http.StatusNotFound)
			return false
		}
		http.Error(w, "db error", http.StatusInternalServerError)
		return false
	}
	if !a.isOwnerOrAdmin(r, owner.ReportedBy) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return false
	}
	return true
}

// idParam parses a hex ObjectID URL parameter, writing 400 when malformed.
func idParam(w http.ResponseWriter, r *http.Request, name string) (primitive.ObjectID, bool) {
	oid, err := primitive.ObjectIDFromHex(chi.URLParam(r, name))
	if err != nil {
		http.Error(w, "bad id", http.StatusBadRequest)
		return primitive.NilObjectID, false
	}
	return oid, true
}
