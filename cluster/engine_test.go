package cluster

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"communityera/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// stepClock advances one second on every read so creation order is strict.
type stepClock struct{ t time.Time }

func (c *stepClock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestEngine(t *testing.T) (*Engine, *memStore) {
	t.Helper()
	store := newMemStore()
	e := NewEngine(store, DefaultConfig(), nil, zap.NewNop())
	clock := &stepClock{t: t0}
	e.now = clock.Now
	return e, store
}

func newReport(cat models.Category, lat, lng float64) *models.Report {
	return &models.Report{
		Title:       "Broken streetlight",
		Description: "The streetlight has been out for a week",
		Category:    cat,
		Location:    models.Location{Coordinates: models.Coordinates{Lat: lat, Lng: lng}},
		ReportedBy:  primitive.NewObjectID(),
	}
}

func create(t *testing.T, e *Engine, r *models.Report) *models.Report {
	t.Helper()
	require.NoError(t, e.Create(context.Background(), r))
	return r
}

func TestCreate_NoNeighbourBecomesRoot(t *testing.T) {
	e, store := newTestEngine(t)

	a := create(t, e, newReport(models.CategoryRoad, 10, 20))

	assert.False(t, a.ID.IsZero())
	assert.Nil(t, a.ParentReport)
	assert.Equal(t, models.StatusOpen, a.Status)
	assert.Equal(t, models.SeverityMedium, a.Severity)
	assert.NotNil(t, a.Images)
	assert.Nil(t, store.get(a.ID).ParentReport)
}

func TestCreate_AttachesToNearbyRoot(t *testing.T) {
	e, store := newTestEngine(t)
	r := create(t, e, newReport(models.CategoryRoad, 10.0000, 20.0000))

	b := create(t, e, newReport(models.CategoryRoad, 10.0005, 20.0005))

	require.NotNil(t, b.ParentReport)
	assert.Equal(t, r.ID, *b.ParentReport)
	stored := store.get(b.ID)
	require.NotNil(t, stored.ParentReport)
	assert.Equal(t, r.ID, *stored.ParentReport)
	assert.Nil(t, store.get(r.ID).ParentReport, "parent is not modified")
}

func TestCreate_CategoryIsolation(t *testing.T) {
	e, _ := newTestEngine(t)
	create(t, e, newReport(models.CategoryRoad, 10.0000, 20.0000))

	b := create(t, e, newReport(models.CategoryWater, 10.0005, 20.0005))

	assert.Nil(t, b.ParentReport)
}

func TestCreate_ResolvedRootIsNeverMatched(t *testing.T) {
	e, store := newTestEngine(t)
	r := rootAt(models.CategoryRoad, 10, 20, t0)
	r.Status = models.StatusResolved
	store.put(r)

	b := create(t, e, newReport(models.CategoryRoad, 10, 20))

	assert.Nil(t, b.ParentReport)
}

func TestCreate_OutsideTightThresholdStaysRoot(t *testing.T) {
	e, _ := newTestEngine(t)
	create(t, e, newReport(models.CategoryRoad, 10.0000, 20.0000))

	b := create(t, e, newReport(models.CategoryRoad, 10.0015, 20.0000))

	assert.Nil(t, b.ParentReport)
}

func TestCreate_ThirdReportJoinsOriginalRoot(t *testing.T) {
	e, _ := newTestEngine(t)
	r := create(t, e, newReport(models.CategoryRoad, 10.0000, 20.0000))
	b := create(t, e, newReport(models.CategoryRoad, 10.0005, 20.0005))
	require.NotNil(t, b.ParentReport)

	c := create(t, e, newReport(models.CategoryRoad, 10.0005, 20.0005))

	require.NotNil(t, c.ParentReport)
	assert.Equal(t, r.ID, *c.ParentReport)
	assert.NotEqual(t, b.ID, *c.ParentReport)
}

func TestCreate_IgnoresCallerSuppliedParentAndID(t *testing.T) {
	e, _ := newTestEngine(t)
	bogus := primitive.NewObjectID()
	in := newReport(models.CategoryOther, -33.86, 151.2)
	in.ID = bogus
	in.ParentReport = &bogus

	out := create(t, e, in)

	assert.NotEqual(t, bogus, out.ID)
	assert.Nil(t, out.ParentReport)
}

func TestCreate_NonActiveStatusDoesNotJoin(t *testing.T) {
	e, _ := newTestEngine(t)
	create(t, e, newReport(models.CategoryRoad, 10, 20))

	in := newReport(models.CategoryRoad, 10, 20)
	in.Status = models.StatusClosed
	out := create(t, e, in)

	assert.Nil(t, out.ParentReport)
}

func TestCreate_MatcherFailureAbortsCreation(t *testing.T) {
	e, store := newTestEngine(t)
	store.findRootsErr = errors.New("connection reset")

	err := e.Create(context.Background(), newReport(models.CategoryRoad, 10, 20))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "find cluster parent")
	assert.Empty(t, store.reports)
}

func TestCreate_RejectsInvalidInput(t *testing.T) {
	e, store := newTestEngine(t)
	store.findRootsErr = errors.New("must not be called")

	err := e.Create(context.Background(), newReport(models.CategoryRoad, 91, 20))
	assert.ErrorIs(t, err, models.ErrInvalidCoordinates)

	err = e.Create(context.Background(), newReport(models.CategoryRoad, math.NaN(), 20))
	assert.ErrorIs(t, err, models.ErrInvalidCoordinates)

	err = e.Create(context.Background(), newReport("bridge", 10, 20))
	assert.ErrorIs(t, err, models.ErrInvalidCategory)
}

func TestCreate_InsertFailure(t *testing.T) {
	e, store := newTestEngine(t)
	store.insertErr = errors.New("disk full")

	err := e.Create(context.Background(), newReport(models.CategoryRoad, 10, 20))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert report")
}

func TestFindMatch_ExcludesSelf(t *testing.T) {
	e, store := newTestEngine(t)
	r := store.put(rootAt(models.CategoryRoad, 10, 20, t0))

	_, ok, err := e.FindMatch(context.Background(), r.Category, r.Location.Coordinates, r.ID, AttachThreshold)

	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewEngine_InvalidThresholdsFallBack(t *testing.T) {
	e := NewEngine(newMemStore(), Config{Attach: Threshold{Lat: -1, Lng: 0.001}}, nil, nil)

	assert.Equal(t, AttachThreshold, e.Config().Attach)
	assert.Equal(t, SweepThreshold, e.Config().Sweep)
}

func TestEndToEnd_CreateAndList(t *testing.T) {
	e, store := newTestEngine(t)

	x := newReport(models.CategoryRoad, 12.345600, 77.654300)
	x.Images = []string{"x.jpg"}
	x = create(t, e, x)
	require.Nil(t, x.ParentReport)

	y := newReport(models.CategoryRoad, 12.345650, 77.654320)
	y.Images = []string{"y1.jpg", "y2.jpg"}
	y = create(t, e, y)
	require.NotNil(t, y.ParentReport)
	assert.Equal(t, x.ID, *y.ParentReport)

	// votes come in after creation
	xs, ys := store.get(x.ID), store.get(y.ID)
	xs.Votes, ys.Votes = 4, 2
	store.put(xs)
	store.put(ys)

	roots, err := store.FindRoots(context.Background(), RootQuery{})
	require.NoError(t, err)
	require.Len(t, roots, 1)

	views := e.Enrich(context.Background(), roots)
	require.Len(t, views, 1)
	assert.Equal(t, x.ID, views[0].ID)
	assert.Equal(t, 2, views[0].ClusterCount)
	assert.Equal(t, 6, views[0].TotalVotes)
	assert.Equal(t, []string{"x.jpg", "y1.jpg", "y2.jpg"}, views[0].AllImages)
}

func TestChildren(t *testing.T) {
	e, _ := newTestEngine(t)
	r := create(t, e, newReport(models.CategorySanitation, 1, 1))
	a := create(t, e, newReport(models.CategorySanitation, 1.0001, 1))
	b := create(t, e, newReport(models.CategorySanitation, 1, 1.0001))

	kids, err := e.Children(context.Background(), r.ID)

	require.NoError(t, err)
	require.Len(t, kids, 2)
	assert.Equal(t, a.ID, kids[0].ID)
	assert.Equal(t, b.ID, kids[1].ID)
}
