package cluster

import (
	"math"

	"communityera/models"
)

// Threshold is an independent per-axis proximity tolerance in decimal degrees.
// Two points are near when both |Δlat| < Lat and |Δlng| < Lng; this is a
// bounding box, not a great-circle distance.
type Threshold struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

var (
	// AttachThreshold (~100m at mid-latitudes) decides membership when a report is created.
	AttachThreshold = Threshold{Lat: 0.001, Lng: 0.001}
	// SweepThreshold (~200m) is the coarser tolerance of the maintenance sweep.
	SweepThreshold = Threshold{Lat: 0.002, Lng: 0.002}
)

// boxPad widens store range queries so float rounding at the edge never hides a
// candidate; Near is always re-applied to whatever the store returns.
const boxPad = 1e-9

// Near reports whether a and b fall inside the threshold box of each other.
func (t Threshold) Near(a, b models.Coordinates) bool {
	return math.Abs(a.Lat-b.Lat) < t.Lat && math.Abs(a.Lng-b.Lng) < t.Lng
}

// Box returns the inclusive coordinate range a store should scan for points near c.
func (t Threshold) Box(c models.Coordinates) Box {
	return Box{
		MinLat: c.Lat - t.Lat - boxPad,
		MaxLat: c.Lat + t.Lat + boxPad,
		MinLng: c.Lng - t.Lng - boxPad,
		MaxLng: c.Lng + t.Lng + boxPad,
	}
}

func (t Threshold) valid() bool {
	return t.Lat > 0 && t.Lng > 0 && !math.IsInf(t.Lat, 0) && !math.IsInf(t.Lng, 0)
}

// Box is an inclusive latitude/longitude range.
type Box struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// Contains reports whether c lies inside b, edges included.
func (b Box) Contains(c models.Coordinates) bool {
	return c.Lat >= b.MinLat && c.Lat <= b.MaxLat && c.Lng >= b.MinLng && c.Lng <= b.MaxLng
}
