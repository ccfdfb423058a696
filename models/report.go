package models

import (
	"errors"
	"fmt"
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Category is the closed set of problem categories a report can be filed under.
type Category string

const (
	CategoryRoad        Category = "road"
	CategoryWater       Category = "water"
	CategoryElectricity Category = "electricity"
	CategorySanitation  Category = "sanitation"
	CategoryOther       Category = "other"
)

// Categories lists every valid category in display order.
var Categories = []Category{CategoryRoad, CategoryWater, CategoryElectricity, CategorySanitation, CategoryOther}

// ParseCategory converts raw input into a Category or returns ErrInvalidCategory.
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCategory, s)
}

// ReportStatus tracks a report through its municipal lifecycle.
type ReportStatus string

const (
	StatusOpen       ReportStatus = "open"
	StatusInProgress ReportStatus = "in-progress"
	StatusResolved   ReportStatus = "resolved"
	StatusClosed     ReportStatus = "closed"
)

// ActiveStatuses are the statuses that take part in clustering.
var ActiveStatuses = []ReportStatus{StatusOpen, StatusInProgress}

// ParseStatus converts raw input into a ReportStatus or returns ErrInvalidStatus.
func ParseStatus(s string) (ReportStatus, error) {
	switch ReportStatus(s) {
	case StatusOpen, StatusInProgress, StatusResolved, StatusClosed:
		return ReportStatus(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// Active reports whether reports in this status can join or anchor a cluster.
// Resolved and closed reports are frozen.
func (s ReportStatus) Active() bool {
	return s == StatusOpen || s == StatusInProgress
}

// Severity is the reporter's estimate of how urgent the problem is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// SeverityRank orders severities from least to most urgent.
var SeverityRank = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// ParseSeverity converts raw input into a Severity; empty input yields medium.
func ParseSeverity(s string) (Severity, error) {
	if s == "" {
		return SeverityMedium, nil
	}
	for _, v := range SeverityRank {
		if string(v) == s {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSeverity, s)
}

var (
	ErrInvalidCategory    = errors.New("invalid category")
	ErrInvalidStatus      = errors.New("invalid status")
	ErrInvalidSeverity    = errors.New("invalid severity")
	ErrInvalidCoordinates = errors.New("invalid coordinates")
)

// Coordinates is a WGS84 point in decimal degrees.
type Coordinates struct {
	Lat float64 `bson:"lat" json:"lat"`
	Lng float64 `bson:"lng" json:"lng"`
}

// Validate rejects non-finite or out-of-range coordinates.
func (c Coordinates) Validate() error {
	if math.IsNaN(c.Lat) || math.IsInf(c.Lat, 0) || math.IsNaN(c.Lng) || math.IsInf(c.Lng, 0) {
		return fmt.Errorf("%w: non-finite value", ErrInvalidCoordinates)
	}
	if c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("%w: lat %v out of range", ErrInvalidCoordinates, c.Lat)
	}
	if c.Lng < -180 || c.Lng > 180 {
		return fmt.Errorf("%w: lng %v out of range", ErrInvalidCoordinates, c.Lng)
	}
	return nil
}

type Location struct {
	Address     string      `bson:"address,omitempty" json:"address,omitempty"`
	Coordinates Coordinates `bson:"coordinates"       json:"coordinates"`
	City        string      `bson:"city,omitempty"    json:"city,omitempty"`
	Area        string      `bson:"area,omitempty"    json:"area,omitempty"`
}

// Report is a citizen-filed problem report.
//
// A report with a nil ParentReport is a root of its cluster; a non-nil
// ParentReport makes it a child. Clusters are exactly one level deep.
type Report struct {
	ID           primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	Title        string               `bson:"title"         json:"title"`
	Description  string               `bson:"description"   json:"description"`
	Category     Category             `bson:"category"      json:"category"`
	Severity     Severity             `bson:"severity"      json:"severity"`
	Location     Location             `bson:"location"      json:"location"`
	ReportedBy   primitive.ObjectID   `bson:"reportedBy"    json:"reportedBy"`
	Votes        int                  `bson:"votes"         json:"votes"`
	Voters       []primitive.ObjectID `bson:"voters"        json:"voters"`
	Status       ReportStatus         `bson:"status"        json:"status"`
	Images       []string             `bson:"images"        json:"images"`
	ParentReport *primitive.ObjectID  `bson:"parentReport"  json:"parentReport"` // stored as explicit null for roots
	CreatedAt    time.Time            `bson:"createdAt"     json:"createdAt"`
	UpdatedAt    time.Time            `bson:"updatedAt"     json:"updatedAt"`
}

// IsRoot reports whether r anchors its own cluster.
func (r *Report) IsRoot() bool { return r.ParentReport == nil }

// ClusterView is a root report enriched with read-time cluster statistics.
// Never stored.
type ClusterView struct {
	Report
	ClusterCount int      `json:"clusterCount"`
	TotalVotes   int      `json:"totalVotes"`
	AllImages    []string `json:"allImages"`
}
