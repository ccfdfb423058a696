package main

import (
	"strings"
	"time"

	"communityera/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Request/response DTOs. Keep them minimal and explicit.

type registerReq struct {
	Username string              `json:"username" validate:"required,min=3,max=50"`
	Email    string              `json:"email"    validate:"required,email"`
	Password string              `json:"password" validate:"required,min=6,max=72"` // bcrypt limit
	Location models.UserLocation `json:"location"`
}

func (r *registerReq) normalize() {
	r.Username = strings.TrimSpace(r.Username)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Location.City = strings.TrimSpace(r.Location.City)
	r.Location.Area = strings.TrimSpace(r.Location.Area)
}

type loginReq struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (r *loginReq) normalize() { r.Email = strings.ToLower(strings.TrimSpace(r.Email)) }

// updateProfileReq replaces the username; profileImage is left alone when absent.
type updateProfileReq struct {
	Username     string  `json:"username"               validate:"required,min=3,max=50"`
	ProfileImage *string `json:"profileImage,omitempty" validate:"omitempty,max=2048"`
}

func (r *updateProfileReq) normalize() {
	r.Username = strings.TrimSpace(r.Username)
	if r.ProfileImage != nil {
		img := strings.TrimSpace(*r.ProfileImage)
		r.ProfileImage = &img
	}
}

// activityItem is one line of a user's recent reports.
type activityItem struct {
	ID        primitive.ObjectID  `bson:"_id"       json:"id"`
	Title     string              `bson:"title"     json:"title"`
	Status    models.ReportStatus `bson:"status"    json:"status"`
	Category  models.Category     `bson:"category"  json:"category"`
	Votes     int                 `bson:"votes"     json:"votes"`
	CreatedAt time.Time           `bson:"createdAt" json:"createdAt"`
}

type profileStatsResp struct {
	TotalReports    int64          `json:"totalReports"`
	ResolvedReports int64          `json:"resolvedReports"`
	ImpactScore     int64          `json:"impactScore"`
	RecentActivity  []activityItem `json:"recentActivity"`
}

type authResp struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

type coordinatesReq struct {
	Lat *float64 `json:"lat" validate:"required,gte=-90,lte=90"`
	Lng *float64 `json:"lng" validate:"required,gte=-180,lte=180"`
}

type locationReq struct {
	Address     string         `json:"address,omitempty" validate:"max=300"`
	Coordinates coordinatesReq `json:"coordinates"`
	City        string         `json:"city,omitempty"    validate:"max=100"`
	Area        string         `json:"area,omitempty"    validate:"max=100"`
}

type createReportReq struct {
	Title       string      `json:"title"              validate:"required,min=5,max=200"`
	Description string      `json:"description"        validate:"required,min=10,max=5000"`
	Category    string      `json:"category"           validate:"required,oneof=road water electricity sanitation other"`
	Severity    string      `json:"severity,omitempty" validate:"omitempty,oneof=low medium high critical"`
	Location    locationReq `json:"location"`
	Images      []string    `json:"images,omitempty"   validate:"max=10,dive,required,max=2048"`
}

func (r *createReportReq) normalize() {
	r.Title = strings.TrimSpace(r.Title)
	r.Description = strings.TrimSpace(r.Description)
	r.Location.normalize()
}

func (l *locationReq) normalize() {
	l.Address = strings.TrimSpace(l.Address)
	l.City = strings.TrimSpace(l.City)
	l.Area = strings.TrimSpace(l.Area)
}

// updateReportReq is a partial update; nil fields are left unchanged.
// Edits never re-cluster the report.
type updateReportReq struct {
	Title       *string      `json:"title,omitempty"       validate:"omitempty,min=5,max=200"`
	Description *string      `json:"description,omitempty" validate:"omitempty,min=10,max=5000"`
	Category    *string      `json:"category,omitempty"    validate:"omitempty,oneof=road water electricity sanitation other"`
	Severity    *string      `json:"severity,omitempty"    validate:"omitempty,oneof=low medium high critical"`
	Status      *string      `json:"status,omitempty"      validate:"omitempty,oneof=open in-progress resolved closed"`
	Location    *locationReq `json:"location,omitempty"`
	Images      *[]string    `json:"images,omitempty"      validate:"omitempty,max=10,dive,required,max=2048"`
}

func (r *updateReportReq) normalize() {
	if r.Title != nil {
		t := strings.TrimSpace(*r.Title)
		r.Title = &t
	}
	if r.Description != nil {
		d := strings.TrimSpace(*r.Description)
		r.Description = &d
	}
	if r.Location != nil {
		r.Location.normalize()
	}
}

type voteReq struct {
	ReportID string `json:"reportId" validate:"required,mongodb"`
}

type roleReq struct {
	Role models.Role `json:"role" validate:"required,oneof=user admin"`
}

type pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int64 `json:"pages"`
}

func newPagination(page, limit int, total int64) pagination {
	pages := total / int64(limit)
	if total%int64(limit) != 0 {
		pages++
	}
	return pagination{Page: page, Limit: limit, Total: total, Pages: pages}
}

type listReportsResp struct {
	Reports    []models.ClusterView `json:"reports"`
	Pagination pagination           `json:"pagination"`
}

type listUsersResp struct {
	Users      []models.User `json:"users"`
	Pagination pagination    `json:"pagination"`
}
