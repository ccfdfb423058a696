package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// UserLocation is where a citizen lives; used for profile display only.
type UserLocation struct {
	City string `bson:"city,omitempty" json:"city,omitempty"`
	Area string `bson:"area,omitempty" json:"area,omitempty"`
}

// User is an account record. PasswordHash never leaves the server.
type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"          json:"id"`
	Username     string             `bson:"username"               json:"username"`
	Email        string             `bson:"email"                  json:"email"`
	PasswordHash string             `bson:"passwordHash"           json:"-"`
	Role         Role               `bson:"role"                   json:"role"`
	Location     UserLocation       `bson:"location"               json:"location"`
	ProfileImage string             `bson:"profileImage,omitempty" json:"profileImage,omitempty"`
	CreatedAt    time.Time          `bson:"createdAt"              json:"createdAt"`
	LastActive   *time.Time         `bson:"lastActive,omitempty"   json:"lastActive,omitempty"`
}

// Vote records that a user has voted on a report; (report, user) is unique.
type Vote struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Report    primitive.ObjectID `bson:"report"        json:"report"`
	User      primitive.ObjectID `bson:"user"          json:"user"`
	CreatedAt time.Time          `bson:"createdAt"     json:"createdAt"`
}
