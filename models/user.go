package models

import "time"

// UserStatus is the lifecycle state of a User.
type UserStatus string

const (
	UserRegistered UserStatus = "registered"
	UserVerified   UserStatus = "verified"
	UserSuspended  UserStatus = "suspended"
)

// User is created by registration (out of core scope) and never destroyed
// by the core.
type User struct {
	ID             ID         `gorm:"type:uuid;primary_key"`
	Email          string     `gorm:"unique_index;not null"`
	ExternalWallet string
	Status         UserStatus `gorm:"not null"`
	CreatedAt      time.Time  `gorm:"not null"`
	VerifiedAt     *time.Time
}

func (User) TableName() string { return "users" }
