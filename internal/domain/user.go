package domain

import (
	"strings"
	"time"
)

// UserType is the marketplace role of an account.
type UserType string

const (
	UserTypeWriter   UserType = "writer"
	UserTypeEmployer UserType = "employer"
)

func (t UserType) Valid() bool {
	return t == UserTypeWriter || t == UserTypeEmployer
}

// User is a marketplace account.
type User struct {
	UserID             string    `json:"userId"`
	Email              string    `json:"email"`
	PasswordHash       string    `json:"hashedPassword"`
	UserType           UserType  `json:"userType"`
	Name               string    `json:"name"`
	Phone              string    `json:"phone,omitempty"`
	Country            string    `json:"country,omitempty"`
	Rating             float64   `json:"rating"`
	CompletedJobs      int       `json:"completedJobs"`
	Status             string    `json:"status"`
	LastPasswordChange time.Time `json:"lastPasswordChange"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// NormalizeEmail lowercases and trims an address for lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// DefaultCountry is recorded on writer snapshots when the profile has none.
const DefaultCountry = "Kenya"

// Snapshot captures the writer fields copied onto a bid at submission.
func (u *User) Snapshot() WriterSnapshot {
	country := u.Country
	if country == "" {
		country = DefaultCountry
	}
	return WriterSnapshot{
		ID:            u.UserID,
		Name:          u.Name,
		Rating:        u.Rating,
		CompletedJobs: u.CompletedJobs,
		Country:       country,
	}
}
