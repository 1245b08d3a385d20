package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BidStatus is the lifecycle state of a bid.
type BidStatus string

const (
	BidPending   BidStatus = "pending"
	BidAccepted  BidStatus = "accepted"
	BidDeclined  BidStatus = "declined"
	BidCancelled BidStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed.
func (s BidStatus) Terminal() bool {
	return s == BidAccepted || s == BidDeclined || s == BidCancelled
}

// WriterSnapshot is the writer profile copied onto a bid when it is submitted.
type WriterSnapshot struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Rating        float64 `json:"rating"`
	CompletedJobs int     `json:"completedJobs"`
	Country       string  `json:"country"`
}

// Bid is a writer's proposal on a job. There is at most one bid per (JobID, WriterID).
type Bid struct {
	BidID        string          `json:"bidId"`
	JobID        string          `json:"jobId"`
	JobTitle     string          `json:"jobTitle"`
	EmployerID   string          `json:"employerId"`
	WriterID     string          `json:"writerId"`
	Writer       WriterSnapshot  `json:"writer"`
	Amount       decimal.Decimal `json:"bidAmount"`
	DeliveryDays int             `json:"deliveryDays"`
	Notes        string          `json:"notes,omitempty"`
	Status       BidStatus       `json:"status"`
	SubmittedAt  time.Time       `json:"submittedAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
	CreatedAt    time.Time       `json:"createdAt"`
	AcceptedAt   *time.Time      `json:"acceptedAt,omitempty"`
	AcceptedBy   string          `json:"acceptedBy,omitempty"`
	DeclinedAt   *time.Time      `json:"declinedAt,omitempty"`
	DeclinedBy   string          `json:"declinedBy,omitempty"`
	CancelledAt  *time.Time      `json:"cancelledAt,omitempty"`
}
