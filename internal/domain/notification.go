package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// NotificationType enumerates every notification the core emits.
type NotificationType string

const (
	NotificationBid          NotificationType = "bid"
	NotificationBidUpdate    NotificationType = "bid_update"
	NotificationBidReceived  NotificationType = "bid_received"
	NotificationBidAccepted  NotificationType = "bid_accepted"
	NotificationBidConfirmed NotificationType = "bid_accept_confirmed"
	NotificationBidDeclined  NotificationType = "bid_declined"
	NotificationBidCancelled NotificationType = "bid_cancelled"
	NotificationJobUpdate    NotificationType = "job_update"
)

var notificationTitles = map[NotificationType]string{
	NotificationBid:          "New Bid Submitted",
	NotificationBidUpdate:    "Bid Updated",
	NotificationBidReceived:  "New Bid Received",
	NotificationBidAccepted:  "Bid Accepted",
	NotificationBidConfirmed: "Bid Acceptance Confirmed",
	NotificationBidDeclined:  "Bid Declined",
	NotificationBidCancelled: "Bid Cancelled",
	NotificationJobUpdate:    "Job Updated",
}

func (t NotificationType) Valid() bool {
	_, ok := notificationTitles[t]
	return ok
}

// Notification is addressed to UserID. WriterID and EmployerID name both
// parties of the bid or job it concerns; ownership checks match on either.
type Notification struct {
	ID             string           `json:"id"`
	Type           NotificationType `json:"type"`
	UserID         string           `json:"userId"`
	UserType       UserType         `json:"userType"`
	WriterID       string           `json:"writerId,omitempty"`
	EmployerID     string           `json:"employerId,omitempty"`
	CounterpartyID string           `json:"counterpartyId,omitempty"`
	JobID          string           `json:"jobId"`
	BidID          string           `json:"bidId,omitempty"`
	Title          string           `json:"title"`
	Description    string           `json:"description"`
	IsRead         bool             `json:"isRead"`
	ReadAt         *time.Time       `json:"readAt,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
}

// OwnedBy reports whether userID may read or mutate n: the recipient or
// the other party the notification refers to.
func (n *Notification) OwnedBy(userID string) bool {
	return userID != "" && (n.WriterID == userID || n.EmployerID == userID)
}

// NotificationInput describes a notification before it is stored.
type NotificationInput struct {
	Type           NotificationType
	UserID         string
	UserType       UserType
	CounterpartyID string
	JobID          string
	JobTitle       string
	BidID          string
	Amount         decimal.Decimal
	WriterName     string
}

// NewNotification builds the stored record for in.
func NewNotification(in NotificationInput, id string, now time.Time) (*Notification, error) {
	if !in.Type.Valid() {
		return nil, Invalid(fmt.Sprintf("unknown notification type %q", in.Type))
	}
	if in.UserID == "" || !in.UserType.Valid() {
		return nil, Invalid("notification recipient is required")
	}

	n := &Notification{
		ID:             id,
		Type:           in.Type,
		UserID:         in.UserID,
		UserType:       in.UserType,
		CounterpartyID: in.CounterpartyID,
		JobID:          in.JobID,
		BidID:          in.BidID,
		Title:          notificationTitles[in.Type],
		Description:    describe(in),
		CreatedAt:      now,
	}
	// Both parties are recorded; the counterparty fills the other role.
	if in.UserType == UserTypeWriter {
		n.WriterID, n.EmployerID = in.UserID, in.CounterpartyID
	} else {
		n.EmployerID, n.WriterID = in.UserID, in.CounterpartyID
	}
	return n, nil
}

func describe(in NotificationInput) string {
	amount := in.Amount.String()
	switch in.Type {
	case NotificationBid:
		return fmt.Sprintf("You have submitted a bid of %s for job: %s", amount, in.JobTitle)
	case NotificationBidUpdate:
		return fmt.Sprintf("You have updated your bid to %s for job: %s", amount, in.JobTitle)
	case NotificationBidReceived:
		return fmt.Sprintf("%s placed a bid of %s on job: %s", in.WriterName, amount, in.JobTitle)
	case NotificationBidAccepted:
		return fmt.Sprintf("Your bid of %s for job: %s has been accepted!", amount, in.JobTitle)
	case NotificationBidConfirmed:
		return fmt.Sprintf("You have accepted %s's bid of %s for job: %s", in.WriterName, amount, in.JobTitle)
	case NotificationBidDeclined:
		return fmt.Sprintf("Your bid of %s for job: %s has been declined.", amount, in.JobTitle)
	case NotificationBidCancelled:
		return fmt.Sprintf("%s withdrew their bid on job: %s", in.WriterName, in.JobTitle)
	case NotificationJobUpdate:
		return fmt.Sprintf("The employer updated the status of job: %s", in.JobTitle)
	default:
		return fmt.Sprintf("Job %s was updated", in.JobTitle)
	}
}
