package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// JobFlags are the status flags of a job. They inform each other but are
// not mutually exclusive.
type JobFlags struct {
	IsPublic          bool `json:"isPublic"`
	IsPrivate         bool `json:"isPrivate"`
	IsSubmitted       bool `json:"isSubmitted"`
	IsComplete        bool `json:"isComplete"`
	IsCompleteAndPaid bool `json:"isCompleteAndPaid"`
	IsCancelled       bool `json:"isCancelled"`
	IsOverdue         bool `json:"isOverdue"`
	IsInProgress      bool `json:"isInProgress"`
	IsInRevision      bool `json:"isInRevision"`
	IsDisputed        bool `json:"isDisputed"`
}

// Attachment is file metadata; the bytes live outside the core.
type Attachment struct {
	Filename    string    `json:"filename"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	UploadedAt  time.Time `json:"uploadDate"`
}

// Job is an employer's posting.
type Job struct {
	ID               string          `json:"id"`
	EmployerID       string          `json:"employerId"`
	Title            string          `json:"title"`
	Description      string          `json:"description"`
	BriefDescription string          `json:"briefDescription,omitempty"`
	Budget           decimal.Decimal `json:"budget"`
	Deadline         *time.Time      `json:"deadline,omitempty"`
	Type             string          `json:"type"`
	Category         string          `json:"category,omitempty"`
	Priority         string          `json:"priority,omitempty"`
	WordCount        int             `json:"wordCount,omitempty"`
	Skills           []string        `json:"skills"`
	Bids             int64           `json:"bids"`
	AcceptedBidID    string          `json:"acceptedBidId"`
	JobFlags
	Attachments []Attachment `json:"attachments"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// OpenForBids reports whether writers may still bid.
func (j *Job) OpenForBids() bool {
	return !j.IsInProgress && !j.IsCancelled && !j.IsComplete && !j.IsCompleteAndPaid
}

// JobFlagsUpdate carries the flags to change; nil fields are left alone.
type JobFlagsUpdate struct {
	IsPublic          *bool `json:"isPublic,omitempty"`
	IsPrivate         *bool `json:"isPrivate,omitempty"`
	IsSubmitted       *bool `json:"isSubmitted,omitempty"`
	IsComplete        *bool `json:"isComplete,omitempty"`
	IsCompleteAndPaid *bool `json:"isCompleteAndPaid,omitempty"`
	IsCancelled       *bool `json:"isCancelled,omitempty"`
	IsOverdue         *bool `json:"isOverdue,omitempty"`
	IsInProgress      *bool `json:"isInProgress,omitempty"`
	IsInRevision      *bool `json:"isInRevision,omitempty"`
	IsDisputed        *bool `json:"isDisputed,omitempty"`
}

// Patch converts the update to a field patch.
func (u JobFlagsUpdate) Patch() Patch {
	p := Patch{}
	set := func(field string, v *bool) {
		if v != nil {
			p[field] = *v
		}
	}
	set("isPublic", u.IsPublic)
	set("isPrivate", u.IsPrivate)
	set("isSubmitted", u.IsSubmitted)
	set("isComplete", u.IsComplete)
	set("isCompleteAndPaid", u.IsCompleteAndPaid)
	set("isCancelled", u.IsCancelled)
	set("isOverdue", u.IsOverdue)
	set("isInProgress", u.IsInProgress)
	set("isInRevision", u.IsInRevision)
	set("isDisputed", u.IsDisputed)
	return p
}
