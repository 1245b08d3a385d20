package handler

import (
	"fmt"
	"time"

	"github.com/wencestudios/freelancehub/internal/domain"
	"github.com/wencestudios/freelancehub/internal/service"
)

// UserView is the public part of an account.
type UserView struct {
	UserID        string          `json:"userId"`
	Email         string          `json:"email"`
	UserType      domain.UserType `json:"userType"`
	Name          string          `json:"name"`
	Phone         string          `json:"phone,omitempty"`
	Country       string          `json:"country,omitempty"`
	Rating        float64         `json:"rating"`
	CompletedJobs int             `json:"completedJobs"`
	CreatedAt     time.Time       `json:"createdAt"`
}

func userView(u *domain.User) UserView {
	return UserView{
		UserID:        u.UserID,
		Email:         u.Email,
		UserType:      u.UserType,
		Name:          u.Name,
		Phone:         u.Phone,
		Country:       u.Country,
		Rating:        u.Rating,
		CompletedJobs: u.CompletedJobs,
		CreatedAt:     u.CreatedAt,
	}
}

// AuthResponse is returned by register, login and refresh.
type AuthResponse struct {
	User    *UserView              `json:"user,omitempty"`
	Session *service.IssuedSession `json:"session"`
}

func days(n int) string {
	if n == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", n)
}

// BidView renders amounts as decimal strings and delivery as "N days".
type BidView struct {
	BidID        string                `json:"bidId"`
	JobID        string                `json:"jobId"`
	JobTitle     string                `json:"jobTitle"`
	EmployerID   string                `json:"employerId"`
	Writer       domain.WriterSnapshot `json:"writer"`
	BidAmount    string                `json:"bidAmount"`
	DeliveryTime string                `json:"deliveryTime"`
	Notes        string                `json:"notes,omitempty"`
	Status       domain.BidStatus      `json:"status"`
	SubmittedAt  time.Time             `json:"submittedAt"`
	UpdatedAt    time.Time             `json:"updatedAt"`
	AcceptedAt   *time.Time            `json:"acceptedAt,omitempty"`
	AcceptedBy   string                `json:"acceptedBy,omitempty"`
	DeclinedAt   *time.Time            `json:"declinedAt,omitempty"`
	DeclinedBy   string                `json:"declinedBy,omitempty"`
	CancelledAt  *time.Time            `json:"cancelledAt,omitempty"`
}

func bidView(b *domain.Bid) BidView {
	return BidView{
		BidID:        b.BidID,
		JobID:        b.JobID,
		JobTitle:     b.JobTitle,
		EmployerID:   b.EmployerID,
		Writer:       b.Writer,
		BidAmount:    b.Amount.StringFixed(2),
		DeliveryTime: days(b.DeliveryDays),
		Notes:        b.Notes,
		Status:       b.Status,
		SubmittedAt:  b.SubmittedAt,
		UpdatedAt:    b.UpdatedAt,
		AcceptedAt:   b.AcceptedAt,
		AcceptedBy:   b.AcceptedBy,
		DeclinedAt:   b.DeclinedAt,
		DeclinedBy:   b.DeclinedBy,
		CancelledAt:  b.CancelledAt,
	}
}

func bidViews(bids []domain.Bid) []BidView {
	out := make([]BidView, 0, len(bids))
	for i := range bids {
		out = append(out, bidView(&bids[i]))
	}
	return out
}

// BidResultView is the response of a bid mutation.
type BidResultView struct {
	Bid      BidView  `json:"bid"`
	Updated  bool     `json:"updated,omitempty"`
	Declined []string `json:"declinedBids,omitempty"`
}

func bidResultView(res *service.BidResult) BidResultView {
	return BidResultView{Bid: bidView(res.Bid), Updated: res.Updated, Declined: res.Declined}
}

// WriterBidView adds the job description to a writer's bid.
type WriterBidView struct {
	BidView
	JobDescription string `json:"jobDescription"`
	JobInProgress  bool   `json:"jobInProgress"`
}

// JobBidsView is one job of the employer's bid overview.
type JobBidsView struct {
	JobID         string           `json:"jobId"`
	Title         string           `json:"title"`
	Budget        string           `json:"budget"`
	BidCount      int64            `json:"bidCount"`
	IsInProgress  bool             `json:"isInProgress"`
	AcceptedBidID string           `json:"acceptedBidId,omitempty"`
	Bids          []BidSummaryView `json:"bids"`
}

type BidSummaryView struct {
	BidID         string           `json:"bidId"`
	WriterID      string           `json:"writerId"`
	WriterName    string           `json:"writerName"`
	WriterRating  float64          `json:"writerRating"`
	CompletedJobs int              `json:"completedJobs"`
	BidAmount     string           `json:"bidAmount"`
	DeliveryTime  string           `json:"deliveryTime"`
	Status        domain.BidStatus `json:"status"`
	SubmittedAt   time.Time        `json:"submittedAt"`
}

func jobBidsViews(groups []service.JobBids) []JobBidsView {
	out := make([]JobBidsView, 0, len(groups))
	for _, g := range groups {
		v := JobBidsView{
			JobID:         g.JobID,
			Title:         g.Title,
			Budget:        g.Budget,
			BidCount:      g.BidCount,
			IsInProgress:  g.IsInProgress,
			AcceptedBidID: g.AcceptedBidID,
			Bids:          make([]BidSummaryView, 0, len(g.Bids)),
		}
		for _, b := range g.Bids {
			v.Bids = append(v.Bids, BidSummaryView{
				BidID:         b.BidID,
				WriterID:      b.WriterID,
				WriterName:    b.WriterName,
				WriterRating:  b.WriterRating,
				CompletedJobs: b.CompletedJobs,
				BidAmount:     b.Amount.StringFixed(2),
				DeliveryTime:  days(b.DeliveryDays),
				Status:        b.Status,
				SubmittedAt:   b.SubmittedAt,
			})
		}
		out = append(out, v)
	}
	return out
}
