package repository

import "github.com/wencestudios/freelancehub/internal/domain"

// Collection names.
const (
	Users         = "users"
	Sessions      = "sessions"
	Jobs          = "jobs"
	Bids          = "bids"
	Notifications = "notifications"
)

// Collections declares the lookup fields and unique keys of every
// collection. The postgres migrations create the matching indexes.
func Collections() []domain.CollectionSpec {
	return []domain.CollectionSpec{
		{
			Name:    Users,
			Indexes: []string{"userId", "email"},
			Unique:  [][]string{{"email"}},
		},
		{
			Name:    Sessions,
			Indexes: []string{"sessionId", "userId", "accessTokenHash", "refreshTokenHash"},
			Unique:  [][]string{{"activeSlot"}},
		},
		{
			Name:    Jobs,
			Indexes: []string{"id", "employerId"},
		},
		{
			Name:    Bids,
			Indexes: []string{"bidId", "jobId", "writerId", "employerId"},
			Unique:  [][]string{{"jobId", "writerId"}},
		},
		{
			Name:    Notifications,
			Indexes: []string{"id", "writerId", "employerId"},
		},
	}
}
