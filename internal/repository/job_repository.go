package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wencestudios/freelancehub/internal/domain"
)

// JobRepository persists job postings. Jobs are updated in place and never
// deleted.
type JobRepository struct {
	store  domain.DocumentStore
	logger *slog.Logger
}

func NewJobRepository(store domain.DocumentStore, logger *slog.Logger) *JobRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobRepository{store: store, logger: logger}
}

func (r *JobRepository) Create(ctx context.Context, job *domain.Job) error {
	if err := r.store.InsertOne(ctx, Jobs, job.ID, job); err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	var job domain.Job
	if err := r.store.FindOne(ctx, Jobs, domain.Where(domain.Eq("id", id)), &job); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

// GetMany loads the jobs with the given ids, keyed by id.
func (r *JobRepository) GetMany(ctx context.Context, ids []string) (map[string]domain.Job, error) {
	out := make(map[string]domain.Job, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var jobs []domain.Job
	if err := r.store.Find(ctx, Jobs, domain.Where(domain.In("id", ids)), &jobs); err != nil {
		return nil, fmt.Errorf("failed to load jobs: %w", err)
	}
	for _, j := range jobs {
		out[j.ID] = j
	}
	return out, nil
}

func (r *JobRepository) ListByEmployer(ctx context.Context, employerID string) ([]domain.Job, error) {
	var jobs []domain.Job
	if err := r.store.Find(ctx, Jobs, domain.Where(domain.Eq("employerId", employerID)), &jobs); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

// ListPublic returns public jobs that are not in progress or cancelled.
func (r *JobRepository) ListPublic(ctx context.Context) ([]domain.Job, error) {
	var jobs []domain.Job
	filter := domain.Where(
		domain.Eq("isPublic", true),
		domain.Eq("isInProgress", false),
		domain.Eq("isCancelled", false),
	)
	if err := r.store.Find(ctx, Jobs, filter, &jobs); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

// Patch applies fields to a job owned by employerID.
func (r *JobRepository) Patch(ctx context.Context, id, employerID string, patch domain.Patch) (domain.UpdateResult, error) {
	res, err := r.store.UpdateOne(ctx, Jobs,
		domain.Where(domain.Eq("id", id), domain.Eq("employerId", employerID)), patch)
	if err != nil {
		return res, fmt.Errorf("failed to update job: %w", err)
	}
	return res, nil
}

// ClaimForBid marks the job in progress for bidID unless another bid
// already holds it or the job was cancelled or completed. It reports whether
// bidID holds the claim afterwards.
func (r *JobRepository) ClaimForBid(ctx context.Context, id, bidID string, now time.Time) (bool, error) {
	res, err := r.store.UpdateOne(ctx, Jobs,
		domain.Where(
			domain.Eq("id", id),
			domain.Eq("acceptedBidId", ""),
			domain.Eq("isCancelled", false),
			domain.Eq("isComplete", false),
		),
		domain.Patch{"acceptedBidId": bidID, "isInProgress": true, "updatedAt": now},
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim job: %w", err)
	}
	if res.Matched > 0 {
		return true, nil
	}
	job, err := r.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	return job.AcceptedBidID == bidID, nil
}

// ReleaseClaim undoes ClaimForBid when the bid could not be accepted.
func (r *JobRepository) ReleaseClaim(ctx context.Context, id, bidID string, now time.Time) error {
	_, err := r.store.UpdateOne(ctx, Jobs,
		domain.Where(domain.Eq("id", id), domain.Eq("acceptedBidId", bidID)),
		domain.Patch{"acceptedBidId": "", "isInProgress": false, "updatedAt": now},
	)
	if err != nil {
		return fmt.Errorf("failed to release job claim: %w", err)
	}
	return nil
}

// IncrementBids adds one to the bid counter in place.
func (r *JobRepository) IncrementBids(ctx context.Context, id string) (domain.UpdateResult, error) {
	return r.store.Increment(ctx, Jobs, domain.Where(domain.Eq("id", id)), "bids", 1)
}

// SetBids overwrites the bid counter.
func (r *JobRepository) SetBids(ctx context.Context, id string, n int64) error {
	res, err := r.store.UpdateOne(ctx, Jobs, domain.Where(domain.Eq("id", id)), domain.Patch{"bids": n})
	if err != nil {
		return fmt.Errorf("failed to set bid count: %w", err)
	}
	if res.Matched == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}
