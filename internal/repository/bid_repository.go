package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/wencestudios/freelancehub/internal/domain"
)

// BidRepository persists bids. (jobId, writerId) is unique.
type BidRepository struct {
	store  domain.DocumentStore
	logger *slog.Logger
}

func NewBidRepository(store domain.DocumentStore, logger *slog.Logger) *BidRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &BidRepository{store: store, logger: logger}
}

// Create inserts a bid. ErrDuplicate means the writer already bid on the job.
func (r *BidRepository) Create(ctx context.Context, bid *domain.Bid) error {
	if err := r.store.InsertOne(ctx, Bids, bid.BidID, bid); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			return err
		}
		return fmt.Errorf("failed to create bid: %w", err)
	}
	return nil
}

func (r *BidRepository) GetByID(ctx context.Context, id string) (*domain.Bid, error) {
	return r.findOne(ctx, domain.Where(domain.Eq("bidId", id)))
}

// GetByJobAndWriter finds the writer's bid on a job.
func (r *BidRepository) GetByJobAndWriter(ctx context.Context, jobID, writerID string) (*domain.Bid, error) {
	return r.findOne(ctx, domain.Where(domain.Eq("jobId", jobID), domain.Eq("writerId", writerID)))
}

func (r *BidRepository) findOne(ctx context.Context, f domain.Filter) (*domain.Bid, error) {
	var bid domain.Bid
	if err := r.store.FindOne(ctx, Bids, f, &bid); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrBidNotFound
		}
		return nil, fmt.Errorf("failed to get bid: %w", err)
	}
	return &bid, nil
}

func (r *BidRepository) list(ctx context.Context, f domain.Filter) ([]domain.Bid, error) {
	var bids []domain.Bid
	if err := r.store.Find(ctx, Bids, f, &bids); err != nil {
		return nil, fmt.Errorf("failed to list bids: %w", err)
	}
	return bids, nil
}

func (r *BidRepository) ListByJob(ctx context.Context, jobID string) ([]domain.Bid, error) {
	return r.list(ctx, domain.Where(domain.Eq("jobId", jobID)))
}

func (r *BidRepository) ListByWriter(ctx context.Context, writerID string) ([]domain.Bid, error) {
	return r.list(ctx, domain.Where(domain.Eq("writerId", writerID)))
}

func (r *BidRepository) ListByEmployer(ctx context.Context, employerID string) ([]domain.Bid, error) {
	return r.list(ctx, domain.Where(domain.Eq("employerId", employerID)))
}

// ListByStatus returns bids in status where field equals value.
func (r *BidRepository) ListByStatus(ctx context.Context, field, value string, status domain.BidStatus) ([]domain.Bid, error) {
	return r.list(ctx, domain.Where(domain.Eq(field, value), domain.Eq("status", status)))
}

// PendingSiblings returns the other pending bids on a job.
func (r *BidRepository) PendingSiblings(ctx context.Context, jobID, bidID string) ([]domain.Bid, error) {
	return r.list(ctx, domain.Where(
		domain.Eq("jobId", jobID),
		domain.Ne("bidId", bidID),
		domain.Eq("status", domain.BidPending),
	))
}

// CountByJob counts the bids on a job.
func (r *BidRepository) CountByJob(ctx context.Context, jobID string) (int64, error) {
	bids, err := r.ListByJob(ctx, jobID)
	if err != nil {
		return 0, err
	}
	return int64(len(bids)), nil
}

// Transition patches the bid only while its status is from. It reports
// whether the patch applied.
func (r *BidRepository) Transition(ctx context.Context, id string, from domain.BidStatus, patch domain.Patch) (bool, error) {
	res, err := r.store.UpdateOne(ctx, Bids,
		domain.Where(domain.Eq("bidId", id), domain.Eq("status", from)), patch)
	if err != nil {
		return false, fmt.Errorf("failed to update bid: %w", err)
	}
	return res.Matched > 0, nil
}

// UpdateUnlessStatus patches the bid while its status differs from status.
func (r *BidRepository) UpdateUnlessStatus(ctx context.Context, id string, status domain.BidStatus, patch domain.Patch) (bool, error) {
	res, err := r.store.UpdateOne(ctx, Bids,
		domain.Where(domain.Eq("bidId", id), domain.Ne("status", status)), patch)
	if err != nil {
		return false, fmt.Errorf("failed to update bid: %w", err)
	}
	return res.Matched > 0, nil
}
