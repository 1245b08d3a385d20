package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wencestudios/freelancehub/internal/domain"
	"github.com/wencestudios/freelancehub/internal/observability/metrics"
	"github.com/wencestudios/freelancehub/internal/repository"
	"github.com/wencestudios/freelancehub/internal/security"
	"github.com/wencestudios/freelancehub/internal/security/audit"
)

// submitAttempts bounds the insert/update race between two submissions of
// the same writer on the same job.
const submitAttempts = 2

// BidInput carries the writer's terms.
type BidInput struct {
	Amount       decimal.Decimal
	DeliveryDays int
	Notes        string
}

// BidResult is the outcome of a bid mutation.
type BidResult struct {
	Bid *domain.Bid `json:"bid"`
	// Updated is set when a submission overwrote the writer's existing bid.
	Updated bool `json:"updated,omitempty"`
	// Declined lists the sibling bids declined by an acceptance.
	Declined []string `json:"declined,omitempty"`
}

// BidEngine runs the bid state machine and keeps job counters and both
// parties' notifications in step with it.
type BidEngine struct {
	bids          *repository.BidRepository
	jobs          *repository.JobRepository
	users         *repository.UserRepository
	notifications *NotificationStore
	authz         *security.AuthorizationService
	audit         *audit.Logger
	clock         domain.Clock
	random        domain.RandomSource
	logger        *slog.Logger
}

func NewBidEngine(
	bids *repository.BidRepository,
	jobs *repository.JobRepository,
	users *repository.UserRepository,
	notifications *NotificationStore,
	authz *security.AuthorizationService,
	auditLog *audit.Logger,
	clock domain.Clock,
	random domain.RandomSource,
	logger *slog.Logger,
) *BidEngine {
	if logger == nil {
		logger = slog.Default()
	}
	if authz == nil {
		authz = security.NewAuthorizationService(logger)
	}
	if auditLog == nil {
		auditLog = audit.NewLogger(logger)
	}
	return &BidEngine{
		bids:          bids,
		jobs:          jobs,
		users:         users,
		notifications: notifications,
		authz:         authz,
		audit:         auditLog,
		clock:         clock,
		random:        random,
		logger:        logger,
	}
}

// SubmitBid places the writer's bid on a job, or overwrites the writer's
// earlier bid on it unless that bid was accepted. Only a new bid moves the
// job's bid counter.
func (e *BidEngine) SubmitBid(ctx context.Context, actor Actor, jobID string, in BidInput) (*BidResult, error) {
	if err := e.authz.Require(actor.UserType, security.PermSubmitBid); err != nil {
		return nil, err
	}
	if !in.Amount.IsPositive() {
		return nil, domain.Invalid("bid amount must be positive")
	}
	if in.DeliveryDays <= 0 {
		return nil, domain.Invalid("delivery time must be at least one day")
	}

	writer, err := e.users.GetByID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrWriterNotFound
		}
		return nil, err
	}
	if writer.UserType != domain.UserTypeWriter {
		return nil, domain.ErrWriterNotFound
	}
	job, err := e.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !job.OpenForBids() {
		return nil, domain.ErrJobClosed
	}

	for attempt := 0; attempt < submitAttempts; attempt++ {
		existing, err := e.bids.GetByJobAndWriter(ctx, job.ID, writer.UserID)
		switch {
		case err == nil:
			return e.resubmit(ctx, existing, writer, job, in)
		case !errors.Is(err, domain.ErrBidNotFound):
			return nil, err
		}

		bid, err := e.newBid(writer, job, in)
		if err != nil {
			return nil, err
		}
		err = e.bids.Create(ctx, bid)
		if errors.Is(err, domain.ErrDuplicate) {
			continue
		}
		if err != nil {
			return nil, err
		}

		metrics.ObserveBid("submitted")
		e.logger.Info("bid submitted",
			slog.String("bid_id", bid.BidID),
			slog.String("job_id", job.ID),
			slog.String("writer_id", writer.UserID),
		)
		if err := e.incrementBidCount(ctx, job.ID); err != nil {
			return nil, err
		}
		e.notifySubmitted(ctx, domain.NotificationBid, bid, writer, job)
		return &BidResult{Bid: bid}, nil
	}
	return nil, fmt.Errorf("bid for job %s kept changing: %w", job.ID, domain.ErrDuplicate)
}

func (e *BidEngine) newBid(writer *domain.User, job *domain.Job, in BidInput) (*domain.Bid, error) {
	now := e.clock.Now()
	id, err := shortID("BID", e.random, now, 4)
	if err != nil {
		return nil, err
	}
	return &domain.Bid{
		BidID:        id,
		JobID:        job.ID,
		JobTitle:     job.Title,
		EmployerID:   job.EmployerID,
		WriterID:     writer.UserID,
		Writer:       writer.Snapshot(),
		Amount:       in.Amount,
		DeliveryDays: in.DeliveryDays,
		Notes:        strings.TrimSpace(in.Notes),
		Status:       domain.BidPending,
		SubmittedAt:  now,
		UpdatedAt:    now,
		CreatedAt:    now,
	}, nil
}

func (e *BidEngine) resubmit(ctx context.Context, existing *domain.Bid, writer *domain.User, job *domain.Job, in BidInput) (*BidResult, error) {
	if existing.Status == domain.BidAccepted {
		return nil, domain.ErrAlreadyAccepted
	}
	now := e.clock.Now()
	notes := strings.TrimSpace(in.Notes)
	snapshot := writer.Snapshot()
	ok, err := e.bids.UpdateUnlessStatus(ctx, existing.BidID, domain.BidAccepted, domain.Patch{
		"bidAmount":    in.Amount,
		"deliveryDays": in.DeliveryDays,
		"notes":        notes,
		"writer":       snapshot,
		"status":       domain.BidPending,
		"submittedAt":  now,
		"updatedAt":    now,
		"declinedAt":   nil,
		"declinedBy":   "",
		"cancelledAt":  nil,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrAlreadyAccepted
	}

	existing.Amount = in.Amount
	existing.DeliveryDays = in.DeliveryDays
	existing.Notes = notes
	existing.Writer = snapshot
	existing.Status = domain.BidPending
	existing.SubmittedAt = now
	existing.UpdatedAt = now
	existing.DeclinedAt = nil
	existing.DeclinedBy = ""
	existing.CancelledAt = nil

	metrics.ObserveBid("updated")
	e.logger.Info("bid updated",
		slog.String("bid_id", existing.BidID),
		slog.String("job_id", job.ID),
	)
	e.notifySubmitted(ctx, domain.NotificationBidUpdate, existing, writer, job)
	return &BidResult{Bid: existing, Updated: true}, nil
}

// incrementBidCount adds one to the job's counter in place. When the store
// reports that nothing changed, the counter is recomputed from the bids.
func (e *BidEngine) incrementBidCount(ctx context.Context, jobID string) error {
	res, err := e.jobs.IncrementBids(ctx, jobID)
	if err == nil && res.Modified > 0 {
		return nil
	}
	if err != nil {
		e.logger.Warn("bid counter increment failed",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}

	n, cerr := e.bids.CountByJob(ctx, jobID)
	if cerr == nil {
		cerr = e.jobs.SetBids(ctx, jobID, n)
	}
	if cerr != nil {
		metrics.ObserveBidCounterRepair("failed")
		e.logger.Error("failed to repair bid counter",
			slog.String("job_id", jobID),
			slog.String("error", cerr.Error()),
		)
		return fmt.Errorf("failed to update bid count for job %s: %w", jobID, cerr)
	}
	metrics.ObserveBidCounterRepair("repaired")
	return nil
}

func (e *BidEngine) notifySubmitted(ctx context.Context, kind domain.NotificationType, bid *domain.Bid, writer *domain.User, job *domain.Job) {
	e.notifications.notify(ctx, domain.NotificationInput{
		Type:           kind,
		UserID:         writer.UserID,
		UserType:       domain.UserTypeWriter,
		CounterpartyID: job.EmployerID,
		JobID:          job.ID,
		JobTitle:       job.Title,
		BidID:          bid.BidID,
		Amount:         bid.Amount,
	})
	if job.EmployerID == "" {
		return
	}
	e.notifications.notify(ctx, domain.NotificationInput{
		Type:           domain.NotificationBidReceived,
		UserID:         job.EmployerID,
		UserType:       domain.UserTypeEmployer,
		CounterpartyID: writer.UserID,
		JobID:          job.ID,
		JobTitle:       job.Title,
		BidID:          bid.BidID,
		Amount:         bid.Amount,
		WriterName:     writer.Name,
	})
}

// employerBid loads a bid together with its job and checks that the actor
// owns the job.
func (e *BidEngine) employerBid(ctx context.Context, actor Actor, perm security.Permission, bidID string) (*domain.Bid, *domain.Job, error) {
	if err := e.authz.Require(actor.UserType, perm); err != nil {
		return nil, nil, err
	}
	bid, err := e.bids.GetByID(ctx, bidID)
	if err != nil {
		return nil, nil, err
	}
	job, err := e.jobs.GetByID(ctx, bid.JobID)
	if err != nil {
		return nil, nil, err
	}
	if err := e.authz.RequireOwner(actor.UserID, job.EmployerID, "bid", bidID); err != nil {
		e.audit.LogDenied(ctx, actor.UserID, fmt.Sprintf("bid %s belongs to another employer", bidID))
		return nil, nil, err
	}
	return bid, job, nil
}

// AcceptBid accepts a pending bid, claims its job and declines every other
// pending bid on the job. The bid state is the contract; notifications are
// best effort.
func (e *BidEngine) AcceptBid(ctx context.Context, actor Actor, bidID string) (*BidResult, error) {
	bid, job, err := e.employerBid(ctx, actor, security.PermAcceptBid, bidID)
	if err != nil {
		return nil, err
	}
	switch bid.Status {
	case domain.BidAccepted:
		return nil, domain.ErrAlreadyAccepted
	case domain.BidDeclined, domain.BidCancelled:
		return nil, domain.ErrBidClosed
	}

	now := e.clock.Now()
	claimed, err := e.jobs.ClaimForBid(ctx, job.ID, bid.BidID, now)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, domain.ErrJobClosed
	}

	ok, err := e.bids.Transition(ctx, bid.BidID, domain.BidPending, domain.Patch{
		"status":     domain.BidAccepted,
		"acceptedAt": now,
		"acceptedBy": actor.UserID,
		"updatedAt":  now,
	})
	if err != nil {
		e.release(ctx, job.ID, bid.BidID)
		return nil, err
	}
	if !ok {
		current, gerr := e.bids.GetByID(ctx, bid.BidID)
		if gerr == nil && current.Status == domain.BidAccepted {
			return nil, domain.ErrAlreadyAccepted
		}
		e.release(ctx, job.ID, bid.BidID)
		return nil, domain.ErrBidClosed
	}
	bid.Status = domain.BidAccepted
	bid.AcceptedAt = &now
	bid.AcceptedBy = actor.UserID
	bid.UpdatedAt = now

	metrics.ObserveBid("accepted")
	e.audit.LogBid(ctx, actor.UserID, "accept", bid.BidID, audit.StatusSuccess, "job "+job.ID)

	declined := e.declineSiblings(ctx, actor, job, bid.BidID, now)

	e.notifications.notify(ctx, domain.NotificationInput{
		Type:           domain.NotificationBidAccepted,
		UserID:         bid.WriterID,
		UserType:       domain.UserTypeWriter,
		CounterpartyID: actor.UserID,
		JobID:          job.ID,
		JobTitle:       job.Title,
		BidID:          bid.BidID,
		Amount:         bid.Amount,
	})
	e.notifications.notify(ctx, domain.NotificationInput{
		Type:           domain.NotificationBidConfirmed,
		UserID:         actor.UserID,
		UserType:       domain.UserTypeEmployer,
		CounterpartyID: bid.WriterID,
		JobID:          job.ID,
		JobTitle:       job.Title,
		BidID:          bid.BidID,
		Amount:         bid.Amount,
		WriterName:     bid.Writer.Name,
	})
	return &BidResult{Bid: bid, Declined: declined}, nil
}

func (e *BidEngine) release(ctx context.Context, jobID, bidID string) {
	if err := e.jobs.ReleaseClaim(ctx, jobID, bidID, e.clock.Now()); err != nil {
		e.logger.Error("failed to release job claim",
			slog.String("job_id", jobID),
			slog.String("bid_id", bidID),
			slog.String("error", err.Error()),
		)
	}
}

// declineSiblings declines the other pending bids on a job and notifies
// each of their writers once.
func (e *BidEngine) declineSiblings(ctx context.Context, actor Actor, job *domain.Job, acceptedID string, now time.Time) []string {
	siblings, err := e.bids.PendingSiblings(ctx, job.ID, acceptedID)
	if err != nil {
		e.logger.Error("failed to load sibling bids",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		return nil
	}

	declined := make([]string, 0, len(siblings))
	for _, sib := range siblings {
		ok, err := e.bids.Transition(ctx, sib.BidID, domain.BidPending, declinePatch(actor.UserID, now))
		if err != nil {
			e.logger.Error("failed to decline sibling bid",
				slog.String("bid_id", sib.BidID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !ok {
			continue
		}
		declined = append(declined, sib.BidID)
		metrics.ObserveBid("declined")
		e.notifyDeclined(ctx, &sib, job)
	}
	return declined
}

func declinePatch(employerID string, now time.Time) domain.Patch {
	return domain.Patch{
		"status":     domain.BidDeclined,
		"declinedAt": now,
		"declinedBy": employerID,
		"updatedAt":  now,
	}
}

func (e *BidEngine) notifyDeclined(ctx context.Context, bid *domain.Bid, job *domain.Job) {
	e.notifications.notify(ctx, domain.NotificationInput{
		Type:           domain.NotificationBidDeclined,
		UserID:         bid.WriterID,
		UserType:       domain.UserTypeWriter,
		CounterpartyID: job.EmployerID,
		JobID:          job.ID,
		JobTitle:       job.Title,
		BidID:          bid.BidID,
		Amount:         bid.Amount,
	})
}

// DeclineBid declines a single pending bid.
func (e *BidEngine) DeclineBid(ctx context.Context, actor Actor, bidID string) (*BidResult, error) {
	bid, job, err := e.employerBid(ctx, actor, security.PermDeclineBid, bidID)
	if err != nil {
		return nil, err
	}
	if err := closedError(bid.Status); err != nil {
		return nil, err
	}

	now := e.clock.Now()
	ok, err := e.bids.Transition(ctx, bid.BidID, domain.BidPending, declinePatch(actor.UserID, now))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, e.lostTransition(ctx, bid.BidID, domain.ErrAlreadyAccepted)
	}
	bid.Status = domain.BidDeclined
	bid.DeclinedAt = &now
	bid.DeclinedBy = actor.UserID
	bid.UpdatedAt = now

	metrics.ObserveBid("declined")
	e.audit.LogBid(ctx, actor.UserID, "decline", bid.BidID, audit.StatusSuccess, "job "+job.ID)
	e.notifyDeclined(ctx, bid, job)
	return &BidResult{Bid: bid}, nil
}

// CancelBid withdraws the writer's own pending bid.
func (e *BidEngine) CancelBid(ctx context.Context, actor Actor, bidID string) (*BidResult, error) {
	if err := e.authz.Require(actor.UserType, security.PermCancelBid); err != nil {
		return nil, err
	}
	bid, err := e.bids.GetByID(ctx, bidID)
	if err != nil {
		return nil, err
	}
	if err := e.authz.RequireOwner(actor.UserID, bid.WriterID, "bid", bidID); err != nil {
		e.audit.LogDenied(ctx, actor.UserID, fmt.Sprintf("bid %s belongs to another writer", bidID))
		return nil, err
	}
	if bid.Status == domain.BidAccepted {
		return nil, domain.ErrCannotCancelAccepted
	}
	if bid.Status != domain.BidPending {
		return nil, domain.ErrBidClosed
	}

	now := e.clock.Now()
	ok, err := e.bids.Transition(ctx, bid.BidID, domain.BidPending, domain.Patch{
		"status":      domain.BidCancelled,
		"cancelledAt": now,
		"updatedAt":   now,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, e.lostTransition(ctx, bid.BidID, domain.ErrCannotCancelAccepted)
	}
	bid.Status = domain.BidCancelled
	bid.CancelledAt = &now
	bid.UpdatedAt = now

	metrics.ObserveBid("cancelled")
	e.audit.LogBid(ctx, actor.UserID, "cancel", bid.BidID, audit.StatusSuccess, "job "+bid.JobID)
	if bid.EmployerID != "" {
		e.notifications.notify(ctx, domain.NotificationInput{
			Type:           domain.NotificationBidCancelled,
			UserID:         bid.EmployerID,
			UserType:       domain.UserTypeEmployer,
			CounterpartyID: bid.WriterID,
			JobID:          bid.JobID,
			JobTitle:       bid.JobTitle,
			BidID:          bid.BidID,
			Amount:         bid.Amount,
			WriterName:     bid.Writer.Name,
		})
	}
	return &BidResult{Bid: bid}, nil
}

func closedError(status domain.BidStatus) error {
	switch status {
	case domain.BidPending:
		return nil
	case domain.BidAccepted:
		return domain.ErrAlreadyAccepted
	default:
		return domain.ErrBidClosed
	}
}

// lostTransition reports why a conditional bid update matched nothing.
func (e *BidEngine) lostTransition(ctx context.Context, bidID string, ifAccepted error) error {
	current, err := e.bids.GetByID(ctx, bidID)
	if err != nil {
		return err
	}
	if current.Status == domain.BidAccepted {
		return ifAccepted
	}
	return domain.ErrBidClosed
}

// ListBidsForJob returns every bid on the employer's job, newest first.
func (e *BidEngine) ListBidsForJob(ctx context.Context, actor Actor, jobID string) ([]domain.Bid, error) {
	if err := e.authz.Require(actor.UserType, security.PermViewJobBids); err != nil {
		return nil, err
	}
	job, err := e.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := e.authz.RequireOwner(actor.UserID, job.EmployerID, "job", jobID); err != nil {
		return nil, err
	}
	bids, err := e.bids.ListByJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	sortBids(bids)
	return bids, nil
}

// WriterBid is a writer's bid joined with the job it was placed on.
type WriterBid struct {
	domain.Bid
	JobDescription string `json:"jobDescription"`
	JobInProgress  bool   `json:"jobInProgress"`
}

// ListBidsForWriter returns the writer's bids with each job's description.
func (e *BidEngine) ListBidsForWriter(ctx context.Context, actor Actor) ([]WriterBid, error) {
	if err := e.authz.Require(actor.UserType, security.PermListOwnBids); err != nil {
		return nil, err
	}
	bids, err := e.bids.ListByWriter(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	sortBids(bids)

	ids := make([]string, 0, len(bids))
	for _, b := range bids {
		ids = append(ids, b.JobID)
	}
	jobs, err := e.jobs.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]WriterBid, 0, len(bids))
	for _, b := range bids {
		wb := WriterBid{Bid: b}
		if j, ok := jobs[b.JobID]; ok {
			wb.JobDescription = j.Description
			wb.JobInProgress = j.IsInProgress
		}
		out = append(out, wb)
	}
	return out, nil
}

// BidSummary is the per-bid projection of the employer view.
type BidSummary struct {
	BidID         string           `json:"bidId"`
	WriterID      string           `json:"writerId"`
	WriterName    string           `json:"writerName"`
	WriterRating  float64          `json:"writerRating"`
	CompletedJobs int              `json:"completedJobs"`
	Amount        decimal.Decimal  `json:"bidAmount"`
	DeliveryDays  int              `json:"deliveryDays"`
	Status        domain.BidStatus `json:"status"`
	SubmittedAt   time.Time        `json:"submittedAt"`
}

// JobBids groups the bids of one job for its employer.
type JobBids struct {
	JobID         string       `json:"jobId"`
	Title         string       `json:"title"`
	Budget        string       `json:"budget"`
	BidCount      int64        `json:"bidCount"`
	IsInProgress  bool         `json:"isInProgress"`
	AcceptedBidID string       `json:"acceptedBidId,omitempty"`
	Bids          []BidSummary `json:"bids"`
}

// ListJobsWithBidsForEmployer groups the bids on the employer's jobs by job.
// Jobs without bids are left out.
func (e *BidEngine) ListJobsWithBidsForEmployer(ctx context.Context, actor Actor) ([]JobBids, error) {
	if err := e.authz.Require(actor.UserType, security.PermListEmployerBids); err != nil {
		return nil, err
	}
	jobs, err := e.jobs.ListByEmployer(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	bids, err := e.bids.ListByEmployer(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	sortBids(bids)

	byJob := map[string][]BidSummary{}
	for _, b := range bids {
		byJob[b.JobID] = append(byJob[b.JobID], BidSummary{
			BidID:         b.BidID,
			WriterID:      b.WriterID,
			WriterName:    b.Writer.Name,
			WriterRating:  b.Writer.Rating,
			CompletedJobs: b.Writer.CompletedJobs,
			Amount:        b.Amount,
			DeliveryDays:  b.DeliveryDays,
			Status:        b.Status,
			SubmittedAt:   b.SubmittedAt,
		})
	}

	newestFirst(jobs)
	out := make([]JobBids, 0, len(byJob))
	for _, j := range jobs {
		summaries, ok := byJob[j.ID]
		if !ok {
			continue
		}
		out = append(out, JobBids{
			JobID:         j.ID,
			Title:         j.Title,
			Budget:        j.Budget.String(),
			BidCount:      j.Bids,
			IsInProgress:  j.IsInProgress,
			AcceptedBidID: j.AcceptedBidID,
			Bids:          summaries,
		})
	}
	return out, nil
}

// CheckBid reports whether the writer already bid on the job.
func (e *BidEngine) CheckBid(ctx context.Context, actor Actor, jobID string) (bool, *domain.Bid, error) {
	if err := e.authz.Require(actor.UserType, security.PermListOwnBids); err != nil {
		return false, nil, err
	}
	bid, err := e.bids.GetByJobAndWriter(ctx, jobID, actor.UserID)
	if errors.Is(err, domain.ErrBidNotFound) {
		return false, nil, nil
	}
	if err != nil {
		return false, nil, err
	}
	return true, bid, nil
}

// ListAcceptedBids returns the accepted bids the actor is party to.
func (e *BidEngine) ListAcceptedBids(ctx context.Context, actor Actor) ([]domain.Bid, error) {
	field := "writerId"
	switch actor.UserType {
	case domain.UserTypeEmployer:
		field = "employerId"
	case domain.UserTypeWriter:
	default:
		return nil, domain.ErrForbidden
	}
	bids, err := e.bids.ListByStatus(ctx, field, actor.UserID, domain.BidAccepted)
	if err != nil {
		return nil, err
	}
	sortBids(bids)
	return bids, nil
}

func sortBids(bids []domain.Bid) {
	slices.SortStableFunc(bids, func(a, b domain.Bid) int {
		return b.SubmittedAt.Compare(a.SubmittedAt)
	})
}
