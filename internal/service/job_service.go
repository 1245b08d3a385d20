package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wencestudios/freelancehub/internal/domain"
	"github.com/wencestudios/freelancehub/internal/repository"
	"github.com/wencestudios/freelancehub/internal/security"
)

// Actor is the authenticated caller of a service operation.
type Actor struct {
	UserID   string
	UserType domain.UserType
}

// ActorFromSession returns the identity bound to a validated session.
func ActorFromSession(s *domain.Session) Actor {
	return Actor{UserID: s.UserID, UserType: s.UserType}
}

// JobInput is an employer's new posting.
type JobInput struct {
	Title            string
	Description      string
	BriefDescription string
	Budget           decimal.Decimal
	Deadline         *time.Time
	Type             string
	Category         string
	Priority         string
	WordCount        int
	Skills           []string
	Attachments      []domain.Attachment
}

// JobService manages job postings.
type JobService struct {
	jobs          *repository.JobRepository
	bids          *repository.BidRepository
	notifications *NotificationStore
	authz         *security.AuthorizationService
	clock         domain.Clock
	random        domain.RandomSource
	logger        *slog.Logger
}

func NewJobService(jobs *repository.JobRepository, authz *security.AuthorizationService, clock domain.Clock, random domain.RandomSource, logger *slog.Logger) *JobService {
	if logger == nil {
		logger = slog.Default()
	}
	if authz == nil {
		authz = security.NewAuthorizationService(logger)
	}
	return &JobService{jobs: jobs, authz: authz, clock: clock, random: random, logger: logger}
}

// WithNotifications tells the writer of the accepted bid about status changes.
func (s *JobService) WithNotifications(bids *repository.BidRepository, notifications *NotificationStore) *JobService {
	s.bids = bids
	s.notifications = notifications
	return s
}

// shortID renders prefix-{base36 millis}-{hex} in upper case.
func shortID(prefix string, random domain.RandomSource, now time.Time, n int) (string, error) {
	suffix, err := domain.RandomHex(random, n)
	if err != nil {
		return "", fmt.Errorf("failed to generate id: %w", err)
	}
	return strings.ToUpper(prefix + "-" + strconv.FormatInt(now.UnixMilli(), 36) + "-" + suffix), nil
}

// CreateJob stores a new job owned by the employer. Every status flag starts
// false; the employer publishes the job through UpdateJobStatus.
func (s *JobService) CreateJob(ctx context.Context, actor Actor, in JobInput) (*domain.Job, error) {
	if err := s.authz.Require(actor.UserType, security.PermCreateJob); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(in.Title)
	if title == "" || strings.TrimSpace(in.Description) == "" {
		return nil, domain.Invalid("title and description are required")
	}
	if in.Budget.IsNegative() {
		return nil, domain.Invalid("budget cannot be negative")
	}

	now := s.clock.Now()
	id, err := shortID("JOB", s.random, now, 3)
	if err != nil {
		return nil, err
	}
	skills := in.Skills
	if skills == nil {
		skills = []string{}
	}
	attachments := in.Attachments
	if attachments == nil {
		attachments = []domain.Attachment{}
	}
	job := &domain.Job{
		ID:               id,
		EmployerID:       actor.UserID,
		Title:            title,
		Description:      in.Description,
		BriefDescription: in.BriefDescription,
		Budget:           in.Budget,
		Deadline:         in.Deadline,
		Type:             in.Type,
		Category:         in.Category,
		Priority:         in.Priority,
		WordCount:        in.WordCount,
		Skills:           skills,
		Attachments:      attachments,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, err
	}
	s.logger.Info("job created",
		slog.String("job_id", job.ID),
		slog.String("employer_id", actor.UserID),
	)
	return job, nil
}

func (s *JobService) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	return s.jobs.GetByID(ctx, id)
}

// ListOpenJobs returns public jobs still accepting bids, newest first.
func (s *JobService) ListOpenJobs(ctx context.Context) ([]domain.Job, error) {
	jobs, err := s.jobs.ListPublic(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Job, 0, len(jobs))
	for _, j := range jobs {
		if j.OpenForBids() {
			out = append(out, j)
		}
	}
	newestFirst(out)
	return out, nil
}

func (s *JobService) ListJobsForEmployer(ctx context.Context, actor Actor) ([]domain.Job, error) {
	if err := s.authz.Require(actor.UserType, security.PermCreateJob); err != nil {
		return nil, err
	}
	jobs, err := s.jobs.ListByEmployer(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	if jobs == nil {
		jobs = []domain.Job{}
	}
	newestFirst(jobs)
	return jobs, nil
}

// UpdateJobStatus patches the given flags of a job in place.
func (s *JobService) UpdateJobStatus(ctx context.Context, actor Actor, jobID string, update domain.JobFlagsUpdate) (*domain.Job, error) {
	if err := s.authz.Require(actor.UserType, security.PermUpdateJob); err != nil {
		return nil, err
	}
	patch := update.Patch()
	if len(patch) == 0 {
		return nil, domain.Invalid("no status flags supplied")
	}
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := s.authz.RequireOwner(actor.UserID, job.EmployerID, "job", jobID); err != nil {
		return nil, err
	}

	patch["updatedAt"] = s.clock.Now()
	res, err := s.jobs.Patch(ctx, jobID, actor.UserID, patch)
	if err != nil {
		return nil, err
	}
	if res.Matched == 0 {
		return nil, domain.ErrJobNotFound
	}
	s.logger.Info("job status updated", slog.String("job_id", jobID))
	updated, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	s.notifyAssignee(ctx, updated)
	return updated, nil
}

func (s *JobService) notifyAssignee(ctx context.Context, job *domain.Job) {
	if s.notifications == nil || job.AcceptedBidID == "" {
		return
	}
	bid, err := s.bids.GetByID(ctx, job.AcceptedBidID)
	if err != nil {
		s.logger.Warn("job update notice skipped",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	s.notifications.notify(ctx, domain.NotificationInput{
		Type:           domain.NotificationJobUpdate,
		UserID:         bid.WriterID,
		UserType:       domain.UserTypeWriter,
		CounterpartyID: job.EmployerID,
		JobID:          job.ID,
		JobTitle:       job.Title,
		BidID:          bid.BidID,
		Amount:         bid.Amount,
	})
}

func newestFirst(jobs []domain.Job) {
	slices.SortStableFunc(jobs, func(a, b domain.Job) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
}
