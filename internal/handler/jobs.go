package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/wencestudios/freelancehub/internal/domain"
	"github.com/wencestudios/freelancehub/internal/handler/respond"
	"github.com/wencestudios/freelancehub/internal/service"
)

// JobHandler serves job postings.
type JobHandler struct {
	jobs     *service.JobService
	validate *validator.Validate
	logger   *slog.Logger
}

func NewJobHandler(jobs *service.JobService, logger *slog.Logger) *JobHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobHandler{jobs: jobs, validate: newValidator(), logger: logger}
}

type AttachmentRequest struct {
	Filename    string `json:"filename" validate:"required"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size" validate:"gte=0"`
}

type CreateJobRequest struct {
	Title            string              `json:"title" validate:"required,max=200"`
	Description      string              `json:"description" validate:"required"`
	BriefDescription string              `json:"briefDescription"`
	Budget           decimal.Decimal     `json:"budget"`
	Deadline         *time.Time          `json:"deadline"`
	Type             string              `json:"type"`
	Category         string              `json:"category"`
	Priority         string              `json:"priority" validate:"omitempty,oneof=low normal high urgent"`
	WordCount        int                 `json:"wordCount" validate:"gte=0"`
	Skills           []string            `json:"skills"`
	Attachments      []AttachmentRequest `json:"attachments" validate:"dive"`
}

// Create handles POST /api/jobs
func (h *JobHandler) Create(w http.ResponseWriter, r *http.Request) {
	a, err := actor(r)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	var req CreateJobRequest
	if err := decode(r, h.validate, &req); err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	now := time.Now().UTC()
	attachments := make([]domain.Attachment, 0, len(req.Attachments))
	for _, att := range req.Attachments {
		attachments = append(attachments, domain.Attachment{
			Filename:    att.Filename,
			ContentType: att.ContentType,
			Size:        att.Size,
			UploadedAt:  now,
		})
	}

	job, err := h.jobs.CreateJob(r.Context(), a, service.JobInput{
		Title:            req.Title,
		Description:      req.Description,
		BriefDescription: req.BriefDescription,
		Budget:           req.Budget,
		Deadline:         req.Deadline,
		Type:             req.Type,
		Category:         req.Category,
		Priority:         req.Priority,
		WordCount:        req.WordCount,
		Skills:           req.Skills,
		Attachments:      attachments,
	})
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusCreated, job)
}

// ListOpen handles GET /api/jobs
func (h *JobHandler) ListOpen(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.jobs.ListOpenJobs(r.Context())
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, jobs)
}

// ListMine handles GET /api/jobs/mine
func (h *JobHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	a, err := actor(r)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	jobs, err := h.jobs.ListJobsForEmployer(r.Context(), a)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, jobs)
}

// Get handles GET /api/jobs/{jobID}
func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.GetJob(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, job)
}

// UpdateStatus handles PATCH /api/jobs/{jobID}/status
func (h *JobHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	a, err := actor(r)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	var req domain.JobFlagsUpdate
	if err := decode(r, h.validate, &req); err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	job, err := h.jobs.UpdateJobStatus(r.Context(), a, chi.URLParam(r, "jobID"), req)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, job)
}
