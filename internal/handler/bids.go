package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/wencestudios/freelancehub/internal/handler/respond"
	"github.com/wencestudios/freelancehub/internal/service"
)

// BidHandler exposes the bid lifecycle.
type BidHandler struct {
	engine   *service.BidEngine
	validate *validator.Validate
	logger   *slog.Logger
}

func NewBidHandler(engine *service.BidEngine, logger *slog.Logger) *BidHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BidHandler{engine: engine, validate: newValidator(), logger: logger}
}

// SubmitBidRequest carries the bid terms. Amount arrives as a JSON number
// or a decimal string.
type SubmitBidRequest struct {
	BidAmount    decimal.Decimal `json:"bidAmount"`
	DeliveryDays int             `json:"deliveryDays" validate:"required,gt=0,lte=365"`
	Notes        string          `json:"notes" validate:"max=2000"`
}

// Submit handles POST /api/jobs/{jobID}/bids
func (h *BidHandler) Submit(w http.ResponseWriter, r *http.Request) {
	a, err := actor(r)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	var req SubmitBidRequest
	if err := decode(r, h.validate, &req); err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	res, err := h.engine.SubmitBid(r.Context(), a, chi.URLParam(r, "jobID"), service.BidInput{
		Amount:       req.BidAmount,
		DeliveryDays: req.DeliveryDays,
		Notes:        req.Notes,
	})
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	status := http.StatusCreated
	if res.Updated {
		status = http.StatusOK
	}
	respond.JSON(w, status, bidResultView(res))
}

// ListForJob handles GET /api/jobs/{jobID}/bids
func (h *BidHandler) ListForJob(w http.ResponseWriter, r *http.Request) {
	a, err := actor(r)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	bids, err := h.engine.ListBidsForJob(r.Context(), a, chi.URLParam(r, "jobID"))
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, bidViews(bids))
}

// CheckMine handles GET /api/jobs/{jobID}/bids/mine
func (h *BidHandler) CheckMine(w http.ResponseWriter, r *http.Request) {
	a, err := actor(r)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	has, bid, err := h.engine.CheckBid(r.Context(), a, chi.URLParam(r, "jobID"))
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	resp := struct {
		HasBid bool     `json:"hasBid"`
		Bid    *BidView `json:"bid,omitempty"`
	}{HasBid: has}
	if bid != nil {
		v := bidView(bid)
		resp.Bid = &v
	}
	respond.JSON(w, http.StatusOK, resp)
}

// ListMine handles GET /api/bids/mine
func (h *BidHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	a, err := actor(r)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	bids, err := h.engine.ListBidsForWriter(r.Context(), a)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	out := make([]WriterBidView, 0, len(bids))
	for i := range bids {
		out = append(out, WriterBidView{
			BidView:        bidView(&bids[i].Bid),
			JobDescription: bids[i].JobDescription,
			JobInProgress:  bids[i].JobInProgress,
		})
	}
	respond.JSON(w, http.StatusOK, out)
}

// ListAccepted handles GET /api/bids/accepted
func (h *BidHandler) ListAccepted(w http.ResponseWriter, r *http.Request) {
	a, err := actor(r)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	bids, err := h.engine.ListAcceptedBids(r.Context(), a)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, bidViews(bids))
}

// ListForEmployer handles GET /api/employer/bids
func (h *BidHandler) ListForEmployer(w http.ResponseWriter, r *http.Request) {
	a, err := actor(r)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	groups, err := h.engine.ListJobsWithBidsForEmployer(r.Context(), a)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, jobBidsViews(groups))
}

type bidTransition func(*service.BidEngine, *http.Request, service.Actor, string) (*service.BidResult, error)

func (h *BidHandler) transition(fn bidTransition) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := actor(r)
		if err != nil {
			respond.Error(w, h.logger, err)
			return
		}
		res, err := fn(h.engine, r, a, chi.URLParam(r, "bidID"))
		if err != nil {
			respond.Error(w, h.logger, err)
			return
		}
		respond.JSON(w, http.StatusOK, bidResultView(res))
	}
}

// Accept handles POST /api/bids/{bidID}/accept
func (h *BidHandler) Accept(w http.ResponseWriter, r *http.Request) {
	h.transition(func(e *service.BidEngine, r *http.Request, a service.Actor, id string) (*service.BidResult, error) {
		return e.AcceptBid(r.Context(), a, id)
	})(w, r)
}

// Decline handles POST /api/bids/{bidID}/decline
func (h *BidHandler) Decline(w http.ResponseWriter, r *http.Request) {
	h.transition(func(e *service.BidEngine, r *http.Request, a service.Actor, id string) (*service.BidResult, error) {
		return e.DeclineBid(r.Context(), a, id)
	})(w, r)
}

// Cancel handles POST /api/bids/{bidID}/cancel
func (h *BidHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(func(e *service.BidEngine, r *http.Request, a service.Actor, id string) (*service.BidResult, error) {
		return e.CancelBid(r.Context(), a, id)
	})(w, r)
}
