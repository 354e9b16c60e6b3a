package sales

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/altamar-retail/altamar-retail/internal/clients"
	"github.com/altamar-retail/altamar-retail/internal/inventory"
	"github.com/altamar-retail/altamar-retail/internal/platform/httpx"
	"github.com/altamar-retail/altamar-retail/internal/shared"
)

// Handler manages sale endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers sales routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/sales", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/{id}", h.get)
		r.Post("/{id}/cancel", h.cancel)
	})
}

type createSaleRequest struct {
	Number      string            `json:"number"`
	ClientID    int64             `json:"client_id"`
	Method      string            `json:"method" validate:"required,oneof=CASH CREDIT"`
	DownPayment float64           `json:"down_payment" validate:"gte=0"`
	Lines       []saleLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type saleLineRequest struct {
	ProductID int64   `json:"product_id" validate:"required"`
	Qty       float64 `json:"qty" validate:"gt=0"`
	UnitPrice float64 `json:"unit_price" validate:"gte=0"`
}

type saleResponse struct {
	Sale  Sale       `json:"sale"`
	Lines []SaleLine `json:"lines,omitempty"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createSaleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	lines := make([]SaleLineInput, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, SaleLineInput{ProductID: l.ProductID, Qty: l.Qty, UnitPrice: l.UnitPrice})
	}
	sale, err := h.service.CreateSale(r.Context(), CreateSaleInput{
		Number:      req.Number,
		ClientID:    req.ClientID,
		Method:      PaymentMethod(req.Method),
		DownPayment: req.DownPayment,
		ActorID:     httpx.ActorID(r),
		Lines:       lines,
	})
	if err != nil {
		h.respondError(w, "create sale", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, saleResponse{Sale: sale})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	limit := httpx.QueryInt(r, "limit", 50)
	sales, err := h.service.ListSales(r.Context(), limit)
	if err != nil {
		h.respondError(w, "list sales", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"sales": sales})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	sale, lines, err := h.service.GetSale(r.Context(), id)
	if err != nil {
		h.respondError(w, "get sale", err)
		return
	}
	httpx.JSON(w, http.StatusOK, saleResponse{Sale: sale, Lines: lines})
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	sale, err := h.service.Cancel(r.Context(), id, httpx.ActorID(r))
	if err != nil {
		h.respondError(w, "cancel sale", err)
		return
	}
	httpx.JSON(w, http.StatusOK, saleResponse{Sale: sale})
}

func (h *Handler) respondError(w http.ResponseWriter, what string, err error) {
	classified := classify(err)
	if classified == nil {
		h.logger.Error(what, slog.Any("error", err))
		classified = err
	}
	httpx.RespondError(w, classified)
}

func classify(err error) error {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, inventory.ErrProductNotFound),
		errors.Is(err, clients.ErrClientNotFound):
		return httpx.Wrap(httpx.ErrNotFound, err)
	case errors.Is(err, shared.ErrIdempotencyConflict):
		return httpx.Wrap(httpx.ErrDuplicate, err)
	case errors.Is(err, ErrAlreadyCancelled), errors.Is(err, inventory.ErrNegativeStock),
		errors.Is(err, inventory.ErrVersionConflict):
		return httpx.Wrap(httpx.ErrConflict, err)
	case errors.Is(err, ErrValidation):
		return httpx.Wrap(httpx.ErrUnprocessable, err)
	}
	return nil
}
