package inventory

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/altamar-retail/altamar-retail/internal/platform/httpx"
	"github.com/altamar-retail/altamar-retail/internal/shared"
)

// Handler manages stock endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
		r.Get("/{id}/stock-card", h.stockCard)
	})
	r.Post("/adjustments", h.postAdjustment)
	r.Post("/inventory/reconcile", h.reconcile)
}

type adjustmentRequest struct {
	ProductID     int64   `json:"product_id" validate:"required"`
	Qty           float64 `json:"qty" validate:"required"`
	UnitCostUSD   float64 `json:"unit_cost_usd" validate:"gte=0"`
	UnitCostLocal float64 `json:"unit_cost_local" validate:"gte=0"`
	Reference     string  `json:"reference" validate:"required"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	limit := httpx.QueryInt(r, "limit", 100)
	products, err := h.service.ListProducts(r.Context(), limit)
	if err != nil {
		h.respondError(w, "list products", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"products": products})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	product, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		h.respondError(w, "get product", err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) stockCard(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	limit := httpx.QueryInt(r, "limit", 500)
	lines, err := h.service.StockCard(r.Context(), id, limit)
	if err != nil {
		h.respondError(w, "stock card", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"product_id": id, "lines": lines})
}

func (h *Handler) postAdjustment(w http.ResponseWriter, r *http.Request) {
	var req adjustmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	product, err := h.service.PostAdjustment(r.Context(), AdjustmentInput{
		ProductID:     req.ProductID,
		Qty:           req.Qty,
		UnitCostUSD:   req.UnitCostUSD,
		UnitCostLocal: req.UnitCostLocal,
		Reference:     req.Reference,
		ActorID:       httpx.ActorID(r),
	})
	if err != nil {
		h.respondError(w, "post adjustment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, product)
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	divergences, err := h.service.Reconcile(r.Context())
	if err != nil && !errors.Is(err, shared.ErrProjectionDivergence) {
		h.respondError(w, "reconcile inventory", err)
		return
	}
	status := http.StatusOK
	if len(divergences) > 0 {
		status = http.StatusConflict
	}
	httpx.JSON(w, status, map[string]any{"divergences": divergences})
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
	case errors.Is(err, ErrProductNotFound):
		return httpx.Wrap(httpx.ErrNotFound, err)
	case errors.Is(err, ErrNegativeStock), errors.Is(err, ErrVersionConflict):
		return httpx.Wrap(httpx.ErrConflict, err)
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidUnitCost):
		return httpx.Wrap(httpx.ErrUnprocessable, err)
	}
	return nil
}
