package purchasing

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/altamar-retail/altamar-retail/internal/platform/httpx"
)

// Handler manages purchase order endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers purchasing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/purchase-orders", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/{id}", h.get)
		r.Put("/{id}/expenses", h.updateExpenses)
		r.Post("/{id}/affect", h.affect)
		r.Delete("/{id}", h.delete)
	})
}

type createPORequest struct {
	Number        string          `json:"number"`
	Supplier      string          `json:"supplier" validate:"required"`
	OrderDate     string          `json:"order_date"`
	ImportRate    *float64        `json:"import_rate"`
	DayRate       *float64        `json:"day_rate"`
	DiscountTotal *float64        `json:"discount_total"`
	Freight       *float64        `json:"freight"`
	ImportDuties  *float64        `json:"import_duties"`
	OtherCosts    *float64        `json:"other_costs"`
	Lines         []poLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type poLineRequest struct {
	ProductID   int64   `json:"product_id"`
	ProductName string  `json:"product_name"`
	Qty         float64 `json:"qty" validate:"gt=0"`
	UnitCost    float64 `json:"unit_cost" validate:"gte=0"`
}

type expensesRequest struct {
	ImportRate    *float64 `json:"import_rate"`
	DayRate       *float64 `json:"day_rate"`
	DiscountTotal *float64 `json:"discount_total"`
	Freight       *float64 `json:"freight"`
	ImportDuties  *float64 `json:"import_duties"`
	OtherCosts    *float64 `json:"other_costs"`
}

type poResponse struct {
	Order PurchaseOrder  `json:"order"`
	Lines []PurchaseLine `json:"lines,omitempty"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createPORequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	orderDate := time.Now().UTC()
	if req.OrderDate != "" {
		parsed, err := time.Parse("2006-01-02", req.OrderDate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "order_date must be YYYY-MM-DD")
			return
		}
		orderDate = parsed
	}
	lines := make([]LineInput, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, LineInput{ProductID: l.ProductID, ProductName: l.ProductName, Qty: l.Qty, UnitCost: l.UnitCost})
	}
	po, err := h.service.CreatePurchaseOrder(r.Context(), CreatePOInput{
		Number:        req.Number,
		Supplier:      req.Supplier,
		OrderDate:     orderDate,
		ImportRate:    req.ImportRate,
		DayRate:       req.DayRate,
		DiscountTotal: req.DiscountTotal,
		Freight:       req.Freight,
		ImportDuties:  req.ImportDuties,
		OtherCosts:    req.OtherCosts,
		Lines:         lines,
	})
	if err != nil {
		h.respondError(w, "create purchase order", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, poResponse{Order: po})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	limit := httpx.QueryInt(r, "limit", 50)
	orders, err := h.service.ListPurchaseOrders(r.Context(), limit)
	if err != nil {
		h.respondError(w, "list purchase orders", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	po, lines, err := h.service.GetPurchaseOrder(r.Context(), id)
	if err != nil {
		h.respondError(w, "get purchase order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, poResponse{Order: po, Lines: lines})
}

func (h *Handler) updateExpenses(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	var req expensesRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	po, err := h.service.UpdateExpenses(r.Context(), id, ExpensesInput{
		ImportRate:    req.ImportRate,
		DayRate:       req.DayRate,
		DiscountTotal: req.DiscountTotal,
		Freight:       req.Freight,
		ImportDuties:  req.ImportDuties,
		OtherCosts:    req.OtherCosts,
	})
	if err != nil {
		h.respondError(w, "update expenses", err)
		return
	}
	httpx.JSON(w, http.StatusOK, poResponse{Order: po})
}

func (h *Handler) affect(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	po, err := h.service.Affect(r.Context(), id, httpx.ActorID(r))
	if err != nil {
		h.respondError(w, "affect purchase order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, poResponse{Order: po})
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.respondError(w, "delete purchase order", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondError(w http.ResponseWriter, what string, err error) {
	classified := classify(err)
	if classified == nil {
		h.logger.Error(what, slog.Any("error", err))
		classified = err
	}
	httpx.RespondError(w, classified)
}

// classify wraps purchasing sentinels into the shared HTTP error classes.
// Unknown errors return nil and render as an opaque 500.
func classify(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return httpx.Wrap(httpx.ErrNotFound, err)
	case errors.Is(err, ErrAlreadyAffected), errors.Is(err, ErrAffectedImmutable):
		return httpx.Wrap(httpx.ErrConflict, err)
	case errors.Is(err, ErrValidation), errors.Is(err, ErrMissingExpenses),
		errors.Is(err, ErrZeroGross), errors.Is(err, ErrMissingExchangeRate):
		return httpx.Wrap(httpx.ErrUnprocessable, err)
	}
	return nil
}
