package clients

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/altamar-retail/altamar-retail/internal/platform/httpx"
	"github.com/altamar-retail/altamar-retail/internal/shared"
)

// Handler manages client account endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers client routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/clients", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/{id}", h.get)
		r.Post("/{id}/payments", h.registerPayment)
		r.Post("/{id}/credits", h.grantCredit)
		r.Get("/{id}/statement", h.statement)
		r.Get("/{id}/statement.csv", h.statementCSV)
	})
	r.Post("/clients-reconcile", h.reconcile)
}

type createClientRequest struct {
	Name string `json:"name" validate:"required,min=2"`
}

type amountRequest struct {
	Amount    float64 `json:"amount" validate:"gt=0"`
	Reference string  `json:"reference" validate:"required"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createClientRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	client, err := h.service.CreateClient(r.Context(), req.Name)
	if err != nil {
		h.respondError(w, "create client", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, client)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	limit := httpx.QueryInt(r, "limit", 100)
	items, err := h.service.ListClients(r.Context(), limit)
	if err != nil {
		h.respondError(w, "list clients", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"clients": items})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	client, err := h.service.GetClient(r.Context(), id)
	if err != nil {
		h.respondError(w, "get client", err)
		return
	}
	httpx.JSON(w, http.StatusOK, client)
}

func (h *Handler) registerPayment(w http.ResponseWriter, r *http.Request) {
	h.applyAmount(w, r, "register payment", func(in PaymentInput) (Client, error) {
		return h.service.RegisterPayment(r.Context(), in)
	})
}

func (h *Handler) grantCredit(w http.ResponseWriter, r *http.Request) {
	h.applyAmount(w, r, "grant credit", func(in PaymentInput) (Client, error) {
		return h.service.GrantCredit(r.Context(), CreditGrantInput(in))
	})
}

func (h *Handler) applyAmount(w http.ResponseWriter, r *http.Request, what string, apply func(PaymentInput) (Client, error)) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	var req amountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	client, err := apply(PaymentInput{
		ClientID:  id,
		Amount:    req.Amount,
		Reference: req.Reference,
		ActorID:   httpx.ActorID(r),
	})
	if err != nil {
		h.respondError(w, what, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, client)
}

func (h *Handler) statement(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	limit := httpx.QueryInt(r, "limit", 500)
	st, err := h.service.Statement(r.Context(), id, limit)
	if err != nil {
		h.respondError(w, "client statement", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"client": st.Client, "opening_balance": st.Opening, "lines": st.Lines})
}

func (h *Handler) statementCSV(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	limit := httpx.QueryInt(r, "limit", 5000)
	st, err := h.service.Statement(r.Context(), id, limit)
	if err != nil {
		h.respondError(w, "client statement csv", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=statement-%d.csv", st.Client.ID))
	if err := WriteStatementCSV(w, st); err != nil {
		h.logger.Error("write statement csv", slog.Any("error", err), slog.Int64("client_id", id))
	}
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	divergences, err := h.service.Reconcile(r.Context())
	if err != nil && !errors.Is(err, shared.ErrProjectionDivergence) {
		h.respondError(w, "reconcile clients", err)
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
	case errors.Is(err, ErrClientNotFound):
		return httpx.Wrap(httpx.ErrNotFound, err)
	case errors.Is(err, ErrVersionConflict):
		return httpx.Wrap(httpx.ErrConflict, err)
	case errors.Is(err, shared.ErrIdempotencyConflict):
		return httpx.Wrap(httpx.ErrDuplicate, err)
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrValidation):
		return httpx.Wrap(httpx.ErrUnprocessable, err)
	}
	return nil
}
