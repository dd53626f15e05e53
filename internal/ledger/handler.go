package ledger

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/saldo-ledger/saldo/internal/ledger/money"
	lshared "github.com/saldo-ledger/saldo/internal/ledger/shared"
	"github.com/saldo-ledger/saldo/internal/platform/httpx"
)

// Handler exposes the ledger facade over HTTP.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger}
}

// MountRoutes attaches the ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/transfers", h.createTransfer)
	r.Post("/transfers/batch", h.createTransferBatch)

	r.Post("/accounts", h.createAccount)
	r.Get("/accounts", h.searchAccounts)
	r.Get("/accounts/{id}", h.getAccount)
	r.Patch("/accounts/{id}", h.updateAccount)
	r.Get("/accounts/{id}/balance", h.getBalance)

	r.Get("/entries/{id}", h.getEntry)
	r.Post("/entries/{id}/post", h.postEntry)
	r.Post("/entries/{id}/void", h.voidEntry)
	r.Post("/entries/{id}/reverse", h.reverseEntry)
}

func (h *Handler) createTransfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	entryID, err := h.service.Transfer(r.Context(), req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]string{"entryId": entryID})
}

func (h *Handler) createTransferBatch(w http.ResponseWriter, r *http.Request) {
	var reqs []TransferRequest
	if err := httpx.DecodeJSON(r, &reqs); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	ids, err := h.service.TransferBatch(r.Context(), reqs)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string][]string{"entryIds": ids})
}

func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	view, err := h.service.CreateAccount(r.Context(), req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, view)
}

func (h *Handler) searchAccounts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	req := SearchAccountsRequest{
		Code:   query.Get("code"),
		Type:   query.Get("type"),
		Status: query.Get("status"),
	}
	req.Limit, _ = strconv.Atoi(query.Get("limit"))
	req.Offset, _ = strconv.Atoi(query.Get("offset"))
	views, err := h.service.SearchAccounts(r.Context(), req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, views)
}

func (h *Handler) getAccount(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.GetAccount(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) updateAccount(w http.ResponseWriter, r *http.Request) {
	var req UpdateAccountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	view, err := h.service.UpdateAccount(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) getBalance(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.GetBalance(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) getEntry(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.GetEntry(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) postEntry(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Post(r.Context(), chi.URLParam(r, "id"), actorID(r)); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "POSTED"})
}

func (h *Handler) voidEntry(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Void(r.Context(), chi.URLParam(r, "id"), actorID(r)); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "VOID"})
}

func (h *Handler) reverseEntry(w http.ResponseWriter, r *http.Request) {
	reversalID, err := h.service.Reverse(r.Context(), chi.URLParam(r, "id"), actorID(r))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]string{"entryId": reversalID})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, lshared.ErrInvalidCommand), errors.Is(err, money.ErrInvalidAmount):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
	case errors.Is(err, lshared.ErrAccountNotFound), errors.Is(err, lshared.ErrEntryNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, lshared.ErrAccountExists):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, lshared.ErrEntryNotPending),
		errors.Is(err, lshared.ErrAccountFrozen),
		errors.Is(err, lshared.ErrInflowLocked),
		errors.Is(err, lshared.ErrOutflowLocked),
		errors.Is(err, lshared.ErrImbalance),
		errors.Is(err, lshared.ErrInsufficientFunds):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Rejected", err.Error())
	case errors.Is(err, lshared.ErrConcurrency):
		httpx.Problem(w, http.StatusConflict, "Concurrent Update", err.Error())
	default:
		h.logger.Error("ledger request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func actorID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Actor-Id"))
}
