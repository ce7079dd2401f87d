package users

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-accounts/internal/platform/httpx"
)

// Handler manages account maintenance endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
	authn     func(http.Handler) http.Handler
}

// NewHandler builds Handler instance. authn guards every route.
func NewHandler(logger *slog.Logger, service *Service, authn func(http.Handler) http.Handler) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(validator.WithRequiredStructEnabled()),
		authn:     authn,
	}
}

// updateRequest mirrors UpdateInput; absent and empty fields are equivalent.
type updateRequest struct {
	Name     string `json:"name" validate:"omitempty,max=200"`
	Email    string `json:"email" validate:"omitempty,email,max=254"`
	Password string `json:"password" validate:"omitempty,max=72"`
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		if h.authn != nil {
			r.Use(h.authn)
		}
		r.Get("/", h.listAccounts)
		r.Get("/{id}", h.getAccount)
		r.Put("/{id}", h.updateAccount)
		r.Delete("/{id}", h.deleteAccount)
	})
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.List(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, accounts)
}

func (h *Handler) getAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) updateAccount(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := httpx.DecodeValid(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	account, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), UpdateInput(req))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) deleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
