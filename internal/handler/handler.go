// Package handler содержит HTTP-адаптер над расчётным ядром.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/mmeshcher/chatbox-ledger/internal/apperr"
	"github.com/mmeshcher/chatbox-ledger/internal/middleware"
	"github.com/mmeshcher/chatbox-ledger/internal/model"
	"github.com/mmeshcher/chatbox-ledger/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	OpenWallet(ctx context.Context, userID int64) (*model.Wallet, error)
	GetWallet(ctx context.Context, userID int64) (*model.Wallet, error)
	Credit(ctx context.Context, userID, amount int64) (*model.Wallet, error)
	Debit(ctx context.Context, userID, amount int64) (*model.Wallet, error)

	CreateDepositIntent(ctx context.Context, userID, amount int64, method string, kind model.DepositKind) (*model.Deposit, error)
	ConfirmDeposit(ctx context.Context, code string) (*model.Deposit, error)
	RejectDeposit(ctx context.Context, code string) (*model.Deposit, error)
	ListDeposits(ctx context.Context, userID int64) ([]model.Deposit, error)
	ListAllDeposits(ctx context.Context) ([]model.Deposit, error)
	MonthlyDepositStats(ctx context.Context, userID int64) ([]model.MonthlyDeposit, error)

	IssueVoucher(ctx context.Context, in service.VoucherInput) (*model.Voucher, error)
	ListVouchers(ctx context.Context, userID int64) ([]model.Voucher, error)
	ListAllVouchers(ctx context.Context) ([]model.Voucher, error)
	UpdateVoucher(ctx context.Context, voucherID int64, upd service.VoucherUpdate) (*model.Voucher, error)
	DeactivateVoucher(ctx context.Context, voucherID int64) (*model.Voucher, error)
	HideVoucher(ctx context.Context, voucherID, userID int64) error
	SyncTierVouchers(ctx context.Context) (int, error)
	IssueMonthlyVouchers(ctx context.Context) (int, error)

	CreateOrder(ctx context.Context, in service.OrderInput) (*model.Order, error)
	TransitionOrder(ctx context.Context, orderID int64, target model.OrderStatus, actorID int64) (*model.Order, error)
	ForceTransition(ctx context.Context, orderID int64, target model.OrderStatus) (*model.Order, error)
	GetOrder(ctx context.Context, orderID, userID int64) (*model.Order, error)
	GetOrderByCode(ctx context.Context, code string, userID int64) (*model.Order, error)
	ListOrders(ctx context.Context, userID int64, party model.Party) ([]model.Order, error)
	ListAllOrders(ctx context.Context) ([]model.Order, error)
}

// Handler реализует HTTP-обработчики API.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	adminToken     string
	validate       *validator.Validate
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, adminToken string) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		adminToken:     adminToken,
		validate:       validator.New(validator.WithRequiredStructEnabled()),
	}
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// errorStatuses сопоставляет типизированные ошибки ядра с HTTP-статусами.
var errorStatuses = []struct {
	err    error
	status int
}{
	{apperr.ErrNotFound, http.StatusNotFound},
	{apperr.ErrValidation, http.StatusBadRequest},
	{apperr.ErrInsufficientFunds, http.StatusPaymentRequired},
	{apperr.ErrConflict, http.StatusConflict},
	{apperr.ErrInvalidTransition, http.StatusConflict},
	{apperr.ErrVoucherInvalid, http.StatusUnprocessableEntity},
	{apperr.ErrInsufficientStock, http.StatusUnprocessableEntity},
	{apperr.ErrProductUnavailable, http.StatusUnprocessableEntity},
	{apperr.ErrSelfTrade, http.StatusUnprocessableEntity},
	{apperr.ErrUnauthorized, http.StatusForbidden},
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	for _, e := range errorStatuses {
		if errors.Is(err, e.err) {
			resp := errorResponse{Error: e.err.Error()}
			if reason, ok := apperr.VoucherReasonOf(err); ok {
				resp.Reason = string(reason)
			}
			h.writeJSON(w, e.status, resp)
			return
		}
	}

	if errors.Is(err, context.Canceled) {
		return
	}

	h.logger.Error("request failed", zap.Error(err), zap.String("path", r.URL.Path))
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("encode response", zap.Error(err))
	}
}

// writeList отвечает 204 на пустой список, иначе 200 со списком.
func writeList[T any](h *Handler, w http.ResponseWriter, items []T) {
	if len(items) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.writeJSON(w, http.StatusOK, items)
}

// decode читает JSON-тело и проверяет его теги validate.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: apperr.ErrValidation.Error(), Reason: "malformed json"})
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: apperr.ErrValidation.Error(), Reason: err.Error()})
		return false
	}
	return true
}

func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
	}
	return id, ok
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
