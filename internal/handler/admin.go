package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/chatbox-ledger/internal/model"
	"github.com/mmeshcher/chatbox-ledger/internal/service"
	"github.com/mmeshcher/chatbox-ledger/internal/validation"
)

// OpenSession открывает кошелёк пользователя и выдаёт ему cookie идентификации.
// Маршрут заменяет внешний сервис сессий при локальном запуске.
func (h *Handler) OpenSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}

	wallet, err := h.service.OpenWallet(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	h.writeJSON(w, http.StatusOK, wallet)
}

// ConfirmDeposit подтверждает пополнение. Повторный вызов ничего не меняет.
func (h *Handler) ConfirmDeposit(w http.ResponseWriter, r *http.Request) {
	h.settleDeposit(w, r, h.service.ConfirmDeposit)
}

// RejectDeposit отклоняет ожидающее пополнение.
func (h *Handler) RejectDeposit(w http.ResponseWriter, r *http.Request) {
	h.settleDeposit(w, r, h.service.RejectDeposit)
}

func (h *Handler) settleDeposit(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, code string) (*model.Deposit, error)) {
	code := chi.URLParam(r, "code")
	if !validation.IsValidCode(code) {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	d, err := op(r.Context(), code)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, d)
}

type amountRequest struct {
	Amount int64 `json:"amount" validate:"gt=0"`
}

// CreditWallet зачисляет средства административно.
func (h *Handler) CreditWallet(w http.ResponseWriter, r *http.Request) {
	h.adjustWallet(w, r, h.service.Credit)
}

// DebitWallet списывает средства административно.
func (h *Handler) DebitWallet(w http.ResponseWriter, r *http.Request) {
	h.adjustWallet(w, r, h.service.Debit)
}

func (h *Handler) adjustWallet(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, userID, amount int64) (*model.Wallet, error)) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}

	var req amountRequest
	if !h.decode(w, r, &req) {
		return
	}

	wallet, err := op(r.Context(), userID, req.Amount)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, wallet)
}

type voucherRequest struct {
	Code            string          `json:"code" validate:"omitempty,max=64"`
	Description     string          `json:"description" validate:"max=255"`
	OwnerID         *int64          `json:"owner_id" validate:"omitempty,gt=0"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	DiscountAmount  int64           `json:"discount_amount" validate:"gte=0"`
	MinOrderAmount  int64           `json:"min_order_amount" validate:"gte=0"`
	UsageLimit      int             `json:"usage_limit" validate:"gte=0"`
	ExpirationDate  *time.Time      `json:"expiration_date"`
}

// IssueVoucher выдаёт ваучер вручную.
func (h *Handler) IssueVoucher(w http.ResponseWriter, r *http.Request) {
	var req voucherRequest
	if !h.decode(w, r, &req) {
		return
	}

	v, err := h.service.IssueVoucher(r.Context(), service.VoucherInput{
		Code:            req.Code,
		Description:     req.Description,
		OwnerID:         req.OwnerID,
		DiscountPercent: req.DiscountPercent,
		DiscountAmount:  req.DiscountAmount,
		MinOrderAmount:  req.MinOrderAmount,
		UsageLimit:      req.UsageLimit,
		ExpirationDate:  req.ExpirationDate,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, v)
}

// GetAllVouchers возвращает все ваучеры.
func (h *Handler) GetAllVouchers(w http.ResponseWriter, r *http.Request) {
	vouchers, err := h.service.ListAllVouchers(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeList(h, w, vouchers)
}

type voucherUpdateRequest struct {
	Description    *string    `json:"description"`
	IsActive       *bool      `json:"is_active"`
	UsageLimit     *int       `json:"usage_limit"`
	ExpirationDate *time.Time `json:"expiration_date"`
}

// UpdateVoucher правит описание, активность, срок и лимит ваучера.
func (h *Handler) UpdateVoucher(w http.ResponseWriter, r *http.Request) {
	voucherID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req voucherUpdateRequest
	if !h.decode(w, r, &req) {
		return
	}

	v, err := h.service.UpdateVoucher(r.Context(), voucherID, service.VoucherUpdate{
		Description:    req.Description,
		IsActive:       req.IsActive,
		UsageLimit:     req.UsageLimit,
		ExpirationDate: req.ExpirationDate,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, v)
}

// DeactivateVoucher выключает ваучер, не удаляя его.
func (h *Handler) DeactivateVoucher(w http.ResponseWriter, r *http.Request) {
	voucherID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	v, err := h.service.DeactivateVoucher(r.Context(), voucherID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, v)
}

// GetAllDeposits возвращает пополнения всех пользователей.
func (h *Handler) GetAllDeposits(w http.ResponseWriter, r *http.Request) {
	deposits, err := h.service.ListAllDeposits(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeList(h, w, deposits)
}

// GetAllOrders возвращает все заказы.
func (h *Handler) GetAllOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.ListAllOrders(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeList(h, w, orders)
}

type batchResponse struct {
	Issued int `json:"issued"`
}

// SyncTierVouchers досоздаёт недостающие ваучеры уровней.
func (h *Handler) SyncTierVouchers(w http.ResponseWriter, r *http.Request) {
	h.runBatch(w, r, h.service.SyncTierVouchers)
}

// IssueMonthlyVouchers выдаёт ежемесячные ваучеры за текущий месяц.
func (h *Handler) IssueMonthlyVouchers(w http.ResponseWriter, r *http.Request) {
	h.runBatch(w, r, h.service.IssueMonthlyVouchers)
}

// runBatch отвечает числом выданных ваучеров. Ошибка уходит клиенту, только если не выдано ничего.
func (h *Handler) runBatch(w http.ResponseWriter, r *http.Request, op func(ctx context.Context) (int, error)) {
	issued, err := op(r.Context())
	if err != nil && issued == 0 {
		h.writeError(w, r, err)
		return
	}
	if err != nil {
		h.logger.Warn("batch partially failed", zap.Error(err), zap.Int("issued", issued))
	}
	h.writeJSON(w, http.StatusOK, batchResponse{Issued: issued})
}

// ForceTransition переводит заказ в состояние без проверки участника и предшественника.
func (h *Handler) ForceTransition(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req statusRequest
	if !h.decode(w, r, &req) {
		return
	}

	o, err := h.service.ForceTransition(r.Context(), orderID, model.OrderStatus(req.Status))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, o)
}
