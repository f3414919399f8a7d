package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mmeshcher/chatbox-ledger/internal/model"
	"github.com/mmeshcher/chatbox-ledger/internal/service"
)

type walletResponse struct {
	Balance           int64 `json:"balance"`
	LifetimeDeposited int64 `json:"lifetime_deposited"`
}

// GetBalance возвращает баланс и накопленную сумму пополнений текущего пользователя.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	wallet, err := h.service.GetWallet(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, walletResponse{Balance: wallet.Balance, LifetimeDeposited: wallet.LifetimeDeposited})
}

type depositRequest struct {
	Amount int64  `json:"amount" validate:"gt=0"`
	Method string `json:"method" validate:"required,max=32"`
	Kind   string `json:"kind" validate:"omitempty,oneof=DEPOSIT DONATE"`
}

// CreateDeposit создаёт намерение пополнения и возвращает платёжную ссылку.
func (h *Handler) CreateDeposit(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req depositRequest
	if !h.decode(w, r, &req) {
		return
	}

	kind := model.DepositKind(req.Kind)
	if kind == "" {
		kind = model.DepositKindDeposit
	}

	d, err := h.service.CreateDepositIntent(r.Context(), userID, req.Amount, req.Method, kind)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, d)
}

// GetDeposits возвращает историю пополнений текущего пользователя.
func (h *Handler) GetDeposits(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	deposits, err := h.service.ListDeposits(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeList(h, w, deposits)
}

// GetMonthlyDeposits возвращает суммы успешных пополнений по месяцам.
func (h *Handler) GetMonthlyDeposits(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	stats, err := h.service.MonthlyDepositStats(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeList(h, w, stats)
}

// GetVouchers возвращает ваучеры, доступные текущему пользователю.
func (h *Handler) GetVouchers(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	vouchers, err := h.service.ListVouchers(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeList(h, w, vouchers)
}

// HideVoucher скрывает личный ваучер из списка пользователя.
func (h *Handler) HideVoucher(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	voucherID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.HideVoucher(r.Context(), voucherID, userID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type orderRequest struct {
	ProductID       int64  `json:"product_id" validate:"gt=0"`
	Quantity        int    `json:"quantity" validate:"gt=0,lte=1000"`
	VoucherCode     string `json:"voucher_code" validate:"omitempty,max=64"`
	ShippingAddress string `json:"shipping_address" validate:"required,max=500"`
	Note            string `json:"note" validate:"max=1000"`
}

// CreateOrder оформляет заказ и удерживает оплату покупателя.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req orderRequest
	if !h.decode(w, r, &req) {
		return
	}

	o, err := h.service.CreateOrder(r.Context(), service.OrderInput{
		BuyerID:         userID,
		ProductID:       req.ProductID,
		Quantity:        req.Quantity,
		VoucherCode:     req.VoucherCode,
		ShippingAddress: req.ShippingAddress,
		Note:            req.Note,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, o)
}

// GetOrders возвращает заказы, где пользователь покупатель или продавец.
// Параметр role=buyer|seller сужает выборку.
func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	party := model.Party(r.URL.Query().Get("role"))
	switch party {
	case model.PartyNone, model.PartyBuyer, model.PartySeller:
	default:
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	orders, err := h.service.ListOrders(r.Context(), userID, party)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeList(h, w, orders)
}

// GetOrderByCode ищет заказ участника по номеру с контрольной цифрой.
func (h *Handler) GetOrderByCode(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	o, err := h.service.GetOrderByCode(r.Context(), chi.URLParam(r, "code"), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, o)
}

// GetOrder возвращает заказ, если пользователь его покупатель или продавец.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	orderID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	o, err := h.service.GetOrder(r.Context(), orderID, userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, o)
}

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=PREPARING SHIPPED DELIVERED COMPLETED CANCELLED RETURN_REQUESTED RETURNED"`
}

// TransitionOrder переводит заказ в новое состояние от имени текущего пользователя.
func (h *Handler) TransitionOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	orderID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req statusRequest
	if !h.decode(w, r, &req) {
		return
	}

	o, err := h.service.TransitionOrder(r.Context(), orderID, model.OrderStatus(req.Status), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, o)
}
