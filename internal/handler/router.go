package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/mmeshcher/chatbox-ledger/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api/user", func(r chi.Router) {
		r.Use(h.authMiddleware.Middleware)

		r.Get("/balance", h.GetBalance)

		r.Post("/deposits", h.CreateDeposit)
		r.Get("/deposits", h.GetDeposits)
		r.Get("/deposits/monthly", h.GetMonthlyDeposits)

		r.Get("/vouchers", h.GetVouchers)
		r.Delete("/vouchers/{id}", h.HideVoucher)

		r.Post("/orders", h.CreateOrder)
		r.Get("/orders", h.GetOrders)
		r.Get("/orders/{id}", h.GetOrder)
		r.Get("/orders/code/{code}", h.GetOrderByCode)
		r.Post("/orders/{id}/status", h.TransitionOrder)
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(custommiddleware.AdminOnly(h.adminToken))

		r.Post("/sessions/{userID}", h.OpenSession)

		r.Post("/wallets/{userID}/credit", h.CreditWallet)
		r.Post("/wallets/{userID}/debit", h.DebitWallet)

		r.Get("/deposits", h.GetAllDeposits)
		r.Post("/deposits/{code}/confirm", h.ConfirmDeposit)
		r.Post("/deposits/{code}/reject", h.RejectDeposit)

		r.Post("/vouchers", h.IssueVoucher)
		r.Get("/vouchers", h.GetAllVouchers)
		r.Post("/vouchers/sync", h.SyncTierVouchers)
		r.Post("/vouchers/monthly", h.IssueMonthlyVouchers)
		r.Put("/vouchers/{id}", h.UpdateVoucher)
		r.Delete("/vouchers/{id}", h.DeactivateVoucher)

		r.Get("/orders", h.GetAllOrders)
		r.Post("/orders/{id}/status", h.ForceTransition)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
