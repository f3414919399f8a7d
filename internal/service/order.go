package service

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/chatbox-ledger/internal/apperr"
	"github.com/mmeshcher/chatbox-ledger/internal/escrow"
	"github.com/mmeshcher/chatbox-ledger/internal/model"
	"github.com/mmeshcher/chatbox-ledger/internal/notify"
	"github.com/mmeshcher/chatbox-ledger/internal/repository"
	"github.com/mmeshcher/chatbox-ledger/internal/validation"
	"github.com/mmeshcher/chatbox-ledger/internal/voucher"
)

const maxShippingAddressLen = 500

// OrderInput описывает заказ покупателя.
type OrderInput struct {
	BuyerID         int64
	ProductID       int64
	Quantity        int
	VoucherCode     string
	ShippingAddress string
	Note            string
}

func (in OrderInput) validate() error {
	switch {
	case in.BuyerID <= 0:
		return apperr.Validation("buyer id must be positive")
	case in.ProductID <= 0:
		return apperr.Validation("product id must be positive")
	case in.Quantity <= 0:
		return apperr.Validation("quantity must be positive")
	case strings.TrimSpace(in.ShippingAddress) == "":
		return apperr.Validation("shipping address is required")
	case len(in.ShippingAddress) > maxShippingAddressLen:
		return apperr.Validation("shipping address is too long")
	}
	return nil
}

// newOrderCode возвращает цифровой код заказа с контрольной цифрой Луна.
func (s *Service) newOrderCode() string {
	return validation.WithCheckDigit(fmt.Sprintf("%d%010d", s.now().Unix(), uuid.New().ID()))
}

// CreateOrder создаёт заказ и удерживает оплату. Погашение ваучера, списание
// с покупателя, уменьшение остатка и запись заказа выполняются атомарно.
// Блокировки берутся в порядке кошелёк, товар, ваучер.
func (s *Service) CreateOrder(ctx context.Context, in OrderInput) (*model.Order, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	var order *model.Order
	err := s.inTx(ctx, func(tx repository.Tx, out *outbox) error {
		order = nil

		if _, err := tx.LockWallet(ctx, in.BuyerID); err != nil {
			return err
		}

		p, err := tx.LockProduct(ctx, in.ProductID)
		if err != nil {
			return err
		}
		if p.Status != model.ProductStatusApproved {
			return fmt.Errorf("%w: product %d is %s", apperr.ErrProductUnavailable, p.ID, p.Status)
		}
		if p.Quantity < in.Quantity {
			return fmt.Errorf("%w: product %d has %d, requested %d", apperr.ErrInsufficientStock, p.ID, p.Quantity, in.Quantity)
		}
		if p.SellerID == in.BuyerID {
			return fmt.Errorf("%w: user %d owns product %d", apperr.ErrSelfTrade, in.BuyerID, p.ID)
		}

		if p.Price > math.MaxInt64/int64(in.Quantity) {
			return apperr.Validation("order total for %d x product %d overflows", in.Quantity, p.ID)
		}
		subtotal := p.Price * int64(in.Quantity)
		discount, final := int64(0), subtotal

		if in.VoucherCode != "" {
			v, err := tx.LockVoucherByCode(ctx, in.VoucherCode, in.BuyerID)
			if err != nil {
				return err
			}
			if err := voucher.Check(v, in.BuyerID, subtotal, s.now()); err != nil {
				return err
			}
			discount, final = voucher.Apply(v, subtotal)

			v.UsedCount++
			if err := tx.UpdateVoucher(ctx, v); err != nil {
				return err
			}
		}

		if _, err := s.debit(ctx, tx, in.BuyerID, final); err != nil {
			return err
		}

		p.Quantity -= in.Quantity
		if err := tx.UpdateProduct(ctx, p); err != nil {
			return err
		}

		o := &model.Order{
			Code:            s.newOrderCode(),
			BuyerID:         in.BuyerID,
			SellerID:        p.SellerID,
			ShopID:          p.ShopID,
			Items:           []model.OrderItem{{ProductID: p.ID, Quantity: in.Quantity, PriceAtPurchase: p.Price}},
			TotalAmount:     subtotal,
			DiscountAmount:  discount,
			FinalAmount:     final,
			VoucherCode:     in.VoucherCode,
			Status:          model.OrderStatusPreparing,
			ShippingAddress: strings.TrimSpace(in.ShippingAddress),
			Note:            in.Note,
			OrderDate:       s.now(),
		}
		if err := tx.InsertOrder(ctx, o); err != nil {
			return err
		}

		out.add(notify.KindOrderStatus, o.SellerID, "new order", map[string]any{
			"orderID": o.ID,
			"status":  string(o.Status),
		})
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("order created",
		zap.Int64("orderID", order.ID),
		zap.Int64("buyerID", order.BuyerID),
		zap.Int64("finalAmount", order.FinalAmount),
	)
	return order, nil
}

// TransitionOrder переводит заказ в target по инициативе участника.
func (s *Service) TransitionOrder(ctx context.Context, orderID int64, target model.OrderStatus, actorID int64) (*model.Order, error) {
	return s.transition(ctx, orderID, func(o *model.Order) (escrow.Step, error) {
		return escrow.Plan(o, target, actorID)
	})
}

// ForceTransition переводит заказ в target без проверки участника и предшественника.
// Денежный эффект применяется только пока средства удерживаются.
func (s *Service) ForceTransition(ctx context.Context, orderID int64, target model.OrderStatus) (*model.Order, error) {
	return s.transition(ctx, orderID, func(o *model.Order) (escrow.Step, error) {
		return escrow.PlanForced(o, target)
	})
}

func (s *Service) transition(ctx context.Context, orderID int64, plan func(o *model.Order) (escrow.Step, error)) (*model.Order, error) {
	var (
		res  *model.Order
		step escrow.Step
	)

	err := s.inTx(ctx, func(tx repository.Tx, out *outbox) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}

		step, err = plan(o)
		if err != nil {
			return err
		}
		res = o
		if step.Noop() {
			return nil
		}

		if step.Effect != escrow.EffectNone && !o.Status.HoldsEscrow() {
			return fmt.Errorf("%w: order %d no longer holds escrow", apperr.ErrInvalidTransition, o.ID)
		}
		if err := s.settle(ctx, tx, o, step.Effect); err != nil {
			return err
		}

		o.Status = step.To
		if step.To == model.OrderStatusCompleted {
			now := s.now()
			o.CompletedDate = &now
		}
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}

		data := map[string]any{"orderID": o.ID, "status": string(o.Status)}
		out.add(notify.KindOrderStatus, o.BuyerID, "order "+strings.ToLower(string(o.Status)), data)
		out.add(notify.KindOrderStatus, o.SellerID, "order "+strings.ToLower(string(o.Status)), data)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !step.Noop() {
		s.logger.Info("order transitioned",
			zap.Int64("orderID", res.ID),
			zap.String("from", string(step.From)),
			zap.String("to", string(step.To)),
			zap.Stringer("effect", step.Effect),
		)
	}
	return res, nil
}

// settle применяет денежный эффект перехода. Кошелёк блокируется раньше товаров.
func (s *Service) settle(ctx context.Context, tx repository.Tx, o *model.Order, effect escrow.Effect) error {
	switch effect {
	case escrow.EffectPaySeller:
		if _, err := tx.CreateWallet(ctx, o.SellerID, s.now()); err != nil {
			return err
		}
		if _, err := s.credit(ctx, tx, o.SellerID, o.FinalAmount, 0); err != nil {
			return err
		}
		shops := map[int64]struct{}{}
		for _, item := range o.Items {
			p, err := tx.LockProduct(ctx, item.ProductID)
			if err != nil {
				return err
			}
			p.Sold += item.Quantity
			if err := tx.UpdateProduct(ctx, p); err != nil {
				return err
			}
			shops[p.ShopID] = struct{}{}
		}
		for shopID := range shops {
			if err := tx.RefreshShopSold(ctx, shopID); err != nil {
				return err
			}
		}

	case escrow.EffectRefundBuyer:
		if _, err := s.credit(ctx, tx, o.BuyerID, o.FinalAmount, 0); err != nil {
			return err
		}
		for _, item := range o.Items {
			p, err := tx.LockProduct(ctx, item.ProductID)
			if err != nil {
				return err
			}
			p.Quantity += item.Quantity
			if err := tx.UpdateProduct(ctx, p); err != nil {
				return err
			}
		}
	}
	return nil
}

// GetOrder возвращает заказ покупателю или продавцу.
func (s *Service) GetOrder(ctx context.Context, orderID, userID int64) (*model.Order, error) {
	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.PartyOf(userID) == model.PartyNone {
		return nil, fmt.Errorf("%w: user %d is not a party of order %d", apperr.ErrUnauthorized, userID, orderID)
	}
	return o, nil
}

// GetOrderByCode возвращает заказ участнику по номеру. Номер без верной
// контрольной цифры отклоняется без обращения к хранилищу.
func (s *Service) GetOrderByCode(ctx context.Context, code string, userID int64) (*model.Order, error) {
	if !validation.IsValidOrderNumber(code) {
		return nil, apperr.Validation("malformed order number %q", code)
	}
	o, err := s.store.GetOrderByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if o.PartyOf(userID) == model.PartyNone {
		return nil, fmt.Errorf("%w: user %d is not a party of order %s", apperr.ErrUnauthorized, userID, code)
	}
	return o, nil
}

// ListOrders возвращает заказы пользователя как покупателя или как продавца.
// PartyNone объединяет обе роли.
func (s *Service) ListOrders(ctx context.Context, userID int64, party model.Party) ([]model.Order, error) {
	return s.store.ListOrders(ctx, userID, party)
}

// ListAllOrders возвращает все заказы для администратора.
func (s *Service) ListAllOrders(ctx context.Context) ([]model.Order, error) {
	return s.store.ListAllOrders(ctx)
}
