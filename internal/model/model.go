// Package model содержит доменные сущности расчётного ядра: кошельки, пополнения, ваучеры и заказы.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet хранит баланс пользователя и накопленную сумму пополнений.
// Все суммы указаны в минимальных единицах валюты.
type Wallet struct {
	UserID            int64     `json:"user_id"`
	Balance           int64     `json:"balance"`
	LifetimeDeposited int64     `json:"lifetime_deposited"`
	Version           int64     `json:"-"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// DepositKind описывает назначение платежа.
type DepositKind string

const (
	DepositKindDeposit DepositKind = "DEPOSIT"
	DepositKindDonate  DepositKind = "DONATE"
)

// CreditsWallet сообщает, увеличивает ли платёж этого типа баланс кошелька.
func (k DepositKind) CreditsWallet() bool {
	return k == DepositKindDeposit
}

// Valid проверяет, что тип платежа известен.
func (k DepositKind) Valid() bool {
	return k == DepositKindDeposit || k == DepositKindDonate
}

// DepositStatus описывает статус транзакции пополнения.
type DepositStatus string

const (
	DepositStatusPending DepositStatus = "PENDING"
	DepositStatusSuccess DepositStatus = "SUCCESS"
	DepositStatusFailed  DepositStatus = "FAILED"
)

// Deposit описывает намерение пополнения и его итог.
type Deposit struct {
	ID              int64         `json:"id"`
	Code            string        `json:"code"`
	UserID          int64         `json:"user_id"`
	Kind            DepositKind   `json:"kind"`
	Method          string        `json:"method"`
	RequestedAmount int64         `json:"requested_amount"`
	CreditedAmount  int64         `json:"credited_amount"`
	Status          DepositStatus `json:"status"`
	PayURL          string        `json:"pay_url"`
	CreatedAt       time.Time     `json:"created_at"`
	CompletedAt     *time.Time    `json:"completed_at,omitempty"`
}

// MonthlyDeposit содержит сумму успешных пополнений за месяц в формате YYYY-MM.
type MonthlyDeposit struct {
	Month string `json:"month"`
	Total int64  `json:"total"`
}

// Voucher описывает скидочный ваучер. OwnerID == nil означает общий ваучер.
type Voucher struct {
	ID              int64           `json:"id"`
	Code            string          `json:"code"`
	Description     string          `json:"description"`
	OwnerID         *int64          `json:"owner_id,omitempty"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	DiscountAmount  int64           `json:"discount_amount"`
	MinOrderAmount  int64           `json:"min_order_amount"`
	UsageLimit      int             `json:"usage_limit"`
	UsedCount       int             `json:"used_count"`
	IsActive        bool            `json:"is_active"`
	ExpirationDate  time.Time       `json:"expiration_date"`
	DeletedByUser   bool            `json:"-"`
	CreatedAt       time.Time       `json:"created_at"`
}

// OwnedBy сообщает, принадлежит ли ваучер пользователю лично.
func (v *Voucher) OwnedBy(userID int64) bool {
	return v.OwnerID != nil && *v.OwnerID == userID
}

// ProductStatus описывает статус модерации товара.
type ProductStatus string

const (
	ProductStatusPending  ProductStatus = "PENDING"
	ProductStatusApproved ProductStatus = "APPROVED"
	ProductStatusRejected ProductStatus = "REJECTED"
	ProductStatusSoldOut  ProductStatus = "SOLD_OUT"
	ProductStatusHidden   ProductStatus = "HIDDEN"
)

// Product содержит поля товара, которые читает и изменяет расчётное ядро.
type Product struct {
	ID       int64         `json:"id"`
	SellerID int64         `json:"seller_id"`
	ShopID   int64         `json:"shop_id"`
	Name     string        `json:"name"`
	Price    int64         `json:"price"`
	Quantity int           `json:"quantity"`
	Sold     int           `json:"sold"`
	Status   ProductStatus `json:"status"`
}

// Shop хранит агрегат проданных единиц по всем товарам магазина.
type Shop struct {
	ID        int64 `json:"id"`
	OwnerID   int64 `json:"owner_id"`
	TotalSold int   `json:"total_sold"`
}

// OrderStatus описывает состояние заказа в эскроу.
type OrderStatus string

const (
	OrderStatusPreparing       OrderStatus = "PREPARING"
	OrderStatusShipped         OrderStatus = "SHIPPED"
	OrderStatusDelivered       OrderStatus = "DELIVERED"
	OrderStatusCompleted       OrderStatus = "COMPLETED"
	OrderStatusCancelled       OrderStatus = "CANCELLED"
	OrderStatusReturnRequested OrderStatus = "RETURN_REQUESTED"
	OrderStatusReturned        OrderStatus = "RETURNED"
)

// OrderStatuses перечисляет все состояния заказа.
var OrderStatuses = []OrderStatus{
	OrderStatusPreparing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCompleted,
	OrderStatusCancelled,
	OrderStatusReturnRequested,
	OrderStatusReturned,
}

// Valid проверяет, что статус известен.
func (s OrderStatus) Valid() bool {
	for _, st := range OrderStatuses {
		if st == s {
			return true
		}
	}
	return false
}

// HoldsEscrow сообщает, удерживаются ли средства покупателя в этом состоянии.
func (s OrderStatus) HoldsEscrow() bool {
	switch s {
	case OrderStatusPreparing, OrderStatusShipped, OrderStatusDelivered, OrderStatusReturnRequested:
		return true
	}
	return false
}

// Terminal сообщает, является ли состояние конечным.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusCompleted, OrderStatusCancelled, OrderStatusReturned:
		return true
	}
	return false
}

// OrderItem фиксирует цену товара на момент покупки.
type OrderItem struct {
	ProductID       int64 `json:"product_id"`
	Quantity        int   `json:"quantity"`
	PriceAtPurchase int64 `json:"price_at_purchase"`
}

// Order описывает заказ маркетплейса и удерживаемую сумму.
type Order struct {
	ID              int64       `json:"id"`
	Code            string      `json:"code"`
	BuyerID         int64       `json:"buyer_id"`
	SellerID        int64       `json:"seller_id"`
	ShopID          int64       `json:"shop_id"`
	Items           []OrderItem `json:"items"`
	TotalAmount     int64       `json:"total_amount"`
	DiscountAmount  int64       `json:"discount_amount"`
	FinalAmount     int64       `json:"final_amount"`
	VoucherCode     string      `json:"voucher_code,omitempty"`
	Status          OrderStatus `json:"status"`
	ShippingAddress string      `json:"shipping_address"`
	Note            string      `json:"note,omitempty"`
	OrderDate       time.Time   `json:"order_date"`
	CompletedDate   *time.Time  `json:"completed_date,omitempty"`
}

// Party описывает роль пользователя в заказе.
type Party string

const (
	PartyNone   Party = ""
	PartyBuyer  Party = "buyer"
	PartySeller Party = "seller"
)

// PartyOf возвращает роль пользователя в заказе.
func (o *Order) PartyOf(userID int64) Party {
	switch userID {
	case o.BuyerID:
		return PartyBuyer
	case o.SellerID:
		return PartySeller
	}
	return PartyNone
}
