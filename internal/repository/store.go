package repository

import (
	"context"
	"errors"
	"time"

	"github.com/mmeshcher/chatbox-ledger/internal/model"
)

// ErrVersionConflict возвращается, если строка кошелька изменилась после чтения.
// Транзакция с такой ошибкой откатывается и может быть повторена целиком.
var ErrVersionConflict = errors.New("row version conflict")

// Reader описывает операции чтения, не требующие блокировок.
type Reader interface {
	GetWallet(ctx context.Context, userID int64) (*model.Wallet, error)
	ListWallets(ctx context.Context) ([]model.Wallet, error)

	GetDeposit(ctx context.Context, code string) (*model.Deposit, error)
	ListDepositsByUser(ctx context.Context, userID int64) ([]model.Deposit, error)
	ListAllDeposits(ctx context.Context) ([]model.Deposit, error)
	MonthlyDeposits(ctx context.Context, userID int64) ([]model.MonthlyDeposit, error)

	GetVoucher(ctx context.Context, id int64) (*model.Voucher, error)
	// ListVouchersForUser возвращает личные нескрытые ваучеры пользователя и все общие.
	ListVouchersForUser(ctx context.Context, userID int64) ([]model.Voucher, error)
	ListVouchers(ctx context.Context) ([]model.Voucher, error)

	GetProduct(ctx context.Context, id int64) (*model.Product, error)
	GetShop(ctx context.Context, id int64) (*model.Shop, error)

	GetOrder(ctx context.Context, id int64) (*model.Order, error)
	GetOrderByCode(ctx context.Context, code string) (*model.Order, error)
	// ListOrders с PartyNone возвращает заказы, где пользователь покупатель или продавец.
	ListOrders(ctx context.Context, userID int64, party model.Party) ([]model.Order, error)
	ListAllOrders(ctx context.Context) ([]model.Order, error)
}

// Tx описывает операции внутри атомарной единицы работы.
// Методы Lock* блокируют строку до конца транзакции.
type Tx interface {
	Reader

	CreateWallet(ctx context.Context, userID int64, now time.Time) (bool, error)
	LockWallet(ctx context.Context, userID int64) (*model.Wallet, error)
	UpdateWallet(ctx context.Context, w *model.Wallet) error

	InsertDeposit(ctx context.Context, d *model.Deposit) error
	LockDeposit(ctx context.Context, code string) (*model.Deposit, error)
	UpdateDeposit(ctx context.Context, d *model.Deposit) error

	// InsertVoucher возвращает false, если ваучер с таким кодом уже существует.
	InsertVoucher(ctx context.Context, v *model.Voucher) (bool, error)
	// LockVoucherByCode ищет ваучер по коду среди личных ваучеров пользователя и общих.
	LockVoucherByCode(ctx context.Context, code string, userID int64) (*model.Voucher, error)
	LockVoucher(ctx context.Context, id int64) (*model.Voucher, error)
	UpdateVoucher(ctx context.Context, v *model.Voucher) error

	LockProduct(ctx context.Context, id int64) (*model.Product, error)
	UpdateProduct(ctx context.Context, p *model.Product) error
	RefreshShopSold(ctx context.Context, shopID int64) error

	InsertOrder(ctx context.Context, o *model.Order) error
	LockOrder(ctx context.Context, id int64) (*model.Order, error)
	UpdateOrder(ctx context.Context, o *model.Order) error
}

// Store описывает хранилище расчётного ядра. InTx выполняет fn как одну атомарную
// единицу: либо применяются все изменения, либо ни одно.
type Store interface {
	Reader
	InTx(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}
