// Package memstore реализует repository.Store в памяти процесса.
// Транзакции сериализуются мьютексом и работают над копией состояния,
// которая заменяет текущее только при успешном завершении.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mmeshcher/chatbox-ledger/internal/apperr"
	"github.com/mmeshcher/chatbox-ledger/internal/model"
	"github.com/mmeshcher/chatbox-ledger/internal/repository"
)

// Store реализует хранилище в памяти.
type Store struct {
	mu    sync.RWMutex
	state *state
}

var _ repository.Store = (*Store)(nil)

// New создаёт пустое хранилище.
func New() *Store {
	return &Store{state: newState()}
}

// InTx выполняет fn над копией состояния и публикует её, только если fn
// завершилась без ошибки и контекст не отменён.
func (s *Store) InTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	if err := fn(snapshot); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.state = snapshot
	return nil
}

// Close ничего не делает.
func (s *Store) Close() error { return nil }

// SeedShop добавляет магазин.
func (s *Store) SeedShop(shop model.Shop) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state.clone()
	if shop.ID == 0 {
		shop.ID = st.nextID()
	} else if shop.ID > st.seq {
		st.seq = shop.ID
	}
	st.shops[shop.ID] = &shop
	s.state = st
}

// SeedProduct добавляет товар.
func (s *Store) SeedProduct(p model.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state.clone()
	if p.ID == 0 {
		p.ID = st.nextID()
	} else if p.ID > st.seq {
		st.seq = p.ID
	}
	st.products[p.ID] = &p
	s.state = st
}

func (s *Store) read() *state {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Состояние после публикации не изменяется: транзакции меняют только свою копию.

func (s *Store) GetWallet(ctx context.Context, userID int64) (*model.Wallet, error) {
	return s.read().GetWallet(ctx, userID)
}

func (s *Store) ListWallets(ctx context.Context) ([]model.Wallet, error) {
	return s.read().ListWallets(ctx)
}

func (s *Store) GetDeposit(ctx context.Context, code string) (*model.Deposit, error) {
	return s.read().GetDeposit(ctx, code)
}

func (s *Store) ListDepositsByUser(ctx context.Context, userID int64) ([]model.Deposit, error) {
	return s.read().ListDepositsByUser(ctx, userID)
}

func (s *Store) ListAllDeposits(ctx context.Context) ([]model.Deposit, error) {
	return s.read().ListAllDeposits(ctx)
}

func (s *Store) MonthlyDeposits(ctx context.Context, userID int64) ([]model.MonthlyDeposit, error) {
	return s.read().MonthlyDeposits(ctx, userID)
}

func (s *Store) GetVoucher(ctx context.Context, id int64) (*model.Voucher, error) {
	return s.read().GetVoucher(ctx, id)
}

func (s *Store) ListVouchersForUser(ctx context.Context, userID int64) ([]model.Voucher, error) {
	return s.read().ListVouchersForUser(ctx, userID)
}

func (s *Store) ListVouchers(ctx context.Context) ([]model.Voucher, error) {
	return s.read().ListVouchers(ctx)
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	return s.read().GetProduct(ctx, id)
}

func (s *Store) GetShop(ctx context.Context, id int64) (*model.Shop, error) {
	return s.read().GetShop(ctx, id)
}

func (s *Store) GetOrder(ctx context.Context, id int64) (*model.Order, error) {
	return s.read().GetOrder(ctx, id)
}

func (s *Store) GetOrderByCode(ctx context.Context, code string) (*model.Order, error) {
	return s.read().GetOrderByCode(ctx, code)
}

func (s *Store) ListOrders(ctx context.Context, userID int64, party model.Party) ([]model.Order, error) {
	return s.read().ListOrders(ctx, userID, party)
}

func (s *Store) ListAllOrders(ctx context.Context) ([]model.Order, error) {
	return s.read().ListAllOrders(ctx)
}

// state хранит снимок всех таблиц. Методы возвращают копии, чтобы вызывающий
// код не мог изменить опубликованный снимок.
type state struct {
	seq      int64
	wallets  map[int64]*model.Wallet
	deposits map[string]*model.Deposit
	vouchers map[int64]*model.Voucher
	codes    map[string]int64
	products map[int64]*model.Product
	shops    map[int64]*model.Shop
	orders   map[int64]*model.Order
}

var _ repository.Tx = (*state)(nil)

func newState() *state {
	return &state{
		wallets:  map[int64]*model.Wallet{},
		deposits: map[string]*model.Deposit{},
		vouchers: map[int64]*model.Voucher{},
		codes:    map[string]int64{},
		products: map[int64]*model.Product{},
		shops:    map[int64]*model.Shop{},
		orders:   map[int64]*model.Order{},
	}
}

func (st *state) clone() *state {
	c := newState()
	c.seq = st.seq
	for k, v := range st.wallets {
		w := *v
		c.wallets[k] = &w
	}
	for k, v := range st.deposits {
		c.deposits[k] = copyDeposit(v)
	}
	for k, v := range st.vouchers {
		c.vouchers[k] = copyVoucher(v)
	}
	for k, v := range st.codes {
		c.codes[k] = v
	}
	for k, v := range st.products {
		p := *v
		c.products[k] = &p
	}
	for k, v := range st.shops {
		sh := *v
		c.shops[k] = &sh
	}
	for k, v := range st.orders {
		c.orders[k] = copyOrder(v)
	}
	return c
}

func (st *state) nextID() int64 {
	st.seq++
	return st.seq
}

func copyDeposit(d *model.Deposit) *model.Deposit {
	c := *d
	if d.CompletedAt != nil {
		t := *d.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

func copyVoucher(v *model.Voucher) *model.Voucher {
	c := *v
	if v.OwnerID != nil {
		id := *v.OwnerID
		c.OwnerID = &id
	}
	return &c
}

func copyOrder(o *model.Order) *model.Order {
	c := *o
	c.Items = append([]model.OrderItem(nil), o.Items...)
	if o.CompletedDate != nil {
		t := *o.CompletedDate
		c.CompletedDate = &t
	}
	return &c
}

func notFound(what string, key any) error {
	return fmt.Errorf("%w: %s %v", apperr.ErrNotFound, what, key)
}

func (st *state) GetWallet(_ context.Context, userID int64) (*model.Wallet, error) {
	w, ok := st.wallets[userID]
	if !ok {
		return nil, notFound("wallet", userID)
	}
	c := *w
	return &c, nil
}

func (st *state) ListWallets(_ context.Context) ([]model.Wallet, error) {
	res := make([]model.Wallet, 0, len(st.wallets))
	for _, w := range st.wallets {
		res = append(res, *w)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].UserID < res[j].UserID })
	return res, nil
}

func (st *state) CreateWallet(_ context.Context, userID int64, now time.Time) (bool, error) {
	if _, ok := st.wallets[userID]; ok {
		return false, nil
	}
	st.wallets[userID] = &model.Wallet{UserID: userID, UpdatedAt: now}
	return true, nil
}

func (st *state) LockWallet(ctx context.Context, userID int64) (*model.Wallet, error) {
	return st.GetWallet(ctx, userID)
}

func (st *state) UpdateWallet(_ context.Context, w *model.Wallet) error {
	cur, ok := st.wallets[w.UserID]
	if !ok {
		return notFound("wallet", w.UserID)
	}
	if cur.Version != w.Version {
		return fmt.Errorf("%w: wallet %d", repository.ErrVersionConflict, w.UserID)
	}
	if w.Balance < 0 {
		return fmt.Errorf("%w: wallet %d", apperr.ErrInsufficientFunds, w.UserID)
	}

	w.Version++
	c := *w
	st.wallets[w.UserID] = &c
	return nil
}

func (st *state) GetDeposit(_ context.Context, code string) (*model.Deposit, error) {
	d, ok := st.deposits[code]
	if !ok {
		return nil, notFound("deposit", code)
	}
	return copyDeposit(d), nil
}

func (st *state) ListDepositsByUser(_ context.Context, userID int64) ([]model.Deposit, error) {
	return st.listDeposits(func(d *model.Deposit) bool { return d.UserID == userID }), nil
}

func (st *state) ListAllDeposits(_ context.Context) ([]model.Deposit, error) {
	return st.listDeposits(func(*model.Deposit) bool { return true }), nil
}

func (st *state) listDeposits(keep func(d *model.Deposit) bool) []model.Deposit {
	var res []model.Deposit
	for _, d := range st.deposits {
		if keep(d) {
			res = append(res, *copyDeposit(d))
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].CreatedAt.After(res[j].CreatedAt)
		}
		return res[i].ID > res[j].ID
	})
	return res
}

func (st *state) MonthlyDeposits(_ context.Context, userID int64) ([]model.MonthlyDeposit, error) {
	totals := map[string]int64{}
	for _, d := range st.deposits {
		if d.UserID != userID || d.Status != model.DepositStatusSuccess ||
			d.Kind != model.DepositKindDeposit || d.CompletedAt == nil {
			continue
		}
		totals[d.CompletedAt.UTC().Format("2006-01")] += d.RequestedAmount
	}

	res := make([]model.MonthlyDeposit, 0, len(totals))
	for m, total := range totals {
		res = append(res, model.MonthlyDeposit{Month: m, Total: total})
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Month < res[j].Month })
	return res, nil
}

func (st *state) InsertDeposit(_ context.Context, d *model.Deposit) error {
	if _, ok := st.deposits[d.Code]; ok {
		return fmt.Errorf("%w: deposit %s", apperr.ErrConflict, d.Code)
	}
	if _, ok := st.wallets[d.UserID]; !ok {
		return notFound("wallet", d.UserID)
	}
	d.ID = st.nextID()
	st.deposits[d.Code] = copyDeposit(d)
	return nil
}

func (st *state) LockDeposit(ctx context.Context, code string) (*model.Deposit, error) {
	return st.GetDeposit(ctx, code)
}

func (st *state) UpdateDeposit(_ context.Context, d *model.Deposit) error {
	cur, ok := st.deposits[d.Code]
	if !ok {
		return notFound("deposit", d.Code)
	}
	cur.Status = d.Status
	cur.CreditedAmount = d.CreditedAmount
	cur.CompletedAt = copyDeposit(d).CompletedAt
	return nil
}

func (st *state) GetVoucher(_ context.Context, id int64) (*model.Voucher, error) {
	v, ok := st.vouchers[id]
	if !ok {
		return nil, notFound("voucher", id)
	}
	return copyVoucher(v), nil
}

func (st *state) listVouchers(keep func(v *model.Voucher) bool) []model.Voucher {
	var res []model.Voucher
	for _, v := range st.vouchers {
		if keep(v) {
			res = append(res, *copyVoucher(v))
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

func (st *state) ListVouchersForUser(_ context.Context, userID int64) ([]model.Voucher, error) {
	return st.listVouchers(func(v *model.Voucher) bool {
		return v.OwnerID == nil || (v.OwnedBy(userID) && !v.DeletedByUser)
	}), nil
}

func (st *state) ListVouchers(_ context.Context) ([]model.Voucher, error) {
	return st.listVouchers(func(*model.Voucher) bool { return true }), nil
}

func (st *state) InsertVoucher(_ context.Context, v *model.Voucher) (bool, error) {
	if _, ok := st.codes[v.Code]; ok {
		return false, nil
	}
	v.ID = st.nextID()
	st.vouchers[v.ID] = copyVoucher(v)
	st.codes[v.Code] = v.ID
	return true, nil
}

func (st *state) LockVoucherByCode(_ context.Context, code string, userID int64) (*model.Voucher, error) {
	id, ok := st.codes[code]
	if !ok {
		return nil, apperr.NewVoucherError(code, apperr.VoucherNotFound)
	}
	v := st.vouchers[id]
	if v.OwnerID != nil && !v.OwnedBy(userID) {
		return nil, apperr.NewVoucherError(code, apperr.VoucherNotFound)
	}
	return copyVoucher(v), nil
}

func (st *state) LockVoucher(ctx context.Context, id int64) (*model.Voucher, error) {
	return st.GetVoucher(ctx, id)
}

func (st *state) UpdateVoucher(_ context.Context, v *model.Voucher) error {
	cur, ok := st.vouchers[v.ID]
	if !ok {
		return notFound("voucher", v.ID)
	}
	upd := copyVoucher(v)
	cur.Description = upd.Description
	cur.UsageLimit = upd.UsageLimit
	cur.UsedCount = upd.UsedCount
	cur.IsActive = upd.IsActive
	cur.ExpirationDate = upd.ExpirationDate
	cur.DeletedByUser = upd.DeletedByUser
	return nil
}

func (st *state) GetProduct(_ context.Context, id int64) (*model.Product, error) {
	p, ok := st.products[id]
	if !ok {
		return nil, notFound("product", id)
	}
	c := *p
	return &c, nil
}

func (st *state) LockProduct(ctx context.Context, id int64) (*model.Product, error) {
	return st.GetProduct(ctx, id)
}

func (st *state) UpdateProduct(_ context.Context, p *model.Product) error {
	cur, ok := st.products[p.ID]
	if !ok {
		return notFound("product", p.ID)
	}
	if p.Quantity < 0 {
		return fmt.Errorf("%w: product %d", apperr.ErrInsufficientStock, p.ID)
	}
	cur.Quantity = p.Quantity
	cur.Sold = p.Sold
	cur.Status = p.Status
	return nil
}

func (st *state) GetShop(_ context.Context, id int64) (*model.Shop, error) {
	sh, ok := st.shops[id]
	if !ok {
		return nil, notFound("shop", id)
	}
	c := *sh
	return &c, nil
}

func (st *state) RefreshShopSold(_ context.Context, shopID int64) error {
	sh, ok := st.shops[shopID]
	if !ok {
		return nil
	}
	total := 0
	for _, p := range st.products {
		if p.ShopID == shopID {
			total += p.Sold
		}
	}
	sh.TotalSold = total
	return nil
}

func (st *state) GetOrder(_ context.Context, id int64) (*model.Order, error) {
	o, ok := st.orders[id]
	if !ok {
		return nil, notFound("order", id)
	}
	return copyOrder(o), nil
}

func (st *state) LockOrder(ctx context.Context, id int64) (*model.Order, error) {
	return st.GetOrder(ctx, id)
}

func (st *state) GetOrderByCode(_ context.Context, code string) (*model.Order, error) {
	for _, o := range st.orders {
		if o.Code == code {
			return copyOrder(o), nil
		}
	}
	return nil, notFound("order", code)
}

func (st *state) ListOrders(_ context.Context, userID int64, party model.Party) ([]model.Order, error) {
	switch party {
	case model.PartyBuyer, model.PartySeller:
		return st.listOrders(func(o *model.Order) bool { return o.PartyOf(userID) == party }), nil
	case model.PartyNone:
		return st.listOrders(func(o *model.Order) bool { return o.PartyOf(userID) != model.PartyNone }), nil
	default:
		return nil, apperr.Validation("unknown party %q", party)
	}
}

func (st *state) ListAllOrders(_ context.Context) ([]model.Order, error) {
	return st.listOrders(func(*model.Order) bool { return true }), nil
}

func (st *state) listOrders(keep func(o *model.Order) bool) []model.Order {
	var res []model.Order
	for _, o := range st.orders {
		if keep(o) {
			res = append(res, *copyOrder(o))
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].OrderDate.Equal(res[j].OrderDate) {
			return res[i].OrderDate.After(res[j].OrderDate)
		}
		return res[i].ID > res[j].ID
	})
	return res
}

func (st *state) InsertOrder(_ context.Context, o *model.Order) error {
	for _, existing := range st.orders {
		if existing.Code == o.Code {
			return fmt.Errorf("%w: order %s", apperr.ErrConflict, o.Code)
		}
	}
	o.ID = st.nextID()
	st.orders[o.ID] = copyOrder(o)
	return nil
}

func (st *state) UpdateOrder(_ context.Context, o *model.Order) error {
	cur, ok := st.orders[o.ID]
	if !ok {
		return notFound("order", o.ID)
	}
	cur.Status = o.Status
	cur.CompletedDate = copyOrder(o).CompletedDate
	return nil
}
