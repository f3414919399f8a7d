package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/chatbox-ledger/internal/apperr"
	"github.com/mmeshcher/chatbox-ledger/internal/model"
	"github.com/mmeshcher/chatbox-ledger/internal/repository"
)

var now = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func TestInTx_CommitsOnSuccess(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.InTx(ctx, func(tx repository.Tx) error {
		created, err := tx.CreateWallet(ctx, 1, now)
		require.NoError(t, err)
		assert.True(t, created)

		w, err := tx.LockWallet(ctx, 1)
		require.NoError(t, err)
		w.Balance = 500
		return tx.UpdateWallet(ctx, w)
	})
	require.NoError(t, err)

	w, err := s.GetWallet(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(500), w.Balance)
	assert.Equal(t, int64(1), w.Version)
}

func TestInTx_RollsBackOnError(t *testing.T) {
	s := New()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.InTx(ctx, func(tx repository.Tx) error {
		_, err := tx.CreateWallet(ctx, 1, now)
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.GetWallet(ctx, 1)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestInTx_RollsBackOnCancel(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())

	err := s.InTx(ctx, func(tx repository.Tx) error {
		_, err := tx.CreateWallet(ctx, 1, now)
		cancel()
		return err
	})
	require.ErrorIs(t, err, context.Canceled)

	_, err = s.GetWallet(context.Background(), 1)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUpdateWallet_VersionConflict(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.InTx(ctx, func(tx repository.Tx) error {
		_, err := tx.CreateWallet(ctx, 1, now)
		require.NoError(t, err)

		stale, err := tx.LockWallet(ctx, 1)
		require.NoError(t, err)
		fresh, err := tx.LockWallet(ctx, 1)
		require.NoError(t, err)

		fresh.Balance = 10
		require.NoError(t, tx.UpdateWallet(ctx, fresh))

		stale.Balance = 20
		return tx.UpdateWallet(ctx, stale)
	})
	assert.ErrorIs(t, err, repository.ErrVersionConflict)
}

func TestReturnedValuesAreCopies(t *testing.T) {
	s := New()
	ctx := context.Background()
	owner := int64(1)

	require.NoError(t, s.InTx(ctx, func(tx repository.Tx) error {
		_, err := tx.InsertVoucher(ctx, &model.Voucher{Code: "A", OwnerID: &owner, UsageLimit: 1, IsActive: true, ExpirationDate: now})
		return err
	}))

	vs, err := s.ListVouchers(ctx)
	require.NoError(t, err)
	require.Len(t, vs, 1)
	*vs[0].OwnerID = 42
	vs[0].UsedCount = 5

	again, err := s.GetVoucher(ctx, vs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), *again.OwnerID)
	assert.Equal(t, 0, again.UsedCount)
}

func TestVouchers(t *testing.T) {
	s := New()
	ctx := context.Background()
	alice, bob := int64(1), int64(2)

	require.NoError(t, s.InTx(ctx, func(tx repository.Tx) error {
		for _, v := range []*model.Voucher{
			{Code: "ALICE", OwnerID: &alice},
			{Code: "ALICE_HIDDEN", OwnerID: &alice, DeletedByUser: true},
			{Code: "BOB", OwnerID: &bob},
			{Code: "SHARED"},
		} {
			inserted, err := tx.InsertVoucher(ctx, v)
			require.NoError(t, err)
			require.True(t, inserted)
		}

		inserted, err := tx.InsertVoucher(ctx, &model.Voucher{Code: "SHARED"})
		require.NoError(t, err)
		assert.False(t, inserted)
		return nil
	}))

	list, err := s.ListVouchersForUser(ctx, alice)
	require.NoError(t, err)
	var codes []string
	for _, v := range list {
		codes = append(codes, v.Code)
	}
	assert.ElementsMatch(t, []string{"ALICE", "SHARED"}, codes)

	err = s.InTx(ctx, func(tx repository.Tx) error {
		_, err := tx.LockVoucherByCode(ctx, "BOB", alice)
		return err
	})
	reason, ok := apperr.VoucherReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, apperr.VoucherNotFound, reason)
}

func TestOrdersAndShopSold(t *testing.T) {
	s := New()
	ctx := context.Background()

	s.SeedShop(model.Shop{ID: 100, OwnerID: 2})
	s.SeedProduct(model.Product{ID: 200, SellerID: 2, ShopID: 100, Price: 1000, Quantity: 5, Status: model.ProductStatusApproved})
	s.SeedProduct(model.Product{ID: 201, SellerID: 2, ShopID: 100, Price: 500, Quantity: 5, Sold: 3, Status: model.ProductStatusApproved})

	var orderID int64
	require.NoError(t, s.InTx(ctx, func(tx repository.Tx) error {
		o := &model.Order{
			Code:     "ORD1",
			BuyerID:  1,
			SellerID: 2,
			ShopID:   100,
			Items:    []model.OrderItem{{ProductID: 200, Quantity: 2, PriceAtPurchase: 1000}},
			Status:   model.OrderStatusPreparing,
		}
		if err := tx.InsertOrder(ctx, o); err != nil {
			return err
		}
		orderID = o.ID

		p, err := tx.LockProduct(ctx, 200)
		require.NoError(t, err)
		p.Sold += 2
		require.NoError(t, tx.UpdateProduct(ctx, p))
		return tx.RefreshShopSold(ctx, 100)
	}))
	assert.Greater(t, orderID, int64(201))

	shop, err := s.GetShop(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 5, shop.TotalSold)

	bought, err := s.ListOrders(ctx, 1, model.PartyBuyer)
	require.NoError(t, err)
	require.Len(t, bought, 1)
	assert.Equal(t, []model.OrderItem{{ProductID: 200, Quantity: 2, PriceAtPurchase: 1000}}, bought[0].Items)

	sold, err := s.ListOrders(ctx, 2, model.PartySeller)
	require.NoError(t, err)
	assert.Len(t, sold, 1)

	none, err := s.ListOrders(ctx, 1, model.PartySeller)
	require.NoError(t, err)
	assert.Empty(t, none)

	for _, userID := range []int64{1, 2} {
		mine, err := s.ListOrders(ctx, userID, model.PartyNone)
		require.NoError(t, err)
		assert.Len(t, mine, 1, "user %d", userID)
	}

	stranger, err := s.ListOrders(ctx, 3, model.PartyNone)
	require.NoError(t, err)
	assert.Empty(t, stranger)

	_, err = s.ListOrders(ctx, 1, model.Party("courier"))
	assert.ErrorIs(t, err, apperr.ErrValidation)

	all, err := s.ListAllOrders(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	byCode, err := s.GetOrderByCode(ctx, "ORD1")
	require.NoError(t, err)
	assert.Equal(t, orderID, byCode.ID)

	_, err = s.GetOrderByCode(ctx, "ORD2")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUpdateVoucher_EditableFields(t *testing.T) {
	s := New()
	ctx := context.Background()
	expiry := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	var id int64
	require.NoError(t, s.InTx(ctx, func(tx repository.Tx) error {
		v := &model.Voucher{Code: "EDIT", Description: "old", UsageLimit: 1, IsActive: true}
		_, err := tx.InsertVoucher(ctx, v)
		id = v.ID
		return err
	}))

	require.NoError(t, s.InTx(ctx, func(tx repository.Tx) error {
		v, err := tx.LockVoucher(ctx, id)
		require.NoError(t, err)
		v.Description = "new"
		v.UsageLimit = 4
		v.IsActive = false
		v.ExpirationDate = expiry
		v.Code = "IGNORED"
		return tx.UpdateVoucher(ctx, v)
	}))

	v, err := s.GetVoucher(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "EDIT", v.Code)
	assert.Equal(t, "new", v.Description)
	assert.Equal(t, 4, v.UsageLimit)
	assert.False(t, v.IsActive)
	assert.Equal(t, expiry, v.ExpirationDate)
}

func TestMonthlyDeposits(t *testing.T) {
	s := New()
	ctx := context.Background()

	done := func(ts time.Time) *time.Time { return &ts }

	require.NoError(t, s.InTx(ctx, func(tx repository.Tx) error {
		_, err := tx.CreateWallet(ctx, 1, now)
		require.NoError(t, err)

		for _, d := range []*model.Deposit{
			{Code: "A", UserID: 1, Kind: model.DepositKindDeposit, RequestedAmount: 100, Status: model.DepositStatusSuccess, CompletedAt: done(now)},
			{Code: "B", UserID: 1, Kind: model.DepositKindDeposit, RequestedAmount: 50, Status: model.DepositStatusSuccess, CompletedAt: done(now.AddDate(0, 0, 3))},
			{Code: "C", UserID: 1, Kind: model.DepositKindDeposit, RequestedAmount: 70, Status: model.DepositStatusSuccess, CompletedAt: done(now.AddDate(0, 1, 0))},
			{Code: "D", UserID: 1, Kind: model.DepositKindDonate, RequestedAmount: 999, Status: model.DepositStatusSuccess, CompletedAt: done(now)},
			{Code: "E", UserID: 1, Kind: model.DepositKindDeposit, RequestedAmount: 999, Status: model.DepositStatusPending},
		} {
			require.NoError(t, tx.InsertDeposit(ctx, d))
		}
		return nil
	}))

	stats, err := s.MonthlyDeposits(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []model.MonthlyDeposit{
		{Month: "2026-05", Total: 150},
		{Month: "2026-06", Total: 70},
	}, stats)
}

func TestInsertDeposit_DuplicateCode(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.InTx(ctx, func(tx repository.Tx) error {
		_, err := tx.CreateWallet(ctx, 1, now)
		require.NoError(t, err)
		require.NoError(t, tx.InsertDeposit(ctx, &model.Deposit{Code: "X", UserID: 1}))
		return tx.InsertDeposit(ctx, &model.Deposit{Code: "X", UserID: 1})
	})
	assert.ErrorIs(t, err, apperr.ErrConflict)
}
