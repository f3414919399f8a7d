package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/chatbox-ledger/internal/apperr"
)

func TestOpenWallet_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	w, err := f.svc.OpenWallet(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, w.Balance)

	_, err = f.svc.Credit(ctx, 1, 100)
	require.NoError(t, err)

	w, err = f.svc.OpenWallet(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(100), w.Balance)

	_, err = f.svc.OpenWallet(ctx, 0)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestCreditDebit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, 1, 1_000)

	w, err := f.svc.Debit(ctx, 1, 400)
	require.NoError(t, err)
	assert.Equal(t, int64(600), w.Balance)
	assert.Zero(t, w.LifetimeDeposited, "admin adjustments do not count as deposits")

	_, err = f.svc.Debit(ctx, 1, 601)
	assert.ErrorIs(t, err, apperr.ErrInsufficientFunds)
	assert.Equal(t, int64(600), f.balance(t, 1))

	_, err = f.svc.Credit(ctx, 1, -5)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = f.svc.Debit(ctx, 1, 0)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestGetBalance_UnknownUser(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.GetBalance(context.Background(), 77)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.svc.Credit(context.Background(), 77, 10)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
