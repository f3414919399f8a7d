package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mmeshcher/chatbox-ledger/internal/notify"
	"github.com/mmeshcher/chatbox-ledger/internal/repository"
	"github.com/mmeshcher/chatbox-ledger/internal/repository/memstore"
)

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordingNotifier) Notify(events ...notify.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, events...)
}

func (n *recordingNotifier) kinds() []notify.Kind {
	n.mu.Lock()
	defer n.mu.Unlock()
	res := make([]notify.Kind, 0, len(n.events))
	for _, e := range n.events {
		res = append(res, e.Kind)
	}
	return res
}

func (n *recordingNotifier) reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = nil
}

type fixture struct {
	svc      *Service
	store    *memstore.Store
	notifier *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memstore.New()
	n := &recordingNotifier{}
	svc := NewService(store, Settings{
		ExchangeRate: decimal.NewFromInt(1),
		Payment:      PaymentConfig{BankID: "970422", AccountNo: "0123456789", QRTemplate: "compact"},
	}, n, zap.NewNop())
	svc.now = func() time.Time { return testNow }

	return &fixture{svc: svc, store: store, notifier: n}
}

// fund открывает кошелёк и зачисляет amount административно.
func (f *fixture) fund(t *testing.T, userID, amount int64) {
	t.Helper()
	ctx := context.Background()

	_, err := f.svc.OpenWallet(ctx, userID)
	require.NoError(t, err)
	if amount > 0 {
		_, err = f.svc.Credit(ctx, userID, amount)
		require.NoError(t, err)
	}
}

func (f *fixture) balance(t *testing.T, userID int64) int64 {
	t.Helper()
	b, err := f.svc.GetBalance(context.Background(), userID)
	require.NoError(t, err)
	return b
}

// setLifetime имитирует ручную правку накопленной суммы пополнений.
func (f *fixture) setLifetime(t *testing.T, userID, lifetime int64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.store.InTx(ctx, func(tx repository.Tx) error {
		w, err := tx.LockWallet(ctx, userID)
		if err != nil {
			return err
		}
		w.LifetimeDeposited = lifetime
		return tx.UpdateWallet(ctx, w)
	}))
}

func (f *fixture) vouchersOf(t *testing.T, userID int64) []string {
	t.Helper()
	all, err := f.store.ListVouchers(context.Background())
	require.NoError(t, err)

	var codes []string
	for _, v := range all {
		if v.OwnedBy(userID) {
			codes = append(codes, v.Code)
		}
	}
	return codes
}

func TestNewService_Defaults(t *testing.T) {
	svc := NewService(memstore.New(), Settings{}, nil, nil)
	assert.True(t, svc.settings.ExchangeRate.Equal(decimal.NewFromInt(1)))
	assert.NotNil(t, svc.notifier)
	assert.NotNil(t, svc.logger)
}

func TestInTx_NotifiesOnlyAfterCommit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := f.svc.inTx(ctx, func(_ repository.Tx, out *outbox) error {
		out.add(notify.KindLevelUp, 1, "never", nil)
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Empty(t, f.notifier.kinds())

	err = f.svc.inTx(ctx, func(_ repository.Tx, out *outbox) error {
		out.add(notify.KindLevelUp, 1, "sent", nil)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []notify.Kind{notify.KindLevelUp}, f.notifier.kinds())
	assert.Equal(t, testNow, f.notifier.events[0].CreatedAt)
}

func TestClose(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.svc.Close())
}
