// Package service реализует расчётное ядро: кошельки, пополнения, ваучеры и эскроу заказов.
package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/chatbox-ledger/internal/notify"
	"github.com/mmeshcher/chatbox-ledger/internal/repository"
)

// Store описывает контракт хранилища, используемый сервисом.
// Каждая расчётная операция выполняется одним вызовом InTx.
type Store interface {
	repository.Reader
	InTx(ctx context.Context, fn func(tx repository.Tx) error) error
	Close() error
}

// PaymentConfig описывает реквизиты для платёжной ссылки пополнения.
type PaymentConfig struct {
	BankID     string
	AccountNo  string
	QRTemplate string
}

// Settings содержит параметры сервиса.
type Settings struct {
	ExchangeRate decimal.Decimal
	Payment      PaymentConfig
}

// Service содержит бизнес-логику расчётного ядра.
type Service struct {
	store    Store
	notifier notify.Notifier
	logger   *zap.Logger
	settings Settings
	now      func() time.Time
}

// NewService создаёт сервис. Нулевой курс обмена заменяется на 1.
func NewService(store Store, settings Settings, notifier notify.Notifier, logger *zap.Logger) *Service {
	if settings.ExchangeRate.IsZero() {
		settings.ExchangeRate = decimal.NewFromInt(1)
	}
	if notifier == nil {
		notifier = notify.Discard{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		notifier: notifier,
		logger:   logger,
		settings: settings,
		now:      time.Now,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}

// outbox накапливает уведомления внутри атомарной единицы.
type outbox struct {
	events []notify.Event
}

func (o *outbox) add(kind notify.Kind, userID int64, message string, data map[string]any) {
	o.events = append(o.events, notify.Event{Kind: kind, UserID: userID, Message: message, Data: data})
}

// inTx выполняет fn атомарно и отправляет накопленные уведомления только после
// фиксации. При повторе транзакции уведомления предыдущей попытки отбрасываются.
func (s *Service) inTx(ctx context.Context, fn func(tx repository.Tx, out *outbox) error) error {
	var out outbox
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		out = outbox{}
		return fn(tx, &out)
	})
	if err != nil {
		return err
	}

	if len(out.events) > 0 {
		now := s.now()
		for i := range out.events {
			out.events[i].CreatedAt = now
		}
		s.notifier.Notify(out.events...)
	}
	return nil
}
