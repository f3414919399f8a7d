// Package notify доставляет события расчётного ядра пользователям без блокировки вызывающего кода.
package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Kind описывает тип события.
type Kind string

const (
	KindLevelUp          Kind = "LEVEL_UP"
	KindVoucherIssued    Kind = "VOUCHER_ISSUED"
	KindDepositConfirmed Kind = "DEPOSIT_CONFIRMED"
	KindOrderStatus      Kind = "ORDER_STATUS"
)

// Event описывает уведомление для одного пользователя.
type Event struct {
	Kind      Kind           `json:"kind"`
	UserID    int64          `json:"user_id"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Notifier принимает события. Notify не должен блокироваться.
type Notifier interface {
	Notify(events ...Event)
}

// Sink выполняет фактическую доставку события.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

const sendTimeout = 3 * time.Second

// Dispatcher ставит события в буферизированную очередь и доставляет их
// в Sink из отдельной горутины. При переполнении очереди событие отбрасывается.
type Dispatcher struct {
	sink   Sink
	logger *zap.Logger
	queue  chan Event

	// mu разделяет постановку в очередь и остановку: после stopped = true
	// ни одно событие не попадёт в очередь мимо drain.
	mu      sync.RWMutex
	stopped bool
}

// NewDispatcher создаёт диспетчер с очередью размера buffer.
func NewDispatcher(sink Sink, buffer int, logger *zap.Logger) *Dispatcher {
	if buffer <= 0 {
		buffer = 1
	}
	return &Dispatcher{
		sink:   sink,
		logger: logger,
		queue:  make(chan Event, buffer),
	}
}

// Notify ставит события в очередь. После остановки Run события отбрасываются.
func (d *Dispatcher) Notify(events ...Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, e := range events {
		if d.stopped {
			d.logger.Warn("notification dropped: dispatcher stopped", zap.String("kind", string(e.Kind)), zap.Int64("userID", e.UserID))
			continue
		}

		select {
		case d.queue <- e:
		default:
			d.logger.Warn("notification dropped: queue full", zap.String("kind", string(e.Kind)), zap.Int64("userID", e.UserID))
		}
	}
}

// Run доставляет события, пока ctx не отменён, затем дочищает очередь.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			d.mu.Lock()
			d.stopped = true
			d.mu.Unlock()

			d.drain()
			return nil
		case e := <-d.queue:
			d.send(context.Background(), e)
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		select {
		case e := <-d.queue:
			d.send(context.Background(), e)
		default:
			return
		}
	}
}

func (d *Dispatcher) send(ctx context.Context, e Event) {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	if err := d.sink.Send(ctx, e); err != nil {
		d.logger.Error("failed to deliver notification",
			zap.String("kind", string(e.Kind)),
			zap.Int64("userID", e.UserID),
			zap.Error(err),
		)
	}
}

// Discard отбрасывает все события.
type Discard struct{}

// Notify ничего не делает.
func (Discard) Notify(...Event) {}
