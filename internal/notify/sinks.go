package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// LogSink пишет события в лог.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink создаёт LogSink.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Send записывает событие.
func (s *LogSink) Send(_ context.Context, e Event) error {
	s.logger.Info("notification",
		zap.String("kind", string(e.Kind)),
		zap.Int64("userID", e.UserID),
		zap.String("message", e.Message),
		zap.Any("data", e.Data),
	)
	return nil
}

// Publisher описывает подмножество redis.Client, используемое RedisSink.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisSink публикует события в канал notify:user:<id>.
// Публикация защищена автоматическим выключателем: после серии ошибок
// события отбрасываются сразу, пока Redis не восстановится.
type RedisSink struct {
	client  Publisher
	breaker *gobreaker.CircuitBreaker
}

// NewRedisSink создаёт RedisSink.
func NewRedisSink(client Publisher, logger *zap.Logger) *RedisSink {
	settings := gobreaker.Settings{
		Name:        "redis-notify",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
	return &RedisSink{client: client, breaker: gobreaker.NewCircuitBreaker(settings)}
}

// Channel возвращает имя канала пользователя.
func Channel(userID int64) string {
	return fmt.Sprintf("notify:user:%d", userID)
}

// ErrCircuitOpen возвращается, пока выключатель разомкнут.
var ErrCircuitOpen = errors.New("notification circuit open")

// Send публикует событие.
func (s *RedisSink) Send(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	_, err = s.breaker.Execute(func() (interface{}, error) {
		return nil, s.client.Publish(ctx, Channel(e.UserID), payload).Err()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}
	if err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}
