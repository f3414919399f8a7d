package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	block  chan struct{}
}

func (s *recordingSink) Send(_ context.Context, e Event) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestDispatcher_DeliversAndDrainsOnStop(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(sink, 8, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = d.Run(ctx)
		close(done)
	}()

	d.Notify(Event{Kind: KindLevelUp, UserID: 1}, Event{Kind: KindVoucherIssued, UserID: 1})

	require.Eventually(t, func() bool { return sink.len() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	<-done

	// После остановки события отбрасываются, а не блокируют вызывающего.
	d.Notify(Event{Kind: KindOrderStatus, UserID: 2})
	assert.Equal(t, 2, sink.len())
}

func TestDispatcher_NotifyNeverBlocks(t *testing.T) {
	sink := &recordingSink{block: make(chan struct{})}
	d := NewDispatcher(sink, 1, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = d.Run(ctx) }()

	finished := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			d.Notify(Event{Kind: KindOrderStatus, UserID: int64(i)})
		}
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a stuck sink")
	}
	close(sink.block)
}

// Каждое событие, принятое во время остановки, либо доставлено, либо
// явно отброшено с предупреждением.
func TestDispatcher_StopRacingNotify(t *testing.T) {
	for round := 0; round < 20; round++ {
		sink := &recordingSink{}
		core, logs := observer.New(zap.WarnLevel)
		d := NewDispatcher(sink, 1024, zap.New(core))

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			_ = d.Run(ctx)
			close(done)
		}()

		const producers, perProducer = 4, 50
		var wg sync.WaitGroup
		for p := 0; p < producers; p++ {
			wg.Add(1)
			go func(p int) {
				defer wg.Done()
				for i := 0; i < perProducer; i++ {
					d.Notify(Event{Kind: KindOrderStatus, UserID: int64(p*perProducer + i)})
				}
			}(p)
		}

		cancel()
		wg.Wait()
		<-done

		dropped := logs.FilterMessage("notification dropped: dispatcher stopped").Len()
		assert.Zero(t, logs.FilterMessage("notification dropped: queue full").Len())
		require.Equal(t, producers*perProducer, sink.len()+dropped, "round %d", round)
	}
}

type stubPublisher struct {
	err      error
	calls    int
	channel  string
	payloads [][]byte
}

func (p *stubPublisher) Publish(ctx context.Context, channel string, message any) *redis.IntCmd {
	p.calls++
	p.channel = channel
	if b, ok := message.([]byte); ok {
		p.payloads = append(p.payloads, b)
	}
	cmd := redis.NewIntCmd(ctx)
	if p.err != nil {
		cmd.SetErr(p.err)
	} else {
		cmd.SetVal(1)
	}
	return cmd
}

func TestRedisSink_Publishes(t *testing.T) {
	pub := &stubPublisher{}
	sink := NewRedisSink(pub, zap.NewNop())

	err := sink.Send(context.Background(), Event{Kind: KindDepositConfirmed, UserID: 42, Message: "ok"})
	require.NoError(t, err)

	assert.Equal(t, "notify:user:42", pub.channel)
	require.Len(t, pub.payloads, 1)

	var got Event
	require.NoError(t, json.Unmarshal(pub.payloads[0], &got))
	assert.Equal(t, KindDepositConfirmed, got.Kind)
	assert.Equal(t, int64(42), got.UserID)
}

func TestRedisSink_OpensCircuit(t *testing.T) {
	pub := &stubPublisher{err: errors.New("connection refused")}
	sink := NewRedisSink(pub, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		err := sink.Send(ctx, Event{UserID: 1})
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrCircuitOpen)
	}

	err := sink.Send(ctx, Event{UserID: 1})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 5, pub.calls)
}

func TestLogSink(t *testing.T) {
	assert.NoError(t, NewLogSink(zap.NewNop()).Send(context.Background(), Event{Kind: KindLevelUp, UserID: 1}))
}
