package escrow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/chatbox-ledger/internal/apperr"
	"github.com/mmeshcher/chatbox-ledger/internal/model"
)

const (
	buyerID    int64 = 1
	sellerID   int64 = 2
	strangerID int64 = 3
)

func order(status model.OrderStatus) *model.Order {
	return &model.Order{ID: 10, BuyerID: buyerID, SellerID: sellerID, Status: status}
}

func TestPlan_AllowedTransitions(t *testing.T) {
	tests := []struct {
		from   model.OrderStatus
		to     model.OrderStatus
		actor  int64
		effect Effect
	}{
		{model.OrderStatusPreparing, model.OrderStatusShipped, sellerID, EffectNone},
		{model.OrderStatusShipped, model.OrderStatusDelivered, buyerID, EffectNone},
		{model.OrderStatusDelivered, model.OrderStatusCompleted, sellerID, EffectPaySeller},
		{model.OrderStatusPreparing, model.OrderStatusCancelled, buyerID, EffectRefundBuyer},
		{model.OrderStatusPreparing, model.OrderStatusCancelled, sellerID, EffectRefundBuyer},
		{model.OrderStatusDelivered, model.OrderStatusReturnRequested, buyerID, EffectNone},
		{model.OrderStatusReturnRequested, model.OrderStatusReturned, sellerID, EffectRefundBuyer},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			step, err := Plan(order(tt.from), tt.to, tt.actor)
			require.NoError(t, err)
			assert.Equal(t, tt.from, step.From)
			assert.Equal(t, tt.to, step.To)
			assert.Equal(t, tt.effect, step.Effect)
		})
	}
}

// Перебор всех пар состояний: всё, чего нет в таблице, должно быть отклонено.
func TestPlan_ExhaustiveIllegal(t *testing.T) {
	allowed := map[[2]model.OrderStatus]Rule{}
	for _, r := range Rules {
		allowed[[2]model.OrderStatus{r.From, r.To}] = r
	}

	for _, from := range model.OrderStatuses {
		for _, to := range model.OrderStatuses {
			for _, actor := range []int64{buyerID, sellerID, strangerID} {
				o := order(from)
				_, err := Plan(o, to, actor)

				rule, ok := allowed[[2]model.OrderStatus{from, to}]
				if ok && rule.allows(o.PartyOf(actor)) {
					assert.NoError(t, err, "%s -> %s by %d", from, to, actor)
					continue
				}

				require.Error(t, err, "%s -> %s by %d", from, to, actor)
				if !errors.Is(err, apperr.ErrInvalidTransition) && !errors.Is(err, apperr.ErrUnauthorized) {
					t.Fatalf("%s -> %s by %d: unexpected error %v", from, to, actor, err)
				}
			}
		}
	}
}

func TestPlan_WrongActor(t *testing.T) {
	_, err := Plan(order(model.OrderStatusPreparing), model.OrderStatusShipped, buyerID)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	_, err = Plan(order(model.OrderStatusPreparing), model.OrderStatusCancelled, strangerID)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestPlan_RepeatedCancelIsInvalid(t *testing.T) {
	_, err := Plan(order(model.OrderStatusCancelled), model.OrderStatusCancelled, sellerID)
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
}

func TestPlan_UnreachableTarget(t *testing.T) {
	_, err := Plan(order(model.OrderStatusShipped), model.OrderStatusPreparing, sellerID)
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)

	_, err = Plan(order(model.OrderStatusShipped), model.OrderStatus("LOST"), sellerID)
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
}

func TestPlanForced(t *testing.T) {
	tests := []struct {
		name    string
		from    model.OrderStatus
		to      model.OrderStatus
		effect  Effect
		noop    bool
		wantErr error
	}{
		{name: "complete held order", from: model.OrderStatusShipped, to: model.OrderStatusCompleted, effect: EffectPaySeller},
		{name: "cancel shipped order", from: model.OrderStatusShipped, to: model.OrderStatusCancelled, effect: EffectRefundBuyer},
		{name: "return from preparing", from: model.OrderStatusPreparing, to: model.OrderStatusReturned, effect: EffectRefundBuyer},
		{name: "skip ahead without money", from: model.OrderStatusPreparing, to: model.OrderStatusDelivered, effect: EffectNone},
		{name: "complete completed", from: model.OrderStatusCompleted, to: model.OrderStatusCompleted, noop: true},
		{name: "cancel cancelled", from: model.OrderStatusCancelled, to: model.OrderStatusCancelled, noop: true},
		{name: "complete cancelled", from: model.OrderStatusCancelled, to: model.OrderStatusCompleted, wantErr: apperr.ErrInvalidTransition},
		{name: "refund completed", from: model.OrderStatusCompleted, to: model.OrderStatusReturned, wantErr: apperr.ErrInvalidTransition},
		{name: "reopen returned", from: model.OrderStatusReturned, to: model.OrderStatusPreparing, wantErr: apperr.ErrInvalidTransition},
		{name: "unknown status", from: model.OrderStatusPreparing, to: model.OrderStatus("LOST"), wantErr: apperr.ErrInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			step, err := PlanForced(order(tt.from), tt.to)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.effect, step.Effect)
			assert.Equal(t, tt.noop, step.Noop())
		})
	}
}
