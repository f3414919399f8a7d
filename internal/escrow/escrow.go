// Package escrow описывает машину состояний заказа и денежные эффекты переходов.
package escrow

import (
	"fmt"

	"github.com/mmeshcher/chatbox-ledger/internal/apperr"
	"github.com/mmeshcher/chatbox-ledger/internal/model"
)

// Effect описывает денежное последствие перехода.
type Effect int

const (
	// EffectNone не затрагивает кошельки и склад.
	EffectNone Effect = iota
	// EffectPaySeller переводит удерживаемую сумму продавцу и увеличивает счётчики продаж.
	EffectPaySeller
	// EffectRefundBuyer возвращает удерживаемую сумму покупателю и восстанавливает склад.
	EffectRefundBuyer
)

func (e Effect) String() string {
	switch e {
	case EffectPaySeller:
		return "pay_seller"
	case EffectRefundBuyer:
		return "refund_buyer"
	}
	return "none"
}

// Rule описывает допустимый переход.
type Rule struct {
	From   model.OrderStatus
	To     model.OrderStatus
	Actors []model.Party
	Effect Effect
}

func (r Rule) allows(p model.Party) bool {
	for _, a := range r.Actors {
		if a == p {
			return true
		}
	}
	return false
}

// Rules содержит полную таблицу переходов заказа.
var Rules = []Rule{
	{From: model.OrderStatusPreparing, To: model.OrderStatusShipped, Actors: []model.Party{model.PartySeller}, Effect: EffectNone},
	{From: model.OrderStatusShipped, To: model.OrderStatusDelivered, Actors: []model.Party{model.PartyBuyer}, Effect: EffectNone},
	{From: model.OrderStatusDelivered, To: model.OrderStatusCompleted, Actors: []model.Party{model.PartySeller}, Effect: EffectPaySeller},
	{From: model.OrderStatusPreparing, To: model.OrderStatusCancelled, Actors: []model.Party{model.PartyBuyer, model.PartySeller}, Effect: EffectRefundBuyer},
	{From: model.OrderStatusDelivered, To: model.OrderStatusReturnRequested, Actors: []model.Party{model.PartyBuyer}, Effect: EffectNone},
	{From: model.OrderStatusReturnRequested, To: model.OrderStatusReturned, Actors: []model.Party{model.PartySeller}, Effect: EffectRefundBuyer},
}

// Step описывает результат планирования перехода.
type Step struct {
	From   model.OrderStatus
	To     model.OrderStatus
	Effect Effect
}

// Noop сообщает, что переход не меняет ни статус, ни деньги.
func (s Step) Noop() bool {
	return s.From == s.To && s.Effect == EffectNone
}

// Plan проверяет переход заказа в target по инициативе actorID.
// Неверный участник даёт ErrUnauthorized, неверное исходное состояние даёт ErrInvalidTransition.
func Plan(o *model.Order, target model.OrderStatus, actorID int64) (Step, error) {
	var candidates []Rule
	for _, r := range Rules {
		if r.To == target {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		return Step{}, fmt.Errorf("%w: %s is not a reachable status", apperr.ErrInvalidTransition, target)
	}

	party := o.PartyOf(actorID)
	permitted := false
	for _, r := range candidates {
		if !r.allows(party) {
			continue
		}
		permitted = true
		if r.From == o.Status {
			return Step{From: o.Status, To: target, Effect: r.Effect}, nil
		}
	}
	if !permitted {
		return Step{}, fmt.Errorf("%w: user %d cannot move order %d to %s", apperr.ErrUnauthorized, actorID, o.ID, target)
	}

	return Step{}, fmt.Errorf("%w: %s -> %s", apperr.ErrInvalidTransition, o.Status, target)
}

// PlanForced планирует административный переход без проверки участника и предшественника.
// Денежный эффект определяется текущим статусом: выплата или возврат выполняются
// только пока средства удерживаются. Повторный переход в текущий статус ничего не делает.
// Заказ в конечном статусе нельзя перевести в другой статус: удержание уже снято.
func PlanForced(o *model.Order, target model.OrderStatus) (Step, error) {
	if !target.Valid() {
		return Step{}, fmt.Errorf("%w: unknown status %q", apperr.ErrInvalidTransition, target)
	}

	step := Step{From: o.Status, To: target, Effect: EffectNone}
	if o.Status == target {
		return step, nil
	}
	if o.Status.Terminal() {
		return Step{}, fmt.Errorf("%w: order %d already settled as %s", apperr.ErrInvalidTransition, o.ID, o.Status)
	}

	switch target {
	case model.OrderStatusCompleted:
		step.Effect = EffectPaySeller
	case model.OrderStatusCancelled, model.OrderStatusReturned:
		step.Effect = EffectRefundBuyer
	}
	return step, nil
}
