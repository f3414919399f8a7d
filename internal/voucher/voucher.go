// Package voucher содержит правила проверки ваучера и расчёта скидки.
package voucher

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/chatbox-ledger/internal/apperr"
	"github.com/mmeshcher/chatbox-ledger/internal/model"
)

// Check проверяет, что пользователь может применить ваучер к заказу на сумму subtotal.
// Проверки выполняются в фиксированном порядке, возвращается первая сработавшая.
func Check(v *model.Voucher, userID int64, subtotal int64, now time.Time) error {
	if v == nil || (v.OwnerID != nil && *v.OwnerID != userID) {
		code := ""
		if v != nil {
			code = v.Code
		}
		return apperr.NewVoucherError(code, apperr.VoucherNotFound)
	}
	if !v.IsActive {
		return apperr.NewVoucherError(v.Code, apperr.VoucherInactive)
	}
	if !v.ExpirationDate.After(now) {
		return apperr.NewVoucherError(v.Code, apperr.VoucherExpired)
	}
	if v.UsedCount >= v.UsageLimit {
		return apperr.NewVoucherError(v.Code, apperr.VoucherExhausted)
	}
	if subtotal < v.MinOrderAmount {
		return apperr.NewVoucherError(v.Code, apperr.VoucherMinOrderNotMet)
	}
	return nil
}

// Apply рассчитывает скидку и итоговую сумму. Процентная скидка имеет приоритет
// над фиксированной, если процент больше нуля. Итог не бывает отрицательным,
// а возвращаемая скидка равна фактически вычтенной сумме.
func Apply(v *model.Voucher, subtotal int64) (discount, final int64) {
	if v.DiscountPercent.GreaterThan(decimal.Zero) {
		discount = decimal.NewFromInt(subtotal).Mul(v.DiscountPercent).Round(0).IntPart()
	} else {
		discount = v.DiscountAmount
	}

	final = subtotal - discount
	if final < 0 {
		final = 0
	}
	return subtotal - final, final
}

// Available сообщает, можно ли показывать ваучер в списке доступных пользователю.
func Available(v *model.Voucher, now time.Time) bool {
	return v.IsActive && v.ExpirationDate.After(now) && v.UsedCount < v.UsageLimit
}
