// Package tier содержит таблицу уровней лояльности по сумме пополнений.
package tier

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Level описывает порог накопленных пополнений и скидку ваучера за его достижение.
type Level struct {
	Name      string
	Threshold int64
	Percent   decimal.Decimal
}

// Levels упорядочены по возрастанию порога. Единственный источник порогов
// для начисления при пополнении, для досинхронизации и для ежемесячной выдачи.
var Levels = []Level{
	{Name: "BRONZE", Threshold: 500_000, Percent: decimal.RequireFromString("0.03")},
	{Name: "SILVER", Threshold: 5_000_000, Percent: decimal.RequireFromString("0.05")},
	{Name: "GOLD", Threshold: 15_000_000, Percent: decimal.RequireFromString("0.10")},
	{Name: "PLATINUM", Threshold: 80_000_000, Percent: decimal.RequireFromString("0.15")},
	{Name: "DIAMOND", Threshold: 250_000_000, Percent: decimal.RequireFromString("0.25")},
	{Name: "TITANIUM", Threshold: 1_000_000_000, Percent: decimal.RequireFromString("0.35")},
}

// Crossed возвращает уровни, пороги которых лежат в полуинтервале (oldTotal, newTotal].
func Crossed(oldTotal, newTotal int64) []Level {
	var res []Level
	for _, l := range Levels {
		if oldTotal < l.Threshold && l.Threshold <= newTotal {
			res = append(res, l)
		}
	}
	return res
}

// Reached возвращает все уровни, достигнутые при указанной сумме.
func Reached(total int64) []Level {
	var res []Level
	for _, l := range Levels {
		if l.Threshold <= total {
			res = append(res, l)
		}
	}
	return res
}

// Highest возвращает наивысший достигнутый уровень.
func Highest(total int64) (Level, bool) {
	reached := Reached(total)
	if len(reached) == 0 {
		return Level{}, false
	}
	return reached[len(reached)-1], true
}

// VoucherCodePrefix начинает коды всех ваучеров за уровни.
const VoucherCodePrefix = "VIP_"

// VoucherCode возвращает детерминированный код ваучера за уровень.
// Существование ваучера с этим кодом означает, что награда уже выдана.
func VoucherCode(level Level, userID int64) string {
	return fmt.Sprintf("%s%s_%d", VoucherCodePrefix, level.Name, userID)
}
