// Package apperr содержит типизированные ошибки расчётного ядра.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound возвращается, если пользователь, заказ, ваучер или транзакция не найдены.
	ErrNotFound = errors.New("not found")
	// ErrValidation возвращается при некорректных входных данных.
	ErrValidation = errors.New("validation error")
	// ErrInsufficientFunds возвращается, если баланса недостаточно для списания.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrInsufficientStock возвращается, если на складе недостаточно товара.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrProductUnavailable возвращается, если товар не одобрен к продаже.
	ErrProductUnavailable = errors.New("product unavailable")
	// ErrVoucherInvalid возвращается, если ваучер нельзя применить. Причина в VoucherError.
	ErrVoucherInvalid = errors.New("voucher invalid")
	// ErrInvalidTransition возвращается при переходе заказа из недопустимого состояния.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrUnauthorized возвращается, если действие выполняет не тот участник.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrSelfTrade возвращается при попытке купить собственный товар.
	ErrSelfTrade = errors.New("self trade")
	// ErrConflict возвращается при нарушении уникальности (например, код ваучера уже занят).
	ErrConflict = errors.New("conflict")
)

// VoucherReason уточняет причину отказа в применении ваучера.
type VoucherReason string

const (
	VoucherNotFound       VoucherReason = "not_found"
	VoucherInactive       VoucherReason = "inactive"
	VoucherExpired        VoucherReason = "expired"
	VoucherExhausted      VoucherReason = "exhausted"
	VoucherMinOrderNotMet VoucherReason = "min_order_not_met"
)

// VoucherError описывает отказ в применении ваучера.
type VoucherError struct {
	Reason VoucherReason
	Code   string
}

func (e *VoucherError) Error() string {
	return fmt.Sprintf("voucher %q: %s", e.Code, e.Reason)
}

// Is позволяет сопоставлять VoucherError с ErrVoucherInvalid через errors.Is.
func (e *VoucherError) Is(target error) bool {
	return target == ErrVoucherInvalid
}

// NewVoucherError создаёт ошибку ваучера с указанной причиной.
func NewVoucherError(code string, reason VoucherReason) *VoucherError {
	return &VoucherError{Reason: reason, Code: code}
}

// VoucherReasonOf извлекает причину отказа, если err содержит VoucherError.
func VoucherReasonOf(err error) (VoucherReason, bool) {
	var ve *VoucherError
	if errors.As(err, &ve) {
		return ve.Reason, true
	}
	return "", false
}

// Validation оборачивает ErrValidation с описанием поля.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
