// Package validation содержит функции валидации входных данных.
package validation

import "unicode"

const (
	minCodeLen = 3
	maxCodeLen = 64
)

func luhnSum(number string, doubleFirst bool) (int, bool) {
	sum := 0
	double := doubleFirst

	for i := len(number) - 1; i >= 0; i-- {
		ch := rune(number[i])
		if !unicode.IsDigit(ch) {
			return 0, false
		}
		digit := int(ch - '0')
		if double {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}
		sum += digit
		double = !double
	}

	return sum, true
}

// IsValidOrderNumber проверяет корректность номера заказа по алгоритму Луна.
func IsValidOrderNumber(number string) bool {
	if number == "" {
		return false
	}
	sum, ok := luhnSum(number, false)
	return ok && sum%10 == 0
}

// WithCheckDigit дописывает к цифровой строке контрольную цифру Луна.
// Для пустой строки или строки с нецифровыми символами возвращает "".
func WithCheckDigit(digits string) string {
	if digits == "" {
		return ""
	}
	sum, ok := luhnSum(digits, true)
	if !ok {
		return ""
	}
	return digits + string(rune('0'+(10-sum%10)%10))
}

// IsValidCode проверяет форму кода ваучера или пополнения:
// латинские буквы, цифры, '_' и '-', длина от 3 до 64 символов.
func IsValidCode(code string) bool {
	if len(code) < minCodeLen || len(code) > maxCodeLen {
		return false
	}
	for _, ch := range code {
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9', ch == '_', ch == '-':
		default:
			return false
		}
	}
	return true
}
