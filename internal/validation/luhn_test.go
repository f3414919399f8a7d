package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidOrderNumber(t *testing.T) {
	tests := []struct {
		name   string
		number string
		valid  bool
	}{
		{name: "valid short number", number: "79927398713", valid: true},
		{name: "valid long number", number: "4539578763621486", valid: true},
		{name: "invalid checksum", number: "79927398710", valid: false},
		{name: "contains letters", number: "1234a67890", valid: false},
		{name: "empty string", number: "", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, IsValidOrderNumber(tt.number), tt.number)
		})
	}
}

func TestWithCheckDigit(t *testing.T) {
	assert.Equal(t, "79927398713", WithCheckDigit("7992739871"))
	assert.Equal(t, "4539578763621486", WithCheckDigit("453957876362148"))
	assert.Equal(t, "", WithCheckDigit(""))
	assert.Equal(t, "", WithCheckDigit("12a"))

	for _, base := range []string{"0", "1", "17000000001234567890", "999999"} {
		assert.True(t, IsValidOrderNumber(WithCheckDigit(base)), base)
	}
}

func TestIsValidCode(t *testing.T) {
	assert.True(t, IsValidCode("VIP_GOLD_42"))
	assert.True(t, IsValidCode("SALE-10"))
	assert.False(t, IsValidCode("AB"))
	assert.False(t, IsValidCode("with space"))
	assert.False(t, IsValidCode("ВАУЧЕР"))
	assert.False(t, IsValidCode(string(make([]byte, 65))))
}
