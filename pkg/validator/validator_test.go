package validator

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

type wireForm struct {
	Amount        decimal.Decimal `validate:"required,gt=0"`
	RoutingNumber string          `validate:"required,routing_number"`
	AccountNumber string          `validate:"required,bank_account_number"`
	SwiftCode     string          `validate:"omitempty,swift_code"`
}

func TestValidateStructured(t *testing.T) {
	v := New()

	ok := wireForm{
		Amount:        decimal.RequireFromString("10.50"),
		RoutingNumber: "021000021",
		AccountNumber: "123456789",
		SwiftCode:     "CHASUS33",
	}
	assert.Nil(t, v.ValidateStructured(ok))
	assert.NoError(t, v.Validate(ok))

	bad := wireForm{
		Amount:        decimal.Zero,
		RoutingNumber: "12345",
		AccountNumber: "12",
		SwiftCode:     "XX",
	}
	errs := v.ValidateStructured(bad)
	assert.Equal(t, "This field is required", errs["Amount"])
	assert.Equal(t, "Routing number must be 9 digits", errs["RoutingNumber"])
	assert.Equal(t, "Account number must be 4 to 17 digits", errs["AccountNumber"])
	assert.Equal(t, "Invalid SWIFT/BIC code", errs["SwiftCode"])
}

func TestHelpers(t *testing.T) {
	assert.True(t, ValidSwiftCode("deutdeff500"))
	assert.False(t, ValidRoutingNumber("02100002a"))
	assert.Equal(t, "&lt;b&gt;", Sanitize("  <b> "))
}
