// README: Common money value object used across modules.
package types

// Money is an amount in minor units (cents) with its currency.
type Money struct {
	Amount   int64
	Currency string
}

// DefaultCurrency is used when a record does not carry its own currency.
const DefaultCurrency = "INR"

func (m Money) IsNegative() bool {
	return m.Amount < 0
}
