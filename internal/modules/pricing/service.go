// README: Pricing service computes platform fee, counterpart earning and total.
package pricing

import (
	"context"

	"opsconsole/internal/types"
)

type Service struct {
	rates map[string]Rate
}

func NewService() *Service {
	return &Service{rates: defaultRates}
}

// Quote splits an order's amounts between the platform and the counterpart
// (estore, worker or driver). The tip always goes to the counterpart.
func (s *Service) Quote(ctx context.Context, domain string, in Input) (Breakdown, error) {
	for _, amt := range []int64{in.Subtotal, in.Tip, in.DeliveryFee} {
		if (types.Money{Amount: amt, Currency: types.DefaultCurrency}).IsNegative() {
			return Breakdown{}, ErrNegativeAmount
		}
		if amt > MaxAmount {
			return Breakdown{}, ErrAmountTooLarge
		}
	}
	rate, ok := s.rates[domain]
	if !ok {
		return Breakdown{}, ErrUnknownRate
	}

	basis := in.Subtotal
	if rate.Basis == BasisDeliveryFee {
		basis = in.DeliveryFee
	}
	fee := percentOf(basis, rate.BasisPoint)

	return Breakdown{
		Subtotal:    in.Subtotal,
		Tip:         in.Tip,
		DeliveryFee: in.DeliveryFee,
		PlatformFee: fee,
		Earning:     basis - fee + in.Tip,
		Total:       in.Subtotal + in.Tip + in.DeliveryFee,
		Currency:    types.DefaultCurrency,
	}, nil
}

// percentOf rounds half up.
func percentOf(amount, bp int64) int64 {
	return (amount*bp + 5000) / 10000
}
