// README: Platform fee rates and the pricing breakdown stored on each record.
package pricing

import "errors"

var (
	ErrNegativeAmount = errors.New("amount must not be negative")
	ErrUnknownRate    = errors.New("no rate for domain")
	ErrAmountTooLarge = errors.New("amount exceeds the supported maximum")
)

// MaxAmount bounds every input so basis-point arithmetic and the total stay
// inside int64.
const MaxAmount int64 = 100_000_000_000_000

// Basis selects which amount the platform fee is taken from.
type Basis string

const (
	BasisSubtotal    Basis = "subtotal"
	BasisDeliveryFee Basis = "deliveryFee"
)

// Rate is the platform's cut for one domain, in basis points.
type Rate struct {
	Domain     string
	Basis      Basis
	BasisPoint int64
}

// Input amounts are minor units (paise/cents).
type Input struct {
	Subtotal    int64
	Tip         int64
	DeliveryFee int64
}

type Breakdown struct {
	Subtotal    int64  `json:"subtotal"`
	Tip         int64  `json:"tip"`
	DeliveryFee int64  `json:"deliveryFee"`
	PlatformFee int64  `json:"platformFee"`
	Earning     int64  `json:"earning"`
	Total       int64  `json:"total"`
	Currency    string `json:"currency"`
}

var defaultRates = map[string]Rate{
	"estore-orders": {Domain: "estore-orders", Basis: BasisSubtotal, BasisPoint: 1000},
	"hire-skills":   {Domain: "hire-skills", Basis: BasisSubtotal, BasisPoint: 1500},
	"pick-drop":     {Domain: "pick-drop", Basis: BasisDeliveryFee, BasisPoint: 2000},
}
