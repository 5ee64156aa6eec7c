package services

import (
	"math"

	"societypay/errors"
)

// ToMinorUnits converts a decimal INR price to paise, rounding half up.
// Gateways reject fractional minor units, so the conversion always lands on
// an integer.
func ToMinorUnits(price float64) (int64, error) {
	if price < 0 {
		return 0, errors.E(errors.Invalid, "amount must not be negative")
	}
	return int64(math.Floor(price*100 + 0.5)), nil
}
