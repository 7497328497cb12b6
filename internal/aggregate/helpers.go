package aggregate

import (
	"math/big"
	"strings"
)

const ratioScale = 18

// formatTokenAmount renders value in whole units with exactly decimals
// fractional digits.
func formatTokenAmount(value *big.Int, decimals uint8) string {
	if value == nil {
		return "0"
	}
	if decimals == 0 {
		return value.String()
	}
	digits := new(big.Int).Abs(value).String()
	if pad := int(decimals) + 1 - len(digits); pad > 0 {
		digits = strings.Repeat("0", pad) + digits
	}
	cut := len(digits) - int(decimals)
	out := digits[:cut] + "." + digits[cut:]
	if value.Sign() < 0 {
		out = "-" + out
	}
	return out
}

// computeRate returns num/den at ratioScale digits, or nil when either side
// is zero.
func computeRate(num *big.Int, den *big.Int) *string {
	if num == nil || num.Sign() == 0 || den == nil || den.Sign() == 0 {
		return nil
	}
	rate := new(big.Rat).SetFrac(num, den).FloatString(ratioScale)
	return &rate
}
