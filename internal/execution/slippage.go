package execution

import (
	"math"
	"math/big"
)

// slippageScale is the denominator for slippage units: one unit is a
// thousandth of a percent, so a 0.5% tolerance is 500 units out of 100000.
const slippageScale = 100000

// SlippageUnits converts a percentage tolerance into integer units.
func SlippageUnits(slippagePct float64) int64 {
	units := int64(math.Round(slippagePct * 1000))
	if units < 0 {
		return 0
	}
	return units
}

// MaxInputWithSlippage widens inputAmount by the slippage tolerance using
// integer arithmetic only; floats never touch the amount itself.
func MaxInputWithSlippage(inputAmount *big.Int, slippagePct float64) *big.Int {
	if inputAmount == nil {
		return new(big.Int)
	}
	margin := new(big.Int).Mul(inputAmount, big.NewInt(SlippageUnits(slippagePct)))
	margin.Quo(margin, big.NewInt(slippageScale))
	return new(big.Int).Add(inputAmount, margin)
}

// MinOutputWithSlippage narrows outputAmount by the slippage tolerance,
// the mirror bound used for exact-input legs.
func MinOutputWithSlippage(outputAmount *big.Int, slippagePct float64) *big.Int {
	if outputAmount == nil {
		return new(big.Int)
	}
	margin := new(big.Int).Mul(outputAmount, big.NewInt(SlippageUnits(slippagePct)))
	margin.Quo(margin, big.NewInt(slippageScale))
	return new(big.Int).Sub(outputAmount, margin)
}
