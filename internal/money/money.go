// Package money implements integer-stroop fixed point arithmetic: no
// floating point ever touches a settlement path. Rates (platform fee,
// reward split) arrive as float64 in [0,1] from configuration/contract
// rows, but are immediately snapped to a fixed-point integer scale before
// any arithmetic on stroop amounts happens.
package money

import (
	"math"
	"math/big"

	"github.com/klaytn/kale-pool/internal/errkind"
)

// Scale is the fixed-point denominator: rates are scaled by 10^4.
const Scale = 10000

// StroopsPerKale is the conversion factor: 1 KALE = 10^7 stroops.
const StroopsPerKale = 10_000_000

// MinExitStroops is the minimum total reward (0.1 KALE) an exit may settle.
const MinExitStroops = 1_000_000

// ScaleRate rounds a [0,1] rate to the nearest integer on the Scale
// denominator: round(rate * 10^4).
func ScaleRate(rate float64) int64 {
	return int64(math.Round(rate * Scale))
}

// mulDiv computes floor(a * scaledRate / Scale) without risking int64
// overflow for large stroop totals, using math/big purely as an
// overflow-safe multiply-then-divide — no decimal/rational arithmetic is
// introduced, matching the "no floats" mandate.
func mulDiv(a, scaledRate int64) int64 {
	prod := new(big.Int).Mul(big.NewInt(a), big.NewInt(scaledRate))
	prod.Quo(prod, big.NewInt(Scale))
	return prod.Int64()
}

// Split computes the three-way exit split.
//
//	platform_fee = total * round(platformFeeRate * 10^4) / 10^4
//	net          = total - platform_fee
//	farmer_share = net * round(rewardSplit * 10^4) / 10^4
//	pooler_share = net - farmer_share
//
// It asserts farmer_share + pooler_share + platform_fee == total, returning
// a KindCalculationImbalance error if the integer split ever fails to
// reconstitute the total exactly.
func Split(total int64, platformFeeRate, rewardSplit float64) (platformFee, farmerShare, poolerShare int64, err error) {
	scaledFeeRate := ScaleRate(platformFeeRate)
	scaledSplit := ScaleRate(rewardSplit)

	platformFee = mulDiv(total, scaledFeeRate)
	net := total - platformFee
	farmerShare = mulDiv(net, scaledSplit)
	poolerShare = net - farmerShare

	if farmerShare+poolerShare+platformFee != total {
		return 0, 0, 0, errkind.New(errkind.KindCalculationImbalance, "exit split does not sum to total")
	}
	return platformFee, farmerShare, poolerShare, nil
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
