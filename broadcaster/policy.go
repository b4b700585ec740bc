package broadcaster

import (
	"math/big"
)

// Policy is the fee/bump tuning the broadcaster's submit and bump loops
// consult (spec.md §6 `tx_policy.*`).
type Policy struct {
	// GasBumpPercent scales fee fields by 1 + GasBumpPercent/100 on each
	// bump (spec.md §4.2 bump loop).
	GasBumpPercent uint32
	// BumpThreshold is how long a submitted tx may sit without a
	// receipt before the bump loop replaces it (spec.md §4.2, e.g. 30s).
	BumpThresholdSeconds int64
	// MaxBumpCount caps how many times a single tx may be bumped before
	// it is abandoned (spec.md §4.2, e.g. 5).
	MaxBumpCount int
	// BaseFeeCapWei/BaseTipCapWei seed a freshly submitted tx's
	// EIP-1559 fee fields before any bump is applied.
	BaseFeeCapWei string
	BaseTipCapWei string
	// GasLimit is the fixed gas limit used for all three transaction
	// kinds (claim, complete, resume);
	// spec.md treats the contract surface as fixed-shape, so a single
	// conservative limit suffices rather than per-call estimation.
	GasLimit uint64
}

// DefaultPolicy matches the values the spec's scenarios (S3) exercise.
func DefaultPolicy() Policy {
	return Policy{
		GasBumpPercent:       10,
		BumpThresholdSeconds: 30,
		MaxBumpCount:         5,
		BaseFeeCapWei:        "2000000000",
		BaseTipCapWei:        "1000000000",
		GasLimit:             300000,
	}
}

// BumpFee scales a decimal wei string by 1 + percent/100, rounding down.
func BumpFee(weiDecimal string, percent uint32) string {
	v, ok := new(big.Int).SetString(weiDecimal, 10)
	if !ok {
		return weiDecimal
	}
	num := new(big.Int).Mul(v, big.NewInt(int64(100+percent)))
	num.Div(num, big.NewInt(100))
	return num.String()
}
