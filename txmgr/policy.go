package txmgr

import (
	"errors"
	"math"
	"math/big"
	"math/bits"

	"github.com/ethereum/go-ethereum/params"
)

const (
	DefaultGasCeiling    = 4_000_000
	DefaultMarginPercent = 5
)

// GasPolicy decides the gas of every transaction-producing operation.
type GasPolicy struct {
	// Ceiling rejects any estimate at or above it. It is also the gas of submissions
	// that skip estimation.
	Ceiling uint64
	// Margin returns the extra gas added on top of an estimate, unless the caller sets one.
	Margin func(estimate uint64) uint64
	// TransferFloor is the minimum gas of a transaction without data.
	TransferFloor uint64
	// GasPrice is used when the caller sets none. Nil leaves it to the node.
	GasPrice *big.Int
}

func DefaultGasPolicy() GasPolicy {
	return GasPolicy{
		Ceiling:       DefaultGasCeiling,
		Margin:        PercentMargin(DefaultMarginPercent),
		TransferFloor: params.TxGas,
	}
}

// PercentMargin returns floor(estimate * pct / 100), without overflowing.
func PercentMargin(pct uint64) func(estimate uint64) uint64 {
	return func(estimate uint64) uint64 {
		return estimate/100*pct + estimate%100*pct/100
	}
}

func (p GasPolicy) Check() error {
	if p.Ceiling == 0 {
		return errors.New("gas ceiling must be positive")
	}
	if p.Margin == nil {
		return errors.New("gas margin is required")
	}
	return nil
}

// withMargin applies the explicit extra gas, or the policy margin when extra is nil.
// The sum saturates at the max uint64.
func (p GasPolicy) withMargin(estimate uint64, extra *uint64) uint64 {
	margin := p.Margin(estimate)
	if extra != nil {
		margin = *extra
	}
	sum, carry := bits.Add64(estimate, margin, 0)
	if carry != 0 {
		return math.MaxUint64
	}
	return sum
}
