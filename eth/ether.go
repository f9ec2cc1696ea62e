// Package eth holds value types shared by the chain-facing packages.
package eth

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/holiman/uint256"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/params"
)

var (
	OneEther   = Ether(1)
	OneGWei    = GWei(1)
	OneWei     = WeiU64(1)
	ZeroWei    = WeiU64(0)
	MaxU256Wei = ETH(uint256.Int{0: ^uint64(0), 1: ^uint64(0), 2: ^uint64(0), 3: ^uint64(0)})
)

var (
	weiPerGWei = uint256.NewInt(params.GWei)
	weiPerEth  = uint256.NewInt(params.Ether)
)

// ETH is an amount of ether, expressed in number of wei.
// Values are passed flat and never mutated in place.
type ETH uint256.Int

// String prints the amount with thousands separators, in the largest unit that divides it exactly.
func (e ETH) String() string {
	vWei := (*uint256.Int)(&e)
	if vWei.Sign() == 0 {
		return "0 wei"
	}
	var vGWei, remainder uint256.Int
	vGWei.DivMod(vWei, weiPerGWei, &remainder)
	if remainder.Sign() != 0 {
		return vWei.PrettyDec(',') + " wei"
	}
	var vEth uint256.Int
	vEth.DivMod(vWei, weiPerEth, &remainder)
	if remainder.Sign() == 0 {
		return vEth.PrettyDec(',') + " ether"
	}
	return vGWei.PrettyDec(',') + " gwei"
}

// Decimal returns the amount, in wei, in decimal form.
func (e ETH) Decimal() string {
	return (*uint256.Int)(&e).Dec()
}

// Hex returns the amount, in wei, in hexadecimal form with 0x prefix.
func (e ETH) Hex() string {
	return (*uint256.Int)(&e).Hex()
}

// EtherString returns the amount in ether units, without unit suffix or trailing zeroes.
func (e ETH) EtherString() string {
	var ethers, remainder uint256.Int
	ethers.DivMod((*uint256.Int)(&e), weiPerEth, &remainder)
	if remainder.Sign() == 0 {
		return ethers.Dec()
	}
	rem := remainder.Dec()
	suffix := strings.TrimRight(strings.Repeat("0", 18-len(rem))+rem, "0")
	return ethers.Dec() + "." + suffix
}

// ToBig converts to *big.Int, in wei.
func (e ETH) ToBig() *big.Int {
	return (*uint256.Int)(&e).ToBig()
}

// ToU256 returns a copy of the amount as *uint256.Int, in wei.
func (e ETH) ToU256() *uint256.Int {
	return (*uint256.Int)(&e).Clone()
}

func (e ETH) IsZero() bool {
	return (*uint256.Int)(&e).IsZero()
}

func (e ETH) Gt(v ETH) bool {
	return (*uint256.Int)(&e).Gt((*uint256.Int)(&v))
}

// Add panics if the result overflows uint256.
func (e ETH) Add(v ETH) (out ETH) {
	if _, overflow := (*uint256.Int)(&out).AddOverflow((*uint256.Int)(&e), (*uint256.Int)(&v)); overflow {
		panic(fmt.Errorf("add overflow: %s + %s", e, v))
	}
	return
}

// UnmarshalText accepts the formats of ParseETH.
func (e *ETH) UnmarshalText(data []byte) error {
	v, err := ParseETH(string(data))
	if err != nil {
		return err
	}
	*e = v
	return nil
}

// MarshalText marshals as decimal number of wei, without separators or unit.
func (e ETH) MarshalText() ([]byte, error) {
	return []byte(e.Decimal()), nil
}

// WeiBig turns the given big.Int amount of wei into ETH-typed wei.
// This panics if the amount is negative or does not fit in 256 bits.
func WeiBig(wei *big.Int) (out ETH) {
	if wei == nil {
		panic("nil *big.Int input to ETH constructor")
	}
	if wei.Sign() < 0 {
		panic("negative amounts are not supported")
	}
	if overflow := (*uint256.Int)(&out).SetFromBig(wei); overflow {
		panic("*big.Int input does not fit in uint256")
	}
	return
}

func WeiU64(wei uint64) (out ETH) {
	(*uint256.Int)(&out).SetUint64(wei)
	return
}

// GWei multiplies the amount by 1e9 to denominate it in wei.
func GWei(gwei uint64) ETH {
	var x uint256.Int
	x.SetUint64(gwei)
	x.Mul(&x, weiPerGWei)
	return ETH(x)
}

// Ether multiplies the amount by 1e18 to denominate it in wei.
func Ether(ether uint64) ETH {
	var x uint256.Int
	x.SetUint64(ether)
	x.Mul(&x, weiPerEth)
	return ETH(x)
}

func GweiToWei(gwei float64) (*big.Int, error) {
	if math.IsNaN(gwei) || math.IsInf(gwei, 0) || gwei < 0 {
		return nil, fmt.Errorf("invalid gwei value: %v", gwei)
	}
	wei, _ := new(big.Float).Mul(big.NewFloat(gwei), big.NewFloat(params.GWei)).Int(nil)
	if wei.Cmp(abi.MaxUint256) == 1 {
		return nil, errors.New("gwei value larger than max uint256")
	}
	return wei, nil
}

// units are matched in order, so "gwei" is tried before "wei".
var units = []struct {
	name     string
	decimals int
}{
	{"gwei", 9},
	{"ether", 18},
	{"eth", 18},
	{"wei", 0},
}

// ParseETH parses an amount such as "0.01 ether", "30gwei", "21000 wei", "0x5208" or "21000".
// A bare number is taken as wei. Fractions must resolve to a whole number of wei.
func ParseETH(s string) (ETH, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ETH{}, errors.New("empty amount")
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := uint256.FromHex(s)
		if err != nil {
			return ETH{}, fmt.Errorf("invalid hex amount %q: %w", s, err)
		}
		return ETH(*v), nil
	}
	num, decimals := s, 0
	lower := strings.ToLower(s)
	for _, u := range units {
		if strings.HasSuffix(lower, u.name) {
			num, decimals = strings.TrimSpace(s[:len(s)-len(u.name)]), u.decimals
			break
		}
	}
	if num == "" {
		return ETH{}, fmt.Errorf("invalid amount %q", s)
	}
	whole, frac, _ := strings.Cut(num, ".")
	frac = strings.TrimRight(frac, "0")
	if len(frac) > decimals {
		return ETH{}, fmt.Errorf("amount %q has more precision than 1 wei", s)
	}
	digits := whole + frac + strings.Repeat("0", decimals-len(frac))
	v, ok := new(big.Int).SetString(digits, 10)
	if !ok || v.Sign() < 0 {
		return ETH{}, fmt.Errorf("invalid amount %q", s)
	}
	if v.BitLen() > 256 {
		return ETH{}, fmt.Errorf("amount %q does not fit in uint256", s)
	}
	return WeiBig(v), nil
}
