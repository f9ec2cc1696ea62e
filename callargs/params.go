// Package callargs turns heterogeneous call arguments into canonical call parameters
// and coerces them into the Go values expected by an ABI.
package callargs

import (
	"fmt"
	"math/big"
	"reflect"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Reserved control keys. Named parameters never start with '$'.
const (
	KeyFrom       = "$from"
	KeyTo         = "$to"
	KeyValue      = "$value"
	KeyGas        = "$gas"
	KeyGasPrice   = "$gasPrice"
	KeyNonce      = "$nonce"
	KeyData       = "$data"
	KeyExtraGas   = "$extraGas"
	KeyNoEstimate = "$noEstimate"
	KeyVerbose    = "$verbose"
	KeyCallback   = "$callback"
)

// legacyFields maps the transaction object fields of the callback-style client to reserved keys.
var legacyFields = map[string]string{
	"from":     KeyFrom,
	"to":       KeyTo,
	"gasPrice": KeyGasPrice,
	"gas":      KeyGas,
	"value":    KeyValue,
	"nonce":    KeyNonce,
}

// Callback receives the result of a call once it completes.
type Callback func(result any, err error)

// Params are canonical call parameters: named ABI parameters plus reserved control keys.
type Params map[string]any

// Options is the typed form of the reserved control keys.
type Options struct {
	From       *common.Address
	To         *common.Address
	Value      *big.Int
	Gas        *uint64
	GasPrice   *big.Int
	Nonce      *uint64
	ExtraGas   *uint64
	NoEstimate bool
	Verbose    bool
}

// Params returns the control keys set in o.
func (o Options) Params() Params {
	p := make(Params)
	if o.From != nil {
		p[KeyFrom] = *o.From
	}
	if o.To != nil {
		p[KeyTo] = *o.To
	}
	if o.Value != nil {
		p[KeyValue] = o.Value
	}
	if o.Gas != nil {
		p[KeyGas] = *o.Gas
	}
	if o.GasPrice != nil {
		p[KeyGasPrice] = o.GasPrice
	}
	if o.Nonce != nil {
		p[KeyNonce] = *o.Nonce
	}
	if o.ExtraGas != nil {
		p[KeyExtraGas] = *o.ExtraGas
	}
	if o.NoEstimate {
		p[KeyNoEstimate] = true
	}
	if o.Verbose {
		p[KeyVerbose] = true
	}
	return p
}

// ParamName is the canonical name of the input at index idx:
// one leading underscore is stripped, and unnamed inputs are called arg<idx>.
func ParamName(in abi.Argument, idx int) string {
	if in.Name == "" {
		return fmt.Sprintf("arg%d", idx)
	}
	return strings.TrimPrefix(in.Name, "_")
}

// Transaction builds parameters for a raw transaction from a transaction object.
// Legacy fields and data (or input) are mapped to reserved keys, reserved keys are kept.
func Transaction(obj map[string]any) Params {
	p := make(Params)
	for k, v := range obj {
		switch {
		case strings.HasPrefix(k, "$"):
			p[k] = v
		case k == "data" || k == "input":
			p[KeyData] = v
		default:
			if key, ok := legacyFields[k]; ok {
				p[key] = v
			}
		}
	}
	return p
}

// Clone returns a shallow copy.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Named returns the parameters that are not reserved control keys.
func (p Params) Named() Params {
	out := make(Params)
	for k, v := range p {
		if !strings.HasPrefix(k, "$") {
			out[k] = v
		}
	}
	return out
}

func (p Params) From() (*common.Address, error) {
	return p.address(KeyFrom)
}

func (p Params) To() (*common.Address, error) {
	return p.address(KeyTo)
}

func (p Params) Value() (*big.Int, error) {
	return p.bigInt(KeyValue)
}

func (p Params) GasPrice() (*big.Int, error) {
	return p.bigInt(KeyGasPrice)
}

func (p Params) Gas() (*uint64, error) {
	return p.uint64(KeyGas)
}

func (p Params) Nonce() (*uint64, error) {
	return p.uint64(KeyNonce)
}

func (p Params) ExtraGas() (*uint64, error) {
	return p.uint64(KeyExtraGas)
}

func (p Params) Data() ([]byte, error) {
	v, ok := p[KeyData]
	if !ok || v == nil {
		return nil, nil
	}
	b, err := toBytes(v)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", KeyData, err)
	}
	return b, nil
}

func (p Params) NoEstimate() bool {
	return p.flag(KeyNoEstimate)
}

func (p Params) Verbose() bool {
	return p.flag(KeyVerbose)
}

// Callback returns the completion callback, or nil.
func (p Params) Callback() Callback {
	switch cb := p[KeyCallback].(type) {
	case Callback:
		return cb
	case func(any, error):
		return cb
	}
	return nil
}

func (p Params) flag(key string) bool {
	switch v := p[key].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	}
	return false
}

func (p Params) address(key string) (*common.Address, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return nil, nil
	}
	addr, err := toAddress(v)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", key, err)
	}
	return &addr, nil
}

func (p Params) bigInt(key string) (*big.Int, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return nil, nil
	}
	n, err := toBig(v)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", key, err)
	}
	if n.Sign() < 0 {
		return nil, fmt.Errorf("invalid %s: negative value %s", key, n)
	}
	return n, nil
}

func (p Params) uint64(key string) (*uint64, error) {
	n, err := p.bigInt(key)
	if err != nil || n == nil {
		return nil, err
	}
	if !n.IsUint64() {
		return nil, fmt.Errorf("invalid %s: %s does not fit in 64 bits", key, n)
	}
	u := n.Uint64()
	return &u, nil
}

func toAddress(v any) (common.Address, error) {
	switch x := v.(type) {
	case common.Address:
		return x, nil
	case *common.Address:
		if x != nil {
			return *x, nil
		}
	case string:
		if common.IsHexAddress(x) {
			return common.HexToAddress(x), nil
		}
		return common.Address{}, fmt.Errorf("%q is not a hex address", x)
	case []byte:
		if len(x) == common.AddressLength {
			return common.BytesToAddress(x), nil
		}
	}
	return common.Address{}, fmt.Errorf("cannot use %T as an address", v)
}

func toBytes(v any) ([]byte, error) {
	switch x := v.(type) {
	case []byte:
		return x, nil
	case hexutil.Bytes:
		return x, nil
	case string:
		if x == "" {
			return []byte{}, nil
		}
		return hexutil.Decode(x)
	case common.Hash:
		return x.Bytes(), nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Array && rv.Type().Elem().Kind() == reflect.Uint8 {
		out := make([]byte, rv.Len())
		reflect.Copy(reflect.ValueOf(out), rv)
		return out, nil
	}
	if rv.Kind() == reflect.Slice {
		out := make([]byte, rv.Len())
		for i := range out {
			n, err := toBig(rv.Index(i).Interface())
			if err != nil {
				return nil, fmt.Errorf("byte %d: %w", i, err)
			}
			if n.Sign() < 0 || n.BitLen() > 8 {
				return nil, fmt.Errorf("byte %d: %s is outside the byte range", i, n)
			}
			out[i] = byte(n.Uint64())
		}
		return out, nil
	}
	return nil, fmt.Errorf("cannot use %T as bytes", v)
}
