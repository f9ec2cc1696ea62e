package callargs

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/holiman/uint256"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/ethtx/ethtx/eth"
)

var bigIntType = reflect.TypeOf((*big.Int)(nil))

// Arguments returns the named parameters as values ready to be packed for inputs, in order.
func (p Params) Arguments(inputs abi.Arguments) ([]any, error) {
	out := make([]any, len(inputs))
	for idx, in := range inputs {
		name := ParamName(in, idx)
		v, ok := p[name]
		if !ok {
			return nil, fmt.Errorf("missing argument %q", name)
		}
		typed, err := Coerce(in.Type, v)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", name, err)
		}
		out[idx] = typed
	}
	return out, nil
}

// Coerce converts v to the Go type the abi package packs for t.
// Numbers may be given as Go integers, integral floats, decimal or 0x strings, or big integers.
// Bytes may be given as hex strings, byte slices or arrays, or lists of numbers.
// Tuples may be given as maps keyed by component name, or as structs with matching field order.
func Coerce(t abi.Type, v any) (any, error) {
	if v == nil {
		return nil, fmt.Errorf("nil value for %s", t)
	}
	if t.T == abi.IntTy || t.T == abi.UintTy {
		return coerceInt(t, v)
	}
	if reflect.TypeOf(v) == t.GetType() {
		return v, nil
	}
	switch t.T {
	case abi.BoolTy:
		switch x := v.(type) {
		case bool:
			return x, nil
		case string:
			b, err := strconv.ParseBool(x)
			if err != nil {
				return nil, fmt.Errorf("invalid bool %q", x)
			}
			return b, nil
		}
	case abi.StringTy:
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.String {
			return rv.String(), nil
		}
	case abi.AddressTy:
		return toAddress(v)
	case abi.BytesTy:
		return toBytes(v)
	case abi.FixedBytesTy:
		b, err := toBytes(v)
		if err != nil {
			return nil, err
		}
		if len(b) > t.Size {
			return nil, fmt.Errorf("%d bytes do not fit in %s", len(b), t)
		}
		arr := reflect.New(t.GetType()).Elem()
		reflect.Copy(arr, reflect.ValueOf(b))
		return arr.Interface(), nil
	case abi.SliceTy, abi.ArrayTy:
		return coerceList(t, v)
	case abi.TupleTy:
		return coerceTuple(t, v)
	default:
		return nil, fmt.Errorf("unsupported type %s", t)
	}
	return nil, fmt.Errorf("cannot use %T as %s", v, t)
}

func coerceInt(t abi.Type, v any) (any, error) {
	n, err := toBig(v)
	if err != nil {
		return nil, err
	}
	if t.T == abi.UintTy {
		if n.Sign() < 0 || n.BitLen() > t.Size {
			return nil, fmt.Errorf("%s out of range for %s", n, t)
		}
	} else {
		limit := new(big.Int).Lsh(big.NewInt(1), uint(t.Size-1))
		if n.Cmp(limit) >= 0 || n.Cmp(new(big.Int).Neg(limit)) < 0 {
			return nil, fmt.Errorf("%s out of range for %s", n, t)
		}
	}
	rt := t.GetType()
	if rt == bigIntType {
		return n, nil
	}
	if t.T == abi.IntTy {
		return reflect.ValueOf(n.Int64()).Convert(rt).Interface(), nil
	}
	return reflect.ValueOf(n.Uint64()).Convert(rt).Interface(), nil
}

func toBig(v any) (*big.Int, error) {
	switch x := v.(type) {
	case *big.Int:
		if x == nil {
			return nil, fmt.Errorf("nil big integer")
		}
		return new(big.Int).Set(x), nil
	case big.Int:
		return new(big.Int).Set(&x), nil
	case *uint256.Int:
		if x == nil {
			return nil, fmt.Errorf("nil integer")
		}
		return x.ToBig(), nil
	case eth.ETH:
		return x.ToBig(), nil
	case json.Number:
		return parseBig(string(x))
	case float64:
		return floatToBig(x)
	case float32:
		return floatToBig(float64(x))
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return big.NewInt(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return new(big.Int).SetUint64(rv.Uint()), nil
	case reflect.String:
		return parseBig(rv.String())
	}
	return nil, fmt.Errorf("cannot use %T as a number", v)
}

func parseBig(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	base := 10
	digits := s
	neg := false
	if strings.HasPrefix(digits, "-") {
		neg, digits = true, digits[1:]
	}
	if strings.HasPrefix(digits, "0x") || strings.HasPrefix(digits, "0X") {
		base, digits = 16, digits[2:]
	}
	n, ok := new(big.Int).SetString(digits, base)
	if !ok || digits == "" {
		return nil, fmt.Errorf("invalid number %q", s)
	}
	if neg {
		n.Neg(n)
	}
	return n, nil
}

func floatToBig(f float64) (*big.Int, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return nil, fmt.Errorf("%v is not an integer", f)
	}
	n, _ := big.NewFloat(f).Int(nil)
	return n, nil
}

func coerceList(t abi.Type, v any) (any, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("cannot use %T as %s", v, t)
	}
	var out reflect.Value
	if t.T == abi.ArrayTy {
		if rv.Len() != t.Size {
			return nil, fmt.Errorf("expected %d elements for %s, got %d", t.Size, t, rv.Len())
		}
		out = reflect.New(t.GetType()).Elem()
	} else {
		out = reflect.MakeSlice(t.GetType(), rv.Len(), rv.Len())
	}
	for i := 0; i < rv.Len(); i++ {
		elem, err := Coerce(*t.Elem, rv.Index(i).Interface())
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		out.Index(i).Set(reflect.ValueOf(elem))
	}
	return out.Interface(), nil
}

func coerceTuple(t abi.Type, v any) (any, error) {
	tuple := reflect.New(t.TupleType).Elem()
	if m, ok := asObject(v); ok {
		for i, name := range t.TupleRawNames {
			raw, ok := m[name]
			if !ok {
				raw, ok = m[strings.TrimPrefix(name, "_")]
			}
			if !ok {
				return nil, fmt.Errorf("missing tuple component %q", name)
			}
			elem, err := Coerce(*t.TupleElems[i], raw)
			if err != nil {
				return nil, fmt.Errorf(".%s: %w", name, err)
			}
			tuple.Field(i).Set(reflect.ValueOf(elem))
		}
		return tuple.Interface(), nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer && !rv.IsNil() {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct || rv.NumField() != len(t.TupleElems) {
		return nil, fmt.Errorf("cannot use %T as %s", v, t)
	}
	for i := range t.TupleElems {
		elem, err := Coerce(*t.TupleElems[i], rv.Field(i).Interface())
		if err != nil {
			return nil, fmt.Errorf(".%s: %w", t.TupleRawNames[i], err)
		}
		tuple.Field(i).Set(reflect.ValueOf(elem))
	}
	return tuple.Interface(), nil
}
