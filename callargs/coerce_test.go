package callargs

import (
	"encoding/json"
	"math/big"
	"reflect"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/ethtx/ethtx/eth"
)

func mustType(t *testing.T, name string, components ...abi.ArgumentMarshaling) abi.Type {
	t.Helper()
	typ, err := abi.NewType(name, "", components)
	require.NoError(t, err)
	return typ
}

func TestCoerceIntegers(t *testing.T) {
	for _, tc := range []struct {
		typ  string
		in   any
		want any
		err  bool
	}{
		{typ: "uint8", in: "255", want: uint8(255)},
		{typ: "uint8", in: 256, err: true},
		{typ: "uint8", in: -1, err: true},
		{typ: "int8", in: -128, want: int8(-128)},
		{typ: "int8", in: 128, err: true},
		{typ: "uint64", in: float64(21000), want: uint64(21000)},
		{typ: "uint64", in: 1.5, err: true},
		{typ: "int32", in: json.Number("-7"), want: int32(-7)},
		{typ: "uint256", in: "0x1234", want: big.NewInt(0x1234)},
		{typ: "uint256", in: big.NewInt(10), want: big.NewInt(10)},
		{typ: "uint256", in: big.NewInt(-10), err: true},
		{typ: "uint256", in: uint256.NewInt(99), want: big.NewInt(99)},
		{typ: "uint256", in: eth.GWei(1), want: big.NewInt(1e9)},
		{typ: "uint24", in: uint32(1 << 23), want: big.NewInt(1 << 23)},
		{typ: "int256", in: "-0x10", want: big.NewInt(-16)},
		{typ: "uint256", in: "ten", err: true},
		{typ: "uint256", in: true, err: true},
	} {
		got, err := Coerce(mustType(t, tc.typ), tc.in)
		if tc.err {
			require.Error(t, err, "%s <- %v", tc.typ, tc.in)
			continue
		}
		require.NoError(t, err, "%s <- %v", tc.typ, tc.in)
		require.Equal(t, tc.want, got, "%s <- %v", tc.typ, tc.in)
	}
}

func TestCoerceScalars(t *testing.T) {
	addr := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	got, err := Coerce(mustType(t, "address"), "0x00000000000000000000000000000000000000aa")
	require.NoError(t, err)
	require.Equal(t, addr, got)

	got, err = Coerce(mustType(t, "address"), &addr)
	require.NoError(t, err)
	require.Equal(t, addr, got)

	_, err = Coerce(mustType(t, "address"), "0x1234")
	require.Error(t, err)

	got, err = Coerce(mustType(t, "bool"), "true")
	require.NoError(t, err)
	require.Equal(t, true, got)

	_, err = Coerce(mustType(t, "bool"), 1)
	require.Error(t, err)

	got, err = Coerce(mustType(t, "string"), "hello")
	require.NoError(t, err)
	require.Equal(t, "hello", got)

	_, err = Coerce(mustType(t, "string"), 5)
	require.Error(t, err)

	_, err = Coerce(mustType(t, "string"), nil)
	require.Error(t, err)
}

func TestCoerceBytes(t *testing.T) {
	got, err := Coerce(mustType(t, "bytes"), "0x1234")
	require.NoError(t, err)
	require.Equal(t, []byte{0x12, 0x34}, got)

	got, err = Coerce(mustType(t, "bytes"), []any{float64(1), 2})
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2}, got)

	_, err = Coerce(mustType(t, "bytes"), []any{300})
	require.Error(t, err)

	_, err = Coerce(mustType(t, "bytes"), "nothex")
	require.Error(t, err)

	got, err = Coerce(mustType(t, "bytes4"), "0x1234")
	require.NoError(t, err)
	require.Equal(t, [4]byte{0x12, 0x34, 0, 0}, got)

	hash := common.HexToHash("0xff")
	got, err = Coerce(mustType(t, "bytes32"), hash)
	require.NoError(t, err)
	require.Equal(t, [32]byte(hash), got)

	_, err = Coerce(mustType(t, "bytes2"), "0x123456")
	require.Error(t, err)
}

func TestCoerceLists(t *testing.T) {
	got, err := Coerce(mustType(t, "uint256[]"), []any{"1", float64(2), 3})
	require.NoError(t, err)
	require.Equal(t, []*big.Int{big.NewInt(1), big.NewInt(2), big.NewInt(3)}, got)

	got, err = Coerce(mustType(t, "uint8[2]"), []int{4, 5})
	require.NoError(t, err)
	require.Equal(t, [2]uint8{4, 5}, got)

	_, err = Coerce(mustType(t, "uint8[2]"), []int{4})
	require.Error(t, err)

	_, err = Coerce(mustType(t, "uint8[]"), []any{1, "x"})
	require.ErrorContains(t, err, "[1]")

	_, err = Coerce(mustType(t, "uint8[]"), 7)
	require.Error(t, err)
}

func TestCoerceTuple(t *testing.T) {
	typ := mustType(t, "tuple",
		abi.ArgumentMarshaling{Name: "owner", Type: "address"},
		abi.ArgumentMarshaling{Name: "amount", Type: "uint256"},
	)
	owner := common.HexToAddress("0x00000000000000000000000000000000000000bb")

	got, err := Coerce(typ, map[string]any{"owner": owner.Hex(), "amount": "42"})
	require.NoError(t, err)
	rv := reflect.ValueOf(got)
	require.Equal(t, owner, rv.Field(0).Interface())
	require.Equal(t, big.NewInt(42), rv.Field(1).Interface())

	type position struct {
		Who common.Address
		Qty int
	}
	got, err = Coerce(typ, position{Who: owner, Qty: 7})
	require.NoError(t, err)
	require.Equal(t, big.NewInt(7), reflect.ValueOf(got).Field(1).Interface())

	_, err = Coerce(typ, map[string]any{"owner": owner})
	require.ErrorContains(t, err, `missing tuple component "amount"`)
}

func TestArgumentsMissing(t *testing.T) {
	inputs := mustABI(t, hashStoreABI).Methods["setHash"].Inputs
	_, err := Params{"hash": "abc"}.Arguments(inputs)
	require.ErrorContains(t, err, `missing argument "n"`)

	_, err = Params{"hash": "abc", "n": "many"}.Arguments(inputs)
	require.ErrorContains(t, err, `argument "n"`)

	args, err := Params{"hash": "abc", "n": 3, KeyGas: 1}.Arguments(inputs)
	require.NoError(t, err)
	require.Equal(t, []any{"abc", big.NewInt(3)}, args)
}
