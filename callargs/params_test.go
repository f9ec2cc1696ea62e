package callargs

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ethereum/go-ethereum/common"
)

func TestParamsAccessors(t *testing.T) {
	p := Params{
		KeyFrom:     "0x1111111111111111111111111111111111111111",
		KeyValue:    "0x10",
		KeyGas:      float64(90000),
		KeyGasPrice: big.NewInt(7),
		KeyNonce:    uint64(3),
		KeyData:     "0xabcd",
		KeyExtraGas: 100,
		KeyVerbose:  "true",
	}
	from, err := p.From()
	require.NoError(t, err)
	require.Equal(t, common.HexToAddress("0x1111111111111111111111111111111111111111"), *from)

	to, err := p.To()
	require.NoError(t, err)
	require.Nil(t, to)

	value, err := p.Value()
	require.NoError(t, err)
	require.Equal(t, big.NewInt(16), value)

	gas, err := p.Gas()
	require.NoError(t, err)
	require.Equal(t, uint64(90000), *gas)

	price, err := p.GasPrice()
	require.NoError(t, err)
	require.Equal(t, big.NewInt(7), price)

	nonce, err := p.Nonce()
	require.NoError(t, err)
	require.Equal(t, uint64(3), *nonce)

	extra, err := p.ExtraGas()
	require.NoError(t, err)
	require.Equal(t, uint64(100), *extra)

	data, err := p.Data()
	require.NoError(t, err)
	require.Equal(t, []byte{0xab, 0xcd}, data)

	require.True(t, p.Verbose())
	require.False(t, p.NoEstimate())
	require.Nil(t, p.Callback())
}

func TestParamsInvalid(t *testing.T) {
	_, err := Params{KeyFrom: "me"}.From()
	require.ErrorContains(t, err, KeyFrom)

	_, err = Params{KeyValue: -1}.Value()
	require.ErrorContains(t, err, "negative")

	_, err = Params{KeyGas: "0x10000000000000000"}.Gas()
	require.ErrorContains(t, err, "64 bits")

	_, err = Params{KeyData: "xyz"}.Data()
	require.Error(t, err)
}

func TestTransaction(t *testing.T) {
	p := Transaction(map[string]any{
		"from":      "0x1111111111111111111111111111111111111111",
		"to":        "0x2222222222222222222222222222222222222222",
		"value":     "1000",
		"input":     "0x01",
		"$extraGas": 5,
		"unrelated": true,
	})
	requireParams(t, Params{
		KeyFrom:     "0x1111111111111111111111111111111111111111",
		KeyTo:       "0x2222222222222222222222222222222222222222",
		KeyValue:    "1000",
		KeyData:     "0x01",
		KeyExtraGas: 5,
	}, p)
}

func TestParamsNamedAndClone(t *testing.T) {
	p := Params{"hash": "abc", KeyGas: 1}
	requireParams(t, Params{"hash": "abc"}, p.Named())
	c := p.Clone()
	c["hash"] = "def"
	require.Equal(t, "abc", p["hash"])
}
