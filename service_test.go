package ethtx

import (
	"context"
	"encoding/json"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/ethtx/ethtx/callargs"
	"github.com/ethtx/ethtx/chain"
	"github.com/ethtx/ethtx/chain/chaintest"
	"github.com/ethtx/ethtx/compiler"
	"github.com/ethtx/ethtx/connection"
	"github.com/ethtx/ethtx/eth"
	"github.com/ethtx/ethtx/testlog"
	"github.com/ethtx/ethtx/txmgr"
)

const storeABI = `[
	{"type":"constructor","inputs":[{"name":"_initial","type":"uint256"}]},
	{"type":"function","name":"value","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]}
]`

func newService(t *testing.T, opts Options) *Service {
	opts.Log = testlog.Logger(t, log.LevelDebug)
	if opts.Clock == nil {
		opts.Clock = clock.NewMock()
	}
	s, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func connected(t *testing.T, gen chain.Generation) (*chaintest.Backend, *Service) {
	backend := chaintest.NewBackend(1337, chaintest.Accounts(2)...)
	s := newService(t, Options{})
	require.NoError(t, s.UseConnection(context.Background(), backend.Dial(t), ConnectOptions{Generation: gen}))
	return backend, s
}

func TestOperationsRequireConnection(t *testing.T) {
	s := newService(t, Options{})
	ctx := context.Background()

	_, err := s.Accounts(ctx)
	require.ErrorIs(t, err, connection.ErrNotConnected)
	_, err = s.Network(ctx)
	require.ErrorIs(t, err, connection.ErrNotConnected)
	_, err = s.Balance(ctx, common.Address{1})
	require.ErrorIs(t, err, connection.ErrNotConnected)
	_, err = s.Block(ctx, nil)
	require.ErrorIs(t, err, connection.ErrNotConnected)
	_, err = s.TransactionReceipt(ctx, common.Hash{1})
	require.ErrorIs(t, err, connection.ErrNotConnected)
	_, err = s.RPCSend(ctx, "")
	require.ErrorIs(t, err, connection.ErrNotConnected)
	require.ErrorIs(t, s.Delay(ctx, 10), connection.ErrNotConnected)
	_, err = s.EstimateGas(ctx, callargs.Params{})
	require.ErrorIs(t, err, connection.ErrNotConnected)
	_, err = s.SendTransaction(ctx, callargs.Params{callargs.KeyTo: common.Address{1}})
	require.ErrorIs(t, err, connection.ErrNotConnected)
}

func TestQueries(t *testing.T) {
	for _, gen := range []chain.Generation{chain.GenerationLegacy, chain.GenerationTyped} {
		t.Run(gen.String(), func(t *testing.T) {
			backend, s := connected(t, gen)
			ctx := context.Background()

			accounts, err := s.Accounts(ctx)
			require.NoError(t, err)
			require.Equal(t, chaintest.Accounts(2), accounts)

			network, err := s.Network(ctx)
			require.NoError(t, err)
			require.EqualValues(t, 1337, network.Uint64())

			backend.SetBalance(accounts[0], new(big.Int).Mul(big.NewInt(3), big.NewInt(1e18)))
			bal, err := s.Balance(ctx, accounts[0])
			require.NoError(t, err)
			require.Equal(t, eth.Ether(3), bal)

			head, err := s.Block(ctx, nil)
			require.NoError(t, err)
			require.NotNil(t, head.Number)
		})
	}
}

func TestReceiptCache(t *testing.T) {
	backend, s := connected(t, chain.GenerationLegacy)
	ctx := context.Background()

	missing, err := s.TransactionReceipt(ctx, common.Hash{9})
	require.NoError(t, err)
	require.Nil(t, missing)

	sub, err := s.SendTransaction(ctx, callargs.Params{callargs.KeyTo: chaintest.Accounts(2)[1]})
	require.NoError(t, err)
	require.Nil(t, sub.Receipt)

	countReceiptCalls := func() int {
		n := 0
		for _, c := range backend.Calls() {
			if c == "eth_getTransactionReceipt" {
				n++
			}
		}
		return n
	}
	before := countReceiptCalls()
	first, err := s.TransactionReceipt(ctx, sub.Hash)
	require.NoError(t, err)
	require.NotNil(t, first)
	second, err := s.TransactionReceipt(ctx, sub.Hash)
	require.NoError(t, err)
	require.Same(t, first, second)
	require.Equal(t, before+1, countReceiptCalls())
}

func TestRPCSend(t *testing.T) {
	_, s := connected(t, chain.GenerationTyped)
	ctx := context.Background()

	_, err := s.RPCSend(ctx, "")
	require.ErrorIs(t, err, ErrMissingMethod)
	require.Equal(t, "you need to indicate a method", err.Error())

	raw, err := s.RPCSend(ctx, "net_version")
	require.NoError(t, err)
	var version string
	require.NoError(t, json.Unmarshal(raw, &version))
	require.Equal(t, "1337", version)

	_, err = s.RPCSend(ctx, "eth_unknownMethod")
	require.Error(t, err)
}

func TestDelay(t *testing.T) {
	backend, s := connected(t, chain.GenerationLegacy)
	require.NoError(t, s.Delay(context.Background(), 3600))
	require.Equal(t, []string{"evm_mine", "evm_increaseTime:3600", "evm_mine"}, backend.EVMCalls())
}

func TestConnectGasPolicy(t *testing.T) {
	backend := chaintest.NewBackend(1, chaintest.Accounts(1)...)
	s := newService(t, Options{})
	ctx := context.Background()

	invalid := txmgr.GasPolicy{}
	err := s.UseConnection(ctx, backend.Dial(t), ConnectOptions{GasPolicy: &invalid})
	require.ErrorContains(t, err, "invalid gas policy")
	require.False(t, s.State().Attached())

	policy := txmgr.DefaultGasPolicy()
	policy.Ceiling = 21_000
	require.NoError(t, s.UseConnection(ctx, backend.Dial(t), ConnectOptions{GasPolicy: &policy}))
	require.EqualValues(t, 21_000, s.GasPolicy().Ceiling)
	_, err = s.EstimateGas(ctx, callargs.Params{callargs.KeyTo: chaintest.Accounts(1)[0]})
	require.ErrorIs(t, err, txmgr.ErrGasCeilingExceeded)
}

func TestConnectFailureKeepsState(t *testing.T) {
	backend, s := connected(t, chain.GenerationTyped)
	err := s.Connect(context.Background(), "unknown://endpoint", ConnectOptions{})
	require.ErrorContains(t, err, "failed to dial")
	require.True(t, s.State().Attached())
	_, err = s.Accounts(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, backend.Calls())
}

func TestWrapArtifact(t *testing.T) {
	backend, s := connected(t, chain.GenerationTyped)
	as := compiler.Artifacts{"Store": {ABI: json.RawMessage(storeABI), Bytecode: "0x6080"}}

	_, err := s.WrapArtifact(as, "Missing")
	require.Error(t, err)

	f, err := s.WrapArtifact(as, "Store")
	require.NoError(t, err)
	h, err := f.Deploy(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, append([]byte{0x60, 0x80}, common.LeftPadBytes([]byte{7}, 32)...), backend.Sent()[0].Payload())

	backend.CallFn = func(args chaintest.TxArgs) ([]byte, error) {
		return common.LeftPadBytes([]byte{7}, 32), nil
	}
	out, err := h.Call("value").Read(context.Background())
	require.NoError(t, err)
	require.Equal(t, []any{big.NewInt(7)}, out)
}

func TestCompile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "contracts/Store.sol", []byte("contract Store {\n  broken\n}\n"), 0o644))

	s := newService(t, Options{Fs: fs})
	_, err := s.Compile(context.Background(), "contracts/Store.sol")
	require.ErrorIs(t, err, ErrNoCompiler)

	var source string
	c := compiler.CompilerFunc(func(ctx context.Context, src string) (compiler.Artifacts, error) {
		source = src
		if strings.Contains(src, "broken") {
			return nil, &compiler.CompileError{Errors: []string{":4:3: ParserError: Expected ';'"}}
		}
		return compiler.Artifacts{"Store": {ABI: json.RawMessage(storeABI), Bytecode: "0x6080"}}, nil
	})
	s = newService(t, Options{Fs: fs, Compiler: c})
	_, err = s.Compile(context.Background(), "contracts/Store.sol")
	var cerr *compiler.CompileError
	require.ErrorAs(t, err, &cerr)
	require.Equal(t, []string{"contracts/Store.sol :2:3: ParserError: Expected ';'"}, cerr.Errors)
	require.True(t, strings.HasPrefix(source, "\n//File: contracts/Store.sol\n"))

	require.NoError(t, afero.WriteFile(fs, "contracts/Store.sol", []byte("contract Store {}\n"), 0o644))
	as, err := s.CompileTo(context.Background(), "build/out.json", "contracts/Store.sol")
	require.NoError(t, err)
	require.Contains(t, as, "Store")
	written, err := compiler.ReadArtifacts(fs, "build/out.json")
	require.NoError(t, err)
	require.Equal(t, []string{"Store"}, written.Names())
}

func TestOnChange(t *testing.T) {
	backend := chaintest.NewBackend(1337, chaintest.Accounts(1)...)
	cl := clock.NewMock()
	s := newService(t, Options{Clock: cl, PollInterval: time.Second})

	changes := make(chan connection.Snapshot, 4)
	cancel := s.OnChange(func(snap connection.Snapshot) { changes <- snap })
	defer cancel()

	require.NoError(t, s.UseConnection(context.Background(), backend.Dial(t), ConnectOptions{}))
	cl.Add(time.Second)
	select {
	case snap := <-changes:
		require.True(t, snap.Connected)
		require.Equal(t, chaintest.Accounts(1), snap.Accounts)
	case <-time.After(10 * time.Second):
		t.Fatal("expected a change notification")
	}
}

func TestSetPollInterval(t *testing.T) {
	backend := chaintest.NewBackend(1337, chaintest.Accounts(1)...)
	cl := clock.NewMock()
	s := newService(t, Options{Clock: cl, PollInterval: time.Second})
	require.NoError(t, s.UseConnection(context.Background(), backend.Dial(t), ConnectOptions{}))

	changes := make(chan connection.Snapshot, 4)
	cancel := s.OnChange(func(snap connection.Snapshot) { changes <- snap })
	defer cancel()
	s.SetPollInterval(time.Minute)

	cl.Add(time.Second)
	select {
	case snap := <-changes:
		t.Fatalf("unexpected change notification: %+v", snap)
	case <-time.After(200 * time.Millisecond):
	}
	cl.Add(time.Minute)
	select {
	case snap := <-changes:
		require.True(t, snap.Connected)
	case <-time.After(10 * time.Second):
		t.Fatal("expected a change notification")
	}
}
