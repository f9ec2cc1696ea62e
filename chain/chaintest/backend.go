// Package chaintest provides an in-process JSON-RPC node for tests.
package chaintest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
)

// TxArgs is a transaction object as received by the node.
type TxArgs struct {
	From     *common.Address `json:"from"`
	To       *common.Address `json:"to"`
	Gas      *hexutil.Uint64 `json:"gas"`
	GasPrice *hexutil.Big    `json:"gasPrice"`
	Value    *hexutil.Big    `json:"value"`
	Nonce    *hexutil.Uint64 `json:"nonce"`
	Data     *hexutil.Bytes  `json:"data"`
	Input    *hexutil.Bytes  `json:"input"`
}

// Payload returns the input or data field.
func (a TxArgs) Payload() []byte {
	if a.Input != nil {
		return *a.Input
	}
	if a.Data != nil {
		return *a.Data
	}
	return nil
}

func (a TxArgs) GasValue() uint64 {
	if a.Gas == nil {
		return 0
	}
	return uint64(*a.Gas)
}

// Backend is a minimal node with unlocked accounts. Every RPC method it serves is recorded.
type Backend struct {
	mu sync.Mutex

	networkID uint64
	accounts  []common.Address
	balances  map[common.Address]*big.Int
	receipts  map[common.Hash]*types.Receipt
	head      uint64
	nonce     uint64

	calls []string
	sent  []TxArgs
	evm   []string

	// EstimateFn computes eth_estimateGas results. By default every estimate is 21000.
	EstimateFn func(args TxArgs) (uint64, error)

	// CallFn computes eth_call results. By default calls return no data.
	CallFn func(args TxArgs) ([]byte, error)

	// SendErr makes eth_sendTransaction fail when set.
	SendErr error

	// NoContractAddress makes contract creations report the zero address.
	NoContractAddress bool

	// FailCreations makes contract creations revert. Their receipts keep the derived address, as geth reports it.
	FailCreations bool
}

func NewBackend(networkID uint64, accounts ...common.Address) *Backend {
	return &Backend{
		networkID: networkID,
		accounts:  accounts,
		balances:  make(map[common.Address]*big.Int),
		receipts:  make(map[common.Hash]*types.Receipt),
	}
}

// Accounts are deterministic test addresses.
func Accounts(n int) []common.Address {
	out := make([]common.Address, n)
	for i := range out {
		out[i] = common.BigToAddress(big.NewInt(int64(0x1000 + i)))
	}
	return out
}

func (b *Backend) Server() *rpc.Server {
	srv := rpc.NewServer()
	for name, svc := range map[string]any{
		"eth": &ethAPI{b},
		"net": &netAPI{b},
		"evm": &evmAPI{b},
	} {
		if err := srv.RegisterName(name, svc); err != nil {
			panic(fmt.Errorf("failed to register %s API: %w", name, err))
		}
	}
	return srv
}

// Dial returns an in-process client, closed with the test.
func (b *Backend) Dial(t testing.TB) *rpc.Client {
	srv := b.Server()
	c := rpc.DialInProc(srv)
	t.Cleanup(func() {
		c.Close()
		srv.Stop()
	})
	return c
}

func (b *Backend) SetAccounts(accounts ...common.Address) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.accounts = accounts
}

func (b *Backend) SetNetworkID(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.networkID = id
}

func (b *Backend) SetBalance(addr common.Address, wei *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[addr] = wei
}

// Calls returns the served RPC method names, in order.
func (b *Backend) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

// Sent returns the submitted transactions, in order.
func (b *Backend) Sent() []TxArgs {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]TxArgs(nil), b.sent...)
}

// EVMCalls returns the evm_ methods served with their parameters.
func (b *Backend) EVMCalls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.evm...)
}

func (b *Backend) record(method string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, method)
}

type netAPI struct{ b *Backend }

func (api *netAPI) Version() string {
	api.b.record("net_version")
	api.b.mu.Lock()
	defer api.b.mu.Unlock()
	return fmt.Sprintf("%d", api.b.networkID)
}

type evmAPI struct{ b *Backend }

func (api *evmAPI) Mine() (string, error) {
	api.b.record("evm_mine")
	api.b.mu.Lock()
	defer api.b.mu.Unlock()
	api.b.head++
	api.b.evm = append(api.b.evm, "evm_mine")
	return "0x0", nil
}

func (api *evmAPI) IncreaseTime(secs uint64) (uint64, error) {
	api.b.record("evm_increaseTime")
	api.b.mu.Lock()
	defer api.b.mu.Unlock()
	api.b.evm = append(api.b.evm, fmt.Sprintf("evm_increaseTime:%d", secs))
	return secs, nil
}

type ethAPI struct{ b *Backend }

func (api *ethAPI) Accounts() []common.Address {
	api.b.record("eth_accounts")
	api.b.mu.Lock()
	defer api.b.mu.Unlock()
	return append([]common.Address{}, api.b.accounts...)
}

func (api *ethAPI) GetBalance(addr common.Address, block string) *hexutil.Big {
	api.b.record("eth_getBalance")
	api.b.mu.Lock()
	defer api.b.mu.Unlock()
	if bal, ok := api.b.balances[addr]; ok {
		return (*hexutil.Big)(bal)
	}
	return (*hexutil.Big)(new(big.Int))
}

func (api *ethAPI) GetBlockByNumber(number string, full bool) (*types.Header, error) {
	api.b.record("eth_getBlockByNumber")
	api.b.mu.Lock()
	defer api.b.mu.Unlock()
	n := api.b.head
	if number != "latest" {
		v, err := hexutil.DecodeUint64(number)
		if err != nil {
			return nil, err
		}
		if v > api.b.head {
			return nil, nil
		}
		n = v
	}
	return &types.Header{Number: new(big.Int).SetUint64(n), Difficulty: new(big.Int), GasLimit: 30_000_000}, nil
}

func (api *ethAPI) GetTransactionReceipt(hash common.Hash) *types.Receipt {
	api.b.record("eth_getTransactionReceipt")
	api.b.mu.Lock()
	defer api.b.mu.Unlock()
	return api.b.receipts[hash]
}

func (api *ethAPI) EstimateGas(args TxArgs) (hexutil.Uint64, error) {
	api.b.record("eth_estimateGas")
	if api.b.EstimateFn != nil {
		gas, err := api.b.EstimateFn(args)
		return hexutil.Uint64(gas), err
	}
	return 21000, nil
}

func (api *ethAPI) Call(args TxArgs, block string) (hexutil.Bytes, error) {
	api.b.record("eth_call")
	if api.b.CallFn != nil {
		return api.b.CallFn(args)
	}
	return hexutil.Bytes{}, nil
}

func (api *ethAPI) SendTransaction(ctx context.Context, args TxArgs) (common.Hash, error) {
	api.b.record("eth_sendTransaction")
	if api.b.SendErr != nil {
		return common.Hash{}, api.b.SendErr
	}
	if args.From == nil {
		return common.Hash{}, errors.New("missing from")
	}
	api.b.mu.Lock()
	defer api.b.mu.Unlock()
	nonce := api.b.nonce
	api.b.nonce++
	api.b.head++
	api.b.sent = append(api.b.sent, args)

	hash := crypto.Keccak256Hash(args.From.Bytes(), new(big.Int).SetUint64(nonce).Bytes())
	receipt := &types.Receipt{
		Status:            types.ReceiptStatusSuccessful,
		CumulativeGasUsed: args.GasValue(),
		GasUsed:           args.GasValue(),
		Logs:              []*types.Log{},
		TxHash:            hash,
		BlockNumber:       new(big.Int).SetUint64(api.b.head),
	}
	if args.To == nil && !api.b.NoContractAddress {
		receipt.ContractAddress = crypto.CreateAddress(*args.From, nonce)
	}
	if args.To == nil && api.b.FailCreations {
		receipt.Status = types.ReceiptStatusFailed
	}
	api.b.receipts[hash] = receipt
	return hash, nil
}
