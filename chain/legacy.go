package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
)

// Legacy adapts a raw JSON-RPC client. Contract calls are sent as raw transaction objects
// and submissions are reported by hash without waiting for inclusion.
type Legacy struct {
	rpc  *rpc.Client
	opts Options
}

var _ Client = (*Legacy)(nil)

func NewLegacy(c *rpc.Client, opts Options) *Legacy {
	return &Legacy{rpc: c, opts: opts.withDefaults()}
}

func (l *Legacy) Generation() Generation {
	return GenerationLegacy
}

func (l *Legacy) Accounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	if err := l.rpc.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (l *Legacy) NetworkID(ctx context.Context) (*big.Int, error) {
	var ver string
	if err := l.rpc.CallContext(ctx, &ver, "net_version"); err != nil {
		return nil, err
	}
	id, ok := new(big.Int).SetString(ver, 0)
	if !ok {
		return nil, fmt.Errorf("invalid net_version result %q", ver)
	}
	return id, nil
}

func (l *Legacy) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	var result hexutil.Big
	if err := l.rpc.CallContext(ctx, &result, "eth_getBalance", account, blockArg(blockNumber)); err != nil {
		return nil, err
	}
	return (*big.Int)(&result), nil
}

func (l *Legacy) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	var head *types.Header
	if err := l.rpc.CallContext(ctx, &head, "eth_getBlockByNumber", blockArg(number), false); err != nil {
		return nil, err
	}
	if head == nil {
		return nil, fmt.Errorf("block %s not found", blockArg(number))
	}
	return head, nil
}

func (l *Legacy) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	var receipt *types.Receipt
	if err := l.rpc.CallContext(ctx, &receipt, "eth_getTransactionReceipt", hash); err != nil {
		return nil, err
	}
	return receipt, nil
}

func (l *Legacy) CallRPC(ctx context.Context, result any, method string, params ...any) error {
	return l.rpc.CallContext(ctx, result, method, params...)
}

func (l *Legacy) EstimateGas(ctx context.Context, req TxRequest) (uint64, error) {
	var gas hexutil.Uint64
	if err := l.rpc.CallContext(ctx, &gas, "eth_estimateGas", toTxObject(req)); err != nil {
		return 0, err
	}
	return uint64(gas), nil
}

func (l *Legacy) SendTransaction(ctx context.Context, req TxRequest) (*Submission, error) {
	var hash common.Hash
	if err := l.rpc.CallContext(ctx, &hash, "eth_sendTransaction", toTxObject(req)); err != nil {
		return nil, err
	}
	return &Submission{Hash: hash}, nil
}

func (l *Legacy) DeployContract(ctx context.Context, req TxRequest) (*Deployment, error) {
	req.To = nil
	sub, err := l.SendTransaction(ctx, req)
	if err != nil {
		return nil, err
	}
	receipt, err := waitReceipt(ctx, l.opts.Log, l.opts.Clock, l.opts.ReceiptQueryInterval, l.TransactionReceipt, sub.Hash)
	if err != nil {
		return nil, err
	}
	return &Deployment{Address: receipt.ContractAddress, TxHash: sub.Hash, Receipt: receipt}, nil
}

func (l *Legacy) Contract(parsed *abi.ABI, address common.Address) Contract {
	return &legacyContract{client: l, abi: parsed, address: address}
}

func (l *Legacy) Close() {
	l.rpc.Close()
}

type legacyContract struct {
	client  *Legacy
	abi     *abi.ABI
	address common.Address
}

func (c *legacyContract) Address() common.Address {
	return c.address
}

func (c *legacyContract) EstimateGas(ctx context.Context, method string, args []any, opts TxRequest) (uint64, error) {
	var gas hexutil.Uint64
	if err := c.invoke(ctx, &gas, "eth_estimateGas", method, args, opts); err != nil {
		return 0, err
	}
	return uint64(gas), nil
}

func (c *legacyContract) Transact(ctx context.Context, method string, args []any, opts TxRequest) (*Submission, error) {
	var hash common.Hash
	if err := c.invoke(ctx, &hash, "eth_sendTransaction", method, args, opts); err != nil {
		return nil, err
	}
	return &Submission{Hash: hash}, nil
}

func (c *legacyContract) Call(ctx context.Context, method string, args []any, opts TxRequest) ([]any, error) {
	m, err := lookupMethod(c.abi, method)
	if err != nil {
		return nil, err
	}
	var out hexutil.Bytes
	if err := c.invoke(ctx, &out, "eth_call", method, args, opts, "latest"); err != nil {
		return nil, err
	}
	return m.Outputs.Unpack(out)
}

// invoke packs args against the method into the transaction object and sends it with rpcMethod.
// extra params follow the transaction object.
func (c *legacyContract) invoke(ctx context.Context, result any, rpcMethod string, method string, args []any, tx TxRequest, extra ...any) error {
	if _, err := lookupMethod(c.abi, method); err != nil {
		return err
	}
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("failed to pack %s arguments: %w", method, err)
	}
	tx.To = &c.address
	tx.Data = data
	params := append([]any{toTxObject(tx)}, extra...)
	return c.client.rpc.CallContext(ctx, result, rpcMethod, params...)
}

func blockArg(number *big.Int) string {
	if number == nil {
		return "latest"
	}
	return hexutil.EncodeBig(number)
}
