package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Typed adapts an ethclient. Contract methods are invoked through TypedCall objects,
// and submissions wait for their receipt.
type Typed struct {
	ec   *ethclient.Client
	opts Options
}

var _ Client = (*Typed)(nil)

func NewTyped(ec *ethclient.Client, opts Options) *Typed {
	return &Typed{ec: ec, opts: opts.withDefaults()}
}

func (t *Typed) Generation() Generation {
	return GenerationTyped
}

func (t *Typed) Accounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	if err := t.ec.Client().CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (t *Typed) NetworkID(ctx context.Context) (*big.Int, error) {
	return t.ec.NetworkID(ctx)
}

func (t *Typed) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return t.ec.BalanceAt(ctx, account, blockNumber)
}

func (t *Typed) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return t.ec.HeaderByNumber(ctx, number)
}

func (t *Typed) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	receipt, err := t.ec.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	return receipt, err
}

func (t *Typed) CallRPC(ctx context.Context, result any, method string, params ...any) error {
	return t.ec.Client().CallContext(ctx, result, method, params...)
}

func (t *Typed) EstimateGas(ctx context.Context, req TxRequest) (uint64, error) {
	return t.ec.EstimateGas(ctx, toCallMsg(req))
}

func (t *Typed) SendTransaction(ctx context.Context, req TxRequest) (*Submission, error) {
	var hash common.Hash
	if err := t.ec.Client().CallContext(ctx, &hash, "eth_sendTransaction", toTxObject(req)); err != nil {
		return nil, err
	}
	receipt, err := waitReceipt(ctx, t.opts.Log, t.opts.Clock, t.opts.ReceiptQueryInterval, t.TransactionReceipt, hash)
	if err != nil {
		return nil, err
	}
	return &Submission{Hash: hash, Receipt: receipt}, nil
}

func (t *Typed) DeployContract(ctx context.Context, req TxRequest) (*Deployment, error) {
	req.To = nil
	sub, err := t.SendTransaction(ctx, req)
	if err != nil {
		return nil, err
	}
	return &Deployment{Address: sub.Receipt.ContractAddress, TxHash: sub.Hash, Receipt: sub.Receipt}, nil
}

func (t *Typed) Contract(parsed *abi.ABI, address common.Address) Contract {
	return &typedContract{client: t, abi: parsed, address: address}
}

func (t *Typed) Close() {
	t.ec.Close()
}

// TypedCall is a contract method invocation bound to its ABI method.
type TypedCall struct {
	Method abi.Method
	Args   []any
	Opts   TxRequest
}

// Request returns the transaction request for calling the method on target.
func (c TypedCall) Request(target common.Address) (TxRequest, error) {
	input, err := c.Method.Inputs.Pack(c.Args...)
	if err != nil {
		return TxRequest{}, fmt.Errorf("failed to pack %s arguments: %w", c.Method.Name, err)
	}
	req := c.Opts
	req.To = &target
	req.Data = append(append([]byte{}, c.Method.ID...), input...)
	return req, nil
}

type typedContract struct {
	client  *Typed
	abi     *abi.ABI
	address common.Address
}

func (c *typedContract) Address() common.Address {
	return c.address
}

func (c *typedContract) typedCall(method string, args []any, opts TxRequest) (TypedCall, error) {
	m, err := lookupMethod(c.abi, method)
	if err != nil {
		return TypedCall{}, err
	}
	return TypedCall{Method: m, Args: args, Opts: opts}, nil
}

func (c *typedContract) EstimateGas(ctx context.Context, method string, args []any, opts TxRequest) (uint64, error) {
	call, err := c.typedCall(method, args, opts)
	if err != nil {
		return 0, err
	}
	return c.estimate(ctx, call)
}

func (c *typedContract) Transact(ctx context.Context, method string, args []any, opts TxRequest) (*Submission, error) {
	call, err := c.typedCall(method, args, opts)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, call)
}

func (c *typedContract) Call(ctx context.Context, method string, args []any, opts TxRequest) ([]any, error) {
	call, err := c.typedCall(method, args, opts)
	if err != nil {
		return nil, err
	}
	return c.read(ctx, call)
}

func (c *typedContract) estimate(ctx context.Context, call TypedCall) (uint64, error) {
	req, err := call.Request(c.address)
	if err != nil {
		return 0, err
	}
	return c.client.EstimateGas(ctx, req)
}

func (c *typedContract) send(ctx context.Context, call TypedCall) (*Submission, error) {
	req, err := call.Request(c.address)
	if err != nil {
		return nil, err
	}
	return c.client.SendTransaction(ctx, req)
}

func (c *typedContract) read(ctx context.Context, call TypedCall) ([]any, error) {
	req, err := call.Request(c.address)
	if err != nil {
		return nil, err
	}
	out, err := c.client.ec.CallContract(ctx, toCallMsg(req), nil)
	if err != nil {
		return nil, err
	}
	return call.Method.Outputs.Unpack(out)
}
