// Package chain defines the chain client capability the orchestration layer is written against,
// and adapts the two client generations to it.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
)

// Generation is the version marker of a client handle.
type Generation int

const (
	// GenerationLegacy invokes contracts with positional argument lists ending in a transaction
	// object, and reports submissions by transaction hash only.
	GenerationLegacy Generation = iota + 1
	// GenerationTyped invokes contracts with typed call objects, and reports submissions
	// with their receipt.
	GenerationTyped
)

func (g Generation) String() string {
	switch g {
	case GenerationLegacy:
		return "legacy"
	case GenerationTyped:
		return "typed"
	default:
		return fmt.Sprintf("generation(%d)", int(g))
	}
}

func ParseGeneration(s string) (Generation, error) {
	switch strings.ToLower(s) {
	case "legacy":
		return GenerationLegacy, nil
	case "typed":
		return GenerationTyped, nil
	}
	return 0, fmt.Errorf("unknown client generation %q", s)
}

// TxRequest describes a transaction, or a call when used for reads and estimates.
type TxRequest struct {
	From     common.Address
	To       *common.Address // nil for contract creation
	Value    *big.Int
	Gas      uint64 // zero leaves the choice to the node
	GasPrice *big.Int
	Nonce    *uint64
	Data     []byte
}

// Submission is the outcome of a submitted transaction.
type Submission struct {
	Hash common.Hash
	// Receipt is only set by clients that wait for inclusion.
	Receipt *types.Receipt
}

// Deployment is the outcome of a contract creation.
type Deployment struct {
	Address common.Address
	TxHash  common.Hash
	Receipt *types.Receipt
}

type Client interface {
	Generation() Generation

	Accounts(ctx context.Context) ([]common.Address, error)
	NetworkID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	// TransactionReceipt returns nil without error when the receipt is not known yet.
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	CallRPC(ctx context.Context, result any, method string, params ...any) error

	EstimateGas(ctx context.Context, req TxRequest) (uint64, error)
	SendTransaction(ctx context.Context, req TxRequest) (*Submission, error)
	// DeployContract submits a contract creation and waits for the address it was created at.
	DeployContract(ctx context.Context, req TxRequest) (*Deployment, error)

	Contract(parsed *abi.ABI, address common.Address) Contract
	Close()
}

// Contract is a contract-bound handle. Method arguments must already be coerced for packing.
type Contract interface {
	Address() common.Address
	EstimateGas(ctx context.Context, method string, args []any, opts TxRequest) (uint64, error)
	Transact(ctx context.Context, method string, args []any, opts TxRequest) (*Submission, error)
	Call(ctx context.Context, method string, args []any, opts TxRequest) ([]any, error)
}

var ErrUnknownMethod = errors.New("unknown contract method")

// Options tune the adapters. The zero value is usable.
type Options struct {
	Log                  log.Logger
	Clock                clock.Clock
	ReceiptQueryInterval time.Duration
}

const DefaultReceiptQueryInterval = 500 * time.Millisecond

func (o Options) withDefaults() Options {
	if o.Log == nil {
		o.Log = log.Root()
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	if o.ReceiptQueryInterval <= 0 {
		o.ReceiptQueryInterval = DefaultReceiptQueryInterval
	}
	return o
}

func lookupMethod(parsed *abi.ABI, name string) (abi.Method, error) {
	m, ok := parsed.Methods[name]
	if !ok {
		return abi.Method{}, fmt.Errorf("%w: %q", ErrUnknownMethod, name)
	}
	return m, nil
}
