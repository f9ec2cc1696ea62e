// Package binder turns a contract ABI and bytecode into a factory of contract handles
// whose operations are generated from the ABI.
package binder

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/ethtx/ethtx/callargs"
	"github.com/ethtx/ethtx/chain"
	"github.com/ethtx/ethtx/txmgr"
)

var (
	ErrInvalidABI      = errors.New("the contract's application binary interface is required")
	ErrMissingBytecode = errors.New("the contract's bytecode parameter is required")
)

// Orchestrator runs the operations of generated contract methods. txmgr.Manager implements it.
type Orchestrator interface {
	SendContractTransaction(ctx context.Context, ref txmgr.ContractRef, method string, p callargs.Params) (*chain.Submission, error)
	SendContractConstantTransaction(ctx context.Context, ref txmgr.ContractRef, method string, p callargs.Params) ([]any, error)
	EstimateContractTransactionGas(ctx context.Context, ref txmgr.ContractRef, method string, p callargs.Params) (uint64, error)
	DeployContract(ctx context.Context, parsed *abi.ABI, bytecode []byte, p callargs.Params) (*chain.Deployment, error)
}

var _ Orchestrator = (*txmgr.Manager)(nil)

// Factory deploys or attaches handles of one contract type.
type Factory struct {
	orch     Orchestrator
	abi      *abi.ABI
	bytecode []byte
	methods  map[string]abi.Method
}

// Bind builds a factory. A nil bytecode is rejected, an empty one is not.
func Bind(orch Orchestrator, parsed *abi.ABI, bytecode []byte) (*Factory, error) {
	if parsed == nil {
		return nil, ErrInvalidABI
	}
	if bytecode == nil {
		return nil, ErrMissingBytecode
	}
	return &Factory{
		orch:     orch,
		abi:      parsed,
		bytecode: common.CopyBytes(bytecode),
		methods:  methodTable(parsed),
	}, nil
}

// methodTable keys every function by its declared name. The abi package renames
// overloads in declaration order (name, name0, name1, ...), so the highest suffix
// is the entry declared last, and that one is kept.
func methodTable(parsed *abi.ABI) map[string]abi.Method {
	table := make(map[string]abi.Method)
	rank := make(map[string]int)
	for _, m := range parsed.Methods {
		r := overloadRank(m)
		if prev, ok := rank[m.RawName]; ok && prev >= r {
			continue
		}
		rank[m.RawName] = r
		table[m.RawName] = m
	}
	return table
}

func overloadRank(m abi.Method) int {
	if m.Name == m.RawName {
		return -1
	}
	n, err := strconv.Atoi(m.Name[len(m.RawName):])
	if err != nil {
		return -1
	}
	return n
}

func (f *Factory) ABI() *abi.ABI {
	return f.abi
}

func (f *Factory) Bytecode() []byte {
	return common.CopyBytes(f.bytecode)
}

// Deploy normalizes args against the constructor inputs, creates the contract
// and returns a handle on the new address.
func (f *Factory) Deploy(ctx context.Context, args ...any) (*Handle, error) {
	p, err := callargs.Normalize(args, f.abi.Constructor.Inputs)
	if err != nil {
		return nil, err
	}
	dep, err := f.orch.DeployContract(ctx, f.abi, f.bytecode, p)
	if err != nil {
		return nil, err
	}
	h := f.Attach(dep.Address)
	h.deployment = dep
	return h, nil
}

// Attach binds a handle to an existing address. It performs no I/O.
func (f *Factory) Attach(address common.Address) *Handle {
	return &Handle{factory: f, address: address}
}

// Handle is a contract instance at a fixed address.
type Handle struct {
	factory    *Factory
	address    common.Address
	deployment *chain.Deployment
}

func (h *Handle) Address() common.Address {
	return h.address
}

func (h *Handle) ABI() *abi.ABI {
	return h.factory.abi
}

func (h *Handle) Bytecode() []byte {
	return h.factory.Bytecode()
}

// Deployment is the creation outcome, or nil for attached handles.
func (h *Handle) Deployment() *chain.Deployment {
	return h.deployment
}

func (h *Handle) ref() txmgr.ContractRef {
	return txmgr.ContractRef{Address: h.address, ABI: h.factory.abi}
}

// Methods lists the generated operations, sorted by name.
func (h *Handle) Methods() []string {
	names := make([]string, 0, len(h.factory.methods))
	for name := range h.factory.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Method returns the generated operation for a function of the ABI.
func (h *Handle) Method(name string) (Method, bool) {
	m, ok := h.factory.methods[name]
	if !ok {
		return Method{}, false
	}
	return Method{handle: h, abi: m}, true
}

// Call prepares an invocation of the named method. An unknown name fails on use.
func (h *Handle) Call(name string, args ...any) *Invocation {
	m, ok := h.Method(name)
	if !ok {
		return &Invocation{err: fmt.Errorf("%w: %q is not a function of the contract", txmgr.ErrInvalidContractMethod, name)}
	}
	return m.Invoke(args...)
}

// Method is an operation generated from one ABI function.
type Method struct {
	handle *Handle
	abi    abi.Method
}

func (m Method) Name() string {
	return m.abi.RawName
}

// ParamNames are the keyword names of the inputs, in order.
func (m Method) ParamNames() []string {
	names := make([]string, len(m.abi.Inputs))
	for i, in := range m.abi.Inputs {
		names[i] = callargs.ParamName(in, i)
	}
	return names
}

// Constant reports whether the ABI marks the method as not changing state.
func (m Method) Constant() bool {
	return m.abi.IsConstant()
}

func (m Method) Invoke(args ...any) *Invocation {
	return &Invocation{method: m, args: args}
}

// Invocation is a deferred method call. The arguments are normalized on every use.
type Invocation struct {
	method Method
	args   []any
	err    error
}

func (inv *Invocation) params() (callargs.Params, error) {
	if inv.err != nil {
		return nil, inv.err
	}
	return callargs.Normalize(inv.args, inv.method.abi.Inputs)
}

// Read executes the method as a call and returns its decoded outputs.
func (inv *Invocation) Read(ctx context.Context) ([]any, error) {
	p, err := inv.params()
	if err != nil {
		return nil, err
	}
	return inv.method.handle.factory.orch.SendContractConstantTransaction(ctx, inv.method.handle.ref(), inv.method.abi.Name, p)
}

// Submit sends the method as a transaction.
func (inv *Invocation) Submit(ctx context.Context) (*chain.Submission, error) {
	p, err := inv.params()
	if err != nil {
		return nil, err
	}
	return inv.method.handle.factory.orch.SendContractTransaction(ctx, inv.method.handle.ref(), inv.method.abi.Name, p)
}

// EstimateGas estimates the transaction Submit would send.
func (inv *Invocation) EstimateGas(ctx context.Context) (uint64, error) {
	p, err := inv.params()
	if err != nil {
		return 0, err
	}
	return inv.method.handle.factory.orch.EstimateContractTransactionGas(ctx, inv.method.handle.ref(), inv.method.abi.Name, p)
}
