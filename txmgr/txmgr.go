// Package txmgr estimates, guards and submits transactions on the attached chain client.
package txmgr

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"

	"github.com/ethtx/ethtx/callargs"
	"github.com/ethtx/ethtx/chain"
	"github.com/ethtx/ethtx/connection"
	"github.com/ethtx/ethtx/metrics"
)

// Front-ends match on these messages, keep the wording stable.
var (
	ErrNoAccountsAvailable   = errors.New("No accounts are available") //nolint:staticcheck
	ErrMissingRecipient      = errors.New("the transaction has no recipient address")
	ErrGasCeilingExceeded    = errors.New("the transaction exceeds the gas ceiling")
	ErrInvalidContractMethod = errors.New("invalid contract method")
	ErrEmptyContractResult   = errors.New("empty contract")
)

type Metricer interface {
	RecordGasEstimate(kind string, gas uint64)
	RecordCeilingRejection(kind string)
	RecordSubmission(kind string) (onDone func(err error))
}

// ContractRef identifies a deployed contract.
type ContractRef struct {
	Address common.Address
	ABI     *abi.ABI
}

// Manager runs the transaction operations against the client attached to a connection state.
// Operations are never retried, and nothing serializes concurrent operations.
type Manager struct {
	log     log.Logger
	metrics Metricer
	conn    *connection.State

	mu     sync.RWMutex
	policy GasPolicy
}

func NewManager(logger log.Logger, m Metricer, conn *connection.State, policy GasPolicy) *Manager {
	return &Manager{log: logger, metrics: m, conn: conn, policy: policy}
}

func (m *Manager) GasPolicy() GasPolicy {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.policy
}

func (m *Manager) SetGasPolicy(policy GasPolicy) error {
	if err := policy.Check(); err != nil {
		return err
	}
	m.mu.Lock()
	m.policy = policy
	m.mu.Unlock()
	return nil
}

// EstimateTransactionGas estimates a raw transaction. The sender is optional here.
func (m *Manager) EstimateTransactionGas(ctx context.Context, p callargs.Params) (gas uint64, err error) {
	defer func() { complete(p, gas, err) }()
	client, err := m.conn.Client()
	if err != nil {
		return 0, err
	}
	req, err := m.request(ctx, p, false)
	if err != nil {
		return 0, err
	}
	if req.Data, err = p.Data(); err != nil {
		return 0, err
	}
	return m.estimate(metrics.KindTransfer, m.GasPolicy(), func() (uint64, error) {
		return client.EstimateGas(ctx, req)
	})
}

// SendTransaction submits a raw transaction. The result carries the receipt only when the
// client generation waits for inclusion.
func (m *Manager) SendTransaction(ctx context.Context, p callargs.Params) (sub *chain.Submission, err error) {
	defer func() { complete(p, sub, err) }()
	client, err := m.conn.Client()
	if err != nil {
		return nil, err
	}
	to, err := p.To()
	if err != nil {
		return nil, err
	}
	if to == nil {
		return nil, ErrMissingRecipient
	}
	req, err := m.request(ctx, p, true)
	if err != nil {
		return nil, err
	}
	req.To = to
	if req.Data, err = p.Data(); err != nil {
		return nil, err
	}

	policy := m.GasPolicy()
	if req.Gas == 0 {
		estimate, err := m.estimate(metrics.KindTransfer, policy, func() (uint64, error) {
			return client.EstimateGas(ctx, req)
		})
		if err != nil {
			return nil, err
		}
		if req.Gas, err = m.margin(p, policy, estimate); err != nil {
			return nil, err
		}
		if len(req.Data) == 0 && req.Gas < policy.TransferFloor {
			req.Gas = policy.TransferFloor
		}
	}

	m.logFor(p)("Sending transaction", "from", req.From, "to", to, "value", req.Value, "gas", req.Gas)
	done := m.metrics.RecordSubmission(metrics.KindTransfer)
	sub, err = client.SendTransaction(ctx, req)
	done(err)
	if err != nil {
		return nil, err
	}
	m.logFor(p)("Sent transaction", "hash", sub.Hash, "generation", client.Generation())
	return sub, nil
}

// SendContractTransaction submits a state-changing contract call.
func (m *Manager) SendContractTransaction(ctx context.Context, ref ContractRef, method string, p callargs.Params) (sub *chain.Submission, err error) {
	defer func() { complete(p, sub, err) }()
	client, contract, args, err := m.contractCall(ref, method, p)
	if err != nil {
		return nil, err
	}
	req, err := m.request(ctx, p, true)
	if err != nil {
		return nil, err
	}

	policy := m.GasPolicy()
	switch {
	case req.Gas != 0:
	case p.NoEstimate():
		req.Gas = policy.Ceiling
	default:
		estimate, err := m.estimate(metrics.KindContract, policy, func() (uint64, error) {
			return contract.EstimateGas(ctx, method, args, req)
		})
		if err != nil {
			return nil, err
		}
		if req.Gas, err = m.margin(p, policy, estimate); err != nil {
			return nil, err
		}
	}

	m.logFor(p)("Sending contract transaction", "contract", ref.Address, "method", method, "from", req.From, "gas", req.Gas)
	done := m.metrics.RecordSubmission(metrics.KindContract)
	sub, err = contract.Transact(ctx, method, args, req)
	done(err)
	if err != nil {
		return nil, err
	}
	m.logFor(p)("Sent contract transaction", "method", method, "hash", sub.Hash, "generation", client.Generation())
	return sub, nil
}

// SendContractConstantTransaction reads a contract method. Nothing is estimated or submitted.
func (m *Manager) SendContractConstantTransaction(ctx context.Context, ref ContractRef, method string, p callargs.Params) (out []any, err error) {
	defer func() { complete(p, out, err) }()
	_, contract, args, err := m.contractCall(ref, method, p)
	if err != nil {
		return nil, err
	}
	req, err := m.request(ctx, p, false)
	if err != nil {
		return nil, err
	}
	out, err = contract.Call(ctx, method, args, req)
	if err != nil {
		return nil, err
	}
	m.logFor(p)("Called contract", "contract", ref.Address, "method", method, "results", len(out))
	return out, nil
}

// EstimateContractTransactionGas resolves a contract call like SendContractTransaction,
// and returns the raw estimate.
func (m *Manager) EstimateContractTransactionGas(ctx context.Context, ref ContractRef, method string, p callargs.Params) (gas uint64, err error) {
	defer func() { complete(p, gas, err) }()
	_, contract, args, err := m.contractCall(ref, method, p)
	if err != nil {
		return 0, err
	}
	req, err := m.request(ctx, p, true)
	if err != nil {
		return 0, err
	}
	return m.estimate(metrics.KindContract, m.GasPolicy(), func() (uint64, error) {
		return contract.EstimateGas(ctx, method, args, req)
	})
}

// DeployContract creates a contract from bytecode and the constructor arguments in p.
func (m *Manager) DeployContract(ctx context.Context, parsed *abi.ABI, bytecode []byte, p callargs.Params) (dep *chain.Deployment, err error) {
	defer func() { complete(p, dep, err) }()
	client, err := m.conn.Client()
	if err != nil {
		return nil, err
	}
	args, err := p.Arguments(parsed.Constructor.Inputs)
	if err != nil {
		return nil, fmt.Errorf("%w: constructor: %w", ErrInvalidContractMethod, err)
	}
	packed, err := parsed.Pack("", args...)
	if err != nil {
		return nil, fmt.Errorf("%w: constructor: %w", ErrInvalidContractMethod, err)
	}
	req, err := m.request(ctx, p, true)
	if err != nil {
		return nil, err
	}
	req.Data = append(append(make([]byte, 0, len(bytecode)+len(packed)), bytecode...), packed...)

	policy := m.GasPolicy()
	switch {
	case req.Gas != 0:
	case p.NoEstimate():
		req.Gas = policy.Ceiling
	default:
		estimate, err := m.estimate(metrics.KindDeploy, policy, func() (uint64, error) {
			return client.EstimateGas(ctx, req)
		})
		if err != nil {
			return nil, err
		}
		if req.Gas, err = m.margin(p, policy, estimate); err != nil {
			return nil, err
		}
	}

	m.logFor(p)("Deploying contract", "from", req.From, "gas", req.Gas, "size", len(req.Data))
	done := m.metrics.RecordSubmission(metrics.KindDeploy)
	dep, err = client.DeployContract(ctx, req)
	done(err)
	if err != nil {
		return nil, err
	}
	if dep == nil || dep.Address == (common.Address{}) {
		return nil, ErrEmptyContractResult
	}
	if dep.Receipt != nil && dep.Receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%w: creation reverted in %s", ErrEmptyContractResult, dep.TxHash)
	}
	m.logFor(p)("Deployed contract", "address", dep.Address, "hash", dep.TxHash)
	return dep, nil
}

func (m *Manager) contractCall(ref ContractRef, method string, p callargs.Params) (chain.Client, chain.Contract, []any, error) {
	client, err := m.conn.Client()
	if err != nil {
		return nil, nil, nil, err
	}
	if ref.ABI == nil {
		return nil, nil, nil, fmt.Errorf("%w: no ABI for contract %s", ErrInvalidContractMethod, ref.Address)
	}
	abiMethod, ok := ref.ABI.Methods[method]
	if !ok {
		return nil, nil, nil, fmt.Errorf("%w: %q is not in the ABI", ErrInvalidContractMethod, method)
	}
	args, err := p.Arguments(abiMethod.Inputs)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %s: %w", ErrInvalidContractMethod, method, err)
	}
	return client, client.Contract(ref.ABI, ref.Address), args, nil
}

// request builds the transaction fields shared by all operations. When requireSender is
// set, a missing sender fails with ErrNoAccountsAvailable.
func (m *Manager) request(ctx context.Context, p callargs.Params, requireSender bool) (chain.TxRequest, error) {
	var req chain.TxRequest
	from, err := m.sender(ctx, p)
	switch {
	case errors.Is(err, ErrNoAccountsAvailable) && !requireSender:
	case err != nil:
		return req, err
	default:
		req.From = from
	}
	if req.Value, err = p.Value(); err != nil {
		return req, err
	}
	if req.GasPrice, err = p.GasPrice(); err != nil {
		return req, err
	}
	if req.GasPrice == nil {
		req.GasPrice = m.GasPolicy().GasPrice
	}
	if req.Nonce, err = p.Nonce(); err != nil {
		return req, err
	}
	gas, err := p.Gas()
	if err != nil {
		return req, err
	}
	if gas != nil {
		req.Gas = *gas
	}
	return req, nil
}

// sender is the explicit sender, or else the first known account. An empty account
// cache is refreshed once before giving up.
func (m *Manager) sender(ctx context.Context, p callargs.Params) (common.Address, error) {
	from, err := p.From()
	if err != nil {
		return common.Address{}, err
	}
	if from != nil {
		return *from, nil
	}
	accounts := m.conn.CachedAccounts()
	if len(accounts) == 0 {
		if accounts, err = m.conn.Accounts(ctx); err != nil {
			return common.Address{}, fmt.Errorf("failed to resolve accounts: %w", err)
		}
	}
	if len(accounts) == 0 {
		return common.Address{}, ErrNoAccountsAvailable
	}
	return accounts[0], nil
}

func (m *Manager) estimate(kind string, policy GasPolicy, fn func() (uint64, error)) (uint64, error) {
	estimate, err := fn()
	if err != nil {
		return 0, err
	}
	m.metrics.RecordGasEstimate(kind, estimate)
	if estimate >= policy.Ceiling {
		m.metrics.RecordCeilingRejection(kind)
		return 0, fmt.Errorf("%w: estimated %d, ceiling %d", ErrGasCeilingExceeded, estimate, policy.Ceiling)
	}
	return estimate, nil
}

func (m *Manager) margin(p callargs.Params, policy GasPolicy, estimate uint64) (uint64, error) {
	extra, err := p.ExtraGas()
	if err != nil {
		return 0, err
	}
	gas := policy.withMargin(estimate, extra)
	m.log.Debug("Applied gas margin", "estimate", estimate, "gas", gas, "explicit", extra != nil)
	return gas, nil
}

func (m *Manager) logFor(p callargs.Params) func(msg string, ctx ...any) {
	if p.Verbose() {
		return m.log.Info
	}
	return m.log.Debug
}

// complete hands the outcome to the callback of p, if any.
func complete[T any](p callargs.Params, result T, err error) {
	cb := p.Callback()
	if cb == nil {
		return
	}
	if err != nil {
		cb(nil, err)
		return
	}
	cb(result, nil)
}
