package chaintest

import (
	"context"
	"math/big"

	"github.com/stretchr/testify/mock"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/ethtx/ethtx/chain"
)

// MockClient is a testify mock of chain.Client.
type MockClient struct {
	mock.Mock
}

var _ chain.Client = (*MockClient)(nil)

func NewMockClient(t mock.TestingT) *MockClient {
	m := &MockClient{}
	m.Test(t)
	return m
}

func (m *MockClient) Generation() chain.Generation {
	return m.Called().Get(0).(chain.Generation)
}

func (m *MockClient) Accounts(ctx context.Context) ([]common.Address, error) {
	out := m.Called(ctx)
	accounts, _ := out.Get(0).([]common.Address)
	return accounts, out.Error(1)
}

func (m *MockClient) NetworkID(ctx context.Context) (*big.Int, error) {
	out := m.Called(ctx)
	id, _ := out.Get(0).(*big.Int)
	return id, out.Error(1)
}

func (m *MockClient) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	out := m.Called(ctx, account, blockNumber)
	bal, _ := out.Get(0).(*big.Int)
	return bal, out.Error(1)
}

func (m *MockClient) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	out := m.Called(ctx, number)
	head, _ := out.Get(0).(*types.Header)
	return head, out.Error(1)
}

func (m *MockClient) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	out := m.Called(ctx, hash)
	receipt, _ := out.Get(0).(*types.Receipt)
	return receipt, out.Error(1)
}

func (m *MockClient) CallRPC(ctx context.Context, result any, method string, params ...any) error {
	return m.Called(ctx, result, method, params).Error(0)
}

func (m *MockClient) EstimateGas(ctx context.Context, req chain.TxRequest) (uint64, error) {
	out := m.Called(ctx, req)
	return out.Get(0).(uint64), out.Error(1)
}

func (m *MockClient) SendTransaction(ctx context.Context, req chain.TxRequest) (*chain.Submission, error) {
	out := m.Called(ctx, req)
	sub, _ := out.Get(0).(*chain.Submission)
	return sub, out.Error(1)
}

func (m *MockClient) DeployContract(ctx context.Context, req chain.TxRequest) (*chain.Deployment, error) {
	out := m.Called(ctx, req)
	dep, _ := out.Get(0).(*chain.Deployment)
	return dep, out.Error(1)
}

func (m *MockClient) Contract(parsed *abi.ABI, address common.Address) chain.Contract {
	return m.Called(parsed, address).Get(0).(chain.Contract)
}

func (m *MockClient) Close() {
	m.Called()
}

// MockContract is a testify mock of chain.Contract.
type MockContract struct {
	mock.Mock
}

var _ chain.Contract = (*MockContract)(nil)

func NewMockContract(t mock.TestingT) *MockContract {
	m := &MockContract{}
	m.Test(t)
	return m
}

func (m *MockContract) Address() common.Address {
	return m.Called().Get(0).(common.Address)
}

func (m *MockContract) EstimateGas(ctx context.Context, method string, args []any, opts chain.TxRequest) (uint64, error) {
	out := m.Called(ctx, method, args, opts)
	return out.Get(0).(uint64), out.Error(1)
}

func (m *MockContract) Transact(ctx context.Context, method string, args []any, opts chain.TxRequest) (*chain.Submission, error) {
	out := m.Called(ctx, method, args, opts)
	sub, _ := out.Get(0).(*chain.Submission)
	return sub, out.Error(1)
}

func (m *MockContract) Call(ctx context.Context, method string, args []any, opts chain.TxRequest) ([]any, error) {
	out := m.Called(ctx, method, args, opts)
	res, _ := out.Get(0).([]any)
	return res, out.Error(1)
}
