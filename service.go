// Package ethtx deploys and drives smart contracts on an Ethereum-compatible node
// through its JSON-RPC endpoint.
package ethtx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/spf13/afero"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"

	"github.com/ethtx/ethtx/binder"
	"github.com/ethtx/ethtx/bundle"
	"github.com/ethtx/ethtx/callargs"
	"github.com/ethtx/ethtx/chain"
	"github.com/ethtx/ethtx/compiler"
	"github.com/ethtx/ethtx/connection"
	"github.com/ethtx/ethtx/eth"
	"github.com/ethtx/ethtx/metrics"
	"github.com/ethtx/ethtx/txmgr"
)

var (
	ErrMissingMethod = errors.New("you need to indicate a method")
	ErrNoCompiler    = errors.New("no compiler configured")
)

const DefaultReceiptCacheSize = 1024

type Options struct {
	Log     log.Logger
	Metrics metrics.Metricer
	Clock   clock.Clock

	// GasPolicy applies until a connection sets its own. Zero means txmgr.DefaultGasPolicy.
	GasPolicy txmgr.GasPolicy

	DialAttempts         uint
	PollInterval         time.Duration
	ReceiptQueryInterval time.Duration
	ReceiptCacheSize     int

	Compiler compiler.Compiler
	Fs       afero.Fs
}

func (o Options) withDefaults() Options {
	if o.Log == nil {
		o.Log = log.Root()
	}
	if o.Metrics == nil {
		o.Metrics = metrics.NoopMetrics{}
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	if o.GasPolicy.Ceiling == 0 && o.GasPolicy.Margin == nil {
		o.GasPolicy = txmgr.DefaultGasPolicy()
	}
	if o.DialAttempts == 0 {
		o.DialAttempts = 1
	}
	if o.PollInterval <= 0 {
		o.PollInterval = connection.DefaultPollInterval
	}
	if o.ReceiptQueryInterval <= 0 {
		o.ReceiptQueryInterval = chain.DefaultReceiptQueryInterval
	}
	if o.ReceiptCacheSize <= 0 {
		o.ReceiptCacheSize = DefaultReceiptCacheSize
	}
	if o.Fs == nil {
		o.Fs = afero.NewOsFs()
	}
	return o
}

// ConnectOptions tune a single attachment.
type ConnectOptions struct {
	// Generation selects the client adapter. Zero means chain.GenerationTyped.
	Generation chain.Generation
	// GasPolicy replaces the current policy when set.
	GasPolicy *txmgr.GasPolicy
}

// Service owns the connection state and exposes every chain operation.
// It starts unattached: chain operations fail with connection.ErrNotConnected
// until Connect or UseConnection succeeds.
type Service struct {
	log     log.Logger
	metrics metrics.Metricer
	opts    Options

	state    *connection.State
	txmgr    *txmgr.Manager
	watcher  *connection.Watcher
	receipts *lru.Cache[common.Hash, *types.Receipt]
}

func New(opts Options) (*Service, error) {
	opts = opts.withDefaults()
	if err := opts.GasPolicy.Check(); err != nil {
		return nil, fmt.Errorf("invalid gas policy: %w", err)
	}
	receipts, err := lru.New[common.Hash, *types.Receipt](opts.ReceiptCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create receipt cache: %w", err)
	}
	state := connection.NewState(opts.Log, opts.Metrics)
	return &Service{
		log:      opts.Log,
		metrics:  opts.Metrics,
		opts:     opts,
		state:    state,
		txmgr:    txmgr.NewManager(opts.Log, opts.Metrics, state, opts.GasPolicy),
		watcher:  connection.NewWatcher(opts.Log, state, opts.Metrics, opts.Clock, opts.PollInterval),
		receipts: receipts,
	}, nil
}

func (s *Service) chainOptions() chain.Options {
	return chain.Options{Log: s.log, Clock: s.opts.Clock, ReceiptQueryInterval: s.opts.ReceiptQueryInterval}
}

// Connect dials url and attaches to it.
func (s *Service) Connect(ctx context.Context, url string, co ConnectOptions) error {
	if co.Generation == 0 {
		co.Generation = chain.GenerationTyped
	}
	client, err := chain.Dial(ctx, url, co.Generation, s.opts.DialAttempts, s.chainOptions())
	if err != nil {
		return err
	}
	if err := s.attach(ctx, client, co); err != nil {
		client.Close()
		return err
	}
	return nil
}

// UseConnection attaches to an existing client handle: a chain.Client,
// an *ethclient.Client, or an *rpc.Client.
func (s *Service) UseConnection(ctx context.Context, handle any, co ConnectOptions) error {
	if co.Generation == 0 {
		co.Generation = chain.GenerationTyped
	}
	client, err := chain.Wrap(handle, co.Generation, s.chainOptions())
	if err != nil {
		return err
	}
	return s.attach(ctx, client, co)
}

// attach replaces the attached client. The previous client is left open, so operations
// already running against it complete.
func (s *Service) attach(ctx context.Context, client chain.Client, co ConnectOptions) error {
	if co.GasPolicy != nil {
		if err := co.GasPolicy.Check(); err != nil {
			return fmt.Errorf("invalid gas policy: %w", err)
		}
	}
	if err := s.state.Attach(ctx, client); err != nil {
		return err
	}
	if co.GasPolicy != nil {
		if err := s.txmgr.SetGasPolicy(*co.GasPolicy); err != nil {
			return err
		}
	}
	s.receipts.Purge()
	return nil
}

func (s *Service) State() *connection.State {
	return s.state
}

func (s *Service) Manager() *txmgr.Manager {
	return s.txmgr
}

// Fs is the filesystem sources and artifacts are read from.
func (s *Service) Fs() afero.Fs {
	return s.opts.Fs
}

func (s *Service) GasPolicy() txmgr.GasPolicy {
	return s.txmgr.GasPolicy()
}

func (s *Service) SetGasPolicy(policy txmgr.GasPolicy) error {
	return s.txmgr.SetGasPolicy(policy)
}

// Accounts re-resolves the account list.
func (s *Service) Accounts(ctx context.Context) ([]common.Address, error) {
	return s.state.Accounts(ctx)
}

// Network re-resolves the network identifier.
func (s *Service) Network(ctx context.Context) (*big.Int, error) {
	return s.state.Network(ctx)
}

// Balance returns the balance of account at the latest block.
func (s *Service) Balance(ctx context.Context, account common.Address) (eth.ETH, error) {
	client, err := s.state.Client()
	if err != nil {
		return eth.ZeroWei, err
	}
	bal, err := client.BalanceAt(ctx, account, nil)
	if err != nil {
		return eth.ZeroWei, err
	}
	return eth.WeiBig(bal), nil
}

// Block returns the header at number, or the latest header when number is nil.
func (s *Service) Block(ctx context.Context, number *big.Int) (*types.Header, error) {
	client, err := s.state.Client()
	if err != nil {
		return nil, err
	}
	return client.HeaderByNumber(ctx, number)
}

// TransactionReceipt returns the receipt of hash, or nil when it is not known yet.
// Found receipts are cached until the next attachment.
func (s *Service) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	client, err := s.state.Client()
	if err != nil {
		return nil, err
	}
	if receipt, ok := s.receipts.Get(hash); ok {
		return receipt, nil
	}
	receipt, err := client.TransactionReceipt(ctx, hash)
	if err != nil {
		return nil, err
	}
	if receipt != nil {
		s.receipts.Add(hash, receipt)
	}
	return receipt, nil
}

// RPCSend invokes a raw JSON-RPC method and returns its undecoded result.
func (s *Service) RPCSend(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	client, err := s.state.Client()
	if err != nil {
		return nil, err
	}
	if method == "" {
		return nil, ErrMissingMethod
	}
	if params == nil {
		params = []any{}
	}
	var result json.RawMessage
	if err := client.CallRPC(ctx, &result, method, params...); err != nil {
		return nil, err
	}
	return result, nil
}

// Delay mines a block, advances the node clock by secs and mines another block.
// Only development nodes serve the evm_ methods.
func (s *Service) Delay(ctx context.Context, secs uint64) error {
	if _, err := s.RPCSend(ctx, "evm_mine"); err != nil {
		return err
	}
	if _, err := s.RPCSend(ctx, "evm_increaseTime", secs); err != nil {
		return err
	}
	_, err := s.RPCSend(ctx, "evm_mine")
	return err
}

func (s *Service) EstimateGas(ctx context.Context, p callargs.Params) (uint64, error) {
	return s.txmgr.EstimateTransactionGas(ctx, p)
}

func (s *Service) SendTransaction(ctx context.Context, p callargs.Params) (*chain.Submission, error) {
	return s.txmgr.SendTransaction(ctx, p)
}

// WrapContract binds an ABI and bytecode to this service.
func (s *Service) WrapContract(parsed *abi.ABI, bytecode []byte) (*binder.Factory, error) {
	return binder.Bind(s.txmgr, parsed, bytecode)
}

// WrapArtifact binds the named contract of compiled artifacts.
func (s *Service) WrapArtifact(as compiler.Artifacts, name string) (*binder.Factory, error) {
	a, err := as.Get(name)
	if err != nil {
		return nil, err
	}
	parsed, bytecode, err := a.Parse()
	if err != nil {
		return nil, fmt.Errorf("invalid artifact %s: %w", name, err)
	}
	return s.WrapContract(parsed, bytecode)
}

// OnChange registers fn for connection changes. The first registration starts polling.
func (s *Service) OnChange(fn connection.Listener) (cancel func()) {
	return s.watcher.Subscribe(fn)
}

// SetPollInterval changes how often the connection is polled for changes.
func (s *Service) SetPollInterval(d time.Duration) {
	s.watcher.SetInterval(d)
}

// Compile bundles the given source files and compiles them together.
// Compiler error positions refer to the original files.
func (s *Service) Compile(ctx context.Context, paths ...string) (compiler.Artifacts, error) {
	if s.opts.Compiler == nil {
		return nil, ErrNoCompiler
	}
	b, err := bundle.LoadFiles(s.opts.Fs, paths...)
	if err != nil {
		return nil, err
	}
	s.log.Debug("Compiling bundle", "files", b.Len())
	return compiler.CompileBundled(ctx, s.opts.Compiler, b)
}

// CompileTo compiles like Compile and writes the artifacts to out.
func (s *Service) CompileTo(ctx context.Context, out string, paths ...string) (compiler.Artifacts, error) {
	as, err := s.Compile(ctx, paths...)
	if err != nil {
		return nil, err
	}
	if err := compiler.WriteArtifacts(s.opts.Fs, out, as); err != nil {
		return nil, err
	}
	s.log.Info("Wrote artifacts", "path", out, "contracts", len(as))
	return as, nil
}

// Close stops polling and closes the attached client.
func (s *Service) Close() {
	s.watcher.Close()
	if client, err := s.state.Client(); err == nil {
		client.Close()
	}
}
