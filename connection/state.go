// Package connection tracks the chain client the orchestration layer is attached to,
// and notifies listeners when the attached network or accounts change.
package connection

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/ethtx/ethtx/chain"
)

var ErrNotConnected = errors.New("you need to connect to a network before sending chain operations")

type Metricer interface {
	RecordAttach(generation string)
	RecordConnectionChange()
}

// Snapshot is the observable part of the connection state.
type Snapshot struct {
	Connected bool
	Network   *big.Int
	Accounts  []common.Address
}

// Equal compares snapshots field by field. Account lists are compared in order.
func (s Snapshot) Equal(o Snapshot) bool {
	if s.Connected != o.Connected {
		return false
	}
	if (s.Network == nil) != (o.Network == nil) {
		return false
	}
	if s.Network != nil && s.Network.Cmp(o.Network) != 0 {
		return false
	}
	return joinAccounts(s.Accounts) == joinAccounts(o.Accounts)
}

func joinAccounts(accounts []common.Address) string {
	parts := make([]string, len(accounts))
	for i, a := range accounts {
		parts[i] = a.Hex()
	}
	return strings.Join(parts, ",")
}

// State holds the attached client with its last resolved network and accounts.
// It starts unattached. Attaching again replaces the client; operations that already
// obtained the previous client complete against it.
type State struct {
	log     log.Logger
	metrics Metricer

	mu       sync.RWMutex
	client   chain.Client
	network  *big.Int
	accounts []common.Address
}

func NewState(logger log.Logger, m Metricer) *State {
	return &State{log: logger, metrics: m}
}

// Attach resolves the network and accounts of client, then makes it the attached client.
// On failure the state is left as it was.
func (s *State) Attach(ctx context.Context, client chain.Client) error {
	network, accounts, err := resolve(ctx, client)
	if err != nil {
		return fmt.Errorf("failed to attach: %w", err)
	}
	s.mu.Lock()
	s.client = client
	s.network = network
	s.accounts = accounts
	s.mu.Unlock()

	s.metrics.RecordAttach(client.Generation().String())
	s.log.Info("Attached to network", "network", network, "accounts", len(accounts), "generation", client.Generation())
	return nil
}

func resolve(ctx context.Context, client chain.Client) (*big.Int, []common.Address, error) {
	var (
		network  *big.Int
		accounts []common.Address
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		network, err = client.NetworkID(gctx)
		if err != nil {
			return fmt.Errorf("failed to resolve network: %w", err)
		}
		return nil
	})
	g.Go(func() (err error) {
		accounts, err = client.Accounts(gctx)
		if err != nil {
			return fmt.Errorf("failed to resolve accounts: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return network, accounts, nil
}

// Client returns the attached client, or ErrNotConnected.
func (s *State) Client() (chain.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.client == nil {
		return nil, ErrNotConnected
	}
	return s.client, nil
}

func (s *State) Attached() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client != nil
}

// Snapshot returns the last resolved state without any I/O.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{Connected: s.client != nil, Accounts: append([]common.Address(nil), s.accounts...)}
	if s.network != nil {
		snap.Network = new(big.Int).Set(s.network)
	}
	return snap
}

// CachedAccounts returns the account list as of the last resolution.
func (s *State) CachedAccounts() []common.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]common.Address(nil), s.accounts...)
}

// Accounts re-resolves the account list of the attached client.
func (s *State) Accounts(ctx context.Context) ([]common.Address, error) {
	client, err := s.Client()
	if err != nil {
		return nil, err
	}
	accounts, err := client.Accounts(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	if s.client == client {
		s.accounts = accounts
	}
	s.mu.Unlock()
	return append([]common.Address(nil), accounts...), nil
}

// Network re-resolves the network identifier of the attached client.
func (s *State) Network(ctx context.Context) (*big.Int, error) {
	client, err := s.Client()
	if err != nil {
		return nil, err
	}
	network, err := client.NetworkID(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	if s.client == client {
		s.network = network
	}
	s.mu.Unlock()
	return new(big.Int).Set(network), nil
}

// Refresh re-resolves network and accounts. An unattached state refreshes to a
// disconnected snapshot without error.
func (s *State) Refresh(ctx context.Context) (Snapshot, error) {
	client, err := s.Client()
	if errors.Is(err, ErrNotConnected) {
		return Snapshot{}, nil
	}
	network, accounts, err := resolve(ctx, client)
	if err != nil {
		return Snapshot{}, err
	}
	s.mu.Lock()
	if s.client == client {
		s.network = network
		s.accounts = accounts
	}
	s.mu.Unlock()
	return Snapshot{Connected: true, Network: network, Accounts: accounts}, nil
}
