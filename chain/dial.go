package chain

import (
	"context"
	"fmt"

	"github.com/avast/retry-go/v4"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// Dial connects to url and wraps the connection in the adapter for gen.
// The dial is attempted up to attempts times; operations on the returned client are never retried.
func Dial(ctx context.Context, url string, gen Generation, attempts uint, opts Options) (Client, error) {
	if attempts == 0 {
		attempts = 1
	}
	opts = opts.withDefaults()
	var c *rpc.Client
	err := retry.Do(
		func() (err error) {
			c, err = rpc.DialContext(ctx, url)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			opts.Log.Warn("Failed to dial endpoint", "url", url, "attempt", n+1, "err", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}
	return Wrap(c, gen, opts)
}

// Wrap adapts an existing client handle. Raw *rpc.Client handles are adapted to gen,
// *ethclient.Client handles are always typed, and Client values are returned as they are.
func Wrap(handle any, gen Generation, opts Options) (Client, error) {
	switch h := handle.(type) {
	case Client:
		return h, nil
	case *ethclient.Client:
		return NewTyped(h, opts), nil
	case *rpc.Client:
		switch gen {
		case GenerationLegacy:
			return NewLegacy(h, opts), nil
		case GenerationTyped:
			return NewTyped(ethclient.NewClient(h), opts), nil
		default:
			return nil, fmt.Errorf("unsupported client generation %s", gen)
		}
	case nil:
		return nil, fmt.Errorf("nil client handle")
	default:
		return nil, fmt.Errorf("unsupported client handle %T", handle)
	}
}
