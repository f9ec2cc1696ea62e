package chain

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
)

type receiptFetcher func(ctx context.Context, hash common.Hash) (*types.Receipt, error)

// waitReceipt queries for the receipt of hash until it is found, the query fails or ctx is done.
func waitReceipt(ctx context.Context, lgr log.Logger, clk clock.Clock, interval time.Duration, fetch receiptFetcher, hash common.Hash) (*types.Receipt, error) {
	lgr = lgr.New("tx", hash)
	for {
		receipt, err := fetch(ctx, hash)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch receipt: %w", err)
		}
		if receipt != nil {
			lgr.Debug("Transaction included", "block", receipt.BlockNumber, "status", receipt.Status)
			return receipt, nil
		}
		lgr.Trace("Transaction not yet included")
		timer := clk.Timer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}
