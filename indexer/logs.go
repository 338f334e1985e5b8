package indexer

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"veriframe-indexer/boff"
	"veriframe-indexer/config"
	"veriframe-indexer/indexer/abi"
	"veriframe-indexer/logger"
)

// requestLogs fetches all JobRegistry logs in [from, to], splitting the
// range into log_range sized queries issued in parallel.
func (ci *BlockIndexer) requestLogs(ctx context.Context, from, to uint64) ([]types.Log, error) {
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(ci.params.NumParallelReq)

	var mu sync.Mutex
	var all []types.Log

	logRange := uint64(ci.params.LogRange)
	for start := from; start <= to; start += logRange {
		start := start
		end := min(start+logRange-1, to)

		g.Go(func() error {
			query := ethereum.FilterQuery{
				FromBlock: new(big.Int).SetUint64(start),
				ToBlock:   new(big.Int).SetUint64(end),
				Addresses: []common.Address{ci.registry},
				Topics:    [][]common.Hash{abi.EventTopics()},
			}

			logs, err := boff.RetryWithMaxElapsed(gCtx, func() ([]types.Log, error) {
				reqCtx, cancel := context.WithTimeout(gCtx, config.Timeout)
				defer cancel()

				return ci.client.FilterLogs(reqCtx, query)
			}, "FilterLogs")
			if err != nil {
				return errors.Wrap(err, "requestLogs: FilterLogs")
			}

			mu.Lock()
			all = append(all, logs...)
			mu.Unlock()

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return all, nil
}

// decodeLogs resolves block timestamps, decodes raw logs into typed events
// and sorts them into arrival order. Logs with unknown topics are skipped.
func (ci *BlockIndexer) decodeLogs(ctx context.Context, logs []types.Log) ([]Event, error) {
	timestamps, err := ci.blockTimestamps(ctx, logs)
	if err != nil {
		return nil, err
	}

	events := make([]Event, 0, len(logs))
	for i := range logs {
		event, err := DecodeLog(&logs[i], timestamps[logs[i].BlockNumber])
		if errors.Is(err, errUnknownEvent) {
			logger.Debug("Skipping log with unknown topic in tx %s", logs[i].TxHash.Hex())
			continue
		}
		if err != nil {
			return nil, errors.Wrap(err, "decodeLogs")
		}
		events = append(events, event)
	}

	sortEvents(events)

	return events, nil
}

// blockTimestamps fetches the header timestamp of every distinct block the
// given logs appear in.
func (ci *BlockIndexer) blockTimestamps(ctx context.Context, logs []types.Log) (map[uint64]uint64, error) {
	numbers := make(map[uint64]bool)
	for i := range logs {
		numbers[logs[i].BlockNumber] = true
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(ci.params.NumParallelReq)

	var mu sync.Mutex
	timestamps := make(map[uint64]uint64, len(numbers))

	for number := range numbers {
		number := number
		g.Go(func() error {
			_, timestamp, err := ci.fetchBlockTimestamp(gCtx, new(big.Int).SetUint64(number))
			if err != nil {
				return errors.Wrapf(err, "blockTimestamps: block %d", number)
			}

			mu.Lock()
			timestamps[number] = timestamp
			mu.Unlock()

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return timestamps, nil
}
