package indexer

import (
	"context"
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"veriframe-indexer/boff"
	"veriframe-indexer/chain"
	"veriframe-indexer/config"
	"veriframe-indexer/database"
	"veriframe-indexer/logger"
	"veriframe-indexer/metrics"
)

// BlockIndexer follows the JobRegistry contract on chain and applies its
// events to the entity store through a single sequential processing lane.
type BlockIndexer struct {
	db        *gorm.DB
	params    config.IndexerConfig
	client    *chain.Client
	registry  common.Address
	processor *Processor
}

func CreateBlockIndexer(cfg *config.Config, db *gorm.DB, client *chain.Client) (*BlockIndexer, error) {
	if cfg.Chain.RegistryAddress == "" {
		return nil, errors.New("CreateBlockIndexer: registry address not configured")
	}

	params := cfg.Indexer
	if params.StopIndex == 0 {
		params.StopIndex = math.MaxInt
	}
	if params.NumParallelReq == 0 {
		params.NumParallelReq = 1
	}
	if params.LogRange == 0 {
		params.LogRange = 1
	}
	params.BatchSize -= params.BatchSize % params.NumParallelReq
	if params.BatchSize == 0 {
		params.BatchSize = params.NumParallelReq
	}

	return &BlockIndexer{
		db:        db,
		params:    params,
		client:    client,
		registry:  common.HexToAddress(cfg.Chain.RegistryAddress),
		processor: NewProcessor(db),
	}, nil
}

// IndexHistory catches up from the last applied block to the chain head in
// batches and returns the last block it indexed.
func (ci *BlockIndexer) IndexHistory(ctx context.Context) (uint64, error) {
	states, err := database.GetDBStates(ctx, ci.db)
	if err != nil {
		return 0, errors.Wrap(err, "IndexHistory")
	}

	lastChainIndex, lastChainTimestamp, err := ci.fetchBlockTimestamp(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "IndexHistory")
	}
	_, startTimestamp, err := ci.fetchBlockTimestamp(ctx, new(big.Int).SetInt64(int64(ci.params.StartIndex)))
	if err != nil {
		return 0, errors.Wrap(err, "IndexHistory")
	}

	startIndex, lastIndex, err := states.UpdateAtStart(ci.db, uint64(ci.params.StartIndex),
		startTimestamp, lastChainIndex, lastChainTimestamp, uint64(ci.params.StopIndex))
	if err != nil {
		return 0, errors.Wrap(err, "IndexHistory")
	}
	logger.Info("Starting to index blocks from %d to %d", startIndex, lastIndex)

	batchSize := uint64(ci.params.BatchSize)
	for j := startIndex; j <= lastIndex; j += batchSize {
		lastBlockInBatch := min(j+batchSize-1, lastIndex)

		startTime := time.Now()
		numEvents, err := ci.indexRange(ctx, states, j, lastBlockInBatch)
		if err != nil {
			return 0, errors.Wrap(err, "IndexHistory")
		}
		logger.Info(
			"Indexed blocks %d to %d with %d registry events in %d milliseconds",
			j, lastBlockInBatch, numEvents, time.Since(startTime).Milliseconds(),
		)

		// in the second to last run of the loop update lastIndex to get the
		// blocks that were produced during the run of the algorithm
		if j+batchSize <= lastIndex && j+2*batchSize > lastIndex {
			lastChainIndex, lastChainTimestamp, err = ci.fetchBlockTimestamp(ctx, nil)
			if err != nil {
				return 0, errors.Wrap(err, "IndexHistory")
			}

			err = states.Update(ci.db, database.LastChainBlockState, lastChainIndex, lastChainTimestamp)
			if err != nil {
				return 0, errors.Wrap(err, "IndexHistory: States.Update")
			}

			if lastChainIndex > lastIndex && uint64(ci.params.StopIndex) > lastIndex {
				lastIndex = min(lastChainIndex, uint64(ci.params.StopIndex))
				logger.Info("Updating the last block to %d", lastIndex)
			}
		}
	}

	return lastIndex, nil
}

// IndexContinuous follows the chain head block by block.
func (ci *BlockIndexer) IndexContinuous(ctx context.Context) error {
	states, err := database.GetDBStates(ctx, ci.db)
	if err != nil {
		return errors.Wrap(err, "IndexContinuous")
	}

	index := states.Index(database.LastIndexedBlockState) + 1
	lastChainIndex := states.Index(database.LastChainBlockState)
	logger.Info("Continuously indexing blocks from %d", index)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if index > uint64(ci.params.StopIndex) {
			logger.Debug("Stopping the indexer at block %d", index-1)
			return nil
		}

		if index > lastChainIndex {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(ci.params.NewBlockCheckMillis) * time.Millisecond):
			}

			var lastChainTimestamp uint64
			lastChainIndex, lastChainTimestamp, err = ci.fetchBlockTimestamp(ctx, nil)
			if err != nil {
				return errors.Wrap(err, "IndexContinuous")
			}

			err = states.Update(ci.db, database.LastChainBlockState, lastChainIndex, lastChainTimestamp)
			if err != nil {
				return errors.Wrap(err, "IndexContinuous: States.Update")
			}

			continue
		}

		if _, err := ci.indexRange(ctx, states, index, index); err != nil {
			return errors.Wrap(err, "IndexContinuous")
		}

		if index%1000 == 0 {
			logger.Info("Indexer at block %d", index)
		}
		index += 1
	}
}

// indexRange fetches, decodes and applies all registry events in [from, to]
// and advances the last-indexed-block state.
func (ci *BlockIndexer) indexRange(ctx context.Context, states *database.DBStates, from, to uint64) (int, error) {
	logs, err := ci.requestLogs(ctx, from, to)
	if err != nil {
		return 0, err
	}

	events, err := ci.decodeLogs(ctx, logs)
	if err != nil {
		return 0, err
	}

	if err := ci.processor.ProcessEvents(ctx, events); err != nil {
		return 0, err
	}
	metrics.BlocksIndexed.Add(float64(to - from + 1))

	_, toTimestamp, err := ci.fetchBlockTimestamp(ctx, new(big.Int).SetUint64(to))
	if err != nil {
		return 0, err
	}

	err = states.Update(ci.db, database.LastIndexedBlockState, to, toTimestamp)
	if err != nil {
		return 0, errors.Wrap(err, "indexRange: States.Update")
	}

	return len(events), nil
}

// fetchBlockTimestamp returns the number and timestamp of the given block,
// or of the chain head if number is nil.
func (ci *BlockIndexer) fetchBlockTimestamp(ctx context.Context, number *big.Int) (uint64, uint64, error) {
	type header struct {
		number, timestamp uint64
	}

	h, err := boff.RetryWithMaxElapsed(ctx, func() (header, error) {
		reqCtx, cancel := context.WithTimeout(ctx, config.Timeout)
		defer cancel()

		n, timestamp, err := ci.client.HeaderByNumber(reqCtx, number)
		return header{n, timestamp}, err
	}, "HeaderByNumber")
	if err != nil {
		return 0, 0, err
	}

	return h.number, h.timestamp, nil
}
