package database

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"veriframe-indexer/boff"
	"veriframe-indexer/chain"
	"veriframe-indexer/logger"
)

// DropHistory periodically prunes rows of the raw contract-event journal
// older than intervalSeconds. Derived entities (workers, jobs, histories,
// stats) are never touched: the journal is only needed for replay detection
// within the reorganization window.
func DropHistory(
	ctx context.Context, db *gorm.DB, intervalSeconds, checkInterval uint64, client *chain.Client,
) {
	for {
		startTime := time.Now()
		err := DropHistoryIteration(ctx, db, intervalSeconds, client)
		if err == nil || errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Info("finished DropHistory iteration in %v", time.Since(startTime))
		} else {
			logger.Error("DropHistory error: %s", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(checkInterval) * time.Second):
		}
	}
}

func DropHistoryIteration(
	ctx context.Context, db *gorm.DB, intervalSeconds uint64, client *chain.Client,
) error {
	lastBlockTime, err := latestBlockTimestamp(ctx, client)
	if err != nil {
		return errors.Wrap(err, "Failed to get the latest block time")
	}

	if lastBlockTime < intervalSeconds {
		return nil
	}
	deleteStart := lastBlockTime - intervalSeconds

	result := db.WithContext(ctx).
		Where("timestamp < ?", deleteStart).
		Delete(&ContractEvent{})
	if result.Error != nil {
		return errors.Wrap(result.Error, "Failed to delete historic journal rows")
	}

	if result.RowsAffected > 0 {
		logger.Info("Deleted %d journal rows older than %d", result.RowsAffected, deleteStart)
	}

	return nil
}

func latestBlockTimestamp(ctx context.Context, client *chain.Client) (uint64, error) {
	type header struct {
		number, timestamp uint64
	}

	h, err := boff.RetryWithMaxElapsed(ctx, func() (header, error) {
		ctx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()

		number, timestamp, err := client.HeaderByNumber(ctx, nil)
		return header{number, timestamp}, err
	}, "latestBlockTimestamp")
	if err != nil {
		return 0, err
	}

	return h.timestamp, nil
}
