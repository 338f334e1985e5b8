package indexer

import (
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"veriframe-indexer/database"
	"veriframe-indexer/logger"
	"veriframe-indexer/metrics"
)

const secondsPerDay = 86400

// dayBucket aligns a timestamp to the start of its UTC calendar day.
func dayBucket(timestamp uint64) uint64 {
	return timestamp - timestamp%secondsPerDay
}

func getOrCreateDailyStats(tx *gorm.DB, timestamp uint64) (*database.DailyStats, error) {
	day := dayBucket(timestamp)

	var stats database.DailyStats
	err := tx.Where("day = ?", day).First(&stats).Error
	if err == nil {
		return &stats, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	stats = database.DailyStats{
		Day:               day,
		AverageReputation: database.DefaultReputation,
	}
	if err := tx.Create(&stats).Error; err != nil {
		return nil, err
	}

	return &stats, nil
}

func getOrCreateGlobalStats(tx *gorm.DB) (*database.GlobalStats, error) {
	var stats database.GlobalStats
	err := tx.Where("`key` = ?", database.GlobalStatsKey).First(&stats).Error
	if err == nil {
		return &stats, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	stats = database.GlobalStats{
		Key:               database.GlobalStatsKey,
		AverageReputation: database.DefaultReputation,
	}
	if err := tx.Create(&stats).Error; err != nil {
		return nil, err
	}

	return &stats, nil
}

// clampSub decrements v, clamping at zero. A would-be-negative decrement is
// an integrity violation: it is surfaced and counted, never stored.
func clampSub(counter string, v uint64) uint64 {
	if v == 0 {
		logger.Warn("Counter %s decrement would go negative, clamping at zero", counter)
		metrics.IntegrityClamps.WithLabelValues(counter).Inc()
		return 0
	}
	return v - 1
}

// meanAdd folds the n-th sample x into a running mean.
func meanAdd(mean float64, n uint64, x float64) float64 {
	if n == 0 {
		return x
	}
	return mean + (x-mean)/float64(n)
}
