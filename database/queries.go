package database

import (
	"context"

	"gorm.io/gorm"
)

func FetchState(db *gorm.DB, name string) (*State, error) {
	var currentState State
	err := db.Where(&State{Name: name}).First(&currentState).Error
	return &currentState, err
}

func FetchWorker(ctx context.Context, db *gorm.DB, address string) (*Worker, error) {
	var worker Worker
	err := db.WithContext(ctx).Where(&Worker{Address: address}).First(&worker).Error
	return &worker, err
}

func FetchJob(ctx context.Context, db *gorm.DB, chainJobID uint64) (*Job, error) {
	var job Job
	err := db.WithContext(ctx).Where("chain_job_id = ?", chainJobID).First(&job).Error
	return &job, err
}

// FetchJobEvents returns the append-only history of a job in arrival order.
func FetchJobEvents(ctx context.Context, db *gorm.DB, chainJobID uint64) ([]JobEvent, error) {
	var events []JobEvent
	err := db.WithContext(ctx).
		Where("chain_job_id = ?", chainJobID).
		Order("block_number, log_index").
		Find(&events).Error
	return events, err
}

// FetchReputationHistory returns a worker's reputation changes in arrival order.
func FetchReputationHistory(ctx context.Context, db *gorm.DB, address string) ([]ReputationHistory, error) {
	var history []ReputationHistory
	err := db.WithContext(ctx).
		Where(&ReputationHistory{WorkerAddress: address}).
		Order("block_number, log_index").
		Find(&history).Error
	return history, err
}

func FetchGlobalStats(ctx context.Context, db *gorm.DB) (*GlobalStats, error) {
	var stats GlobalStats
	err := db.WithContext(ctx).Where(&GlobalStats{Key: GlobalStatsKey}).First(&stats).Error
	return &stats, err
}

// FetchDailyStats returns day buckets with fromDay <= day <= toDay. A zero
// toDay means no upper bound.
func FetchDailyStats(ctx context.Context, db *gorm.DB, fromDay, toDay uint64) ([]DailyStats, error) {
	q := db.WithContext(ctx).Where("day >= ?", fromDay)
	if toDay > 0 {
		q = q.Where("day <= ?", toDay)
	}

	var stats []DailyStats
	err := q.Order("day").Find(&stats).Error
	return stats, err
}
