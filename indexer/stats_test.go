package indexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDayBucket(t *testing.T) {
	assert.Equal(t, uint64(0), dayBucket(0))
	assert.Equal(t, uint64(0), dayBucket(86399))
	assert.Equal(t, uint64(secondsPerDay), dayBucket(secondsPerDay))

	// Events seconds apart land in the same bucket.
	assert.Equal(t, dayBucket(baseTime), dayBucket(baseTime+10))

	// Events one day apart land in sequential buckets.
	assert.Equal(t, dayBucket(baseTime)+secondsPerDay, dayBucket(baseTime+secondsPerDay))
}

func TestMeanAdd(t *testing.T) {
	mean := meanAdd(0, 0, 80)
	assert.Equal(t, 80.0, mean)

	mean = meanAdd(mean, 2, 100)
	assert.InDelta(t, 90.0, mean, 1e-9)

	mean = meanAdd(mean, 3, 60)
	assert.InDelta(t, 80.0, mean, 1e-9)
}

func TestClampSub(t *testing.T) {
	assert.Equal(t, uint64(4), clampSub("open_jobs", 5))
	assert.Equal(t, uint64(0), clampSub("open_jobs", 1))
	assert.Equal(t, uint64(0), clampSub("open_jobs", 0))
}
