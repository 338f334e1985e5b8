package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJobStatusCanAdvanceTo(t *testing.T) {
	assert.True(t, JobStatusOpen.CanAdvanceTo(JobStatusAssigned))
	assert.True(t, JobStatusOpen.CanAdvanceTo(JobStatusCompleted))
	assert.True(t, JobStatusAssigned.CanAdvanceTo(JobStatusCompleted))

	assert.False(t, JobStatusOpen.CanAdvanceTo(JobStatusOpen))
	assert.False(t, JobStatusAssigned.CanAdvanceTo(JobStatusOpen))
	assert.False(t, JobStatusCompleted.CanAdvanceTo(JobStatusAssigned))
	assert.False(t, JobStatusCompleted.CanAdvanceTo(JobStatusOpen))
	assert.False(t, JobStatusCompleted.CanAdvanceTo(JobStatusCompleted))
}

func TestJobExpired(t *testing.T) {
	job := Job{Deadline: 1000}

	assert.False(t, job.Expired(999))
	assert.False(t, job.Expired(1000))
	assert.True(t, job.Expired(1001))

	job.Completed = true
	assert.False(t, job.Expired(1001))

	// No deadline means no expiry.
	noDeadline := Job{}
	assert.False(t, noDeadline.Expired(1))
}
