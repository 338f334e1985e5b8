package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"veriframe-indexer/database"
)

const workerAddr = "0x00000000000000000000000000000000000000a1"

func newTestServer(t *testing.T) (*Server, *gorm.DB) {
	t.Helper()

	db, err := database.ConnectAndInitializeTestDB(context.Background())
	require.NoError(t, err)

	return New(db, "localhost:0"), db
}

func doGet(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v))
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doGet(t, s, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	decodeBody(t, rec, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestWorkerEndpoint(t *testing.T) {
	s, db := newTestServer(t)

	require.NoError(t, db.Create(&database.Worker{
		Address:    workerAddr,
		Registered: true,
		Reputation: 650,
	}).Error)

	rec := doGet(t, s, "/workers/"+workerAddr)
	assert.Equal(t, http.StatusOK, rec.Code)

	var worker database.Worker
	decodeBody(t, rec, &worker)
	assert.Equal(t, workerAddr, worker.Address)
	assert.Equal(t, uint64(650), worker.Reputation)

	rec = doGet(t, s, "/workers/0x00000000000000000000000000000000000000ff")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReputationHistoryEndpoint(t *testing.T) {
	s, db := newTestServer(t)

	require.NoError(t, db.Create(&database.ReputationHistory{
		WorkerAddress:   workerAddr,
		OldReputation:   500,
		NewReputation:   650,
		ChangeAmount:    150,
		Reason:          "quality bonus",
		TransactionHash: "0x01",
		LogIndex:        0,
		BlockNumber:     10,
	}).Error)

	rec := doGet(t, s, "/workers/"+workerAddr+"/reputation")
	assert.Equal(t, http.StatusOK, rec.Code)

	var history []database.ReputationHistory
	decodeBody(t, rec, &history)
	require.Len(t, history, 1)
	assert.Equal(t, int64(150), history[0].ChangeAmount)

	// An unknown worker has an empty history, not a 404.
	rec = doGet(t, s, "/workers/0x00000000000000000000000000000000000000ff/reputation")
	assert.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &history)
	assert.Empty(t, history)
}

func TestJobEndpoint(t *testing.T) {
	s, db := newTestServer(t)

	now := uint64(time.Now().Unix())
	require.NoError(t, db.Create(&database.Job{
		ChainJobID: 7,
		Creator:    "0x00000000000000000000000000000000000000c1",
		Reward:     100,
		Deadline:   now + 3600,
		Status:     database.JobStatusOpen,
	}).Error)
	require.NoError(t, db.Create(&database.Job{
		ChainJobID: 8,
		Creator:    "0x00000000000000000000000000000000000000c1",
		Reward:     100,
		Deadline:   now - 3600,
		Status:     database.JobStatusOpen,
	}).Error)

	rec := doGet(t, s, "/jobs/7")
	assert.Equal(t, http.StatusOK, rec.Code)

	var job struct {
		database.Job
		Expired bool `json:"expired"`
	}
	decodeBody(t, rec, &job)
	assert.Equal(t, uint64(7), job.ChainJobID)
	assert.False(t, job.Expired)

	rec = doGet(t, s, "/jobs/8")
	assert.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &job)
	assert.True(t, job.Expired)

	rec = doGet(t, s, "/jobs/99")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doGet(t, s, "/jobs/notanumber")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestJobEventsEndpoint(t *testing.T) {
	s, db := newTestServer(t)

	require.NoError(t, db.Create(&database.JobEvent{
		ChainJobID:      7,
		EventType:       database.JobEventCreated,
		TransactionHash: "0x01",
		LogIndex:        0,
		BlockNumber:     10,
	}).Error)
	require.NoError(t, db.Create(&database.JobEvent{
		ChainJobID:      7,
		EventType:       database.JobEventAssigned,
		TransactionHash: "0x02",
		LogIndex:        1,
		BlockNumber:     11,
	}).Error)

	rec := doGet(t, s, "/jobs/7/events")
	assert.Equal(t, http.StatusOK, rec.Code)

	var events []database.JobEvent
	decodeBody(t, rec, &events)
	require.Len(t, events, 2)
	assert.Equal(t, database.JobEventCreated, events[0].EventType)
	assert.Equal(t, database.JobEventAssigned, events[1].EventType)
}

func TestGlobalStatsEndpoint(t *testing.T) {
	s, db := newTestServer(t)

	// No row indexed yet.
	rec := doGet(t, s, "/stats/global")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, db.Create(&database.GlobalStats{
		Key:          database.GlobalStatsKey,
		TotalWorkers: 3,
		TotalJobs:    5,
		OpenJobs:     2,
	}).Error)

	rec = doGet(t, s, "/stats/global")
	assert.Equal(t, http.StatusOK, rec.Code)

	var stats database.GlobalStats
	decodeBody(t, rec, &stats)
	assert.Equal(t, uint64(3), stats.TotalWorkers)
	assert.Equal(t, uint64(5), stats.TotalJobs)
	assert.Equal(t, uint64(2), stats.OpenJobs)
}

func TestDailyStatsEndpoint(t *testing.T) {
	s, db := newTestServer(t)

	require.NoError(t, db.Create(&database.DailyStats{Day: 86400, JobsCreated: 2}).Error)
	require.NoError(t, db.Create(&database.DailyStats{Day: 172800, JobsCreated: 1}).Error)

	rec := doGet(t, s, "/stats/daily")
	assert.Equal(t, http.StatusOK, rec.Code)

	var stats []database.DailyStats
	decodeBody(t, rec, &stats)
	require.Len(t, stats, 2)
	assert.Equal(t, uint64(86400), stats[0].Day)

	rec = doGet(t, s, "/stats/daily?from=172800")
	assert.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &stats)
	require.Len(t, stats, 1)
	assert.Equal(t, uint64(172800), stats[0].Day)

	rec = doGet(t, s, "/stats/daily?to=86400")
	assert.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &stats)
	require.Len(t, stats, 1)
	assert.Equal(t, uint64(86400), stats[0].Day)
}
