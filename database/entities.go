package database

// JobStatus is the lifecycle state of a job. Transitions are strictly
// forward: OPEN -> ASSIGNED -> COMPLETED.
type JobStatus string

const (
	JobStatusOpen      JobStatus = "OPEN"
	JobStatusAssigned  JobStatus = "ASSIGNED"
	JobStatusCompleted JobStatus = "COMPLETED"
)

var jobStatusRank = map[JobStatus]int{
	JobStatusOpen:      0,
	JobStatusAssigned:  1,
	JobStatusCompleted: 2,
}

// CanAdvanceTo reports whether next is a forward transition from s.
func (s JobStatus) CanAdvanceTo(next JobStatus) bool {
	return jobStatusRank[next] > jobStatusRank[s]
}

// JobEventType tags entries of the append-only job history.
type JobEventType string

const (
	JobEventCreated   JobEventType = "CREATED"
	JobEventAssigned  JobEventType = "ASSIGNED"
	JobEventCompleted JobEventType = "COMPLETED"
)

// DefaultReputation is assigned to every newly registered worker.
const DefaultReputation = 500

// DefaultMinReputation is the job requirement used when the creation event
// does not carry one.
const DefaultMinReputation = 400

// BaseEntity is an abstract entity, all other entities should be derived from it
type BaseEntity struct {
	ID uint64 `gorm:"primaryKey"`
}

// Worker is a registered render node. Created on the first registration
// event, never deleted. All timestamps are chain seconds.
type Worker struct {
	BaseEntity
	Address       string `gorm:"type:varchar(42);uniqueIndex"`
	Registered    bool
	RegisteredAt  uint64
	InfoCidPart1  string `gorm:"type:varchar(32)"`
	InfoCidPart2  string `gorm:"type:varchar(32)"`
	FullInfoCid   string `gorm:"type:varchar(64)"`
	Verified      bool
	VerifiedAt    uint64
	VerifiedBy    string `gorm:"type:varchar(42)"`
	Reputation    uint64
	JobsAssigned  uint64
	JobsCompleted uint64
	TotalEarnings uint64
	LastSeen      uint64
	CreatedAt     uint64 `gorm:"autoCreateTime:false"`
	UpdatedAt     uint64 `gorm:"autoUpdateTime:false"`
}

// Job is a render job created on chain. AssignedWorker holds the worker
// address and is empty exactly while the job is OPEN.
type Job struct {
	BaseEntity
	ChainJobID     uint64 `gorm:"uniqueIndex"`
	Creator        string `gorm:"type:varchar(42);index"`
	Reward         uint64
	Deadline       uint64
	AssetCidPart1  string `gorm:"type:varchar(32)"`
	AssetCidPart2  string `gorm:"type:varchar(32)"`
	FullAssetCid   string `gorm:"type:varchar(64)"`
	MinReputation  uint64
	Status         JobStatus `gorm:"type:varchar(10)"`
	AssignedWorker string    `gorm:"type:varchar(42);index"`
	AssignedAt     uint64
	Completed      bool
	CompletedAt    uint64
	QualityScore   uint64
	CreatedAt      uint64 `gorm:"autoCreateTime:false"`
	UpdatedAt      uint64 `gorm:"autoUpdateTime:false"`
}

// Expired reports whether the job's deadline has passed without completion.
// Deadline expiry is a derived condition, never a stored status.
func (j *Job) Expired(now uint64) bool {
	return !j.Completed && j.Deadline > 0 && now > j.Deadline
}

// JobEvent is the append-only history of a job. The (transaction hash, log
// index) pair is unique even under chain reorganization replay.
type JobEvent struct {
	BaseEntity
	ChainJobID      uint64       `gorm:"index"`
	EventType       JobEventType `gorm:"type:varchar(10)"`
	Actor           string       `gorm:"type:varchar(42)"`
	TransactionHash string       `gorm:"type:varchar(66);uniqueIndex:idx_job_events_tx_log"`
	LogIndex        uint64       `gorm:"uniqueIndex:idx_job_events_tx_log"`
	BlockNumber     uint64       `gorm:"index"`
	Timestamp       uint64
	Data            string `gorm:"type:varchar(1000)"`
}

// ReputationHistory is the append-only log of reputation changes.
type ReputationHistory struct {
	BaseEntity
	WorkerAddress   string `gorm:"type:varchar(42);index"`
	OldReputation   uint64
	NewReputation   uint64
	ChangeAmount    int64
	Reason          string `gorm:"type:varchar(200)"`
	TransactionHash string `gorm:"type:varchar(66);uniqueIndex:idx_reputation_history_tx_log"`
	LogIndex        uint64 `gorm:"uniqueIndex:idx_reputation_history_tx_log"`
	BlockNumber     uint64 `gorm:"index"`
	Timestamp       uint64
}

// DailyStats aggregates per UTC calendar day. Day is the day-aligned epoch
// timestamp: timestamp - (timestamp mod 86400).
type DailyStats struct {
	BaseEntity
	Day               uint64 `gorm:"uniqueIndex"`
	JobsCreated       uint64
	JobsCompleted     uint64
	NewWorkers        uint64
	WorkersVerified   uint64
	TotalTransactions uint64
	TotalReward       uint64
	// Incremental mean of quality scores of jobs completed this day.
	AverageQuality float64
	// Incremental mean of post-update reputations reported this day.
	// Defaults to DefaultReputation while ReputationSamples is zero.
	AverageReputation float64
	ReputationSamples uint64
}

// GlobalStats is the single running snapshot, keyed "global". It is only
// mutated inside the per-event transaction, so the row itself serializes
// concurrent access.
type GlobalStats struct {
	BaseEntity
	Key                  string `gorm:"type:varchar(16);uniqueIndex"`
	TotalWorkers         uint64
	TotalVerifiedWorkers uint64
	TotalJobs            uint64
	TotalCompletedJobs   uint64
	TotalRewards         uint64
	OpenJobs             uint64
	AssignedJobs         uint64
	AverageReputation    float64
	AverageQualityScore  float64
	AverageJobReward     float64
	LastUpdated          uint64
}

const GlobalStatsKey = "global"

// ContractEvent is the raw journal of every decoded chain event. It doubles
// as the idempotency ledger: an incoming event whose (transaction hash, log
// index) already appears here has been fully applied and is skipped.
type ContractEvent struct {
	BaseEntity
	TransactionHash string `gorm:"type:varchar(66);uniqueIndex:idx_contract_events_tx_log"`
	LogIndex        uint64 `gorm:"uniqueIndex:idx_contract_events_tx_log"`
	BlockNumber     uint64 `gorm:"index"`
	Timestamp       uint64 `gorm:"index"`
	Address         string `gorm:"type:varchar(42)"`
	Name            string `gorm:"type:varchar(32)"`
	Data            string `gorm:"type:varchar(2000)"`
}
