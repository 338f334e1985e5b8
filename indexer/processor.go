package indexer

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"veriframe-indexer/cids"
	"veriframe-indexer/database"
	"veriframe-indexer/logger"
	"veriframe-indexer/metrics"
)

// Error taxonomy of the event processor. None of these abort the stream:
// the offending event is rolled back and dropped, processing continues.
var (
	ErrMissingDependency = errors.New("missing dependency")
	ErrDuplicateEntity   = errors.New("duplicate entity")
	ErrStatusRegression  = errors.New("status regression")

	errAlreadyApplied = errors.New("already applied")
)

// Processor applies decoded chain events to the entity store. All effects
// of one event (entity mutation, history append, journal row, stats deltas)
// commit in a single transaction; any failure leaves no trace of the event.
type Processor struct {
	db *gorm.DB
}

func NewProcessor(db *gorm.DB) *Processor {
	return &Processor{db: db}
}

// ProcessEvents applies events in the given order. The slice must already
// be sorted by (block number, log index); later events may causally depend
// on entities created by earlier ones.
func (p *Processor) ProcessEvents(ctx context.Context, events []Event) error {
	for _, ev := range events {
		err := p.ApplyEvent(ctx, ev)
		meta := ev.Meta()
		switch {
		case err == nil:
			metrics.EventsProcessed.WithLabelValues(ev.Name()).Inc()
		case errors.Is(err, errAlreadyApplied):
			logger.Debug("Skipping replayed %s event %s-%d", ev.Name(), meta.TxHash, meta.LogIndex)
		case errors.Is(err, ErrMissingDependency),
			errors.Is(err, ErrDuplicateEntity),
			errors.Is(err, ErrStatusRegression):
			logger.Warn("Dropping %s event %s-%d at block %d: %s",
				ev.Name(), meta.TxHash, meta.LogIndex, meta.BlockNumber, err)
			metrics.EventsDropped.WithLabelValues(ev.Name(), dropReason(err)).Inc()
		default:
			return errors.Wrapf(err, "ProcessEvents: %s", ev.Name())
		}
	}

	return nil
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, ErrMissingDependency):
		return "missing_dependency"
	case errors.Is(err, ErrDuplicateEntity):
		return "duplicate_entity"
	case errors.Is(err, ErrStatusRegression):
		return "status_regression"
	default:
		return "unknown"
	}
}

// ApplyEvent applies exactly one event atomically. An event whose
// (transaction hash, log index) already appears in the journal is a no-op,
// which makes reprocessing a block range after a reorganization safe.
func (p *Processor) ApplyEvent(ctx context.Context, ev Event) error {
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		meta := ev.Meta()

		applied, err := journalContains(tx, meta)
		if err != nil {
			return err
		}
		if applied {
			return errAlreadyApplied
		}

		daily, err := getOrCreateDailyStats(tx, meta.Timestamp)
		if err != nil {
			return err
		}
		global, err := getOrCreateGlobalStats(tx)
		if err != nil {
			return err
		}

		switch e := ev.(type) {
		case *WorkerRegistered:
			err = applyWorkerRegistered(tx, e, daily, global)
		case *WorkerVerified:
			err = applyWorkerVerified(tx, e, daily, global)
		case *JobCreated:
			err = applyJobCreated(tx, e, daily, global)
		case *JobAssigned:
			err = applyJobAssigned(tx, e, global)
		case *JobCompleted:
			err = applyJobCompleted(tx, e, daily, global)
		case *ReputationUpdated:
			err = applyReputationUpdated(tx, e, daily, global)
		default:
			err = errors.Errorf("unhandled event type %s", ev.Name())
		}
		if err != nil {
			return err
		}

		if err := journalAppend(tx, ev); err != nil {
			return err
		}

		daily.TotalTransactions++
		if err := tx.Save(daily).Error; err != nil {
			return err
		}

		global.LastUpdated = meta.Timestamp
		return tx.Save(global).Error
	})
}

func applyWorkerRegistered(tx *gorm.DB, e *WorkerRegistered, daily *database.DailyStats, global *database.GlobalStats) error {
	_, err := workerByAddress(tx, e.Worker)
	if err == nil {
		return errors.Wrapf(ErrDuplicateEntity, "worker %s", e.Worker)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	worker := &database.Worker{
		Address:      e.Worker,
		Registered:   true,
		RegisteredAt: e.Timestamp,
		InfoCidPart1: e.InfoCidPart1,
		InfoCidPart2: e.InfoCidPart2,
		FullInfoCid:  cids.Assemble(e.InfoCidPart1, e.InfoCidPart2),
		Reputation:   database.DefaultReputation,
		LastSeen:     e.Timestamp,
		CreatedAt:    e.Timestamp,
		UpdatedAt:    e.Timestamp,
	}
	if !cids.Valid(worker.FullInfoCid) {
		logger.Debug("Worker %s info CID does not parse: %q", e.Worker, worker.FullInfoCid)
	}
	if err := tx.Create(worker).Error; err != nil {
		return err
	}

	daily.NewWorkers++
	global.TotalWorkers++
	global.AverageReputation = meanAdd(global.AverageReputation, global.TotalWorkers, database.DefaultReputation)

	return nil
}

func applyWorkerVerified(tx *gorm.DB, e *WorkerVerified, daily *database.DailyStats, global *database.GlobalStats) error {
	worker, err := workerByAddress(tx, e.Worker)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errors.Wrapf(ErrMissingDependency, "worker %s", e.Worker)
	}
	if err != nil {
		return err
	}

	alreadyVerified := worker.Verified
	worker.Verified = true
	worker.VerifiedAt = e.Timestamp
	worker.VerifiedBy = e.Verifier
	worker.UpdatedAt = e.Timestamp
	if err := tx.Save(worker).Error; err != nil {
		return err
	}

	// A re-verification only refreshes the verifier, it is not a new
	// verified worker.
	if !alreadyVerified {
		daily.WorkersVerified++
		global.TotalVerifiedWorkers++
	}

	return nil
}

func applyJobCreated(tx *gorm.DB, e *JobCreated, daily *database.DailyStats, global *database.GlobalStats) error {
	_, err := jobByChainID(tx, e.JobID)
	if err == nil {
		return errors.Wrapf(ErrDuplicateEntity, "job %d", e.JobID)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	// The creation event payload does not carry the asset CID fragments;
	// they are served from contract state at query time and stay empty here.
	job := &database.Job{
		ChainJobID:    e.JobID,
		Creator:       e.Creator,
		Reward:        e.Reward,
		Deadline:      e.Deadline,
		MinReputation: database.DefaultMinReputation,
		Status:        database.JobStatusOpen,
		CreatedAt:     e.Timestamp,
		UpdatedAt:     e.Timestamp,
	}
	if err := tx.Create(job).Error; err != nil {
		return err
	}

	err = appendJobEvent(tx, e.JobID, database.JobEventCreated, e.Creator, &e.EventMeta,
		map[string]interface{}{"reward": e.Reward, "deadline": e.Deadline})
	if err != nil {
		return err
	}

	daily.JobsCreated++
	daily.TotalReward += e.Reward
	global.TotalJobs++
	global.OpenJobs++
	global.TotalRewards += e.Reward
	global.AverageJobReward = float64(global.TotalRewards) / float64(global.TotalJobs)

	return nil
}

func applyJobAssigned(tx *gorm.DB, e *JobAssigned, global *database.GlobalStats) error {
	job, err := jobByChainID(tx, e.JobID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errors.Wrapf(ErrMissingDependency, "job %d", e.JobID)
	}
	if err != nil {
		return err
	}

	worker, err := workerByAddress(tx, e.Worker)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errors.Wrapf(ErrMissingDependency, "worker %s", e.Worker)
	}
	if err != nil {
		return err
	}

	if !job.Status.CanAdvanceTo(database.JobStatusAssigned) {
		return errors.Wrapf(ErrStatusRegression, "job %d: %s -> %s", e.JobID, job.Status, database.JobStatusAssigned)
	}

	job.Status = database.JobStatusAssigned
	job.AssignedWorker = e.Worker
	job.AssignedAt = e.Timestamp
	job.UpdatedAt = e.Timestamp
	if err := tx.Save(job).Error; err != nil {
		return err
	}

	worker.JobsAssigned++
	worker.LastSeen = e.Timestamp
	worker.UpdatedAt = e.Timestamp
	if err := tx.Save(worker).Error; err != nil {
		return err
	}

	err = appendJobEvent(tx, e.JobID, database.JobEventAssigned, e.Worker, &e.EventMeta,
		map[string]interface{}{"worker": e.Worker})
	if err != nil {
		return err
	}

	global.OpenJobs = clampSub("open_jobs", global.OpenJobs)
	global.AssignedJobs++

	return nil
}

func applyJobCompleted(tx *gorm.DB, e *JobCompleted, daily *database.DailyStats, global *database.GlobalStats) error {
	job, err := jobByChainID(tx, e.JobID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errors.Wrapf(ErrMissingDependency, "job %d", e.JobID)
	}
	if err != nil {
		return err
	}

	if !job.Status.CanAdvanceTo(database.JobStatusCompleted) {
		return errors.Wrapf(ErrStatusRegression, "job %d: %s -> %s", e.JobID, job.Status, database.JobStatusCompleted)
	}
	prevStatus := job.Status

	job.Completed = true
	job.CompletedAt = e.Timestamp
	job.QualityScore = e.QualityScore
	job.Status = database.JobStatusCompleted
	job.UpdatedAt = e.Timestamp
	if err := tx.Save(job).Error; err != nil {
		return err
	}

	if job.AssignedWorker != "" {
		worker, err := workerByAddress(tx, job.AssignedWorker)
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			logger.Warn("Assigned worker %s of job %d not found on completion", job.AssignedWorker, e.JobID)
		case err != nil:
			return err
		default:
			worker.JobsCompleted++
			worker.TotalEarnings += job.Reward
			worker.LastSeen = e.Timestamp
			worker.UpdatedAt = e.Timestamp
			if err := tx.Save(worker).Error; err != nil {
				return err
			}
		}
	}

	err = appendJobEvent(tx, e.JobID, database.JobEventCompleted, job.AssignedWorker, &e.EventMeta,
		map[string]interface{}{"quality_score": e.QualityScore})
	if err != nil {
		return err
	}

	daily.JobsCompleted++
	daily.AverageQuality = meanAdd(daily.AverageQuality, daily.JobsCompleted, float64(e.QualityScore))

	global.TotalCompletedJobs++
	// The job leaves whichever counter currently holds it, never both.
	switch prevStatus {
	case database.JobStatusOpen:
		global.OpenJobs = clampSub("open_jobs", global.OpenJobs)
	case database.JobStatusAssigned:
		global.AssignedJobs = clampSub("assigned_jobs", global.AssignedJobs)
	}
	global.AverageQualityScore = meanAdd(global.AverageQualityScore, global.TotalCompletedJobs, float64(e.QualityScore))

	return nil
}

func applyReputationUpdated(tx *gorm.DB, e *ReputationUpdated, daily *database.DailyStats, global *database.GlobalStats) error {
	worker, err := workerByAddress(tx, e.Worker)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errors.Wrapf(ErrMissingDependency, "worker %s", e.Worker)
	}
	if err != nil {
		return err
	}

	history := &database.ReputationHistory{
		WorkerAddress:   e.Worker,
		OldReputation:   e.OldReputation,
		NewReputation:   e.NewReputation,
		ChangeAmount:    int64(e.NewReputation) - int64(e.OldReputation),
		Reason:          e.Reason,
		TransactionHash: e.TxHash,
		LogIndex:        e.LogIndex,
		BlockNumber:     e.BlockNumber,
		Timestamp:       e.Timestamp,
	}
	if err := tx.Create(history).Error; err != nil {
		return err
	}

	worker.Reputation = e.NewReputation
	worker.UpdatedAt = e.Timestamp
	if err := tx.Save(worker).Error; err != nil {
		return err
	}

	if global.TotalWorkers > 0 {
		global.AverageReputation += (float64(e.NewReputation) - float64(e.OldReputation)) / float64(global.TotalWorkers)
	}
	daily.ReputationSamples++
	daily.AverageReputation = meanAdd(daily.AverageReputation, daily.ReputationSamples, float64(e.NewReputation))

	return nil
}

func workerByAddress(tx *gorm.DB, address string) (*database.Worker, error) {
	var worker database.Worker
	err := tx.Where("address = ?", address).First(&worker).Error
	return &worker, err
}

func jobByChainID(tx *gorm.DB, chainJobID uint64) (*database.Job, error) {
	var job database.Job
	err := tx.Where("chain_job_id = ?", chainJobID).First(&job).Error
	return &job, err
}

func journalContains(tx *gorm.DB, meta *EventMeta) (bool, error) {
	var count int64
	err := tx.Model(&database.ContractEvent{}).
		Where("transaction_hash = ? AND log_index = ?", meta.TxHash, meta.LogIndex).
		Count(&count).Error
	return count > 0, err
}

func journalAppend(tx *gorm.DB, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "journalAppend: Marshal")
	}

	meta := ev.Meta()
	return tx.Create(&database.ContractEvent{
		TransactionHash: meta.TxHash,
		LogIndex:        meta.LogIndex,
		BlockNumber:     meta.BlockNumber,
		Timestamp:       meta.Timestamp,
		Address:         meta.Address,
		Name:            ev.Name(),
		Data:            string(data),
	}).Error
}

func appendJobEvent(tx *gorm.DB, chainJobID uint64, eventType database.JobEventType,
	actor string, meta *EventMeta, payload map[string]interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "appendJobEvent: Marshal")
	}

	return tx.Create(&database.JobEvent{
		ChainJobID:      chainJobID,
		EventType:       eventType,
		Actor:           actor,
		TransactionHash: meta.TxHash,
		LogIndex:        meta.LogIndex,
		BlockNumber:     meta.BlockNumber,
		Timestamp:       meta.Timestamp,
		Data:            string(data),
	}).Error
}
