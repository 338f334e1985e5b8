package indexer

import (
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"

	"veriframe-indexer/indexer/abi"
)

// EventMeta carries the chain coordinates shared by all event kinds. The
// (TxHash, LogIndex) pair identifies one delivery uniquely, also under
// chain reorganization replay.
type EventMeta struct {
	BlockNumber uint64
	Timestamp   uint64
	TxHash      string
	LogIndex    uint64
	Address     string
}

func (m *EventMeta) Meta() *EventMeta { return m }

// Event is one decoded JobRegistry event.
type Event interface {
	Meta() *EventMeta
	Name() string
}

type WorkerRegistered struct {
	EventMeta
	Worker       string
	InfoCidPart1 string
	InfoCidPart2 string
}

func (e *WorkerRegistered) Name() string { return abi.EventWorkerRegistered }

type WorkerVerified struct {
	EventMeta
	Worker   string
	Verifier string
}

func (e *WorkerVerified) Name() string { return abi.EventWorkerVerified }

type JobCreated struct {
	EventMeta
	JobID    uint64
	Creator  string
	Reward   uint64
	Deadline uint64
}

func (e *JobCreated) Name() string { return abi.EventJobCreated }

type JobAssigned struct {
	EventMeta
	JobID  uint64
	Worker string
}

func (e *JobAssigned) Name() string { return abi.EventJobAssigned }

type JobCompleted struct {
	EventMeta
	JobID        uint64
	QualityScore uint64
}

func (e *JobCompleted) Name() string { return abi.EventJobCompleted }

type ReputationUpdated struct {
	EventMeta
	Worker        string
	OldReputation uint64
	NewReputation uint64
	Reason        string
}

func (e *ReputationUpdated) Name() string { return abi.EventReputationUpdated }

var errUnknownEvent = errors.New("unknown event topic")

// DecodeLog turns a raw chain log into a typed event. The block timestamp
// is supplied by the caller since logs do not carry one.
func DecodeLog(log *types.Log, timestamp uint64) (Event, error) {
	if len(log.Topics) == 0 {
		return nil, errUnknownEvent
	}
	name, ok := abi.TopicToEvent[log.Topics[0]]
	if !ok {
		return nil, errUnknownEvent
	}

	meta := EventMeta{
		BlockNumber: log.BlockNumber,
		Timestamp:   timestamp,
		TxHash:      strings.ToLower(log.TxHash.Hex()),
		LogIndex:    uint64(log.Index),
		Address:     hexAddress(log.Address),
	}

	switch name {
	case abi.EventWorkerRegistered:
		vals, err := abi.UnpackData(name, log.Data)
		if err != nil {
			return nil, errors.Wrap(err, "DecodeLog: WorkerRegistered")
		}
		return &WorkerRegistered{
			EventMeta:    meta,
			Worker:       topicAddress(log, 1),
			InfoCidPart1: vals[0].(string),
			InfoCidPart2: vals[1].(string),
		}, nil

	case abi.EventWorkerVerified:
		return &WorkerVerified{
			EventMeta: meta,
			Worker:    topicAddress(log, 1),
			Verifier:  topicAddress(log, 2),
		}, nil

	case abi.EventJobCreated:
		vals, err := abi.UnpackData(name, log.Data)
		if err != nil {
			return nil, errors.Wrap(err, "DecodeLog: JobCreated")
		}
		return &JobCreated{
			EventMeta: meta,
			JobID:     topicUint64(log, 1),
			Creator:   topicAddress(log, 2),
			Reward:    vals[0].(*big.Int).Uint64(),
			Deadline:  vals[1].(uint64),
		}, nil

	case abi.EventJobAssigned:
		return &JobAssigned{
			EventMeta: meta,
			JobID:     topicUint64(log, 1),
			Worker:    topicAddress(log, 2),
		}, nil

	case abi.EventJobCompleted:
		vals, err := abi.UnpackData(name, log.Data)
		if err != nil {
			return nil, errors.Wrap(err, "DecodeLog: JobCompleted")
		}
		return &JobCompleted{
			EventMeta:    meta,
			JobID:        topicUint64(log, 1),
			QualityScore: uint64(vals[0].(uint8)),
		}, nil

	case abi.EventReputationUpdated:
		vals, err := abi.UnpackData(name, log.Data)
		if err != nil {
			return nil, errors.Wrap(err, "DecodeLog: ReputationUpdated")
		}
		return &ReputationUpdated{
			EventMeta:     meta,
			Worker:        topicAddress(log, 1),
			OldReputation: vals[0].(uint64),
			NewReputation: vals[1].(uint64),
			Reason:        vals[2].(string),
		}, nil
	}

	return nil, errUnknownEvent
}

// sortEvents orders events by arrival order: block number, then log index.
// Events touching the same entity are therefore applied in causal order.
func sortEvents(events []Event) {
	sort.Slice(events, func(i, j int) bool {
		mi, mj := events[i].Meta(), events[j].Meta()
		if mi.BlockNumber != mj.BlockNumber {
			return mi.BlockNumber < mj.BlockNumber
		}
		return mi.LogIndex < mj.LogIndex
	})
}

func hexAddress(a common.Address) string {
	return strings.ToLower(a.Hex())
}

func topicAddress(log *types.Log, i int) string {
	if len(log.Topics) <= i {
		return ""
	}
	return hexAddress(common.BytesToAddress(log.Topics[i].Bytes()))
}

func topicUint64(log *types.Log, i int) uint64 {
	if len(log.Topics) <= i {
		return 0
	}
	return new(big.Int).SetBytes(log.Topics[i].Bytes()).Uint64()
}
