package indexer

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veriframe-indexer/indexer/abi"
)

func packEventData(t *testing.T, name string, args ...interface{}) []byte {
	t.Helper()

	event, err := abi.EventByName(name)
	require.NoError(t, err)

	data, err := event.Inputs.NonIndexed().Pack(args...)
	require.NoError(t, err)

	return data
}

func chainLog(t *testing.T, name string, data []byte, indexed ...common.Hash) *types.Log {
	t.Helper()

	event, err := abi.EventByName(name)
	require.NoError(t, err)

	return &types.Log{
		Address:     common.HexToAddress("0x5fbdb2315678afecb367f032d93f642f64180aa3"),
		Topics:      append([]common.Hash{event.ID}, indexed...),
		Data:        data,
		BlockNumber: 42,
		TxHash:      common.HexToHash("0xabcdef"),
		Index:       3,
	}
}

func TestDecodeWorkerRegistered(t *testing.T) {
	data := packEventData(t, abi.EventWorkerRegistered,
		"bafybeigdyrzt5sfp7udm7hu76uh7y2", "6nf3efuylqabf3oclgtqy55fbzdi")
	log := chainLog(t, abi.EventWorkerRegistered, data, common.BytesToHash(common.HexToAddress(workerAddr).Bytes()))

	ev, err := DecodeLog(log, baseTime)
	require.NoError(t, err)

	reg, ok := ev.(*WorkerRegistered)
	require.True(t, ok)
	assert.Equal(t, workerAddr, reg.Worker)
	assert.Equal(t, "bafybeigdyrzt5sfp7udm7hu76uh7y2", reg.InfoCidPart1)
	assert.Equal(t, "6nf3efuylqabf3oclgtqy55fbzdi", reg.InfoCidPart2)
	assert.Equal(t, uint64(42), reg.BlockNumber)
	assert.Equal(t, uint64(3), reg.LogIndex)
	assert.Equal(t, baseTime, reg.Timestamp)
}

func TestDecodeJobCreated(t *testing.T) {
	data := packEventData(t, abi.EventJobCreated, big.NewInt(1500), uint64(baseTime+7200))
	log := chainLog(t, abi.EventJobCreated, data,
		common.BigToHash(big.NewInt(7)), common.BytesToHash(common.HexToAddress(creatorAddr).Bytes()))

	ev, err := DecodeLog(log, baseTime)
	require.NoError(t, err)

	created, ok := ev.(*JobCreated)
	require.True(t, ok)
	assert.Equal(t, uint64(7), created.JobID)
	assert.Equal(t, creatorAddr, created.Creator)
	assert.Equal(t, uint64(1500), created.Reward)
	assert.Equal(t, baseTime+7200, created.Deadline)
}

func TestDecodeJobCompleted(t *testing.T) {
	data := packEventData(t, abi.EventJobCompleted, uint8(95))
	log := chainLog(t, abi.EventJobCompleted, data, common.BigToHash(big.NewInt(7)))

	ev, err := DecodeLog(log, baseTime)
	require.NoError(t, err)

	completed, ok := ev.(*JobCompleted)
	require.True(t, ok)
	assert.Equal(t, uint64(7), completed.JobID)
	assert.Equal(t, uint64(95), completed.QualityScore)
}

func TestDecodeReputationUpdated(t *testing.T) {
	data := packEventData(t, abi.EventReputationUpdated,
		uint64(500), uint64(650), "job completed with high quality")
	log := chainLog(t, abi.EventReputationUpdated, data, common.BytesToHash(common.HexToAddress(workerAddr).Bytes()))

	ev, err := DecodeLog(log, baseTime)
	require.NoError(t, err)

	update, ok := ev.(*ReputationUpdated)
	require.True(t, ok)
	assert.Equal(t, workerAddr, update.Worker)
	assert.Equal(t, uint64(500), update.OldReputation)
	assert.Equal(t, uint64(650), update.NewReputation)
	assert.Equal(t, "job completed with high quality", update.Reason)
}

func TestDecodeUnknownTopic(t *testing.T) {
	log := &types.Log{Topics: []common.Hash{common.HexToHash("0x01")}}

	_, err := DecodeLog(log, baseTime)
	assert.ErrorIs(t, err, errUnknownEvent)

	_, err = DecodeLog(&types.Log{}, baseTime)
	assert.ErrorIs(t, err, errUnknownEvent)
}

func TestSortEvents(t *testing.T) {
	events := []Event{
		&JobAssigned{EventMeta: EventMeta{BlockNumber: 12, LogIndex: 0}, JobID: 1},
		&JobCreated{EventMeta: EventMeta{BlockNumber: 11, LogIndex: 2}, JobID: 1},
		&WorkerRegistered{EventMeta: EventMeta{BlockNumber: 11, LogIndex: 0}},
		&JobCompleted{EventMeta: EventMeta{BlockNumber: 12, LogIndex: 1}, JobID: 1},
	}

	sortEvents(events)

	assert.Equal(t, "WorkerRegistered", events[0].Name())
	assert.Equal(t, "JobCreated", events[1].Name())
	assert.Equal(t, "JobAssigned", events[2].Name())
	assert.Equal(t, "JobCompleted", events[3].Name())
}
