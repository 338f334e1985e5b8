package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

const (
	FirstIndexedBlockState string = "first_indexed_block"
	LastIndexedBlockState  string = "last_indexed_block"
	LastChainBlockState    string = "last_chain_block"
)

var (
	StateNames = []string{
		FirstIndexedBlockState,
		LastIndexedBlockState,
		LastChainBlockState,
	}
	// States captures the progress of the indexer, giving guarantees about
	// which blocks were fully applied. Shared by the indexer and the raw
	// journal history drop.
	States = NewStates()
)

type State struct {
	BaseEntity
	Name           string `gorm:"type:varchar(50);index"`
	Index          uint64
	BlockTimestamp uint64
	Updated        time.Time
}

func (s *State) UpdateIndex(newIndex, blockTimestamp uint64) {
	s.Index = newIndex
	s.BlockTimestamp = blockTimestamp
	s.Updated = time.Now()
}

type DBStates struct {
	States map[string]*State
	sync.Mutex
}

func NewStates() *DBStates {
	states := &DBStates{}
	states.States = make(map[string]*State)

	return states
}

func initStates(ctx context.Context, db *gorm.DB) error {
	for _, name := range StateNames {
		var state State
		err := db.WithContext(ctx).Where(&State{Name: name}).First(&state).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		s := &State{Name: name}
		s.UpdateIndex(0, 0)
		if err := db.WithContext(ctx).Create(s).Error; err != nil {
			return err
		}
	}

	return nil
}

func GetDBStates(ctx context.Context, db *gorm.DB) (*DBStates, error) {
	States.Lock()
	defer States.Unlock()

	for _, name := range StateNames {
		var state State
		err := db.WithContext(ctx).Where(&State{Name: name}).First(&state).Error
		if err != nil {
			return nil, fmt.Errorf("GetDBStates: %w", err)
		}
		States.States[name] = &state
	}

	return States, nil
}

func (states *DBStates) Index(name string) uint64 {
	states.Lock()
	defer states.Unlock()

	return states.States[name].Index
}

func (states *DBStates) Update(db *gorm.DB, name string, newIndex, blockTimestamp uint64) error {
	states.Lock()
	defer states.Unlock()

	states.States[name].UpdateIndex(newIndex, blockTimestamp)
	err := db.Save(states.States[name]).Error
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}

	return nil
}

// UpdateAtStart reconciles the configured start block with what is already
// indexed. If the requested start would leave a gap after the saved range,
// the first-block guarantee moves forward to the requested start.
func (states *DBStates) UpdateAtStart(db *gorm.DB, startIndex, startTimestamp,
	lastChainIndex, lastChainTimestamp, stopIndex uint64) (uint64, uint64, error) {
	nextIndex := states.Index(LastIndexedBlockState)

	if nextIndex != 0 && startIndex <= nextIndex+1 {
		startIndex = nextIndex + 1
	} else {
		err := states.Update(db, FirstIndexedBlockState, startIndex, startTimestamp)
		if err != nil {
			return 0, 0, fmt.Errorf("UpdateAtStart: %w", err)
		}
	}

	err := states.Update(db, LastChainBlockState, lastChainIndex, lastChainTimestamp)
	if err != nil {
		return 0, 0, fmt.Errorf("UpdateAtStart: %w", err)
	}

	lastIndex := min(stopIndex, lastChainIndex)

	return startIndex, lastIndex, nil
}
