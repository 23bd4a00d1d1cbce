// Package state is the core API for the ledger and composes mining,
// difficulty control, persistence and validation into one append
// operation plus the read APIs the platform consumes.
package state

import (
	"errors"

	"github.com/greenhydro/ledger/foundation/ledger/difficulty"
	"github.com/greenhydro/ledger/foundation/ledger/mine"
	"github.com/greenhydro/ledger/foundation/ledger/storage"
)

// ErrAppendContention is returned when concurrent writers keep winning the
// race for the next block number and the retry budget runs out. The
// submitted transactions were not persisted.
var ErrAppendContention = errors.New("append contention: retries exhausted")

// =============================================================================

// EventHandler defines a function that is called when events occur in the
// processing of mining and persisting blocks.
type EventHandler func(v string, args ...any)

// BlockEvent is published to subscribers on every successful append.
type BlockEvent struct {
	Number     uint64  `json:"index"`
	Hash       string  `json:"hash"`
	TransCount int     `json:"transaction_count"`
	Difficulty int     `json:"difficulty"`
	MinerLabel string  `json:"miner_label,omitempty"`
	TimeStamp  string  `json:"timestamp"`
	Duration   float64 `json:"mining_time"`
}

// Publisher interface represents the behavior required to be implemented
// by any package providing support for delivering append events to
// interested collaborators. The state never sees a concrete transport.
type Publisher interface {
	PublishBlockAppended(event BlockEvent)
}

// Worker interface represents the behavior required to be implemented by
// any package providing background processing for the ledger.
type Worker interface {
	Shutdown()
}

// =============================================================================

// Config represents the configuration required to build a State value.
type Config struct {
	Storage          storage.Storage
	Difficulty       difficulty.Config
	MinePolicy       mine.Policy
	MaxAppendRetries int
	Publisher        Publisher
	EvHandler        EventHandler
}

// State manages the ledger.
type State struct {
	storage    storage.Storage
	difficulty difficulty.Config
	minePolicy mine.Policy
	retries    int
	publisher  Publisher
	evHandler  EventHandler

	Worker Worker
}

// New constructs a new State for ledger management.
func New(cfg Config) (*State, error) {
	if cfg.Storage == nil {
		return nil, errors.New("storage is required")
	}

	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	retries := cfg.MaxAppendRetries
	if retries == 0 {
		retries = 3
	}

	s := State{
		storage:    cfg.Storage,
		difficulty: cfg.Difficulty.WithDefaults(),
		minePolicy: cfg.MinePolicy,
		retries:    retries,
		publisher:  cfg.Publisher,
		evHandler:  ev,
	}

	return &s, nil
}

// Shutdown cleanly brings the ledger to a stop.
func (s *State) Shutdown() error {
	s.evHandler("state: shutdown: started")
	defer s.evHandler("state: shutdown: completed")

	// Make sure the database gets closed last.
	defer s.storage.Close()

	// Stop any background processing.
	if s.Worker != nil {
		s.Worker.Shutdown()
	}

	return nil
}

// publish delivers the append event when a publisher is configured.
func (s *State) publish(event BlockEvent) {
	if s.publisher != nil {
		s.publisher.PublishBlockAppended(event)
	}
}
