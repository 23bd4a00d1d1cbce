// Package memory implements the ability to read and write blocks to memory
// using a slice.
package memory

import (
	"errors"
	"sync"

	"github.com/greenhydro/ledger/foundation/ledger/block"
	"github.com/greenhydro/ledger/foundation/ledger/storage"
)

// Memory represents the implementation for reading and storing blocks in
// memory using a slice. This implements the storage.Storage interface.
type Memory struct {
	mu     sync.RWMutex
	blocks []block.BlockData
}

// New constructs a Memory value for use.
func New() (*Memory, error) {
	return &Memory{}, nil
}

// Close in this implementation has nothing to do since everything
// is in memory.
func (m *Memory) Close() error {
	return nil
}

// Write takes the specified block data and stores it in memory. The block
// must be the next block in the chain.
func (m *Memory) Write(blockData block.BlockData) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if int64(len(m.blocks)) != blockData.Number {
		return storage.ErrConflict
	}

	m.blocks = append(m.blocks, blockData)

	return nil
}

// GetBlock locates and returns the contents of the specified block by
// number.
func (m *Memory) GetBlock(num uint64) (block.BlockData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	l := uint64(len(m.blocks))
	if l == 0 || num >= l {
		return block.BlockData{}, storage.ErrNotExist
	}

	return m.blocks[num], nil
}

// Head returns the block with the maximum number.
func (m *Memory) Head() (block.BlockData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	l := len(m.blocks)
	if l == 0 {
		return block.BlockData{}, storage.ErrNotExist
	}

	return m.blocks[l-1], nil
}

// Count returns the number of blocks in the store.
func (m *Memory) Count() (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return uint64(len(m.blocks)), nil
}

// ForEach returns an iterator to walk through all the blocks starting
// with the genesis block.
func (m *Memory) ForEach() storage.Iterator {
	return &memoryIterator{storage: m}
}

// Reset will clear out the chain in memory.
func (m *Memory) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.blocks = nil
	return nil
}

// =============================================================================

// memoryIterator represents the iteration implementation for walking
// through and reading blocks in memory. This implements the storage
// Iterator interface.
type memoryIterator struct {
	storage *Memory // Access to the Memory storage API.
	current uint64  // Current block number being iterated over.
	eoc     bool    // Represents the iterator is at the end of the chain.
}

// Next retrieves the next block from memory.
func (mi *memoryIterator) Next() (block.BlockData, error) {
	if mi.eoc {
		return block.BlockData{}, storage.ErrNotExist
	}

	blockData, err := mi.storage.GetBlock(mi.current)
	if errors.Is(err, storage.ErrNotExist) {
		mi.eoc = true
	}

	mi.current++

	return blockData, err
}

// Done returns the end of chain value.
func (mi *memoryIterator) Done() bool {
	return mi.eoc
}
