// Package disk implements the ability to read and write blocks in their
// own separate files on disk.
package disk

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strconv"
	"sync"

	"github.com/greenhydro/ledger/foundation/ledger/block"
	"github.com/greenhydro/ledger/foundation/ledger/storage"
)

// Disk represents the implementation for reading and storing blocks in
// their own separate files on disk. This implements the storage.Storage
// interface.
type Disk struct {
	dbPath string

	mu    sync.RWMutex
	count uint64
}

// New constructs a Disk value for use, scanning any existing chain to find
// the current head.
func New(dbPath string) (*Disk, error) {
	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, err
	}

	d := Disk{dbPath: dbPath}

	// Walk the chain forward to find where it ends. Blocks are written
	// contiguously so the first missing file marks the head.
	for {
		if _, err := os.Stat(d.getPath(d.count)); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, err
			}
			break
		}
		d.count++
	}

	return &d, nil
}

// Close in this implementation has nothing to do since a new file is
// written to disk for each new block and then immediately closed.
func (d *Disk) Close() error {
	return nil
}

// Write takes the specified block data and stores it on disk in a file
// labeled with the block number. The block must be the next block in the
// chain.
func (d *Disk) Write(blockData block.BlockData) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if int64(d.count) != blockData.Number {
		return storage.ErrConflict
	}

	// Marshal the block for writing to disk in a more human readable format.
	data, err := json.MarshalIndent(blockData, "", "  ")
	if err != nil {
		return err
	}

	f, err := os.OpenFile(d.getPath(uint64(blockData.Number)), os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return err
	}

	d.count++

	return nil
}

// GetBlock searches the chain on disk to locate and return the contents
// of the specified block by number.
func (d *Disk) GetBlock(num uint64) (block.BlockData, error) {
	f, err := os.OpenFile(d.getPath(num), os.O_RDONLY, 0600)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return block.BlockData{}, storage.ErrNotExist
		}
		return block.BlockData{}, err
	}
	defer f.Close()

	var blockData block.BlockData
	if err := json.NewDecoder(f).Decode(&blockData); err != nil {
		return block.BlockData{}, err
	}

	return blockData, nil
}

// Head returns the block with the maximum number.
func (d *Disk) Head() (block.BlockData, error) {
	d.mu.RLock()
	count := d.count
	d.mu.RUnlock()

	if count == 0 {
		return block.BlockData{}, storage.ErrNotExist
	}

	return d.GetBlock(count - 1)
}

// Count returns the number of blocks in the store.
func (d *Disk) Count() (uint64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.count, nil
}

// ForEach returns an iterator to walk through all the blocks starting
// with the genesis block.
func (d *Disk) ForEach() storage.Iterator {
	return &diskIterator{disk: d}
}

// Reset will clear out the chain on disk.
func (d *Disk) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for num := uint64(0); num < d.count; num++ {
		if err := os.Remove(d.getPath(num)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	d.count = 0

	return nil
}

// getPath forms the path to the specified block.
func (d *Disk) getPath(blockNum uint64) string {
	name := strconv.FormatUint(blockNum, 10)
	return path.Join(d.dbPath, fmt.Sprintf("%s.json", name))
}

// =============================================================================

// diskIterator represents the iteration implementation for walking
// through and reading blocks on disk. This implements the storage
// Iterator interface.
type diskIterator struct {
	disk    *Disk  // Access to the Disk storage API.
	current uint64 // Current block number being iterated over.
	eoc     bool   // Represents the iterator is at the end of the chain.
}

// Next retrieves the next block from disk. Only a missing block marks the
// end of the chain; a block that is present but unreadable is an error the
// caller must see.
func (di *diskIterator) Next() (block.BlockData, error) {
	if di.eoc {
		return block.BlockData{}, storage.ErrNotExist
	}

	blockData, err := di.disk.GetBlock(di.current)
	if errors.Is(err, storage.ErrNotExist) {
		di.eoc = true
	}

	di.current++

	return blockData, err
}

// Done returns the end of chain value.
func (di *diskIterator) Done() bool {
	return di.eoc
}
