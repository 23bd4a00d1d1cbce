// Package storage defines the behavior required for persisting the
// ledger's blocks as a strictly ordered, append only collection.
package storage

import (
	"errors"

	"github.com/greenhydro/ledger/foundation/ledger/block"
)

// ErrConflict is returned from Write when the block's number is not the
// next number in the chain. This is the sole concurrency guard between
// competing writers.
var ErrConflict = errors.New("block number conflicts with the chain head")

// ErrNotExist is returned when the requested block is not in the store.
var ErrNotExist = errors.New("block does not exist")

// Storage interface represents the behavior required to be implemented by
// any package providing support for storing and reading the ledger.
type Storage interface {
	Write(blockData block.BlockData) error
	GetBlock(num uint64) (block.BlockData, error)
	Head() (block.BlockData, error)
	Count() (uint64, error)
	ForEach() Iterator
	Close() error
	Reset() error
}

// Iterator interface represents the behavior required to be implemented by
// any package providing support to iterate over the blocks.
type Iterator interface {
	Next() (block.BlockData, error)
	Done() bool
}
