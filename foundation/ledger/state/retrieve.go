package state

import (
	"github.com/greenhydro/ledger/foundation/ledger/block"
)

// RetrieveHead returns the block with the maximum block number. A
// storage.ErrNotExist error means the chain is still empty.
func (s *State) RetrieveHead() (block.Block, error) {
	blockData, err := s.storage.Head()
	if err != nil {
		return block.Block{}, err
	}

	return block.ToBlock(blockData)
}

// RetrieveGenesis returns the genesis block.
func (s *State) RetrieveGenesis() (block.Block, error) {
	blockData, err := s.storage.GetBlock(0)
	if err != nil {
		return block.Block{}, err
	}

	return block.ToBlock(blockData)
}
