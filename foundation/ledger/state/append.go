package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/greenhydro/ledger/foundation/ledger/block"
	"github.com/greenhydro/ledger/foundation/ledger/difficulty"
	"github.com/greenhydro/ledger/foundation/ledger/mine"
	"github.com/greenhydro/ledger/foundation/ledger/storage"
	"github.com/greenhydro/ledger/foundation/ledger/tran"
	"github.com/greenhydro/ledger/foundation/ledger/validate"
)

// genesisTrans is the fixed payload of the genesis block.
var genesisTrans = []tran.Tx{
	{Type: tran.TypeGenesis, Message: "Genesis block for the Green Hydrogen Platform"},
}

// genesisMinerLabel attributes the genesis block to the platform itself.
const genesisMinerLabel = "system"

// AppendBlock mines and persists the next block in the chain carrying the
// specified transactions. When the store is empty the genesis block is
// created first. Mining runs without holding any lock; only the storage
// write is the serialization point, and a conflicting write restarts the
// whole sequence from re-reading the head.
func (s *State) AppendBlock(ctx context.Context, trans []tran.Tx, minerLabel string) (block.Block, error) {
	if minerLabel == "" {
		minerLabel = "miner-" + uuid.NewString()[:8]
	}

	for attempt := 0; attempt < s.retries; attempt++ {
		if attempt > 0 {
			s.evHandler("state: AppendBlock: CONFLICT: head moved, retrying: attempt[%d]", attempt)
		}

		head, err := s.storage.Head()
		if err != nil {
			if !errors.Is(err, storage.ErrNotExist) {
				return block.Block{}, fmt.Errorf("read head: %w", err)
			}

			head, err = s.ensureGenesis(ctx)
			if err != nil {
				return block.Block{}, err
			}
		}

		candidate := mine.Candidate{
			Number:     uint64(head.Number) + 1,
			PrevHash:   head.Hash,
			Trans:      trans,
			Difficulty: difficulty.Next(s.difficulty, s.recentBlocks()),
			MinerLabel: minerLabel,
		}

		b, ok, err := s.mineAndWrite(ctx, candidate)
		if err != nil {
			return block.Block{}, err
		}
		if !ok {
			continue
		}

		return b, nil
	}

	return block.Block{}, ErrAppendContention
}

// ensureGenesis creates the genesis block if the store is still empty. A
// concurrent writer beating us to it is fine, its genesis is used instead.
func (s *State) ensureGenesis(ctx context.Context) (block.BlockData, error) {
	s.evHandler("state: ensureGenesis: chain is empty, mining genesis block")

	candidate := mine.Candidate{
		Number:     0,
		PrevHash:   block.GenesisParentHash,
		Trans:      genesisTrans,
		Difficulty: 1,
		MinerLabel: genesisMinerLabel,
	}

	if _, _, err := s.mineAndWrite(ctx, candidate); err != nil {
		return block.BlockData{}, err
	}

	// Whether we won or lost the race, block 0 exists now.
	return s.storage.GetBlock(0)
}

// mineAndWrite runs the proof of work search for the candidate and
// persists the result. A storage conflict is reported through the ok
// return, everything else is an error.
func (s *State) mineAndWrite(ctx context.Context, candidate mine.Candidate) (block.Block, bool, error) {
	mined, err := mine.Mine(ctx, candidate, s.minePolicy, s.evHandler)
	if err != nil {
		return block.Block{}, false, err
	}

	head, headErr := s.storage.Head()
	if err := validate.Block(mined.Block, head, headErr); err != nil {
		s.evHandler("state: mineAndWrite: stale block: %s", err)
		return block.Block{}, false, nil
	}

	if err := s.storage.Write(block.NewBlockData(mined.Block)); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return block.Block{}, false, nil
		}
		return block.Block{}, false, fmt.Errorf("write block %d: %w", mined.Block.Number, err)
	}

	s.evHandler("state: mineAndWrite: blk[%d]: persisted: hash[%s] duration[%v]", mined.Block.Number, mined.Block.Hash, mined.Duration)

	s.publish(BlockEvent{
		Number:     mined.Block.Number,
		Hash:       mined.Block.Hash,
		TransCount: len(mined.Block.Trans),
		Difficulty: mined.Block.Difficulty,
		MinerLabel: mined.Block.MinerLabel,
		TimeStamp:  mined.Block.TimeStamp.Format(block.TimeLayout),
		Duration:   mined.Duration.Seconds(),
	})

	return mined.Block, true, nil
}

// recentBlocks returns up to one difficulty window of blocks ordered by
// block number descending.
func (s *State) recentBlocks() []block.Block {
	head, err := s.storage.Head()
	if err != nil {
		return nil
	}

	recent := make([]block.Block, 0, s.difficulty.Window)
	for num := head.Number; num >= 0 && len(recent) < s.difficulty.Window; num-- {
		blockData, err := s.storage.GetBlock(uint64(num))
		if err != nil {
			break
		}

		b, err := block.ToBlock(blockData)
		if err != nil {
			break
		}

		recent = append(recent, b)
	}

	return recent
}
