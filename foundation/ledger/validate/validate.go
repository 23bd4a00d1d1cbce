// Package validate replays the stored chain to detect tampering or
// corruption. It is a read only diagnostic: findings come back as a
// structured result, never as a fatal condition.
package validate

import (
	"errors"
	"fmt"

	"github.com/greenhydro/ledger/foundation/ledger/block"
	"github.com/greenhydro/ledger/foundation/ledger/storage"
)

// Set of reasons a chain can fail validation.
const (
	ReasonInvalidGenesis = "invalid genesis"
	ReasonBrokenLink     = "broken link"
	ReasonHashMismatch   = "hash mismatch"
	ReasonPOWViolated    = "proof-of-work violated"
)

// Result represents the outcome of a full chain validation. FailingIndex
// is -1 when the chain is valid.
type Result struct {
	Valid        bool   `json:"valid"`
	FailingIndex int64  `json:"failing_index"`
	Reason       string `json:"reason,omitempty"`
}

func valid() Result {
	return Result{Valid: true, FailingIndex: -1}
}

func invalid(number int64, reason string) Result {
	return Result{FailingIndex: number, Reason: reason}
}

// Chain iterates the stored blocks in ascending order and checks every
// block against its predecessor: the hash link, the recomputed hash and
// the proof of work. Validation stops at the first failure.
func Chain(strg storage.Storage) Result {
	var prev block.Block
	var number int64

	iter := strg.ForEach()
	for {
		blockData, err := iter.Next()
		if iter.Done() {
			break
		}
		if err != nil {
			return invalid(number, fmt.Sprintf("read block: %s", err))
		}

		b, err := block.ToBlock(blockData)
		if err != nil {
			return invalid(number, fmt.Sprintf("decode block: %s", err))
		}

		if res, ok := checkBlock(b, prev); !ok {
			return res
		}

		prev = b
		number++
	}

	return valid()
}

// checkBlock validates a single block against its predecessor. For the
// genesis block the predecessor is the zero value and only the sentinel
// parent hash applies.
func checkBlock(b block.Block, prev block.Block) (Result, bool) {
	number := int64(b.Number)

	if b.Number == 0 {
		if b.PrevHash != block.GenesisParentHash {
			return invalid(number, ReasonInvalidGenesis), false
		}
	} else {
		if b.PrevHash != prev.Hash {
			return invalid(number, ReasonBrokenLink), false
		}
	}

	hash, err := b.ComputeHash()
	if err != nil {
		return invalid(number, fmt.Sprintf("recompute hash: %s", err)), false
	}

	if hash != b.Hash {
		return invalid(number, ReasonHashMismatch), false
	}

	if !block.HashSolved(b.Difficulty, hash) {
		return invalid(number, ReasonPOWViolated), false
	}

	return Result{}, true
}

// Block validates a mined block against the current head before it is
// written, catching programming errors early. A storage.ErrNotExist head
// means the block must be the genesis block.
func Block(b block.Block, head block.BlockData, headErr error) error {
	if errors.Is(headErr, storage.ErrNotExist) {
		if b.Number != 0 || b.PrevHash != block.GenesisParentHash {
			return fmt.Errorf("block %d is not a valid genesis block", b.Number)
		}
		return nil
	}
	if headErr != nil {
		return headErr
	}

	if b.Number != uint64(head.Number)+1 {
		return fmt.Errorf("block %d is not the next block, head is %d", b.Number, head.Number)
	}
	if b.PrevHash != head.Hash {
		return fmt.Errorf("block %d parent hash doesn't match the head", b.Number)
	}

	return nil
}
