package block

import (
	"fmt"
	"time"

	"github.com/greenhydro/ledger/foundation/ledger/tran"
)

// BlockData is the persisted layout of a block. Existing consumers read
// these records, so the field set and encoding are fixed.
type BlockData struct {
	Number     int64     `json:"index"`
	PrevHash   string    `json:"previous_hash"`
	TimeStamp  string    `json:"timestamp"`
	Trans      []tran.Tx `json:"transactions"`
	Nonce      int64     `json:"nonce"`
	Hash       string    `json:"hash"`
	Difficulty int32     `json:"difficulty"`
	MinerLabel *string   `json:"miner_label"`
}

// NewBlockData constructs the value to persist from a block.
func NewBlockData(b Block) BlockData {
	bd := BlockData{
		Number:     int64(b.Number),
		PrevHash:   b.PrevHash,
		TimeStamp:  b.TimeStamp.Format(TimeLayout),
		Trans:      b.Trans,
		Nonce:      int64(b.Nonce),
		Hash:       b.Hash,
		Difficulty: int32(b.Difficulty),
	}

	if b.MinerLabel != "" {
		label := b.MinerLabel
		bd.MinerLabel = &label
	}

	return bd
}

// ToBlock converts persisted block data back into a block.
func ToBlock(bd BlockData) (Block, error) {
	ts, err := time.Parse(TimeLayout, bd.TimeStamp)
	if err != nil {
		return Block{}, fmt.Errorf("parse block %d timestamp: %w", bd.Number, err)
	}

	b := Block{
		Number:     uint64(bd.Number),
		PrevHash:   bd.PrevHash,
		TimeStamp:  ts,
		Trans:      bd.Trans,
		Nonce:      uint64(bd.Nonce),
		Difficulty: int(bd.Difficulty),
		Hash:       bd.Hash,
	}

	if bd.MinerLabel != nil {
		b.MinerLabel = *bd.MinerLabel
	}

	return b, nil
}
