// Package block defines the block type for the ledger and the canonical
// serialization of its fields used as hash input.
package block

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/greenhydro/ledger/foundation/ledger/tran"
)

// GenesisParentHash is the sentinel parent hash carried by the genesis block.
const GenesisParentHash = "0"

// TimeLayout is the fixed textual form of a block timestamp. It is part of
// the canonical serialization so it can never change without breaking every
// stored hash.
const TimeLayout = "2006-01-02T15:04:05.000000"

// Block represents one immutable, hash-linked record in the ledger.
type Block struct {
	Number     uint64
	PrevHash   string
	TimeStamp  time.Time
	Trans      []tran.Tx
	Nonce      uint64
	Difficulty int
	MinerLabel string
	Hash       string
}

// ComputeHash recalculates the block's hash from its stored fields. The
// result matches Hash only if no hashed field was altered after mining.
func (b Block) ComputeHash() (string, error) {
	transJSON, err := tran.CanonicalJSON(b.Trans)
	if err != nil {
		return "", err
	}

	input := Canonicalize(b.Number, b.PrevHash, b.TimeStamp.Format(TimeLayout), transJSON, b.Nonce, b.Difficulty)

	return HashInput(input), nil
}

// Canonicalize produces the deterministic hash input for the specified block
// fields. The transactions must already be in their canonical JSON form, see
// tran.CanonicalJSON.
func Canonicalize(number uint64, prevHash string, timestamp string, transJSON string, nonce uint64, difficulty int) string {
	return fmt.Sprintf("%d%s%s%s%s%d", number, prevHash, timestamp, transJSON, strconv.FormatUint(nonce, 10), difficulty)
}

// HashInput returns the hex encoded SHA-256 digest of a canonical
// serialization.
func HashInput(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// HashSolved checks the hash complies with the proof of work rules. The
// hash must start with a difficulty number of 0's.
func HashSolved(difficulty int, hash string) bool {
	const match = "00000000"

	if len(hash) != 64 {
		return false
	}
	if difficulty < 1 || difficulty > len(match) {
		return false
	}

	return hash[:difficulty] == match[:difficulty]
}
