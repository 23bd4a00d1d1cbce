// Package mine implements the proof of work search for the next block in
// the ledger.
package mine

import (
	"context"
	"time"

	"github.com/greenhydro/ledger/foundation/ledger/block"
	"github.com/greenhydro/ledger/foundation/ledger/tran"
)

// Candidate represents the fixed inputs for a mining run. The nonce is the
// only search variable, everything else is captured up front.
type Candidate struct {
	Number     uint64
	PrevHash   string
	Trans      []tran.Tx
	Difficulty int
	MinerLabel string
}

// Policy controls the bounded attempt fallback. After MaxAttempts failed
// nonces at the current difficulty, the difficulty is lowered by one and
// the search restarts. This guarantees termination for a single
// authoritative writer and is a deliberate policy, not an error path.
type Policy struct {
	MaxAttempts   uint64
	MinDifficulty int
}

// DefaultPolicy matches the platform's production settings.
var DefaultPolicy = Policy{
	MaxAttempts:   1_000_000,
	MinDifficulty: 1,
}

// Mined is the result of a successful mining run. Difficulty reflects the
// value actually satisfied by the hash, which may be lower than requested
// when the fallback policy kicked in.
type Mined struct {
	Block    block.Block
	Attempts uint64
	Duration time.Duration
}

// Mine searches for a nonce whose hash meets the proof of work target. The
// timestamp is captured once before the search starts and does not advance
// while the nonce is varied. The search can be cancelled through the
// context.
func Mine(ctx context.Context, c Candidate, p Policy, ev func(v string, args ...any)) (Mined, error) {
	ev("mine: Mine: blk[%d]: started: difficulty[%d] txs[%d]", c.Number, c.Difficulty, len(c.Trans))
	defer ev("mine: Mine: blk[%d]: completed", c.Number)

	if p.MaxAttempts == 0 {
		p.MaxAttempts = DefaultPolicy.MaxAttempts
	}
	if p.MinDifficulty < 1 {
		p.MinDifficulty = DefaultPolicy.MinDifficulty
	}

	ts := time.Now().UTC().Truncate(time.Microsecond)
	timestamp := ts.Format(block.TimeLayout)

	transJSON, err := tran.CanonicalJSON(c.Trans)
	if err != nil {
		return Mined{}, err
	}

	difficulty := c.Difficulty
	if difficulty < p.MinDifficulty {
		difficulty = p.MinDifficulty
	}

	start := time.Now()

	var nonce uint64
	var attempts uint64
	for {
		if ctx.Err() != nil {
			ev("mine: Mine: blk[%d]: CANCELLED", c.Number)
			return Mined{}, ctx.Err()
		}

		attempts++

		input := block.Canonicalize(c.Number, c.PrevHash, timestamp, transJSON, nonce, difficulty)
		hash := block.HashInput(input)

		if block.HashSolved(difficulty, hash) {
			ev("mine: Mine: blk[%d]: SOLVED: difficulty[%d] nonce[%d] attempts[%d]", c.Number, difficulty, nonce, attempts)

			b := block.Block{
				Number:     c.Number,
				PrevHash:   c.PrevHash,
				TimeStamp:  ts,
				Trans:      c.Trans,
				Nonce:      nonce,
				Difficulty: difficulty,
				MinerLabel: c.MinerLabel,
				Hash:       hash,
			}

			return Mined{Block: b, Attempts: attempts, Duration: time.Since(start)}, nil
		}

		nonce++

		// The bounded attempt fallback: relax the target instead of
		// searching forever.
		if nonce > p.MaxAttempts && difficulty > p.MinDifficulty {
			difficulty--
			nonce = 0
			ev("mine: Mine: blk[%d]: POLICY: attempt ceiling hit, difficulty relaxed to [%d]", c.Number, difficulty)
		}
	}
}
