package validate_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/greenhydro/ledger/foundation/ledger/block"
	"github.com/greenhydro/ledger/foundation/ledger/mine"
	"github.com/greenhydro/ledger/foundation/ledger/storage"
	"github.com/greenhydro/ledger/foundation/ledger/storage/disk"
	"github.com/greenhydro/ledger/foundation/ledger/storage/memory"
	"github.com/greenhydro/ledger/foundation/ledger/tran"
	"github.com/greenhydro/ledger/foundation/ledger/validate"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func nop(v string, args ...any) {}

// mineChain produces a structurally valid chain of the specified length.
// Difficulty 1 keeps the search fast enough for tests.
func mineChain(t *testing.T, length int) []block.BlockData {
	t.Helper()

	chain := make([]block.BlockData, 0, length)
	prevHash := block.GenesisParentHash

	for num := 0; num < length; num++ {
		c := mine.Candidate{
			Number:     uint64(num),
			PrevHash:   prevHash,
			Trans:      []tran.Tx{{Type: tran.TypeDemo, UserID: int64(num + 1)}},
			Difficulty: 1,
		}

		mined, err := mine.Mine(context.Background(), c, mine.Policy{}, nop)
		if err != nil {
			t.Fatalf("mine block %d: %v", num, err)
		}

		chain = append(chain, block.NewBlockData(mined.Block))
		prevHash = mined.Block.Hash
	}

	return chain
}

// load writes the chain into a fresh in-memory store. The store only
// checks the numbering, so tampered blocks load fine.
func load(t *testing.T, chain []block.BlockData) storage.Storage {
	t.Helper()

	strg, err := memory.New()
	if err != nil {
		t.Fatalf("construct storage: %v", err)
	}

	for _, bd := range chain {
		if err := strg.Write(bd); err != nil {
			t.Fatalf("write block %d: %v", bd.Number, err)
		}
	}

	return strg
}

// =============================================================================

func Test_Chain(t *testing.T) {
	type table struct {
		name       string
		tamper     func(chain []block.BlockData)
		wantValid  bool
		wantIndex  int64
		wantReason string
	}

	tt := []table{
		{
			name:      "intact chain",
			tamper:    func(chain []block.BlockData) {},
			wantValid: true,
			wantIndex: -1,
		},
		{
			name: "tampered transaction",
			tamper: func(chain []block.BlockData) {
				chain[1].Trans[0].UserID = 999
			},
			wantIndex:  1,
			wantReason: validate.ReasonHashMismatch,
		},
		{
			name: "broken link",
			tamper: func(chain []block.BlockData) {
				chain[2].PrevHash = "0000deadbeef"
			},
			wantIndex:  2,
			wantReason: validate.ReasonBrokenLink,
		},
		{
			name: "rewritten hash",
			tamper: func(chain []block.BlockData) {
				chain[3].Hash = chain[2].Hash
			},
			wantIndex:  3,
			wantReason: validate.ReasonHashMismatch,
		},
		{
			name: "proof of work not satisfied",
			tamper: func(chain []block.BlockData) {
				// Rewrite the last block consistently but with a nonce
				// whose hash misses the target.
				b, err := block.ToBlock(chain[3])
				if err != nil {
					panic(err)
				}

				for nonce := uint64(0); ; nonce++ {
					b.Nonce = nonce
					hash, err := b.ComputeHash()
					if err != nil {
						panic(err)
					}
					if !block.HashSolved(b.Difficulty, hash) {
						b.Hash = hash
						chain[3] = block.NewBlockData(b)
						return
					}
				}
			},
			wantIndex:  3,
			wantReason: validate.ReasonPOWViolated,
		},
		{
			name: "bad genesis parent",
			tamper: func(chain []block.BlockData) {
				chain[0].PrevHash = "1"
			},
			wantIndex:  0,
			wantReason: validate.ReasonInvalidGenesis,
		},
		{
			name: "difficulty not met",
			tamper: func(chain []block.BlockData) {
				chain[1].Difficulty = 8
			},
			wantIndex:  1,
			wantReason: validate.ReasonHashMismatch,
		},
	}

	t.Log("Given the need to detect tampering in a stored chain.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen checking the %s case.", testID, tst.name)
			{
				f := func(t *testing.T) {
					chain := mineChain(t, 4)
					tst.tamper(chain)

					strg := load(t, chain)
					defer strg.Close()

					res := validate.Chain(strg)

					if res.Valid != tst.wantValid {
						t.Fatalf("\t%s\tTest %d:\tShould report valid=%v: got %v reason[%s].", failed, testID, tst.wantValid, res.Valid, res.Reason)
					}
					t.Logf("\t%s\tTest %d:\tShould report valid=%v.", success, testID, tst.wantValid)

					if res.FailingIndex != tst.wantIndex {
						t.Fatalf("\t%s\tTest %d:\tShould fail at index %d: got %d.", failed, testID, tst.wantIndex, res.FailingIndex)
					}
					t.Logf("\t%s\tTest %d:\tShould fail at index %d.", success, testID, tst.wantIndex)

					if res.Reason != tst.wantReason {
						t.Fatalf("\t%s\tTest %d:\tShould report reason %q: got %q.", failed, testID, tst.wantReason, res.Reason)
					}
					t.Logf("\t%s\tTest %d:\tShould report reason %q.", success, testID, tst.wantReason)
				}

				t.Run(tst.name, f)
			}
		}
	}
}

func Test_ChainReadFailure(t *testing.T) {
	t.Log("Given the need to surface storage corruption during validation.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen a stored block file is no longer readable.", testID)
		{
			dir := t.TempDir()

			strg, err := disk.New(dir)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to construct the storage: %v", failed, testID, err)
			}
			defer strg.Close()

			for _, bd := range mineChain(t, 3) {
				if err := strg.Write(bd); err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to write block %d: %v", failed, testID, bd.Number, err)
				}
			}

			if err := os.WriteFile(filepath.Join(dir, "1.json"), []byte("{garbage"), 0600); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to clobber block 1: %v", failed, testID, err)
			}

			res := validate.Chain(strg)

			if res.Valid {
				t.Fatalf("\t%s\tTest %d:\tShould report the chain as invalid.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould report the chain as invalid.", success, testID)

			if res.FailingIndex != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould fail at index 1: got %d.", failed, testID, res.FailingIndex)
			}
			t.Logf("\t%s\tTest %d:\tShould fail at index 1.", success, testID)

			if !strings.HasPrefix(res.Reason, "read block") {
				t.Fatalf("\t%s\tTest %d:\tShould report a read failure reason: got %q.", failed, testID, res.Reason)
			}
			t.Logf("\t%s\tTest %d:\tShould report a read failure reason.", success, testID)
		}
	}
}

func Test_Block(t *testing.T) {
	chain := mineChain(t, 2)

	head := chain[1]
	next, err := block.ToBlock(block.BlockData{
		Number:    2,
		PrevHash:  head.Hash,
		TimeStamp: "2024-05-01T09:30:00.000000",
	})
	if err != nil {
		t.Fatalf("build next block: %v", err)
	}

	t.Log("Given the need to check a mined block against the head before writing.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen the block extends the head.", testID)
		{
			if err := validate.Block(next, head, nil); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould accept the block: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould accept the block.", success, testID)
		}

		testID = 1
		t.Logf("\tTest %d:\tWhen the head moved during mining.", testID)
		{
			stale := next
			stale.PrevHash = "0000deadbeef"

			if err := validate.Block(stale, head, nil); err == nil {
				t.Fatalf("\t%s\tTest %d:\tShould reject the stale parent hash.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould reject the stale parent hash.", success, testID)

			short := next
			short.Number = 1

			if err := validate.Block(short, head, nil); err == nil {
				t.Fatalf("\t%s\tTest %d:\tShould reject the stale block number.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould reject the stale block number.", success, testID)
		}

		testID = 2
		t.Logf("\tTest %d:\tWhen the store is still empty.", testID)
		{
			genesis := next
			genesis.Number = 0
			genesis.PrevHash = block.GenesisParentHash

			if err := validate.Block(genesis, block.BlockData{}, storage.ErrNotExist); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould accept a genesis block: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould accept a genesis block.", success, testID)

			if err := validate.Block(next, block.BlockData{}, storage.ErrNotExist); err == nil {
				t.Fatalf("\t%s\tTest %d:\tShould reject a non-genesis block.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould reject a non-genesis block.", success, testID)
		}
	}
}
