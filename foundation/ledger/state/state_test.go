package state_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/greenhydro/ledger/foundation/ledger/block"
	"github.com/greenhydro/ledger/foundation/ledger/difficulty"
	"github.com/greenhydro/ledger/foundation/ledger/state"
	"github.com/greenhydro/ledger/foundation/ledger/storage"
	"github.com/greenhydro/ledger/foundation/ledger/storage/disk"
	"github.com/greenhydro/ledger/foundation/ledger/storage/memory"
	"github.com/greenhydro/ledger/foundation/ledger/tran"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// capturePublisher records every append event for inspection.
type capturePublisher struct {
	mu     sync.Mutex
	events []state.BlockEvent
}

func (p *capturePublisher) PublishBlockAppended(event state.BlockEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *capturePublisher) all() []state.BlockEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]state.BlockEvent(nil), p.events...)
}

// conflictStorage lets the genesis block through and then rejects every
// write, simulating a head that keeps moving under the writer.
type conflictStorage struct {
	storage.Storage
}

func (c *conflictStorage) Write(blockData block.BlockData) error {
	if blockData.Number == 0 {
		return c.Storage.Write(blockData)
	}
	return storage.ErrConflict
}

func newTestState(t *testing.T, cfg state.Config) *state.State {
	t.Helper()

	if cfg.Storage == nil {
		strg, err := memory.New()
		if err != nil {
			t.Fatalf("construct storage: %v", err)
		}
		cfg.Storage = strg
	}

	// Pinning the ceiling keeps mining fast regardless of how quickly
	// the test appends blocks.
	if cfg.Difficulty.Max == 0 {
		cfg.Difficulty = difficulty.Config{Default: 1, Max: 1}
	}

	st, err := state.New(cfg)
	if err != nil {
		t.Fatalf("construct state: %v", err)
	}

	return st
}

// =============================================================================

func Test_AppendBlock(t *testing.T) {
	t.Log("Given the need to append blocks to an empty chain.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen appending the first blocks.", testID)
		{
			pub := capturePublisher{}
			st := newTestState(t, state.Config{Publisher: &pub})
			defer st.Shutdown()

			trans := []tran.Tx{{Type: tran.TypeCertificate, CertificateID: "GHC-1", UserID: 7}}

			b, err := st.AppendBlock(context.Background(), trans, "plant-a")
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to append a block: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to append a block.", success, testID)

			if b.Number != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould land at block 1 after the genesis block: got %d.", failed, testID, b.Number)
			}
			t.Logf("\t%s\tTest %d:\tShould land at block 1 after the genesis block.", success, testID)

			genesis, err := st.RetrieveGenesis()
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to retrieve the genesis block: %v", failed, testID, err)
			}
			if genesis.PrevHash != block.GenesisParentHash || genesis.Difficulty != 1 || genesis.MinerLabel != "system" {
				t.Fatalf("\t%s\tTest %d:\tShould mine the genesis block with the platform defaults.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould mine the genesis block with the platform defaults.", success, testID)

			if b.PrevHash != genesis.Hash {
				t.Fatalf("\t%s\tTest %d:\tShould link the block to the genesis hash.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould link the block to the genesis hash.", success, testID)

			if b.MinerLabel != "plant-a" {
				t.Fatalf("\t%s\tTest %d:\tShould carry the caller's miner label: got %q.", failed, testID, b.MinerLabel)
			}
			t.Logf("\t%s\tTest %d:\tShould carry the caller's miner label.", success, testID)

			if res := st.ValidateChain(); !res.Valid {
				t.Fatalf("\t%s\tTest %d:\tShould produce a valid chain: blk[%d] reason[%s].", failed, testID, res.FailingIndex, res.Reason)
			}
			t.Logf("\t%s\tTest %d:\tShould produce a valid chain.", success, testID)

			events := pub.all()
			if len(events) != 2 {
				t.Fatalf("\t%s\tTest %d:\tShould publish an event per appended block: got %d, exp 2.", failed, testID, len(events))
			}
			if events[0].Number != 0 || events[1].Number != 1 || events[1].Hash != b.Hash {
				t.Fatalf("\t%s\tTest %d:\tShould publish the block identity in the events.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould publish the block identity in the events.", success, testID)
		}

		testID = 1
		t.Logf("\tTest %d:\tWhen no miner label is provided.", testID)
		{
			st := newTestState(t, state.Config{})
			defer st.Shutdown()

			b, err := st.AppendBlock(context.Background(), []tran.Tx{{Type: tran.TypeDemo}}, "")
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to append a block: %v", failed, testID, err)
			}

			if b.MinerLabel == "" {
				t.Fatalf("\t%s\tTest %d:\tShould generate a miner label.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould generate a miner label.", success, testID)
		}

		testID = 2
		t.Logf("\tTest %d:\tWhen the head keeps moving under the writer.", testID)
		{
			strg, err := memory.New()
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to construct the storage: %v", failed, testID, err)
			}

			st := newTestState(t, state.Config{
				Storage:          &conflictStorage{Storage: strg},
				MaxAppendRetries: 2,
			})
			defer st.Shutdown()

			_, err = st.AppendBlock(context.Background(), []tran.Tx{{Type: tran.TypeDemo}}, "")
			if !errors.Is(err, state.ErrAppendContention) {
				t.Fatalf("\t%s\tTest %d:\tShould give up with the contention error: got %v.", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould give up with the contention error.", success, testID)
		}
	}
}

func Test_ConcurrentAppends(t *testing.T) {
	t.Log("Given the need to serialize concurrent append requests.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen several writers race for the next block.", testID)
		{
			st := newTestState(t, state.Config{MaxAppendRetries: 50})
			defer st.Shutdown()

			const writers = 4

			var wg sync.WaitGroup
			wg.Add(writers)
			errs := make(chan error, writers)

			for i := 0; i < writers; i++ {
				go func(id int64) {
					defer wg.Done()

					trans := []tran.Tx{{Type: tran.TypeCreditsAdded, UserID: id, Amount: 10}}
					if _, err := st.AppendBlock(context.Background(), trans, ""); err != nil {
						errs <- err
					}
				}(int64(i + 1))
			}

			wg.Wait()
			close(errs)

			for err := range errs {
				t.Fatalf("\t%s\tTest %d:\tShould complete every append: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould complete every append.", success, testID)

			head, err := st.RetrieveHead()
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to read the head: %v", failed, testID, err)
			}
			if head.Number != writers {
				t.Fatalf("\t%s\tTest %d:\tShould end with block %d at the head: got %d.", failed, testID, writers, head.Number)
			}
			t.Logf("\t%s\tTest %d:\tShould end with block %d at the head.", success, testID, writers)

			if res := st.ValidateChain(); !res.Valid {
				t.Fatalf("\t%s\tTest %d:\tShould produce a valid chain: blk[%d] reason[%s].", failed, testID, res.FailingIndex, res.Reason)
			}
			t.Logf("\t%s\tTest %d:\tShould produce a valid chain.", success, testID)
		}
	}
}

func Test_Queries(t *testing.T) {
	st := newTestState(t, state.Config{})
	defer st.Shutdown()

	ctx := context.Background()

	appends := [][]tran.Tx{
		{{Type: tran.TypeCreditsAdded, UserID: 1, Amount: 100}},
		{{Type: tran.TypeCreditTransfer, FromUserID: 1, ToUserID: 2, Amount: 40}},
		{{Type: tran.TypeCertificate, CertificateID: "GHC-9", UserID: 3, HydrogenAmount: 5}},
	}

	for i, trans := range appends {
		if _, err := st.AppendBlock(ctx, trans, ""); err != nil {
			t.Fatalf("append block %d: %v", i+1, err)
		}
	}

	t.Log("Given the need to query the chain.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen paging through the blocks.", testID)
		{
			page, err := st.QueryBlocksByPage(1, 2)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to read the first page: %v", failed, testID, err)
			}
			if len(page) != 2 || page[0].Number != 3 || page[1].Number != 2 {
				t.Fatalf("\t%s\tTest %d:\tShould return the newest blocks first.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould return the newest blocks first.", success, testID)

			page, err = st.QueryBlocksByPage(2, 2)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to read the second page: %v", failed, testID, err)
			}
			if len(page) != 2 || page[0].Number != 1 || page[1].Number != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould continue where the first page ended.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould continue where the first page ended.", success, testID)

			page, err = st.QueryBlocksByPage(3, 2)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to read past the end: %v", failed, testID, err)
			}
			if len(page) != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould return an empty page past the end: got %d.", failed, testID, len(page))
			}
			t.Logf("\t%s\tTest %d:\tShould return an empty page past the end.", success, testID)
		}

		testID = 1
		t.Logf("\tTest %d:\tWhen collecting a participant's transactions.", testID)
		{
			txs, err := st.QueryTransactionsByParticipant(1)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to query participant 1: %v", failed, testID, err)
			}

			if len(txs) != 2 {
				t.Fatalf("\t%s\tTest %d:\tShould find 2 transactions: got %d.", failed, testID, len(txs))
			}
			t.Logf("\t%s\tTest %d:\tShould find 2 transactions.", success, testID)

			if txs[0].BlockNumber != 2 || txs[1].BlockNumber != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould order the results newest block first.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould order the results newest block first.", success, testID)

			txs, err = st.QueryTransactionsByParticipant(99)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to query a stranger: %v", failed, testID, err)
			}
			if len(txs) != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould find nothing for a stranger: got %d.", failed, testID, len(txs))
			}
			t.Logf("\t%s\tTest %d:\tShould find nothing for a stranger.", success, testID)
		}

		testID = 2
		t.Logf("\tTest %d:\tWhen summarizing the chain.", testID)
		{
			stats, err := st.QueryStats()
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to build the stats: %v", failed, testID, err)
			}

			if stats.TotalBlocks != 4 {
				t.Fatalf("\t%s\tTest %d:\tShould count 4 blocks: got %d.", failed, testID, stats.TotalBlocks)
			}
			if stats.TotalTrans != 4 {
				t.Fatalf("\t%s\tTest %d:\tShould count 4 transactions: got %d.", failed, testID, stats.TotalTrans)
			}
			t.Logf("\t%s\tTest %d:\tShould count the blocks and transactions.", success, testID)

			if stats.LatestBlock == nil || stats.LatestBlock.Number != 3 {
				t.Fatalf("\t%s\tTest %d:\tShould describe the latest block.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould describe the latest block.", success, testID)

			if !stats.ChainValid {
				t.Fatalf("\t%s\tTest %d:\tShould report the chain as valid.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould report the chain as valid.", success, testID)

			if stats.EstimatedHashRate <= 0 {
				t.Fatalf("\t%s\tTest %d:\tShould estimate a positive hash rate.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould estimate a positive hash rate.", success, testID)
		}

		testID = 3
		t.Logf("\tTest %d:\tWhen a stored block is no longer readable.", testID)
		{
			dir := t.TempDir()

			strg, err := disk.New(dir)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to construct the storage: %v", failed, testID, err)
			}

			broken := newTestState(t, state.Config{Storage: strg})
			defer broken.Shutdown()

			for i := 0; i < 2; i++ {
				if _, err := broken.AppendBlock(ctx, []tran.Tx{{Type: tran.TypeDemo}}, ""); err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to seed the chain: %v", failed, testID, err)
				}
			}

			if err := os.WriteFile(filepath.Join(dir, "1.json"), []byte("{garbage"), 0600); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to clobber block 1: %v", failed, testID, err)
			}

			if _, err := broken.QueryStats(); err == nil {
				t.Fatalf("\t%s\tTest %d:\tShould surface the read failure.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould surface the read failure.", success, testID)

			if res := broken.ValidateChain(); res.Valid {
				t.Fatalf("\t%s\tTest %d:\tShould report the chain as invalid.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould report the chain as invalid.", success, testID)
		}

		testID = 4
		t.Logf("\tTest %d:\tWhen the chain is empty.", testID)
		{
			empty := newTestState(t, state.Config{})
			defer empty.Shutdown()

			stats, err := empty.QueryStats()
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to build the stats: %v", failed, testID, err)
			}
			if stats.TotalBlocks != 0 || stats.LatestBlock != nil || !stats.ChainValid {
				t.Fatalf("\t%s\tTest %d:\tShould report an empty, valid chain.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould report an empty, valid chain.", success, testID)

			if _, err := empty.RetrieveHead(); !errors.Is(err, storage.ErrNotExist) {
				t.Fatalf("\t%s\tTest %d:\tShould report no head: got %v.", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould report no head.", success, testID)
		}
	}
}
