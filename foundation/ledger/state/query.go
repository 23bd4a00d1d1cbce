package state

import (
	"errors"
	"math"

	"github.com/greenhydro/ledger/foundation/ledger/block"
	"github.com/greenhydro/ledger/foundation/ledger/storage"
	"github.com/greenhydro/ledger/foundation/ledger/tran"
	"github.com/greenhydro/ledger/foundation/ledger/validate"
)

// ParticipantTx pairs a transaction with the block that recorded it.
type ParticipantTx struct {
	BlockNumber    uint64  `json:"block_index"`
	BlockHash      string  `json:"block_hash"`
	BlockTimeStamp string  `json:"block_timestamp"`
	Tx             tran.Tx `json:"transaction"`
}

// BlockSummary describes the latest block inside the stats payload.
type BlockSummary struct {
	Number     uint64 `json:"index"`
	Hash       string `json:"hash"`
	TimeStamp  string `json:"timestamp"`
	TransCount int    `json:"transaction_count"`
	Difficulty int    `json:"difficulty"`
}

// Stats is the read only chain summary consumed by dashboards.
type Stats struct {
	TotalBlocks       uint64        `json:"total_blocks"`
	TotalTrans        int           `json:"total_transactions"`
	LatestBlock       *BlockSummary `json:"latest_block"`
	CurrentDifficulty int           `json:"current_difficulty"`
	AverageBlockTime  float64       `json:"average_block_time"`
	EstimatedHashRate float64       `json:"estimated_hash_rate"`
	ChainValid        bool          `json:"chain_valid"`
}

// QueryBlocksByPage returns one page of blocks ordered by block number
// descending, page numbering starting at 1.
func (s *State) QueryBlocksByPage(page int, rows int) ([]block.Block, error) {
	head, err := s.storage.Head()
	if err != nil {
		if errors.Is(err, storage.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	start := head.Number - int64(page-1)*int64(rows)
	if start < 0 {
		return nil, nil
	}

	out := make([]block.Block, 0, rows)
	for num := start; num >= 0 && len(out) < rows; num-- {
		blockData, err := s.storage.GetBlock(uint64(num))
		if err != nil {
			return nil, err
		}

		b, err := block.ToBlock(blockData)
		if err != nil {
			return nil, err
		}

		out = append(out, b)
	}

	return out, nil
}

// QueryTransactionsByParticipant returns every transaction the specified
// participant is a party to, newest block first.
func (s *State) QueryTransactionsByParticipant(participantID int64) ([]ParticipantTx, error) {
	head, err := s.storage.Head()
	if err != nil {
		if errors.Is(err, storage.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var out []ParticipantTx
	for num := head.Number; num >= 0; num-- {
		blockData, err := s.storage.GetBlock(uint64(num))
		if err != nil {
			return nil, err
		}

		for _, tx := range blockData.Trans {
			if !tx.Participant(participantID) {
				continue
			}

			out = append(out, ParticipantTx{
				BlockNumber:    uint64(blockData.Number),
				BlockHash:      blockData.Hash,
				BlockTimeStamp: blockData.TimeStamp,
				Tx:             tx,
			})
		}
	}

	return out, nil
}

// QueryStats produces the chain summary: totals, the latest block, the
// current difficulty, recent timing and an overall validity flag.
func (s *State) QueryStats() (Stats, error) {
	var stats Stats

	iter := s.storage.ForEach()
	for {
		blockData, err := iter.Next()
		if iter.Done() {
			break
		}
		if err != nil {
			return Stats{}, err
		}

		stats.TotalBlocks++
		stats.TotalTrans += len(blockData.Trans)
	}

	head, err := s.storage.Head()
	if err != nil {
		if errors.Is(err, storage.ErrNotExist) {
			stats.ChainValid = true
			return stats, nil
		}
		return Stats{}, err
	}

	stats.LatestBlock = &BlockSummary{
		Number:     uint64(head.Number),
		Hash:       head.Hash,
		TimeStamp:  head.TimeStamp,
		TransCount: len(head.Trans),
		Difficulty: int(head.Difficulty),
	}
	stats.CurrentDifficulty = int(head.Difficulty)

	recent := s.recentBlocks()
	if len(recent) > 1 {
		var total float64
		for i := 0; i < len(recent)-1; i++ {
			total += recent[i].TimeStamp.Sub(recent[i+1].TimeStamp).Seconds()
		}
		stats.AverageBlockTime = total / float64(len(recent)-1)
	}

	// The 2^difficulty estimate predates this implementation and is kept
	// for compatibility with the dashboards that chart it.
	stats.EstimatedHashRate = math.Pow(2, float64(stats.CurrentDifficulty)) / math.Max(stats.AverageBlockTime, 1)

	stats.ChainValid = s.ValidateChain().Valid

	return stats, nil
}

// ValidateChain replays the whole stored chain and reports the first
// structural failure, if any.
func (s *State) ValidateChain() validate.Result {
	return validate.Chain(s.storage)
}
