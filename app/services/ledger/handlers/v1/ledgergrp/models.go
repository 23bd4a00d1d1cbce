package ledgergrp

import (
	"github.com/greenhydro/ledger/business/sys/validate"
	"github.com/greenhydro/ledger/foundation/ledger/block"
	"github.com/greenhydro/ledger/foundation/ledger/tran"
)

// submitRequest is the payload collaborators post to record transactions
// on the chain.
type submitRequest struct {
	Transactions []tran.Tx `json:"transactions" validate:"required,min=1"`
	MinerLabel   string    `json:"miner_label"`
}

// Validate implements the web framework validator interface.
func (sr submitRequest) Validate() error {
	return validate.Check(sr)
}

// pageInfo holds the validated paging parameters for the block list.
type pageInfo struct {
	Page int `json:"page" validate:"required,gte=1"`
	Rows int `json:"rows" validate:"required,gte=1,lte=100"`
}

// Validate implements the web framework validator interface.
func (pi pageInfo) Validate() error {
	return validate.Check(pi)
}

// blockModel is the wire form of one block.
type blockModel struct {
	Index        int64     `json:"index"`
	PreviousHash string    `json:"previous_hash"`
	TimeStamp    string    `json:"timestamp"`
	Transactions []tran.Tx `json:"transactions"`
	Nonce        int64     `json:"nonce"`
	Hash         string    `json:"hash"`
	Difficulty   int32     `json:"difficulty"`
	MinerLabel   *string   `json:"miner_label"`
}

func toBlockModel(b block.Block) blockModel {
	bd := block.NewBlockData(b)

	trans := bd.Trans
	if trans == nil {
		trans = []tran.Tx{}
	}

	return blockModel{
		Index:        bd.Number,
		PreviousHash: bd.PrevHash,
		TimeStamp:    bd.TimeStamp,
		Transactions: trans,
		Nonce:        bd.Nonce,
		Hash:         bd.Hash,
		Difficulty:   bd.Difficulty,
		MinerLabel:   bd.MinerLabel,
	}
}

func toBlockModels(blocks []block.Block) []blockModel {
	models := make([]blockModel, len(blocks))
	for i, b := range blocks {
		models[i] = toBlockModel(b)
	}
	return models
}
