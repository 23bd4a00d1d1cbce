// Package sqlite implements the ability to read and write blocks as rows
// in an embedded sqlite database, matching the platform's relational
// block table.
package sqlite

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/greenhydro/ledger/foundation/ledger/block"
	"github.com/greenhydro/ledger/foundation/ledger/storage"
	"github.com/greenhydro/ledger/foundation/ledger/tran"
)

// blockRow represents the blocks table. The column set mirrors the
// platform's existing schema so records stay readable by its consumers.
type blockRow struct {
	Number     int64   `gorm:"column:block_number;primaryKey;autoIncrement:false"`
	PrevHash   string  `gorm:"column:previous_hash;not null"`
	TimeStamp  string  `gorm:"column:timestamp;not null"`
	Data       string  `gorm:"column:data;not null"`
	Nonce      int64   `gorm:"column:nonce;not null"`
	Hash       string  `gorm:"column:hash;not null;uniqueIndex"`
	Difficulty int32   `gorm:"column:difficulty;not null"`
	MinerLabel *string `gorm:"column:miner_label"`
}

// TableName implements the gorm Tabler interface.
func (blockRow) TableName() string {
	return "blocks"
}

// SQLite represents the implementation for reading and storing blocks in
// an sqlite database. This implements the storage.Storage interface.
type SQLite struct {
	db *gorm.DB
}

// New constructs an SQLite value for use, creating the blocks table when
// it does not exist yet.
func New(path string) (*SQLite, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.AutoMigrate(&blockRow{}); err != nil {
		return nil, fmt.Errorf("migrate blocks table: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLite) Close() error {
	db, err := s.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}

// Write takes the specified block data and stores it as a row. The block
// must be the next block in the chain; the check and the insert run in
// one database transaction so competing writers serialize here.
func (s *SQLite) Write(blockData block.BlockData) error {
	row, err := toRow(blockData)
	if err != nil {
		return err
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&blockRow{}).Count(&count).Error; err != nil {
			return err
		}

		if count != blockData.Number {
			return storage.ErrConflict
		}

		if err := tx.Create(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return storage.ErrConflict
			}
			return err
		}

		return nil
	})
}

// GetBlock locates and returns the contents of the specified block by
// number.
func (s *SQLite) GetBlock(num uint64) (block.BlockData, error) {
	var row blockRow
	if err := s.db.Where("block_number = ?", int64(num)).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return block.BlockData{}, storage.ErrNotExist
		}
		return block.BlockData{}, err
	}

	return toBlockData(row)
}

// Head returns the block with the maximum number.
func (s *SQLite) Head() (block.BlockData, error) {
	var row blockRow
	if err := s.db.Order("block_number DESC").First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return block.BlockData{}, storage.ErrNotExist
		}
		return block.BlockData{}, err
	}

	return toBlockData(row)
}

// Count returns the number of blocks in the store.
func (s *SQLite) Count() (uint64, error) {
	var count int64
	if err := s.db.Model(&blockRow{}).Count(&count).Error; err != nil {
		return 0, err
	}

	return uint64(count), nil
}

// ForEach returns an iterator to walk through all the blocks starting
// with the genesis block.
func (s *SQLite) ForEach() storage.Iterator {
	return &sqliteIterator{store: s}
}

// Reset will clear out the chain in the database.
func (s *SQLite) Reset() error {
	return s.db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&blockRow{}).Error
}

// =============================================================================

func toRow(blockData block.BlockData) (blockRow, error) {
	trans := blockData.Trans
	if trans == nil {
		trans = []tran.Tx{}
	}

	data, err := json.Marshal(trans)
	if err != nil {
		return blockRow{}, fmt.Errorf("marshal block %d transactions: %w", blockData.Number, err)
	}

	row := blockRow{
		Number:     blockData.Number,
		PrevHash:   blockData.PrevHash,
		TimeStamp:  blockData.TimeStamp,
		Data:       string(data),
		Nonce:      blockData.Nonce,
		Hash:       blockData.Hash,
		Difficulty: blockData.Difficulty,
		MinerLabel: blockData.MinerLabel,
	}

	return row, nil
}

func toBlockData(row blockRow) (block.BlockData, error) {
	var trans []tran.Tx
	if err := json.Unmarshal([]byte(row.Data), &trans); err != nil {
		return block.BlockData{}, fmt.Errorf("unmarshal block %d transactions: %w", row.Number, err)
	}

	blockData := block.BlockData{
		Number:     row.Number,
		PrevHash:   row.PrevHash,
		TimeStamp:  row.TimeStamp,
		Trans:      trans,
		Nonce:      row.Nonce,
		Hash:       row.Hash,
		Difficulty: row.Difficulty,
		MinerLabel: row.MinerLabel,
	}

	return blockData, nil
}

// =============================================================================

// sqliteIterator represents the iteration implementation for walking
// through and reading blocks from the database. This implements the
// storage Iterator interface.
type sqliteIterator struct {
	store   *SQLite // Access to the SQLite storage API.
	current uint64  // Current block number being iterated over.
	eoc     bool    // Represents the iterator is at the end of the chain.
}

// Next retrieves the next block from the database. Only a missing row
// marks the end of the chain; a row that is present but unreadable is an
// error the caller must see.
func (si *sqliteIterator) Next() (block.BlockData, error) {
	if si.eoc {
		return block.BlockData{}, storage.ErrNotExist
	}

	blockData, err := si.store.GetBlock(si.current)
	if errors.Is(err, storage.ErrNotExist) {
		si.eoc = true
	}

	si.current++

	return blockData, err
}

// Done returns the end of chain value.
func (si *sqliteIterator) Done() bool {
	return si.eoc
}
