// Package cmd contains the ledgerctl admin commands.
package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/greenhydro/ledger/foundation/ledger/state"
	"github.com/greenhydro/ledger/foundation/ledger/storage"
	"github.com/greenhydro/ledger/foundation/ledger/storage/disk"
	"github.com/greenhydro/ledger/foundation/ledger/storage/sqlite"
)

var (
	backend string
	dbPath  string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&backend, "backend", "b", "sqlite", "Storage backend: sqlite or disk.")
	rootCmd.PersistentFlags().StringVarP(&dbPath, "path", "p", "zledger/ledger.db", "Path to the chain database.")
}

var rootCmd = &cobra.Command{
	Use:   "ledgerctl",
	Short: "Administer the hydrogen platform ledger",
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// newState wraps the storage with default ledger settings for the read
// only commands.
func newState(strg storage.Storage) *state.State {
	st, err := state.New(state.Config{Storage: strg})
	if err != nil {
		log.Fatal(err)
	}
	return st
}

// openStorage constructs the storage backend selected by the flags.
func openStorage() (storage.Storage, error) {
	switch backend {
	case "sqlite":
		return sqlite.New(dbPath)
	case "disk":
		return disk.New(dbPath)
	}

	return nil, fmt.Errorf("unknown backend %q", backend)
}
