package cmd

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/greenhydro/ledger/foundation/ledger/block"
)

var blocksPage int
var blocksRows int

var blocksCmd = &cobra.Command{
	Use:   "blocks",
	Short: "Print one page of blocks, newest first.",
	Run:   blocksRun,
}

func init() {
	rootCmd.AddCommand(blocksCmd)
	blocksCmd.Flags().IntVar(&blocksPage, "page", 1, "Page number, starting at 1.")
	blocksCmd.Flags().IntVar(&blocksRows, "rows", 10, "Blocks per page.")
}

func blocksRun(cmd *cobra.Command, args []string) {
	strg, err := openStorage()
	if err != nil {
		log.Fatal(err)
	}
	defer strg.Close()

	st := newState(strg)

	blocks, err := st.QueryBlocksByPage(blocksPage, blocksRows)
	if err != nil {
		log.Fatal(err)
	}

	for _, b := range blocks {
		data, err := json.MarshalIndent(block.NewBlockData(b), "", "  ")
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(string(data))
	}
}
