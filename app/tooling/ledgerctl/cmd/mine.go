package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/greenhydro/ledger/foundation/ledger/block"
	"github.com/greenhydro/ledger/foundation/ledger/tran"
)

var mineLabel string

var mineCmd = &cobra.Command{
	Use:   "mine",
	Short: "Mine and append a demo block to the chain.",
	Run:   mineRun,
}

func init() {
	rootCmd.AddCommand(mineCmd)
	mineCmd.Flags().StringVarP(&mineLabel, "label", "l", "", "Miner label to record on the block.")
}

func mineRun(cmd *cobra.Command, args []string) {
	strg, err := openStorage()
	if err != nil {
		log.Fatal(err)
	}

	st := newState(strg)
	defer st.Shutdown()

	trans := []tran.Tx{
		{
			Type:      tran.TypeDemo,
			Message:   "demo block mined via ledgerctl",
			TimeStamp: time.Now().UTC().Format(block.TimeLayout),
		},
	}

	b, err := st.AppendBlock(context.Background(), trans, mineLabel)
	if err != nil {
		log.Fatal(err)
	}

	data, err := json.MarshalIndent(block.NewBlockData(b), "", "  ")
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(string(data))
}
