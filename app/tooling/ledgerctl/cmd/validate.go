package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/greenhydro/ledger/foundation/ledger/validate"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Replay the chain and report the first structural failure.",
	Run:   validateRun,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func validateRun(cmd *cobra.Command, args []string) {
	strg, err := openStorage()
	if err != nil {
		log.Fatal(err)
	}
	defer strg.Close()

	result := validate.Chain(strg)
	if !result.Valid {
		fmt.Printf("chain INVALID: block %d: %s\n", result.FailingIndex, result.Reason)
		os.Exit(1)
	}

	fmt.Println("chain valid")
}
