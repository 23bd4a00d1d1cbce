package cmd

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print the chain summary.",
	Run:   statsRun,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func statsRun(cmd *cobra.Command, args []string) {
	strg, err := openStorage()
	if err != nil {
		log.Fatal(err)
	}
	defer strg.Close()

	st := newState(strg)

	stats, err := st.QueryStats()
	if err != nil {
		log.Fatal(err)
	}

	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(string(data))
}
