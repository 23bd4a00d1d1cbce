package cmd

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/greenhydro/ledger/foundation/ledger/block"
)

var exportFormat string
var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the whole chain as JSON or TSV.",
	Run:   exportRun,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "json", "Output format: json or tsv.")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Output file, stdout when empty.")
}

func exportRun(cmd *cobra.Command, args []string) {
	strg, err := openStorage()
	if err != nil {
		log.Fatal(err)
	}
	defer strg.Close()

	var blocks []block.BlockData
	iter := strg.ForEach()
	for {
		blockData, err := iter.Next()
		if iter.Done() {
			break
		}
		if err != nil {
			log.Fatal(err)
		}
		blocks = append(blocks, blockData)
	}

	out := io.Writer(os.Stdout)
	if exportOut != "" {
		f, err := os.Create(exportOut)
		if err != nil {
			log.Fatal(err)
		}
		defer f.Close()
		out = f
	}

	switch exportFormat {
	case "json":
		if err := exportJSON(out, blocks); err != nil {
			log.Fatal(err)
		}
	case "tsv":
		if err := exportTSV(out, blocks); err != nil {
			log.Fatal(err)
		}
	default:
		log.Fatalf("unknown format %q", exportFormat)
	}
}

func exportJSON(out io.Writer, blocks []block.BlockData) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(blocks)
}

func exportTSV(out io.Writer, blocks []block.BlockData) error {
	w := csv.NewWriter(out)
	w.Comma = '\t'

	if err := w.Write([]string{"index", "previous_hash", "timestamp", "transactions", "nonce", "hash", "difficulty", "miner_label"}); err != nil {
		return err
	}

	for _, bd := range blocks {
		trans, err := json.Marshal(bd.Trans)
		if err != nil {
			return fmt.Errorf("marshal block %d transactions: %w", bd.Number, err)
		}

		label := ""
		if bd.MinerLabel != nil {
			label = *bd.MinerLabel
		}

		record := []string{
			strconv.FormatInt(bd.Number, 10),
			bd.PrevHash,
			bd.TimeStamp,
			string(trans),
			strconv.FormatInt(bd.Nonce, 10),
			bd.Hash,
			strconv.FormatInt(int64(bd.Difficulty), 10),
			label,
		}

		if err := w.Write(record); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}
