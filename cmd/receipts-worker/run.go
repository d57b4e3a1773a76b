package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/receipts-ocr-worker/internal/core"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process one batch of OCR jobs and exit",
	Long: `Lease up to BATCH_SIZE pending jobs, process them one at a time and exit.
Intended for cron or a scheduled task. With --drain, batches are repeated
until a lease comes back empty.`,
	Example: `  # One batch
  receipts-worker run

  # Work through the whole backlog
  receipts-worker run --drain`,
	Args: cobra.NoArgs,
	RunE: runBatch,
}

func init() {
	runCmd.Flags().Bool("drain", false, "repeat batches until no job is leased")
	rootCmd.AddCommand(runCmd)
}

func runBatch(cmd *cobra.Command, _ []string) error {
	drain, _ := cmd.Flags().GetBool("drain")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, err := buildWorker(ctx, cfg)
	if err != nil {
		return err
	}
	defer w.Close()

	var total core.BatchResult
	for {
		res, err := w.proc.ProcessBatch(ctx)
		if err != nil {
			return err
		}
		total.Leased += res.Leased
		total.Succeeded += res.Succeeded
		total.Failed += res.Failed
		total.DeadLettered += res.DeadLettered
		total.Swept += res.Swept
		if !drain || res.Leased == 0 || ctx.Err() != nil {
			break
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(total)
}
