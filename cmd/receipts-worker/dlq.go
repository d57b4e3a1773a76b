package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/receipts-ocr-worker/internal/export"
)

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Inspect dead-lettered jobs",
}

var dlqListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print dead-lettered jobs as JSON, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		db, err := openDatabase(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		dls, err := db.jobs.ListDeadLetters(cmd.Context(), limit)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(dls)
	},
}

var dlqExportCmd = &cobra.Command{
	Use:     "export",
	Short:   "Write dead-lettered jobs to an XLSX workbook",
	Example: `  receipts-worker dlq export -o dead-letters.xlsx`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		out, _ := cmd.Flags().GetString("output")
		limit, _ := cmd.Flags().GetInt("limit")
		db, err := openDatabase(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		b, err := export.NewService(db.jobs, logger).DeadLettersXLSX(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if err := os.WriteFile(out, b, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", out, err)
		}
		logger.Info("dead letters exported", "path", out, "bytes", len(b))
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print pending, done and dead-lettered job counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		db, err := openDatabase(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		st, err := db.jobs.Stats(cmd.Context())
		if err != nil {
			return err
		}
		return json.NewEncoder(cmd.OutOrStdout()).Encode(st)
	},
}

func init() {
	dlqListCmd.Flags().Int("limit", 50, "maximum entries (0 for all)")
	dlqExportCmd.Flags().StringP("output", "o", "dead-letters.xlsx", "output file")
	dlqExportCmd.Flags().Int("limit", 0, "maximum entries (0 for all)")
	dlqCmd.AddCommand(dlqListCmd, dlqExportCmd)
	rootCmd.AddCommand(dlqCmd, statsCmd)
}
