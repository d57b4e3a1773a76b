package main

import (
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/receipts-ocr-worker/constants"
	"github.com/joseph-ayodele/receipts-ocr-worker/internal/common"
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Add an OCR job for a receipt image",
	Example: `  receipts-worker enqueue --receipt-id 6f1c2a52-8a3e-4c39-9a51-2f0f3c1d8e11 --image-key uploads/r1.jpg
  receipts-worker enqueue --image-key https://example.com/r.png --create-receipt`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		rawID, _ := cmd.Flags().GetString("receipt-id")
		key, _ := cmd.Flags().GetString("image-key")
		create, _ := cmd.Flags().GetBool("create-receipt")

		var rid uuid.UUID
		switch {
		case rawID != "":
			id, err := uuid.Parse(rawID)
			if err != nil {
				return common.NewAppError("INVALID_ARGUMENT", "--receipt-id must be a UUID", common.ErrInvalidInput)
			}
			rid = id
		case create:
			rid = uuid.New()
		default:
			return errors.New("--receipt-id is required unless --create-receipt is set")
		}

		ctx := cmd.Context()
		db, err := openDatabase(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		if create {
			if _, err := db.receipts.Create(ctx, rid, constants.ReceiptStatusUploaded); err != nil {
				return err
			}
		}
		job, err := db.jobs.Enqueue(ctx, rid, key)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(job)
	},
}

func init() {
	enqueueCmd.Flags().String("receipt-id", "", "receipt the image belongs to")
	enqueueCmd.Flags().String("image-key", "", "object key or http(s) URL of the image")
	enqueueCmd.Flags().Bool("create-receipt", false, "insert an uploaded receipt row first")
	_ = enqueueCmd.MarkFlagRequired("image-key")
	rootCmd.AddCommand(enqueueCmd)
}
