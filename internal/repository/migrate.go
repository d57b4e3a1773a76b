package repository

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	entsql "entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

const textSize = math.MaxInt32

var (
	// ReceiptsColumns holds the columns of the "receipts" table this worker touches.
	ReceiptsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "merchant", Type: field.TypeString, Nullable: true, Size: textSize},
		{Name: "total", Type: field.TypeFloat64, Nullable: true},
		{Name: "subtotal", Type: field.TypeFloat64, Nullable: true},
		{Name: "tax", Type: field.TypeFloat64, Nullable: true},
		{Name: "tax_rate", Type: field.TypeFloat64, Nullable: true},
		{Name: "status", Type: field.TypeString, Nullable: true},
		{Name: "raw_ocr", Type: field.TypeJSON, Nullable: true},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "updated_at", Type: field.TypeTime},
	}
	ReceiptsTable = &schema.Table{
		Name:       "receipts",
		Columns:    ReceiptsColumns,
		PrimaryKey: []*schema.Column{ReceiptsColumns[0]},
	}

	// OcrJobsColumns holds the columns of the "ocr_jobs" backlog.
	OcrJobsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "receipt_id", Type: field.TypeUUID},
		{Name: "image_key", Type: field.TypeString, Size: textSize},
		{Name: "processed", Type: field.TypeBool, Default: false},
		{Name: "attempts", Type: field.TypeInt, Default: 0},
		{Name: "enqueued_at", Type: field.TypeTime},
		{Name: "leased_at", Type: field.TypeTime, Nullable: true},
		{Name: "last_error", Type: field.TypeString, Nullable: true, Size: textSize},
		{Name: "processor", Type: field.TypeString, Nullable: true},
		{Name: "dead_lettered_at", Type: field.TypeTime, Nullable: true},
	}
	OcrJobsTable = &schema.Table{
		Name:       "ocr_jobs",
		Columns:    OcrJobsColumns,
		PrimaryKey: []*schema.Column{OcrJobsColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "ocrjob_processed_enqueued_at",
				Unique:  false,
				Columns: []*schema.Column{OcrJobsColumns[3], OcrJobsColumns[5]},
			},
			{
				Name:    "ocrjob_receipt_id",
				Unique:  false,
				Columns: []*schema.Column{OcrJobsColumns[1]},
			},
		},
	}

	// OcrDeadLettersColumns holds the columns of the "ocr_dead_letters" table.
	OcrDeadLettersColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "job_id", Type: field.TypeUUID, Unique: true},
		{Name: "receipt_id", Type: field.TypeUUID},
		{Name: "image_key", Type: field.TypeString, Size: textSize},
		{Name: "attempts", Type: field.TypeInt},
		{Name: "reason", Type: field.TypeString, Size: textSize},
		{Name: "created_at", Type: field.TypeTime},
	}
	OcrDeadLettersTable = &schema.Table{
		Name:       "ocr_dead_letters",
		Columns:    OcrDeadLettersColumns,
		PrimaryKey: []*schema.Column{OcrDeadLettersColumns[0]},
	}

	// Tables holds all the tables in the schema.
	Tables = []*schema.Table{
		ReceiptsTable,
		OcrJobsTable,
		OcrDeadLettersTable,
	}
)

// Migrate creates or upgrades the worker tables. It never drops columns or indexes.
func Migrate(ctx context.Context, drv *entsql.Driver, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	m, err := schema.NewMigrate(drv)
	if err != nil {
		return fmt.Errorf("init migrate: %w", err)
	}
	if err := m.Create(ctx, Tables...); err != nil {
		logger.Error("schema migration failed", "error", err)
		return fmt.Errorf("create schema: %w", err)
	}
	logger.Info("schema migration complete", "dialect", drv.Dialect(), "tables", len(Tables))
	return nil
}
