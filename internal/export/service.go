package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/receipts-ocr-worker/internal/repository"
)

const deadLetterSheet = "Dead Letters"

// Service produces XLSX reports over the job queue.
type Service struct {
	jobs   repository.JobQueueRepository
	logger *slog.Logger
}

func NewService(jobs repository.JobQueueRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{jobs: jobs, logger: logger}
}

// DeadLettersXLSX returns a workbook (as bytes) listing the newest dead-lettered
// jobs. limit <= 0 exports all of them.
func (s *Service) DeadLettersXLSX(ctx context.Context, limit int) ([]byte, error) {
	start := time.Now()

	dls, err := s.jobs.ListDeadLetters(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("query dead letters: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()
	// The default sheet becomes the report.
	if err := f.SetSheetName(f.GetSheetName(0), deadLetterSheet); err != nil {
		return nil, fmt.Errorf("xlsx sheet: %w", err)
	}

	headers := []string{
		"Dead-Lettered At",
		"Job ID",
		"Receipt ID",
		"Image Key",
		"Attempts",
		"Reason",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(deadLetterSheet, cell, h)
	}

	row := 2
	for _, d := range dls {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(deadLetterSheet, cell, v)
		}
		write(1, d.CreatedAt.UTC().Format(time.RFC3339))
		write(2, d.JobID.String())
		write(3, d.ReceiptID.String())
		write(4, d.ImageKey)
		write(5, d.Attempts)
		write(6, truncate(d.Reason, 500))
		row++
	}

	_ = f.SetColWidth(deadLetterSheet, "A", "A", 22) // timestamp
	_ = f.SetColWidth(deadLetterSheet, "B", "C", 38) // ids
	_ = f.SetColWidth(deadLetterSheet, "D", "D", 48) // key
	_ = f.SetColWidth(deadLetterSheet, "E", "E", 10)
	_ = f.SetColWidth(deadLetterSheet, "F", "F", 80) // reason

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"report", "dead_letters",
		"rows", len(dls),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
