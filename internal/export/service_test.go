package export

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/receipts-ocr-worker/internal/entity"
	"github.com/joseph-ayodele/receipts-ocr-worker/internal/repository"
)

type stubJobs struct {
	repository.JobQueueRepository
	dls []*entity.DeadLetter
	err error
}

func (s *stubJobs) ListDeadLetters(context.Context, int) ([]*entity.DeadLetter, error) {
	return s.dls, s.err
}

func TestDeadLettersXLSX(t *testing.T) {
	dl := &entity.DeadLetter{
		ID:        uuid.New(),
		JobID:     uuid.New(),
		ReceiptID: uuid.New(),
		ImageKey:  "uploads/a.jpg",
		Attempts:  3,
		Reason:    strings.Repeat("x", 600),
		CreatedAt: time.Date(2024, 3, 12, 10, 0, 0, 0, time.UTC),
	}
	svc := NewService(&stubJobs{dls: []*entity.DeadLetter{dl}}, nil)

	b, err := svc.DeadLettersXLSX(context.Background(), 0)
	if err != nil {
		t.Fatalf("DeadLettersXLSX: %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	if sheets := f.GetSheetList(); len(sheets) != 1 || sheets[0] != deadLetterSheet {
		t.Fatalf("sheets = %v", sheets)
	}
	rows, err := f.GetRows(deadLetterSheet)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	got := rows[1]
	if got[0] != "2024-03-12T10:00:00Z" || got[1] != dl.JobID.String() || got[3] != "uploads/a.jpg" || got[4] != "3" {
		t.Errorf("row = %v", got)
	}
	if n := len([]rune(got[5])); n != 500 {
		t.Errorf("reason length = %d, want 500", n)
	}
}

func TestDeadLettersXLSXQueryError(t *testing.T) {
	svc := NewService(&stubJobs{err: errors.New("db down")}, nil)
	if _, err := svc.DeadLettersXLSX(context.Background(), 10); err == nil {
		t.Fatal("expected error")
	}
}
