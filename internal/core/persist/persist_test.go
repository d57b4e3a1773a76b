package persist

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/receipts-ocr-worker/constants"
	"github.com/joseph-ayodele/receipts-ocr-worker/internal/extract"
	"github.com/joseph-ayodele/receipts-ocr-worker/internal/ocr"
	"github.com/joseph-ayodele/receipts-ocr-worker/internal/reconcile"
	"github.com/joseph-ayodele/receipts-ocr-worker/internal/repository"
	"github.com/joseph-ayodele/receipts-ocr-worker/internal/storage"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func setup(t *testing.T) (*Writer, *storage.FileStore, repository.ReceiptRepository) {
	t.Helper()
	dir := t.TempDir()
	drv, err := repository.OpenSQLite(filepath.Join(dir, "db.sqlite"), quiet)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { drv.Close() })
	if err := repository.Migrate(context.Background(), drv, quiet); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	files, err := storage.NewFileStore(filepath.Join(dir, "artifacts"), quiet)
	if err != nil {
		t.Fatal(err)
	}
	receipts := repository.NewReceiptRepository(drv, quiet)
	return NewWriter(files, receipts, "ocr/", "test/1", quiet), files, receipts
}

func sampleResult(id uuid.UUID) Result {
	lines := []string{"SUPERSTORE MART INC.", "Subtotal 12.00", "Tax 6% 0.72", "Total 12.72"}
	doc := &ocr.Document{Provider: "test", DocumentMetadata: ocr.DocumentMetadata{Pages: 1}}
	for _, l := range lines {
		c := 90.0
		doc.Blocks = append(doc.Blocks, ocr.Block{BlockType: ocr.BlockTypeLine, Text: l, Confidence: &c, Page: 1})
	}
	f := extract.FromLines(doc.Lines())
	return Result{
		ReceiptID:  id,
		Document:   doc,
		Fields:     f,
		Reconcile:  reconcile.Reconcile(f.Subtotal, f.Tax, f.Total),
		Confidence: ocr.AggregateConfidence(doc.Blocks),
	}
}

func TestPersistIsIdempotent(t *testing.T) {
	ctx := context.Background()
	w, files, receipts := setup(t)
	id := uuid.New()
	if _, err := receipts.Create(ctx, id, constants.ReceiptStatusUploaded); err != nil {
		t.Fatal(err)
	}

	first, err := w.Persist(ctx, sampleResult(id))
	if err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if !first.Applied || first.ArtifactKey != "ocr/"+id.String()+".json" {
		t.Fatalf("first outcome = %+v", first)
	}

	w.now = func() time.Time { return time.Now().UTC().Add(time.Hour) }
	again := sampleResult(id)
	again.Fields.Vendor = "Changed"
	second, err := w.Persist(ctx, again)
	if err != nil {
		t.Fatalf("second Persist: %v", err)
	}
	if second.Applied {
		t.Error("second Persist changed an ocr_done receipt")
	}

	rec, err := receipts.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Merchant == nil || *rec.Merchant != "Mart" {
		t.Errorf("merchant = %v", rec.Merchant)
	}
	if rec.Total == nil || math.Abs(*rec.Total-12.72) > 1e-9 {
		t.Errorf("total = %v", rec.Total)
	}
	if rec.TaxRate == nil || math.Abs(*rec.TaxRate-0.06) > 1e-9 {
		t.Errorf("tax_rate = %v", rec.TaxRate)
	}

	var raw struct {
		ArtifactKey     string   `json:"artifact_key"`
		Confidence      float64  `json:"confidence"`
		ReconciledTotal *float64 `json:"reconciled_total"`
	}
	if err := json.Unmarshal(rec.RawOCR, &raw); err != nil {
		t.Fatalf("raw_ocr: %v", err)
	}
	if raw.ArtifactKey != first.ArtifactKey || math.Abs(raw.Confidence-0.9) > 1e-9 || raw.ReconciledTotal == nil {
		t.Errorf("raw_ocr = %+v", raw)
	}

	body, err := files.Get(ctx, first.ArtifactKey)
	if err != nil {
		t.Fatalf("artifact missing: %v", err)
	}
	if err := ValidateArtifact(body); err != nil {
		t.Errorf("stored artifact invalid: %v", err)
	}
	var art Artifact
	if err := json.Unmarshal(body, &art); err != nil {
		t.Fatal(err)
	}
	if art.ReceiptID != id || art.ProcessorVersion != "test/1" || len(art.TextractResponse.Blocks) != 4 {
		t.Errorf("artifact = %+v", art)
	}
}

func TestPersistUnreconciledOmitsReconciledTotal(t *testing.T) {
	ctx := context.Background()
	w, _, receipts := setup(t)
	id := uuid.New()
	if _, err := receipts.Create(ctx, id, constants.ReceiptStatusUploaded); err != nil {
		t.Fatal(err)
	}
	res := sampleResult(id)
	total := 20.0
	res.Fields.Total = &total
	res.Reconcile = reconcile.Reconcile(res.Fields.Subtotal, res.Fields.Tax, res.Fields.Total)

	if _, err := w.Persist(ctx, res); err != nil {
		t.Fatal(err)
	}
	rec, _ := receipts.Get(ctx, id)
	if rec.Total == nil || *rec.Total != 20 {
		t.Errorf("total = %v, want 20", rec.Total)
	}
	if strings.Contains(string(rec.RawOCR), "reconciled_total") {
		t.Errorf("raw_ocr = %s", rec.RawOCR)
	}
}

func TestPersistRequiresDocument(t *testing.T) {
	w, _, _ := setup(t)
	if _, err := w.Persist(context.Background(), Result{ReceiptID: uuid.New()}); err == nil {
		t.Fatal("expected error for nil document")
	}
}

func TestValidateArtifact(t *testing.T) {
	cases := []struct {
		name string
		body string
		ok   bool
	}{
		{"valid", `{"receipt_id":"6f1c2a52-8a3e-4c39-9a51-2f0f3c1d8e11","processed_at":"2024-03-12T10:00:00Z","processor_version":"v1","textract_response":{"Blocks":[{"BlockType":"LINE","Text":"x","Confidence":99.1}]}}`, true},
		{"missing version", `{"receipt_id":"6f1c2a52-8a3e-4c39-9a51-2f0f3c1d8e11","processed_at":"2024-03-12T10:00:00Z","textract_response":{"Blocks":[]}}`, false},
		{"bad block type", `{"receipt_id":"6f1c2a52-8a3e-4c39-9a51-2f0f3c1d8e11","processed_at":"2024-03-12T10:00:00Z","processor_version":"v1","textract_response":{"Blocks":[{"BlockType":"TABLE"}]}}`, false},
		{"confidence out of range", `{"receipt_id":"6f1c2a52-8a3e-4c39-9a51-2f0f3c1d8e11","processed_at":"2024-03-12T10:00:00Z","processor_version":"v1","textract_response":{"Blocks":[{"BlockType":"LINE","Confidence":120}]}}`, false},
		{"not json", `{`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateArtifact([]byte(tc.body))
			if (err == nil) != tc.ok {
				t.Errorf("ValidateArtifact err = %v, want ok=%v", err, tc.ok)
			}
		})
	}
}

func TestCentsRounding(t *testing.T) {
	v := 0.1 + 0.2
	if got := cents(&v); *got != 0.3 {
		t.Errorf("cents(0.1+0.2) = %v", *got)
	}
	if cents(nil) != nil {
		t.Error("cents(nil) != nil")
	}
}
