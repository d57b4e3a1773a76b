// Package persist stores OCR artifacts and applies derived fields to receipts.
package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/receipts-ocr-worker/constants"
	"github.com/joseph-ayodele/receipts-ocr-worker/internal/common"
	"github.com/joseph-ayodele/receipts-ocr-worker/internal/entity"
	"github.com/joseph-ayodele/receipts-ocr-worker/internal/extract"
	"github.com/joseph-ayodele/receipts-ocr-worker/internal/ocr"
	"github.com/joseph-ayodele/receipts-ocr-worker/internal/reconcile"
	"github.com/joseph-ayodele/receipts-ocr-worker/internal/repository"
	"github.com/joseph-ayodele/receipts-ocr-worker/internal/storage"
)

// Result is everything one job derived for a receipt.
type Result struct {
	ReceiptID  uuid.UUID
	Document   *ocr.Document
	Fields     extract.Fields
	Reconcile  reconcile.Result
	Confidence float64
}

// Outcome reports what Persist did.
type Outcome struct {
	ArtifactKey string
	Applied     bool // false when the receipt was already ocr_done
}

type Writer struct {
	artifacts        storage.ObjectStore
	receipts         repository.ReceiptRepository
	prefix           string
	processorVersion string
	logger           *slog.Logger
	now              func() time.Time
}

func NewWriter(artifacts storage.ObjectStore, receipts repository.ReceiptRepository, prefix, processorVersion string, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	if processorVersion == "" {
		processorVersion = constants.DefaultProcessorVersion
	}
	return &Writer{
		artifacts:        artifacts,
		receipts:         receipts,
		prefix:           prefix,
		processorVersion: processorVersion,
		logger:           logger,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// Persist uploads the artifact, then updates the receipt unless it is
// already ocr_done. Running it twice for the same receipt is safe.
func (w *Writer) Persist(ctx context.Context, res Result) (Outcome, error) {
	log := common.LoggerFromContext(ctx, w.logger)
	if res.Document == nil {
		return Outcome{}, common.NewAppError("EMPTY_RESULT", "no OCR document to persist", common.ErrInvalidInput)
	}

	key := ArtifactKey(w.prefix, res.ReceiptID)
	body, err := w.encodeArtifact(res)
	if err != nil {
		return Outcome{}, err
	}
	if err := w.artifacts.Put(ctx, key, body, constants.ArtifactContentType); err != nil {
		return Outcome{}, fmt.Errorf("upload artifact %s: %w", key, err)
	}
	log.Debug("persist.artifact.stored", "artifact_key", key, "bytes", len(body))

	applied, err := w.receipts.ApplyOCRResult(ctx, res.ReceiptID, buildUpdate(key, res))
	if err != nil {
		return Outcome{ArtifactKey: key}, fmt.Errorf("update receipt: %w", err)
	}
	if !applied {
		log.Info("persist.receipt.already_done", "artifact_key", key)
	}
	return Outcome{ArtifactKey: key, Applied: applied}, nil
}

func (w *Writer) encodeArtifact(res Result) ([]byte, error) {
	doc := *res.Document
	if doc.Blocks == nil {
		doc.Blocks = []ocr.Block{}
	}
	body, err := json.Marshal(Artifact{
		ReceiptID:        res.ReceiptID,
		TextractResponse: &doc,
		ProcessedAt:      w.now(),
		ProcessorVersion: w.processorVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal artifact: %w", err)
	}
	if err := ValidateArtifact(body); err != nil {
		return nil, common.NewAppError("INVALID_ARTIFACT", "artifact failed validation", fmt.Errorf("%w: %v", common.ErrValidation, err))
	}
	return body, nil
}

func buildUpdate(key string, res Result) entity.ReceiptOCRUpdate {
	upd := entity.ReceiptOCRUpdate{
		Merchant: res.Fields.Vendor,
		Total:    cents(res.Reconcile.Total),
		Subtotal: cents(res.Fields.Subtotal),
		Tax:      cents(res.Fields.Tax),
		TaxRate:  round(res.Fields.TaxRate, 4),
		RawOCR: entity.RawOCR{
			ArtifactKey:   key,
			Confidence:    decimal.NewFromFloat(res.Confidence).Round(4).InexactFloat64(),
			ExtractedDate: res.Fields.Date,
		},
	}
	if res.Reconcile.Reconciled {
		upd.RawOCR.ReconciledTotal = upd.Total
	}
	return upd
}

func cents(v *float64) *float64 { return round(v, 2) }

func round(v *float64, places int32) *float64 {
	if v == nil {
		return nil
	}
	r := decimal.NewFromFloat(*v).Round(places).InexactFloat64()
	return &r
}
