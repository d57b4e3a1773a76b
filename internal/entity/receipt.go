package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Receipt represents a receipt for data transfer between layers.
type Receipt struct {
	ID        uuid.UUID       `json:"id"`
	Merchant  *string         `json:"merchant,omitempty"`
	Total     *float64        `json:"total,omitempty"`
	Subtotal  *float64        `json:"subtotal,omitempty"`
	Tax       *float64        `json:"tax,omitempty"`
	TaxRate   *float64        `json:"tax_rate,omitempty"`
	Status    *string         `json:"status,omitempty"`
	RawOCR    json.RawMessage `json:"raw_ocr,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// RawOCR is the derived metadata stored in receipts.raw_ocr.
type RawOCR struct {
	ArtifactKey     string   `json:"artifact_key"`
	Confidence      float64  `json:"confidence"`
	ExtractedDate   *string  `json:"extracted_date"`
	ReconciledTotal *float64 `json:"reconciled_total,omitempty"`
}

// ReceiptOCRUpdate carries the derived fields written once per receipt.
type ReceiptOCRUpdate struct {
	Merchant string
	Total    *float64
	Subtotal *float64
	Tax      *float64
	TaxRate  *float64
	RawOCR   RawOCR
}
