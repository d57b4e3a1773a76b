// Package textract adapts AWS Textract DetectDocumentText to ocr.Service.
package textract

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"

	"github.com/joseph-ayodele/receipts-ocr-worker/internal/ocr"
)

// MaxImageBytes is the synchronous DetectDocumentText payload limit.
const MaxImageBytes = 10 * 1024 * 1024

// API is the subset of the Textract client we call.
type API interface {
	DetectDocumentText(ctx context.Context, params *textract.DetectDocumentTextInput, optFns ...func(*textract.Options)) (*textract.DetectDocumentTextOutput, error)
}

type Service struct {
	api     API
	timeout time.Duration
	logger  *slog.Logger
}

// New builds a Service from a loaded AWS config.
func New(cfg aws.Config, timeout time.Duration, logger *slog.Logger) *Service {
	return NewWithAPI(textract.NewFromConfig(cfg), timeout, logger)
}

// NewWithAPI builds a Service around an explicit client.
func NewWithAPI(api API, timeout time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{api: api, timeout: timeout, logger: logger}
}

func (s *Service) DetectText(ctx context.Context, image []byte) (*ocr.Document, error) {
	const op = "textract.DetectText"
	if len(image) == 0 {
		return nil, ocr.NewError(op, ocr.ErrEmptyDocument, "empty image")
	}
	if len(image) > MaxImageBytes {
		return nil, ocr.NewError(op, ocr.ErrImageTooLarge, fmt.Sprintf("size: %d bytes", len(image)))
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := s.api.DetectDocumentText(ctx, &textract.DetectDocumentTextInput{
		Document: &types.Document{Bytes: image},
	})
	if err != nil {
		return nil, ocr.NewError(op, err, "DetectDocumentText failed")
	}
	doc := toDocument(out)
	s.logger.Debug("textract detected text",
		"blocks", len(doc.Blocks),
		"pages", doc.DocumentMetadata.Pages,
		"duration_ms", time.Since(start).Milliseconds())
	return doc, nil
}

func toDocument(out *textract.DetectDocumentTextOutput) *ocr.Document {
	doc := &ocr.Document{Provider: "textract"}
	if out == nil {
		return doc
	}
	doc.ModelVersion = aws.ToString(out.DetectDocumentTextModelVersion)
	if out.DocumentMetadata != nil {
		doc.DocumentMetadata.Pages = int(aws.ToInt32(out.DocumentMetadata.Pages))
	}
	doc.Blocks = make([]ocr.Block, 0, len(out.Blocks))
	for _, b := range out.Blocks {
		blk := ocr.Block{
			ID:        aws.ToString(b.Id),
			BlockType: ocr.BlockType(b.BlockType),
			Text:      aws.ToString(b.Text),
			Page:      int(aws.ToInt32(b.Page)),
		}
		if b.Confidence != nil {
			c := float64(*b.Confidence)
			blk.Confidence = &c
		}
		doc.Blocks = append(doc.Blocks, blk)
	}
	return doc
}
