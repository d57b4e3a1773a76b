// Package vision adapts Google Cloud Vision document text detection to
// ocr.Service.
package vision

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/api/option"

	"github.com/joseph-ayodele/receipts-ocr-worker/internal/ocr"
)

// MaxImageBytes is the inline content limit for a single image request.
const MaxImageBytes = 20 * 1024 * 1024

// Config picks the credentials used to build the client. Inline JSON wins
// over a credentials file; with neither, application default credentials apply.
type Config struct {
	CredentialsJSON string
	CredentialsFile string
	Timeout         time.Duration
}

type Service struct {
	client  *vision.ImageAnnotatorClient
	timeout time.Duration
	logger  *slog.Logger
}

func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Service, error) {
	const op = "vision.New"
	if logger == nil {
		logger = slog.Default()
	}
	var opts []option.ClientOption
	switch {
	case cfg.CredentialsJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		return nil, ocr.NewError(op, err, "failed to create image annotator client")
	}
	return &Service{client: client, timeout: cfg.Timeout, logger: logger}, nil
}

func (s *Service) DetectText(ctx context.Context, image []byte) (*ocr.Document, error) {
	const op = "vision.DetectText"
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

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image: &visionpb.Image{Content: image},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION},
				},
			},
		},
	}
	resp, err := s.client.BatchAnnotateImages(ctx, req)
	if err != nil {
		return nil, ocr.NewError(op, err, "Vision API call failed")
	}
	if len(resp.Responses) == 0 {
		return nil, ocr.NewError(op, ocr.ErrEmptyDocument, "no response from Vision API")
	}
	r := resp.Responses[0]
	if r.Error != nil {
		return nil, ocr.NewError(op, fmt.Errorf("vision: %s", r.Error.GetMessage()), "")
	}
	doc := ToDocument(r.FullTextAnnotation)
	s.logger.Debug("vision detected text", "lines", len(doc.Blocks), "pages", doc.DocumentMetadata.Pages)
	return doc, nil
}

// Close closes the underlying Vision client.
func (s *Service) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// ToDocument rebuilds text lines from a full text annotation. Vision reports
// words, not lines, so a line ends at every LINE_BREAK, EOL_SURE_SPACE or
// HYPHEN break. A line's confidence is the mean confidence of its words.
func ToDocument(ann *visionpb.TextAnnotation) *ocr.Document {
	doc := &ocr.Document{Provider: "vision"}
	if ann == nil {
		return doc
	}
	doc.DocumentMetadata.Pages = len(ann.GetPages())

	var (
		text    strings.Builder
		confSum float64
		words   int
	)
	flush := func(page int) {
		line := strings.TrimSpace(text.String())
		if line != "" {
			b := ocr.Block{
				ID:        fmt.Sprintf("line-%d", len(doc.Blocks)+1),
				BlockType: ocr.BlockTypeLine,
				Text:      line,
				Page:      page,
			}
			if words > 0 {
				c := confSum / float64(words) * 100
				b.Confidence = &c
			}
			doc.Blocks = append(doc.Blocks, b)
		}
		text.Reset()
		confSum, words = 0, 0
	}

	for pi, page := range ann.GetPages() {
		for _, block := range page.GetBlocks() {
			for _, para := range block.GetParagraphs() {
				for _, word := range para.GetWords() {
					confSum += float64(word.GetConfidence())
					words++
					for _, sym := range word.GetSymbols() {
						text.WriteString(sym.GetText())
						switch sym.GetProperty().GetDetectedBreak().GetType() {
						case visionpb.TextAnnotation_DetectedBreak_SPACE,
							visionpb.TextAnnotation_DetectedBreak_SURE_SPACE:
							text.WriteByte(' ')
						case visionpb.TextAnnotation_DetectedBreak_EOL_SURE_SPACE,
							visionpb.TextAnnotation_DetectedBreak_LINE_BREAK,
							visionpb.TextAnnotation_DetectedBreak_HYPHEN:
							flush(pi + 1)
						}
					}
				}
			}
			flush(pi + 1)
		}
	}
	return doc
}
