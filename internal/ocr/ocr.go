// Package ocr defines the text detection contract the worker depends on and
// the provider-neutral document shape every adapter returns.
package ocr

import "context"

// BlockType classifies a detected block. Only LINE blocks feed the extractors.
type BlockType string

const (
	BlockTypePage BlockType = "PAGE"
	BlockTypeLine BlockType = "LINE"
	BlockTypeWord BlockType = "WORD"
)

// Block is one unit of detected text. Confidence is on a 0-100 scale.
type Block struct {
	ID         string    `json:"Id,omitempty"`
	BlockType  BlockType `json:"BlockType"`
	Text       string    `json:"Text,omitempty"`
	Confidence *float64  `json:"Confidence,omitempty"`
	Page       int       `json:"Page,omitempty"`
}

// DocumentMetadata mirrors the metadata section of a text detection response.
type DocumentMetadata struct {
	Pages int `json:"Pages"`
}

// Document is the raw detection output. It is stored verbatim in the artifact.
type Document struct {
	Provider         string           `json:"Provider"`
	ModelVersion     string           `json:"DetectDocumentTextModelVersion,omitempty"`
	DocumentMetadata DocumentMetadata `json:"DocumentMetadata"`
	Blocks           []Block          `json:"Blocks"`
}

// Lines returns the normalized text of every LINE block in detection order.
func (d *Document) Lines() []string {
	if d == nil {
		return nil
	}
	out := make([]string, 0, len(d.Blocks))
	for _, b := range d.Blocks {
		if b.BlockType != BlockTypeLine {
			continue
		}
		out = append(out, NormalizeLine(b.Text))
	}
	return out
}

// Service detects text in a single image.
type Service interface {
	DetectText(ctx context.Context, image []byte) (*Document, error)
}

// ServiceFunc adapts a function to Service.
type ServiceFunc func(ctx context.Context, image []byte) (*Document, error)

func (f ServiceFunc) DetectText(ctx context.Context, image []byte) (*Document, error) {
	return f(ctx, image)
}
