package persist

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/receipts-ocr-worker/internal/ocr"
)

// Artifact is the raw OCR output stored once per receipt.
type Artifact struct {
	ReceiptID        uuid.UUID     `json:"receipt_id"`
	TextractResponse *ocr.Document `json:"textract_response"`
	ProcessedAt      time.Time     `json:"processed_at"`
	ProcessorVersion string        `json:"processor_version"`
}

// ArtifactKey is the deterministic storage key for a receipt's artifact.
func ArtifactKey(prefix string, receiptID uuid.UUID) string {
	return prefix + receiptID.String() + ".json"
}

var artifactSchema = map[string]any{
	"type":     "object",
	"required": []any{"receipt_id", "textract_response", "processed_at", "processor_version"},
	"properties": map[string]any{
		"receipt_id":        map[string]any{"type": "string", "format": "uuid"},
		"processed_at":      map[string]any{"type": "string", "format": "date-time"},
		"processor_version": map[string]any{"type": "string", "minLength": 1},
		"textract_response": map[string]any{
			"type":     "object",
			"required": []any{"Blocks"},
			"properties": map[string]any{
				"Blocks": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type":     "object",
						"required": []any{"BlockType"},
						"properties": map[string]any{
							"BlockType":  map[string]any{"enum": []any{"PAGE", "LINE", "WORD"}},
							"Text":       map[string]any{"type": "string"},
							"Confidence": map[string]any{"type": "number", "minimum": 0, "maximum": 100},
						},
					},
				},
			},
		},
	},
}

var (
	compileOnce    sync.Once
	compiledSchema *jsonschema.Schema
	compileErr     error
)

func schema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		b, err := json.Marshal(artifactSchema)
		if err != nil {
			compileErr = fmt.Errorf("marshal schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		compiler.AssertFormat = true
		if err := compiler.AddResource("artifact.json", bytes.NewReader(b)); err != nil {
			compileErr = fmt.Errorf("add schema: %w", err)
			return
		}
		compiledSchema, compileErr = compiler.Compile("artifact.json")
		if compileErr != nil {
			compileErr = fmt.Errorf("compile schema: %w", compileErr)
		}
	})
	return compiledSchema, compileErr
}

// ValidateArtifact checks serialized artifact bytes against the artifact schema.
func ValidateArtifact(data []byte) error {
	s, err := schema()
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal artifact: %w", err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("artifact does not match schema: %w", err)
	}
	return nil
}
