package textract

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"

	"github.com/joseph-ayodele/receipts-ocr-worker/internal/ocr"
)

type fakeAPI struct {
	out *textract.DetectDocumentTextOutput
	err error
	got *textract.DetectDocumentTextInput
}

func (f *fakeAPI) DetectDocumentText(_ context.Context, in *textract.DetectDocumentTextInput, _ ...func(*textract.Options)) (*textract.DetectDocumentTextOutput, error) {
	f.got = in
	return f.out, f.err
}

func TestDetectText(t *testing.T) {
	api := &fakeAPI{out: &textract.DetectDocumentTextOutput{
		DetectDocumentTextModelVersion: aws.String("1.0"),
		DocumentMetadata:               &types.DocumentMetadata{Pages: aws.Int32(1)},
		Blocks: []types.Block{
			{BlockType: types.BlockTypePage, Id: aws.String("p1")},
			{BlockType: types.BlockTypeLine, Id: aws.String("l1"), Text: aws.String("MART"), Confidence: aws.Float32(98.5)},
			{BlockType: types.BlockTypeWord, Id: aws.String("w1"), Text: aws.String("MART"), Confidence: aws.Float32(98.5)},
			{BlockType: types.BlockTypeLine, Id: aws.String("l2"), Text: aws.String("Total 12.72")},
		},
	}}
	svc := NewWithAPI(api, 0, nil)

	doc, err := svc.DetectText(context.Background(), []byte("jpeg"))
	if err != nil {
		t.Fatalf("DetectText: %v", err)
	}
	if string(api.got.Document.Bytes) != "jpeg" {
		t.Errorf("document bytes not forwarded")
	}
	if got := strings.Join(doc.Lines(), "|"); got != "MART|Total 12.72" {
		t.Errorf("lines = %q", got)
	}
	if doc.Provider != "textract" || doc.ModelVersion != "1.0" || doc.DocumentMetadata.Pages != 1 {
		t.Errorf("doc = %+v", doc)
	}
	if c := ocr.AggregateConfidence(doc.Blocks); math.Abs(c-0.985) > 1e-6 {
		t.Errorf("confidence = %v", c)
	}
}

func TestDetectTextErrors(t *testing.T) {
	svc := NewWithAPI(&fakeAPI{err: errors.New("ThrottlingException")}, 0, nil)
	if _, err := svc.DetectText(context.Background(), []byte("x")); !errors.Is(err, ocr.ErrProviderFailed) {
		t.Errorf("provider error = %v", err)
	}
	if _, err := svc.DetectText(context.Background(), nil); !errors.Is(err, ocr.ErrEmptyDocument) {
		t.Errorf("empty error = %v", err)
	}
	_, err := svc.DetectText(context.Background(), make([]byte, MaxImageBytes+1))
	if !errors.Is(err, ocr.ErrImageTooLarge) || errors.Is(err, ocr.ErrProviderFailed) {
		t.Errorf("oversized image err = %v", err)
	}
}
