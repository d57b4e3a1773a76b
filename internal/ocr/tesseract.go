package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

const tesseractProvider = "tesseract"

// TesseractConfig configures the local tesseract provider.
type TesseractConfig struct {
	Binary      string // default "tesseract"
	Lang        string // default "eng"
	TessdataDir string
	PSM         int // page segmentation mode, 0 = tesseract default
	TempDir     string
}

// Tesseract runs the tesseract CLI in TSV mode and groups words into lines.
// It is meant for local runs without cloud credentials.
type Tesseract struct {
	cfg    TesseractConfig
	runner Runner
	logger *slog.Logger
}

func NewTesseract(cfg TesseractConfig, logger *slog.Logger) *Tesseract {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Binary == "" {
		cfg.Binary = "tesseract"
	}
	if cfg.Lang == "" {
		cfg.Lang = "eng"
	}
	return &Tesseract{cfg: cfg, runner: execRunner{logger: logger}, logger: logger}
}

// WithRunner replaces the command runner.
func (t *Tesseract) WithRunner(r Runner) *Tesseract {
	t.runner = r
	return t
}

func (t *Tesseract) DetectText(ctx context.Context, image []byte) (*Document, error) {
	if len(image) == 0 {
		return nil, NewError("tesseract.DetectText", ErrEmptyDocument, "empty image")
	}
	f, err := os.CreateTemp(t.cfg.TempDir, "receipt-*.img")
	if err != nil {
		return nil, fmt.Errorf("create temp image: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)
	if _, err := f.Write(image); err != nil {
		f.Close()
		return nil, fmt.Errorf("write temp image: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close temp image: %w", err)
	}

	args := []string{path, "stdout", "-l", t.cfg.Lang}
	if t.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(t.cfg.PSM))
	}
	if t.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", t.cfg.TessdataDir)
	}
	args = append(args, "tsv")

	out, errb, err := t.runner.Run(ctx, t.cfg.Binary, args...)
	if err != nil {
		return nil, NewError("tesseract.DetectText", err, truncate(string(errb), 512))
	}
	doc := parseTSV(string(out))
	if len(doc.Blocks) == 0 {
		return nil, NewError("tesseract.DetectText", ErrEmptyDocument, "")
	}
	t.logger.Debug("tesseract detected lines", "lines", len(doc.Blocks), "pages", doc.DocumentMetadata.Pages)
	return doc, nil
}

type tsvLineKey struct {
	page, block, par, line int
}

type tsvLine struct {
	words []string
	conf  float64
	n     int
}

// parseTSV groups word rows (level 5) by page/block/paragraph/line. A line's
// confidence is the mean of its word confidences; -1 marks "no confidence".
func parseTSV(tsv string) *Document {
	doc := &Document{Provider: tesseractProvider}
	var order []tsvLineKey
	lines := map[tsvLineKey]*tsvLine{}

	for i, row := range strings.Split(tsv, "\n") {
		if i == 0 || strings.TrimSpace(row) == "" {
			continue // header
		}
		cols := strings.Split(strings.TrimRight(row, "\r"), "\t")
		if len(cols) < 12 || cols[0] != "5" {
			continue
		}
		text := strings.TrimSpace(cols[11])
		if text == "" {
			continue
		}
		var k tsvLineKey
		k.page, _ = strconv.Atoi(cols[1])
		k.block, _ = strconv.Atoi(cols[2])
		k.par, _ = strconv.Atoi(cols[3])
		k.line, _ = strconv.Atoi(cols[4])
		if k.page > doc.DocumentMetadata.Pages {
			doc.DocumentMetadata.Pages = k.page
		}

		l, ok := lines[k]
		if !ok {
			l = &tsvLine{}
			lines[k] = l
			order = append(order, k)
		}
		l.words = append(l.words, text)
		if c, err := strconv.ParseFloat(cols[10], 64); err == nil && c >= 0 {
			l.conf += c
			l.n++
		}
	}

	for i, k := range order {
		l := lines[k]
		b := Block{
			ID:        fmt.Sprintf("line-%d", i+1),
			BlockType: BlockTypeLine,
			Text:      strings.Join(l.words, " "),
			Page:      k.page,
		}
		if l.n > 0 {
			c := l.conf / float64(l.n)
			b.Confidence = &c
		}
		doc.Blocks = append(doc.Blocks, b)
	}
	return doc
}
