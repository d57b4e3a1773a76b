// Package core drives OCR jobs from lease to persisted receipt.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/receipts-ocr-worker/constants"
	"github.com/joseph-ayodele/receipts-ocr-worker/internal/common"
	"github.com/joseph-ayodele/receipts-ocr-worker/internal/core/persist"
	"github.com/joseph-ayodele/receipts-ocr-worker/internal/entity"
	"github.com/joseph-ayodele/receipts-ocr-worker/internal/extract"
	"github.com/joseph-ayodele/receipts-ocr-worker/internal/ocr"
	"github.com/joseph-ayodele/receipts-ocr-worker/internal/reconcile"
	"github.com/joseph-ayodele/receipts-ocr-worker/internal/repository"
	"github.com/joseph-ayodele/receipts-ocr-worker/internal/storage"
)

// Config bounds one batch.
type Config struct {
	BatchSize        int
	MaxAttempts      int
	JobTimeout       time.Duration
	LeaseTTL         time.Duration
	ProcessorVersion string
}

// ConfigFrom maps the queue section of the app config.
func ConfigFrom(q common.QueueConfig) Config {
	return Config{
		BatchSize:        q.BatchSize,
		MaxAttempts:      q.MaxAttempts,
		JobTimeout:       q.JobTimeout,
		LeaseTTL:         q.LeaseTTL,
		ProcessorVersion: q.ProcessorVersion,
	}
}

// BatchResult counts what one ProcessBatch call did.
type BatchResult struct {
	Leased       int `json:"leased"`
	Succeeded    int `json:"succeeded"`
	Failed       int `json:"failed"`
	DeadLettered int `json:"dead_lettered"`
	Swept        int `json:"swept"` // stale final-attempt leases dead-lettered before leasing
}

// Processor runs leased jobs: fetch image, OCR, extract, reconcile, persist.
type Processor struct {
	logger *slog.Logger
	jobs   repository.JobQueueRepository
	images storage.ImageSource
	ocr    ocr.Service
	writer *persist.Writer
	cfg    Config
}

func NewProcessor(
	logger *slog.Logger,
	jobs repository.JobQueueRepository,
	images storage.ImageSource,
	ocrSvc ocr.Service,
	writer *persist.Writer,
	cfg Config,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 2 * time.Minute
	}
	if cfg.ProcessorVersion == "" {
		cfg.ProcessorVersion = constants.DefaultProcessorVersion
	}
	return &Processor{
		logger: logger,
		jobs:   jobs,
		images: images,
		ocr:    ocrSvc,
		writer: writer,
		cfg:    cfg,
	}
}

// ProcessBatch leases up to BatchSize jobs and runs them one at a time in
// enqueue order. A failing job is recorded and never aborts the batch. The
// returned error is only for failures to lease.
func (p *Processor) ProcessBatch(ctx context.Context) (BatchResult, error) {
	var res BatchResult
	start := time.Now()

	if p.cfg.LeaseTTL > 0 {
		n, err := p.jobs.DeadLetterStale(ctx, p.cfg.MaxAttempts, p.cfg.LeaseTTL)
		if err != nil {
			p.logger.Warn("processor.sweep.failed", "error", err)
		}
		res.Swept = n
	}

	jobs, err := p.jobs.Lease(ctx, p.cfg.BatchSize, p.cfg.MaxAttempts)
	if err != nil {
		return res, fmt.Errorf("lease jobs: %w", err)
	}
	res.Leased = len(jobs)
	if len(jobs) == 0 {
		p.logger.Debug("processor.batch.empty", "swept", res.Swept)
		return res, nil
	}

	for _, job := range jobs {
		if ctx.Err() != nil {
			// Remaining jobs keep their lease and incremented attempts.
			p.logger.Warn("processor.batch.interrupted", "remaining", res.Leased-res.Succeeded-res.Failed)
			break
		}
		jobCtx := common.WithJob(ctx, job.ID.String(), job.ReceiptID.String())
		log := common.LoggerFromContext(jobCtx, p.logger)

		jobStart := time.Now()
		out, err := p.runJob(jobCtx, job)
		if err == nil {
			res.Succeeded++
			if doneErr := p.jobs.MarkDone(ctx, job.ID, p.cfg.ProcessorVersion); doneErr != nil {
				// The receipt is already written; the next lease re-runs the
				// job and the guarded update turns it into a no-op.
				log.Error("processor.job.mark_done_failed", "attempts", job.Attempts, "error", doneErr)
				continue
			}
			log.Info("processor.job.done",
				"attempts", job.Attempts,
				"artifact_key", out.ArtifactKey,
				"applied", out.Applied,
				"duration_ms", time.Since(jobStart).Milliseconds(),
			)
			continue
		}

		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			log.Warn("processor.job.interrupted", "attempts", job.Attempts, "error", err)
			break
		}

		res.Failed++
		log.Error("processor.job.failed", "attempts", job.Attempts, "error", err)
		dead, markErr := p.jobs.MarkFailed(ctx, job.ID, err.Error(), p.cfg.MaxAttempts)
		if markErr != nil {
			log.Error("processor.job.mark_failed", "error", markErr)
			continue
		}
		if dead {
			res.DeadLettered++
			log.Warn("processor.job.dead_lettered", "attempts", job.Attempts, "max_attempts", p.cfg.MaxAttempts)
		}
	}

	p.logger.Info("processor.batch.done",
		"leased", res.Leased,
		"succeeded", res.Succeeded,
		"failed", res.Failed,
		"dead_lettered", res.DeadLettered,
		"swept", res.Swept,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

// runJob does the work for one job under JobTimeout.
func (p *Processor) runJob(ctx context.Context, job *entity.OCRJob) (persist.Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.JobTimeout)
	defer cancel()
	log := common.LoggerFromContext(ctx, p.logger)

	image, err := p.images.Fetch(ctx, job.ImageKey)
	if err != nil {
		return persist.Outcome{}, fmt.Errorf("fetch image: %w", err)
	}
	log.Debug("processor.image.fetched", "bytes", len(image))

	doc, err := p.ocr.DetectText(ctx, image)
	if err != nil {
		return persist.Outcome{}, fmt.Errorf("detect text: %w", err)
	}

	res := Analyze(doc)
	res.ReceiptID = job.ReceiptID
	log.Debug("processor.fields.extracted",
		"vendor", res.Fields.Vendor,
		"lines", len(doc.Lines()),
		"reconciled", res.Reconcile.Reconciled,
		"confidence", res.Confidence,
	)

	out, err := p.writer.Persist(ctx, res)
	if err != nil {
		return out, fmt.Errorf("persist: %w", err)
	}
	return out, nil
}

// Analyze runs extraction, reconciliation and confidence over an OCR
// document. ReceiptID is left for the caller.
func Analyze(doc *ocr.Document) persist.Result {
	fields := extract.FromLines(doc.Lines())
	return persist.Result{
		Document:   doc,
		Fields:     fields,
		Reconcile:  reconcile.Reconcile(fields.Subtotal, fields.Tax, fields.Total),
		Confidence: ocr.AggregateConfidence(doc.Blocks),
	}
}
