package main

import (
	"context"
	"fmt"
	"net/http"

	"entgo.io/ent/dialect/sql"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/joseph-ayodele/receipts-ocr-worker/internal/common"
	"github.com/joseph-ayodele/receipts-ocr-worker/internal/core"
	"github.com/joseph-ayodele/receipts-ocr-worker/internal/core/persist"
	"github.com/joseph-ayodele/receipts-ocr-worker/internal/export"
	"github.com/joseph-ayodele/receipts-ocr-worker/internal/ocr"
	"github.com/joseph-ayodele/receipts-ocr-worker/internal/ocr/textract"
	"github.com/joseph-ayodele/receipts-ocr-worker/internal/ocr/vision"
	"github.com/joseph-ayodele/receipts-ocr-worker/internal/repository"
	"github.com/joseph-ayodele/receipts-ocr-worker/internal/secrets"
	"github.com/joseph-ayodele/receipts-ocr-worker/internal/secrets/awssm"
	"github.com/joseph-ayodele/receipts-ocr-worker/internal/storage"
)

// database is an open connection plus the repositories built on it.
type database struct {
	drv      *sql.Driver
	pool     *pgxpool.Pool
	jobs     repository.JobQueueRepository
	receipts repository.ReceiptRepository
}

func (d *database) Close() { repository.Close(d.drv, d.pool, logger) }

// resolveSecrets fills credentials from the configured provider. There is
// no cache: each process resolves once at startup.
func resolveSecrets(ctx context.Context, c *common.Config) error {
	var p secrets.Provider = secrets.EnvProvider{}
	if c.Secrets.Provider == "aws" {
		awsCfg, err := storage.LoadAWSConfig(ctx, c.Storage.Region, "", "")
		if err != nil {
			return err
		}
		p = awssm.New(awsCfg, logger)
	}
	return secrets.Apply(ctx, p, c)
}

func openDatabase(ctx context.Context, c *common.Config) (*database, error) {
	if err := resolveSecrets(ctx, c); err != nil {
		return nil, err
	}
	if err := c.ValidateDatabase(); err != nil {
		return nil, err
	}
	drv, pool, err := repository.Connect(ctx, repository.ConfigFrom(c.Database), logger)
	if err != nil {
		return nil, err
	}
	if c.Database.AutoMigrate {
		if err := repository.Migrate(ctx, drv, logger); err != nil {
			repository.Close(drv, pool, logger)
			return nil, err
		}
	}
	return &database{
		drv:      drv,
		pool:     pool,
		jobs:     repository.NewJobQueueRepository(drv, logger),
		receipts: repository.NewReceiptRepository(drv, logger),
	}, nil
}

// objectStore returns the S3 bucket when set, else a local directory store.
func objectStore(ctx context.Context, c *common.Config, bucket, dir string) (storage.ObjectStore, error) {
	switch {
	case bucket != "":
		s3, err := storage.NewS3Store(ctx, storage.S3Config{
			Bucket:          bucket,
			Region:          c.Storage.Region,
			Endpoint:        c.Storage.Endpoint,
			AccessKeyID:     c.Storage.AccessKeyID,
			SecretAccessKey: c.Storage.SecretAccessKey,
		}, logger)
		if err != nil {
			return nil, err
		}
		return s3, nil
	case dir != "":
		local, err := storage.NewFileStore(dir, logger)
		if err != nil {
			return nil, err
		}
		return local, nil
	default:
		// Only external image URLs can be fetched.
		return nil, nil
	}
}

func ocrBreaker(c *common.Config, name string) common.BreakerConfig {
	return common.BreakerConfig{
		Name:         name,
		MaxRequests:  c.OCR.BreakerMaxRequests,
		Interval:     c.OCR.BreakerInterval,
		Timeout:      c.OCR.BreakerTimeout,
		MinRequests:  c.OCR.BreakerMinRequests,
		FailureRatio: c.OCR.BreakerFailureRatio,
	}
}

// newOCR builds the configured provider behind a circuit breaker. The
// returned func releases provider clients.
func newOCR(ctx context.Context, c *common.Config) (ocr.Service, func(), error) {
	noop := func() {}
	var svc ocr.Service
	release := noop
	switch c.OCR.Provider {
	case "textract":
		awsCfg, err := storage.LoadAWSConfig(ctx, c.OCR.Region, c.Storage.AccessKeyID, c.Storage.SecretAccessKey)
		if err != nil {
			return nil, noop, err
		}
		svc = textract.New(awsCfg, c.OCR.Timeout, logger)
	case "vision":
		v, err := vision.New(ctx, vision.Config{
			CredentialsJSON: c.OCR.VisionCredentialsJSON,
			CredentialsFile: c.OCR.VisionCredentialsFile,
			Timeout:         c.OCR.Timeout,
		}, logger)
		if err != nil {
			return nil, noop, err
		}
		svc = v
		release = func() {
			if err := v.Close(); err != nil {
				logger.Warn("closing vision client", "error", err)
			}
		}
	case "tesseract":
		svc = ocr.NewTesseract(ocr.TesseractConfig{
			Binary: c.OCR.TesseractBinary,
			Lang:   c.OCR.TesseractLang,
			PSM:    c.OCR.TesseractPSM,
		}, logger)
	default:
		return nil, noop, fmt.Errorf("unknown OCR provider %q", c.OCR.Provider)
	}
	return ocr.WithBreaker(svc, ocrBreaker(c, "ocr."+c.OCR.Provider), logger), release, nil
}

// worker is the full processing stack.
type worker struct {
	db      *database
	proc    *core.Processor
	export  *export.Service
	release func()
}

func (w *worker) Close() {
	w.release()
	w.db.Close()
}

func buildWorker(ctx context.Context, c *common.Config) (*worker, error) {
	db, err := openDatabase(ctx, c)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		db.Close()
		return nil, err
	}

	artifacts, err := objectStore(ctx, c, c.Storage.ArtifactBucket, c.Storage.ArtifactDir)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("artifact store: %w", err)
	}
	images, err := objectStore(ctx, c, c.Storage.ImageBucket, c.Storage.ImageDir)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("image store: %w", err)
	}
	httpSrc := storage.NewHTTPSource(&http.Client{Timeout: c.Storage.HTTPTimeout}, common.BreakerConfig{
		Name:        "image.http",
		MaxRequests: 1,
		Interval:    c.OCR.BreakerInterval,
		Timeout:     c.OCR.BreakerTimeout,
	}, logger)

	ocrSvc, release, err := newOCR(ctx, c)
	if err != nil {
		db.Close()
		return nil, err
	}

	writer := persist.NewWriter(artifacts, db.receipts, c.Storage.ArtifactPrefix, c.Queue.ProcessorVersion, logger)
	proc := core.NewProcessor(logger, db.jobs, storage.NewResolver(images, httpSrc), ocrSvc, writer, core.ConfigFrom(c.Queue))

	logger.Info("worker ready",
		"ocr_provider", c.OCR.Provider,
		"db_driver", c.Database.Driver,
		"batch_size", c.Queue.BatchSize,
		"max_attempts", c.Queue.MaxAttempts,
	)
	return &worker{db: db, proc: proc, export: export.NewService(db.jobs, logger), release: release}, nil
}
