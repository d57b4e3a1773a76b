// Package server exposes the worker over gRPC.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/joseph-ayodele/receipts-ocr-worker/internal/async"
	"github.com/joseph-ayodele/receipts-ocr-worker/internal/common"
	"github.com/joseph-ayodele/receipts-ocr-worker/internal/core"
	coreasync "github.com/joseph-ayodele/receipts-ocr-worker/internal/core/async"
	"github.com/joseph-ayodele/receipts-ocr-worker/internal/export"
	"github.com/joseph-ayodele/receipts-ocr-worker/internal/repository"
)

// WorkerService triggers batches and reports on the queue.
type WorkerService struct {
	proc   coreasync.Batcher
	queue  async.Queue // nil: async requests are rejected
	jobs   repository.JobQueueRepository
	export *export.Service
	logger *slog.Logger
}

func NewWorkerService(proc coreasync.Batcher, queue async.Queue, jobs repository.JobQueueRepository, exp *export.Service, logger *slog.Logger) *WorkerService {
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkerService{proc: proc, queue: queue, jobs: jobs, export: exp, logger: logger}
}

var _ WorkerServer = (*WorkerService)(nil)

// ProcessBatch runs one batch inline, or hands it to the batch queue when
// the request sets "async": true.
func (s *WorkerService) ProcessBatch(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req.GetFields()["async"].GetBoolValue() {
		if s.queue == nil {
			return nil, common.InvalidArgumentError("async processing is not enabled")
		}
		if err := s.queue.Enqueue(ctx, async.Trigger{Reason: "rpc"}); err != nil {
			s.logger.Warn("rpc.process_batch.enqueue_failed", "error", err)
			return nil, common.UnavailableError("batch queue unavailable")
		}
		return structpb.NewStruct(map[string]any{"queued": true})
	}

	res, err := s.proc.ProcessBatch(ctx)
	if err != nil {
		s.logger.Error("rpc.process_batch.failed", "error", err)
		return nil, common.ToStatus(err)
	}
	return batchResultStruct(res)
}

func batchResultStruct(res core.BatchResult) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"leased":        res.Leased,
		"succeeded":     res.Succeeded,
		"failed":        res.Failed,
		"dead_lettered": res.DeadLettered,
		"swept":         res.Swept,
	})
}

func (s *WorkerService) QueueStats(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	st, err := s.jobs.Stats(ctx)
	if err != nil {
		s.logger.Error("rpc.queue_stats.failed", "error", err)
		return nil, common.ToStatus(err)
	}
	return structpb.NewStruct(map[string]any{
		"pending":       st.Pending,
		"done":          st.Done,
		"dead_lettered": st.DeadLettered,
	})
}

// Enqueue adds a job for {"receipt_id", "image_key"}.
func (s *WorkerService) Enqueue(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := req.GetFields()
	rid, err := uuid.Parse(strings.TrimSpace(f["receipt_id"].GetStringValue()))
	if err != nil {
		return nil, common.InvalidArgumentError("receipt_id must be a UUID")
	}
	key := strings.TrimSpace(f["image_key"].GetStringValue())
	if key == "" {
		return nil, common.InvalidArgumentError("image_key is required")
	}
	job, err := s.jobs.Enqueue(ctx, rid, key)
	if err != nil {
		s.logger.Error("rpc.enqueue.failed", "receipt_id", rid, "error", err)
		return nil, common.ToStatus(err)
	}
	return structpb.NewStruct(map[string]any{
		"job_id":      job.ID.String(),
		"receipt_id":  job.ReceiptID.String(),
		"enqueued_at": job.EnqueuedAt.Format("2006-01-02T15:04:05.999999Z07:00"),
	})
}

// ExportDeadLetters returns an XLSX workbook; the request value is the row limit.
func (s *WorkerService) ExportDeadLetters(ctx context.Context, req *wrapperspb.Int32Value) (*wrapperspb.BytesValue, error) {
	if s.export == nil {
		return nil, common.UnavailableError("export is not configured")
	}
	b, err := s.export.DeadLettersXLSX(ctx, int(req.GetValue()))
	if err != nil {
		s.logger.Error("rpc.export_dead_letters.failed", "error", err)
		return nil, common.InternalError(fmt.Sprintf("export failed: %v", err))
	}
	return wrapperspb.Bytes(b), nil
}
