package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/receipts-ocr-worker/internal/common"
	"github.com/joseph-ayodele/receipts-ocr-worker/internal/entity"
)

const (
	tableJobs        = "ocr_jobs"
	tableDeadLetters = "ocr_dead_letters"

	maxErrorLen = 4000
)

var jobColumns = []string{
	"id", "receipt_id", "image_key", "processed", "attempts",
	"enqueued_at", "leased_at", "last_error", "processor", "dead_lettered_at",
}

var deadLetterColumns = []string{
	"id", "job_id", "receipt_id", "image_key", "attempts", "reason", "created_at",
}

// JobQueueRepository leases OCR jobs and records their outcome.
type JobQueueRepository interface {
	Enqueue(ctx context.Context, receiptID uuid.UUID, imageKey string) (*entity.OCRJob, error)
	Get(ctx context.Context, jobID uuid.UUID) (*entity.OCRJob, error)
	Lease(ctx context.Context, batchSize, maxAttempts int) ([]*entity.OCRJob, error)
	MarkDone(ctx context.Context, jobID uuid.UUID, processor string) error
	MarkFailed(ctx context.Context, jobID uuid.UUID, reason string, maxAttempts int) (deadLettered bool, err error)
	DeadLetterStale(ctx context.Context, maxAttempts int, ttl time.Duration) (int, error)
	Stats(ctx context.Context) (entity.QueueStats, error)
	ListDeadLetters(ctx context.Context, limit int) ([]*entity.DeadLetter, error)
}

type jobQueueRepo struct {
	drv *entsql.Driver
	log *slog.Logger
	now func() time.Time
}

func NewJobQueueRepository(drv *entsql.Driver, log *slog.Logger) JobQueueRepository {
	if log == nil {
		log = slog.Default()
	}
	return &jobQueueRepo{drv: drv, log: log, now: now}
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func dbErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, common.ErrDatabase, err)
}

func (r *jobQueueRepo) builder() *entsql.DialectBuilder {
	return entsql.Dialect(r.drv.Dialect())
}

// lockSkipLocked adds FOR UPDATE SKIP LOCKED where the dialect has row locks.
// SQLite transactions are opened IMMEDIATE, which already serializes writers.
func (r *jobQueueRepo) lockSkipLocked(sel *entsql.Selector) *entsql.Selector {
	if r.drv.Dialect() == dialect.Postgres {
		sel.ForUpdate(entsql.WithLockAction(entsql.SkipLocked))
	}
	return sel
}

func (r *jobQueueRepo) Enqueue(ctx context.Context, receiptID uuid.UUID, imageKey string) (*entity.OCRJob, error) {
	if imageKey == "" {
		return nil, common.NewAppError("INVALID_JOB", "image key is required", common.ErrInvalidInput)
	}
	job := &entity.OCRJob{
		ID:         uuid.New(),
		ReceiptID:  receiptID,
		ImageKey:   imageKey,
		EnqueuedAt: r.now(),
	}
	q, args := r.builder().Insert(tableJobs).
		Columns("id", "receipt_id", "image_key", "processed", "attempts", "enqueued_at").
		Values(job.ID, job.ReceiptID, job.ImageKey, false, 0, job.EnqueuedAt).
		Query()
	if err := r.drv.Exec(ctx, q, args, nil); err != nil {
		r.log.Error("enqueue ocr job failed", "receipt_id", receiptID, "error", err)
		return nil, dbErr("enqueue job", err)
	}
	r.log.Info("ocr job enqueued", "job_id", job.ID, "receipt_id", receiptID, "image_key", imageKey)
	return job, nil
}

func (r *jobQueueRepo) Get(ctx context.Context, jobID uuid.UUID) (*entity.OCRJob, error) {
	b := r.builder()
	sel := b.Select(jobColumns...).From(b.Table(tableJobs)).Where(entsql.EQ("id", jobID))
	jobs, err := queryJobs(ctx, r.drv, sel)
	if err != nil {
		return nil, dbErr("get job", err)
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("job %s: %w", jobID, common.ErrNotFound)
	}
	return jobs[0], nil
}

// Lease claims up to batchSize pending jobs in enqueue order and increments
// their attempts in the same transaction. Rows locked by a concurrent lease
// are skipped, so two leases never return the same job.
func (r *jobQueueRepo) Lease(ctx context.Context, batchSize, maxAttempts int) ([]*entity.OCRJob, error) {
	if batchSize <= 0 {
		return nil, nil
	}
	var jobs []*entity.OCRJob
	err := r.withTx(ctx, func(tx dialect.Tx) error {
		ids, err := queryIDs(ctx, tx, r.leaseSelector(batchSize, maxAttempts))
		if err != nil || len(ids) == 0 {
			return err
		}

		q, args := r.leaseUpdate(ids).Query()
		rows := &entsql.Rows{}
		if err := tx.Query(ctx, q, args, rows); err != nil {
			return err
		}
		jobs, err = scanJobs(rows)
		return err
	})
	if err != nil {
		r.log.Error("lease ocr jobs failed", "batch_size", batchSize, "error", err)
		return nil, dbErr("lease jobs", err)
	}
	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].EnqueuedAt.Equal(jobs[j].EnqueuedAt) {
			return jobs[i].EnqueuedAt.Before(jobs[j].EnqueuedAt)
		}
		return jobs[i].ID.String() < jobs[j].ID.String()
	})
	if len(jobs) > 0 {
		r.log.Info("ocr jobs leased", "count", len(jobs))
	}
	return jobs, nil
}

// leaseSelector picks the ids of the next pending jobs in enqueue order.
func (r *jobQueueRepo) leaseSelector(batchSize, maxAttempts int) *entsql.Selector {
	b := r.builder()
	return r.lockSkipLocked(b.Select("id").From(b.Table(tableJobs)).
		Where(entsql.And(
			entsql.EQ("processed", false),
			entsql.LT("attempts", maxAttempts),
			entsql.IsNull("dead_lettered_at"),
		)).
		OrderBy(entsql.Asc("enqueued_at"), entsql.Asc("id")).
		Limit(batchSize))
}

// leaseUpdate stamps the lease on ids and returns the updated rows.
func (r *jobQueueRepo) leaseUpdate(ids []any) *entsql.UpdateBuilder {
	return r.builder().Update(tableJobs).
		Add("attempts", 1).
		Set("leased_at", r.now()).
		Where(entsql.In("id", ids...)).
		Returning(jobColumns...)
}

// MarkDone flips processed to true. processed is never reset.
func (r *jobQueueRepo) MarkDone(ctx context.Context, jobID uuid.UUID, processor string) error {
	q, args := r.builder().Update(tableJobs).
		Set("processed", true).
		SetNull("last_error").
		Set("processor", processor).
		Where(entsql.And(entsql.EQ("id", jobID), entsql.EQ("processed", false))).
		Query()
	var res sql.Result
	if err := r.drv.Exec(ctx, q, args, &res); err != nil {
		r.log.Error("mark job done failed", "job_id", jobID, "error", err)
		return dbErr("mark done", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		if _, err := r.Get(ctx, jobID); err != nil {
			return err
		}
		r.log.Debug("job already done", "job_id", jobID)
		return nil
	}
	r.log.Info("ocr job done", "job_id", jobID, "processor", processor)
	return nil
}

// MarkFailed records reason as last_error. Once attempts has reached
// maxAttempts the job is copied to the dead-letter table and excluded from
// every later lease.
func (r *jobQueueRepo) MarkFailed(ctx context.Context, jobID uuid.UUID, reason string, maxAttempts int) (bool, error) {
	reason = truncateError(reason)
	var deadLettered bool
	err := r.withTx(ctx, func(tx dialect.Tx) error {
		b := r.builder()
		sel := b.Select(jobColumns...).From(b.Table(tableJobs)).Where(entsql.EQ("id", jobID))
		if r.drv.Dialect() == dialect.Postgres {
			sel.ForUpdate()
		}
		jobs, err := queryJobs(ctx, tx, sel)
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			return fmt.Errorf("job %s: %w", jobID, common.ErrNotFound)
		}
		job := jobs[0]
		if job.Processed {
			return nil
		}

		upd := b.Update(tableJobs).Set("last_error", reason).Where(entsql.EQ("id", jobID))
		if job.Attempts >= maxAttempts && job.DeadLetteredAt == nil {
			if err := r.insertDeadLetter(ctx, tx, job, reason); err != nil {
				return err
			}
			upd.Set("dead_lettered_at", r.now())
			deadLettered = true
		}
		q, args := upd.Query()
		return tx.Exec(ctx, q, args, nil)
	})
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return false, err
		}
		r.log.Error("mark job failed failed", "job_id", jobID, "error", err)
		return false, dbErr("mark failed", err)
	}
	if deadLettered {
		r.log.Warn("ocr job dead-lettered", "job_id", jobID, "reason", reason)
	} else {
		r.log.Warn("ocr job failed", "job_id", jobID, "error", reason)
	}
	return deadLettered, nil
}

// DeadLetterStale dead-letters jobs whose final attempt was leased more than
// ttl ago without finishing. No failure path ran for them, so nothing else
// would ever move them out of the backlog.
func (r *jobQueueRepo) DeadLetterStale(ctx context.Context, maxAttempts int, ttl time.Duration) (int, error) {
	if ttl <= 0 {
		return 0, nil
	}
	var count int
	err := r.withTx(ctx, func(tx dialect.Tx) error {
		b := r.builder()
		cutoff := r.now().Add(-ttl)
		sel := r.lockSkipLocked(b.Select(jobColumns...).From(b.Table(tableJobs)).
			Where(entsql.And(
				entsql.EQ("processed", false),
				entsql.IsNull("dead_lettered_at"),
				entsql.GTE("attempts", maxAttempts),
				entsql.Or(entsql.IsNull("leased_at"), entsql.LT("leased_at", cutoff)),
			)))
		jobs, err := queryJobs(ctx, tx, sel)
		if err != nil {
			return err
		}
		for _, job := range jobs {
			reason := "lease expired on final attempt"
			if job.LastError != nil {
				reason += ": " + *job.LastError
			}
			reason = truncateError(reason)
			if err := r.insertDeadLetter(ctx, tx, job, reason); err != nil {
				return err
			}
			q, args := b.Update(tableJobs).
				Set("dead_lettered_at", r.now()).
				Set("last_error", reason).
				Where(entsql.EQ("id", job.ID)).
				Query()
			if err := tx.Exec(ctx, q, args, nil); err != nil {
				return err
			}
			r.log.Warn("stale ocr job dead-lettered", "job_id", job.ID, "receipt_id", job.ReceiptID, "attempts", job.Attempts)
		}
		count = len(jobs)
		return nil
	})
	if err != nil {
		r.log.Error("dead-letter stale jobs failed", "error", err)
		return 0, dbErr("dead-letter stale", err)
	}
	return count, nil
}

func (r *jobQueueRepo) insertDeadLetter(ctx context.Context, tx dialect.ExecQuerier, job *entity.OCRJob, reason string) error {
	q, args := r.builder().Insert(tableDeadLetters).
		Columns(deadLetterColumns...).
		Values(uuid.New(), job.ID, job.ReceiptID, job.ImageKey, job.Attempts, reason, r.now()).
		OnConflict(entsql.ConflictColumns("job_id"), entsql.DoNothing()).
		Query()
	return tx.Exec(ctx, q, args, nil)
}

func (r *jobQueueRepo) Stats(ctx context.Context) (entity.QueueStats, error) {
	var s entity.QueueStats
	counts := []struct {
		dst  *int
		pred *entsql.Predicate
	}{
		{&s.Pending, entsql.And(entsql.EQ("processed", false), entsql.IsNull("dead_lettered_at"))},
		{&s.Done, entsql.EQ("processed", true)},
		{&s.DeadLettered, entsql.And(entsql.EQ("processed", false), entsql.NotNull("dead_lettered_at"))},
	}
	for _, c := range counts {
		b := r.builder()
		sel := b.Select(entsql.Count("*")).From(b.Table(tableJobs)).Where(c.pred)
		n, err := queryInt(ctx, r.drv, sel)
		if err != nil {
			return s, dbErr("queue stats", err)
		}
		*c.dst = n
	}
	return s, nil
}

func (r *jobQueueRepo) ListDeadLetters(ctx context.Context, limit int) ([]*entity.DeadLetter, error) {
	b := r.builder()
	sel := b.Select(deadLetterColumns...).From(b.Table(tableDeadLetters)).
		OrderBy(entsql.Desc("created_at"), entsql.Asc("id"))
	if limit > 0 {
		sel.Limit(limit)
	}
	q, args := sel.Query()
	rows := &entsql.Rows{}
	if err := r.drv.Query(ctx, q, args, rows); err != nil {
		return nil, dbErr("list dead letters", err)
	}
	defer rows.Close()

	var out []*entity.DeadLetter
	for rows.Next() {
		d := &entity.DeadLetter{}
		if err := rows.Scan(&d.ID, &d.JobID, &d.ReceiptID, &d.ImageKey, &d.Attempts, &d.Reason, &d.CreatedAt); err != nil {
			return nil, dbErr("scan dead letter", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("list dead letters", err)
	}
	return out, nil
}

func (r *jobQueueRepo) withTx(ctx context.Context, fn func(tx dialect.Tx) error) error {
	tx, err := r.drv.Tx(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			r.log.Warn("rollback failed", "error", rerr)
		}
		return err
	}
	return tx.Commit()
}

func queryIDs(ctx context.Context, eq dialect.ExecQuerier, sel *entsql.Selector) ([]any, error) {
	q, args := sel.Query()
	if err := sel.Err(); err != nil {
		return nil, err
	}
	rows := &entsql.Rows{}
	if err := eq.Query(ctx, q, args, rows); err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []any
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func queryInt(ctx context.Context, eq dialect.ExecQuerier, sel *entsql.Selector) (int, error) {
	q, args := sel.Query()
	rows := &entsql.Rows{}
	if err := eq.Query(ctx, q, args, rows); err != nil {
		return 0, err
	}
	defer rows.Close()
	var n int
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, err
		}
	}
	return n, rows.Err()
}

func queryJobs(ctx context.Context, eq dialect.ExecQuerier, sel *entsql.Selector) ([]*entity.OCRJob, error) {
	q, args := sel.Query()
	if err := sel.Err(); err != nil {
		return nil, err
	}
	rows := &entsql.Rows{}
	if err := eq.Query(ctx, q, args, rows); err != nil {
		return nil, err
	}
	return scanJobs(rows)
}

// scanJobs reads rows in jobColumns order and closes them.
func scanJobs(rows *entsql.Rows) ([]*entity.OCRJob, error) {
	defer rows.Close()
	var jobs []*entity.OCRJob
	for rows.Next() {
		var (
			j                      entity.OCRJob
			leasedAt, deadLettered sql.NullTime
			lastError, processor   sql.NullString
		)
		if err := rows.Scan(&j.ID, &j.ReceiptID, &j.ImageKey, &j.Processed, &j.Attempts,
			&j.EnqueuedAt, &leasedAt, &lastError, &processor, &deadLettered); err != nil {
			return nil, err
		}
		if leasedAt.Valid {
			t := leasedAt.Time
			j.LeasedAt = &t
		}
		if deadLettered.Valid {
			t := deadLettered.Time
			j.DeadLetteredAt = &t
		}
		if lastError.Valid {
			j.LastError = &lastError.String
		}
		if processor.Valid {
			j.Processor = &processor.String
		}
		jobs = append(jobs, &j)
	}
	return jobs, rows.Err()
}

// truncateError caps s at maxErrorLen bytes without splitting a rune.
// Postgres rejects invalid UTF-8 in text columns.
func truncateError(s string) string {
	s = strings.ToValidUTF8(s, "")
	if len(s) <= maxErrorLen {
		return s
	}
	cut := maxErrorLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
