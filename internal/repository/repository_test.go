package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/receipts-ocr-worker/constants"
	"github.com/joseph-ayodele/receipts-ocr-worker/internal/common"
	"github.com/joseph-ayodele/receipts-ocr-worker/internal/entity"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDriver(t *testing.T) *entsql.Driver {
	t.Helper()
	drv, err := OpenSQLite(filepath.Join(t.TempDir(), "worker.db"), testLogger())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { drv.Close() })
	if err := Migrate(context.Background(), drv, testLogger()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return drv
}

func enqueueN(t *testing.T, q JobQueueRepository, n int) []*entity.OCRJob {
	t.Helper()
	jobs := make([]*entity.OCRJob, 0, n)
	for i := 0; i < n; i++ {
		j, err := q.Enqueue(context.Background(), uuid.New(), fmt.Sprintf("images/%02d.jpg", i))
		if err != nil {
			t.Fatalf("enqueue: %v", err)
		}
		jobs = append(jobs, j)
		time.Sleep(time.Millisecond) // distinct enqueued_at
	}
	return jobs
}

func TestMigrateIsRepeatable(t *testing.T) {
	drv := newTestDriver(t)
	if err := Migrate(context.Background(), drv, testLogger()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	if err := HealthCheck(context.Background(), drv, time.Second, testLogger()); err != nil {
		t.Fatalf("health: %v", err)
	}
}

func TestLeaseOrdersAndIncrementsAttempts(t *testing.T) {
	ctx := context.Background()
	q := NewJobQueueRepository(newTestDriver(t), testLogger())
	enq := enqueueN(t, q, 5)

	leased, err := q.Lease(ctx, 3, 3)
	if err != nil {
		t.Fatalf("Lease: %v", err)
	}
	if len(leased) != 3 {
		t.Fatalf("leased %d, want 3", len(leased))
	}
	for i, j := range leased {
		if j.ID != enq[i].ID {
			t.Errorf("lease[%d] = %s, want %s (enqueue order)", i, j.ID, enq[i].ID)
		}
		if j.Attempts != 1 || j.LeasedAt == nil {
			t.Errorf("lease[%d] attempts=%d leased_at=%v", i, j.Attempts, j.LeasedAt)
		}
	}

	// Leased-but-unfinished jobs stay pending and come back first.
	again, err := q.Lease(ctx, 10, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(again) != 5 || again[0].ID != enq[0].ID || again[0].Attempts != 2 {
		t.Fatalf("second lease = %d jobs, first %+v", len(again), again[0])
	}
}

func TestConcurrentLeasesNeverOverlap(t *testing.T) {
	ctx := context.Background()
	q := NewJobQueueRepository(newTestDriver(t), testLogger())
	enqueueN(t, q, 20)

	const workers = 4
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = map[uuid.UUID]int{}
		errs []error
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			jobs, err := q.Lease(ctx, 5, 1)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			for _, j := range jobs {
				seen[j.ID]++
			}
		}()
	}
	wg.Wait()
	if len(errs) > 0 {
		t.Fatalf("lease errors: %v", errs)
	}
	if len(seen) != 20 {
		t.Errorf("distinct leased = %d, want 20", len(seen))
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("job %s leased %d times", id, n)
		}
	}
}

func TestMarkDone(t *testing.T) {
	ctx := context.Background()
	q := NewJobQueueRepository(newTestDriver(t), testLogger())
	job := enqueueN(t, q, 1)[0]

	if _, err := q.Lease(ctx, 1, 3); err != nil {
		t.Fatal(err)
	}
	if _, err := q.MarkFailed(ctx, job.ID, "ocr timeout", 3); err != nil {
		t.Fatal(err)
	}
	if err := q.MarkDone(ctx, job.ID, "worker/1"); err != nil {
		t.Fatalf("MarkDone: %v", err)
	}
	if err := q.MarkDone(ctx, job.ID, "worker/2"); err != nil {
		t.Fatalf("second MarkDone: %v", err)
	}

	got, err := q.Get(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Processed || got.LastError != nil || got.Processor == nil || *got.Processor != "worker/1" {
		t.Errorf("job after done = %+v", got)
	}
	if got.State() != constants.JobStateDone {
		t.Errorf("state = %s", got.State())
	}
	if leased, _ := q.Lease(ctx, 10, 3); len(leased) != 0 {
		t.Errorf("done job leased again: %v", leased)
	}
	if err := q.MarkDone(ctx, uuid.New(), "worker/1"); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("unknown job err = %v", err)
	}
}

func TestFailingMaxAttemptsDeadLetters(t *testing.T) {
	ctx := context.Background()
	const maxAttempts = 3
	q := NewJobQueueRepository(newTestDriver(t), testLogger())
	job := enqueueN(t, q, 1)[0]

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		leased, err := q.Lease(ctx, 10, maxAttempts)
		if err != nil {
			t.Fatal(err)
		}
		if len(leased) != 1 || leased[0].Attempts != attempt {
			t.Fatalf("attempt %d: leased %+v", attempt, leased)
		}
		dl, err := q.MarkFailed(ctx, job.ID, fmt.Sprintf("boom %d", attempt), maxAttempts)
		if err != nil {
			t.Fatal(err)
		}
		if dl != (attempt == maxAttempts) {
			t.Fatalf("attempt %d: deadLettered = %v", attempt, dl)
		}
	}

	if leased, _ := q.Lease(ctx, 10, maxAttempts); len(leased) != 0 {
		t.Fatalf("dead-lettered job leased again")
	}
	// A larger retry budget later must not resurrect it either.
	if leased, _ := q.Lease(ctx, 10, maxAttempts+5); len(leased) != 0 {
		t.Fatalf("dead-lettered job leased with raised budget")
	}

	dls, err := q.ListDeadLetters(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(dls) != 1 || dls[0].JobID != job.ID || dls[0].Reason != "boom 3" || dls[0].Attempts != maxAttempts {
		t.Fatalf("dead letters = %+v", dls)
	}

	// A repeated failure report does not duplicate the entry.
	if dl, err := q.MarkFailed(ctx, job.ID, "late report", maxAttempts); err != nil || dl {
		t.Fatalf("repeat MarkFailed = %v, %v", dl, err)
	}
	if dls, _ := q.ListDeadLetters(ctx, 0); len(dls) != 1 {
		t.Fatalf("dead letters after repeat = %d", len(dls))
	}

	stats, err := q.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats != (entity.QueueStats{DeadLettered: 1}) {
		t.Errorf("stats = %+v", stats)
	}
}

func TestDeadLetterStale(t *testing.T) {
	ctx := context.Background()
	drv := newTestDriver(t)
	repo := NewJobQueueRepository(drv, testLogger()).(*jobQueueRepo)
	jobs := enqueueN(t, repo, 2)

	// Both jobs use their only attempt; neither reports back.
	if leased, err := repo.Lease(ctx, 2, 1); err != nil || len(leased) != 2 {
		t.Fatalf("lease = %v, %v", leased, err)
	}

	if n, err := repo.DeadLetterStale(ctx, 1, time.Hour); err != nil || n != 0 {
		t.Fatalf("fresh leases swept: %d, %v", n, err)
	}

	base := repo.now
	repo.now = func() time.Time { return base().Add(2 * time.Hour) }
	n, err := repo.DeadLetterStale(ctx, 1, time.Hour)
	if err != nil || n != 2 {
		t.Fatalf("DeadLetterStale = %d, %v", n, err)
	}
	for _, j := range jobs {
		got, err := repo.Get(ctx, j.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.State() != constants.JobStateDeadLettered {
			t.Errorf("job %s state = %s", j.ID, got.State())
		}
	}
	if n, _ := repo.DeadLetterStale(ctx, 1, time.Hour); n != 0 {
		t.Errorf("second sweep = %d", n)
	}
}

func TestEnqueueValidates(t *testing.T) {
	q := NewJobQueueRepository(newTestDriver(t), testLogger())
	if _, err := q.Enqueue(context.Background(), uuid.New(), ""); !errors.Is(err, common.ErrInvalidInput) {
		t.Errorf("err = %v", err)
	}
}

func f64(v float64) *float64 { return &v }

func TestApplyOCRResultIsIdempotent(t *testing.T) {
	ctx := context.Background()
	r := NewReceiptRepository(newTestDriver(t), testLogger())
	id := uuid.New()
	if _, err := r.Create(ctx, id, constants.ReceiptStatusUploaded); err != nil {
		t.Fatal(err)
	}

	date := "2024-03-12"
	first := entity.ReceiptOCRUpdate{
		Merchant: "Mart",
		Total:    f64(12.72),
		Subtotal: f64(12),
		Tax:      f64(0.72),
		TaxRate:  f64(0.06),
		RawOCR:   entity.RawOCR{ArtifactKey: "ocr/" + id.String() + ".json", Confidence: 0.9, ExtractedDate: &date},
	}
	applied, err := r.ApplyOCRResult(ctx, id, first)
	if err != nil || !applied {
		t.Fatalf("first apply = %v, %v", applied, err)
	}

	second := first
	second.Merchant = "Other"
	second.Total = f64(99)
	applied, err = r.ApplyOCRResult(ctx, id, second)
	if err != nil || applied {
		t.Fatalf("second apply = %v, %v", applied, err)
	}

	got, err := r.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.Merchant == nil || *got.Merchant != "Mart" || got.Total == nil || *got.Total != 12.72 {
		t.Errorf("receipt changed by second apply: %+v", got)
	}
	if got.Status == nil || *got.Status != string(constants.ReceiptStatusOCRDone) {
		t.Errorf("status = %v", got.Status)
	}
	if len(got.RawOCR) == 0 {
		t.Error("raw_ocr not stored")
	}

	if _, err := r.ApplyOCRResult(ctx, uuid.New(), first); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("missing receipt err = %v", err)
	}
}

func TestSQLiteDSN(t *testing.T) {
	if got := SQLiteDSN("file:x.db?mode=memory"); got != "file:x.db?mode=memory" {
		t.Errorf("file dsn rewritten: %q", got)
	}
	got := SQLiteDSN("/tmp/w.db")
	for _, want := range []string{"file:/tmp/w.db?", "foreign_keys%281%29", "_txlock=immediate"} {
		if !strings.Contains(got, want) {
			t.Errorf("SQLiteDSN = %q, missing %q", got, want)
		}
	}
}

func TestLeaseQueriesPerDialect(t *testing.T) {
	pg := &jobQueueRepo{drv: entsql.NewDriver(dialect.Postgres, entsql.Conn{}), log: testLogger(), now: now}
	q, args := pg.leaseSelector(5, 3).Query()
	if !strings.Contains(q, "FOR UPDATE SKIP LOCKED") {
		t.Errorf("postgres lease select = %s", q)
	}
	if !strings.Contains(q, "ORDER BY") || !strings.Contains(q, "LIMIT 5") {
		t.Errorf("postgres lease select order/limit = %s", q)
	}
	if len(args) != 2 {
		t.Errorf("args = %v", args)
	}
	uq, _ := pg.leaseUpdate([]any{uuid.New(), uuid.New()}).Query()
	if !strings.HasPrefix(uq, `UPDATE "ocr_jobs"`) || !strings.Contains(uq, `RETURNING "id", "receipt_id"`) {
		t.Errorf("postgres lease update = %s", uq)
	}

	lite := &jobQueueRepo{drv: entsql.NewDriver(dialect.SQLite, entsql.Conn{}), log: testLogger(), now: now}
	q, _ = lite.leaseSelector(5, 3).Query()
	if strings.Contains(q, "FOR UPDATE") {
		t.Errorf("sqlite lease select has row lock: %s", q)
	}
}

func TestTruncateErrorKeepsUTF8(t *testing.T) {
	reason := strings.Repeat("x", maxErrorLen-2) + "€"
	if len(reason) != maxErrorLen+1 {
		t.Fatalf("setup: len = %d", len(reason))
	}
	got := truncateError(reason)
	if !utf8.ValidString(got) || len(got) != maxErrorLen-2 {
		t.Errorf("truncateError: valid=%v len=%d", utf8.ValidString(got), len(got))
	}
	if got := truncateError("bad \xff byte"); got != "bad  byte" {
		t.Errorf("truncateError invalid input = %q", got)
	}
}

func TestMarkFailedStoresValidUTF8(t *testing.T) {
	ctx := context.Background()
	q := NewJobQueueRepository(newTestDriver(t), testLogger())
	job := enqueueN(t, q, 1)[0]
	if _, err := q.Lease(ctx, 1, 1); err != nil {
		t.Fatal(err)
	}
	reason := strings.Repeat("e", maxErrorLen-2) + "€"
	dead, err := q.MarkFailed(ctx, job.ID, reason, 1)
	if err != nil || !dead {
		t.Fatalf("MarkFailed = %v, %v", dead, err)
	}
	got, err := q.Get(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.LastError == nil || !utf8.ValidString(*got.LastError) || len(*got.LastError) > maxErrorLen {
		t.Fatalf("last_error = %v", got.LastError)
	}
	dls, err := q.ListDeadLetters(ctx, 1)
	if err != nil || len(dls) != 1 || !utf8.ValidString(dls[0].Reason) {
		t.Fatalf("dead letters = %+v, %v", dls, err)
	}
}
