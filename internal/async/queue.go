package async

import (
	"context"
	"time"
)

// Trigger asks a worker to run one batch. Extend as needed later (priority, batch size override).
type Trigger struct {
	Reason      string // "tick", "rpc", "cli"
	SubmittedAt time.Time
	TraceID     string
}

type Queue interface {
	Enqueue(ctx context.Context, t Trigger) error
	Shutdown(ctx context.Context)
}
