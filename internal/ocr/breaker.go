package ocr

import (
	"context"
	"log/slog"

	"github.com/sony/gobreaker"

	"github.com/joseph-ayodele/receipts-ocr-worker/internal/common"
)

type breakerService struct {
	next Service
	cb   *gobreaker.CircuitBreaker
}

// WithBreaker guards next with a circuit breaker. While the breaker is open
// calls fail fast with common.ErrUnavailable and the job is retried later.
func WithBreaker(next Service, cfg common.BreakerConfig, logger *slog.Logger) Service {
	if cfg.Name == "" {
		cfg.Name = "ocr"
	}
	cfg.Ignore = append(cfg.Ignore, ErrEmptyDocument)
	return &breakerService{next: next, cb: common.NewBreaker(cfg, logger)}
}

func (b *breakerService) DetectText(ctx context.Context, image []byte) (*Document, error) {
	v, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.DetectText(ctx, image)
	})
	if err != nil {
		return nil, common.BreakerError(b.cb.Name(), err)
	}
	return v.(*Document), nil
}
