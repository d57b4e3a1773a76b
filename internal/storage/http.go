package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/joseph-ayodele/receipts-ocr-worker/internal/common"
)

// DefaultMaxImageBytes caps a single downloaded image.
const DefaultMaxImageBytes int64 = 25 << 20

// HTTPSource downloads images referenced by absolute URLs (presigned or
// public storage links) behind a circuit breaker.
type HTTPSource struct {
	client   *http.Client
	cb       *gobreaker.CircuitBreaker
	maxBytes int64
	logger   *slog.Logger
}

func NewHTTPSource(client *http.Client, breaker common.BreakerConfig, logger *slog.Logger) *HTTPSource {
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if breaker.Name == "" {
		breaker.Name = "image-http"
	}
	return &HTTPSource{
		client:   client,
		cb:       common.NewBreaker(breaker, logger),
		maxBytes: DefaultMaxImageBytes,
		logger:   logger,
	}
}

func (h *HTTPSource) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	v, err := h.cb.Execute(func() (interface{}, error) {
		return h.get(ctx, rawURL)
	})
	if err != nil {
		return nil, common.BreakerError(h.cb.Name(), err)
	}
	return v.([]byte), nil
}

func (h *HTTPSource) get(ctx context.Context, rawURL string) ([]byte, error) {
	reqID := uuid.New().String()
	start := time.Now()

	safeURL := redact(rawURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", safeURL, redactURLError(err))
	}
	resp, err := h.client.Do(req)
	if err != nil {
		err = redactURLError(err)
		h.logger.Error("storage.http.send_error", "req_id", reqID, "url", safeURL, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			h.logger.Warn("storage.http.response_body_close_error", "req_id", reqID, "error", err)
		}
	}(resp.Body)

	if resp.StatusCode == http.StatusNotFound {
		return nil, notFound(safeURL)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("fetch image %s: non-2xx status: %d", safeURL, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, h.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read image body: %w", err)
	}
	if int64(len(data)) > h.maxBytes {
		return nil, common.NewAppError("IMAGE_TOO_LARGE", fmt.Sprintf("image exceeds %d bytes", h.maxBytes), common.ErrInvalidInput)
	}

	h.logger.Debug("storage.http.response",
		"req_id", reqID,
		"status", resp.StatusCode,
		"bytes", len(data),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return data, nil
}

// redact drops the query string and fragment, which hold presigned
// credentials.
func redact(rawURL string) string {
	if i := strings.IndexAny(rawURL, "?#"); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}

// redactURLError strips credentials from the URL that net/http embeds in
// its errors. The wrapped cause is kept so context errors still match.
func redactURLError(err error) error {
	var ue *url.Error
	if !errors.As(err, &ue) {
		return err
	}
	return &url.Error{Op: ue.Op, URL: redact(ue.URL), Err: ue.Err}
}
