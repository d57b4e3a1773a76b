package storage

import (
	"fmt"

	"github.com/joseph-ayodele/receipts-ocr-worker/internal/common"
)

func notFound(key string) error {
	return fmt.Errorf("object %q: %w", key, common.ErrNotFound)
}

func errNoBackend(kind, key string) error {
	return common.NewAppError("STORAGE_UNCONFIGURED", fmt.Sprintf("no %s backend configured for %q", kind, key), common.ErrInvalidInput)
}
