// Package storage reads source images and writes OCR artifacts.
package storage

import (
	"context"
	"net/url"
	"strings"
)

// ObjectStore is a flat key/value blob store (an S3 bucket or a local dir).
type ObjectStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// ImageSource fetches source image bytes by key.
type ImageSource interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
}

// IsExternalURL reports whether key is an absolute http(s) URL rather than an
// object key.
func IsExternalURL(key string) bool {
	lower := strings.ToLower(key)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return false
	}
	u, err := url.Parse(key)
	return err == nil && u.Host != ""
}

// Resolver picks the image backend per key: external URLs go over HTTP,
// everything else is looked up in the image object store.
type Resolver struct {
	objects ObjectStore
	http    ImageSource
}

func NewResolver(objects ObjectStore, http ImageSource) *Resolver {
	return &Resolver{objects: objects, http: http}
}

func (r *Resolver) Fetch(ctx context.Context, key string) ([]byte, error) {
	if IsExternalURL(key) {
		if r.http == nil {
			return nil, errNoBackend("http", key)
		}
		return r.http.Fetch(ctx, key)
	}
	if r.objects == nil {
		return nil, errNoBackend("object store", key)
	}
	return r.objects.Get(ctx, key)
}
