// Package secrets resolves credentials once at startup and injects them into
// the loaded configuration. Nothing is cached at package level; callers that
// need rotation call Apply again and rebuild their clients.
package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/joseph-ayodele/receipts-ocr-worker/internal/common"
)

// Provider returns the key/value pairs stored under a secret id.
type Provider interface {
	GetSecret(ctx context.Context, id string) (map[string]string, error)
}

// EnvProvider reads a secret from the environment variable named by id.
type EnvProvider struct{}

func (EnvProvider) GetSecret(_ context.Context, id string) (map[string]string, error) {
	raw, ok := os.LookupEnv(id)
	if !ok {
		return nil, fmt.Errorf("secret %q: %w", id, common.ErrNotFound)
	}
	return Parse(raw)
}

// Parse decodes a secret string. JSON objects map to their fields, with
// non-string values formatted as text; anything else is returned under "value".
func Parse(raw string) (map[string]string, error) {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "{") {
		return map[string]string{"value": trimmed}, nil
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(trimmed), &fields); err != nil {
		return nil, fmt.Errorf("decode secret: %w", err)
	}
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		switch t := v.(type) {
		case string:
			out[k] = t
		case nil:
		default:
			out[k] = fmt.Sprint(t)
		}
	}
	return out, nil
}

// Apply resolves the database and storage secrets named in cfg.Secrets and
// writes them into cfg.
func Apply(ctx context.Context, p Provider, cfg *common.Config) error {
	if id := cfg.Secrets.DBSecretID; id != "" {
		s, err := p.GetSecret(ctx, id)
		if err != nil {
			return common.WrapError(err, "resolve database secret")
		}
		dsn, err := DSNFromSecret(s)
		if err != nil {
			return err
		}
		cfg.Database.DSN = dsn
	}
	if id := cfg.Secrets.S3SecretID; id != "" {
		s, err := p.GetSecret(ctx, id)
		if err != nil {
			return common.WrapError(err, "resolve storage secret")
		}
		cfg.Storage.AccessKeyID = s["access_key_id"]
		cfg.Storage.SecretAccessKey = s["secret_access_key"]
		if cfg.Storage.AccessKeyID == "" || cfg.Storage.SecretAccessKey == "" {
			return common.NewAppError("SECRET_ERROR", "storage secret lacks access_key_id/secret_access_key", common.ErrValidation)
		}
	}
	return nil
}

// DSNFromSecret accepts either a ready "url"/"value" DSN or the RDS-style
// username, password, host, port and dbname fields.
func DSNFromSecret(s map[string]string) (string, error) {
	for _, k := range []string{"url", "dsn", "value"} {
		if v := s[k]; v != "" {
			return v, nil
		}
	}
	if s["host"] == "" || s["username"] == "" {
		return "", common.NewAppError("SECRET_ERROR", "database secret lacks url or host/username", common.ErrValidation)
	}
	host := s["host"]
	if port := s["port"]; port != "" {
		host += ":" + port
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(s["username"], s["password"]),
		Host:   host,
		Path:   "/" + s["dbname"],
	}
	if mode := s["sslmode"]; mode != "" {
		u.RawQuery = url.Values{"sslmode": {mode}}.Encode()
	}
	return u.String(), nil
}
