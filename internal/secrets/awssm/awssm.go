// Package awssm reads secrets from AWS Secrets Manager.
package awssm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/joseph-ayodele/receipts-ocr-worker/internal/secrets"
)

// API is the subset of the Secrets Manager client we call.
type API interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

type Provider struct {
	api    API
	logger *slog.Logger
}

func New(cfg aws.Config, logger *slog.Logger) *Provider {
	return NewWithAPI(secretsmanager.NewFromConfig(cfg), logger)
}

func NewWithAPI(api API, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{api: api, logger: logger}
}

func (p *Provider) GetSecret(ctx context.Context, id string) (map[string]string, error) {
	out, err := p.api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(id),
	})
	if err != nil {
		return nil, fmt.Errorf("get secret %q: %w", id, err)
	}
	if out.SecretString == nil {
		return nil, fmt.Errorf("secret %q has no string value", id)
	}
	p.logger.Info("secret resolved", "secret_id", id, "version_id", aws.ToString(out.VersionId))
	return secrets.Parse(*out.SecretString)
}
