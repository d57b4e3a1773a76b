package common

import (
	"errors"
	"log/slog"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DB_URL", "postgres://u:p@localhost/receipts")
	t.Setenv("ARTIFACT_DIR", t.TempDir())
	cfg := LoadConfig()

	if cfg.Queue.BatchSize != 10 || cfg.Queue.MaxAttempts != 3 {
		t.Errorf("queue = %+v", cfg.Queue)
	}
	if cfg.OCR.Provider != "textract" || cfg.Database.AutoMigrate {
		t.Errorf("ocr provider = %q auto_migrate = %v", cfg.OCR.Provider, cfg.Database.AutoMigrate)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("BATCH_SIZE", "25")
	t.Setenv("JOB_TIMEOUT", "90s")
	t.Setenv("DB_AUTO_MIGRATE", "true")
	t.Setenv("OCR_BREAKER_FAILURE_RATIO", "0.25")
	t.Setenv("MAX_ATTEMPTS", "not-a-number")
	cfg := LoadConfig()

	if cfg.Queue.BatchSize != 25 || cfg.Queue.JobTimeout != 90*time.Second {
		t.Errorf("queue = %+v", cfg.Queue)
	}
	if !cfg.Database.AutoMigrate || cfg.OCR.BreakerFailureRatio != 0.25 {
		t.Errorf("auto_migrate = %v ratio = %v", cfg.Database.AutoMigrate, cfg.OCR.BreakerFailureRatio)
	}
	if cfg.Queue.MaxAttempts != 3 {
		t.Errorf("unparseable MAX_ATTEMPTS should keep default, got %d", cfg.Queue.MaxAttempts)
	}
}

func TestValidateRejects(t *testing.T) {
	t.Setenv("DB_URL", "")
	t.Setenv("ARTIFACT_BUCKET", "")
	t.Setenv("ARTIFACT_DIR", "")
	t.Setenv("OCR_PROVIDER", "paper")
	cfg := LoadConfig()

	err := cfg.Validate()
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("Validate err = %v", err)
	}
	var appErr *AppError
	if !errors.As(err, &appErr) || appErr.Code != "CONFIG_ERROR" {
		t.Errorf("err = %#v", err)
	}
	if err := cfg.ValidateDatabase(); err == nil {
		t.Error("ValidateDatabase accepted empty DB_URL")
	}
}

func TestSlogLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
	} {
		if got := (&Config{LogLevel: in}).SlogLevel(); got != want {
			t.Errorf("SlogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
