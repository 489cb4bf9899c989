package logger

import (
	"context"
	"log/slog"
	"testing"
)

func TestLoggerInit(t *testing.T) {
	// Text handler
	err := Init()
	if err != nil {
		t.Fatalf("failed to initialize text logger: %v", err)
	}
	defer func() {
		if err := Sync(); err != nil {
			t.Errorf("failed to sync logger: %v", err)
		}
	}()

	logger := Get()
	if logger == nil {
		t.Fatal("logger is nil after initialization")
	}

	// JSON handler
	err = Init(WithJSON(true))
	if err != nil {
		t.Fatalf("failed to initialize json logger: %v", err)
	}

	logger = Get()
	if logger == nil {
		t.Fatal("logger is nil after initialization")
	}
}

func TestLoggerInitLevel(t *testing.T) {
	if err := Init(WithLevelString("debug")); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	if got := levelVar.Level(); got != slog.LevelDebug {
		t.Fatalf("level = %v, want %v", got, slog.LevelDebug)
	}

	if err := Init(WithLevelString("nope")); err == nil {
		t.Fatal("expected error for unknown level")
	}

	// Restore default for other tests.
	if err := Init(); err != nil {
		t.Fatalf("failed to reinitialize logger: %v", err)
	}
}

// Basic logging test (slog-backed; no Sugar)
func TestLoggerBasic(t *testing.T) {
	err := Init()
	if err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() {
		if err := Sync(); err != nil {
			t.Errorf("failed to sync logger: %v", err)
		}
	}()

	logger := Get()
	if logger == nil {
		t.Fatal("logger is nil")
	}

	ctx := context.Background()
	logger.Info(ctx, "test message", String("k", "v"), Int64("n", 42))
}

func TestLoggerNamed(t *testing.T) {
	err := Init()
	if err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() {
		if err := Sync(); err != nil {
			t.Errorf("failed to sync logger: %v", err)
		}
	}()

	namedLogger := Named("test")
	if namedLogger == nil {
		t.Fatal("named logger is nil")
	}

	ctx := context.Background()
	namedLogger.Info(ctx, "test message")
}
