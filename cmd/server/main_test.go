package main

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"todo-api/internal/config"

	"github.com/alicebob/miniredis/v2"
)

func startupConfig(t *testing.T, extra map[string]string) *config.Config {
	t.Helper()

	environ := map[string]string{
		"JWT_SECRET":     "startup-test-secret",
		"ENVIRONMENT":    config.EnvLocal,
		"HOST":           "127.0.0.1",
		"PORT":           "0",
		"DB_DRIVER":      config.DriverSQLite,
		"DB_SQLITE_PATH": filepath.Join(t.TempDir(), "todo.db"),
		"BCRYPT_COST":    "4",
		"REDIS_ENABLED":  "false",
	}
	for k, v := range extra {
		environ[k] = v
	}

	cfg, err := config.LoadFromMap(environ)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func runBriefly(t *testing.T, cfg *config.Config) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	}()

	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("run did not stop after cancellation")
	}
}

func TestApplicationStartup(t *testing.T) {
	runBriefly(t, startupConfig(t, nil))
}

func TestApplicationStartupWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	runBriefly(t, startupConfig(t, map[string]string{
		"REDIS_ENABLED":        "true",
		"REDIS_HOST":           mr.Host(),
		"REDIS_PORT":           mr.Port(),
		"WORKER_POLL_INTERVAL": "50ms",
	}))
}

func TestApplicationStartupWithUnreachableRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatal(err)
	}
	host, port := mr.Host(), mr.Port()
	mr.Close()

	runBriefly(t, startupConfig(t, map[string]string{
		"REDIS_ENABLED":      "true",
		"REDIS_HOST":         host,
		"REDIS_PORT":         port,
		"REDIS_DIAL_TIMEOUT": "200ms",
	}))
}
