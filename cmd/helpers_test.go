package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/ziadkadry99/paper2code/internal/config"
)

func redisConfig(t *testing.T, addr string) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Provider = config.ProviderOllama
	cfg.EmbeddingProvider = config.ProviderOllama
	cfg.BaseURL = "http://127.0.0.1:1"
	cfg.DataDir = t.TempDir()
	cfg.Lock = config.LockConfig{Backend: config.LockRedis, RedisAddr: addr}
	return cfg
}

func TestOpenRuntimeDatabaseFailureLeavesRedisUntouched(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := redisConfig(t, mr.Addr())

	// A directory where the database file should be makes the open fail.
	if err := os.Mkdir(filepath.Join(cfg.DataDir, "paper2code.db"), 0755); err != nil {
		t.Fatal(err)
	}

	if _, err := openRuntime(context.Background(), cfg); err == nil {
		t.Fatal("expected openRuntime to fail")
	}
	if n := mr.TotalConnectionCount(); n != 0 {
		t.Errorf("expected no redis connections, got %d", n)
	}
}

func TestRuntimeCloseReleasesLockerAndDatabase(t *testing.T) {
	mr := miniredis.RunT(t)
	rt, err := openRuntime(context.Background(), redisConfig(t, mr.Addr()))
	if err != nil {
		t.Fatalf("openRuntime: %v", err)
	}
	if mr.TotalConnectionCount() == 0 {
		t.Fatal("expected the redis locker to connect")
	}

	if err := rt.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := rt.locker.Lock(context.Background(), "s1"); err == nil {
		t.Error("expected the locker's client to be closed")
	}
	if err := rt.db.Ping(); err == nil {
		t.Error("expected the database to be closed")
	}
}
