package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/abduss/clientdrop/internal/config"
)

func testConfig(t *testing.T) config.Config {
	dir := t.TempDir()
	return config.Config{
		Server: config.ServerConfig{
			Host: "127.0.0.1",
			Port: 0,
			Env:  "test",
		},
		Database: config.DatabaseConfig{
			Driver:     config.DriverSQLite,
			SQLitePath: filepath.Join(dir, "db", "clientdrop.db"),
		},
		Storage: config.StorageConfig{
			Backend:          config.StorageLocal,
			UploadDir:        filepath.Join(dir, "uploads"),
			PublicPrefix:     "/uploads",
			MaxUploadBytes:   1024,
			OperationTimeout: time.Second,
			URLTTL:           time.Minute,
		},
		Auth: config.AuthConfig{
			JWTSecret:        "app-test",
			SessionTTL:       time.Hour,
			ShareTTL:         time.Minute,
			BcryptCost:       4,
			SeedDemoAccounts: true,
		},
		Metrics: config.MetricsConfig{PrometheusPath: "/metrics"},
	}
}

func TestNewWiresSQLiteAndLocalStorage(t *testing.T) {
	a, err := New(context.Background(), testConfig(t), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(a.Close)

	req := httptest.NewRequest(http.MethodPost, "/api/login",
		strings.NewReader(`{"clientCode":"CLIENT456","password":"client2024"}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	a.httpSrv.Handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = httptest.NewRecorder()
	a.httpSrv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestNewSeedsOnlyOnce(t *testing.T) {
	cfg := testConfig(t)

	first, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	first.Close()

	second, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	second.Close()
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Driver = "mysql"

	_, err := New(context.Background(), cfg, zap.NewNop())
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestRunStopsOnCancel(t *testing.T) {
	a, err := New(context.Background(), testConfig(t), nil)
	require.NoError(t, err)
	t.Cleanup(a.Close)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
