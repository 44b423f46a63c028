package main

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/bankes/core/account"
	"github.com/codewandler/bankes/core/money"
	"github.com/codewandler/bankes/internal/config"
)

func testConfig(t *testing.T) config.Config {
	dir := t.TempDir()
	return config.Config{
		Backend:          config.BackendSQLite,
		SQLitePath:       filepath.Join(dir, "bank.db"),
		SnapshotInterval: 2,
		LogLevel:         "error",
		MetricsFile:      filepath.Join(dir, "bankes.prom"),
	}
}

func runCmd(t *testing.T, cfg config.Config, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(t.Context(), cfg, args, &out)
	return out.String(), err
}

func field(t *testing.T, line, key string) string {
	t.Helper()
	for _, f := range strings.Fields(line) {
		if v, ok := strings.CutPrefix(f, key+"="); ok {
			return v
		}
	}
	t.Fatalf("no %s in %q", key, line)
	return ""
}

func TestRun(t *testing.T) {
	cfg := testConfig(t)

	out, err := runCmd(t, cfg, "open", "C1", "usd")
	require.NoError(t, err)
	id := field(t, out, "account")
	require.Equal(t, "C1", field(t, out, "customer"))
	require.Equal(t, "0", field(t, out, "version"))

	_, err = runCmd(t, cfg, "deposit", id, "100", "USD")
	require.NoError(t, err)
	out, err = runCmd(t, cfg, "withdraw", id, "30.50", "USD")
	require.NoError(t, err)
	require.Equal(t, "2", field(t, out, "version"))

	_, err = runCmd(t, cfg, "withdraw", id, "1000", "USD")
	require.ErrorIs(t, err, account.ErrInsufficientBalance)
	_, err = runCmd(t, cfg, "deposit", id, "1", "EUR")
	require.ErrorIs(t, err, money.ErrCurrencyMismatch)

	out, err = runCmd(t, cfg, "show", id)
	require.NoError(t, err)
	require.Contains(t, out, `balance="69.5 USD"`)
	require.Equal(t, "2", field(t, out, "version"))

	metrics, err := os.ReadFile(cfg.MetricsFile)
	require.NoError(t, err)
	require.Contains(t, string(metrics), "bankes_account_load_duration_seconds")
}

func TestRun_Errors(t *testing.T) {
	cfg := testConfig(t)

	_, err := runCmd(t, cfg)
	require.ErrorIs(t, err, errUsage)
	_, err = runCmd(t, cfg, "open", "C1")
	require.ErrorIs(t, err, errUsage)
	_, err = runCmd(t, cfg, "close", "x")
	require.ErrorIs(t, err, errUsage)

	_, err = runCmd(t, cfg, "show", "missing")
	require.ErrorIs(t, err, account.ErrNotInitialized)
	_, err = runCmd(t, cfg, "deposit", "missing", "5", "USD")
	require.ErrorIs(t, err, account.ErrNotInitialized)
	_, err = runCmd(t, cfg, "deposit", "missing", "five", "USD")
	require.ErrorIs(t, err, money.ErrInvalidMoney)
}

func TestRun_Memory(t *testing.T) {
	cfg := testConfig(t)
	cfg.Backend = config.BackendMemory
	cfg.MetricsFile = ""

	out, err := runCmd(t, cfg, "open", "C1", "EUR")
	require.NoError(t, err)
	require.Contains(t, out, `balance="0 EUR"`)
}

func TestRun_Serve(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())

	cfg := testConfig(t)
	cfg.Backend = config.BackendMemory
	cfg.MetricsFile = ""
	cfg.HTTPAddr = addr

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg, []string{"serve"}, &bytes.Buffer{}) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get(fmt.Sprintf("http://%s/healthz", addr))
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("server did not stop")
	}
}
