package app

import (
	"context"
	"testing"
	"time"
	_ "time/tzdata"

	"newsdesk/internal/config"
	"newsdesk/internal/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.Addr = "127.0.0.1:0"
	cfg.RedisAddr = mr.Addr()
	cfg.BadgerPath = store.InMemory
	cfg.UploadDir = t.TempDir()
	cfg.ShutdownTimeout = time.Second
	cfg.SecretKey = "test-secret"
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)

	a, err := NewApp(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop")
	}
}

func TestApp_RunReportsListenError(t *testing.T) {
	cfg := testConfig(t)
	cfg.Addr = "256.0.0.1:99999"

	a, err := NewApp(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)

	select {
	case err := <-runAsync(a):
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop")
	}
}

func runAsync(a *App) <-chan error {
	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background()) }()
	return done
}

func TestNewApp_StoreUnavailable(t *testing.T) {
	cfg := testConfig(t)
	cfg.RedisAddr = "127.0.0.1:1"

	_, err := NewApp(context.Background(), cfg, zap.NewNop())
	assert.ErrorContains(t, err, "store init error")
}

func TestOpenStore_Contentless(t *testing.T) {
	cfg := testConfig(t)

	st, err := OpenStore(context.Background(), cfg, zap.NewNop(), true)
	require.NoError(t, err)
	defer st.Close()

	hs, ok := st.(*store.HybridStore)
	require.True(t, ok)
	assert.False(t, hs.HasContentStore())
}

func TestOpenStore_Unknown(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store = "sqlite"

	_, err := OpenStore(context.Background(), cfg, zap.NewNop(), false)
	assert.Error(t, err)
}
