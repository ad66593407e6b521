package runtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/lottery_layer/internal/config"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Scheduler.Enabled = false
	cfg.Logging.Level = "error"
	return cfg
}

func TestNewApplicationUsesMemoryStores(t *testing.T) {
	a, err := NewApplication(testConfig())
	require.NoError(t, err)
	require.NotNil(t, a.App())

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, a.Shutdown(context.Background()))
}

func TestRunStopsOnCancel(t *testing.T) {
	a, err := NewApplication(testConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	// A second shutdown is a no-op.
	assert.NoError(t, a.Shutdown(context.Background()))
}

func TestOpenDatabaseRequiresDSN(t *testing.T) {
	_, err := OpenDatabase(config.DatabaseConfig{Driver: "postgres"})
	assert.Error(t, err)
}
