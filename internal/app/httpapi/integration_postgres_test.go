//go:build integration && postgres

package httpapi

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/lottery_layer/internal/app"
	"github.com/R3E-Network/lottery_layer/internal/app/storage/postgres"
	"github.com/R3E-Network/lottery_layer/internal/config"
	"github.com/R3E-Network/lottery_layer/internal/platform/migrations"
	"github.com/R3E-Network/lottery_layer/pkg/logger"
)

// Runs the HTTP flow against Postgres so migrations and queries are exercised
// together.
func TestIntegrationPostgres(t *testing.T) {
	_ = godotenv.Load()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping Postgres integration")
	}

	db, err := sqlx.Open("postgres", dsn)
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()
	require.NoError(t, migrations.Apply(ctx, db.DB))

	store := postgres.New(db)
	cfg := config.Default()
	cfg.Scheduler.Enabled = false
	application, err := app.New(app.Stores{
		Lotteries: store, Combinations: store, Bets: store,
		Prizes: store, Results: store, Balances: store,
	}, app.Options{Config: cfg}, logger.NewNop())
	require.NoError(t, err)

	h, err := NewHandler(application, Options{
		Auth:   config.AuthConfig{AdminKeys: []string{testAdminKey}},
		Health: store.Ping,
	}, logger.NewNop())
	require.NoError(t, err)
	srv := &testServer{t: t, handler: h, app: application}

	rec := srv.do(http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	lot := srv.createLottery("IT" + uuid.NewString()[:6])
	user := "it-" + uuid.NewString()[:8]
	rec = srv.admin(http.MethodPost, "/v1/admin/users/"+user+"/deposits", map[string]interface{}{"amount": "1000"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = srv.user(user, http.MethodPost, "/v1/me/bets", map[string]interface{}{
		"bets": []map[string]interface{}{
			{"lottery_id": lot.ID, "number": "0042", "series": "001", "fractions": 1, "amount": "1000"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = srv.admin(http.MethodPost, "/v1/admin/lotteries/"+lot.ID+"/results", map[string]interface{}{
		"draw_date": lot.DrawDateAt(time.Now()).Format(dateLayout), "number": "9999", "series": "007",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}
