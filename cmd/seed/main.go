// seed provisions a user's accounts and wallets and sets opening balances
// through the audited admin path.
//
//	SEED_USER_ID=... SEED_CHECKING=2000 SEED_SAVINGS=500 go run ./cmd/seed
package main

import (
	"context"
	"os"
	"time"

	"corebank/internal/admin"
	"corebank/internal/domain"
	"corebank/internal/events"
	"corebank/internal/ledger"
	"corebank/internal/repository/postgres"
	"corebank/pkg/config"
	"corebank/pkg/logger"
	"corebank/pkg/metrics"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// seedActor marks seed adjustments in the audit log.
var seedActor = uuid.MustParse("00000000-0000-0000-0000-000000005eed")

func main() {
	log := logger.New("seed")
	defer logger.Sync(log)

	cfg := config.Load()
	if cfg.Database.URL == "" {
		log.Fatal("DATABASE_URL is required", nil)
	}

	userID := uuid.New()
	if v := os.Getenv("SEED_USER_ID"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			log.Fatal("Invalid SEED_USER_ID", map[string]interface{}{"error": err.Error()})
		}
		userID = id
	}

	db, err := sqlx.Connect("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatal("Failed to connect to database", map[string]interface{}{"error": err.Error()})
	}
	defer db.Close()

	st := postgres.NewStore(db, cfg.Engine.OperationTimeout)
	ledgerService := ledger.NewService(st, log, metrics.Nop(), cfg.Engine.OperationTimeout)
	adminService := admin.NewService(st, nil, events.Nop(), log, metrics.Nop(), cfg.Engine.OperationTimeout)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := ledgerService.ProvisionUser(ctx, userID); err != nil {
		log.Fatal("Failed to provision user", map[string]interface{}{"error": err.Error()})
	}

	balances := map[domain.AccountKind]string{
		domain.AccountChecking: getenv("SEED_CHECKING", "2000.00"),
		domain.AccountSavings:  getenv("SEED_SAVINGS", "0.00"),
	}
	for kind, raw := range balances {
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			log.Fatal("Invalid seed balance", map[string]interface{}{"account": string(kind), "value": raw})
		}
		if _, err := adminService.SetAccountBalance(ctx, seedActor, userID, kind, amount, "seed"); err != nil {
			log.Fatal("Failed to set balance", map[string]interface{}{
				"account": string(kind),
				"error":   err.Error(),
			})
		}
	}

	log.Info("Seeded user", map[string]interface{}{
		"user_id":  userID.String(),
		"checking": balances[domain.AccountChecking],
		"savings":  balances[domain.AccountSavings],
	})
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
