package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/Danijel-Enoch/OctoBot-Trading/internal/api"
	"github.com/Danijel-Enoch/OctoBot-Trading/internal/events"
	"github.com/Danijel-Enoch/OctoBot-Trading/internal/exchange"
	"github.com/Danijel-Enoch/OctoBot-Trading/internal/monitor"
	"github.com/Danijel-Enoch/OctoBot-Trading/internal/order"
	"github.com/Danijel-Enoch/OctoBot-Trading/internal/portfolio"
	"github.com/Danijel-Enoch/OctoBot-Trading/internal/telemetry"
	"github.com/Danijel-Enoch/OctoBot-Trading/pkg/config"
	"github.com/Danijel-Enoch/OctoBot-Trading/pkg/db"
	"github.com/Danijel-Enoch/OctoBot-Trading/pkg/exchanges/common"
	"github.com/Danijel-Enoch/OctoBot-Trading/pkg/exchanges/weex"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[BOOT] load config: %v", err)
	}

	var database *db.Database
	if cfg.DBPath != "" {
		database, err = db.New(cfg.DBPath)
		if err != nil {
			log.Fatalf("[BOOT] open database: %v", err)
		}
		defer database.Close()
		if err := database.Migrate(); err != nil {
			log.Fatalf("[BOOT] migrate database: %v", err)
		}
	}

	mirror := telemetry.NewMirror(newRedisClient(cfg.RedisAddr))
	defer mirror.Close()

	accounts, err := config.LoadAccounts(cfg.AccountsFile)
	if err != nil {
		log.Fatalf("[BOOT] load accounts: %v", err)
	}
	if len(accounts) == 0 {
		log.Fatalf("[BOOT] no accounts configured in %s", cfg.AccountsFile)
	}

	registry := events.NewRegistry()
	metrics := monitor.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	managers := make(map[string]*exchange.Manager)
	for _, acct := range accounts {
		adapter, err := buildAdapter(acct)
		if err != nil {
			log.Printf("[BOOT] account %s: %v, skipping", acct.Name, err)
			continue
		}

		mcfg := exchange.DefaultConfig(acct.Name)
		mcfg.PollInterval = cfg.PollInterval
		mcfg.RequestTimeout = cfg.RequestTimeout
		mcfg.InitAttempts = cfg.InitAttempts
		mcfg.ShutdownTimeout = cfg.ShutdownTimeout
		mcfg.MaxClosed = cfg.MaxClosedOrders
		mcfg.SyncTolerance = cfg.SyncTolerance
		mcfg.MaxSyncRetries = cfg.MaxSyncRetries

		mgr := exchange.NewManager(mcfg, adapter, registry, newArchiver(database, acct.Name), newAuditor(database), metrics)
		mirror.Attach(registry, acct.Name)

		if err := mgr.Initialize(ctx); err != nil {
			log.Printf("[BOOT] account %s failed to initialize: %v", acct.Name, err)
			registry.Teardown(acct.Name)
			continue
		}
		managers[acct.Name] = mgr
	}
	if len(managers) == 0 {
		log.Fatalf("[BOOT] no account initialized, nothing to serve")
	}

	server := api.NewServer(api.Config{
		Managers:  managers,
		Registry:  registry,
		DB:        database,
		JWTSecret: cfg.JWTSecret,
		Metrics:   metrics,
		RateLimit: cfg.APIRateLimit,
		RateBurst: cfg.APIRateBurst,
	})
	go func() {
		addr := ":" + cfg.Port
		log.Printf("[BOOT] serving on %s with %d account(s)", addr, len(managers))
		if err := server.Start(addr); err != nil {
			log.Printf("[API] server stopped: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Printf("[SHUTDOWN] signal received, draining accounts")

	for name, mgr := range managers {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout+time.Second)
		if err := mgr.Shutdown(shutdownCtx); err != nil {
			log.Printf("[SHUTDOWN] account %s: %v", name, err)
		}
		cancel()
	}
	log.Printf("[SHUTDOWN] done")
}

// buildAdapter maps an account's exchange name onto its venue adapter.
func buildAdapter(acct config.Account) (common.Adapter, error) {
	switch acct.Exchange {
	case "weex":
		return weex.NewClient(weex.Config{
			APIKey:     acct.APIKey,
			APISecret:  acct.APISecret,
			Passphrase: acct.Passphrase,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported exchange %q", acct.Exchange)
	}
}

func newRedisClient(addr string) *redis.Client {
	if addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("[BOOT] redis %s unreachable, event mirror disabled: %v", addr, err)
		client.Close()
		return nil
	}
	return client
}

// sqlArchiver persists terminal orders and fills for one account.
type sqlArchiver struct {
	db      *db.Database
	account string
}

func newArchiver(database *db.Database, account string) order.Archiver {
	if database == nil {
		return nil
	}
	return &sqlArchiver{db: database, account: account}
}

func (a *sqlArchiver) ArchiveOrder(ctx context.Context, o order.Order) error {
	return a.db.UpsertOrder(ctx, db.Order{
		CorrelationID: o.CorrelationID,
		ExchangeID:    o.ExchangeID,
		Account:       a.account,
		Symbol:        o.Symbol,
		Side:          string(o.Side),
		Type:          string(o.Type),
		Price:         o.Price,
		Qty:           o.Qty,
		FilledQty:     o.FilledQty,
		AvgPrice:      o.AvgPrice,
		Status:        string(o.Status),
		GroupID:       o.GroupID,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	})
}

func (a *sqlArchiver) ArchiveTrade(ctx context.Context, t order.Trade) error {
	return a.db.InsertTrade(ctx, db.Trade{
		CorrelationID: t.CorrelationID,
		ExchangeID:    t.ExchangeID,
		Account:       a.account,
		Symbol:        t.Symbol,
		Side:          string(t.Side),
		Price:         t.Price,
		Qty:           t.Qty,
		CreatedAt:     t.Time,
	})
}

// sqlAuditor records authoritative sync outcomes.
type sqlAuditor struct {
	db *db.Database
}

func newAuditor(database *db.Database) portfolio.Auditor {
	if database == nil {
		return nil
	}
	return &sqlAuditor{db: database}
}

func (a *sqlAuditor) RecordSync(ctx context.Context, account string, converged bool, attempts int) error {
	return a.db.InsertPortfolioSync(ctx, db.PortfolioSync{
		Account:   account,
		Converged: converged,
		Attempts:  attempts,
	})
}
