// corebankd serves the account ledger, wire transfer and crypto trading API.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"corebank/internal/admin"
	"corebank/internal/events"
	"corebank/internal/handler"
	"corebank/internal/ledger"
	"corebank/internal/middleware"
	"corebank/internal/otp"
	"corebank/internal/pricing"
	"corebank/internal/repository/memory"
	"corebank/internal/repository/postgres"
	"corebank/internal/store"
	"corebank/internal/trading"
	"corebank/internal/transfer"
	"corebank/internal/wire"
	"corebank/pkg/cache"
	"corebank/pkg/config"
	"corebank/pkg/logger"
	"corebank/pkg/metrics"
	"corebank/pkg/validator"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

func main() {
	inMemory := flag.Bool("inmemory", false, "run without Postgres and Redis (development only)")
	flag.Parse()

	cfg := config.Load()
	log := logger.New("corebank")
	defer logger.Sync(log)

	if !*inMemory {
		if err := cfg.ValidateCore(); err != nil {
			log.Fatal("Invalid configuration", map[string]interface{}{"error": err.Error()})
		}
	}

	log.Info("Starting corebank", map[string]interface{}{
		"port":      cfg.Server.Port,
		"in_memory": *inMemory,
	})

	collector := metrics.NewCollector()
	timeout := cfg.Engine.OperationTimeout

	var (
		st        store.Store
		checks    []handler.Check
		redisConn *cache.RedisCache
	)

	if *inMemory {
		st = memory.New()
		log.Warn("Using in-memory store; balances are lost on restart", nil)
	} else {
		db, err := sqlx.Connect("postgres", cfg.Database.URL)
		if err != nil {
			log.Fatal("Failed to connect to database", map[string]interface{}{"error": err.Error()})
		}
		defer db.Close()

		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
		log.Info("Database connected", nil)

		st = postgres.NewStore(db, timeout)

		rdb, err := cache.Connect(context.Background(), cfg.Redis.URL, cfg.Redis.Password, cfg.Redis.DB, 5*time.Second)
		if err != nil {
			log.Fatal("Failed to connect to Redis", map[string]interface{}{"error": err.Error()})
		}
		redisConn = cache.NewRedisCache(rdb)
		defer redisConn.Close()
		log.Info("Redis connected", nil)

		checks = append(checks, handler.Check{
			Name: "redis",
			Ping: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
	}
	checks = append([]handler.Check{{Name: "database", Ping: st.Ping}}, checks...)

	// Events fan out to websocket clients and the configured broker sink.
	hub := events.NewHub(cfg.Server.CORSOrigins, log)
	publisher := events.Fanout{hub}
	switch {
	case cfg.Events.Sink == "redis" && redisConn != nil:
		publisher = append(publisher, events.NewRedisPublisher(redisConn.Client(), cfg.Events.RedisChannel))
	case cfg.Events.Sink == "kafka":
		kp := events.NewKafkaPublisher(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic)
		defer kp.Close()
		publisher = append(publisher, kp)
	}

	var otpStore otp.Store = otp.NewMemoryStore()
	var priceCache pricing.Cache
	var blacklist middleware.TokenBlacklist
	var idem *middleware.IdempotencyMiddleware
	var counter middleware.Counter
	if redisConn != nil {
		otpStore = otp.NewRedisStore(redisConn)
		priceCache = pricing.NewRedisCache(redisConn)
		blacklist = middleware.NewRedisTokenBlacklist(redisConn)
		idem = middleware.NewIdempotencyMiddleware(redisConn, 24*time.Hour, log)
		counter = redisConn
	}

	gate := otp.NewService(otpStore, otp.LogSender{Logger: log}, log, collector, otp.Config{
		TTL:            cfg.OTP.TTL,
		Digits:         cfg.OTP.Digits,
		MaxAttempts:    cfg.OTP.MaxAttempts,
		ResendCooldown: cfg.OTP.ResendCooldown,
		CheckTimeout:   cfg.OTP.CheckTimeout,
	})

	var providers []pricing.Provider
	if cfg.Pricing.ProviderURL != "" {
		providers = append(providers, pricing.NewHTTPProvider(cfg.Pricing.ProviderURL, cfg.Pricing.Timeout))
	}
	providers = append(providers, pricing.NewStaticProvider(cfg.Pricing.StaticPrices))
	prices := pricing.NewService(providers, priceCache, log, cfg.Pricing.CacheTTL, cfg.Pricing.Timeout)

	ledgerService := ledger.NewService(st, log, collector, timeout)
	transferService := transfer.NewService(st, publisher, log, collector, timeout)
	wireService := wire.NewService(st, gate, publisher, log, collector, wire.Options{
		Timeout:    timeout,
		DefaultFee: cfg.Engine.DefaultWireFee,
		MaxAmount:  cfg.Engine.MaxWireAmount,
	})
	tradingService := trading.NewService(st, prices, gate, publisher, log, collector, timeout)
	adminService := admin.NewService(st, wireService, publisher, log, collector, timeout)

	val := validator.New()
	routerCfg := handler.RouterConfig{
		Logger:      log,
		CORSOrigins: cfg.Server.CORSOrigins,
		Auth:        middleware.NewAuthMiddleware(cfg.JWT.Secret, blacklist),
		Idempotency: idem,
		Counter:     counter,
		Accounts:    handler.NewAccountsHandler(ledgerService, transferService, val, log),
		Wires:       handler.NewWiresHandler(wireService, val, log),
		Crypto:      handler.NewCryptoHandler(tradingService, prices, val, log),
		Admin:       handler.NewAdminHandler(adminService, ledgerService, wireService, val, log),
		System:      handler.NewSystemHandler("corebank", checks, log),
		Stream:      handler.NewStreamHandler(hub),
	}
	if cfg.Metrics.Enabled {
		routerCfg.MetricsPath = cfg.Metrics.Path
		routerCfg.Metrics = collector.Handler()
	}
	r := handler.NewRouter(routerCfg)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("corebank started", map[string]interface{}{"address": srv.Addr})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed to start", map[string]interface{}{"error": err.Error()})
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down corebank...", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("corebank forced to shutdown", map[string]interface{}{"error": err.Error()})
	}

	log.Info("corebank stopped gracefully", nil)
}
