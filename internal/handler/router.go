package handler

import (
	"net/http"
	"time"

	"corebank/internal/middleware"
	"corebank/pkg/logger"

	"github.com/gorilla/mux"
)

// RouterConfig carries the handlers and middleware the router mounts. Rate
// limiting and idempotency are skipped when nil, e.g. without redis.
type RouterConfig struct {
	Logger      logger.Logger
	CORSOrigins []string

	Auth        *middleware.AuthMiddleware
	Idempotency *middleware.IdempotencyMiddleware
	Counter     middleware.Counter

	Accounts *AccountsHandler
	Wires    *WiresHandler
	Crypto   *CryptoHandler
	Admin    *AdminHandler
	System   *SystemHandler
	Stream   *StreamHandler

	MetricsPath string
	Metrics     http.Handler
}

func NewRouter(cfg RouterConfig) *mux.Router {
	r := mux.NewRouter()

	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CorrelationID)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.NewLoggingMiddleware(cfg.Logger).Log)
	r.Use(middleware.BodyLimit(1 << 20))

	r.HandleFunc("/health", cfg.System.Health).Methods(http.MethodGet)
	r.HandleFunc("/ready", cfg.System.Ready).Methods(http.MethodGet)
	if cfg.Metrics != nil {
		r.Handle(cfg.MetricsPath, cfg.Metrics).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(cfg.Auth.Authenticate)
	if cfg.Counter != nil {
		api.Use(middleware.NewRateLimiter(cfg.Counter, "api", 120, time.Minute).Limit)
	}

	once := func(h http.HandlerFunc) http.Handler {
		if cfg.Idempotency == nil {
			return h
		}
		return cfg.Idempotency.Require(h)
	}

	api.HandleFunc("/accounts", cfg.Accounts.List).Methods(http.MethodGet)
	api.HandleFunc("/accounts/{kind}/balance", cfg.Accounts.Balance).Methods(http.MethodGet)
	api.HandleFunc("/transactions", cfg.Accounts.Transactions).Methods(http.MethodGet)
	api.HandleFunc("/transfers/{id}", cfg.Accounts.GetTransfer).Methods(http.MethodGet)
	api.Handle("/transfers", once(cfg.Accounts.Transfer)).Methods(http.MethodPost)

	api.HandleFunc("/wires", cfg.Wires.List).Methods(http.MethodGet)
	api.HandleFunc("/wires/{id}", cfg.Wires.Get).Methods(http.MethodGet)
	api.HandleFunc("/wires/{id}/receipt", cfg.Wires.Receipt).Methods(http.MethodGet)
	api.Handle("/wires/authorization", once(cfg.Wires.RequestAuthorization)).Methods(http.MethodPost)
	api.Handle("/wires", once(cfg.Wires.Create)).Methods(http.MethodPost)
	api.Handle("/wires/{id}/cancel", once(cfg.Wires.Cancel)).Methods(http.MethodPost)

	api.HandleFunc("/crypto/portfolio", cfg.Crypto.Portfolio).Methods(http.MethodGet)
	api.HandleFunc("/crypto/transactions", cfg.Crypto.History).Methods(http.MethodGet)
	api.HandleFunc("/crypto/prices/{asset}", cfg.Crypto.Price).Methods(http.MethodGet)
	api.Handle("/crypto/authorization", once(cfg.Crypto.RequestAuthorization)).Methods(http.MethodPost)
	api.Handle("/crypto/buy", once(cfg.Crypto.Buy)).Methods(http.MethodPost)
	api.Handle("/crypto/sell", once(cfg.Crypto.Sell)).Methods(http.MethodPost)

	if cfg.Stream != nil {
		api.HandleFunc("/ws/events", cfg.Stream.Events).Methods(http.MethodGet)
	}

	adm := api.PathPrefix("/admin").Subrouter()
	adm.Use(middleware.RequireAdmin)

	adm.HandleFunc("/wires", cfg.Admin.ListWires).Methods(http.MethodGet)
	adm.HandleFunc("/users/{id}/audit", cfg.Admin.AuditLog).Methods(http.MethodGet)
	adm.Handle("/users/{id}/provision", once(cfg.Admin.Provision)).Methods(http.MethodPost)
	adm.Handle("/wires/{id}/transition", once(cfg.Admin.TransitionWire)).Methods(http.MethodPost)
	adm.Handle("/wires/{id}/force", once(cfg.Admin.ForceWireStatus)).Methods(http.MethodPost)
	adm.Handle("/users/{id}/accounts/{kind}/balance", once(cfg.Admin.SetAccountBalance)).Methods(http.MethodPut)
	adm.Handle("/users/{id}/wallets/{asset}", once(cfg.Admin.SetCryptoWallet)).Methods(http.MethodPut)
	adm.Handle("/users/{id}/trading-controls", once(cfg.Admin.SetTradingControls)).Methods(http.MethodPut)
	adm.Handle("/users/{id}/wire-controls", once(cfg.Admin.SetWireControls)).Methods(http.MethodPut)

	return r
}
