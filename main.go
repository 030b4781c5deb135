package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"energytrade/internal/audit"
	"energytrade/internal/auth"
	certmeter "energytrade/internal/certificate/adapters/meter"
	certapp "energytrade/internal/certificate/application"
	certificate "energytrade/internal/certificate/domain"
	certmem "energytrade/internal/certificate/infrastructure/memory"
	certpg "energytrade/internal/certificate/infrastructure/postgres"
	certhttp "energytrade/internal/certificate/interfaces"
	"energytrade/internal/eventing"
	eventingpg "energytrade/internal/eventing/infrastructure/postgres"
	marketcert "energytrade/internal/market/adapters/certificate"
	marketapp "energytrade/internal/market/application"
	market "energytrade/internal/market/domain"
	marketmem "energytrade/internal/market/infrastructure/memory"
	marketpg "energytrade/internal/market/infrastructure/postgres"
	markethttp "energytrade/internal/market/interfaces"
	metertoken "energytrade/internal/meter/adapters/token"
	meterapp "energytrade/internal/meter/application"
	meter "energytrade/internal/meter/domain"
	metermem "energytrade/internal/meter/infrastructure/memory"
	meterpg "energytrade/internal/meter/infrastructure/postgres"
	meterhttp "energytrade/internal/meter/interfaces"
	"energytrade/internal/observability/metrics"
	oraclemeter "energytrade/internal/oracle/adapters/meter"
	oracleapp "energytrade/internal/oracle/application"
	oracle "energytrade/internal/oracle/domain"
	oraclemem "energytrade/internal/oracle/infrastructure/memory"
	oraclepg "energytrade/internal/oracle/infrastructure/postgres"
	oraclehttp "energytrade/internal/oracle/interfaces"
	tokenapp "energytrade/internal/token/application"
	token "energytrade/internal/token/domain"
	tokenmem "energytrade/internal/token/infrastructure/memory"
	tokenpg "energytrade/internal/token/infrastructure/postgres"
	tokenhttp "energytrade/internal/token/interfaces"
	"energytrade/internal/uow"
	uowmem "energytrade/internal/uow/memory"
	uowpg "energytrade/internal/uow/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/yaml.v3"
)

func main() {
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	var db *sql.DB
	if cfg.DatabaseURL != "" {
		var err error
		db, err = sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			logger.Fatalf("db open error: %v", err)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			logger.Fatalf("db ping error: %v", err)
		}
	} else {
		logger.Printf("no DATABASE_URL configured, running with in-memory storage")
	}

	metrics.Init(db, logger)

	bus := eventing.NewInMemoryBus()
	registry := eventing.NewRegistry()
	for _, prototype := range []any{
		oracleapp.ReadingAccepted{},
		oracleapp.ReadingRejected{},
		meterapp.SettlementCompleted{},
		tokenapp.CreditsMinted{},
		tokenapp.CreditsBurned{},
		tokenapp.CreditsTransferred{},
		marketapp.OrderCreated{},
		marketapp.OrdersMatched{},
		marketapp.TradeSettled{},
		marketapp.OrderCancelled{},
		marketapp.OrderExpired{},
		certapp.CertificateIssued{},
		certapp.CertificateValidated{},
		certapp.CertificateRevoked{},
		certapp.CertificateTransferred{},
	} {
		if err := registry.Register(prototype); err != nil {
			logger.Fatalf("event registry error: %v", err)
		}
	}

	var (
		runner         uow.Runner
		publisher      *eventing.Publisher
		processedStore eventing.ProcessedStore
		auditLogger    audit.Logger

		validatorRepo oracle.Repository
		meterRepo     meter.Repository
		supplyRepo    token.SupplyRepository
		holdingRepo   token.HoldingRepository
		certRepo      certificate.Repository
		orderRepo     market.OrderRepository
		tradeRepo     market.TradeRepository
		escrowRepo    market.EscrowRepository
		statsRepo     market.StatsRepository
	)

	if db != nil {
		outboxStore := eventingpg.NewOutboxStore(db)
		dlqStore := eventingpg.NewDLQStore(db)
		processedStore = eventingpg.NewProcessedStore(db)
		dispatcher := eventing.NewDispatcher(bus, outboxStore, registry, dlqStore)
		publisher = eventing.NewPublisher(outboxStore, dispatcher, bus)
		auditLogger = audit.NewRepository(db)

		pgRunner, err := uowpg.NewRunner(db)
		if err != nil {
			logger.Fatalf("uow runner error: %v", err)
		}
		runner = pgRunner

		validatorRepo, err = oraclepg.NewValidatorRepository(db)
		if err != nil {
			logger.Fatalf("validator repository error: %v", err)
		}
		meterRepo, err = meterpg.NewMeterRepository(db)
		if err != nil {
			logger.Fatalf("meter repository error: %v", err)
		}
		supplyRepo, err = tokenpg.NewSupplyRepository(db)
		if err != nil {
			logger.Fatalf("supply repository error: %v", err)
		}
		holdingRepo, err = tokenpg.NewHoldingRepository(db)
		if err != nil {
			logger.Fatalf("holding repository error: %v", err)
		}
		certRepo, err = certpg.NewCertificateRepository(db)
		if err != nil {
			logger.Fatalf("certificate repository error: %v", err)
		}
		orderRepo, err = marketpg.NewOrderRepository(db)
		if err != nil {
			logger.Fatalf("order repository error: %v", err)
		}
		tradeRepo, err = marketpg.NewTradeRepository(db)
		if err != nil {
			logger.Fatalf("trade repository error: %v", err)
		}
		escrowRepo, err = marketpg.NewEscrowRepository(db)
		if err != nil {
			logger.Fatalf("escrow repository error: %v", err)
		}
		statsRepo, err = marketpg.NewStatsRepository(db)
		if err != nil {
			logger.Fatalf("stats repository error: %v", err)
		}

		if err := seedSingletons(context.Background(), runner, validatorRepo, supplyRepo, cfg); err != nil {
			logger.Fatalf("seed error: %v", err)
		}
	} else {
		publisher = eventing.NewPublisher(nil, nil, bus)
		auditLogger = audit.NewMemoryLogger()
		runner = uowmem.NewRunner()

		validator, err := oracle.NewValidator(cfg.Admin, cfg.Gateway)
		if err != nil {
			logger.Fatalf("validator seed error: %v", err)
		}
		supply, err := token.NewSupply(cfg.TokenAuthority, cfg.SettlementAuthority)
		if err != nil {
			logger.Fatalf("supply seed error: %v", err)
		}
		validatorRepo = oraclemem.NewValidatorRepository(validator)
		meterRepo = metermem.NewMeterRepository()
		supplyRepo = tokenmem.NewSupplyRepository(supply)
		holdingRepo = tokenmem.NewHoldingRepository()
		certRepo = certmem.NewCertificateRepository()
		orderRepo = marketmem.NewOrderRepository()
		tradeRepo = marketmem.NewTradeRepository()
		escrowRepo = marketmem.NewEscrowRepository()
		statsRepo = marketmem.NewStatsRepository()
	}

	tokenService, err := tokenapp.NewTokenService(supplyRepo, holdingRepo, runner, publisher, nil)
	if err != nil {
		logger.Fatalf("token service error: %v", err)
	}
	minter, err := metertoken.NewMinter(tokenService, cfg.SettlementAuthority)
	if err != nil {
		logger.Fatalf("minter adapter error: %v", err)
	}
	meterService, err := meterapp.NewMeterService(meterRepo, minter, runner, publisher, nil, cfg.Admin)
	if err != nil {
		logger.Fatalf("meter service error: %v", err)
	}
	accumulator, err := oraclemeter.NewAccumulator(meterService)
	if err != nil {
		logger.Fatalf("accumulator adapter error: %v", err)
	}
	oracleService, err := oracleapp.NewOracleService(validatorRepo, accumulator, runner, publisher, nil)
	if err != nil {
		logger.Fatalf("oracle service error: %v", err)
	}
	certifier, err := certmeter.NewCertifier(meterService)
	if err != nil {
		logger.Fatalf("certifier adapter error: %v", err)
	}
	registryService, err := certapp.NewRegistryService(certRepo, certifier, runner, publisher, nil, certapp.RegistryConfig{
		Authority:        cfg.CertificateAuthority,
		MinEnergy:        cfg.CertMinEnergy,
		MaxEnergy:        cfg.CertMaxEnergy,
		Validity:         cfg.CertValidity,
		TransfersEnabled: cfg.CertTransfersEnabled,
	})
	if err != nil {
		logger.Fatalf("certificate registry error: %v", err)
	}
	certReader, err := marketcert.NewReader(registryService)
	if err != nil {
		logger.Fatalf("certificate reader error: %v", err)
	}
	marketService, err := marketapp.NewMarketService(orderRepo, tradeRepo, escrowRepo, statsRepo, certReader, runner, publisher, nil, marketapp.MarketConfig{
		MinOrderAmount:    cfg.MinOrderAmount,
		MaxOrderAmount:    cfg.MaxOrderAmount,
		FeeBps:            cfg.FeeBps,
		OrderLifetime:     cfg.OrderLifetime,
		FeeCollector:      cfg.FeeCollector,
		WheelingCollector: cfg.WheelingCollector,
	})
	if err != nil {
		logger.Fatalf("market service error: %v", err)
	}

	eventing.Subscribe(bus, eventing.TypeNameOf[marketapp.TradeSettled](), "market.log", func(ctx context.Context, event any) error {
		evt, ok := event.(marketapp.TradeSettled)
		if !ok {
			return eventing.ErrInvalidEventType
		}
		logger.Printf("trade settled: trade=%s buyer=%s seller=%s amount=%d price=%d fee=%d",
			evt.TradeID, evt.Buyer, evt.Seller, evt.AmountWh, evt.Price, evt.Fee)
		return nil
	}, processedStore)
	eventing.Subscribe(bus, eventing.TypeNameOf[meterapp.SettlementCompleted](), "settlement.log", func(ctx context.Context, event any) error {
		evt, ok := event.(meterapp.SettlementCompleted)
		if !ok {
			return eventing.ErrInvalidEventType
		}
		logger.Printf("settlement completed: meter=%s owner=%s amount=%d", evt.MeterID, evt.Owner, evt.AmountWh)
		return nil
	}, processedStore)
	eventing.Subscribe(bus, eventing.TypeNameOf[oracleapp.ReadingRejected](), "oracle.log", func(ctx context.Context, event any) error {
		evt, ok := event.(oracleapp.ReadingRejected)
		if !ok {
			return eventing.ErrInvalidEventType
		}
		logger.Printf("reading rejected: meter=%s submitter=%s reason=%s", evt.MeterID, evt.Submitter, evt.Reason)
		return nil
	}, processedStore)

	readingHandler, err := oraclehttp.NewReadingHandler(oracleService, auditLogger)
	if err != nil {
		logger.Fatalf("reading handler error: %v", err)
	}
	meterHandler, err := meterhttp.NewMeterHandler(meterService, auditLogger)
	if err != nil {
		logger.Fatalf("meter handler error: %v", err)
	}
	tokenHandler, err := tokenhttp.NewTokenHandler(tokenService)
	if err != nil {
		logger.Fatalf("token handler error: %v", err)
	}
	certificateHandler, err := certhttp.NewCertificateHandler(registryService, auditLogger)
	if err != nil {
		logger.Fatalf("certificate handler error: %v", err)
	}
	marketHandler, err := markethttp.NewMarketHandler(marketService, auditLogger)
	if err != nil {
		logger.Fatalf("market handler error: %v", err)
	}

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/readings", readingHandler)
	mux.Handle("/api/v1/validator", readingHandler)
	mux.Handle("/api/v1/validator/", readingHandler)
	mux.Handle("/api/v1/meters", meterHandler)
	mux.Handle("/api/v1/meters/", meterHandler)
	mux.Handle("/api/v1/token/", tokenHandler)
	mux.Handle("/api/v1/certificates", certificateHandler)
	mux.Handle("/api/v1/certificates/", certificateHandler)
	mux.Handle("/api/v1/orders", marketHandler)
	mux.Handle("/api/v1/orders/", marketHandler)
	mux.Handle("/api/v1/settlements", marketHandler)
	mux.Handle("/api/v1/settlements/", marketHandler)
	mux.Handle("/api/v1/trades", marketHandler)
	mux.Handle("/api/v1/market/stats", marketHandler)
	mux.Handle("/api/v1/escrow/", marketHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(authMiddleware.Wrap(mux), logger)}
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	logger.Fatal(server.ListenAndServe())
}

// seedSingletons inserts the validator and supply rows on first boot.
// Existing rows are left untouched so operator changes survive restarts.
func seedSingletons(ctx context.Context, runner uow.Runner, validators oracle.Repository, supplies token.SupplyRepository, cfg config) error {
	return runner.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := validators.Get(ctx); err != nil {
			if !errors.Is(err, oracle.ErrNilAggregate) {
				return err
			}
			validator, err := oracle.NewValidator(cfg.Admin, cfg.Gateway)
			if err != nil {
				return err
			}
			if err := validators.Save(ctx, validator); err != nil {
				return err
			}
		}
		if _, err := supplies.Get(ctx); err != nil {
			if !errors.Is(err, token.ErrNilAggregate) {
				return err
			}
			supply, err := token.NewSupply(cfg.TokenAuthority, cfg.SettlementAuthority)
			if err != nil {
				return err
			}
			if err := supplies.Save(ctx, supply); err != nil {
				return err
			}
		}
		return nil
	})
}

type config struct {
	DatabaseURL string `yaml:"database_url"`
	HTTPAddr    string `yaml:"http_addr"`
	JWTSecret   string `yaml:"jwt_secret"`

	Admin               string `yaml:"admin"`
	Gateway             string `yaml:"gateway"`
	TokenAuthority      string `yaml:"token_authority"`
	SettlementAuthority string `yaml:"settlement_authority"`

	CertificateAuthority string        `yaml:"certificate_authority"`
	CertMinEnergy        uint64        `yaml:"cert_min_energy"`
	CertMaxEnergy        uint64        `yaml:"cert_max_energy"`
	CertValidity         time.Duration `yaml:"-"`
	CertTransfersEnabled bool          `yaml:"cert_transfers_enabled"`

	MinOrderAmount    uint64        `yaml:"min_order_amount"`
	MaxOrderAmount    uint64        `yaml:"max_order_amount"`
	FeeBps            uint64        `yaml:"fee_bps"`
	OrderLifetime     time.Duration `yaml:"-"`
	FeeCollector      string        `yaml:"fee_collector"`
	WheelingCollector string        `yaml:"wheeling_collector"`
}

func defaultConfig() config {
	return config{
		HTTPAddr:             ":8080",
		Admin:                "admin",
		Gateway:              "gateway-main",
		TokenAuthority:       "token-authority",
		SettlementAuthority:  "settlement-engine",
		CertificateAuthority: "cert-authority",
		CertMinEnergy:        1,
		CertMaxEnergy:        1_000_000,
		CertValidity:         365 * 24 * time.Hour,
		CertTransfersEnabled: true,
		MinOrderAmount:       1,
		MaxOrderAmount:       1_000_000,
		FeeBps:               25,
		OrderLifetime:        market.DefaultOrderLifetime,
		FeeCollector:         "fee-collector",
		WheelingCollector:    "wheeling-collector",
	}
}

// loadConfig layers defaults, an optional YAML file and environment
// variables, with the environment taking precedence.
func loadConfig() config {
	cfg := defaultConfig()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Fatalf("config file error: %v", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			log.Fatalf("config parse error: %v", err)
		}
	}

	cfg.DatabaseURL = getenvDefault("DATABASE_URL", cfg.DatabaseURL)
	cfg.HTTPAddr = getenvDefault("HTTP_ADDR", cfg.HTTPAddr)
	cfg.JWTSecret = getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", cfg.JWTSecret))
	cfg.Admin = getenvDefault("ADMIN_ACCOUNT", cfg.Admin)
	cfg.Gateway = getenvDefault("GATEWAY_ACCOUNT", cfg.Gateway)
	cfg.TokenAuthority = getenvDefault("TOKEN_AUTHORITY", cfg.TokenAuthority)
	cfg.SettlementAuthority = getenvDefault("SETTLEMENT_AUTHORITY", cfg.SettlementAuthority)
	cfg.CertificateAuthority = getenvDefault("CERTIFICATE_AUTHORITY", cfg.CertificateAuthority)
	cfg.CertValidity = getenvDuration("CERT_VALIDITY", cfg.CertValidity)
	cfg.FeeBps = uint64(getenvIntDefault("MARKET_FEE_BPS", int(cfg.FeeBps)))
	cfg.OrderLifetime = getenvDuration("ORDER_LIFETIME", cfg.OrderLifetime)
	cfg.FeeCollector = getenvDefault("FEE_COLLECTOR", cfg.FeeCollector)
	cfg.WheelingCollector = getenvDefault("WHEELING_COLLECTOR", cfg.WheelingCollector)

	if cfg.JWTSecret == "" {
		log.Fatal("AUTH_JWT_SECRET is required")
	}
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
