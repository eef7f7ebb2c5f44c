// Package main is the entry point for the marketplace management server binary.
// It dispatches three subcommands (serve, migrate and version) with a plain
// switch on os.Args. serve runs pending migrations before accepting traffic.
package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/GarretWalker/marketplace-management/internal/api"
	"github.com/GarretWalker/marketplace-management/internal/auth"
	"github.com/GarretWalker/marketplace-management/internal/chambermaster"
	"github.com/GarretWalker/marketplace-management/internal/config"
	"github.com/GarretWalker/marketplace-management/internal/crypto"
	"github.com/GarretWalker/marketplace-management/internal/db"
	"github.com/GarretWalker/marketplace-management/internal/db/repositories"
	"github.com/GarretWalker/marketplace-management/internal/jobs"
	"github.com/GarretWalker/marketplace-management/internal/notify"
	"github.com/GarretWalker/marketplace-management/internal/services"
	"github.com/GarretWalker/marketplace-management/internal/telemetry"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "0.1.0"

const (
	redisKeyPrefix   = "mkt:"
	dbStatsInterval  = 15 * time.Second
	shutdownDeadline = 10 * time.Second
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v\n", err)
	}
}

func run() error {
	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	// A missing .env is normal outside local development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Warning: failed to load .env: %v", err)
	}

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	switch command {
	case "serve":
		return serve(cfg)
	case "migrate":
		if len(os.Args) < 3 {
			return fmt.Errorf("usage: %s migrate <up|down>", os.Args[0])
		}
		return runMigrations(cfg, os.Args[2])
	case "version":
		fmt.Printf("Marketplace Management v%s\n", version)
		return nil
	default:
		return fmt.Errorf("unknown command: %s\nAvailable commands: serve, migrate, version", command)
	}
}

func serve(cfg *config.Config) error {
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level, cfg.Telemetry.ServiceName)

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := auth.ValidateJWTSecret(); err != nil {
		return fmt.Errorf("security configuration error: %w", err)
	}

	cipher, err := loadKeyCipher()
	if err != nil {
		return err
	}

	slog.Info("connecting to database",
		"host", cfg.Database.Host, "port", cfg.Database.Port,
		"name", cfg.Database.Name, "user", cfg.Database.User, "ssl_mode", cfg.Database.SSLMode)
	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	if err := db.RunMigrations(database, "up"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	if v, dirty, err := db.GetMigrationVersion(database); err != nil {
		slog.Warn("failed to read migration version", "error", err)
	} else {
		slog.Info("database schema ready", "version", v, "dirty", dirty)
	}

	rootCtx, stop := context.WithCancel(context.Background())
	defer stop()
	telemetry.StartDBStatsCollector(rootCtx, database, dbStatsInterval)

	if cfg.Telemetry.Metrics.Enabled {
		go serveMetrics(cfg.Telemetry.Metrics.PrometheusPort)
	}

	directory, err := chambermaster.NewDirectory(cfg.ChamberMaster)
	if err != nil {
		return fmt.Errorf("failed to initialize member directory: %w", err)
	}
	if closer, ok := directory.(io.Closer); ok {
		defer closer.Close()
	}
	slog.Info("member directory ready", "mock", cfg.ChamberMaster.Mock)

	sqlxDB := sqlx.NewDb(database, "postgres")
	chamberRepo := repositories.NewChamberRepository(sqlxDB)
	memberRepo := repositories.NewMemberRepository(sqlxDB)
	runRepo := repositories.NewSyncRunRepository(sqlxDB)
	profileRepo := repositories.NewProfileRepository(sqlxDB)

	syncJob := jobs.NewMemberSyncJob(directory, memberRepo, runRepo, chamberRepo)

	var syncOpts []services.SyncServiceOption
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(rootCtx, 3*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			slog.Warn("redis unreachable at startup; sync triggers will fail until it recovers", "addr", cfg.Redis.Addr, "error", err)
		}
		cancel()

		syncOpts = append(syncOpts, services.WithSyncLocker(jobs.NewRedisLocker(rdb, redisKeyPrefix+"sync-lock:"), cfg.Sync.LockTTL))
		if cfg.Sync.TriggersPerHour > 0 {
			syncOpts = append(syncOpts, services.WithTriggerLimiter(
				jobs.NewRedisTriggerLimiter(rdb, redisKeyPrefix+"sync-trigger:", cfg.Sync.TriggersPerHour)))
		}
		slog.Info("redis sync coordination enabled", "addr", cfg.Redis.Addr, "triggers_per_hour", cfg.Sync.TriggersPerHour)
	}

	syncService := services.NewSyncService(chamberRepo, memberRepo, runRepo, syncJob, cipher, syncOpts...)
	claimService := services.NewClaimService(sqlxDB, notify.NewMailer(cfg.Notifications), cfg.Notifications.PortalURL)

	router, bgServices := api.NewRouter(cfg, database, api.Deps{
		Profiles: profileRepo,
		Chambers: syncService,
		Claims:   claimService,
		Version:  version,
	})

	server := &http.Server{
		Addr:              cfg.Server.GetAddress(),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	go func() {
		slog.Info("starting server", "addr", cfg.Server.GetAddress(), "version", version)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownDeadline)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	bgServices.Shutdown()

	slog.Info("server stopped gracefully")
	return nil
}

// loadKeyCipher builds the cipher for stored directory API keys from
// ENCRYPTION_KEY. In dev mode a missing key is replaced by a random one, so keys
// saved during that run cannot be read after a restart.
func loadKeyCipher() (*crypto.KeyCipher, error) {
	secret := os.Getenv("ENCRYPTION_KEY")
	if secret == "" {
		if !auth.IsDevMode() {
			return nil, errors.New("ENCRYPTION_KEY environment variable must be set")
		}
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("failed to generate development encryption key: %w", err)
		}
		slog.Warn("ENCRYPTION_KEY not set, using a random key for this process (dev mode)")
		return crypto.NewKeyCipher(key)
	}

	cipher, err := crypto.KeyCipherFromSecret(secret)
	if err != nil {
		return nil, fmt.Errorf("invalid ENCRYPTION_KEY: %w", err)
	}
	return cipher, nil
}

// serveMetrics exposes /metrics on its own port so scrapes bypass the public
// router and its rate limiter.
func serveMetrics(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	slog.Info("starting Prometheus metrics server", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("metrics server error", "error", err)
	}
}

func runMigrations(cfg *config.Config, direction string) error {
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level, cfg.Telemetry.ServiceName)

	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	slog.Info("running migrations", "direction", direction)
	if err := db.RunMigrations(database, direction); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	v, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}
	slog.Info("migration completed", "version", v, "dirty", dirty)
	return nil
}
