package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"coreledger/internal/account"
	"coreledger/internal/accountactor"
	"coreledger/internal/billingfanout"
	"coreledger/internal/billingstatement"
	"coreledger/internal/broadcast"
	"coreledger/internal/closure"
	"coreledger/internal/config"
	"coreledger/internal/domestictransfer"
	"coreledger/internal/employeeactor"
	"coreledger/internal/etcd"
	"coreledger/internal/journal"
	"coreledger/internal/leaderelect"
	"coreledger/internal/logger"
	"coreledger/internal/money"
	"coreledger/internal/notify"
	"coreledger/internal/notify/channel"
	"coreledger/internal/registry"
	"coreledger/internal/scheduler"
	"coreledger/internal/sharding"
	"coreledger/internal/transfercoordinator"
)

func main() {
	app := &cli.App{
		Name:    "coreledger",
		Usage:   "Core Ledger - event-sourced core-banking engine",
		Version: "0.1.0",
		Commands: []*cli.Command{
			{
				Name:  "server",
				Usage: "Start the core-ledger server",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "host",
						Usage:   "Server host",
						Value:   "0.0.0.0",
						EnvVars: []string{"CORELEDGER_HOST"},
					},
					&cli.IntFlag{
						Name:    "port",
						Usage:   "Server port",
						Value:   8080,
						EnvVars: []string{"CORELEDGER_PORT"},
					},
					&cli.StringFlag{
						Name:  "env-file",
						Usage: "Path to a .env file to load before reading CORELEDGER_* vars",
						Value: ".env",
					},
				},
				Action: runServer,
			},
			{
				Name:  "migrate",
				Usage: "Run journal and read-model migrations",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "database",
						Usage:   "Database connection string (sqlite://path/to/db.sqlite or postgresql://...)",
						Value:   "sqlite://./data/coreledger.db",
						EnvVars: []string{"CORELEDGER_DATABASE"},
					},
				},
				Action: runMigrate,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// parseDatabase parses the database connection string and returns driver and
// DSN, mirroring the sqlite://.../postgresql://... convention journal.Open
// uses internally.
func parseDatabase(dbURL string) (driver, dsn string, err error) {
	if strings.HasPrefix(dbURL, "sqlite://") {
		driver = "sqlite3"
		dsn = strings.TrimPrefix(dbURL, "sqlite://")

		dir := filepath.Dir(dsn)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return "", "", fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		if !strings.Contains(dsn, "?") {
			dsn += "?_fk=1"
		}
		return driver, dsn, nil
	} else if strings.HasPrefix(dbURL, "postgresql://") || strings.HasPrefix(dbURL, "postgres://") {
		return "postgres", dbURL, nil
	}
	return "", "", fmt.Errorf("unsupported database URL format: %s (use sqlite:// or postgresql://)", dbURL)
}

func runMigrate(c *cli.Context) error {
	driver, dsn, err := parseDatabase(c.String("database"))
	if err != nil {
		return err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return fmt.Errorf("failed opening connection to %s: %w", driver, err)
	}
	defer db.Close()

	log.Printf("Running migrations on %s...\n", driver)
	if _, err := journal.NewSQLStore(db, driver, nil); err != nil {
		return fmt.Errorf("journal migration: %w", err)
	}
	if _, err := billingfanout.NewProjectionStore(db, driver); err != nil {
		return fmt.Errorf("billing projection migration: %w", err)
	}
	log.Println("Migrations completed")
	return nil
}

func runServer(c *cli.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	_, zlog := logger.PrepareLogger(ctx)
	defer zlog.Sync()

	cfg, err := config.Load(c.String("env-file"))
	if err != nil {
		return err
	}

	driver, dsn, err := parseDatabase(cfg.Database)
	if err != nil {
		return err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return fmt.Errorf("failed opening connection to %s: %w", driver, err)
	}
	defer db.Close()

	store, err := journal.NewSQLStore(db, driver, logger.SQLQueryLogger(zlog))
	if err != nil {
		return fmt.Errorf("journal: %w", err)
	}
	defer store.Close()

	projection, err := billingfanout.NewProjectionStore(db, driver)
	if err != nil {
		return fmt.Errorf("billing projection: %w", err)
	}

	reg := registry.New()

	var coordinator *sharding.Coordinator
	var etcdClient *etcd.Client
	if len(cfg.EtcdEndpoints) > 0 {
		etcdClient, err = etcd.NewClient(etcd.Config{Endpoints: cfg.EtcdEndpoints})
		if err != nil {
			return fmt.Errorf("etcd: %w", err)
		}
		defer etcdClient.Close()

		nodeID := sharding.GenerateNodeID()
		nodeRegistry, err := sharding.NewRegistry(etcdClient, nodeID)
		if err != nil {
			return fmt.Errorf("shard registry: %w", err)
		}
		if err := nodeRegistry.Start(ctx); err != nil {
			return fmt.Errorf("shard registry start: %w", err)
		}
		defer nodeRegistry.Stop(context.Background())

		coordinator = sharding.NewCoordinator(nodeRegistry)
		if err := coordinator.Start(ctx); err != nil {
			return fmt.Errorf("shard coordinator: %w", err)
		}
	}

	bus := broadcast.NewRedisPubSub(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}))
	reg.Register(registry.TagBroadcast, bus)
	defer bus.Close()

	sched := scheduler.NewInMemoryProxy(256)
	reg.Register(registry.TagScheduler, sched)

	var notifyChannel channel.Channel
	if cfg.SendgridAPIKey != "" {
		sg, err := channel.NewSendGridChannel(channel.SendGridConfig{
			APIKey:    cfg.SendgridAPIKey,
			FromEmail: cfg.SendgridFrom,
			FromName:  "Core Ledger",
		})
		if err != nil {
			return fmt.Errorf("sendgrid channel: %w", err)
		}
		notifyChannel = sg
	}
	var notifier *notify.Dispatcher
	if notifyChannel != nil {
		notifier = notify.NewDispatcher(notifyChannel)
		reg.Register(registry.TagNotifier, notifier)
	}

	var statements billingstatement.Store
	if cfg.MinioAccessKey != "" {
		minioStore, err := billingstatement.NewMinioStore(billingstatement.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			return fmt.Errorf("minio: %w", err)
		}
		statements = minioStore
	} else {
		statements = billingstatement.NewMemoryStore()
	}

	feeThreshold, err := money.NewFromString(cfg.FeeThreshold)
	if err != nil {
		return fmt.Errorf("fee threshold: %w", err)
	}
	feeAmount, err := money.NewFromString(cfg.FeeAmount)
	if err != nil {
		return fmt.Errorf("fee amount: %w", err)
	}

	// The transfer coordinator, domestic worker, and closure finalizer all
	// need the account Runtime, which doesn't exist until the account actor
	// is built; the account actor, in turn, needs all three already built as
	// Deps. Construct each with a nil account runtime first and bind it with
	// SetAccounts once accountActor.Runtime exists, breaking the
	// construction-order cycle.
	txCoordinator := transfercoordinator.New(nil, transfercoordinator.DefaultConfig, zlog)
	reg.Register(registry.TagTransferCoordinator, txCoordinator)

	breakerCfg := domestictransfer.BreakerConfig{FailureThreshold: cfg.BreakerFailureThreshold, Cooldown: cfg.BreakerCooldown}
	breaker := domestictransfer.NewBreaker(breakerCfg, bus, zlog)
	gateway := domestictransfer.NewGateway(cfg.GatewayBaseURL)
	domesticWorker := domestictransfer.New(nil, gateway, breaker, domestictransfer.DefaultConfig, zlog)
	reg.Register(registry.TagDomesticWorker, domesticWorker)

	closureFinalizer := closure.New(nil, sched, closure.DefaultConfig, zlog)
	reg.Register(registry.TagClosureFinalizer, closureFinalizer)

	// The employee actor needs the account Runtime too (to forward card
	// debits); bind it the same way once accountActor.Runtime exists.
	employeeActor := employeeactor.New(employeeactor.Deps{
		Store:       store,
		Coordinator: coordinator,
		Notifier:    notifier,
		Log:         zlog,
	})
	reg.Register(registry.TagEmployeeRuntime, employeeActor.Runtime)

	accountActor := accountactor.New(accountactor.Deps{
		Store:        store,
		Coordinator:  coordinator,
		Employees:    employeeActor.Runtime,
		Transfers:    txCoordinator,
		Domestic:     domesticWorker,
		Closure:      closureFinalizer,
		Notifier:     notifier,
		Scheduler:    sched,
		Bus:          bus,
		Statements:   statements,
		Projection:   projection,
		FeeThreshold: feeThreshold,
		FeeAmount:    feeAmount,
		Log:          zlog,
	})
	reg.Register(registry.TagAccountRuntime, accountActor.Runtime)

	txCoordinator.SetAccounts(accountActor.Runtime)
	domesticWorker.SetAccounts(accountActor.Runtime)
	closureFinalizer.SetAccounts(accountActor.Runtime)
	employeeActor.SetAccounts(accountActor.Runtime)

	if err := accountActor.Runtime.RecoverKnownEntities(ctx); err != nil {
		zlog.Warn("account entity recovery failed", zap.Error(err))
	}
	if err := employeeActor.Runtime.RecoverKnownEntities(ctx); err != nil {
		zlog.Warn("employee entity recovery failed", zap.Error(err))
	}

	var elector *leaderelect.Elector
	nodeID := "single-node"
	if etcdClient != nil {
		elector, err = leaderelect.New(etcdClient, "/coreledger/billing-fanout", 10)
		if err != nil {
			return fmt.Errorf("billing fanout elector: %w", err)
		}
		defer elector.Close()
	}

	fanout := billingfanout.New(projection, accountActor.Runtime, bus, elector, billingfanout.Config{
		Lookback:      account.MaintenanceFeeLookback,
		ThrottleRate:  rate.Limit(cfg.BillingThrottleRate),
		ThrottleBurst: cfg.BillingThrottleBurst,
	}, zlog)
	reg.Register(registry.TagBillingFanout, fanout)

	go runBillingFanoutLoop(ctx, fanout, nodeID, zlog)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	addr := fmt.Sprintf("%s:%d", cfg.Host, c.Int("port"))
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	zlog.Info("coreledger server ready", zap.String("addr", addr))
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal("http server error", zap.Error(err))
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zlog.Warn("server shutdown error", zap.Error(err))
	}
	zlog.Info("server stopped")
	return nil
}

// runBillingFanoutLoop fires one BillingCycleFanout pass a day; in
// production this tick instead arrives from the external scheduler (§4.7),
// but a local ticker keeps the single-process deployment self-contained.
func runBillingFanoutLoop(ctx context.Context, fanout *billingfanout.Fanout, nodeID string, zlog *zap.Logger) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := fanout.Trigger(ctx, nodeID); err != nil {
				zlog.Warn("billing fanout pass failed", zap.Error(err))
			}
		}
	}
}

