package main

import (
	"context"
	"encoding/hex"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lightning-gateway/config"
	"lightning-gateway/internal/auth"
	"lightning-gateway/internal/database"
	"lightning-gateway/internal/exchange"
	"lightning-gateway/internal/invoice"
	"lightning-gateway/internal/lightning"
	"lightning-gateway/internal/monitor"
	"lightning-gateway/internal/rpc"
	"lightning-gateway/pkg/cache"
	"lightning-gateway/pkg/logger"
	"lightning-gateway/pkg/pubsub"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to the config file")
	flag.Parse()

	if err := logger.Init(logger.GetEnv()); err != nil {
		panic(err)
	}
	defer logger.Sync()

	var cfg config.ServerConfig
	if err := config.Load(config.Path(*configPath), &cfg); err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	secret, err := hex.DecodeString(cfg.Auth.TokenSecret)
	if err != nil {
		logger.Fatal("Token secret is not valid hex", zap.Error(err))
	}
	tokens, err := auth.NewTokenService(secret)
	if err != nil {
		logger.Fatal("Failed to build token service", zap.Error(err))
	}

	db, err := database.NewDB(database.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		DB:              cfg.Database.DB,
		SslMode:         cfg.Database.SslMode,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := db.RunMigrations(); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	ctx := context.Background()
	rateCache, err := cache.New(ctx, cache.Config{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer rateCache.Close()

	provider, err := exchange.NewProvider(cfg.Exchange.Provider, cfg.Exchange.BaseURL, nil)
	if err != nil {
		logger.Fatal("Failed to build price provider", zap.Error(err))
	}
	rates := exchange.NewCachedRates(
		exchange.NewRates(provider),
		rateCache,
		time.Duration(cfg.Exchange.CacheTTL)*time.Second,
	)

	bus := pubsub.New()
	invoices := database.NewInvoiceRepository(db, bus)
	accounts := database.NewAccountRepository(db)
	accountService := auth.NewService(accounts, cfg.Auth.PasswordSalt)

	node := lightning.NewClient(lightning.Config{SocketPath: cfg.Lightning.SocketPath})

	mon := monitor.New(monitor.Config{
		LabelPrefix:  cfg.Lightning.LabelPrefix,
		PollInterval: time.Duration(cfg.Lightning.PollIntervalMs) * time.Millisecond,
	}, node, invoices, bus)
	mon.Start()
	defer mon.Stop()

	server := rpc.NewServer(rpc.Options{
		Tokens:          tokens,
		Accounts:        accountService,
		Invoices:        invoice.NewGenerator(invoices, rates, bus, 0),
		Bus:             bus,
		PoolSize:        cfg.Server.PoolSize,
		MaxFeedsAllowed: cfg.Server.MaxFeedsAllowed,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe(cfg.Server.ListenAddr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("Shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			logger.Error("Server failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown did not complete cleanly", zap.Error(err))
	}
}
