package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"ledgerfund/internal/chain"
	"ledgerfund/internal/config"
	"ledgerfund/internal/ipfs"
	"ledgerfund/internal/jobs"
	"ledgerfund/internal/loader"
	"ledgerfund/internal/referral"
	"ledgerfund/internal/registry"
	"ledgerfund/internal/server"
	"ledgerfund/internal/storage"
	"ledgerfund/internal/verify"
)

func main() {
	root := &cobra.Command{
		Use:          "ledgerfund",
		Short:        "DAO proposal and referral backend",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API server",
		RunE:  runServe,
	}

	serveCmd.Flags().StringSlice("rpc", nil, "RPC URLs in failover order (comma-separated)")
	serveCmd.Flags().String("registry", "", "proposal registry contract address")
	serveCmd.Flags().String("token", "", "platform token contract address")
	serveCmd.Flags().StringSlice("gateway", nil, "IPFS gateway base URLs (comma-separated)")
	serveCmd.Flags().String("redis", "", "Redis URL for the metadata cache (optional)")
	serveCmd.Flags().String("pg-dsn", "", "Postgres DSN for referrals (optional, in-memory fallback)")
	serveCmd.Flags().String("listen", ":8080", "HTTP listen address")
	serveCmd.Flags().Duration("refresh-interval", 5*time.Minute, "proposal refresh interval")
	serveCmd.Flags().Duration("verify-interval", 15*time.Second, "transfer verification poll interval")
	serveCmd.Flags().Int("workers", 8, "fan-out worker pool size")
	serveCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	serveCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	serveCmd.Flags().Duration("metadata-ttl", time.Hour, "metadata cache TTL")
	serveCmd.Flags().Duration("http-timeout", 30*time.Second, "gateway request timeout")
	serveCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(serveCmd)

	loadCmd := &cobra.Command{
		Use:   "load",
		Short: "Load the proposal snapshot once and write it to disk",
		RunE:  runLoad,
	}

	loadCmd.Flags().StringSlice("rpc", nil, "RPC URLs in failover order (comma-separated)")
	loadCmd.Flags().String("registry", "", "proposal registry contract address")
	loadCmd.Flags().StringSlice("gateway", nil, "IPFS gateway base URLs (comma-separated)")
	loadCmd.Flags().Int("workers", 8, "fan-out worker pool size")
	loadCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	loadCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	loadCmd.Flags().Duration("http-timeout", 30*time.Second, "gateway request timeout")
	loadCmd.Flags().String("out", "./data/proposals.jsonl", "output JSONL path")
	loadCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(loadCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, ldr, tokenDecimals, err := buildPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer chainClient.Close()
	defer ldr.Close()

	store, closeStore, err := buildReferralStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	referrals := referral.NewService(store, logger)

	transfers := verify.NewManager(chainClient, cfg.VerifyInterval, logger)
	defer transfers.StopAll()

	scheduler, err := jobs.NewManager(logger)
	if err != nil {
		return err
	}
	if err := scheduler.RegisterProposalRefresh(ldr, cfg.RefreshInterval); err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Warm the snapshot before taking traffic; failure is non-fatal
	// since the scheduler retries on the next tick.
	if err := ldr.LoadAll(ctx); err != nil {
		logger.Warn("initial proposal load failed", zap.Error(err))
	}

	handler := server.NewHandler(ctx, ldr, referrals, transfers, tokenDecimals, logger)
	engine := server.New(handler)

	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: engine}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening",
			zap.String("addr", cfg.ListenAddr),
			zap.String("rpc", chainClient.Endpoint()),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown failed", zap.Error(err))
	}
	logger.Info("shutdown complete")
	return nil
}

func runLoad(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, ldr, _, err := buildPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer chainClient.Close()
	defer ldr.Close()

	if err := ldr.LoadAll(ctx); err != nil {
		return err
	}

	proposals := ldr.Proposals()
	sink := storage.NewJsonlStorage(cfg.Out)
	if err := sink.PutSnapshot(proposals); err != nil {
		return err
	}

	logger.Info("snapshot written",
		zap.Int("proposals", len(proposals)),
		zap.String("out", cfg.Out),
	)
	return nil
}

func buildPipeline(ctx context.Context, cfg config.Config, logger *zap.Logger) (*chain.Client, *loader.Loader, uint8, error) {
	if len(cfg.RPCURLs) == 0 {
		return nil, nil, 0, fmt.Errorf("at least one rpc url is required")
	}
	if !common.IsHexAddress(cfg.RegistryAddress) {
		return nil, nil, 0, fmt.Errorf("invalid registry address %q", cfg.RegistryAddress)
	}
	if len(cfg.Gateways) == 0 {
		return nil, nil, 0, fmt.Errorf("at least one ipfs gateway is required")
	}

	chainClient, err := chain.DialFirstHealthy(ctx, cfg.RPCURLs, 5*time.Second, logger)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("connect rpc: %w", err)
	}

	tokenDecimals := uint8(18)
	if cfg.TokenAddress != "" {
		if !common.IsHexAddress(cfg.TokenAddress) {
			chainClient.Close()
			return nil, nil, 0, fmt.Errorf("invalid token address %q", cfg.TokenAddress)
		}
		decimals, err := chainClient.TokenDecimals(ctx, common.HexToAddress(cfg.TokenAddress))
		if err != nil {
			logger.Warn("token decimals lookup failed, using 18", zap.Error(err))
		} else {
			tokenDecimals = decimals
		}
	}

	reg, err := registry.New(chainClient, common.HexToAddress(cfg.RegistryAddress), tokenDecimals, logger)
	if err != nil {
		chainClient.Close()
		return nil, nil, 0, err
	}

	metadataClient := ipfs.NewClient(cfg.Gateways, buildMetadataCache(cfg, logger), cfg.HTTPTimeout, logger)

	ldr, err := loader.New(loader.Config{
		Workers:      cfg.Workers,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
	}, reg, reg, metadataClient, logger)
	if err != nil {
		chainClient.Close()
		return nil, nil, 0, err
	}

	return chainClient, ldr, tokenDecimals, nil
}

func buildMetadataCache(cfg config.Config, logger *zap.Logger) ipfs.Cache {
	if cfg.RedisURL == "" {
		return ipfs.NewMemoryCache()
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Warn("invalid redis url, using in-memory metadata cache", zap.Error(err))
		return ipfs.NewMemoryCache()
	}
	return ipfs.NewRedisCache(redis.NewClient(opts), cfg.MetadataTTL, logger)
}

func buildReferralStore(ctx context.Context, cfg config.Config) (referral.Store, func(), error) {
	if cfg.PostgresDSN == "" {
		return referral.NewMemoryStore(), func() {}, nil
	}
	store, err := referral.NewPostgresStore(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("ensure schema: %w", err)
	}
	return store, store.Close, nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
