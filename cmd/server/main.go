package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/sipfs/policy-escrow-backend/api"
	"github.com/sipfs/policy-escrow-backend/cmd/flags"
	"github.com/sipfs/policy-escrow-backend/gateway"
	"github.com/sipfs/policy-escrow-backend/identity"
	"github.com/sipfs/policy-escrow-backend/interfaces"
	"github.com/sipfs/policy-escrow-backend/kvstore"
	"github.com/sipfs/policy-escrow-backend/ledger"
	"github.com/sipfs/policy-escrow-backend/metrics"
	"github.com/sipfs/policy-escrow-backend/records"
	"github.com/sipfs/policy-escrow-backend/storage"
)

const tokenIssuer = "policy-escrow"

func main() {
	app := &cli.App{
		Name:  "escrow-server",
		Usage: "Serve the policy escrow API",
		Flags: append([]cli.Flag{
			flags.ListenAddrFlag,
			flags.DBDirFlag,
			flags.StorageURIFlag,
			flags.RedisURLFlag,
			flags.JWTSecretFlag,
			flags.RetryAttemptsFlag,
			flags.RetryPolicyFlag,
			flags.LogServiceFlagFn("escrow-server"),
		}, flags.CommonFlags...),
		Action: runServer,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runServer(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)
	cfg := flags.ConfigureServer(cCtx, logger, cCtx.String(flags.ListenAddrFlag.Name))

	// Ledger state: Badger on disk, or in-memory for development.
	var store interfaces.KVStore
	if dir := cCtx.String(flags.DBDirFlag.Name); dir != "" {
		badgerStore, err := kvstore.NewBadgerStore(dir, logger)
		if err != nil {
			logger.Error("Failed to open ledger database", "err", err, "dir", dir)
			return err
		}
		defer badgerStore.Close()
		store = badgerStore
		logger.Info("Using Badger ledger store", "dir", dir)
	} else {
		store = kvstore.NewMemoryStore()
		logger.Warn("Using in-memory ledger store, state is lost on restart")
	}

	// Content storage from the configured URIs.
	uris := cCtx.StringSlice(flags.StorageURIFlag.Name)
	if len(uris) == 0 {
		uris = []string{"file:///var/lib/policy-escrow/blobs"}
	}
	locations := make([]interfaces.StorageLocation, 0, len(uris))
	for _, uri := range uris {
		loc, err := interfaces.NewStorageLocation(uri)
		if err != nil {
			logger.Error("Invalid storage URI", "err", err, "uri", uri)
			return err
		}
		locations = append(locations, loc)
	}
	blobs, err := storage.NewFactory(logger).CreateMultiBackend(locations)
	if err != nil {
		logger.Error("Failed to create storage backends", "err", err)
		return err
	}

	// Download tallies and notifications: Redis, or in-memory.
	var recordStore interfaces.RecordStore
	if redisURL := cCtx.String(flags.RedisURLFlag.Name); redisURL != "" {
		redisStore, err := records.NewRedisStore(redisURL)
		if err != nil {
			logger.Error("Failed to connect to Redis", "err", err)
			return err
		}
		defer redisStore.Close()
		recordStore = redisStore
		logger.Info("Using Redis record store")
	} else {
		recordStore = records.NewMemoryStore()
		logger.Warn("Using in-memory record store")
	}

	gw := gateway.New(gateway.Config{
		MaxAttempts: cCtx.Int(flags.RetryAttemptsFlag.Name),
		Policy:      gateway.RetryPolicy(cCtx.String(flags.RetryPolicyFlag.Name)),
	}, logger)

	tokens := identity.NewTokenService([]byte(cCtx.String(flags.JWTSecretFlag.Name)), tokenIssuer)
	handler := api.NewHandler(
		ledger.New(store, logger),
		gw,
		blobs,
		recordStore,
		tokens,
		identity.NewCredentialStore(store),
		metrics.New(),
		logger,
	)

	server, err := api.New(cfg, handler, tokens)
	if err != nil {
		logger.Error("Failed to create server", "err", err)
		return err
	}

	logger.Info("Starting server", "listen", cfg.ListenAddr, "metrics", cfg.MetricsAddr)
	server.RunInBackground()

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)
	<-exit
	logger.Info("Shutdown signal received")

	server.Shutdown()
	logger.Info("Server shutdown complete")
	return nil
}
