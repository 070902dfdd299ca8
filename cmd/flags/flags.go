// Package flags holds the CLI flags and setup helpers shared by the
// escrow binaries.
package flags

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/sipfs/policy-escrow-backend/api"
	"github.com/sipfs/policy-escrow-backend/common"
)

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJSONFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUIDFlag.Name)
	logService := cCtx.String("log-service")

	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: logService,
		Version: common.Version,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

func ConfigureServer(cCtx *cli.Context, logger *slog.Logger, listenAddr string) *api.ServerConfig {
	metricsAddr := cCtx.String(MetricsAddrFlag.Name)
	enablePprof := cCtx.Bool(PprofFlag.Name)
	drainDuration := time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second

	return &api.ServerConfig{
		ListenAddr:               listenAddr,
		MetricsAddr:              metricsAddr,
		Log:                      logger,
		EnablePprof:              enablePprof,
		DrainDuration:            drainDuration,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
	}
}

var ListenAddrFlag = &cli.StringFlag{
	Name:  "listen-addr",
	Value: "127.0.0.1:8080",
	Usage: "address to listen on for the escrow API",
}

var MetricsAddrFlag = &cli.StringFlag{
	Name:  "metrics-addr",
	Value: "127.0.0.1:8090",
	Usage: "address to listen on for Prometheus metrics",
}

var DBDirFlag = &cli.StringFlag{
	Name:  "db-dir",
	Value: "",
	Usage: "directory for the Badger ledger database (empty for in-memory)",
}

var StorageURIFlag = &cli.StringSliceFlag{
	Name:  "storage-uri",
	Usage: "content storage backend URI (repeatable): file:///dir, ipfs://host:port, s3://bucket.region.amazonaws.com/prefix?..., vault://TOKEN@host:port/mount/path",
}

var RedisURLFlag = &cli.StringFlag{
	Name:  "redis-url",
	Value: "",
	Usage: "Redis URL for download tallies and notifications (empty for in-memory)",
}

var JWTSecretFlag = &cli.StringFlag{
	Name:     "jwt-secret",
	Required: true,
	Usage:    "HMAC secret for signing bearer tokens",
	EnvVars:  []string{"ESCROW_JWT_SECRET"},
}

var RetryAttemptsFlag = &cli.IntFlag{
	Name:  "retry-attempts",
	Value: 5,
	Usage: "maximum submission attempts per ledger transaction",
}

var RetryPolicyFlag = &cli.StringFlag{
	Name:  "retry-policy",
	Value: "exponential",
	Usage: "retry backoff policy: 'exponential' or 'fixed'",
}

var ServerURLFlag = &cli.StringFlag{
	Name:  "server-url",
	Value: "http://127.0.0.1:8080",
	Usage: "base URL of the escrow API server",
}

var TokenFlag = &cli.StringFlag{
	Name:    "token",
	Usage:   "bearer token from a previous register or login",
	EnvVars: []string{"ESCROW_TOKEN"},
}

var LogJSONFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}
var LogUIDFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}

var LogServiceFlagFn = func(service string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:  "log-service",
		Value: service,
		Usage: "add 'service' tag to logs",
	}
}

var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
}
var DrainSecondsFlag = &cli.Int64Flag{
	Name:  "drain-seconds",
	Value: 45,
	Usage: "seconds to wait in drain HTTP request",
}

var CommonFlags = []cli.Flag{
	LogJSONFlag,
	LogDebugFlag,
	LogUIDFlag,
	PprofFlag,
	DrainSecondsFlag,
	MetricsAddrFlag,
}
