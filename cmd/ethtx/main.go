package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethtx/ethtx"
	"github.com/ethtx/ethtx/compiler"
	"github.com/ethtx/ethtx/config"
	"github.com/ethtx/ethtx/flags"
	ethlog "github.com/ethtx/ethtx/log"
	"github.com/ethtx/ethtx/metrics"
)

var (
	Version   = "v0.0.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Stdout, os.Stderr, os.Args, afero.NewOsFs())
	stop()
	if err != nil {
		log.Crit("Application failed", "message", err)
	}
}

func run(ctx context.Context, w io.Writer, ew io.Writer, args []string, fs afero.Fs) error {
	app := cli.NewApp()
	app.Writer = w
	app.ErrWriter = ew
	app.Flags = flags.Flags
	app.Version = ethtx.FormatVersion(Version, GitCommit, GitDate, "")
	app.Name = "ethtx"
	app.Usage = "Deploy and drive smart contracts through a node's JSON-RPC endpoint."
	app.Commands = commands(fs)
	return app.RunContext(ctx, args)
}

// env is what every command runs with.
type env struct {
	cfg     *config.Config
	log     log.Logger
	metrics *metrics.Metrics
	server  *metrics.Server
	svc     *ethtx.Service
}

func newEnv(cliCtx *cli.Context, fs afero.Fs, connect bool) (*env, error) {
	cfg, err := flags.ConfigFromCLI(cliCtx, fs, cliCtx.App.Version)
	if err != nil {
		return nil, err
	}
	logger := ethlog.NewLogger(cliCtx.App.ErrWriter, cfg.LogConfig)
	e := &env{
		cfg:     cfg,
		log:     logger,
		metrics: metrics.NewMetrics("default"),
	}
	if cfg.MetricsConfig.Enabled {
		srv, err := metrics.StartServer(e.metrics.Registry(), cfg.MetricsConfig.ListenAddr, cfg.MetricsConfig.ListenPort)
		if err != nil {
			return nil, fmt.Errorf("failed to start metrics server: %w", err)
		}
		logger.Info("Started metrics server", "addr", srv.Addr())
		e.server = srv
	}
	e.metrics.RecordInfo(cfg.Version)

	svc, err := ethtx.New(ethtx.Options{
		Log:                  logger,
		Metrics:              e.metrics,
		GasPolicy:            cfg.GasPolicy(),
		DialAttempts:         cfg.DialAttempts,
		PollInterval:         cfg.PollInterval,
		ReceiptQueryInterval: cfg.ReceiptQueryInterval,
		Compiler:             compiler.NewSolc(cfg.Solc.Path, cfg.Solc.Constraint, logger),
		Fs:                   fs,
	})
	if err != nil {
		e.close()
		return nil, err
	}
	e.svc = svc
	if connect {
		gen, err := cfg.ChainGeneration()
		if err != nil {
			e.close()
			return nil, err
		}
		if err := svc.Connect(cliCtx.Context, cfg.Endpoint, ethtx.ConnectOptions{Generation: gen}); err != nil {
			e.close()
			return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Endpoint, err)
		}
	}
	e.metrics.RecordUp()
	return e, nil
}

func (e *env) close() {
	if e.svc != nil {
		e.svc.Close()
	}
	if e.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.server.Stop(ctx); err != nil {
			e.log.Warn("Failed to stop metrics server", "err", err)
		}
	}
}

// action wraps fn with the environment setup. Commands that do not talk to a node pass connect=false.
func action(fs afero.Fs, connect bool, fn func(cliCtx *cli.Context, e *env) error) cli.ActionFunc {
	return func(cliCtx *cli.Context) error {
		e, err := newEnv(cliCtx, fs, connect)
		if err != nil {
			return err
		}
		defer e.close()
		return fn(cliCtx, e)
	}
}
