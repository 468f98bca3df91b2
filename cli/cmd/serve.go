package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/scriptrun/adapter"
	"github.com/pithecene-io/scriptrun/adapter/redis"
	"github.com/pithecene-io/scriptrun/adapter/webhook"
	"github.com/pithecene-io/scriptrun/cli/config"
	"github.com/pithecene-io/scriptrun/log"
	"github.com/pithecene-io/scriptrun/metrics"
	"github.com/pithecene-io/scriptrun/runtime"
	"github.com/pithecene-io/scriptrun/worker"
)

// ServeCommand returns the serve command, which runs the tool worker on
// stdin/stdout until stdin closes.
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve snippet tools over JSON-RPC on stdio",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "mcp",
				Usage: "Speak the Model Context Protocol instead of the line protocol",
			},
			&cli.IntFlag{
				Name:  "concurrency",
				Usage: "Maximum in-flight tool calls (default 8)",
			},
			&cli.StringFlag{
				Name:  "worker-id",
				Usage: "Worker identifier in logs and published events",
			},
			&cli.BoolFlag{
				Name:  "in-process",
				Usage: "Run JavaScript in the embedded VM; other languages are rejected",
			},
			TimeoutFlag,
			CacheDirFlag,
		},
		Action: serveAction,
	}
}

func serveAction(c *cli.Context) error {
	cfg, err := mustConfig(c)
	if err != nil {
		return err
	}

	transport := "stdio"
	if c.Bool("mcp") {
		transport = "mcp"
	}
	logger := newLogger(cfg, "worker").With(map[string]any{"transport": transport})
	defer logger.Sync()
	collector := metrics.NewCollector(transport)

	pub, err := buildAdapter(cfg.Adapter)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid adapter config: %v", err), exitInvalidInput)
	}
	if pub != nil {
		defer func() {
			if err := pub.Close(); err != nil {
				logger.Warn("failed to close adapter", map[string]any{"error": err.Error()})
			}
		}()
	}

	concurrency := cfg.Concurrency
	if c.IsSet("concurrency") {
		concurrency = c.Int("concurrency")
	}
	workerID := cfg.Worker.ID
	if c.IsSet("worker-id") {
		workerID = c.String("worker-id")
	}

	srv, err := worker.NewServer(worker.Config{
		Runner:           buildRunner(c.Bool("in-process"), cfg, logger, collector),
		ExecutionTimeout: cfg.Timeout.Duration,
		MaxConcurrent:    concurrency,
		Adapter:          pub,
		WorkerID:         workerID,
		Logger:           logger,
		Collector:        collector,
	})
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidInput)
	}

	ctx, cancel := signalContext()
	defer cancel()

	start := time.Now()
	logger.Info("worker serving", nil)
	if c.Bool("mcp") {
		err = srv.ServeMCP(ctx)
	} else {
		err = srv.Serve(ctx, os.Stdin, os.Stdout)
	}

	snap := collector.Snapshot()
	logger.Info("worker stopped", map[string]any{
		"uptime":               time.Since(start).Round(time.Millisecond).String(),
		"executions_started":   snap.ExecutionsStarted,
		"executions_succeeded": snap.ExecutionsSucceeded,
		"executions_failed":    snap.ExecutionsFailed,
	})
	if err != nil && ctx.Err() == nil {
		return cli.Exit(fmt.Sprintf("worker failed: %v", err), exitCrash)
	}
	return nil
}

func buildRunner(inProcess bool, cfg *config.Config, logger *log.Logger, collector *metrics.Collector) runtime.Runner {
	if inProcess {
		return &runtime.InProcessRunner{Logger: logger, Collector: collector}
	}
	return &runtime.ProcessRunner{
		Commands:  runtimeCommands(cfg),
		Cache:     newCache(cfg),
		Logger:    logger,
		Collector: collector,
	}
}

// buildAdapter creates the configured event adapter. It returns nil when
// no adapter is configured.
func buildAdapter(ac config.AdapterConfig) (adapter.Adapter, error) {
	retries := -1
	if ac.Retries != nil {
		retries = *ac.Retries
	}

	switch ac.Type {
	case "":
		return nil, nil
	case "webhook":
		if retries < 0 {
			retries = webhook.DefaultRetries
		}
		return webhook.New(webhook.Config{
			URL:     ac.URL,
			Headers: ac.Headers,
			Secret:  ac.Secret,
			Timeout: ac.Timeout.Duration,
			Retries: retries,
		})
	case "redis":
		if retries < 0 {
			retries = redis.DefaultRetries
		}
		return redis.New(redis.Config{
			URL:     ac.URL,
			Channel: ac.Channel,
			Mode:    ac.Mode,
			MaxLen:  ac.MaxLen,
			Timeout: ac.Timeout.Duration,
			Retries: retries,
		})
	default:
		return nil, fmt.Errorf("unknown adapter type: %s (must be webhook or redis)", ac.Type)
	}
}
