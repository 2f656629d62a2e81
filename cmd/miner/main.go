// Package main implements the miner process.
// It polls a node for chain state, mines blocks on N workers and submits solutions.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jessevdk/go-flags"

	"github.com/bardlex/gominer/internal/config"
	"github.com/bardlex/gominer/internal/messaging"
	"github.com/bardlex/gominer/internal/miner"
	"github.com/bardlex/gominer/internal/node"
	"github.com/bardlex/gominer/internal/telemetry"
	"github.com/bardlex/gominer/pkg/log"
	"github.com/bardlex/gominer/pkg/shutdown"
)

// Exit codes
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// cliOptions are the command-line flags. Unset flags keep the environment value.
type cliOptions struct {
	Address string `long:"address" description:"Payout address credited by the coinbase transaction (required)"`
	Host    string `long:"host" description:"Node host"`
	Port    int    `long:"port" description:"Node port"`
	Threads int    `long:"threads" description:"Number of parallel mining workers"`
}

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stderr))
}

func run(ctx context.Context, args []string, stderr io.Writer) int {
	cfg := config.Load()

	if err := applyFlags(cfg, args); err != nil {
		var flagErr *flags.Error
		if errors.As(err, &flagErr) && flagErr.Type == flags.ErrHelp {
			fmt.Fprintln(stderr, err)
			return exitOK
		}
		fmt.Fprintf(stderr, "Invalid arguments: %v\n", err)
		return exitUsage
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Invalid configuration: %v\n", err)
		return exitUsage
	}

	logger := log.New(cfg.ServiceName, cfg.Version, cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting miner",
		"version", cfg.Version,
		"node_url", cfg.NodeURL(),
		"threads", cfg.Threads,
	)

	controller := shutdown.New(ctx)
	stopSignals := controller.ListenForSignals()
	defer stopSignals()

	// Optional sinks; neither may hold up mining
	telemetryRecorder := telemetry.NewRecorder(controller.Context(), &telemetry.Config{
		Service:  cfg.ServiceName,
		RedisURL: cfg.RedisURL,
		Influx: telemetry.InfluxConfig{
			URL:    cfg.InfluxURL,
			Token:  cfg.InfluxToken,
			Org:    cfg.InfluxOrg,
			Bucket: cfg.InfluxBucket,
		},
	}, logger)

	var recorder miner.Recorder
	if telemetryRecorder.Enabled() {
		recorder = telemetryRecorder
		if err := telemetryRecorder.Health(controller.Context()); err != nil {
			logger.WithError(err).Warn("telemetry sinks unhealthy, metrics may be lost")
		}
	}

	var (
		publisher miner.Publisher
		events    *messaging.EventPublisher
	)
	if len(cfg.KafkaBrokers) > 0 {
		events = messaging.NewEventPublisher(cfg.KafkaBrokers, cfg.KafkaTopicPrefix, logger)
		publisher = events
		logger.Info("block events enabled", "brokers", cfg.KafkaBrokers, "prefix", cfg.KafkaTopicPrefix)
	}

	newClient := func() node.ChainStateClient {
		return node.NewClient(cfg.NodeURL(), cfg.RequestTimeout, logger)
	}

	m, err := miner.New(miner.Options{
		Service:          cfg.ServiceName,
		Address:          cfg.MinerAddress,
		Threads:          cfg.Threads,
		PollInterval:     cfg.PollInterval,
		RetryDelay:       cfg.RetryDelay,
		HashrateInterval: cfg.HashrateInterval,
		CheckInterval:    cfg.StaleCheckInterval,
		MaxNonce:         cfg.MaxNonce,
	}, newClient, recorder, publisher, logger)
	if err != nil {
		logger.WithError(err).Error("failed to create miner")
		closeSinks(telemetryRecorder, events, logger)
		return exitUsage
	}

	controller.Go("telemetry", telemetryRecorder.Run)
	m.Start(controller)

	<-controller.Context().Done()
	reason := controller.Reason()
	if reason == "" {
		reason = "context cancelled"
	}
	logger.Info("shutdown requested, waiting for workers", "reason", reason)

	waitCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	code := exitOK
	if err := controller.Wait(waitCtx); err != nil {
		logger.WithError(err).Error("shutdown did not complete in time")
		code = exitFailure
	}

	closeSinks(telemetryRecorder, events, logger)

	stats := m.Stats()
	logger.Info("miner stopped",
		"submitted", stats.Submitted,
		"accepted", stats.Accepted,
		"rejected", stats.Rejected,
		"stale", stats.Stale,
		"exhausted", stats.Exhausted,
		"unreachable", stats.Unreachable,
		"dropped_events", stats.DroppedEvents,
	)

	return code
}

// applyFlags parses args over the environment-derived configuration
func applyFlags(cfg *config.Config, args []string) error {
	opts := cliOptions{
		Address: cfg.MinerAddress,
		Host:    cfg.NodeHost,
		Port:    cfg.NodePort,
		Threads: cfg.Threads,
	}

	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	parser.Name = "miner"

	rest, err := parser.ParseArgs(args)
	if err != nil {
		return err
	}
	if len(rest) > 0 {
		return fmt.Errorf("unexpected arguments: %v", rest)
	}

	cfg.MinerAddress = opts.Address
	cfg.NodeHost = opts.Host
	cfg.NodePort = opts.Port
	cfg.Threads = opts.Threads
	return nil
}

func closeSinks(recorder *telemetry.Recorder, events *messaging.EventPublisher, logger *log.Logger) {
	if events != nil {
		if err := events.Close(); err != nil {
			logger.WithError(err).Warn("failed to close event publisher")
		}
	}
	if err := recorder.Close(); err != nil {
		logger.WithError(err).Warn("failed to close telemetry sinks")
	}
}
