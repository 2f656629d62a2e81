// Package telemetry forwards mining metrics to optional sinks (InfluxDB, Redis).
// Sinks are best effort: a failing or missing sink never affects mining.
package telemetry

import (
	"context"
	"time"

	"github.com/bardlex/gominer/pkg/circuit"
	"github.com/bardlex/gominer/pkg/errors"
	"github.com/bardlex/gominer/pkg/log"
	"github.com/bardlex/gominer/pkg/retry"
)

const (
	sinkTimeout   = 2 * time.Second
	flushInterval = 10 * time.Second
)

// Config selects and configures the sinks. Empty URLs disable a sink.
type Config struct {
	Service        string
	RedisURL       string
	Influx         InfluxConfig
	HashrateWindow time.Duration
}

// BlockOutcome describes one found block and the node's verdict on it
type BlockOutcome struct {
	Worker       int
	Hash         string
	PreviousHash string
	Nonce        uint64
	Transactions int
	// Reward is the coinbase amount: block reward plus fees
	Reward     int64
	Status     string
	SearchTime time.Duration
	Latency    time.Duration
}

// Recorder fans metrics out to the configured sinks. A nil or sink-less Recorder is a no-op.
type Recorder struct {
	service string
	window  time.Duration
	influx  *InfluxSink
	redis   *RedisSink

	circuitBreaker *circuit.Breaker
	retryConfig    *retry.Config
	logger         *log.Logger
}

// NewRecorder connects the configured sinks. A sink that cannot be reached is
// logged and left disabled.
func NewRecorder(ctx context.Context, cfg *Config, logger *log.Logger) *Recorder {
	logger = logger.WithComponent("telemetry")

	window := cfg.HashrateWindow
	if window <= 0 {
		window = 10 * time.Minute
	}

	r := &Recorder{
		service: cfg.Service,
		window:  window,
		circuitBreaker: circuit.New(&circuit.Config{
			MaxFailures:     3,
			SuccessRequired: 2,
			Timeout:         30 * time.Second,
			ResetTimeout:    60 * time.Second,
			OnStateChange: func(from, to circuit.State) {
				logger.Warn("telemetry circuit state changed", "from", from.String(), "to", to.String())
			},
		}),
		retryConfig: retry.SinkConfig(),
		logger:      logger,
	}

	if cfg.Influx.URL != "" {
		sink, err := NewInfluxSink(ctx, &cfg.Influx)
		if err != nil {
			logger.WithError(err).Warn("InfluxDB sink disabled", "url", cfg.Influx.URL)
		} else {
			r.influx = sink
			logger.Info("InfluxDB sink enabled", "url", cfg.Influx.URL, "bucket", cfg.Influx.Bucket)
		}
	}

	if cfg.RedisURL != "" {
		sink, err := NewRedisSink(ctx, cfg.RedisURL, cfg.Service)
		if err != nil {
			logger.WithError(err).Warn("Redis sink disabled")
		} else {
			r.redis = sink
			logger.Info("Redis sink enabled")
		}
	}

	return r
}

// Enabled reports whether at least one sink is active
func (r *Recorder) Enabled() bool {
	return r != nil && (r.influx != nil || r.redis != nil)
}

// RecordHashrate forwards one worker's sampled rate
func (r *Recorder) RecordHashrate(ctx context.Context, worker int, hashesPerSecond float64) {
	if !r.Enabled() {
		return
	}

	if r.influx != nil {
		r.influx.WriteHashrate(r.service, worker, hashesPerSecond)
	}

	if r.redis != nil {
		err := r.withSink(ctx, "record_hashrate", func(ctx context.Context) error {
			return r.redis.RecordHashrate(ctx, worker, hashesPerSecond, r.window)
		})
		if err != nil {
			r.logger.WithError(err).Debug("failed to record hashrate", "worker_id", worker)
		}
	}
}

// RecordBlock forwards a block outcome
func (r *Recorder) RecordBlock(ctx context.Context, outcome *BlockOutcome) {
	if !r.Enabled() || outcome == nil {
		return
	}

	if r.influx != nil {
		r.influx.WriteBlock(r.service, outcome)
	}

	if r.redis != nil {
		err := r.withSink(ctx, "record_block", func(ctx context.Context) error {
			_, err := r.redis.IncrementBlocks(ctx, outcome.Status)
			return err
		})
		if err != nil {
			r.logger.WithError(err).Warn("failed to record block outcome",
				"block_hash", outcome.Hash,
				"status", outcome.Status,
			)
		}
	}
}

// Run flushes InfluxDB periodically and logs asynchronous write failures until ctx is done
func (r *Recorder) Run(ctx context.Context) {
	if r == nil || r.influx == nil {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	writeErrors := r.influx.Errors()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.influx.Flush()
		case err, ok := <-writeErrors:
			if !ok {
				writeErrors = nil
				continue
			}
			r.logger.WithError(err).Warn("InfluxDB write failed")
		}
	}
}

// Health checks every enabled sink
func (r *Recorder) Health(ctx context.Context) error {
	if !r.Enabled() {
		return nil
	}

	if r.influx != nil {
		if err := r.influx.Health(ctx); err != nil {
			return errors.Wrap(err, errors.ErrorTypeTelemetry, "influx_health", "InfluxDB health check failed")
		}
	}

	if r.redis != nil {
		if err := r.redis.Health(ctx); err != nil {
			return errors.Wrap(err, errors.ErrorTypeTelemetry, "redis_health", "Redis health check failed")
		}
	}

	return nil
}

// Close flushes and closes every sink
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}

	if r.influx != nil {
		r.influx.Close()
	}

	if r.redis != nil {
		if err := r.redis.Close(); err != nil {
			return errors.Wrap(err, errors.ErrorTypeTelemetry, "redis_close", "failed to close Redis")
		}
	}

	return nil
}

// withSink runs fn against a sink with a bounded timeout, retry and the shared breaker
func (r *Recorder) withSink(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	return r.circuitBreaker.Execute(ctx, func() error {
		return retry.Do(ctx, r.retryConfig, func() error {
			callCtx, cancel := context.WithTimeout(ctx, sinkTimeout)
			defer cancel()

			if err := fn(callCtx); err != nil {
				return errors.Wrap(err, errors.ErrorTypeTelemetry, operation, "telemetry sink call failed")
			}
			return nil
		})
	})
}
