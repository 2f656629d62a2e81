package telemetry

import (
	"context"
	"fmt"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// InfluxConfig holds InfluxDB connection configuration
type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// InfluxSink writes hashrate and block outcome series to InfluxDB.
// Writes are batched and non-blocking; write failures surface on Errors.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	bucket   string
	org      string
}

// NewInfluxSink creates an InfluxDB sink and checks the server is healthy
func NewInfluxSink(ctx context.Context, cfg *InfluxConfig) (*InfluxSink, error) {
	options := influxdb2.DefaultOptions().
		SetBatchSize(100).
		SetFlushInterval(uint(time.Second / time.Millisecond))
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, options)

	// Test connection
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	sink := &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
		bucket:   cfg.Bucket,
		org:      cfg.Org,
	}

	if err := sink.Health(ctx); err != nil {
		client.Close()
		return nil, err
	}

	return sink, nil
}

// Health checks InfluxDB connectivity
func (s *InfluxSink) Health(ctx context.Context) error {
	health, err := s.client.Health(ctx)
	if err != nil {
		return fmt.Errorf("failed to check InfluxDB health: %w", err)
	}

	if health.Status != "pass" {
		msg := ""
		if health.Message != nil {
			msg = *health.Message
		}
		return fmt.Errorf("InfluxDB health check failed: %s", msg)
	}

	return nil
}

// WriteHashrate queues a hashrate sample for one worker
func (s *InfluxSink) WriteHashrate(service string, worker int, hashesPerSecond float64) {
	s.writeAPI.WritePoint(hashratePoint(service, worker, hashesPerSecond, time.Now()))
}

// WriteBlock queues a block outcome
func (s *InfluxSink) WriteBlock(service string, outcome *BlockOutcome) {
	s.writeAPI.WritePoint(blockPoint(service, outcome, time.Now()))
}

// Errors returns the channel of asynchronous write failures
func (s *InfluxSink) Errors() <-chan error {
	return s.writeAPI.Errors()
}

// Flush forces a write of all pending points
func (s *InfluxSink) Flush() {
	s.writeAPI.Flush()
}

// Close flushes pending points and closes the client
func (s *InfluxSink) Close() {
	s.writeAPI.Flush()
	s.client.Close()
}

func hashratePoint(service string, worker int, hashesPerSecond float64, at time.Time) *write.Point {
	tags := map[string]string{
		"service":   service,
		"worker_id": strconv.Itoa(worker),
	}

	fields := map[string]interface{}{
		"hashrate": hashesPerSecond,
	}

	return write.NewPoint("hashrate", tags, fields, at)
}

func blockPoint(service string, outcome *BlockOutcome, at time.Time) *write.Point {
	tags := map[string]string{
		"service":   service,
		"worker_id": strconv.Itoa(outcome.Worker),
		"status":    outcome.Status,
	}

	fields := map[string]interface{}{
		"hash":          outcome.Hash,
		"previous_hash": outcome.PreviousHash,
		"nonce":         int64(outcome.Nonce),
		"tx_count":      outcome.Transactions,
		"reward":        outcome.Reward,
		"search_ms":     float64(outcome.SearchTime) / float64(time.Millisecond),
		"latency_ms":    float64(outcome.Latency) / float64(time.Millisecond),
		"count":         1,
	}

	return write.NewPoint("blocks", tags, fields, at)
}
