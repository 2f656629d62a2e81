package telemetry

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSink keeps a rolling hashrate window per worker and block outcome counters
type RedisSink struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisSink connects to the Redis server at url (redis://[:password@]host:port/db).
// All keys are namespaced under prefix.
func NewRedisSink(ctx context.Context, url, prefix string) (*RedisSink, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}
	opts.PoolSize = 4
	opts.MaxRetries = 1
	opts.DialTimeout = 3 * time.Second
	opts.ReadTimeout = 2 * time.Second
	opts.WriteTimeout = 2 * time.Second

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &RedisSink{rdb: rdb, prefix: prefix}, nil
}

// Close closes the Redis connection
func (s *RedisSink) Close() error {
	return s.rdb.Close()
}

// Health checks Redis connectivity
func (s *RedisSink) Health(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// RecordHashrate adds a sample to the worker's window and trims samples older than window
func (s *RedisSink) RecordHashrate(ctx context.Context, worker int, hashesPerSecond float64, window time.Duration) error {
	key := hashrateKey(s.prefix, worker)
	now := time.Now()

	// Store as sorted set with timestamp as score
	member := redis.Z{
		Score:  float64(now.Unix()),
		Member: hashrateMember(now, hashesPerSecond),
	}

	pipe := s.rdb.Pipeline()
	pipe.ZAdd(ctx, key, member)
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(now.Add(-window).Unix(), 10))
	pipe.Expire(ctx, key, window*2)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record hashrate: %w", err)
	}

	return nil
}

// AverageHashrate returns the mean of the worker's samples within window
func (s *RedisSink) AverageHashrate(ctx context.Context, worker int, window time.Duration) (float64, error) {
	key := hashrateKey(s.prefix, worker)
	minScore := time.Now().Add(-window).Unix()

	values, err := s.rdb.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: strconv.FormatInt(minScore, 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get hashrate values: %w", err)
	}

	return averageMembers(values), nil
}

// IncrementBlocks bumps the counter for a submission status and returns its new value
func (s *RedisSink) IncrementBlocks(ctx context.Context, status string) (int64, error) {
	n, err := s.rdb.HIncrBy(ctx, blocksKey(s.prefix), status, 1).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment block counter: %w", err)
	}
	return n, nil
}

// BlockCounts returns the counters for every submission status seen so far
func (s *RedisSink) BlockCounts(ctx context.Context) (map[string]int64, error) {
	raw, err := s.rdb.HGetAll(ctx, blocksKey(s.prefix)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get block counters: %w", err)
	}

	counts := make(map[string]int64, len(raw))
	for status, value := range raw {
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			continue
		}
		counts[status] = n
	}
	return counts, nil
}

func hashrateKey(prefix string, worker int) string {
	return fmt.Sprintf("%s:hashrate:%d", prefix, worker)
}

func blocksKey(prefix string) string {
	return prefix + ":blocks"
}

// hashrateMember makes every sample a distinct set member; the rate follows the colon
func hashrateMember(at time.Time, hashesPerSecond float64) string {
	return strconv.FormatInt(at.UnixNano(), 10) + ":" + strconv.FormatFloat(hashesPerSecond, 'f', -1, 64)
}

func averageMembers(members []string) float64 {
	var total float64
	var n int
	for _, member := range members {
		_, value, ok := strings.Cut(member, ":")
		if !ok {
			continue
		}
		rate, err := strconv.ParseFloat(value, 64)
		if err != nil {
			continue
		}
		total += rate
		n++
	}

	if n == 0 {
		return 0
	}
	return total / float64(n)
}
