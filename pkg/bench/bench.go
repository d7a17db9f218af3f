// Package bench drives set-then-get cycles against a provider to compare
// direct connections with the async and blocking pools.
package bench

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/kvpool/pkg/kverr"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Target is the operation surface under test. *cache.Manager satisfies it.
type Target interface {
	SetStr(ctx context.Context, key, value string, ttlSeconds int) error
	GetStr(ctx context.Context, key string) (string, error)
}

// Config holds benchmark configuration.
type Config struct {
	// Concurrency is the number of parallel workers.
	Concurrency int

	// Requests is the total number of set-then-get cycles.
	Requests int

	// KeyPrefix namespaces benchmark keys.
	KeyPrefix string

	// KeySpace bounds the number of distinct keys; 0 gives every cycle its own key.
	KeySpace int

	// ValueSize is the payload length in bytes.
	ValueSize int

	// TTL is the expiry in seconds applied to every key.
	TTL int
}

// DefaultConfig returns a moderate load suitable for a local store.
func DefaultConfig() Config {
	return Config{
		Concurrency: 32,
		Requests:    10000,
		KeyPrefix:   "bench",
		KeySpace:    1024,
		ValueSize:   16,
		TTL:         60,
	}
}

// Result summarizes one run.
type Result struct {
	Provider   string              `json:"provider"`
	Requests   int                 `json:"requests"`
	Succeeded  int                 `json:"succeeded"`
	Failed     int                 `json:"failed"`
	Mismatched int                 `json:"mismatched"`
	ByStage    map[kverr.Stage]int `json:"failures_by_stage"`
	Duration   time.Duration       `json:"duration_ns"`
	Throughput float64             `json:"throughput_per_sec"`
	P50        time.Duration       `json:"p50_ns"`
	P95        time.Duration       `json:"p95_ns"`
	P99        time.Duration       `json:"p99_ns"`
	Max        time.Duration       `json:"max_ns"`
}

// String renders a one-line summary.
func (r *Result) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d requests in %s (%.0f/s), %d ok, %d failed",
		r.Provider, r.Requests, r.Duration.Round(time.Millisecond), r.Throughput, r.Succeeded, r.Failed)
	if r.Mismatched > 0 {
		fmt.Fprintf(&b, ", %d mismatched", r.Mismatched)
	}
	fmt.Fprintf(&b, "; p50=%s p95=%s p99=%s max=%s", r.P50, r.P95, r.P99, r.Max)
	return b.String()
}

// Runner executes benchmarks against a single target.
type Runner struct {
	name   string
	target Target
	config Config
	logger zerolog.Logger
}

// NewRunner creates a runner. Non-positive settings fall back to defaults.
func NewRunner(name string, target Target, config Config, logger zerolog.Logger) *Runner {
	def := DefaultConfig()
	if config.Concurrency <= 0 {
		config.Concurrency = def.Concurrency
	}
	if config.Requests <= 0 {
		config.Requests = def.Requests
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = def.KeyPrefix
	}
	if config.ValueSize <= 0 {
		config.ValueSize = def.ValueSize
	}
	if config.TTL < 0 {
		config.TTL = 0
	}

	return &Runner{
		name:   name,
		target: target,
		config: config,
		logger: logger.With().Str("component", "bench").Str("provider", name).Logger(),
	}
}

// Run issues Config.Requests cycles on Config.Concurrency workers. Failed
// cycles are counted, not returned; Run only fails when ctx ends first.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	n := r.config.Requests

	latencies := make([]time.Duration, n)
	outcome := make([]error, n)

	jobs := make(chan int, r.config.Concurrency)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(jobs)
		for i := 0; i < n; i++ {
			select {
			case jobs <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	var progress sync.Mutex
	done := 0
	for w := 0; w < r.config.Concurrency; w++ {
		g.Go(func() error {
			for i := range jobs {
				begin := time.Now()
				outcome[i] = r.cycle(gctx, i)
				latencies[i] = time.Since(begin)

				progress.Lock()
				done++
				if done%(max(n/10, 1)) == 0 {
					r.logger.Debug().Int("done", done).Int("total", n).Msg("Benchmark progress")
				}
				progress.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("benchmark %s aborted: %w", r.name, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("benchmark %s aborted: %w", r.name, err)
	}

	res := summarize(r.name, latencies, outcome, time.Since(start))
	r.logger.Info().
		Int("requests", res.Requests).
		Int("failed", res.Failed).
		Dur("p50", res.P50).
		Dur("p99", res.P99).
		Float64("throughput", res.Throughput).
		Msg("Benchmark complete")
	return res, nil
}

var errMismatch = errors.New("read back a different value")

func (r *Runner) cycle(ctx context.Context, i int) error {
	slot := i
	if r.config.KeySpace > 0 {
		slot = i % r.config.KeySpace
	}
	key := r.config.KeyPrefix + ":" + strconv.Itoa(slot)
	value := payload(i, r.config.ValueSize)

	if err := r.target.SetStr(ctx, key, value, r.config.TTL); err != nil {
		return err
	}
	got, err := r.target.GetStr(ctx, key)
	if err != nil {
		return err
	}
	// With a shared key space another worker may have overwritten the key.
	if r.config.KeySpace == 0 && got != value {
		return errMismatch
	}
	return nil
}

func payload(i, size int) string {
	s := strconv.Itoa(i)
	if len(s) >= size {
		return s[:size]
	}
	return s + strings.Repeat("x", size-len(s))
}

func summarize(name string, latencies []time.Duration, outcome []error, elapsed time.Duration) *Result {
	res := &Result{
		Provider: name,
		Requests: len(latencies),
		ByStage:  make(map[kverr.Stage]int),
		Duration: elapsed,
	}

	for _, err := range outcome {
		switch {
		case err == nil:
			res.Succeeded++
		case errors.Is(err, errMismatch):
			res.Mismatched++
			res.Failed++
		default:
			res.Failed++
			stage, ok := kverr.StageOf(err)
			if !ok {
				stage = "unknown"
			}
			res.ByStage[stage]++
		}
	}

	if elapsed > 0 {
		res.Throughput = float64(res.Requests) / elapsed.Seconds()
	}

	sorted := append([]time.Duration(nil), latencies...)
	sort.Slice(sorted, func(a, b int) bool { return sorted[a] < sorted[b] })
	res.P50 = percentile(sorted, 50)
	res.P95 = percentile(sorted, 95)
	res.P99 = percentile(sorted, 99)
	if len(sorted) > 0 {
		res.Max = sorted[len(sorted)-1]
	}
	return res
}

// percentile uses the nearest-rank method on an ascending slice.
func percentile(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	rank := (p*len(sorted) + 99) / 100
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}
