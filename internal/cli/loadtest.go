package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	levelAuth "github.com/MrEthical07/levelAuth"
	levelotel "github.com/MrEthical07/levelAuth/metrics/export/otel"
	"github.com/MrEthical07/levelAuth/store/sqlite"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

const loadTestPassword = "loadtest-password"

type loadTestOptions struct {
	users       int
	concurrency int
	ops         int
	redisAddr   string
	metrics     bool
}

func newLoadTestCommand() *cobra.Command {
	opts := loadTestOptions{}
	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Measure login and session validation throughput",
		Long: `Seed verified accounts into a throwaway database, then run a login phase
and a session validation phase with concurrent workers and report latency
percentiles.

Redis is taken from --redis-addr, then REDIS_ADDR, then an in-process server.
Password hashing uses reduced argon2 parameters so the login phase measures
the flow rather than the hash.

With --metrics the engine counters are collected through OpenTelemetry after
both phases and printed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoadTest(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().IntVar(&opts.users, "users", 200, "number of accounts to seed")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 32, "number of concurrent workers")
	cmd.Flags().IntVar(&opts.ops, "ops", 2000, "operations per phase")
	cmd.Flags().StringVar(&opts.redisAddr, "redis-addr", "", "redis address; if empty, REDIS_ADDR env or an in-process server is used")
	cmd.Flags().BoolVar(&opts.metrics, "metrics", false, "print engine counters collected through OpenTelemetry")
	return cmd
}

func runLoadTest(ctx context.Context, out io.Writer, opts loadTestOptions) error {
	if opts.users <= 0 || opts.concurrency <= 0 || opts.ops <= 0 {
		return errors.New("users, concurrency and ops must be > 0")
	}

	addr := opts.redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return fmt.Errorf("starting in-process redis: %w", err)
		}
		defer mr.Close()
		addr = mr.Addr()
		fmt.Fprintf(out, "using in-process redis at %s\n", addr)
	} else {
		fmt.Fprintf(out, "using redis at %s\n", addr)
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	dir, err := os.MkdirTemp("", "levelauth-loadtest-")
	if err != nil {
		return fmt.Errorf("creating work dir: %w", err)
	}
	defer os.RemoveAll(dir)

	store, err := sqlite.Open(ctx, sqlite.Config{
		Path:        filepath.Join(dir, "loadtest.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	cfg := levelAuth.DefaultConfig()
	cfg.JWT.Secret = []byte("loadtest-signing-secret-0123456789abcdef")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Password.UpgradeOnLogin = false
	cfg.Metrics.Enabled = opts.metrics

	engine, err := levelAuth.New().
		WithConfig(cfg).
		WithRedis(client).
		WithUserStore(store).
		Build()
	if err != nil {
		return fmt.Errorf("building engine: %w", err)
	}
	defer engine.Close()

	var reader *sdkmetric.ManualReader
	if opts.metrics {
		reader = sdkmetric.NewManualReader()
		provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
		defer provider.Shutdown(context.Background())
		exp, err := levelotel.New(provider.Meter("levelauth-loadtest"), engine)
		if err != nil {
			return fmt.Errorf("registering metrics: %w", err)
		}
		defer exp.Close()
	}

	names, err := seedLoadTestUsers(ctx, out, store, cfg.Password, opts.users)
	if err != nil {
		return err
	}

	tokens := make([]string, len(names))
	var tokensMu sync.Mutex
	loginStats := runPhase(opts.ops, opts.concurrency, 7919, func(r *rand.Rand) error {
		idx := r.Intn(len(names))
		res, err := engine.Login(ctx, names[idx], loadTestPassword)
		if err != nil {
			return err
		}
		tokensMu.Lock()
		tokens[idx] = res.Token
		tokensMu.Unlock()
		return nil
	})

	issued := tokens[:0:0]
	for _, tok := range tokens {
		if tok != "" {
			issued = append(issued, tok)
		}
	}
	if len(issued) == 0 {
		return errors.New("login phase produced no sessions")
	}

	validateStats := runPhase(opts.ops, opts.concurrency, 6151, func(r *rand.Rand) error {
		_, err := engine.ValidateSession(ctx, issued[r.Intn(len(issued))])
		return err
	})

	fmt.Fprintln(out, "---- results ----")
	printStats(out, "login", loginStats)
	printStats(out, "validate", validateStats)

	if reader != nil {
		return printCounters(ctx, out, reader)
	}
	return nil
}

// printCounters writes every non-zero counter the reader collects, by name.
func printCounters(ctx context.Context, out io.Writer, reader *sdkmetric.ManualReader) error {
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		return fmt.Errorf("collecting metrics: %w", err)
	}
	counters := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				if dp.Value != 0 {
					counters[m.Name] += dp.Value
				}
			}
		}
	}
	names := make([]string, 0, len(counters))
	for name := range counters {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(out, "---- engine counters ----")
	for _, name := range names {
		fmt.Fprintf(out, "%s %d\n", name, counters[name])
	}
	return nil
}

func seedLoadTestUsers(ctx context.Context, out io.Writer, store *sqlite.Store, pc levelAuth.PasswordConfig, n int) ([]string, error) {
	hasher, err := hasherFor(pc)
	if err != nil {
		return nil, err
	}
	// One hash serves every account; salts are irrelevant to throughput.
	hash, err := hasher.Hash(loadTestPassword)
	if err != nil {
		return nil, err
	}

	fmt.Fprintf(out, "seeding %d accounts...\n", n)
	start := time.Now()
	names := make([]string, n)
	for i := 0; i < n; i++ {
		names[i] = fmt.Sprintf("load%d", i)
		u, err := store.CreateUser(ctx, levelAuth.NewUser{
			Name:         "Load",
			Surname:      "Test",
			Email:        names[i] + "@loadtest.local",
			Username:     names[i],
			Mobile:       "0000000000",
			PasswordHash: hash,
			AccessLevel:  1 + i%3,
		})
		if err != nil {
			return nil, fmt.Errorf("seeding %s: %w", names[i], err)
		}
		if err := store.MarkVerified(ctx, u.ID); err != nil {
			return nil, err
		}
	}
	fmt.Fprintf(out, "seeded in %s\n", time.Since(start).Round(time.Millisecond))
	return names, nil
}

// runPhase runs op ops times across concurrency workers.
func runPhase(ops, concurrency int, seed int64, op func(r *rand.Rand) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*seed))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(w io.Writer, name string, s phaseStats) {
	fmt.Fprintf(w, "%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
