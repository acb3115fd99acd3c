package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/tokenauth"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// principalState holds the latest pair for one seeded principal. Refresh
// tokens are single use, so rotations on the same principal are serialised.
type principalState struct {
	id      string
	access  string
	refresh string
	mu      sync.Mutex
}

type options struct {
	principals  int
	concurrency int
	ops         int
	redisAddr   string
	prefix      string
}

func main() {
	var opts options

	cmd := &cobra.Command{
		Use:          "tokenauth-loadtest",
		Short:        "Measure gate and refresh rotation throughput against Redis",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.principals <= 0 || opts.concurrency <= 0 || opts.ops <= 0 {
				return errors.New("principals, concurrency, and ops must be > 0")
			}
			return run(cmd.Context(), opts)
		},
	}
	cmd.Flags().IntVar(&opts.principals, "principals", 10000, "number of principals to seed")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 256, "number of concurrent workers")
	cmd.Flags().IntVar(&opts.ops, "ops", 100000, "operations per phase (gate + refresh)")
	cmd.Flags().StringVar(&opts.redisAddr, "redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	cmd.Flags().StringVar(&opts.prefix, "prefix", "tal:", "token key prefix")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// seededPrincipals resolves any numeric id to a principal without a backing
// store.
type seededPrincipals struct{}

func (seededPrincipals) FindByID(_ context.Context, id string) (*tokenauth.Principal, error) {
	if _, err := strconv.Atoi(id); err != nil {
		return nil, tokenauth.ErrPrincipalNotFound
	}
	return &tokenauth.Principal{ID: id, Email: "user" + id + "@example.com", Role: "user"}, nil
}

func (seededPrincipals) FindByEmail(_ context.Context, _ string) (*tokenauth.Principal, error) {
	return nil, tokenauth.ErrPrincipalNotFound
}

// staticJar is a CookieTransport over fixed values; rotations are discarded.
type staticJar struct {
	access string
}

func (j staticJar) Tokens() (string, string) { return j.access, "" }
func (j staticJar) SetTokens(*tokenauth.AuthTokenPair) {}

func run(ctx context.Context, opts options) error {
	addr := opts.redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return fmt.Errorf("start miniredis: %w", err)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	cfg := tokenauth.DefaultConfig()
	cfg.Signer.Secret = []byte("loadtest-secret-loadtest-secret-loadtest")
	cfg.Store.RedisPrefix = opts.prefix

	engine, err := tokenauth.New().
		WithConfig(cfg).
		WithRedis(client).
		WithPrincipalStore(seededPrincipals{}).
		Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	states := make([]principalState, opts.principals)
	fmt.Printf("seeding %d principals...\n", opts.principals)
	startSeed := time.Now()
	for i := range states {
		id := strconv.Itoa(i + 1)
		pair, err := engine.GenerateAuthTokens(ctx, id)
		if err != nil {
			return fmt.Errorf("seed %s: %w", id, err)
		}
		states[i].id = id
		states[i].access = pair.Access.Token
		states[i].refresh = pair.Refresh.Token
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	gateStats := runPhase(opts.ops, opts.concurrency, 7919, func(r *rand.Rand) error {
		s := &states[r.Intn(len(states))]
		_, err := engine.Authenticate(ctx, staticJar{access: s.access}, tokenauth.Requirement{})
		return err
	})
	refreshStats := runPhase(opts.ops, opts.concurrency, 6151, func(r *rand.Rand) error {
		s := &states[r.Intn(len(states))]
		s.mu.Lock()
		defer s.mu.Unlock()

		pair, err := engine.RefreshAuth(ctx, s.refresh)
		if err != nil {
			return err
		}
		s.access = pair.Access.Token
		s.refresh = pair.Refresh.Token
		return nil
	})

	fmt.Println("---- results ----")
	printStats("gate", gateStats)
	printStats("refresh", refreshStats)

	snap := engine.MetricsSnapshot()
	fmt.Printf("reuse_detected=%d store_unavailable=%d\n",
		snap.Counters[tokenauth.MetricRefreshReuseDetected],
		snap.Counters[tokenauth.MetricStoreUnavailable],
	)
	return nil
}

func runPhase(ops, concurrency int, seed int64, op func(*rand.Rand) error) phaseStats {
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
	total := time.Since(start)
	return computeStats(total, latencies, failures)
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

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
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
