// Command directauth-loadtest drives many independent flows against the
// in-process mock server and reports latency percentiles.
//
// Audit events go to a Redis stream: REDIS_ADDR or -redis-addr when set,
// otherwise an embedded miniredis.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/directauth"
	"github.com/MrEthical07/directauth/audit/redissink"
	"github.com/MrEthical07/directauth/internal/mockserver"
	promexport "github.com/MrEthical07/directauth/metrics/export/prometheus"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const (
	loadUser     = "load@example.com"
	loadPassword = "correct-horse"
)

func main() {
	var (
		flows       = flag.Int("flows", 2000, "number of flows to run")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		factor      = flag.String("factor", "password", "primary factor: password or push")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		stream      = flag.String("stream", redissink.DefaultStream, "audit stream key")
	)
	flag.Parse()

	if *flows <= 0 || *concurrency <= 0 {
		fmt.Fprintln(os.Stderr, "flows and concurrency must be > 0")
		os.Exit(2)
	}
	if *factor != "password" && *factor != "push" {
		fmt.Fprintln(os.Stderr, "factor must be password or push")
		os.Exit(2)
	}

	addr := *redisAddr
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
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", mr.Addr())
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	sink, err := redissink.New(client, redissink.Options{Stream: *stream})
	if err != nil {
		fmt.Fprintf(os.Stderr, "audit sink: %v\n", err)
		os.Exit(1)
	}

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	tgt, err := startTarget(*concurrency, quiet)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mock server: %v\n", err)
		os.Exit(1)
	}
	defer tgt.close()

	fmt.Printf("running %d %s flows with %d workers...\n", *flows, *factor, *concurrency)
	stats, done := runFlows(context.Background(), flowRunner{
		issuer:   tgt.issuer,
		clientID: tgt.clientID,
		factor:   *factor,
		client:   tgt.client,
		sink:     sink,
		logger:   quiet,
	}, *flows, *concurrency)

	fmt.Println("---- results ----")
	printStats(*factor, stats)
	fmt.Printf("audit: written=%d failed=%d stream=%s\n", sink.Written(), sink.Failed(), sink.Stream())
	printMetrics(promexport.NewCollector(done...))
}

// target is the in-process mock server the flows run against.
type target struct {
	issuer   string
	clientID string
	client   *http.Client
	close    func()
}

func startTarget(concurrency int, logger *slog.Logger) (*target, error) {
	srv := mockserver.New(mockserver.Config{AutoApproveAfter: 1, Logger: logger})
	if err := srv.AddUser(loadUser, loadPassword); err != nil {
		return nil, fmt.Errorf("seed user: %w", err)
	}
	ts := httptest.NewTLSServer(srv.Handler())

	// The test server's transport trusts its self-signed certificate.
	transport := ts.Client().Transport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = concurrency
	return &target{
		issuer:   ts.URL,
		clientID: srv.ClientID(),
		client:   &http.Client{Timeout: 10 * time.Second, Transport: transport},
		close:    ts.Close,
	}, nil
}

type flowRunner struct {
	issuer   string
	clientID string
	factor   string
	client   *http.Client
	sink     *redissink.Sink
	logger   *slog.Logger
}

func (r flowRunner) once(ctx context.Context) (*directauth.Flow, error) {
	f, err := directauth.New(r.issuer, r.clientID, "openid").
		WithHTTPClient(r.client).
		WithLogger(r.logger).
		WithAuditSink(r.sink).
		WithMetricsEnabled(true).
		WithLatencyHistograms(true).
		Build()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var state directauth.State
	switch r.factor {
	case "push":
		state = f.Start(ctx, loadUser, directauth.Oob{Channel: directauth.ChannelPush})
		if c, ok := state.(directauth.Continuation); ok {
			state = directauth.PollUntilDone(ctx, f, c, directauth.PollOptions{
				Sleep: func(context.Context, time.Duration) error { return nil },
			})
		}
	default:
		state = f.Start(ctx, loadUser, directauth.Password{Password: loadPassword})
	}

	if _, ok := state.(*directauth.Authenticated); !ok {
		return f, fmt.Errorf("flow ended in %s", state.Kind())
	}
	return f, nil
}

func runFlows(ctx context.Context, r flowRunner, n, concurrency int) (phaseStats, []*directauth.Flow) {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, n)
		done      = make([]*directauth.Flow, 0, n)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if int(atomic.AddInt64(&cursor, 1)) > n {
					return
				}
				t0 := time.Now()
				f, err := r.once(ctx)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				if f != nil {
					done = append(done, f)
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures), done
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
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: flows=%d failures=%d total=%s flows/sec=%.0f p50=%s p95=%s p99=%s\n",
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

// printMetrics prints the non-zero counters in exposition format.
func printMetrics(c *promexport.Collector) {
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	fmt.Println("---- metrics ----")
	sc := bufio.NewScanner(rec.Body)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "#") || strings.HasSuffix(line, " 0") || strings.Contains(line, "_bucket") {
			continue
		}
		fmt.Println(line)
	}
}
