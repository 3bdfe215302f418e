// Command loadtest drives concurrent search queries against a running syncd
// daemon over its control RPC port and reports throughput and latency
// percentiles.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math"
	"net"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/forumkit/searchsync/internal/control"
	apperrors "github.com/forumkit/searchsync/pkg/errors"
	"github.com/forumkit/searchsync/pkg/proto"
)

type Config struct {
	Addr        string
	Concurrency int
	Duration    time.Duration
	Kind        string
	Limit       int
	Queries     []string
}

type Stats struct {
	totalRequests  atomic.Int64
	successCount   atomic.Int64
	errorCount     atomic.Int64
	resultCount    atomic.Int64
	latencies      []time.Duration
	latenciesMu    sync.Mutex
	errorClasses   map[string]*atomic.Int64
	errorClassesMu sync.Mutex
}

func NewStats() *Stats {
	return &Stats{
		latencies:    make([]time.Duration, 0, 100000),
		errorClasses: make(map[string]*atomic.Int64),
	}
}

func (s *Stats) RecordRequest(duration time.Duration, hits int, err error) {
	s.totalRequests.Add(1)

	if err != nil {
		s.errorCount.Add(1)
		class := classify(err)
		s.errorClassesMu.Lock()
		if _, ok := s.errorClasses[class]; !ok {
			s.errorClasses[class] = &atomic.Int64{}
		}
		s.errorClasses[class].Add(1)
		s.errorClassesMu.Unlock()
		return
	}

	s.successCount.Add(1)
	s.resultCount.Add(int64(hits))

	s.latenciesMu.Lock()
	s.latencies = append(s.latencies, duration)
	s.latenciesMu.Unlock()
}

// classify buckets an error for the report: transport failures under
// "network", everything else under its control RPC error code.
func classify(err error) string {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return "network"
	}
	return apperrors.Code(err)
}

func main() {
	addr := flag.String("addr", "localhost:7700", "control address of the syncd daemon")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	kind := flag.String("kind", "post", `document kind to query: "topic" or "post"`)
	limit := flag.Int("limit", 10, "result limit per query")
	flag.Parse()

	if *kind != "topic" && *kind != "post" {
		fmt.Fprintf(os.Stderr, "invalid kind %q: must be \"topic\" or \"post\"\n", *kind)
		os.Exit(2)
	}

	queries := []string{
		"release notes",
		"upgrade guide",
		"kafka consumer lag",
		"redis connection refused",
		"email notifications broken",
		"dark theme plugin",
		"database migration failed",
		"password reset loop",
		"rate limit settings",
		"docker compose setup",
		"backup and restore",
		"custom emoji pack",
		"spam moderation queue",
		"websocket disconnects",
		"markdown rendering bug",
	}

	cfg := Config{
		Addr:        *addr,
		Concurrency: *concurrency,
		Duration:    *duration,
		Kind:        *kind,
		Limit:       *limit,
		Queries:     queries,
	}

	fmt.Println("=== Search Sync Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.Addr)
	fmt.Printf("Kind:        %s\n", cfg.Kind)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Queries:     %d unique\n", len(cfg.Queries))
	fmt.Println()

	stats := runLoadTest(cfg)
	printReport(stats, cfg.Duration)
}

func runLoadTest(cfg Config) *Stats {
	stats := NewStats()

	// One connection per worker: the client serializes calls on a single
	// connection, so sharing one would flatten concurrency to 1.
	clients := make([]*control.Client, 0, cfg.Concurrency)
	for i := 0; i < cfg.Concurrency; i++ {
		c, err := control.Dial(cfg.Addr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "dial %s: %v\n", cfg.Addr, err)
			break
		}
		clients = append(clients, c)
	}
	if len(clients) == 0 {
		fmt.Fprintln(os.Stderr, "no control connection could be established; is syncd running?")
		os.Exit(1)
	}
	if len(clients) < cfg.Concurrency {
		fmt.Printf("connected %d of %d workers\n", len(clients), cfg.Concurrency)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	// Calls have no per-request deadline, so closing the connections when
	// the window expires is what unblocks any in-flight read.
	go func() {
		<-ctx.Done()
		for _, c := range clients {
			_ = c.Close()
		}
	}()

	var wg sync.WaitGroup
	fmt.Print("Running")

	for w, client := range clients {
		wg.Add(1)
		go func(workerID int, c *control.Client) {
			defer wg.Done()
			queryIdx := workerID

			for {
				select {
				case <-ctx.Done():
					return
				default:
				}

				query := cfg.Queries[queryIdx%len(cfg.Queries)]
				queryIdx++

				start := time.Now()
				resp, err := c.Search(proto.QueryRequest{
					Kind:  cfg.Kind,
					Query: query,
					Limit: cfg.Limit,
				})
				elapsed := time.Since(start)

				if err != nil {
					if ctx.Err() != nil {
						return
					}
					stats.RecordRequest(elapsed, 0, err)
					continue
				}
				stats.RecordRequest(elapsed, len(resp.IDs), nil)
			}
		}(w, client)
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	wg.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return stats
}

func printReport(stats *Stats, duration time.Duration) {
	total := stats.totalRequests.Load()
	success := stats.successCount.Load()
	errCount := stats.errorCount.Load()

	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Successful:      %d\n", success)
	fmt.Printf("Errors:          %d\n", errCount)

	if total > 0 {
		errorRate := float64(errCount) / float64(total) * 100
		fmt.Printf("Error Rate:      %.2f%%\n", errorRate)
		rps := float64(total) / duration.Seconds()
		fmt.Printf("Requests/sec:    %.2f\n", rps)
	}
	if success > 0 {
		avgHits := float64(stats.resultCount.Load()) / float64(success)
		fmt.Printf("Avg Hits:        %.1f\n", avgHits)
	}

	stats.latenciesMu.Lock()
	latencies := make([]time.Duration, len(stats.latencies))
	copy(latencies, stats.latencies)
	stats.latenciesMu.Unlock()

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool {
			return latencies[i] < latencies[j]
		})

		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))

		fmt.Println()
		fmt.Println("=== Latency ===")
		fmt.Printf("Min:    %s\n", latencies[0])
		fmt.Printf("Avg:    %s\n", avg)
		fmt.Printf("P50:    %s\n", percentile(latencies, 50))
		fmt.Printf("P90:    %s\n", percentile(latencies, 90))
		fmt.Printf("P95:    %s\n", percentile(latencies, 95))
		fmt.Printf("P99:    %s\n", percentile(latencies, 99))
		fmt.Printf("Max:    %s\n", latencies[len(latencies)-1])

		var sumSquared float64
		avgFloat := float64(avg)
		for _, l := range latencies {
			diff := float64(l) - avgFloat
			sumSquared += diff * diff
		}
		stddev := time.Duration(math.Sqrt(sumSquared / float64(len(latencies))))
		fmt.Printf("StdDev: %s\n", stddev)
	}

	stats.errorClassesMu.Lock()
	classes := make([]string, 0, len(stats.errorClasses))
	for class := range stats.errorClasses {
		classes = append(classes, class)
	}
	sort.Strings(classes)
	if len(classes) > 0 {
		fmt.Println()
		fmt.Println("=== Errors ===")
		for _, class := range classes {
			fmt.Printf("  %s: %d\n", class, stats.errorClasses[class].Load())
		}
	}
	stats.errorClassesMu.Unlock()

	if total == 0 {
		fmt.Println()
		fmt.Println("WARNING: No requests completed. Is the daemon running?")
		os.Exit(1)
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
