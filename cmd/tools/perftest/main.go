// main.go - Performance testing tool for funnelscope
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"text/tabwriter"
	"time"

	"log/slog"

	"github.com/google/uuid"

	v1 "funnelscope/api/v1"
	"funnelscope/internal/funnel"
	"funnelscope/internal/sessions"
)

// Status code the API returns when SQLite reports a locked database.
const statusDatabaseBusy = 599

// PerfConfig holds the configuration for the performance test
type PerfConfig struct {
	BaseURL       string
	APIKey        string
	Concurrency   int
	Duration      time.Duration
	BatchSize     int
	BatchesPerSec int
	VerboseOutput bool
	Timeout       time.Duration
}

// PerfStats holds statistics about the performance test
type PerfStats struct {
	TotalRequests      int64
	SuccessfulRequests int64
	FailedRequests     int64
	TotalDuration      time.Duration
	MinLatency         time.Duration
	MaxLatency         time.Duration
	TotalLatency       time.Duration
	StatusCodes        map[int]int64
	StatusCodesMutex   sync.Mutex
	StartTime          time.Time
	EndTime            time.Time
	DatabaseBusyErrors int64
	ResponseTimes      []time.Duration
	ResponseTimesMutex sync.Mutex
}

// Result captures the result of a single request
type Result struct {
	Duration   time.Duration
	StatusCode int
	Error      error
	Timestamp  time.Time
}

func main() {
	baseURL := flag.String("url", "http://localhost:3000", "Base URL of the API")
	apiKey := flag.String("key", "", "API key (falls back to FUNNELSCOPE_API_KEY)")
	concurrency := flag.Int("c", 10, "Number of concurrent clients")
	duration := flag.Duration("d", 30*time.Second, "Duration of the test")
	batchSize := flag.Int("batch", 25, "Sessions per collection request")
	batchesPerSec := flag.Int("rate", 0, "Target requests per second (0 = unlimited)")
	verbose := flag.Bool("verbose", false, "Enable verbose output")
	timeout := flag.Duration("timeout", 10*time.Second, "Request timeout")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	key := *apiKey
	if key == "" {
		key = os.Getenv("FUNNELSCOPE_API_KEY")
	}
	if key == "" {
		logger.Warn("No API key given, expect 401 responses (set -key or FUNNELSCOPE_API_KEY)")
	}

	config := &PerfConfig{
		BaseURL:       *baseURL,
		APIKey:        key,
		Concurrency:   *concurrency,
		Duration:      *duration,
		BatchSize:     *batchSize,
		BatchesPerSec: *batchesPerSec,
		VerboseOutput: *verbose,
		Timeout:       *timeout,
	}

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := <-sigChan
		fmt.Printf("Received signal %v, shutting down...\n", sig)
		cancel()
	}()

	fmt.Println("\n=== Funnelscope Performance Testing Tool ===")
	fmt.Printf("  URL (-url):         %s\n", config.BaseURL)
	fmt.Printf("  Concurrency (-c):   %d concurrent clients\n", config.Concurrency)
	fmt.Printf("  Duration (-d):      %v\n", config.Duration)
	fmt.Printf("  Batch size (-batch): %d sessions per request\n", config.BatchSize)
	fmt.Printf("  Rate (-rate):       %d requests/second (0 = unlimited)\n", config.BatchesPerSec)
	fmt.Printf("  Timeout (-timeout): %v\n", config.Timeout)
	fmt.Println("============================================")

	stats := &PerfStats{
		StatusCodes: make(map[int]int64),
		StartTime:   time.Now(),
	}

	fmt.Printf("Starting performance test with %d concurrent clients for %v\n", config.Concurrency, config.Duration)
	fmt.Printf("Target URL: %s/api/v1/sessions\n", config.BaseURL)

	testCtx, testCancel := context.WithTimeout(ctx, config.Duration)
	defer testCancel()

	resultChan := runTest(testCtx, config, logger)

	for result := range resultChan {
		processResult(result, stats)
	}

	stats.EndTime = time.Now()
	stats.TotalDuration = stats.EndTime.Sub(stats.StartTime)

	printResults(stats)

	fmt.Println("Test completed successfully!")
}

// runTest starts the performance test and returns a channel for results
func runTest(ctx context.Context, config *PerfConfig, logger *slog.Logger) <-chan Result {
	resultChan := make(chan Result, config.Concurrency*10)
	var wg sync.WaitGroup

	requestsPerSecPerWorker := 0.0
	if config.BatchesPerSec > 0 {
		requestsPerSecPerWorker = float64(config.BatchesPerSec) / float64(config.Concurrency)
		logger.Info("Rate limiting enabled",
			slog.Int("totalRequestsPerSec", config.BatchesPerSec),
			slog.Float64("requestsPerSecPerWorker", requestsPerSecPerWorker))
	} else {
		logger.Info("No rate limiting, running at maximum speed")
	}

	for i := 0; i < config.Concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			client := &http.Client{
				Timeout: config.Timeout,
			}
			rng := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))

			var ticker *time.Ticker
			if requestsPerSecPerWorker > 0 {
				interval := time.Duration(float64(time.Second) / requestsPerSecPerWorker)
				ticker = time.NewTicker(interval)
				defer ticker.Stop()
			}

			for {
				select {
				case <-ctx.Done():
					return
				default:
					if ticker != nil {
						select {
						case <-ticker.C:
						case <-ctx.Done():
							return
						}
					}

					result := sendRequest(client, config, rng)
					resultChan <- result

					// Small cooldown to reduce write contention on SQLite;
					// grows with concurrency.
					cooldownMs := 2 + (config.Concurrency / 20)
					time.Sleep(time.Duration(cooldownMs) * time.Millisecond)
				}
			}
		}(i)
	}

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	return resultChan
}

// sendRequest posts one collection batch to the API
func sendRequest(client *http.Client, config *PerfConfig, rng *rand.Rand) Result {
	payload := generateBatch(rng, config.BatchSize)
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return Result{Error: fmt.Errorf("failed to marshal JSON: %w", err)}
	}

	req, err := http.NewRequest("POST", config.BaseURL+"/api/v1/sessions", bytes.NewBuffer(jsonData))
	if err != nil {
		return Result{Error: fmt.Errorf("failed to create request: %w", err)}
	}

	req.Header.Set("Content-Type", "application/json")
	if config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+config.APIKey)
	}

	startTime := time.Now()
	resp, err := client.Do(req)
	duration := time.Since(startTime)

	if err != nil {
		return Result{Duration: duration, Error: fmt.Errorf("request failed: %w", err), Timestamp: startTime}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && config.VerboseOutput {
		bodyBytes, _ := io.ReadAll(resp.Body)
		fmt.Printf("Error response [%d]: %s\n", resp.StatusCode, string(bodyBytes))
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}

	return Result{
		Duration:   duration,
		StatusCode: resp.StatusCode,
		Error:      nil,
		Timestamp:  startTime,
	}
}

// Raw device and source values as instrumentation reports them; the API
// normalizes these during collection.
var (
	perfDevices = []string{"desktop", "mobile", "tablet"}
	perfSources = []string{"organic_search", "paid_search", "social_media", "direct", "email", "referral"}
)

// generateBatch creates one collection payload with random shopper journeys
func generateBatch(rng *rand.Rand, size int) v1.CreateSessionsParams {
	batch := v1.CreateSessionsParams{
		Sessions: make([]sessions.CollectSessionInput, 0, size),
	}
	for i := 0; i < size; i++ {
		batch.Sessions = append(batch.Sessions, generateSession(rng))
	}
	return batch
}

// generateSession builds one session that reaches a random funnel depth,
// with timestamps inside the last 12 hours so the default dashboards see it
func generateSession(rng *rand.Rand) sessions.CollectSessionInput {
	reach := 1 + rng.IntN(funnel.NumStages)
	started := time.Now().UTC().Add(-time.Duration(1+rng.IntN(12*3600)) * time.Second)

	stages := funnel.Stages()
	events := make([]sessions.CollectEventInput, 0, reach)
	ts := started
	for i := 0; i < reach; i++ {
		event := sessions.CollectEventInput{
			Stage:     stages[i].Key(),
			Timestamp: ts,
		}
		if stages[i] == funnel.StagePurchase {
			event.Metadata = fmt.Sprintf(`{"order_id":"perf-%s","order_total":%.2f}`,
				uuid.New().String()[:8], 10+rng.Float64()*490)
		}
		events = append(events, event)
		ts = ts.Add(time.Duration(5+rng.IntN(25)) * time.Second)
	}

	return sessions.CollectSessionInput{
		SessionID: uuid.New().String(),
		Device:    perfDevices[rng.IntN(len(perfDevices))],
		Source:    perfSources[rng.IntN(len(perfSources))],
		StartedAt: started,
		Events:    events,
	}
}

// processResult processes the results of a single request
func processResult(result Result, stats *PerfStats) {
	atomic.AddInt64(&stats.TotalRequests, 1)

	if result.Error != nil {
		atomic.AddInt64(&stats.FailedRequests, 1)
		return
	}

	stats.ResponseTimesMutex.Lock()
	stats.ResponseTimes = append(stats.ResponseTimes, result.Duration)
	stats.ResponseTimesMutex.Unlock()

	stats.StatusCodesMutex.Lock()
	stats.StatusCodes[result.StatusCode]++
	stats.StatusCodesMutex.Unlock()

	// Only 202 Accepted counts as success for the collection endpoint
	if result.StatusCode == http.StatusAccepted {
		atomic.AddInt64(&stats.SuccessfulRequests, 1)
	} else {
		atomic.AddInt64(&stats.FailedRequests, 1)
		if result.StatusCode == statusDatabaseBusy {
			atomic.AddInt64(&stats.DatabaseBusyErrors, 1)
		}
	}

	atomic.AddInt64((*int64)(&stats.TotalLatency), int64(result.Duration))

	if stats.MinLatency == 0 || result.Duration < stats.MinLatency {
		stats.MinLatency = result.Duration
	}
	if result.Duration > stats.MaxLatency {
		stats.MaxLatency = result.Duration
	}
}

// printResults displays the test results in a nicely formatted table
func printResults(stats *PerfStats) {
	fmt.Println("\nPerformance Test Results:")
	fmt.Printf("Test Duration: %v\n", stats.TotalDuration.Round(time.Millisecond))
	fmt.Printf("Start Time: %v\n", stats.StartTime.Format(time.RFC3339))
	fmt.Printf("End Time: %v\n", stats.EndTime.Format(time.RFC3339))

	requestsPerSecond := float64(stats.TotalRequests) / stats.TotalDuration.Seconds()
	fmt.Printf("Requests Per Second: %.2f\n", requestsPerSecond)

	var avgLatency time.Duration
	if stats.TotalRequests > 0 {
		avgLatency = time.Duration(int64(stats.TotalLatency) / stats.TotalRequests)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "\n%s\t%s\n", "METRIC", "VALUE")
	fmt.Fprintf(w, "%s\t%s\n", "------", "-----")
	fmt.Fprintf(w, "Total Requests\t%d\n", stats.TotalRequests)
	fmt.Fprintf(w, "Successful Requests\t%d (%.2f%%)\n", stats.SuccessfulRequests, 100*float64(stats.SuccessfulRequests)/float64(stats.TotalRequests))
	fmt.Fprintf(w, "Failed Requests\t%d (%.2f%%)\n", stats.FailedRequests, 100*float64(stats.FailedRequests)/float64(stats.TotalRequests))

	if stats.DatabaseBusyErrors > 0 {
		fmt.Fprintf(w, "Database Busy Errors\t%d (%.2f%%)\n", stats.DatabaseBusyErrors, 100*float64(stats.DatabaseBusyErrors)/float64(stats.TotalRequests))
	}

	fmt.Fprintf(w, "Min Latency\t%v\n", stats.MinLatency)
	fmt.Fprintf(w, "Max Latency\t%v\n", stats.MaxLatency)
	fmt.Fprintf(w, "Avg Latency\t%v\n", avgLatency)
	w.Flush()

	if len(stats.StatusCodes) > 0 {
		fmt.Println("\nStatus Code Distribution:")
		w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", "STATUS CODE", "COUNT", "PERCENTAGE", "GRAPH")
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", "-----------", "-----", "----------", "-----")

		var codes []int
		for code := range stats.StatusCodes {
			codes = append(codes, code)
		}
		sort.Ints(codes)

		var maxCount int64 = 1
		for _, count := range stats.StatusCodes {
			if count > maxCount {
				maxCount = count
			}
		}

		const maxBarLength = 50

		for _, code := range codes {
			count := stats.StatusCodes[code]
			percentage := 100 * float64(count) / float64(stats.TotalRequests)
			barLength := int(float64(count) / float64(maxCount) * maxBarLength)
			bar := strings.Repeat("█", barLength)
			fmt.Fprintf(w, "%d\t%d\t%.2f%%\t%s\n", code, count, percentage, bar)
		}
		w.Flush()
	}

	if len(stats.ResponseTimes) > 0 {
		printLatencyPercentiles(stats)
	}
}

// printLatencyPercentiles prints the latency distribution summary
func printLatencyPercentiles(stats *PerfStats) {
	sort.Slice(stats.ResponseTimes, func(i, j int) bool {
		return stats.ResponseTimes[i] < stats.ResponseTimes[j]
	})

	totalResponses := len(stats.ResponseTimes)
	p50 := stats.ResponseTimes[int(float64(totalResponses)*0.5)]
	p90 := stats.ResponseTimes[int(float64(totalResponses)*0.9)]
	p95 := stats.ResponseTimes[int(float64(totalResponses)*0.95)]
	p99 := stats.ResponseTimes[int(float64(totalResponses)*0.99)]

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "\n%s\t%s\n", "PERCENTILE", "VALUE (ms)")
	fmt.Fprintf(w, "%s\t%s\n", "----------", "----------")
	fmt.Fprintf(w, "50th (Median)\t%d\n", p50.Milliseconds())
	fmt.Fprintf(w, "90th\t%d\n", p90.Milliseconds())
	fmt.Fprintf(w, "95th\t%d\n", p95.Milliseconds())
	fmt.Fprintf(w, "99th\t%d\n", p99.Milliseconds())
	w.Flush()
}
