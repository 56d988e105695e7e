package cmd

import (
	"bufio"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	vegeta "github.com/tsenart/vegeta/lib"
)

type BenchmarkConfig struct {
	Host          string
	Key           string
	Scope         string
	RPS           int
	Duration      time.Duration
	ValueSize     int
	Pattern       string
	BatchSize     int
	PropertyCount int
}

// Helper function to get environment variable with fallback
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// benchmarkCmd represents the benchmark command
var benchmarkCmd = &cobra.Command{
	Use:   "benchmark",
	Short: "Run performance benchmarks against a propsync daemon",
	Long: `Run performance benchmarks to test propsync daemon throughput and latency.
Supports queueing single updates, queueing batches and reading properties.`,
	RunE: runBenchmark,
}

var (
	benchAuto      bool
	benchScope     string
	benchRPS       int
	benchDur       time.Duration
	benchValueSize int
	benchPat       string
	benchBatch     int
	benchProps     int
)

func init() {
	rootCmd.AddCommand(benchmarkCmd)

	benchmarkCmd.Flags().BoolVar(&benchAuto, "auto", false, "Use default values and only prompt for pattern")
	benchmarkCmd.Flags().StringVar(&benchScope, "scope", "", "Target scope (default scope when empty)")
	benchmarkCmd.Flags().IntVar(&benchRPS, "rps", 500, "Requests per second")
	benchmarkCmd.Flags().DurationVar(&benchDur, "duration", 30*time.Second, "Benchmark duration")
	benchmarkCmd.Flags().IntVar(&benchValueSize, "value-size", 128, "Property value entropy in bytes (hex-encoded, doubles on the wire)")
	benchmarkCmd.Flags().StringVar(&benchPat, "pattern", "", "Benchmark pattern (queue_updates, queue_batch, read_properties, read_mixed)")
	benchmarkCmd.Flags().IntVar(&benchBatch, "batch-size", 20, "Updates per request for queue_batch")
	benchmarkCmd.Flags().IntVar(&benchProps, "property-count", 200, "Number of properties to seed for read benchmarks")
}

func runBenchmark(cmd *cobra.Command, args []string) error {
	verbose, _ := cmd.Flags().GetBool("verbose")

	// addr and key resolve through the usual flag > env > config chain
	c := newClient()

	if rpsStr := os.Getenv("PROPSYNC_RPS"); rpsStr != "" {
		if rps, err := strconv.Atoi(rpsStr); err == nil {
			benchRPS = rps
		}
	}

	if durStr := os.Getenv("PROPSYNC_DURATION"); durStr != "" {
		if dur, err := time.ParseDuration(durStr); err == nil {
			benchDur = dur
		}
	}

	if sizeStr := os.Getenv("PROPSYNC_VALUE_SIZE"); sizeStr != "" {
		if size, err := strconv.Atoi(sizeStr); err == nil {
			benchValueSize = size
		}
	}

	cfg := BenchmarkConfig{
		Host:          c.Base(),
		Key:           c.Key(),
		Scope:         benchScope,
		RPS:           benchRPS,
		Duration:      benchDur,
		ValueSize:     benchValueSize,
		Pattern:       getEnvOrDefault("PROPSYNC_PATTERN", benchPat),
		BatchSize:     benchBatch,
		PropertyCount: benchProps,
	}

	if cfg.Pattern == "" {
		if !benchAuto {
			cfg = promptBenchmarkConfig(cfg)
		} else {
			cfg.Pattern = promptBenchmarkPattern()
		}
	}

	if verbose {
		fmt.Printf("Starting benchmark with config:\n")
		fmt.Printf("  Host: %s\n", cfg.Host)
		fmt.Printf("  Scope: %s\n", scopeLabel(cfg.Scope))
		fmt.Printf("  RPS: %d\n", cfg.RPS)
		fmt.Printf("  Duration: %v\n", cfg.Duration)
		fmt.Printf("  Pattern: %s\n", cfg.Pattern)
		fmt.Printf("  Value Size: %d bytes\n", cfg.ValueSize)
		if cfg.Pattern == "queue_batch" {
			fmt.Printf("  Batch Size: %d\n", cfg.BatchSize)
		}
		if cfg.Pattern == "read_properties" || cfg.Pattern == "read_mixed" {
			fmt.Printf("  Property Count: %d\n", cfg.PropertyCount)
		}
		fmt.Printf("  Workers: %d (CPU cores)\n", runtime.NumCPU())
		fmt.Println()
	}

	var results *vegeta.Metrics
	switch cfg.Pattern {
	case "queue_updates":
		results = runQueueUpdatesBenchmark(cfg)
	case "queue_batch":
		results = runQueueBatchBenchmark(cfg)
	case "read_properties", "read_mixed":
		results = runReadBenchmark(cfg)
	default:
		log.Fatalf("Unknown benchmark pattern: %s", cfg.Pattern)
	}
	outputBenchmarkMetrics(cfg, results)

	return nil
}

func scopeLabel(scope string) string {
	if scope == "" {
		return "default"
	}
	return scope
}

func promptBenchmarkConfig(cfg BenchmarkConfig) BenchmarkConfig {
	scanner := bufio.NewScanner(os.Stdin)

	fmt.Printf("Host endpoint [%s]: ", cfg.Host)
	if scanner.Scan() {
		if input := strings.TrimSpace(scanner.Text()); input != "" {
			cfg.Host = input
		}
	}

	fmt.Printf("Scope [%s]: ", scopeLabel(cfg.Scope))
	if scanner.Scan() {
		if input := strings.TrimSpace(scanner.Text()); input != "" {
			cfg.Scope = input
		}
	}

	fmt.Printf("Requests per second [%d]: ", cfg.RPS)
	if scanner.Scan() {
		if input := strings.TrimSpace(scanner.Text()); input != "" {
			if rps, err := strconv.Atoi(input); err == nil {
				cfg.RPS = rps
			}
		}
	}

	fmt.Printf("Duration (e.g. 1m, 30s) [%s]: ", cfg.Duration)
	if scanner.Scan() {
		if input := strings.TrimSpace(scanner.Text()); input != "" {
			if dur, err := time.ParseDuration(input); err == nil {
				cfg.Duration = dur
			}
		}
	}

	fmt.Printf("Pattern (queue_updates, queue_batch, read_properties, read_mixed) [queue_updates]: ")
	cfg.Pattern = "queue_updates"
	if scanner.Scan() {
		if input := strings.TrimSpace(scanner.Text()); input != "" {
			validPatterns := []string{"queue_updates", "queue_batch", "read_properties", "read_mixed"}
			for _, pattern := range validPatterns {
				if input == pattern {
					cfg.Pattern = input
					break
				}
			}
		}
	}

	fmt.Printf("Value size (bytes) [%d]: ", cfg.ValueSize)
	if scanner.Scan() {
		if input := strings.TrimSpace(scanner.Text()); input != "" {
			if size, err := strconv.Atoi(input); err == nil {
				cfg.ValueSize = size
			}
		}
	}

	if cfg.Pattern == "queue_batch" {
		fmt.Printf("Batch size [%d]: ", cfg.BatchSize)
		if scanner.Scan() {
			if input := strings.TrimSpace(scanner.Text()); input != "" {
				if size, err := strconv.Atoi(input); err == nil {
					cfg.BatchSize = size
				}
			}
		}
	}

	if cfg.Pattern == "read_properties" || cfg.Pattern == "read_mixed" {
		fmt.Printf("Property count to seed [%d]: ", cfg.PropertyCount)
		if scanner.Scan() {
			if input := strings.TrimSpace(scanner.Text()); input != "" {
				if count, err := strconv.Atoi(input); err == nil {
					cfg.PropertyCount = count
				}
			}
		}
	}

	return cfg
}

func promptBenchmarkPattern() string {
	fmt.Println("Choose pattern:")
	fmt.Println("1. queue_updates")
	fmt.Println("2. queue_batch")
	fmt.Println("3. read_properties")
	fmt.Println("4. read_mixed")
	fmt.Print("Enter 1-4: ")

	scanner := bufio.NewScanner(os.Stdin)
	if scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		switch input {
		case "1":
			return "queue_updates"
		case "2":
			return "queue_batch"
		case "3":
			return "read_properties"
		case "4":
			return "read_mixed"
		}
	}
	// Default
	return "queue_updates"
}

func benchHeaders(cfg BenchmarkConfig, withBody bool) map[string][]string {
	h := map[string][]string{}
	if cfg.Key != "" {
		h["Authorization"] = []string{"Bearer " + cfg.Key}
	}
	if withBody {
		h["Content-Type"] = []string{"application/json"}
	}
	return h
}

func runQueueUpdatesBenchmark(cfg BenchmarkConfig) *vegeta.Metrics {
	runID := randomString(6)

	// Calculate total requests
	totalRequests := cfg.RPS * int(cfg.Duration.Seconds())
	targets := make([]vegeta.Target, 0, totalRequests)

	url := cfg.Host + "/v1/updates"
	if cfg.Scope != "" {
		url += "?scope=" + cfg.Scope
	}

	// Pre-generate targets
	for i := 0; i < totalRequests; i++ {
		name := fmt.Sprintf("bench.%s.%d", runID, i%1000)
		payload := fmt.Sprintf(`{"name":"%s","value":"%s"}`, name, generateValue(cfg.ValueSize))

		targets = append(targets, vegeta.Target{
			Method: "POST",
			URL:    url,
			Body:   []byte(payload),
			Header: benchHeaders(cfg, true),
		})
	}

	return attack(cfg, targets, "queue_updates")
}

func runQueueBatchBenchmark(cfg BenchmarkConfig) *vegeta.Metrics {
	runID := randomString(6)

	totalRequests := cfg.RPS * int(cfg.Duration.Seconds())
	targets := make([]vegeta.Target, 0, totalRequests)

	url := cfg.Host + "/v1/updates/batch"
	if cfg.Scope != "" {
		url += "?scope=" + cfg.Scope
	}

	// Pre-generate batch targets
	for i := 0; i < totalRequests; i++ {
		entries := make([]map[string]string, 0, cfg.BatchSize)
		for j := 0; j < cfg.BatchSize; j++ {
			entries = append(entries, map[string]string{
				"name":  fmt.Sprintf("bench.%s.%d", runID, (i*cfg.BatchSize+j)%1000),
				"value": generateValue(cfg.ValueSize),
			})
		}
		payload, err := json.Marshal(entries)
		if err != nil {
			log.Fatal("Failed to encode batch payload:", err)
		}

		targets = append(targets, vegeta.Target{
			Method: "POST",
			URL:    url,
			Body:   payload,
			Header: benchHeaders(cfg, true),
		})
	}

	return attack(cfg, targets, "queue_batch")
}

func runReadBenchmark(cfg BenchmarkConfig) *vegeta.Metrics {
	fmt.Printf("Loading test data: seeding %d properties...\n", cfg.PropertyCount)

	names := loadTestData(cfg)
	if len(names) == 0 {
		log.Fatal("Failed to seed test data")
	}
	fmt.Printf("Seeded %d properties for benchmarking\n", len(names))

	prefix := names[0][:strings.LastIndex(names[0], ".")+1]

	totalRequests := cfg.RPS * int(cfg.Duration.Seconds())
	targets := make([]vegeta.Target, 0, totalRequests)

	// Pre-generate targets for reads
	for i := 0; i < totalRequests; i++ {
		var target vegeta.Target
		if cfg.Pattern == "read_mixed" && i%2 == 0 {
			target = vegeta.Target{
				Method: "GET",
				URL:    fmt.Sprintf("%s/v1/properties?prefix=%s&limit=50", cfg.Host, prefix),
				Header: benchHeaders(cfg, false),
			}
		} else {
			name := names[i%len(names)]
			target = vegeta.Target{
				Method: "GET",
				URL:    cfg.Host + "/v1/properties/" + name,
				Header: benchHeaders(cfg, false),
			}
		}
		targets = append(targets, target)
	}

	return attack(cfg, targets, cfg.Pattern)
}

// attack runs the pre-generated targets at the configured rate with live stats.
func attack(cfg BenchmarkConfig, targets []vegeta.Target, name string) *vegeta.Metrics {
	targeter := vegeta.NewStaticTargeter(targets...)
	rate := vegeta.Rate{Freq: cfg.RPS, Per: time.Second}
	attacker := vegeta.NewAttacker(vegeta.Workers(uint64(runtime.NumCPU())))

	results := &vegeta.Metrics{}
	resChan := attacker.Attack(targeter, rate, cfg.Duration, name)

	// Live stats
	stopPrint := make(chan struct{})
	statsChan := make(chan *vegeta.Result, 1024)
	go printLiveBenchmarkStats(cfg.Duration, stopPrint, statsChan)

	// Collect results
	for res := range resChan {
		results.Add(res)
		select {
		case statsChan <- res:
		default:
		}
	}
	close(stopPrint)
	results.Close()

	return results
}

// loadTestData queues and flushes the properties the read benchmarks target.
func loadTestData(cfg BenchmarkConfig) []string {
	runID := randomString(6)
	names := make([]string, 0, cfg.PropertyCount)

	var mu sync.Mutex
	var wg sync.WaitGroup
	seeded := make([]string, 0, cfg.PropertyCount)
	semaphore := make(chan struct{}, 10) // Limit concurrent seeding

	for i := 0; i < cfg.PropertyCount; i++ {
		names = append(names, fmt.Sprintf("bench.%s.%d", runID, i))
	}

	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			semaphore <- struct{}{}        // Acquire
			defer func() { <-semaphore }() // Release

			if !seedProperty(cfg, name) {
				return
			}

			mu.Lock()
			seeded = append(seeded, name)
			mu.Unlock()
		}(name)
	}

	wg.Wait()

	// One flush lands everything on the surface before reads start
	if !forceFlush(cfg) {
		return nil
	}
	return seeded
}

func seedProperty(cfg BenchmarkConfig, name string) bool {
	url := cfg.Host + "/v1/updates"
	if cfg.Scope != "" {
		url += "?scope=" + cfg.Scope
	}
	payload := fmt.Sprintf(`{"name":"%s","value":"%s"}`, name, generateValue(cfg.ValueSize))

	req, _ := http.NewRequest("POST", url, strings.NewReader(payload))
	if cfg.Key != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.Key)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == 200 || resp.StatusCode == 202
}

func forceFlush(cfg BenchmarkConfig) bool {
	url := cfg.Host + "/v1/flush"
	if cfg.Scope != "" {
		url += "?scope=" + cfg.Scope
	}

	req, _ := http.NewRequest("POST", url, nil)
	if cfg.Key != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.Key)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == 200
}

func generateValue(sizeBytes int) string {
	data := make([]byte, sizeBytes)
	rand.Read(data)
	return hex.EncodeToString(data)
}

func randomString(n int) string {
	const letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	bytes := make([]byte, n)
	rand.Read(bytes)
	for i, b := range bytes {
		bytes[i] = letters[b%byte(len(letters))]
	}
	return string(bytes)
}

func printLiveBenchmarkStats(totalDuration time.Duration, stop <-chan struct{}, resChan <-chan *vegeta.Result) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	start := time.Now()

	var totalReqs int64
	var totalDur time.Duration
	var minDur, maxDur time.Duration
	var successCount int64

	for {
		select {
		case <-stop:
			fmt.Println()
			return
		case <-ticker.C:
			elapsed := time.Since(start)
			remaining := totalDuration - elapsed
			if remaining < 0 {
				remaining = 0
			}

			// Calculate current RPS
			rps := float64(totalReqs) / elapsed.Seconds()
			var avgResp time.Duration
			if totalReqs > 0 {
				avgResp = totalDur / time.Duration(totalReqs)
			}

			fmt.Printf("\rRequests: %d | RPS: %.1f | Avg: %v | Min: %v | Max: %v | Success: %d | Remaining: %v",
				totalReqs, rps, avgResp, minDur, maxDur, successCount, remaining.Round(time.Second))
		case res, ok := <-resChan:
			if !ok {
				return
			}
			totalReqs++
			totalDur += res.Latency

			if minDur == 0 || res.Latency < minDur {
				minDur = res.Latency
			}
			if res.Latency > maxDur {
				maxDur = res.Latency
			}

			if res.Code >= 200 && res.Code < 400 {
				successCount++
			}
		}
	}
}

func outputBenchmarkMetrics(cfg BenchmarkConfig, results *vegeta.Metrics) {
	fmt.Println("\n📊 Summary:")
	fmt.Println("===========")
	fmt.Printf("  Requests: %d\n", results.Requests)
	fmt.Printf("  Success: %.2f%%\n", results.Success*100)
	fmt.Printf("  Throughput: %.1f req/s\n", results.Throughput)
	fmt.Printf("  Latency mean: %v\n", results.Latencies.Mean)
	fmt.Printf("  Latency p50: %v\n", results.Latencies.P50)
	fmt.Printf("  Latency p95: %v\n", results.Latencies.P95)
	fmt.Printf("  Latency p99: %v\n", results.Latencies.P99)
	fmt.Printf("  Latency max: %v\n", results.Latencies.Max)
	if len(results.Errors) > 0 {
		fmt.Printf("  Errors: %v\n", results.Errors)
	}

	execPath, err := os.Executable()
	if err != nil {
		log.Fatal("Failed to get executable path:", err)
	}
	execDir := filepath.Dir(execPath)
	logsDir := filepath.Join(execDir, "logs")
	os.MkdirAll(logsDir, 0755)

	testID := fmt.Sprintf("bench-%d", time.Now().Unix())
	outFile := filepath.Join(logsDir, testID+".json")

	file, err := os.Create(outFile)
	if err != nil {
		log.Fatal("Failed to create output file:", err)
	}
	defer file.Close()

	result := map[string]interface{}{
		"pattern":          cfg.Pattern,
		"scope":            scopeLabel(cfg.Scope),
		"rps":              cfg.RPS,
		"duration":         cfg.Duration.String(),
		"total_requests":   results.Requests,
		"success_ratio":    results.Success,
		"throughput":       results.Throughput,
		"mean_latency_ms":  results.Latencies.Mean.Milliseconds(),
		"p50_latency_ms":   results.Latencies.P50.Milliseconds(),
		"p95_latency_ms":   results.Latencies.P95.Milliseconds(),
		"p99_latency_ms":   results.Latencies.P99.Milliseconds(),
		"max_latency_ms":   results.Latencies.Max.Milliseconds(),
		"status_codes":     results.StatusCodes,
		"errors":           results.Errors,
		"bytes_out_total":  results.BytesOut.Total,
		"bytes_in_total":   results.BytesIn.Total,
		"earliest":         results.Earliest,
		"latest":           results.Latest,
	}

	json.NewEncoder(file).Encode(result)
	fmt.Printf("Output: %s\n", outFile)
}
