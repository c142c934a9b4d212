// Benchmark tool for testing ReturnsX against labeled COD order history.
//
// Usage:
//   go run cmd/benchmark/main.go -csv /path/to/orders.csv -url http://localhost:8080
//
// This tool:
//   1. Reads labeled order event history (customer, kind, value, risky flag)
//   2. Replays each event through POST /events
//   3. Fetches the final assessment for every customer
//   4. Compares the verdict (REVIEW/BLOCK_COD vs PROCEED) with the labels
//      and calculates precision, recall, F1-score, and confusion matrix
//
// Expected CSV columns: customer,kind,order_id,order_value,is_risky
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// OrderRow represents a row from the labeled order dataset.
type OrderRow struct {
	Customer   string
	Kind       string
	OrderID    string
	OrderValue float64
	IsRisky    bool
}

// EventRequest is the ReturnsX ingestion request format.
type EventRequest struct {
	EventID    string  `json:"eventId"`
	Kind       string  `json:"kind"`
	OrderID    string  `json:"orderId"`
	OrderValue float64 `json:"orderValue"`
	CustomerID string  `json:"customerId"`
}

// AssessmentResponse is the relevant slice of the assessment payload.
type AssessmentResponse struct {
	Assessment struct {
		Score          float64 `json:"score"`
		Tier           string  `json:"tier"`
		Confidence     float64 `json:"confidence"`
		Recommendation string  `json:"recommendation"`
	} `json:"assessment"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	TruePositives  int64 // Risky customer flagged (REVIEW or BLOCK_COD)
	FalsePositives int64 // Good customer flagged
	TrueNegatives  int64 // Good customer cleared (PROCEED)
	FalseNegatives int64 // Risky customer cleared

	EventsSent  int64
	TotalErrors int64

	IngestTimeMs int64
}

func main() {
	csvPath := flag.String("csv", "", "Path to labeled order CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "ReturnsX base URL")
	storeID := flag.String("store", "benchmark-test", "Store ID for requests")
	limit := flag.Int("limit", 0, "Maximum events to replay (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	verbose := flag.Bool("verbose", false, "Print each customer verdict")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/orders.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║         RETURNSX BENCHMARK - COD Risk Classification          ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nCSV File:     %s\n", *csvPath)
	fmt.Printf("ReturnsX URL: %s\n", *baseURL)
	fmt.Printf("Store ID:     %s\n", *storeID)
	fmt.Printf("Workers:      %d\n", *workers)
	fmt.Printf("Limit:        %d\n", *limit)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: ReturnsX not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure ReturnsX is running:")
		fmt.Println("  go run cmd/returnsx/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ ReturnsX is healthy")

	fmt.Printf("\nReading order history from %s...\n", *csvPath)
	rows, labels, err := readOrderCSV(*csvPath, *limit)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Loaded %d events across %d customers\n", len(rows), len(labels))

	startTime := time.Now()
	metrics := &Metrics{}

	fmt.Printf("\nReplaying events with %d workers...\n", *workers)
	replayEvents(rows, *baseURL, *storeID, *workers, metrics)

	fmt.Println("Fetching final assessments...")
	scoreCustomers(labels, *baseURL, *storeID, *workers, *verbose, metrics)

	printResults(metrics, time.Since(startTime))
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func readOrderCSV(path string, limit int) ([]OrderRow, map[string]bool, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read header: %w", err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(col)] = i
	}

	var rows []OrderRow
	labels := make(map[string]bool)

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		value, _ := strconv.ParseFloat(record[colIndex["order_value"]], 64)
		row := OrderRow{
			Customer:   record[colIndex["customer"]],
			Kind:       strings.ToUpper(record[colIndex["kind"]]),
			OrderID:    record[colIndex["order_id"]],
			OrderValue: value,
			IsRisky:    record[colIndex["is_risky"]] == "1",
		}

		rows = append(rows, row)
		labels[row.Customer] = row.IsRisky

		if limit > 0 && len(rows) >= limit {
			break
		}
	}

	return rows, labels, nil
}

func replayEvents(rows []OrderRow, baseURL, storeID string, numWorkers int, metrics *Metrics) {
	work := make(chan OrderRow, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for row := range work {
				start := time.Now()
				err := sendEvent(client, baseURL, storeID, row)
				atomic.AddInt64(&metrics.IngestTimeMs, time.Since(start).Milliseconds())
				atomic.AddInt64(&metrics.EventsSent, 1)
				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
				}
			}
		}()
	}

	for _, row := range rows {
		work <- row
	}
	close(work)
	wg.Wait()
}

func sendEvent(client *http.Client, baseURL, storeID string, row OrderRow) error {
	req := EventRequest{
		EventID:    row.OrderID + "-" + row.Kind,
		Kind:       row.Kind,
		OrderID:    row.OrderID,
		OrderValue: row.OrderValue,
		CustomerID: row.Customer,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/events", bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Store-ID", storeID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

func scoreCustomers(labels map[string]bool, baseURL, storeID string, numWorkers int, verbose bool, metrics *Metrics) {
	type job struct {
		customer string
		isRisky  bool
	}

	work := make(chan job, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for j := range work {
				result, err := fetchAssessment(client, baseURL, storeID, j.customer)
				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					continue
				}

				flagged := result.Assessment.Recommendation != "PROCEED"
				switch {
				case flagged && j.isRisky:
					atomic.AddInt64(&metrics.TruePositives, 1)
				case flagged && !j.isRisky:
					atomic.AddInt64(&metrics.FalsePositives, 1)
				case !flagged && !j.isRisky:
					atomic.AddInt64(&metrics.TrueNegatives, 1)
				default:
					atomic.AddInt64(&metrics.FalseNegatives, 1)
				}

				if verbose {
					status := "✓"
					if flagged != j.isRisky {
						status = "✗"
					}
					fmt.Printf("%s %-24s | Risky: %-5v | Verdict: %-9s | Tier: %-11s | Score: %5.1f\n",
						status, j.customer, j.isRisky,
						result.Assessment.Recommendation,
						result.Assessment.Tier,
						result.Assessment.Score,
					)
				}
			}
		}()
	}

	for customer, isRisky := range labels {
		work <- job{customer: customer, isRisky: isRisky}
	}
	close(work)
	wg.Wait()
}

func fetchAssessment(client *http.Client, baseURL, storeID, customer string) (*AssessmentResponse, error) {
	httpReq, err := http.NewRequest(http.MethodGet, baseURL+"/customers/"+customer+"/assessment", nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("X-Store-ID", storeID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result AssessmentResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	totalRisky := m.TruePositives + m.FalseNegatives
	totalGood := m.TrueNegatives + m.FalsePositives

	fmt.Printf("\n📊 DATASET STATISTICS\n")
	fmt.Printf("   Events Sent:      %d\n", m.EventsSent)
	fmt.Printf("   Risky Customers:  %d\n", totalRisky)
	fmt.Printf("   Good Customers:   %d\n", totalGood)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\n📈 CONFUSION MATRIX\n")
	fmt.Println("                      Predicted")
	fmt.Println("                  FLAGGED    PROCEED")
	fmt.Println("              ┌──────────┬──────────┐")
	fmt.Printf("   Actual  R  │ %8d │ %8d │  (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Println("              ├──────────┼──────────┤")
	fmt.Printf("           G  │ %8d │ %8d │  (FP, TN)\n", m.FalsePositives, m.TrueNegatives)
	fmt.Println("              └──────────┴──────────┘")

	precision := float64(0)
	if m.TruePositives+m.FalsePositives > 0 {
		precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}

	recall := float64(0)
	if totalRisky > 0 {
		recall = float64(m.TruePositives) / float64(totalRisky)
	}

	f1 := float64(0)
	if precision+recall > 0 {
		f1 = 2 * (precision * recall) / (precision + recall)
	}

	accuracy := float64(0)
	total := m.TruePositives + m.TrueNegatives + m.FalsePositives + m.FalseNegatives
	if total > 0 {
		accuracy = float64(m.TruePositives+m.TrueNegatives) / float64(total)
	}

	fmt.Printf("\n🎯 CLASSIFICATION METRICS\n")
	fmt.Printf("   Precision:  %.4f  (of flagged customers, how many were risky)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of risky customers, how many did we flag)\n", recall)
	fmt.Printf("   F1-Score:   %.4f  (harmonic mean of precision & recall)\n", f1)
	fmt.Printf("   Accuracy:   %.4f  (overall correct verdicts)\n", accuracy)

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.EventsSent > 0 {
		avgMs := float64(m.IngestTimeMs) / float64(m.EventsSent)
		eps := float64(m.EventsSent) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f events/sec\n", eps)
	}

	fmt.Println()
}
