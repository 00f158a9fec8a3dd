// Benchmark drives the unlock endpoint: each iteration creates a puzzle
// session, submits the in-order solution and records whether the unlock was
// granted or rejected by the royalty gate.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

var (
	targetURL   string
	concurrency int
	duration    time.Duration
	workload    string
)

// Metrics
var (
	totalRequests uint64
	granted       uint64
	gateRejected  uint64
	puzzleFailed  uint64
	failOther     uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "uniform", "Workload type: uniform | hotspot")
}

func main() {
	flag.Parse()
	log.Printf("Starting Benchmark: %s | Workers: %d | Duration: %s", workload, concurrency, duration)

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go worker(&wg, start)
	}

	wg.Wait()
	printResults(time.Since(start))
}

type puzzleResponse struct {
	ID   string `json:"id"`
	Rows int    `json:"rows"`
	Cols int    `json:"cols"`
}

type unlockResponse struct {
	Granted      bool `json:"granted"`
	PendingCount int  `json:"pending_count"`
}

func worker(wg *sync.WaitGroup, start time.Time) {
	defer wg.Done()
	client := &http.Client{Timeout: 5 * time.Second}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for time.Since(start) < duration {
		atomic.AddUint64(&totalRequests, 1)

		payerID := int64(1000 + rng.Intn(10000))
		if workload == "hotspot" {
			// One payer hammering the gate exercises rejections.
			payerID = 1000
		}
		contentID := fmt.Sprintf("ip-%d", rng.Intn(50))

		session, err := createPuzzle(client, contentID)
		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}
		result, err := attemptUnlock(client, payerID, contentID, session)
		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}
		switch {
		case result.Granted:
			atomic.AddUint64(&granted, 1)
		case result.PendingCount > 0:
			atomic.AddUint64(&gateRejected, 1)
		default:
			atomic.AddUint64(&puzzleFailed, 1)
		}
	}
}

func createPuzzle(client *http.Client, contentID string) (*puzzleResponse, error) {
	body, _ := json.Marshal(map[string]any{"content_id": contentID, "rows": 3, "cols": 3})
	resp, err := client.Post(targetURL+"/api/v1/puzzle", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("puzzle create status %d", resp.StatusCode)
	}
	var session puzzleResponse
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, err
	}
	return &session, nil
}

func attemptUnlock(client *http.Client, payerID int64, contentID string, session *puzzleResponse) (*unlockResponse, error) {
	sequence := make([]string, 0, session.Rows*session.Cols)
	for r := 0; r < session.Rows; r++ {
		for c := 0; c < session.Cols; c++ {
			sequence = append(sequence, fmt.Sprintf("p-%d-%d", r, c))
		}
	}
	body, _ := json.Marshal(map[string]any{
		"payer_id":   payerID,
		"session_id": session.ID,
		"sequence":   sequence,
		"content_id": contentID,
	})
	resp, err := client.Post(targetURL+"/api/v1/unlock", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unlock status %d", resp.StatusCode)
	}
	var result unlockResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

func printResults(elapsed time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	fmt.Println("\n--- Benchmark Results ---")
	fmt.Printf("Elapsed:        %s\n", elapsed.Round(time.Millisecond))
	fmt.Printf("Total attempts: %d (%.1f/s)\n", total, float64(total)/elapsed.Seconds())
	fmt.Printf("Granted:        %d\n", atomic.LoadUint64(&granted))
	fmt.Printf("Gate rejected:  %d\n", atomic.LoadUint64(&gateRejected))
	fmt.Printf("Puzzle failed:  %d\n", atomic.LoadUint64(&puzzleFailed))
	fmt.Printf("Other failures: %d\n", atomic.LoadUint64(&failOther))
}
