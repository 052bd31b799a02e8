// Benchmark tool for testing Kestrel against labelled credit applications.
//
// Usage:
//   go run cmd/benchmark/main.go -csv /path/to/applications.csv -url http://localhost:8080
//
// This tool:
//   1. Reads labelled application data (with recorded ACCEPT/REJECT outcomes)
//   2. Sends each application to Kestrel for evaluation
//   3. Compares Kestrel's fused decision with the recorded outcome
//   4. Calculates precision, recall, F1-score, and confusion matrix
//
// Decisions that defer to a human (MANUAL_REVIEW_REQUIRED, FRAUD_STOP,
// COLD_START) are counted separately as the review rate rather than forced
// into the confusion matrix.
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

// LabelledApplication is a row from the benchmark dataset.
type LabelledApplication struct {
	CaseID             string
	Age                int
	ClientStatus       string
	ProfessionalStatus string
	Stability          string
	MonthlyIncome      float64
	FixedExpenses      float64
	DebtRatio          float64
	BankingHistory     string
	CreditType         string
	Amount             float64
	DurationMonths     int
	Purpose            string
	StressLevel        int
	UrgencyLevel       int
	ProjectClarity     int
	EngagementLevel    int
	DiscourseCoherence string
	Rejected           bool // recorded outcome
}

// EvaluateResponse is the subset of the Kestrel API response the tool reads.
type EvaluateResponse struct {
	DecisionID    string  `json:"decision_id"`
	CaseID        string  `json:"case_id"`
	FinalDecision string  `json:"final_decision"`
	Reason        string  `json:"reason"`
	Confidence    float64 `json:"confidence"`
}

// Metrics tracks benchmark results. REJECT is the positive class.
type Metrics struct {
	TruePositives  int64 // Rejected application decided REJECT
	FalsePositives int64 // Accepted application decided REJECT
	TrueNegatives  int64 // Accepted application decided ACCEPT
	FalseNegatives int64 // Rejected application decided ACCEPT

	TotalProcessed int64
	TotalRejected  int64
	TotalAccepted  int64
	TotalReview    int64 // deferred to a human, excluded from the matrix
	TotalErrors    int64

	ProcessingTimeMs int64
}

func main() {
	// Parse flags
	csvPath := flag.String("csv", "", "Path to labelled applications CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	token := flag.String("token", "", "Bearer token (when auth is enabled)")
	limit := flag.Int("limit", 10000, "Maximum applications to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	rejectedOnly := flag.Bool("rejected-only", false, "Only test rejected applications")
	verbose := flag.Bool("verbose", false, "Print each application result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/applications.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║         KESTREL BENCHMARK - Labelled Credit Decisions         ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nCSV File:     %s\n", *csvPath)
	fmt.Printf("Kestrel URL:  %s\n", *baseURL)
	fmt.Printf("Tenant ID:    %s\n", *tenantID)
	fmt.Printf("Workers:      %d\n", *workers)
	fmt.Printf("Limit:        %d\n", *limit)
	fmt.Println()

	// Check Kestrel is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running:")
		fmt.Println("  go run cmd/kestrel/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Kestrel is healthy")

	// Read labelled data
	fmt.Printf("\nReading applications from %s...\n", *csvPath)
	applications, err := readApplicationsCSV(*csvPath, *limit, *rejectedOnly)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Loaded %d applications\n", len(applications))

	rejectedCount := 0
	for _, app := range applications {
		if app.Rejected {
			rejectedCount++
		}
	}
	fmt.Printf("  - Rejected: %d (%.2f%%)\n", rejectedCount, 100*float64(rejectedCount)/float64(len(applications)))
	fmt.Printf("  - Accepted: %d (%.2f%%)\n", len(applications)-rejectedCount, 100*float64(len(applications)-rejectedCount)/float64(len(applications)))

	// Run benchmark
	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(applications, *baseURL, *tenantID, *token, *workers, *verbose)
	duration := time.Since(startTime)

	printResults(metrics, duration)
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

func readApplicationsCSV(path string, limit int, rejectedOnly bool) ([]LabelledApplication, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	// Read header
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	// Map column indices
	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}

	col := func(record []string, name string) string {
		i, ok := colIndex[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var applications []LabelledApplication

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		rejected := strings.EqualFold(col(record, "outcome"), "REJECT")

		if rejectedOnly && !rejected {
			continue
		}

		age, _ := strconv.Atoi(col(record, "age"))
		income, _ := strconv.ParseFloat(col(record, "monthly_income"), 64)
		expenses, _ := strconv.ParseFloat(col(record, "fixed_expenses"), 64)
		debtRatio, _ := strconv.ParseFloat(col(record, "debt_ratio"), 64)
		amount, _ := strconv.ParseFloat(col(record, "amount"), 64)
		duration, _ := strconv.Atoi(col(record, "duration_months"))
		stress, _ := strconv.Atoi(col(record, "stress_level"))
		urgency, _ := strconv.Atoi(col(record, "urgency_level"))
		clarity, _ := strconv.Atoi(col(record, "project_clarity"))
		engagement, _ := strconv.Atoi(col(record, "engagement_level"))

		app := LabelledApplication{
			CaseID:             col(record, "case_id"),
			Age:                age,
			ClientStatus:       col(record, "client_status"),
			ProfessionalStatus: col(record, "professional_status"),
			Stability:          col(record, "stability"),
			MonthlyIncome:      income,
			FixedExpenses:      expenses,
			DebtRatio:          debtRatio,
			BankingHistory:     col(record, "banking_history"),
			CreditType:         col(record, "credit_type"),
			Amount:             amount,
			DurationMonths:     duration,
			Purpose:            col(record, "purpose"),
			StressLevel:        stress,
			UrgencyLevel:       urgency,
			ProjectClarity:     clarity,
			EngagementLevel:    engagement,
			DiscourseCoherence: col(record, "discourse_coherence"),
			Rejected:           rejected,
		}

		applications = append(applications, app)

		if limit > 0 && len(applications) >= limit {
			break
		}
	}

	return applications, nil
}

func runBenchmark(applications []LabelledApplication, baseURL, tenantID, token string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	work := make(chan LabelledApplication, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for app := range work {
				start := time.Now()
				result, err := evaluateApplication(client, baseURL, tenantID, token, app)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", app.CaseID, err)
					}
					continue
				}

				if app.Rejected {
					atomic.AddInt64(&metrics.TotalRejected, 1)
				} else {
					atomic.AddInt64(&metrics.TotalAccepted, 1)
				}

				// Deferred decisions are a separate bucket
				switch result.FinalDecision {
				case "ACCEPT", "REJECT":
				default:
					atomic.AddInt64(&metrics.TotalReview, 1)
					if verbose {
						fmt.Printf("↪ %-12s | %-24s | Label: %-6s | Kestrel: %s (%s)\n",
							trunc(app.CaseID, 12), result.Reason, label(app.Rejected), result.FinalDecision, result.Reason)
					}
					continue
				}

				predicted := result.FinalDecision == "REJECT"
				actual := app.Rejected

				if predicted && actual {
					atomic.AddInt64(&metrics.TruePositives, 1)
				} else if predicted && !actual {
					atomic.AddInt64(&metrics.FalsePositives, 1)
				} else if !predicted && !actual {
					atomic.AddInt64(&metrics.TrueNegatives, 1)
				} else { // !predicted && actual
					atomic.AddInt64(&metrics.FalseNegatives, 1)
				}

				if verbose {
					status := "✓"
					if predicted != actual {
						status = "✗"
					}
					fmt.Printf("%s %-12s | Amount: %10.2f | Label: %-6s | Kestrel: %-6s (%.2f) | %s\n",
						status,
						trunc(app.CaseID, 12),
						app.Amount,
						label(app.Rejected),
						result.FinalDecision,
						result.Confidence,
						result.Reason,
					)
				}
			}
		}()
	}

	for _, app := range applications {
		work <- app
	}
	close(work)

	wg.Wait()

	return metrics
}

func evaluateApplication(client *http.Client, baseURL, tenantID, token string, app LabelledApplication) (*EvaluateResponse, error) {
	// Build request matching Kestrel's expected format
	req := map[string]any{
		"case_id": app.CaseID,
		"interaction_metadata": map[string]any{
			"contact_channel": "PHYSICAL_MEETING",
		},
		"client_identity": map[string]any{
			"age":                   app.Age,
			"client_status":         defaultStr(app.ClientStatus, "REGULAR"),
			"interaction_frequency": "MEDIUM",
		},
		"personal_situation": map[string]any{
			"marital_status":   "SINGLE",
			"dependents_count": 0,
			"spouse_exists":    false,
		},
		"professional_situation": map[string]any{
			"professional_status": defaultStr(app.ProfessionalStatus, "EMPLOYEE_CDI"),
			"stability":           defaultStr(app.Stability, "MEDIUM"),
		},
		"financial_situation": map[string]any{
			"monthly_income_net":     app.MonthlyIncome,
			"monthly_fixed_expenses": app.FixedExpenses,
			"debt_ratio":             app.DebtRatio,
			"banking_history":        defaultStr(app.BankingHistory, "NO_INCIDENT"),
		},
		"credit_request": map[string]any{
			"credit_type":      defaultStr(app.CreditType, "PERSONAL"),
			"amount_requested": app.Amount,
			"duration_months":  app.DurationMonths,
			"purpose":          defaultStr(app.Purpose, "NECESSARY_EXPENSE"),
		},
		"behavioral_indicators": map[string]any{
			"stress_level":        clampRating(app.StressLevel),
			"urgency_level":       clampRating(app.UrgencyLevel),
			"project_clarity":     clampRating(app.ProjectClarity),
			"engagement_level":    clampRating(app.EngagementLevel),
			"discourse_coherence": defaultStr(app.DiscourseCoherence, "HIGH"),
		},
		"real_intention": map[string]any{
			"main_motivation":     "NECESSITY",
			"projection_capacity": "MEDIUM_TERM",
		},
		"risk_checklist": map[string]any{},
		"synthesis": map[string]any{
			"global_risk_profile":            "MEDIUM",
			"theoretical_repayment_capacity": "ACCEPTABLE",
		},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/applications/evaluate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", tenantID)
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result EvaluateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func defaultStr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func clampRating(v int) int {
	if v < 1 {
		return 1
	}
	if v > 5 {
		return 5
	}
	return v
}

func trunc(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func label(rejected bool) string {
	if rejected {
		return "REJECT"
	}
	return "ACCEPT"
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 DATASET STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Total Rejected:   %d\n", m.TotalRejected)
	fmt.Printf("   Total Accepted:   %d\n", m.TotalAccepted)
	fmt.Printf("   Deferred:         %d\n", m.TotalReview)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\n📈 CONFUSION MATRIX (REJECT = positive, deferred excluded)\n")
	fmt.Println("                        Predicted")
	fmt.Println("                   REJECT      ACCEPT")
	fmt.Println("              ┌──────────┬──────────┐")
	fmt.Printf("   Actual  R  │ %8d │ %8d │  (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Println("              ├──────────┼──────────┤")
	fmt.Printf("           A  │ %8d │ %8d │  (FP, TN)\n", m.FalsePositives, m.TrueNegatives)
	fmt.Println("              └──────────┴──────────┘")

	// Calculate metrics
	precision := float64(0)
	if m.TruePositives+m.FalsePositives > 0 {
		precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}

	recall := float64(0)
	if m.TruePositives+m.FalseNegatives > 0 {
		recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
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

	fmt.Printf("\n🎯 DECISION METRICS\n")
	fmt.Printf("   Precision:  %.4f  (of rejections, how many matched the recorded outcome)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of recorded rejections, how many we caught)\n", recall)
	fmt.Printf("   F1-Score:   %.4f  (harmonic mean of precision & recall)\n", f1)
	fmt.Printf("   Accuracy:   %.4f  (overall agreement with recorded outcomes)\n", accuracy)

	if m.TotalProcessed > 0 {
		reviewRate := float64(m.TotalReview) / float64(m.TotalProcessed) * 100
		fmt.Printf("\n🔍 REVIEW ANALYSIS\n")
		fmt.Printf("   Review Rate:  %d / %d (%.2f%%) sent to a human\n", m.TotalReview, m.TotalProcessed, reviewRate)
	}

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		tps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f applications/sec\n", tps)
	}

	fmt.Printf("\n💡 INTERPRETATION\n")
	if recall >= 0.9 {
		fmt.Println("   ✅ Excellent recall - catching most risky applications")
	} else if recall >= 0.7 {
		fmt.Println("   ⚠️  Good recall - but some risky applications slip through")
	} else if recall >= 0.5 {
		fmt.Println("   ⚠️  Moderate recall - many risky applications slip through")
	} else {
		fmt.Println("   ❌ Poor recall - most risky applications are approved!")
	}

	if precision >= 0.5 {
		fmt.Println("   ✅ Good precision - rejections are meaningful")
	} else if precision >= 0.2 {
		fmt.Println("   ⚠️  Low precision - many sound applications rejected")
	} else {
		fmt.Println("   ❌ Very low precision - mostly wrongful rejections")
	}

	fmt.Println()
}
