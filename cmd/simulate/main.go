package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/logging"
)

type SimConfig struct {
	APIBaseURL      string
	Duration        time.Duration
	Workers         int
	RequestsPerSec  float64
	BookingRatio    float64
	BulkRatio       float64
	TransitionRatio float64
	ReadRatio       float64
	AssignmentLimit int
	HorizonDays     int
	PostgresDSN     string
	Env             string
}

type assignmentRef struct {
	ID          uuid.UUID
	TherapistID uuid.UUID
}

type DataPool struct {
	Assignments []assignmentRef
	mu          sync.RWMutex
	sessions    []uuid.UUID
}

func (dp *DataPool) AddSession(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.sessions = append(dp.sessions, id)
}

func (dp *DataPool) RandomSession(rng *rand.Rand) (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.sessions) == 0 {
		return uuid.Nil, false
	}
	return dp.sessions[rng.Intn(len(dp.sessions))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case success:
		atomic.AddInt64(&om.Success, 1)
	case conflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, lo, hi, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	percentile := func(p int) time.Duration {
		idx := len(latencies) * p / 100
		if idx >= len(latencies) {
			idx = len(latencies) - 1
		}
		return latencies[idx]
	}

	return sum / time.Duration(len(latencies)), latencies[0], latencies[len(latencies)-1], percentile(50), percentile(95)
}

type Metrics struct {
	Availability OperationMetrics
	Booking      OperationMetrics
	Bulk         OperationMetrics
	Transition   OperationMetrics
	ReadByID     OperationMetrics
	ListDay      OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	limiter *rate.Limiter
	log     *zap.Logger
	metrics Metrics
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Env, "simulate")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("simulator starting",
		zap.Duration("duration", cfg.Duration),
		zap.Int("workers", cfg.Workers),
		zap.Float64("rps", cfg.RequestsPerSec),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, 4)
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		logger.Fatal("load data pool", zap.Error(err))
	}
	logger.Info("data pool loaded", zap.Int("assignments", len(dataPool.Assignments)))

	limit := rate.Inf
	if cfg.RequestsPerSec > 0 {
		limit = rate.Limit(cfg.RequestsPerSec)
	}

	sim := &Simulator{
		config:  cfg,
		pool:    dataPool,
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(limit, cfg.Workers),
		log:     logger,
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig() (SimConfig, error) {
	baseCfg, err := config.Load()
	if err != nil {
		return SimConfig{}, err
	}

	cfg := SimConfig{
		APIBaseURL:      getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:        getDuration("SIM_DURATION", 30*time.Second),
		Workers:         getInt("SIM_WORKERS", 10),
		RequestsPerSec:  getFloat("SIM_RPS", 200),
		BookingRatio:    getFloat("SIM_BOOKING_RATIO", 0.35),
		BulkRatio:       getFloat("SIM_BULK_RATIO", 0.05),
		TransitionRatio: getFloat("SIM_TRANSITION_RATIO", 0.2),
		ReadRatio:       getFloat("SIM_READ_RATIO", 0.4),
		AssignmentLimit: getInt("SIM_ASSIGNMENT_LIMIT", 1000),
		HorizonDays:     getInt("SIM_HORIZON_DAYS", 14),
		PostgresDSN:     baseCfg.PostgresDSN,
		Env:             baseCfg.Env,
	}

	total := cfg.BookingRatio + cfg.BulkRatio + cfg.TransitionRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.BulkRatio /= total
		cfg.TransitionRatio /= total
		cfg.ReadRatio /= total
	}

	switch {
	case cfg.Workers <= 0:
		return SimConfig{}, fmt.Errorf("SIM_WORKERS must be > 0")
	case cfg.Duration <= 0:
		return SimConfig{}, fmt.Errorf("SIM_DURATION must be > 0")
	case cfg.HorizonDays <= 0:
		return SimConfig{}, fmt.Errorf("SIM_HORIZON_DAYS must be > 0")
	}
	return cfg, nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	rows, err := pool.Query(ctx, `
		SELECT id, therapist_id FROM service_assignments
		WHERE status = 'ACTIVE' AND completed_sessions < total_sessions
		LIMIT $1
	`, cfg.AssignmentLimit)
	if err != nil {
		return nil, fmt.Errorf("load assignments: %w", err)
	}
	defer rows.Close()

	dataPool := &DataPool{}
	for rows.Next() {
		var ref assignmentRef
		if err := rows.Scan(&ref.ID, &ref.TherapistID); err != nil {
			return nil, err
		}
		dataPool.Assignments = append(dataPool.Assignments, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(dataPool.Assignments) == 0 {
		return nil, fmt.Errorf("no bookable service assignments, run the seed first")
	}
	return dataPool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.log.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}

		r := rng.Float64()
		switch {
		case r < s.config.BookingRatio:
			s.doBooking(ctx, rng)
		case r < s.config.BookingRatio+s.config.BulkRatio:
			s.doBulk(ctx, rng)
		case r < s.config.BookingRatio+s.config.BulkRatio+s.config.TransitionRatio:
			s.doTransition(ctx, rng)
		default:
			switch rng.Intn(3) {
			case 0:
				s.doAvailability(ctx, rng)
			case 1:
				s.doReadByID(ctx, rng)
			case 2:
				s.doListDay(ctx, rng)
			}
		}
	}
}

// randomSlot picks a working-hours-ish start on a future date, on a 15 minute grid.
func (s *Simulator) randomSlot(rng *rand.Rand) (date, hhmm string, duration int) {
	day := time.Now().UTC().AddDate(0, 0, 1+rng.Intn(s.config.HorizonDays))
	minutes := 8*60 + rng.Intn(36)*15
	durations := []int{30, 45, 60, 90}
	return day.Format("2006-01-02"), fmt.Sprintf("%02d:%02d", minutes/60, minutes%60), durations[rng.Intn(len(durations))]
}

func (s *Simulator) randomAssignment(rng *rand.Rand) assignmentRef {
	return s.pool.Assignments[rng.Intn(len(s.pool.Assignments))]
}

func (s *Simulator) doAvailability(ctx context.Context, rng *rand.Rand) {
	a := s.randomAssignment(rng)
	date, hhmm, duration := s.randomSlot(rng)

	status, _, latency, err := s.send(ctx, http.MethodPost, "/availability/check", map[string]any{
		"therapist_id":     a.TherapistID,
		"date":             date,
		"time":             hhmm,
		"duration_minutes": duration,
	})
	s.metrics.Availability.Record(latency, err == nil && status == http.StatusOK, false)
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	a := s.randomAssignment(rng)
	date, hhmm, duration := s.randomSlot(rng)

	status, body, latency, err := s.send(ctx, http.MethodPost, "/sessions", map[string]any{
		"service_assignment_id": a.ID,
		"date":                  date,
		"time":                  hhmm,
		"duration_minutes":      duration,
	})

	success := err == nil && status == http.StatusCreated
	if success {
		var created struct {
			ID uuid.UUID `json:"id"`
		}
		if json.Unmarshal(body, &created) == nil && created.ID != uuid.Nil {
			s.pool.AddSession(created.ID)
		}
	}
	s.metrics.Booking.Record(latency, success, err == nil && status == http.StatusConflict)
}

func (s *Simulator) doBulk(ctx context.Context, rng *rand.Rand) {
	a := s.randomAssignment(rng)
	date, hhmm, duration := s.randomSlot(rng)
	start, _ := time.Parse("2006-01-02", date)
	frequencies := []string{"DAILY", "WEEKLY", "BIWEEKLY"}

	status, body, latency, err := s.send(ctx, http.MethodPost, "/sessions/bulk", map[string]any{
		"service_assignment_id": a.ID,
		"start_date":            date,
		"end_date":              start.AddDate(0, 0, 28).Format("2006-01-02"),
		"frequency":             frequencies[rng.Intn(len(frequencies))],
		"time_slots":            []map[string]any{{"time": hhmm, "duration_minutes": duration}},
	})

	success := err == nil && status == http.StatusCreated
	if err == nil && (status == http.StatusCreated || status == http.StatusOK) {
		var res struct {
			CreatedSessions []struct {
				ID uuid.UUID `json:"id"`
			} `json:"created_sessions"`
		}
		if json.Unmarshal(body, &res) == nil {
			for _, c := range res.CreatedSessions {
				s.pool.AddSession(c.ID)
			}
		}
	}
	s.metrics.Bulk.Record(latency, success, err == nil && (status == http.StatusOK || status == http.StatusConflict))
}

func (s *Simulator) doTransition(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.RandomSession(rng)
	if !ok {
		return
	}

	var (
		action  string
		payload map[string]any
	)
	switch rng.Intn(4) {
	case 0:
		action = "start"
	case 1:
		action, payload = "complete", map[string]any{"actual_duration_minutes": 30 + rng.Intn(60)}
	case 2:
		action, payload = "cancel", map[string]any{"reason": "simulated cancellation"}
	case 3:
		_, hhmm, _ := s.randomSlot(rng)
		action, payload = "reschedule", map[string]any{"time": hhmm}
	}

	status, _, latency, err := s.send(ctx, http.MethodPost, fmt.Sprintf("/sessions/%s/%s", id, action), payload)
	s.metrics.Transition.Record(latency, err == nil && status == http.StatusOK, err == nil && status == http.StatusConflict)
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.RandomSession(rng)
	if !ok {
		return
	}
	status, _, latency, err := s.send(ctx, http.MethodGet, "/sessions/"+id.String(), nil)
	s.metrics.ReadByID.Record(latency, err == nil && status == http.StatusOK, false)
}

func (s *Simulator) doListDay(ctx context.Context, rng *rand.Rand) {
	a := s.randomAssignment(rng)
	date, _, _ := s.randomSlot(rng)
	status, _, latency, err := s.send(ctx, http.MethodGet, fmt.Sprintf("/therapists/%s/sessions?date=%s", a.TherapistID, date), nil)
	s.metrics.ListDay.Record(latency, err == nil && status == http.StatusOK, false)
}

func (s *Simulator) send(ctx context.Context, method, path string, payload any) (int, []byte, time.Duration, error) {
	var reader io.Reader
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, 0, err
		}
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if err != nil {
		return 0, nil, 0, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		if ctx.Err() == nil {
			s.log.Debug("request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		}
		return 0, nil, latency, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	return resp.StatusCode, body, latency, err
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Availability check", &s.metrics.Availability)
	printOperationReport("Book session", &s.metrics.Booking)
	printOperationReport("Bulk schedule", &s.metrics.Bulk)
	printOperationReport("Transition", &s.metrics.Transition)
	printOperationReport("Read by ID", &s.metrics.ReadByID)
	printOperationReport("List therapist day", &s.metrics.ListDay)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, lo, hi, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), lo.Round(time.Millisecond), hi.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
