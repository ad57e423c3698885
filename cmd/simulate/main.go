package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/salon-appointment-scheduling/internal/appointment"
	"github.com/hackgods/salon-appointment-scheduling/internal/auth"
	"github.com/hackgods/salon-appointment-scheduling/internal/config"
	"github.com/hackgods/salon-appointment-scheduling/internal/db"
	"github.com/hackgods/salon-appointment-scheduling/internal/logger"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	CancelRatio  float64
	ReadRatio    float64
	StaffLimit   int
	Date         string // YYYY-MM-DD all bookings target
	Open, Close  int    // booking window in minutes after midnight
}

type staffService struct {
	StaffID   int64
	ServiceID int64
	Minutes   int
}

type DataPool struct {
	Pairs     []staffService
	Customers []int64

	mu           sync.RWMutex
	appointments []int64
}

func (dp *DataPool) AddAppointment(id int64) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) GetRandomAppointment(rng *rand.Rand) (int64, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return 0, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Throttled int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, status int) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case status >= 200 && status < 300:
		atomic.AddInt64(&om.Success, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&om.Conflict, 1)
	case status == http.StatusTooManyRequests:
		atomic.AddInt64(&om.Throttled, 1)
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

	n := len(latencies)
	avg = sum / time.Duration(n)
	lo = latencies[0]
	hi = latencies[n-1]
	p50 = latencies[min(n*50/100, n-1)]
	p95 = latencies[min(n*95/100, n-1)]
	return avg, lo, hi, p50, p95
}

type Metrics struct {
	Booking OperationMetrics
	Cancel  OperationMetrics
	Slots   OperationMetrics
	Read    OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	token   string
	log     *zap.Logger
	metrics Metrics
}

func main() {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}
	lg, err := logger.New(baseCfg.Log, "simulate")
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	cfg := loadConfig(baseCfg)
	if err := validateConfig(cfg); err != nil {
		lg.Fatal("invalid config", zap.Error(err))
	}

	lg.Info("simulator starting",
		zap.Duration("duration", cfg.Duration),
		zap.Int("workers", cfg.Workers),
		zap.String("date", cfg.Date),
		zap.Float64("booking", cfg.BookingRatio),
		zap.Float64("cancel", cfg.CancelRatio),
		zap.Float64("read", cfg.ReadRatio),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, baseCfg.PostgresDSN, db.WithApplicationName("simulate"))
	if err != nil {
		lg.Fatal("connect postgres", zap.Error(err))
	}
	defer pgPool.Close()

	dataPool, adminID, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		lg.Fatal("load data pool", zap.Error(err))
	}
	lg.Info("data loaded", zap.Int("staff_services", len(dataPool.Pairs)), zap.Int("customers", len(dataPool.Customers)))

	// bookings are made as an admin so customers can be booked on behalf
	token, err := auth.NewTokenManager(baseCfg.JWT).Generate(appointment.Admin(adminID), cfg.Duration+time.Hour)
	if err != nil {
		lg.Fatal("mint admin token", zap.Error(err))
	}

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		token:  token,
		log:    lg,
	}

	sim.Run()
	sim.PrintReport()

	auditCtx, cancelAudit := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelAudit()
	overlaps, err := auditOverlaps(auditCtx, pgPool)
	if err != nil {
		lg.Fatal("overlap audit", zap.Error(err))
	}
	fmt.Printf("Overlap audit: %d overlapping pairs of active appointments\n", overlaps)
	if overlaps > 0 {
		os.Exit(1)
	}
}

func loadConfig(base config.Config) SimConfig {
	tomorrow := time.Now().In(base.Location()).AddDate(0, 0, 1)
	if tomorrow.Weekday() == time.Sunday {
		tomorrow = tomorrow.AddDate(0, 0, 1)
	}

	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.6),
		CancelRatio:  getFloat("SIM_CANCEL_RATIO", 0.1),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.3),
		StaffLimit:   getInt("SIM_STAFF_LIMIT", 5),
		Date:         getEnv("SIM_DATE", tomorrow.Format("2006-01-02")),
		Open:         9 * 60,
		Close:        15 * 60,
	}

	// Normalize ratios
	total := cfg.BookingRatio + cfg.CancelRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.CancelRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.StaffLimit <= 0 {
		return fmt.Errorf("SIM_STAFF_LIMIT must be > 0")
	}
	if _, err := time.Parse("2006-01-02", cfg.Date); err != nil {
		return fmt.Errorf("SIM_DATE must be YYYY-MM-DD: %w", err)
	}
	return nil
}

// loadDataPool picks a handful of staff members so that workers keep
// colliding on the same calendars.
func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, int64, error) {
	dataPool := &DataPool{}

	rows, err := pool.Query(ctx, `
		SELECT st.id, sv.id, sv.duration_minutes
		FROM (SELECT id, salon_id FROM staffs ORDER BY id LIMIT $1) st
		JOIN services sv ON sv.salon_id = st.salon_id
	`, cfg.StaffLimit)
	if err != nil {
		return nil, 0, fmt.Errorf("load staff: %w", err)
	}
	for rows.Next() {
		var p staffService
		if err := rows.Scan(&p.StaffID, &p.ServiceID, &p.Minutes); err != nil {
			rows.Close()
			return nil, 0, err
		}
		dataPool.Pairs = append(dataPool.Pairs, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	rows, err = pool.Query(ctx, `SELECT id FROM users WHERE role = 'customer' LIMIT 1000`)
	if err != nil {
		return nil, 0, fmt.Errorf("load customers: %w", err)
	}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, 0, err
		}
		dataPool.Customers = append(dataPool.Customers, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var adminID int64
	if err := pool.QueryRow(ctx, `SELECT id FROM users WHERE role = 'admin' ORDER BY id LIMIT 1`).Scan(&adminID); err != nil {
		return nil, 0, fmt.Errorf("load admin: %w", err)
	}

	if len(dataPool.Pairs) == 0 {
		return nil, 0, fmt.Errorf("no staff with services loaded, run the seeder first")
	}
	if len(dataPool.Customers) == 0 {
		return nil, 0, fmt.Errorf("no customers loaded")
	}

	return dataPool, adminID, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.log.Info("starting simulation")

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
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < s.config.BookingRatio:
				s.doBooking(ctx, rng)
			case r < s.config.BookingRatio+s.config.CancelRatio:
				s.doCancel(ctx, rng)
			case rng.Intn(2) == 0:
				s.doSlots(ctx, rng)
			default:
				s.doRead(ctx, rng)
			}
		}
	}
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	pair := s.pool.Pairs[rng.Intn(len(s.pool.Pairs))]
	customer := s.pool.Customers[rng.Intn(len(s.pool.Customers))]

	// 15 minute grid so neighbouring bookings overlap often
	latest := s.config.Close - pair.Minutes
	if latest < s.config.Open {
		return
	}
	start := s.config.Open + 15*rng.Intn((latest-s.config.Open)/15+1)
	end := start + pair.Minutes

	body, _ := json.Marshal(map[string]any{
		"staff_id":   pair.StaffID,
		"service_id": pair.ServiceID,
		"user_id":    customer,
		"date":       s.config.Date,
		"start_time": clock(start),
		"end_time":   clock(end),
	})

	var created struct {
		ID int64 `json:"id"`
	}
	status, latency := s.call(ctx, http.MethodPost, "/appointments", body, &created)
	if status == http.StatusCreated && created.ID > 0 {
		s.pool.AddAppointment(created.ID)
	}
	s.metrics.Booking.Record(latency, status)
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}
	status, latency := s.call(ctx, http.MethodPost, fmt.Sprintf("/appointments/%d/cancel", id), nil, nil)
	s.metrics.Cancel.Record(latency, status)
}

func (s *Simulator) doSlots(ctx context.Context, rng *rand.Rand) {
	pair := s.pool.Pairs[rng.Intn(len(s.pool.Pairs))]
	path := fmt.Sprintf("/staff/%d/slots?date=%s&service_id=%d", pair.StaffID, s.config.Date, pair.ServiceID)
	status, latency := s.call(ctx, http.MethodGet, path, nil, nil)
	s.metrics.Slots.Record(latency, status)
}

func (s *Simulator) doRead(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}
	status, latency := s.call(ctx, http.MethodGet, fmt.Sprintf("/appointments/%d", id), nil, nil)
	s.metrics.Read.Record(latency, status)
}

// call returns the HTTP status, or 0 when the request failed outright.
func (s *Simulator) call(ctx context.Context, method, path string, body []byte, out any) (int, time.Duration) {
	start := time.Now()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if err != nil {
		return 0, time.Since(start)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return 0, latency
	}
	defer resp.Body.Close()

	if out != nil {
		_ = json.NewDecoder(resp.Body).Decode(out)
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	return resp.StatusCode, latency
}

// auditOverlaps counts pairs of active appointments of one staff member whose
// half-open intervals intersect. Anything above zero is a double booking.
func auditOverlaps(ctx context.Context, pool *pgxpool.Pool) (int64, error) {
	var n int64
	err := pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments a
		JOIN appointments b
		  ON a.staff_id = b.staff_id
		 AND a.id < b.id
		 AND a.start_time < b.end_time
		 AND b.start_time < a.end_time
		WHERE a.status <> 'cancelled' AND b.status <> 'cancelled'
	`).Scan(&n)
	return n, err
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Date: %s\n", s.config.Date)
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Available slots", &s.metrics.Slots)
	printOperationReport("Read by ID", &s.metrics.Read)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	pct := func(n int64) float64 { return float64(n) / float64(total) * 100 }
	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	throttled := atomic.LoadInt64(&om.Throttled)
	failed := atomic.LoadInt64(&om.Error)

	avg, lo, hi, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, pct(success))
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, pct(conflict))
	}
	if throttled > 0 {
		fmt.Printf("  Rate limited: %d (%.1f%%)\n", throttled, pct(throttled))
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, pct(failed))
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), lo.Round(time.Millisecond), hi.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

func clock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// Helper functions

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
