package main

import (
	"bytes"
	"context"
	"fmt"
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

	"github.com/hackgods/slot-booking-service/internal/config"
	"github.com/hackgods/slot-booking-service/internal/db"
	"github.com/hackgods/slot-booking-service/internal/logger"
	"github.com/hackgods/slot-booking-service/internal/schedule"
)

type SimConfig struct {
	APIBaseURL      string
	Duration        time.Duration
	Workers         int
	BookingRatio    float64
	ConfirmRatio    float64
	CancelRatio     float64
	ReadRatio       float64
	HotspotRatio    float64 // share of bookings aimed at a handful of contended slots
	DaysAhead       int
	PatientLimit    int
	SpecialistLimit int
	PostgresDSN     string
}

type practitioner struct {
	ID      uuid.UUID
	Clinics []uuid.UUID
}

type DataPool struct {
	Patients    []uuid.UUID
	Specialists []practitioner
	Today       schedule.Date

	mu           sync.RWMutex
	appointments []uuid.UUID
}

func (dp *DataPool) AddAppointment(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) RandomAppointment(rng *rand.Rand) (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return uuid.Nil, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
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
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Percentiles() (p50, p95, max time.Duration) {
	om.mu.Lock()
	latencies := append([]time.Duration(nil), om.Latencies...)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	at := func(pct int) time.Duration {
		idx := len(latencies) * pct / 100
		if idx >= len(latencies) {
			idx = len(latencies) - 1
		}
		return latencies[idx]
	}
	return at(50), at(95), latencies[len(latencies)-1]
}

type Metrics struct {
	Availability OperationMetrics
	Booking      OperationMetrics
	Confirm      OperationMetrics
	Cancel       OperationMetrics
	ReadByID     OperationMetrics
	List         OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	log     *zap.Logger
	metrics Metrics
}

func main() {
	baseCfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(baseCfg.Env, baseCfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	cfg := loadConfig(baseCfg)
	if err := validateConfig(cfg); err != nil {
		log.Fatal("invalid config", zap.Error(err))
	}

	log.Info("simulator starting",
		zap.Duration("duration", cfg.Duration),
		zap.Int("workers", cfg.Workers),
		zap.Float64("booking", cfg.BookingRatio),
		zap.Float64("confirm", cfg.ConfirmRatio),
		zap.Float64("cancel", cfg.CancelRatio),
		zap.Float64("read", cfg.ReadRatio),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 2, ApplicationName: "simulate"})
	if err != nil {
		log.Fatal("connect postgres", zap.Error(err))
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg, schedule.Today(time.Now(), baseCfg.Location))
	if err != nil {
		log.Fatal("load data pool", zap.Error(err))
	}
	log.Info("data pool loaded",
		zap.Int("patients", len(dataPool.Patients)),
		zap.Int("specialists", len(dataPool.Specialists)),
	)

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}

	sim.Run()
	sim.PrintReport()

	dupes, err := countDoubleBookings(context.Background(), pgPool)
	if err != nil {
		log.Fatal("integrity check", zap.Error(err))
	}
	if dupes > 0 {
		log.Fatal("double bookings detected", zap.Int("slots", dupes))
	}
	log.Info("integrity check passed: no slot holds more than one active appointment")
}

func loadConfig(base config.Config) SimConfig {
	cfg := SimConfig{
		APIBaseURL:      getEnv("SIM_API_BASE_URL", "http://localhost:"+base.HTTPPort),
		Duration:        getDuration("SIM_DURATION", 30*time.Second),
		Workers:         getInt("SIM_WORKERS", 10),
		BookingRatio:    getFloat("SIM_BOOKING_RATIO", 0.5),
		ConfirmRatio:    getFloat("SIM_CONFIRM_RATIO", 0.15),
		CancelRatio:     getFloat("SIM_CANCEL_RATIO", 0.05),
		ReadRatio:       getFloat("SIM_READ_RATIO", 0.3),
		HotspotRatio:    getFloat("SIM_HOTSPOT_RATIO", 0.3),
		DaysAhead:       getInt("SIM_DAYS_AHEAD", 14),
		PatientLimit:    getInt("SIM_PATIENT_LIMIT", 4000),
		SpecialistLimit: getInt("SIM_SPECIALIST_LIMIT", 100),
		PostgresDSN:     base.PostgresDSN,
	}

	total := cfg.BookingRatio + cfg.ConfirmRatio + cfg.CancelRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.ConfirmRatio /= total
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
	if cfg.DaysAhead <= 0 {
		return fmt.Errorf("SIM_DAYS_AHEAD must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig, today schedule.Date) (*DataPool, error) {
	dataPool := &DataPool{Today: today}

	rows, err := pool.Query(ctx, `SELECT id FROM patients LIMIT $1`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Patients = append(dataPool.Patients, id)
	}
	rows.Close()

	rows, err = pool.Query(ctx, `
		SELECT s.id, array_agg(cs.clinic_id)
		FROM specialists s
		JOIN clinic_specialists cs ON cs.specialist_id = s.id
		WHERE s.accepting_patients
		GROUP BY s.id
		LIMIT $1
	`, cfg.SpecialistLimit)
	if err != nil {
		return nil, fmt.Errorf("load specialists: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p practitioner
		if err := rows.Scan(&p.ID, &p.Clinics); err != nil {
			return nil, err
		}
		dataPool.Specialists = append(dataPool.Specialists, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(dataPool.Patients) == 0 {
		return nil, fmt.Errorf("no patients loaded")
	}
	if len(dataPool.Specialists) == 0 {
		return nil, fmt.Errorf("no specialists loaded")
	}

	return dataPool, nil
}

// countDoubleBookings is the race check: the unique index should make this
// impossible, so any non-zero result is a bug.
func countDoubleBookings(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	var n int
	err := pool.QueryRow(ctx, `
		SELECT count(*) FROM (
			SELECT 1
			FROM appointments
			WHERE status IN ('pending', 'confirmed')
			GROUP BY specialist_id, appointment_date, appointment_time
			HAVING count(*) > 1
		) d
	`).Scan(&n)
	return n, err
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

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < s.config.BookingRatio:
			s.doBooking(ctx, rng)
		case r < s.config.BookingRatio+s.config.ConfirmRatio:
			s.doTransition(ctx, rng, "confirm", &s.metrics.Confirm)
		case r < s.config.BookingRatio+s.config.ConfirmRatio+s.config.CancelRatio:
			s.doTransition(ctx, rng, "cancel", &s.metrics.Cancel)
		default:
			if rng.Intn(2) == 0 {
				s.doReadByID(ctx, rng)
			} else {
				s.doList(ctx, rng)
			}
		}
	}
}

type availabilityResponse struct {
	AvailableSlots []string `json:"available_slots"`
}

// doBooking mimics a patient: look at a day's availability, then book one of
// the listed times. Hotspot bookings all pick the first specialist's earliest
// slot tomorrow so concurrent workers collide.
func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	var (
		sp   practitioner
		date schedule.Date
	)
	hot := rng.Float64() < s.config.HotspotRatio
	if hot {
		sp = s.pool.Specialists[0]
		date = s.pool.Today.AddDays(1)
	} else {
		sp = s.pool.Specialists[rng.Intn(len(s.pool.Specialists))]
		date = s.pool.Today.AddDays(rng.Intn(s.config.DaysAhead) + 1)
	}

	var avail availabilityResponse
	status, latency, err := s.call(ctx, http.MethodGet,
		fmt.Sprintf("/specialists/%s/availability?date=%s", sp.ID, date), nil, &avail)
	if err != nil {
		return
	}
	s.metrics.Availability.Record(latency, status)
	if status != http.StatusOK || len(avail.AvailableSlots) == 0 {
		return
	}

	slot := avail.AvailableSlots[0]
	if !hot {
		slot = avail.AvailableSlots[rng.Intn(len(avail.AvailableSlots))]
	}

	body := map[string]string{
		"specialist_id": sp.ID.String(),
		"clinic_id":     sp.Clinics[rng.Intn(len(sp.Clinics))].String(),
		"patient_id":    s.pool.Patients[rng.Intn(len(s.pool.Patients))].String(),
		"date":          date.String(),
		"time":          slot,
		"reason":        "simulated visit",
	}

	var created struct {
		ID uuid.UUID `json:"id"`
	}
	status, latency, err = s.call(ctx, http.MethodPost, "/appointments", body, &created)
	if err != nil {
		return
	}
	s.metrics.Booking.Record(latency, status)
	if status == http.StatusCreated && created.ID != uuid.Nil {
		s.pool.AddAppointment(created.ID)
	}
}

func (s *Simulator) doTransition(ctx context.Context, rng *rand.Rand, action string, om *OperationMetrics) {
	id, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}
	status, latency, err := s.call(ctx, http.MethodPost, fmt.Sprintf("/appointments/%s/%s", id, action), nil, nil)
	if err == nil {
		om.Record(latency, status)
	}
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}
	status, latency, err := s.call(ctx, http.MethodGet, "/appointments/"+id.String(), nil, nil)
	if err == nil {
		s.metrics.ReadByID.Record(latency, status)
	}
}

func (s *Simulator) doList(ctx context.Context, rng *rand.Rand) {
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
	status, latency, err := s.call(ctx, http.MethodGet,
		fmt.Sprintf("/appointments?patient_id=%s&upcoming=true&limit=20", patientID), nil, nil)
	if err == nil {
		s.metrics.List.Record(latency, status)
	}
}

// call performs one API request. Errors caused by the simulation deadline are
// returned so the caller can skip recording them.
func (s *Simulator) call(ctx context.Context, method, path string, body, out any) (int, time.Duration, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return 0, 0, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, &buf)
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			return 0, latency, ctx.Err()
		}
		s.log.Debug("request failed", zap.String("path", path), zap.Error(err))
		return 0, latency, nil
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		_ = json.NewDecoder(resp.Body).Decode(out)
	}
	return resp.StatusCode, latency, nil
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Availability", &s.metrics.Availability)
	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Confirm", &s.metrics.Confirm)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Read by ID", &s.metrics.ReadByID)
	printOperationReport("List by Patient", &s.metrics.List)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)
	p50, p95, max := om.Percentiles()

	pct := func(n int64) float64 { return float64(n) / float64(total) * 100 }

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, pct(success))
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, pct(conflict))
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, pct(failed))
	}
	fmt.Printf("  Latency: p50=%s p95=%s max=%s\n",
		p50.Round(time.Millisecond), p95.Round(time.Millisecond), max.Round(time.Millisecond))
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
