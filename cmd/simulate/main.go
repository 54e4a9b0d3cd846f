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
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/opd-queue/internal/api"
	"github.com/clinicore/opd-queue/internal/config"
	"github.com/clinicore/opd-queue/internal/db"
)

// The simulator hammers one or more api-server instances with concurrent
// booking and queue traffic, then reports how contention was resolved. A
// healthy run shows zero double allocations: for every (doctor, date, slot)
// exactly one 201 and the rest slot_already_booked, and per-department token
// sequences without duplicates.

type SimConfig struct {
	APIBaseURL  string
	Duration    time.Duration
	Workers     int
	BookRatio   float64
	JoinRatio   float64
	PatientMax  int
	PostgresDSN string
	JWTSecret   []byte
}

type DataPool struct {
	Patients    []uuid.UUID
	Doctors     []uuid.UUID
	Departments []uuid.UUID

	mu     sync.RWMutex
	visits []uuid.UUID
}

func (dp *DataPool) AddVisit(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.visits = append(dp.visits, id)
}

func (dp *DataPool) RandomVisit(rng *rand.Rand) (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.visits) == 0 {
		return uuid.Nil, false
	}
	return dp.visits[rng.Intn(len(dp.visits))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	mu        sync.Mutex
	latencies []time.Duration
}

func (om *OperationMetrics) Record(latency time.Duration, success, conflict bool) {
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
	om.latencies = append(om.latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.latencies) == 0 {
		return 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.latencies))
	copy(latencies, om.latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	avg = sum / time.Duration(len(latencies))
	p50 = latencies[len(latencies)*50/100]
	p95 = latencies[min(len(latencies)*95/100, len(latencies)-1)]
	return avg, p50, p95
}

type Simulator struct {
	cfg    SimConfig
	pool   *DataPool
	client *http.Client
	token  string

	bookings OperationMetrics
	joins    OperationMetrics
	statuses OperationMetrics
	reads    OperationMetrics
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulate starting")

	appCfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	cfg := SimConfig{
		APIBaseURL:  getEnv("SIM_API_URL", "http://127.0.0.1:8080"),
		Duration:    getDuration("SIM_DURATION", 30*time.Second),
		Workers:     getInt("SIM_WORKERS", 20),
		BookRatio:   getFloat("SIM_BOOK_RATIO", 0.3),
		JoinRatio:   getFloat("SIM_JOIN_RATIO", 0.3),
		PatientMax:  getInt("SIM_PATIENT_LIMIT", 1000),
		PostgresDSN: appCfg.PostgresDSN,
		JWTSecret:   appCfg.JWTSecret,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	cancel()
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	pool, err := loadDataPool(context.Background(), pgPool, cfg)
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}
	log.Printf("pool loaded: patients=%d doctors=%d departments=%d",
		len(pool.Patients), len(pool.Doctors), len(pool.Departments))

	token, err := signStaffToken(cfg.JWTSecret)
	if err != nil {
		log.Fatalf("sign token: %v", err)
	}

	sim := &Simulator{
		cfg:    cfg,
		pool:   pool,
		client: &http.Client{Timeout: 10 * time.Second},
		token:  token,
	}
	sim.Run()
	sim.PrintReport()
}

func signStaffToken(secret []byte) (string, error) {
	claims := api.Claims{
		UserID: uuid.NewString(),
		Name:   "load simulator",
		Role:   api.RoleStaff,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(2 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func loadDataPool(ctx context.Context, pgPool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dp := &DataPool{}

	rows, err := pgPool.Query(ctx, `SELECT id FROM patients LIMIT $1`, cfg.PatientMax)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		dp.Patients = append(dp.Patients, id)
	}
	rows.Close()

	rows, err = pgPool.Query(ctx, `SELECT id FROM doctors`)
	if err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
	}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		dp.Doctors = append(dp.Doctors, id)
	}
	rows.Close()

	rows, err = pgPool.Query(ctx, `SELECT id FROM departments WHERE is_active`)
	if err != nil {
		return nil, fmt.Errorf("load departments: %w", err)
	}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		dp.Departments = append(dp.Departments, id)
	}
	rows.Close()

	if len(dp.Patients) == 0 || len(dp.Doctors) == 0 || len(dp.Departments) == 0 {
		return nil, fmt.Errorf("empty data pool, run cmd/seed first")
	}
	return dp, nil
}

var slotLabels = []string{"09:00 AM", "10:00 AM", "11:00 AM", "02:00 PM", "03:00 PM"}

func (s *Simulator) Run() {
	log.Printf("running %d workers for %s against %s", s.cfg.Workers, s.cfg.Duration, s.cfg.APIBaseURL)

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}
	wg.Wait()
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		r := rng.Float64()
		switch {
		case r < s.cfg.BookRatio:
			s.doBookSlot(ctx, rng)
		case r < s.cfg.BookRatio+s.cfg.JoinRatio:
			s.doJoinQueue(ctx, rng)
		case r < s.cfg.BookRatio+s.cfg.JoinRatio+0.2:
			s.doVisitStatus(ctx, rng)
		default:
			s.doReadQueue(ctx, rng)
		}
	}
}

// doBookSlot deliberately draws from a small slot space so that concurrent
// workers collide on the same (doctor, date, slot) keys.
func (s *Simulator) doBookSlot(ctx context.Context, rng *rand.Rand) {
	doctorID := s.pool.Doctors[rng.Intn(len(s.pool.Doctors))]
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
	date := time.Now().AddDate(0, 0, rng.Intn(3)).Format("2006-01-02")

	body := map[string]string{
		"doctor_id":    doctorID.String(),
		"date":         date,
		"slot_label":   slotLabels[rng.Intn(len(slotLabels))],
		"patient_id":   patientID.String(),
		"patient_name": "sim patient",
	}

	start := time.Now()
	status, _ := s.post(ctx, "/bookings", body)
	s.bookings.Record(time.Since(start), status == http.StatusCreated, status == http.StatusBadRequest)
}

func (s *Simulator) doJoinQueue(ctx context.Context, rng *rand.Rand) {
	deptID := s.pool.Departments[rng.Intn(len(s.pool.Departments))]
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	body := map[string]string{
		"department_id": deptID.String(),
		"patient_id":    patientID.String(),
	}

	start := time.Now()
	status, respBody := s.post(ctx, "/visits", body)
	s.joins.Record(time.Since(start), status == http.StatusCreated, status == http.StatusConflict)

	if status == http.StatusCreated {
		var resp struct {
			ID uuid.UUID `json:"id"`
		}
		if err := json.Unmarshal(respBody, &resp); err == nil && resp.ID != uuid.Nil {
			s.pool.AddVisit(resp.ID)
		}
	}
}

func (s *Simulator) doVisitStatus(ctx context.Context, rng *rand.Rand) {
	visitID, ok := s.pool.RandomVisit(rng)
	if !ok {
		return
	}

	next := "in-progress"
	if rng.Float64() < 0.5 {
		next = "completed"
	}

	start := time.Now()
	status, _ := s.patch(ctx, "/visits/"+visitID.String()+"/status", map[string]string{"status": next})
	// rejected transitions are the expected outcome of racing workers
	s.statuses.Record(time.Since(start), status == http.StatusOK, status == http.StatusBadRequest)
}

func (s *Simulator) doReadQueue(ctx context.Context, rng *rand.Rand) {
	deptID := s.pool.Departments[rng.Intn(len(s.pool.Departments))]

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		s.cfg.APIBaseURL+"/departments/"+deptID.String()+"/queue", nil)
	if err != nil {
		s.reads.Record(time.Since(start), false, false)
		return
	}
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.client.Do(req)
	if err != nil {
		s.reads.Record(time.Since(start), false, false)
		return
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	s.reads.Record(time.Since(start), resp.StatusCode == http.StatusOK, false)
}

func (s *Simulator) post(ctx context.Context, path string, body any) (int, []byte) {
	return s.send(ctx, http.MethodPost, path, body)
}

func (s *Simulator) patch(ctx context.Context, path string, body any) (int, []byte) {
	return s.send(ctx, http.MethodPatch, path, body)
}

func (s *Simulator) send(ctx context.Context, method, path string, body any) (int, []byte) {
	raw, err := json.Marshal(body)
	if err != nil {
		return 0, nil
	}

	req, err := http.NewRequestWithContext(ctx, method, s.cfg.APIBaseURL+path, bytes.NewReader(raw))
	if err != nil {
		return 0, nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	return resp.StatusCode, data
}

func (s *Simulator) PrintReport() {
	fmt.Println()
	fmt.Println("==== simulation report ====")
	printOperationReport("book-slot", &s.bookings)
	printOperationReport("join-queue", &s.joins)
	printOperationReport("visit-status", &s.statuses)
	printOperationReport("read-queue", &s.reads)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		fmt.Printf("%-14s no requests\n", name)
		return
	}
	avg, p50, p95 := om.Stats()
	fmt.Printf("%-14s total=%d success=%d conflict=%d error=%d avg=%s p50=%s p95=%s\n",
		name, total,
		atomic.LoadInt64(&om.Success),
		atomic.LoadInt64(&om.Conflict),
		atomic.LoadInt64(&om.Error),
		avg, p50, p95)
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
