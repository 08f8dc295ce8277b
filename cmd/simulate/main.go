package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/therapy-booking/internal/appointment"
	"github.com/hackgods/therapy-booking/internal/auth"
	"github.com/hackgods/therapy-booking/internal/config"
	"github.com/hackgods/therapy-booking/internal/db"
	"github.com/hackgods/therapy-booking/internal/logging"
)

// SimConfig drives rounds of contention: every round, Contenders callers
// race to book the same (therapist, date, time) slot.
type SimConfig struct {
	APIBaseURL  string
	Rounds      int
	Contenders  int
	GuestRatio  float64
	ClientLimit int
	DaysAhead   int
}

type DataPool struct {
	Therapists []uuid.UUID
	Sessions   []uuid.UUID
	Clients    []uuid.UUID
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
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
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

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[min2(len(latencies)*50/100, len(latencies)-1)]
	p95 = latencies[min2(len(latencies)*95/100, len(latencies)-1)]
	return avg, min, max, p50, p95
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	tokens  *auth.Manager
	client  *http.Client
	logger  *slog.Logger
	booking OperationMetrics

	// rounds with more than one winner
	violations atomic.Int64
}

func main() {
	baseCfg, err := config.Load()
	if err != nil {
		slog.Error("config load error", slog.Any("error", err))
		os.Exit(1)
	}
	logger := logging.New("simulate", baseCfg.LogLevel)

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		logger.Error("invalid config", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("simulator starting",
		slog.Int("rounds", cfg.Rounds),
		slog.Int("contenders", cfg.Contenders),
		slog.Float64("guest_ratio", cfg.GuestRatio),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, baseCfg.PostgresDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		logger.Error("load data pool", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("data loaded",
		slog.Int("therapists", len(dataPool.Therapists)),
		slog.Int("sessions", len(dataPool.Sessions)),
		slog.Int("clients", len(dataPool.Clients)),
	)

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		tokens: auth.NewManager(baseCfg.JWTSecret, baseCfg.JWTIssuer, time.Hour),
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}

	sim.Run(context.Background())
	sim.PrintReport()

	if sim.violations.Load() > 0 {
		os.Exit(1)
	}
}

func loadConfig() SimConfig {
	return SimConfig{
		APIBaseURL:  getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Rounds:      getInt("SIM_ROUNDS", 50),
		Contenders:  getInt("SIM_CONTENDERS", 10),
		GuestRatio:  getFloat("SIM_GUEST_RATIO", 0.3),
		ClientLimit: getInt("SIM_CLIENT_LIMIT", 1000),
		DaysAhead:   getInt("SIM_DAYS_AHEAD", 60),
	}
}

func validateConfig(cfg SimConfig) error {
	if cfg.Rounds <= 0 {
		return fmt.Errorf("SIM_ROUNDS must be > 0")
	}
	if cfg.Contenders < 2 {
		return fmt.Errorf("SIM_CONTENDERS must be >= 2")
	}
	if cfg.DaysAhead < 2 {
		return fmt.Errorf("SIM_DAYS_AHEAD must be >= 2")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	load := func(query string, dst *[]uuid.UUID, args ...any) error {
		rows, err := pool.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var id uuid.UUID
			if err := rows.Scan(&id); err != nil {
				return err
			}
			*dst = append(*dst, id)
		}
		return rows.Err()
	}

	if err := load(`SELECT id FROM users WHERE role = 'therapist' AND is_active`, &dataPool.Therapists); err != nil {
		return nil, fmt.Errorf("load therapists: %w", err)
	}
	if err := load(`SELECT id FROM sessions WHERE is_active`, &dataPool.Sessions); err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	if err := load(`SELECT id FROM users WHERE role = 'client' LIMIT $1`, &dataPool.Clients, cfg.ClientLimit); err != nil {
		return nil, fmt.Errorf("load clients: %w", err)
	}

	if len(dataPool.Therapists) == 0 || len(dataPool.Sessions) == 0 || len(dataPool.Clients) == 0 {
		return nil, fmt.Errorf("nothing to book against, run cmd/seed first")
	}
	return dataPool, nil
}

type slot struct {
	therapistID uuid.UUID
	sessionID   uuid.UUID
	date        string
	time        string
}

func (s *Simulator) randomSlot(rng *rand.Rand) slot {
	date := appointment.CalendarDate(time.Now()).AddDate(0, 0, 2+rng.Intn(s.config.DaysAhead-1))
	if date.Weekday() == appointment.BlackoutWeekday {
		date = date.AddDate(0, 0, 1)
	}
	return slot{
		therapistID: s.pool.Therapists[rng.Intn(len(s.pool.Therapists))],
		sessionID:   s.pool.Sessions[rng.Intn(len(s.pool.Sessions))],
		date:        appointment.FormatDate(date),
		time:        appointment.TimeSlots[rng.Intn(len(appointment.TimeSlots))],
	}
}

func (s *Simulator) Run(ctx context.Context) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for round := 0; round < s.config.Rounds; round++ {
		target := s.randomSlot(rng)

		var (
			wg      sync.WaitGroup
			winners atomic.Int64
			start   = make(chan struct{})
		)
		for i := 0; i < s.config.Contenders; i++ {
			var guest map[string]string
			if rng.Float64() < s.config.GuestRatio {
				guest = map[string]string{
					"name":  gofakeit.Name(),
					"email": gofakeit.Email(),
					"phone": gofakeit.Phone(),
				}
			}
			clientID := s.pool.Clients[rng.Intn(len(s.pool.Clients))]

			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				if s.book(ctx, target, guest, clientID) {
					winners.Add(1)
				}
			}()
		}
		close(start)
		wg.Wait()

		if n := winners.Load(); n > 1 {
			s.violations.Add(1)
			s.logger.Error("double booking",
				slog.String("therapist_id", target.therapistID.String()),
				slog.String("date", target.date),
				slog.String("time", target.time),
				slog.Int64("winners", n),
			)
		}
	}
}

// book reports whether this caller won the slot. A nil guest books as the
// client instead.
func (s *Simulator) book(ctx context.Context, target slot, guest map[string]string, clientID uuid.UUID) bool {
	body := map[string]any{
		"therapistId": target.therapistID.String(),
		"sessionId":   target.sessionID.String(),
		"date":        target.date,
		"time":        target.time,
	}
	token := ""
	if guest != nil {
		body["guestInfo"] = guest
	} else {
		var err error
		token, err = s.tokens.NewAccessToken(appointment.Principal{ID: clientID, Role: appointment.RoleClient})
		if err != nil {
			s.booking.Record(0, false, false)
			return false
		}
	}
	payload, _ := json.Marshal(body)

	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIBaseURL+"/api/appointments", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)

	if err != nil {
		s.booking.Record(latency, false, false)
		return false
	}
	defer resp.Body.Close()

	success := resp.StatusCode == http.StatusCreated
	s.booking.Record(latency, success, resp.StatusCode == http.StatusConflict)
	return success
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Rounds: %d\n", s.config.Rounds)
	fmt.Printf("Contenders per slot: %d\n", s.config.Contenders)
	fmt.Printf("Double bookings: %d\n", s.violations.Load())
	fmt.Println()

	printOperationReport("Booking", &s.booking)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

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
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
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

func min2(a, b int) int {
	if a < b {
		return a
	}
	return b
}
