package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/therapy-booking/internal/appointment"
	"github.com/hackgods/therapy-booking/internal/auth"
	"github.com/hackgods/therapy-booking/internal/config"
	"github.com/hackgods/therapy-booking/internal/db"
	"github.com/hackgods/therapy-booking/internal/logging"
)

type sessionSeed struct {
	name        string
	description string
	duration    int
	price       int
}

var sessionCatalog = []sessionSeed{
	{"Individual Therapy", "One-to-one talk therapy session.", 50, 120},
	{"Couples Therapy", "Joint session for partners.", 80, 180},
	{"Family Therapy", "Session for family members together.", 90, 200},
	{"CBT Session", "Structured cognitive behavioural therapy.", 50, 130},
	{"Initial Consultation", "First meeting to discuss goals.", 30, 60},
}

var specializations = []string{
	"Anxiety",
	"Depression",
	"Trauma & PTSD",
	"Relationships",
	"Addiction",
	"Grief",
	"Child & Adolescent",
	"Eating Disorders",
}

func main() {
	therapists := flag.Int("therapists", 20, "number of therapists to create")
	clients := flag.Int("clients", 500, "number of clients to create")
	flag.Parse()
	if *therapists < 1 || *clients < 1 {
		fmt.Fprintln(os.Stderr, "need at least one therapist and one client")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load error", slog.Any("error", err))
		os.Exit(1)
	}
	logger := logging.New("seed", cfg.LogLevel)
	logger.Info("seed starting")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	cancel()
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())
	ctx = context.Background()

	if err := seedSessions(ctx, pool); err != nil {
		logger.Error("seed sessions", slog.Any("error", err))
		os.Exit(1)
	}
	therapistIDs, err := seedUsers(ctx, pool, appointment.RoleTherapist, *therapists)
	if err != nil {
		logger.Error("seed therapists", slog.Any("error", err))
		os.Exit(1)
	}
	clientIDs, err := seedUsers(ctx, pool, appointment.RoleClient, *clients)
	if err != nil {
		logger.Error("seed clients", slog.Any("error", err))
		os.Exit(1)
	}
	adminIDs, err := seedUsers(ctx, pool, appointment.RoleAdmin, 1)
	if err != nil {
		logger.Error("seed admin", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("seed complete",
		slog.Int("sessions", len(sessionCatalog)),
		slog.Int("therapists", len(therapistIDs)),
		slog.Int("clients", len(clientIDs)),
	)

	// Dev tokens so the API can be exercised straight away.
	tokens := auth.NewManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.AccessTokenTTL)
	for _, p := range []appointment.Principal{
		{ID: adminIDs[0], Role: appointment.RoleAdmin},
		{ID: therapistIDs[0], Role: appointment.RoleTherapist},
		{ID: clientIDs[0], Role: appointment.RoleClient},
	} {
		token, err := tokens.NewAccessToken(p)
		if err != nil {
			logger.Error("mint token", slog.Any("error", err))
			os.Exit(1)
		}
		fmt.Printf("%-9s %s\n  %s\n", p.Role, p.ID, token)
	}
}

func seedSessions(ctx context.Context, pool *pgxpool.Pool) error {
	batch := &pgx.Batch{}
	for _, s := range sessionCatalog {
		batch.Queue(`
			INSERT INTO sessions (id, name, description, duration, price)
			VALUES ($1, $2, $3, $4, $5)
		`, uuid.New(), s.name, s.description, s.duration, s.price)
	}
	return pool.SendBatch(ctx, batch).Close()
}

func seedUsers(ctx context.Context, pool *pgxpool.Pool, role appointment.Role, count int) ([]uuid.UUID, error) {
	const batchSize = 500

	ids := make([]uuid.UUID, 0, count)
	for offset := 0; offset < count; offset += batchSize {
		end := min(offset+batchSize, count)

		tx, err := pool.Begin(ctx)
		if err != nil {
			return nil, err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			var specialization *string
			if role == appointment.RoleTherapist {
				s := specializations[gofakeit.Number(0, len(specializations)-1)]
				specialization = &s
			}

			_, err := tx.Exec(ctx, `
				INSERT INTO users (id, name, email, phone, role, specialization)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, id, gofakeit.Name(), fmt.Sprintf("%s.%s", id.String()[:8], gofakeit.Email()), gofakeit.Phone(), string(role), specialization)
			if err != nil {
				_ = tx.Rollback(ctx)
				return nil, err
			}
			ids = append(ids, id)
		}

		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
	}
	return ids, nil
}
