package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/salon-appointment-scheduling/internal/config"
	"github.com/hackgods/salon-appointment-scheduling/internal/db"
	"github.com/hackgods/salon-appointment-scheduling/internal/logger"
)

type service struct {
	name     string
	minutes  int
	priceUSD int
}

var catalog = []service{
	{"Haircut", 30, 35},
	{"Haircut & Blow Dry", 60, 55},
	{"Beard Trim", 15, 15},
	{"Full Color", 120, 140},
	{"Highlights", 90, 110},
	{"Manicure", 45, 30},
	{"Pedicure", 60, 45},
	{"Facial", 60, 70},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	lg, err := logger.New(cfg.Log, "seed")
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.WithApplicationName("seed"))
	if err != nil {
		lg.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		lg.Fatal("apply schema", zap.Error(err))
	}

	salons := getInt("SEED_SALONS", 3)
	staffPerSalon := getInt("SEED_STAFF_PER_SALON", 4)
	customers := getInt("SEED_CUSTOMERS", 500)

	faker := gofakeit.New(0)

	if err := seedAdmin(ctx, pool, faker); err != nil {
		lg.Fatal("seed admin", zap.Error(err))
	}
	for i := 0; i < salons; i++ {
		salonID, err := seedSalon(ctx, pool, faker, staffPerSalon)
		if err != nil {
			lg.Fatal("seed salon", zap.Error(err))
		}
		lg.Info("salon seeded", zap.Int64("salon_id", salonID), zap.Int("staff", staffPerSalon))
	}
	if err := seedCustomers(ctx, pool, faker, customers); err != nil {
		lg.Fatal("seed customers", zap.Error(err))
	}

	lg.Info("seed complete", zap.Int("salons", salons), zap.Int("customers", customers))
}

func seedAdmin(ctx context.Context, pool *pgxpool.Pool, f *gofakeit.Faker) error {
	_, err := pool.Exec(ctx, `
		INSERT INTO users (name, email, phone_number, role)
		VALUES ($1, 'admin@salon.local', $2, 'admin')
		ON CONFLICT (email) DO NOTHING
	`, f.Name(), f.Phone())
	return err
}

// seedSalon creates a salon with a manager, staff members, the service
// catalog and Monday to Saturday opening hours. Sundays have no rule and so
// stay closed.
func seedSalon(ctx context.Context, pool *pgxpool.Pool, f *gofakeit.Faker, staff int) (int64, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var salonID int64
	name := fmt.Sprintf("%s Salon", f.LastName())
	if err := tx.QueryRow(ctx, `
		INSERT INTO salons (name, address, phone_number)
		VALUES ($1, $2, $3)
		RETURNING id
	`, name, f.Street(), f.Phone()).Scan(&salonID); err != nil {
		return 0, fmt.Errorf("insert salon: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO users (name, email, phone_number, role, salon_id)
		VALUES ($1, $2, $3, 'manager', $4)
	`, f.Name(), fmt.Sprintf("manager+%d@salon.local", salonID), f.Phone(), salonID); err != nil {
		return 0, fmt.Errorf("insert manager: %w", err)
	}

	for i := 0; i < staff; i++ {
		if err := insertStaff(ctx, tx, f, salonID, i); err != nil {
			return 0, err
		}
	}

	for _, s := range catalog {
		if _, err := tx.Exec(ctx, `
			INSERT INTO services (salon_id, name, duration_minutes, price_cents)
			VALUES ($1, $2, $3, $4)
		`, salonID, s.name, s.minutes, s.priceUSD*100); err != nil {
			return 0, fmt.Errorf("insert service: %w", err)
		}
	}

	for wd := time.Monday; wd <= time.Saturday; wd++ {
		closeAt := "18:00"
		if wd == time.Saturday {
			closeAt = "15:00"
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO working_hours (salon_id, weekday, open_time, close_time)
			VALUES ($1, $2, $3::time, $4::time)
		`, salonID, int16(wd), "09:00", closeAt); err != nil {
			return 0, fmt.Errorf("insert working hours: %w", err)
		}
	}

	return salonID, tx.Commit(ctx)
}

func insertStaff(ctx context.Context, tx pgx.Tx, f *gofakeit.Faker, salonID int64, n int) error {
	name := f.Name()

	var userID int64
	if err := tx.QueryRow(ctx, `
		INSERT INTO users (name, email, phone_number, role, salon_id)
		VALUES ($1, $2, $3, 'staff', $4)
		RETURNING id
	`, name, fmt.Sprintf("staff+%d.%d@salon.local", salonID, n), f.Phone(), salonID).Scan(&userID); err != nil {
		return fmt.Errorf("insert staff user: %w", err)
	}

	var staffID int64
	if err := tx.QueryRow(ctx, `
		INSERT INTO staffs (salon_id, user_id, name)
		VALUES ($1, $2, $3)
		RETURNING id
	`, salonID, userID, name).Scan(&staffID); err != nil {
		return fmt.Errorf("insert staff: %w", err)
	}

	// the first staff member starts late on Fridays
	if n == 0 {
		if _, err := tx.Exec(ctx, `
			INSERT INTO working_hours (salon_id, staff_id, weekday, open_time, close_time)
			VALUES ($1, $2, $3, '12:00'::time, '20:00'::time)
		`, salonID, staffID, int16(time.Friday)); err != nil {
			return fmt.Errorf("insert staff hours: %w", err)
		}
	}
	return nil
}

func seedCustomers(ctx context.Context, pool *pgxpool.Pool, f *gofakeit.Faker, count int) error {
	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := min(offset+batchSize, count)

		batch := &pgx.Batch{}
		for i := offset; i < end; i++ {
			batch.Queue(`
				INSERT INTO users (name, email, phone_number, role)
				VALUES ($1, $2, $3, 'customer')
				ON CONFLICT (email) DO NOTHING
			`, f.Name(), f.Email(), f.Phone())
		}
		if err := pool.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert customers: %w", err)
		}
	}
	return nil
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
