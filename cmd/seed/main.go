package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/opd-queue/internal/clinic"
	"github.com/clinicore/opd-queue/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	if err := db.Migrate(context.Background(), pool); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	gofakeit.Seed(time.Now().UnixNano())

	deptIDs, err := seedDepartments(context.Background(), pool)
	if err != nil {
		log.Fatalf("seed departments: %v", err)
	}
	if err := seedTests(context.Background(), pool, deptIDs); err != nil {
		log.Fatalf("seed tests: %v", err)
	}
	if err := seedDoctors(context.Background(), pool, 50); err != nil {
		log.Fatalf("seed doctors: %v", err)
	}
	if err := seedPatients(context.Background(), pool, 5000); err != nil {
		log.Fatalf("seed patients: %v", err)
	}

	log.Println("seed complete")
}

type seedDepartment struct {
	name     string
	avgWait  int
	location string
}

var seedDepartmentData = []seedDepartment{
	{"Pathology", 10, "Block A, Ground Floor"},
	{"Radiology", 20, "Block A, First Floor"},
	{"Cardiology", 25, "Block B, Second Floor"},
	{"Orthopedics", 15, "Block B, Ground Floor"},
	{"ENT", 12, "Block C, First Floor"},
	{"Dermatology", 15, "Block C, Second Floor"},
	{"General Medicine", 10, "Block A, Ground Floor"},
}

func seedDepartments(ctx context.Context, pool *pgxpool.Pool) (map[string]uuid.UUID, error) {
	log.Printf("seeding %d departments", len(seedDepartmentData))

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make(map[string]uuid.UUID, len(seedDepartmentData))
	for _, d := range seedDepartmentData {
		id := uuid.New()
		ids[d.name] = id
		_, err := tx.Exec(ctx, `
			INSERT INTO departments (id, name, description, average_wait_time, is_active, location)
			VALUES ($1, $2, $3, $4, true, $5)
		`, id, d.name, gofakeit.Sentence(8), d.avgWait, d.location)
		if err != nil {
			return nil, err
		}
	}

	return ids, tx.Commit(ctx)
}

var seedTestData = map[string][]string{
	"Pathology": {"Complete Blood Count", "Lipid Profile", "Blood Glucose", "Liver Function Test"},
	"Radiology": {"Chest X-Ray", "Ultrasound Abdomen", "CT Scan Head", "MRI Knee"},
	"Cardiology": {"ECG", "Echocardiogram", "Treadmill Test"},
}

func seedTests(ctx context.Context, pool *pgxpool.Pool, deptIDs map[string]uuid.UUID) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	count := 0
	for deptName, names := range seedTestData {
		deptID, ok := deptIDs[deptName]
		if !ok {
			continue
		}
		for _, name := range names {
			_, err := tx.Exec(ctx, `
				INSERT INTO tests (id, name, description, department_id, department_name, average_process_time, price)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
			`, uuid.New(), name, gofakeit.Sentence(6), deptID, deptName,
				gofakeit.Number(5, 45), float64(gofakeit.Number(200, 5000)))
			if err != nil {
				return err
			}
			count++
		}
	}

	log.Printf("seeded %d tests", count)
	return tx.Commit(ctx)
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d doctors", count)

	specialties := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Orthopedics",
		"Endocrinology",
		"Neurology",
		"Pediatrics",
		"Psychiatry",
		"Ophthalmology",
		"ENT",
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]
		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, name, specialization, all_slots)
			VALUES ($1, $2, $3, $4)
		`, uuid.New(), "Dr. "+gofakeit.Name(), spec, clinic.DefaultSlotLabels)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d patients", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		email := gofakeit.Email()
		_, err := tx.Exec(ctx, `
			INSERT INTO patients (id, name, email)
			VALUES ($1, $2, $3)
		`, uuid.New(), gofakeit.Name(), email)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}
