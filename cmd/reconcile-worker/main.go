package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/clinicore/opd-queue/internal/clinic"
	"github.com/clinicore/opd-queue/internal/config"
	"github.com/clinicore/opd-queue/internal/db"
)

// The reconcile worker re-derives every department's cached queue counter
// from the live visit rows. Counters are maintained transactionally, so drift
// only appears after manual data edits or partial outages; the worker puts a
// bound on how long any drift can survive.
func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("reconcile-worker starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.Printf("running reconcile worker in env=%s interval=%s", cfg.Env, cfg.WorkerInterval)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatalf("postgres connection error: %v", err)
	}
	defer pgPool.Close()
	log.Println("connected to Postgres")

	repo := clinic.NewPgRepository(pgPool)

	// Run once at startup
	runOnce(rootCtx, repo)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Println("shutdown signal received, stopping reconcile worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, repo)
		}
	}
}

func runOnce(ctx context.Context, repo clinic.Repository) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	fixed, err := repo.ReconcileQueueSizes(runCtx)
	if err != nil {
		log.Printf("reconcile run error: %v", err)
		return
	}
	log.Printf("reconcile run complete in %s, counters fixed=%d", time.Since(start), fixed)
}
