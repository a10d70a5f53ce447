package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"jualin/pos/internal/auth"
	"jualin/pos/internal/backup"
	"jualin/pos/internal/cache"
	"jualin/pos/internal/config"
	"jualin/pos/internal/service"
	"jualin/pos/internal/store"
	"jualin/pos/internal/store/memory"
	pgstore "jualin/pos/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	if err := cfg.ValidateSecurity(); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Println("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		log.Println("repository: in-memory")
	}

	catalogCache := cache.CatalogCache(cache.NoopCatalogCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisCatalogCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), using noop cache", err)
		} else {
			catalogCache = redisCache
			closers = append(closers, redisCache.Close)
			log.Println("cache: redis")
		}
	} else {
		log.Println("cache: noop")
	}

	if err := restoreSnapshot(ctx, repo, cfg.SnapshotPath); err != nil {
		log.Fatalf("snapshot restore failed: %v", err)
	}

	svc := service.New(repo, nil, catalogCache)
	svc.SetCatalogTTL(time.Duration(cfg.CatalogTTLSeconds) * time.Second)
	// Building the auth manager also upgrades any plain-text passwords left
	// in the store to bcrypt hashes.
	authManager := auth.NewManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, cfg.ManagerPIN, repo)
	log.Printf("auth: %d cashier accounts", len(authManager.ListCashiers(ctx)))

	feed := svc.Events().Subscribe(128)
	go func() {
		for event := range feed.C() {
			log.Printf("[events] %s %s %s", event.Collection, event.Action, event.ID)
		}
	}()

	log.Println("engine ready")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := exportSnapshot(shutdownCtx, repo, cfg.SnapshotPath); err != nil {
		log.Printf("snapshot export failed: %v", err)
	}
	feed.Close()
	if dropped := feed.Dropped(); dropped > 0 {
		log.Printf("[events] %d events dropped from the feed", dropped)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("engine stopped")
}

// restoreSnapshot loads a prior export into the store. A missing file means
// a fresh start, not an error.
func restoreSnapshot(ctx context.Context, repo store.Repository, path string) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Printf("no snapshot at %s, starting fresh", path)
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	if err := backup.Import(ctx, repo, f); err != nil {
		return err
	}
	log.Printf("snapshot restored from %s", path)
	return nil
}

func exportSnapshot(ctx context.Context, repo store.Repository, path string) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := backup.Export(ctx, repo, f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	log.Printf("snapshot exported to %s", path)
	return nil
}
