package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mdddj/blog-new-sub000/internal/app"
	"github.com/mdddj/blog-new-sub000/internal/config"
	"github.com/mdddj/blog-new-sub000/internal/history"
	"github.com/mdddj/blog-new-sub000/internal/media"
	"github.com/mdddj/blog-new-sub000/internal/reading"
	"github.com/mdddj/blog-new-sub000/internal/renderclient"
	"github.com/mdddj/blog-new-sub000/internal/search"
	"github.com/mdddj/blog-new-sub000/internal/store"
)

const reapInterval = time.Minute

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL, store.DefaultPoolConfig())
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if _, err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	if err := os.MkdirAll(cfg.HistoryDir, 0o755); err != nil {
		log.Fatalf("failed to create history dir: %v", err)
	}

	dataStore := store.NewPostgresStore(db)
	historyService := history.New(cfg.HistoryDir)

	var primary search.Searcher
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
		primary = meiliClient
	}
	searchService := search.NewService(primary, search.NewPgFTS(db))

	var cache reading.ViewCache
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisCache, err := reading.NewCache(cfg.RedisURL, cfg.ViewCacheTTL)
		if err != nil {
			log.Printf("WARNING: view cache disabled: %v", err)
		} else {
			defer redisCache.Close()
			cache = redisCache
		}
	}

	objects, err := media.NewMinioStore(media.S3Config{
		Endpoint:  cfg.S3Endpoint,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		Bucket:    cfg.S3Bucket,
		Region:    cfg.S3Region,
	})
	if err != nil {
		log.Fatalf("object storage setup failed: %v", err)
	}
	if err := objects.EnsureBucket(ctx); err != nil {
		log.Printf("WARNING: bucket check failed (uploads will error until fixed): %v", err)
	}

	service := app.New(cfg, app.Deps{
		Store:    dataStore,
		Renderer: renderclient.New(cfg.RenderURL, cfg.RenderTimeout),
		Uploader: media.NewUploader(objects, cfg.PublicBase(), cfg.S3Bucket),
		Cache:    cache,
		Search:   searchService,
		History:  historyService,
	})
	go service.Bootstrap(ctx)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Blog API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	reapDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(reapInterval)
		defer ticker.Stop()
		for {
			select {
			case <-reapDone:
				return
			case now := <-ticker.C:
				if n := service.ReapIdle(now); n > 0 {
					log.Printf("closed %d idle editing sessions", n)
				}
			}
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	close(reapDone)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	service.Shutdown()
}
