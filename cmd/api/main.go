package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"culturetrail.org/internal/auth"
	"culturetrail.org/internal/httpapi"
	"culturetrail.org/internal/obs"
	"culturetrail.org/internal/store/pg"
)

var version = "0.3.0"

func main() {
	// Local development convenience; ignored when no .env file exists.
	_ = godotenv.Load()

	obs.Init()

	dsn := os.Getenv("TRAIL_PG_DSN")
	if dsn == "" {
		log.Fatal("missing TRAIL_PG_DSN")
	}
	db, err := pg.Open(dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}

	codecOpts := []auth.CodecOption{}
	if ttl := os.Getenv("TRAIL_ACCESS_TTL"); ttl != "" {
		d, err := time.ParseDuration(ttl)
		if err != nil {
			log.Fatalf("parse TRAIL_ACCESS_TTL: %v", err)
		}
		codecOpts = append(codecOpts, auth.WithAccessTTL(d))
	}
	if ttl := os.Getenv("TRAIL_REFRESH_TTL"); ttl != "" {
		d, err := time.ParseDuration(ttl)
		if err != nil {
			log.Fatalf("parse TRAIL_REFRESH_TTL: %v", err)
		}
		codecOpts = append(codecOpts, auth.WithRefreshTTL(d))
	}
	codec, err := auth.NewCodec(
		os.Getenv("TRAIL_ACCESS_SECRET"),
		os.Getenv("TRAIL_REFRESH_SECRET"),
		codecOpts...,
	)
	if err != nil {
		log.Fatalf("codec: %v", err)
	}

	store := auth.NewPGStore(db.Handle())
	svc, err := auth.NewService(store, codec)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	api := httpapi.New(httpapi.Config{
		Auth:       svc,
		Codec:      codec,
		Store:      store,
		ReadyProbe: httpapi.ReadyProbe{DB: db.Handle()},
		Version:    version,
	})

	addr := os.Getenv("TRAIL_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting culturetrail-api %s on %s", version, srv.Addr)

	// graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	_ = db.Close()
	log.Println("Stopped")
}
