package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trip-planner/internal/clustering"
	"trip-planner/internal/config"
	"trip-planner/internal/handlers"
	"trip-planner/internal/pipeline"
	"trip-planner/internal/server"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	caches, err := config.OpenCaches(ctx, cfg)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to open caches: %w", err)
	}

	p := pipeline.New(pipeline.Deps{
		GeocodeCache:    caches.Geocode,
		TravelTimeCache: caches.TravelTime,
		Partitioner:     clustering.NewKMeans(cfg.ClusterSeed),
		RoutingBaseURL:  cfg.OSRMBaseURL,
	})

	defaults := pipeline.Config{
		Strategy:        clustering.ByCount,
		K:               1,
		Metric:          cfg.DistanceMetric,
		Provider:        cfg.GeocodeProvider,
		APIKey:          cfg.GeocodeAPIKey,
		RoutingAPIKey:   cfg.MapboxAccessToken,
		StartingAddress: cfg.StartingAddress,
	}
	if err := defaults.ValidateGeocoding(); err != nil {
		log.Printf("[ERROR] Default geocoding settings are incomplete, requests must supply them: %v", err)
	}

	srv, err := server.New(server.Config{
		Addr: cfg.ServerAddr,
		Handler: &handlers.Handler{
			Pipeline: p,
			Defaults: defaults,
			Health:   caches.HealthCheck,
			Backend:  caches.Backend,
		},
		Close: caches.Close,
	})
	if err != nil {
		caches.Close()
		return fmt.Errorf("failed to create server: %w", err)
	}

	actualAddr, err := srv.Start()
	if err != nil {
		caches.Close()
		return fmt.Errorf("failed to start server: %w", err)
	}
	log.Printf("Trip planner listening on http://%s (provider=%s metric=%s cache=%s)",
		actualAddr, cfg.GeocodeProvider, cfg.DistanceMetric, caches.Backend)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	sig := <-shutdown
	log.Printf("Received signal %v, starting graceful shutdown", sig)

	ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("could not gracefully shutdown the server: %w", err)
	}

	log.Println("Server stopped")
	return nil
}
