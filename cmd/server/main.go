/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the OJT hours engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env and environment config
  2. Parse command-line flags (flags win over env)
  3. Open the SQLite store
  4. Wire the schedule cache (Redis when configured, in-process otherwise)
  5. Build the API handler and router
  6. Start the server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: HTTP_PORT or 8080)
  -db      SQLite database path (default: DB_PATH or ojt.db)
           Use ":memory:" for an in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM: stop accepting connections, wait up to 30s for
  active requests, close the database, exit.

SEE ALSO:
  - api/server.go: router configuration
  - config/config.go: environment variables
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/warp/ojt-engine/api"
	"github.com/warp/ojt-engine/config"
	"github.com/warp/ojt-engine/metrics"
	"github.com/warp/ojt-engine/schedule"
	"github.com/warp/ojt-engine/store/memory"
	"github.com/warp/ojt-engine/store/rediscache"
	"github.com/warp/ojt-engine/store/sqlite"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	if err := godotenv.Load(); err == nil {
		log.Println("loaded configuration from .env")
	}
	cfg := config.Load()

	port := flag.Int("port", cfg.HTTPPort, "HTTP server port")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	flag.Parse()

	st, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer st.Close()

	var cache schedule.Cache = memory.NewScheduleCache()
	if cfg.RedisAddr != "" {
		rc := rediscache.New(cfg.RedisAddr)
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		healthy := rc.Healthy(ctx)
		cancel()
		if healthy {
			cache = rc
			log.Printf("schedule cache on redis at %s", cfg.RedisAddr)
		} else {
			log.Printf("WARNING: redis at %s unreachable, using in-process schedule cache", cfg.RedisAddr)
		}
	}

	m := metrics.New()
	handler := api.NewHandler(st, cache, m, schedule.SystemClock(), cfg.Location())
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("OJT engine (%s) listening on http://localhost:%d", cfg.Env, *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
