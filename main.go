package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"latch/internal/api"
	"latch/internal/config"
	"latch/internal/connectivity"
	"latch/internal/logging"
	"latch/internal/middleware"
	"latch/internal/optimistic"
	"latch/internal/remote"
	"latch/internal/store"
	"latch/internal/syncqueue"
	shared "latch/shared/types"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	configPath := config.DefaultPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal("failed to load config:", err)
	}

	// Initialize logger
	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger:", err)
	}
	defer logger.Sync()

	// Initialize BadgerDB
	db, err := badger.Open(badger.DefaultOptions(cfg.Database.Path))
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	// Initialize state store
	st, err := store.New(db, logger.Named("store"))
	if err != nil {
		logger.Fatal("failed to initialize store", zap.Error(err))
	}

	// Initialize sync queue
	queue, err := syncqueue.New(db, logger.Named("queue"))
	if err != nil {
		logger.Fatal("failed to initialize sync queue", zap.Error(err))
	}
	defer queue.Close()

	// Connectivity + coordinator
	monitor := connectivity.NewMonitor(!cfg.Sync.Offline)
	coord := optimistic.New(st, queue, monitor, logger.Named("optimistic"))

	factory := remote.Loopback()
	if cfg.Remote.BaseURL != "" {
		factory = remote.Upstream(cfg.Remote.BaseURL, time.Duration(cfg.Remote.TimeoutMs)*time.Millisecond)
	}

	// Drain the queue whenever connectivity comes back
	processor := syncqueue.NewProcessor(queue, remote.NewFlusher(factory), st, logger.Named("processor"))
	go processor.Watch(context.Background(), monitor.Subscribe())

	// Hot-reload config: the offline override flips connectivity, which in
	// turn triggers a drain on the way back online.
	stopWatch, err := config.Watch(configPath, logger.Logger, func(c *config.Config) {
		monitor.SetOnline(!c.Sync.Offline)
	})
	if err != nil {
		logger.Warn("config watcher disabled", zap.Error(err))
	} else {
		defer stopWatch()
	}

	// Initialize handlers
	tasks := api.NewEntityHandler(shared.KindTask, coord, st, factory)
	projects := api.NewEntityHandler(shared.KindProject, coord, st, factory)
	queueHandler := api.NewQueueHandler(queue, processor)
	connHandler := api.NewConnectivityHandler(monitor)

	// Set up router
	mux := http.NewServeMux()

	// Health checks
	mux.HandleFunc("GET /health", healthCheck)

	// Task endpoints
	mux.HandleFunc("POST /api/tasks", tasks.Create)
	mux.HandleFunc("GET /api/tasks", tasks.List)
	mux.HandleFunc("GET /api/tasks/{id}", tasks.Get)
	mux.HandleFunc("PATCH /api/tasks/{id}", tasks.Update)
	mux.HandleFunc("DELETE /api/tasks/{id}", tasks.Delete)

	// Project endpoints
	mux.HandleFunc("POST /api/projects", projects.Create)
	mux.HandleFunc("GET /api/projects", projects.List)
	mux.HandleFunc("GET /api/projects/{id}", projects.Get)
	mux.HandleFunc("PATCH /api/projects/{id}", projects.Update)
	mux.HandleFunc("DELETE /api/projects/{id}", projects.Delete)

	// Sync queue endpoints
	mux.HandleFunc("GET /api/queue", queueHandler.List)
	mux.HandleFunc("GET /api/queue/stats", queueHandler.Stats)
	mux.HandleFunc("POST /api/queue/flush", queueHandler.Flush)
	mux.HandleFunc("POST /api/queue/retry", queueHandler.Retry)
	mux.HandleFunc("DELETE /api/queue", queueHandler.Clear)

	// Connectivity endpoints
	mux.HandleFunc("GET /api/connectivity", connHandler.Get)
	mux.HandleFunc("PUT /api/connectivity", connHandler.Set)

	// Apply middleware
	handler := middleware.Chain(
		mux,
		middleware.RequestID,
		middleware.Logger(logger),
		middleware.Recover(logger),
	)

	// Start server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.Info("starting server",
		zap.String("address", addr),
		zap.Bool("offline", cfg.Sync.Offline),
	)

	if err := http.ListenAndServe(addr, handler); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"healthy"}`))
}
