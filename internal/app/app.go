package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"blackframe/internal/config"
	"blackframe/internal/logger"
	"blackframe/internal/repository/sqlite"
	"blackframe/internal/routes"
	"blackframe/internal/service"
	"blackframe/internal/service/detector"
	"blackframe/internal/service/scanner"
	"blackframe/internal/service/storage"
	"blackframe/internal/service/websocket"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second

// App wires configuration, storage and services together.
type App struct {
	config        *config.Config
	logger        *logger.Logger
	db            *sqlite.DB
	bufferService *storage.BufferService
	hubService    *websocket.HubService
	manager       *service.Manager
	closeOnce     sync.Once
}

// NewApp builds all services. The progress hub is only created when withHub
// is set, since nothing reads progress outside server mode.
func NewApp(cfg *config.Config, log *logger.Logger, withHub bool) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	sc, err := scanner.New(scanner.Options{
		Detector: detector.Options{
			PixelThreshold: cfg.PixelThreshold,
			BlackRatio:     cfg.BlackRatio,
			AnalysisWidth:  cfg.AnalysisWidth,
		},
		Interval:         cfg.ProcessingInterval,
		Workers:          cfg.ProcessingWorkers,
		MinBlackDuration: cfg.MinBlackDuration,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("invalid scanner options: %w", err)
	}

	db, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	segmentRepo := sqlite.NewSegmentRepository(db)
	buffer := storage.NewBufferService(cfg, log, segmentRepo)

	var hub *websocket.HubService
	if withHub {
		hub = websocket.NewHubService(log)
	}

	mng := service.NewManager(sc, sqlite.NewVideoRepository(db), segmentRepo, buffer, hub, cfg, log)

	return &App{
		config:        cfg,
		logger:        log,
		db:            db,
		bufferService: buffer,
		hubService:    hub,
		manager:       mng,
	}, nil
}

// Manager returns the scan manager.
func (a *App) Manager() *service.Manager {
	return a.manager
}

// Run serves the HTTP API until ctx is cancelled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	bgCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	var bg sync.WaitGroup
	bg.Add(1)
	go func() {
		defer bg.Done()
		a.bufferService.Run(bgCtx)
	}()
	if a.hubService != nil {
		bg.Add(1)
		go func() {
			defer bg.Done()
			a.hubService.Run(bgCtx)
		}()
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.config.Port),
		Handler:           routes.SetupRoutes(a.manager, a.config, a.logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	a.logger.Info("🚀 Black frame detector")
	a.logger.Info("📍 URL: http://localhost:%d", a.config.Port)
	if a.config.Password == "" {
		a.logger.Warning("🔓 No password set, API is open")
	}
	a.logger.Info("🗄️  Database: %s", a.config.DatabasePath)
	a.logger.Info("📁 Snapshots: %s", a.config.SnapshotDirectory)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	var err error
	select {
	case err = <-serveErr:
	case <-ctx.Done():
		a.logger.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		err = server.Shutdown(shutdownCtx)
		cancel()
	}
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}

	// Najpierw zatrzymaj skany, potem zapisz zaległe miniatury
	a.manager.Stop()
	stopBackground()
	bg.Wait()
	return err
}

// Close stops the manager, writes pending snapshots and closes the database.
func (a *App) Close() error {
	var err error
	a.closeOnce.Do(func() {
		a.manager.Stop()
		a.bufferService.Flush()
		err = a.db.Close()
	})
	return err
}
