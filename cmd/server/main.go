package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/plot-visualizer/backend/internal/api"
	"github.com/plot-visualizer/backend/internal/config"
	"github.com/plot-visualizer/backend/internal/history"
	"github.com/plot-visualizer/backend/internal/instrument"
	"github.com/plot-visualizer/backend/internal/layout"
	"github.com/plot-visualizer/backend/internal/logging"
	"github.com/plot-visualizer/backend/internal/msgpath"
	"github.com/plot-visualizer/backend/internal/parser"
	"github.com/plot-visualizer/backend/internal/render"
	"github.com/plot-visualizer/backend/internal/session"
	"github.com/plot-visualizer/backend/internal/storage"
	"github.com/plot-visualizer/backend/internal/upload"
	"go.uber.org/zap"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Get the executable's directory for config resolution
	exePath, err := os.Executable()
	if err != nil {
		fmt.Printf("Failed to get executable path: %v\n", err)
		os.Exit(1)
	}
	configPath := filepath.Join(filepath.Dir(exePath), "plotvisualizer.config.xml")

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Printf("Failed to create directories: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Advanced.LogLevel)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, configPath, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.AppConfig, configPath string, logger *zap.Logger) error {
	fileStore, err := storage.NewLocalStore(cfg.Storage.UploadsDirectory, logger)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}

	var cache *session.RecordingCache
	if cfg.Storage.EnablePersistence {
		cache, err = session.NewRecordingCache(cfg.Storage.ParsedDataDirectory, logger)
		if err != nil {
			return fmt.Errorf("initializing parsed data cache: %w", err)
		}
		files, err := fileStore.List(0)
		if err != nil {
			return fmt.Errorf("listing uploads: %w", err)
		}
		ids := make([]string, len(files))
		for i, f := range files {
			ids[i] = f.ID
		}
		if removed := cache.CleanupOrphaned(ids); removed > 0 {
			logger.Info("removed orphaned parsed data", zap.Int("count", removed))
		}
	}

	sessionMgr := session.NewManager(session.Options{
		TempDir:     cfg.Storage.TempDirectory,
		MaxSessions: cfg.Processing.MaxSessions,
		Store: parser.StoreOptions{
			MemoryLimit: cfg.Advanced.DuckDBMemoryLimit,
			Threads:     cfg.Advanced.DuckDBThreads,
		},
		Cache:  cache,
		Logger: logger,
	})
	defer sessionMgr.Close()

	registry := parser.NewRegistry()
	uploadMgr := upload.NewManager(fileStore, registry, logger)

	var constants *msgpath.Constants
	if cfg.Storage.ConstantsFile != "" {
		constants, err = msgpath.LoadConstants(cfg.Storage.ConstantsFile)
		if err != nil {
			logger.Warn("constants not loaded", zap.String("file", cfg.Storage.ConstantsFile), zap.Error(err))
		} else {
			logger.Info("constants loaded", zap.Int("fields", constants.Len()))
		}
	}

	counter := instrument.NewRenderCounter(cfg.Plot.MetricsNamespace)
	provider := history.NewProvider(sessionMgr, constants, counter, logger)

	layouts, err := layout.NewStore(cfg.Storage.LayoutsDirectory, logger)
	if err != nil {
		return fmt.Errorf("initializing layouts: %w", err)
	}

	var parsedCache api.ParsedDataCache
	if cache != nil {
		parsedCache = cache
	}

	e := echo.New()
	e.HideBanner = true
	api.SetupMiddleware(e, cfg, logger)
	api.RegisterRoutes(e, api.NewHandlers(&api.Dependencies{
		Store:    fileStore,
		Sessions: sessionMgr,
		Cache:    parsedCache,
		Uploads:  uploadMgr,
		History:  provider,
		Layouts:  layouts,
		Renderer: render.NewPNGRenderer(cfg.Plot.DefaultWidth, cfg.Plot.DefaultHeight),
		Counter:  counter,
		Config:   cfg,
		Formats:  registry.Names(),
		Logger:   logger,
		Version:  Version,
	}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go cleanupLoop(ctx, cfg, sessionMgr, uploadMgr, logger)

	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		Handler:      e,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	printBanner(cfg, configPath)
	logger.Info("server starting",
		zap.String("version", Version),
		zap.String("build", BuildTime),
		zap.String("addr", s.Addr),
		zap.Strings("formats", registry.Names()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// cleanupLoop expires idle sessions and finished upload jobs.
func cleanupLoop(ctx context.Context, cfg *config.AppConfig, sessions *session.Manager, uploads *upload.Manager, logger *zap.Logger) {
	ticker := time.NewTicker(cfg.CleanupInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired := sessions.CleanupOldSessions(cfg.SessionTimeout())
			jobs := uploads.CleanupOldJobs(time.Hour)
			if expired > 0 || jobs > 0 {
				logger.Debug("cleanup", zap.Int("sessions", expired), zap.Int("uploadJobs", jobs))
			}
		}
	}
}

func printBanner(cfg *config.AppConfig, configPath string) {
	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           Plot Visualizer Server                          ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", configPath)
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Data Dir:  %-46s║\n", cfg.Storage.DataDirectory)
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")
}
