// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"serial-bridge/internal/config"
	"serial-bridge/internal/database"
	"serial-bridge/internal/discovery"
	serialscan "serial-bridge/internal/discovery/serial"
	"serial-bridge/internal/protocol"
	"serial-bridge/internal/repository"
	"serial-bridge/internal/routes"
	"serial-bridge/internal/service"
	"serial-bridge/internal/session"
	"serial-bridge/internal/upload"
	"serial-bridge/internal/utils"
)

// Application represents the main application
type Application struct {
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server
	router   *routes.Router
	database *database.DB

	sketchRepo repository.SketchRepository
	session    *session.Manager

	sessionService *service.SessionService
	libraryService *service.LibraryService
}

func main() {
	app, err := NewApplication()
	if err != nil {
		fmt.Printf("Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	if err := app.Start(); err != nil {
		app.logger.Fatal("Failed to start application", zap.Error(err))
	}
}

// NewApplication creates a new application instance
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	serviceLogger := utils.NewServiceLogger(logger, cfg.App.Name)
	serviceLogger.LogServiceStart(cfg.App.Version, cfg.Redacted())

	app := &Application{
		config: cfg,
		logger: logger,
	}

	if err := app.initializeDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	app.initializeRepositories()
	app.initializeSession()
	app.initializeServices()
	app.initializeServer()

	return app, nil
}

// initializeDatabase connects to postgres and applies migrations when the
// database is enabled
func (app *Application) initializeDatabase() error {
	if !app.config.Database.Enabled {
		app.logger.Info("Database disabled, sketches are kept in memory")
		return nil
	}

	db, err := database.NewConnection(&app.config.Database, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create database connection: %w", err)
	}
	app.database = db

	migrator := database.NewMigrator(db, app.logger, &app.config.Database)
	if err := migrator.Up(); err != nil {
		db.Close()
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	app.logger.Info("Database initialized successfully")
	return nil
}

func (app *Application) initializeRepositories() {
	if app.database != nil {
		app.sketchRepo = repository.NewSketchRepository(app.database, app.logger)
	} else {
		app.sketchRepo = repository.NewMemorySketchRepository()
	}
}

// initializeSession builds the serial session manager from configuration
func (app *Application) initializeSession() {
	serialCfg := app.config.Serial
	opts := session.Options{
		Defaults: protocol.SerialConfig{
			Port:        serialCfg.DefaultPort,
			BaudRate:    serialCfg.DefaultBaudRate,
			DataBits:    serialCfg.DataBits,
			StopBits:    serialCfg.StopBits,
			Parity:      serialCfg.Parity,
			ReadTimeout: serialCfg.ReadTimeout,
			OpenTimeout: serialCfg.OpenTimeout,
		},
		ReadBufferSize: serialCfg.ReadBufferSize,
		HistorySize:    app.config.Session.HistorySize,
		Framer: protocol.FramerOptions{
			EmitPartials:  app.config.Session.EmitPartials,
			MaxLineLength: app.config.Session.MaxLineLength,
		},
		Upload: upload.Options{
			ChunkSize: app.config.Upload.ChunkSize,
			ResetHold: app.config.Upload.ResetHold,
		},
	}

	app.session = session.NewManager(protocol.NewSerialHost(app.logger), opts, app.logger)
	app.logger.Info("Serial session ready",
		zap.Int("default_baud_rate", serialCfg.DefaultBaudRate),
		zap.Int("chunk_size", app.config.Upload.ChunkSize),
	)
}

func (app *Application) initializeServices() {
	scanners := discovery.NewScannerManager(app.logger)
	scanners.RegisterScanner(serialscan.NewScanner(app.logger))

	app.sessionService = service.NewSessionService(app.session, app.sketchRepo, app.logger)
	app.libraryService = service.NewLibraryService(app.sketchRepo, scanners, app.logger)
}

func (app *Application) initializeServer() {
	app.router = routes.NewRouter(
		app.config,
		app.logger,
		app.database,
		app.sessionService,
		app.libraryService,
	)

	app.server = &http.Server{
		Addr:         app.config.GetServerAddr(),
		Handler:      app.router.SetupRouter(),
		ReadTimeout:  app.config.Server.ReadTimeout,
		WriteTimeout: app.config.Server.WriteTimeout,
		IdleTimeout:  app.config.Server.IdleTimeout,
	}

	app.logger.Info("HTTP server initialized", zap.String("address", app.config.GetServerAddr()))
}

// Start serves HTTP until SIGINT or SIGTERM, then shuts down
func (app *Application) Start() error {
	errCh := make(chan error, 1)
	go func() {
		app.logger.Info("Starting HTTP server", zap.String("address", app.server.Addr))
		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		app.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
		app.shutdown("shutdown signal received")
		return nil
	case err := <-errCh:
		app.shutdown("http server failed")
		return err
	}
}

// shutdown disconnects the serial session first so an active upload fails
// before the HTTP server and database go away
func (app *Application) shutdown(reason string) {
	serviceLogger := utils.NewServiceLogger(app.logger, app.config.App.Name)
	serviceLogger.LogServiceStop(reason)

	ctx, cancel := context.WithTimeout(context.Background(), app.config.Server.ShutdownTimeout)
	defer cancel()

	if err := app.session.Disconnect(ctx); err != nil {
		app.logger.Error("Serial session close error", zap.Error(err))
	}

	app.router.Close()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		app.logger.Info("HTTP server stopped")
	}

	if app.database != nil {
		if err := app.database.Close(); err != nil {
			app.logger.Error("Database close error", zap.Error(err))
		} else {
			app.logger.Info("Database connection closed")
		}
	}

	app.logger.Info("Application shutdown completed")
	if err := utils.CloseLogger(app.logger); err != nil {
		fmt.Printf("Logger close error: %v\n", err)
	}
}
