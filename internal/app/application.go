package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"proctorhub/internal/api"
	"proctorhub/internal/archive"
	"proctorhub/internal/config"
	"proctorhub/internal/logging"
	"proctorhub/internal/query"
	"proctorhub/internal/relay"
	"proctorhub/internal/violation"
	"proctorhub/internal/websocket"
)

// Application wires all components together. Initialization order:
// Logger → Archive → Registry → Relay → Violation log → Query → API → HTTP.
type Application struct {
	config     *config.Config
	logger     *zap.Logger
	archive    *archive.Store
	registry   *websocket.Registry
	relay      *relay.Relay
	log        *violation.Log
	queries    *query.Service
	apiServer  *api.Server
	wsHandler  *websocket.Handler
	httpServer *http.Server
}

func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	archiveStore, err := archive.NewStore(cfg.Archive, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize screenshot archive: %w", err)
	}

	registry := websocket.NewRegistry(logger)
	frameRelay := relay.New(registry, logger)
	violationLog := violation.NewLog(logger)
	queries := query.NewService(violationLog, registry, logger)
	apiServer := api.NewServer(violationLog, frameRelay, queries, archiveStore, registry, logger)
	wsHandler := websocket.NewHandler(registry, frameRelay, cfg.WebSocket, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/student", wsHandler.HandleStudent)
	mux.HandleFunc("/ws/teacher", wsHandler.HandleObserver)
	mux.Handle("/notify", apiServer)
	mux.Handle("/violations", apiServer)
	mux.Handle("/violations/", apiServer)
	mux.Handle("/upload", apiServer)
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		logger:     logger,
		archive:    archiveStore,
		registry:   registry,
		relay:      frameRelay,
		log:        violationLog,
		queries:    queries,
		apiServer:  apiServer,
		wsHandler:  wsHandler,
		httpServer: httpServer,
	}, nil
}

// Start begins accepting connections, returning once the listener is up or
// startup fails.
func (app *Application) Start(ctx context.Context) error {
	app.logger.Info("starting proctorhub", zap.String("addr", app.httpServer.Addr))

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		_ = app.archive.Close()
		return err
	case <-time.After(100 * time.Millisecond):
		app.logger.Info("proctorhub started")
		return nil
	case <-ctx.Done():
		_ = app.archive.Close()
		return ctx.Err()
	}
}

// Stop shuts down in reverse dependency order: HTTP → Archive → Logger.
func (app *Application) Stop(ctx context.Context) error {
	app.logger.Info("shutting down proctorhub")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		app.logger.Warn("HTTP server shutdown error", zap.Error(err))
	}

	if err := app.archive.Close(); err != nil {
		app.logger.Warn("archive shutdown error", zap.Error(err))
	}

	app.logger.Info("proctorhub shutdown complete")
	_ = app.logger.Sync()
	return nil
}

// Addr returns the server address for external connections.
func (app *Application) Addr() string {
	return app.httpServer.Addr
}
