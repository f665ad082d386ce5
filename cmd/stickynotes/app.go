package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/stickynotes/internal/backup"
	"github.com/MarcoPoloResearchLab/stickynotes/internal/config"
	"github.com/MarcoPoloResearchLab/stickynotes/internal/database"
	"github.com/MarcoPoloResearchLab/stickynotes/internal/logging"
	"github.com/MarcoPoloResearchLab/stickynotes/internal/notes"
	"github.com/MarcoPoloResearchLab/stickynotes/internal/server"
	"github.com/MarcoPoloResearchLab/stickynotes/internal/storage"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

// application owns the process-wide database handle and the services built on it.
type application struct {
	config   config.AppConfig
	logger   *zap.Logger
	db       *gorm.DB
	store    *notes.Store
	pipeline *backup.Pipeline
}

func openApplication() (*application, error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFile)
	if err != nil {
		return nil, err
	}

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}

	store, err := notes.NewStore(notes.StoreConfig{
		Database: db,
		Clock:    time.Now,
		Logger:   logger,
	})
	if err != nil {
		_ = database.Close(db)
		return nil, err
	}

	keyValueStore, err := newBackupStorage(appConfig.BackupStore, db, logger)
	if err != nil {
		_ = database.Close(db)
		return nil, err
	}

	pipeline, err := backup.NewPipeline(backup.PipelineConfig{
		Notes:      store,
		Storage:    keyValueStore,
		StorageKey: appConfig.BackupStorageKey,
		Clock:      time.Now,
		Logger:     logger,
	})
	if err != nil {
		_ = database.Close(db)
		return nil, err
	}

	return &application{
		config:   appConfig,
		logger:   logger,
		db:       db,
		store:    store,
		pipeline: pipeline,
	}, nil
}

// newBackupStorage selects where snapshots are kept.
func newBackupStorage(kind string, db *gorm.DB, logger *zap.Logger) (storage.KeyValueStore, error) {
	switch kind {
	case config.BackupStoreMemory:
		logger.Warn("snapshots are kept in memory and are lost when the process exits")
		return storage.NewMemoryStore(), nil
	case config.BackupStoreSQLite, "":
		sqliteStore, err := storage.NewSQLiteStore(db, logger)
		if err != nil {
			return nil, err
		}
		return sqliteStore, nil
	default:
		return nil, fmt.Errorf("unknown backup store %q", kind)
	}
}

func (a *application) Close() {
	if err := database.Close(a.db); err != nil {
		a.logger.Warn("failed to close database", zap.Error(err))
	}
	_ = a.logger.Sync()
}

func runServer(ctx context.Context) error {
	app, err := openApplication()
	if err != nil {
		return err
	}
	defer app.Close()

	handler, err := server.NewHTTPHandler(server.Dependencies{
		NotesStore:     app.store,
		BackupPipeline: app.pipeline,
		Realtime:       server.NewRealtimeDispatcher(),
		Logger:         app.logger,
		AllowedOrigins: app.config.AllowedOrigins,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    app.config.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if app.config.BackupAutoEnabled {
		autoBackup := app.pipeline.StartAutoBackup(signalCtx, app.config.BackupInterval)
		defer autoBackup.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		app.logger.Info("server starting", zap.String("address", app.config.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
