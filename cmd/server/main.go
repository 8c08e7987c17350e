package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/mamadbah2/cropwatch/internal/analytics"
	"github.com/mamadbah2/cropwatch/internal/archive"
	"github.com/mamadbah2/cropwatch/internal/camera"
	"github.com/mamadbah2/cropwatch/internal/camera/opencv"
	"github.com/mamadbah2/cropwatch/internal/config"
	"github.com/mamadbah2/cropwatch/internal/metrics"
	"github.com/mamadbah2/cropwatch/internal/repository"
	"github.com/mamadbah2/cropwatch/internal/repository/memory"
	"github.com/mamadbah2/cropwatch/internal/repository/mongodb"
	"github.com/mamadbah2/cropwatch/internal/repository/sheets"
	"github.com/mamadbah2/cropwatch/internal/repository/sqlstore"
	"github.com/mamadbah2/cropwatch/internal/scheduler"
	"github.com/mamadbah2/cropwatch/internal/server/handlers"
	"github.com/mamadbah2/cropwatch/internal/server/router"
	"github.com/mamadbah2/cropwatch/internal/service/crop"
	"github.com/mamadbah2/cropwatch/internal/service/farm"
	"github.com/mamadbah2/cropwatch/internal/service/notify"
	reportingsvc "github.com/mamadbah2/cropwatch/internal/service/reporting"
	whatsappclient "github.com/mamadbah2/cropwatch/pkg/clients/whatsapp"
	"github.com/mamadbah2/cropwatch/pkg/logger"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}

	baseLogger := logger.Must(logger.New(cfg.Log.Level))
	defer func() { _ = baseLogger.Sync() }()

	zap.ReplaceGlobals(baseLogger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, mongoDB, err := openStore(ctx, cfg.Database)
	if err != nil {
		baseLogger.Fatal("failed to init plant store", zap.String("driver", cfg.Database.Driver), zap.Error(err))
	}
	defer func() {
		if err := store.Close(context.Background()); err != nil {
			baseLogger.Error("failed to close plant store", zap.Error(err))
		}
	}()

	var reportSource reportingsvc.DataSource = store
	if cfg.Sheets.Enabled() {
		sheetsRepo, err := sheets.NewGoogleSheetRepository(ctx, cfg.Sheets, baseLogger.Named("repo.sheets"))
		if err != nil {
			baseLogger.Fatal("failed to init sheets repository", zap.Error(err))
		}
		mirror := sheets.NewReadingsMirror(sheetsRepo, cfg.Sheets.ReadingsRange)
		store = repository.NewMirrored(store, mirror, baseLogger.Named("repo.mirror"))
		reportSource = mirror
	}

	rec := metrics.NewRecorder()

	archiver, err := archive.New(ctx, cfg.Archive, mongoDB, rec, baseLogger.Named("archive"))
	if err != nil {
		baseLogger.Fatal("failed to init image archive", zap.Error(err))
	}

	roiTable := config.DefaultROITable()
	if cfg.Monitoring.ROITablePath != "" {
		if roiTable, err = config.LoadROITable(cfg.Monitoring.ROITablePath); err != nil {
			baseLogger.Fatal("failed to load roi table", zap.Error(err))
		}
	}
	var seed *config.PlantSeed
	if cfg.Monitoring.PlantsSeedPath != "" {
		if seed, err = config.LoadPlantSeed(cfg.Monitoring.PlantsSeedPath); err != nil {
			baseLogger.Fatal("failed to load plant seed", zap.Error(err))
		}
	}

	m := cfg.Monitoring
	greenness := analytics.NewGreenness(analytics.HSVBand{
		HueMin: uint8(m.HueMin), HueMax: uint8(m.HueMax),
		SatMin: uint8(m.SatMin), SatMax: 255,
		ValMin: uint8(m.ValMin), ValMax: 255,
	})
	analyticsReg, err := analytics.NewRegistry(greenness)
	if err != nil {
		baseLogger.Fatal("failed to init analytics", zap.Error(err))
	}

	var notifier notify.Notifier = notify.NewLogNotifier(baseLogger.Named("svc.notify"))
	if cfg.WhatsApp.Enabled() {
		notifier = notify.NewWhatsAppNotifier(cfg.WhatsApp, whatsappclient.NewClient(cfg.WhatsApp), baseLogger.Named("svc.notify"))
		baseLogger.Info("whatsapp notifications enabled")
	} else {
		baseLogger.Warn("whatsapp credentials missing, notifications are logged only")
	}

	registry := farm.NewRegistry(store, farm.Options{
		Template: crop.Config{
			ImagePeriod:       m.ImagePeriod,
			DataPeriod:        m.DataPeriod,
			FramePollInterval: m.FramePollInterval,
			PersistAttempts:   m.PersistAttempts,
			RequirePlants:     m.RequirePlants,
		},
		Dependencies: crop.Dependencies{
			Analytics: analyticsReg,
			Archiver:  archiver,
			ROITable:  roiTable,
			Recorder:  rec,
		},
		NewSource: sourceFactory(cfg.Camera, rec, notifier, baseLogger.Named("camera")),
		Seed:      seed,
	}, baseLogger.Named("farm"))

	if err := registry.Startup(ctx); err != nil {
		baseLogger.Error("some crops failed to start", zap.Error(err))
	}

	loc, err := time.LoadLocation(cfg.Reporting.Timezone)
	if err != nil {
		baseLogger.Fatal("invalid timezone", zap.Error(err))
	}
	sched := scheduler.NewScheduler(baseLogger.Named("scheduler"), scheduler.WithLocation(loc))
	reportingSvc := reportingsvc.NewService(reportSource, notifier, baseLogger.Named("svc.reporting"))
	if err := reportingSvc.Schedule(sched, cfg.Reporting.CronSchedule); err != nil {
		baseLogger.Fatal("failed to schedule weekly report", zap.Error(err))
	}
	sched.Start()

	engine := router.New(router.Handlers{
		Crops:        handlers.NewCropHandler(registry, store, baseLogger.Named("handlers.crops")),
		Stream:       handlers.NewStreamHandler(registry, cfg.Server.StreamFrameInterval, baseLogger.Named("handlers.stream")),
		Notification: handlers.NewNotificationHandler(notifier, baseLogger.Named("handlers.notify")),
		Metrics:      rec.Handler(),
		Health:       store,
	}, baseLogger.Named("router"))

	// No write timeout: /video_feed holds the connection open.
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           engine,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		baseLogger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Fatal("http server crashed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	baseLogger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("graceful shutdown failed", zap.Error(err))
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		baseLogger.Error("scheduler did not stop in time", zap.Error(err))
	}
	if err := registry.Close(shutdownCtx); err != nil {
		baseLogger.Error("failed to stop crops", zap.Error(err))
	}
}

func openStore(ctx context.Context, cfg config.DatabaseConfig) (repository.Store, *mongo.Database, error) {
	switch cfg.Driver {
	case "mongodb":
		repo, err := mongodb.NewMongoDBRepository(ctx, cfg.URI, cfg.DBName)
		if err != nil {
			return nil, nil, err
		}
		return repo, repo.Database(), nil
	case "memory":
		return memory.New(), nil, nil
	default:
		dialect, ok := sqlstore.DialectFor(cfg.Driver)
		if !ok {
			return nil, nil, fmt.Errorf("unsupported driver %q", cfg.Driver)
		}
		s, err := sqlstore.Open(ctx, dialect, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return s, nil, nil
	}
}

// synthetic driver palette
var (
	soil    = color.RGBA{R: 110, G: 80, B: 50, A: 255}
	foliage = color.RGBA{R: 40, G: 150, B: 50, A: 255}
)

func sourceFactory(cfg config.CameraConfig, rec *metrics.Recorder, notifier notify.Notifier, log *zap.Logger) farm.SourceFactory {
	return func(cropID string) (crop.FrameSource, error) {
		var device camera.Device
		switch cfg.Driver {
		case "opencv":
			device = opencv.NewDevice(cfg.IndexFor(cropID))
		case "synthetic":
			dev := camera.NewPatternDevice(cfg.Width, cfg.Height, soil)
			dev.Patch = image.Rect(cfg.Width/4, cfg.Height/4, cfg.Width*3/4, cfg.Height*3/4)
			dev.PatchColor = foliage
			device = dev
		default:
			return nil, fmt.Errorf("unsupported camera driver %q", cfg.Driver)
		}

		opts := camera.Options{
			Name:          cropID,
			RetryDelay:    cfg.RetryDelay,
			EscalateAfter: cfg.EscalateAfter,
			Observer:      rec.ForCrop(cropID),
			OnEscalate: func(err error, failures int) {
				msg := fmt.Sprintf("Camera for crop %s failed %d times in a row: %v", cropID, failures, err)
				go func() {
					ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
					defer cancel()
					if nerr := notifier.Notify(ctx, msg); nerr != nil {
						log.Error("failed to send camera alert", zap.String("crop_id", cropID), zap.Error(nerr))
					}
				}()
			},
		}
		return camera.NewSource(device, opts, log), nil
	}
}
