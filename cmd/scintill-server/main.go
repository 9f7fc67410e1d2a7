// scintill-server - Serving daemon for the merged feature dataset
//
// Periodically rebuilds the dataset from the local raw-data directory (and
// the ISMR webservice when a credential is configured) and serves the
// latest build over HTTP.
//
// Build: CGO_ENABLED=0 go build -ldflags="-s -w" -o build/scintill-server ./cmd/scintill-server

package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	httpapi "github.com/viventriglia/scintill-ai/internal/api/http"
	"github.com/viventriglia/scintill-ai/internal/config"
	"github.com/viventriglia/scintill-ai/internal/ismr"
	"github.com/viventriglia/scintill-ai/internal/logging"
	"github.com/viventriglia/scintill-ai/internal/pipeline"
	"github.com/viventriglia/scintill-ai/internal/scheduler"
	"github.com/viventriglia/scintill-ai/internal/solarpos"
	"github.com/viventriglia/scintill-ai/internal/store"
)

// Version can be overridden at build time via -ldflags
var Version = "1.2.0"

func main() {
	window := flag.Duration("window", 30*24*time.Hour, "Trailing data window per rebuild")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := logging.New(*cfg, "scintill-server")
	logger.Info("starting", "version", Version, "station", cfg.Station.Name, "magnetometer", cfg.Magnetometer)

	// Keep a couple of builds so a failed refresh never leaves the API empty.
	datasets := store.NewMemoryStore(4, 0)

	var fetcher pipeline.ObservationFetcher
	if cfg.ISMRAPIKey != "" {
		client, err := ismr.NewClient(ismr.ClientConfig{
			BaseURL: cfg.ISMRBaseURL,
			APIKey:  cfg.ISMRAPIKey,
			Station: cfg.Station.Name,
			Chunk:   cfg.ISMRChunk,
			Pause:   cfg.ISMRPause,
		})
		if err != nil {
			logger.Error("ismr client", "err", err)
			os.Exit(1)
		}
		fetcher = client
	} else {
		logger.Warn("ISMR_API_KEY not set, serving dataset without scintillation target")
	}

	builder := pipeline.New(cfg, logger, fetcher)

	refresh := func(ctx context.Context) error {
		to := time.Now().UTC()
		ds, err := builder.Build(ctx, to.Add(-*window), to)
		if err != nil {
			return err
		}
		datasets.Save(ds)
		return nil
	}

	sched := scheduler.New(cfg.RefreshInterval, 30*time.Minute, refresh, logger)
	if err := sched.Start(); err != nil {
		logger.Error("scheduler start", "err", err)
		os.Exit(1)
	}
	defer sched.Stop()

	app := fiber.New(fiber.Config{
		AppName:               "scintill-ai",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          30 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	app.Use(recover.New())

	site := solarpos.Site{
		Latitude:  cfg.Station.Latitude,
		Longitude: cfg.Station.Longitude,
		Altitude:  cfg.Station.Altitude,
	}
	httpapi.RegisterRoutes(app, datasets, site)

	go func() {
		logger.Info("listening", "port", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			logger.Error("fiber server stopped", "err", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("shutdown", "err", err)
	}
}
