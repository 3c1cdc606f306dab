package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/example/ride-dispatch/internal/config"
	"github.com/example/ride-dispatch/internal/dispatch"
	"github.com/example/ride-dispatch/internal/geocode"
	httpapi "github.com/example/ride-dispatch/internal/http"
	"github.com/example/ride-dispatch/internal/ingest"
	"github.com/example/ride-dispatch/internal/logging"
	"github.com/example/ride-dispatch/internal/matcher"
	"github.com/example/ride-dispatch/internal/presence"
	"github.com/example/ride-dispatch/internal/pricing"
	"github.com/example/ride-dispatch/internal/rides"
	"github.com/example/ride-dispatch/internal/storage"

	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		logging.NewLogger("info").Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg.LogLevel)

	// Persistent stores. Without PG_DSN everything runs in memory, which
	// is the local development and test mode.
	var (
		drivers    storage.DriverStore
		rideStore  storage.RideStore
		presStore  presence.Store
		pg         *storage.PostgresStore
		closeFuncs []func() error
	)
	if cfg.PGDSN != "" {
		pg, err = storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			logger.Error("postgres connect failed", "error", err)
			os.Exit(1)
		}
		closeFuncs = append(closeFuncs, pg.Close)
		if cfg.RunMigrations {
			if err := applyMigrations(pg, logger); err != nil {
				logger.Error("migration failed", "error", err)
				os.Exit(1)
			}
		}
		drivers, rideStore, presStore = pg, pg, pg
	} else {
		mem := storage.NewMemoryStore()
		drivers, rideStore = mem, mem
		presStore = presence.NewMemoryStore()
	}

	// Redis takes over the presence store when configured; the relational
	// copy of driver locations is then maintained by the consumer, if at all.
	if cfg.RedisAddr != "" {
		rc := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		closeFuncs = append(closeFuncs, rc.Close)
		presStore = presence.NewRedisStore(rc, cfg.RedisGeoKey)
	}

	tracker := presence.NewTracker(presStore, cfg.PresenceOnlineWindow, cfg.PresenceStaleWindow)

	var gc geocode.Geocoder
	if cfg.GoogleMapsAPIKey != "" {
		gc, err = geocode.NewGoogleGeocoder(cfg.GoogleMapsAPIKey)
		if err != nil {
			logger.Error("google maps client init failed", "error", err)
			os.Exit(1)
		}
	} else {
		gc = geocode.NewNominatimClient(cfg.NominatimURL, "")
	}

	engine := &pricing.Engine{
		BaseFareUSD:    cfg.BaseFareUSD,
		PerMileUSD:     cfg.PerMileUSD,
		PerMinuteUSD:   cfg.PerMinuteUSD,
		MinimumFareUSD: cfg.MinimumFareUSD,
		BookingFeeUSD:  cfg.BookingFeeUSD,
	}

	var producer *ingest.KafkaProducer
	if len(cfg.KafkaBrokers) > 0 {
		producer = ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		closeFuncs = append(closeFuncs, producer.Close)
	}

	wsReg := dispatch.NewWSRegistry()
	notifier := dispatch.NewPushNotifier(wsReg, cfg.PushEndpoint)

	srv := httpapi.NewServer(cfg, httpapi.Deps{
		Rides: &rides.Service{
			Store:    rideStore,
			Geocoder: gc,
			Pricing:  engine,
			SpeedMPH: cfg.SpeedMPH,
			Logger:   logger,
		},
		Matcher: &matcher.Service{
			Rides:    rideStore,
			Drivers:  drivers,
			Presence: tracker,
			Geocoder: gc,
			Notifier: notifier,
			SpeedMPH: cfg.SpeedMPH,
			Logger:   logger,
		},
		Tracker:   tracker,
		Drivers:   drivers,
		RideStore: rideStore,
		Kafka:     producer,
		WSReg:     wsReg,
		Logger:    logger,
	})

	httpSrv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("ride-dispatch listening", "addr", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	for _, f := range closeFuncs {
		if err := f(); err != nil {
			logger.Warn("close error", "error", err)
		}
	}
}

func applyMigrations(pg *storage.PostgresStore, logger *slog.Logger) error {
	b, err := os.ReadFile(filepath.Join("migrations", "001_create_rides.sql"))
	if err != nil {
		return err
	}
	if _, err := pg.DB().Exec(string(b)); err != nil {
		return err
	}
	logger.Info("migration applied", "file", "001_create_rides.sql")
	return nil
}
