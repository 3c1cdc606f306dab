package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ServerConfig captures all tunable parameters for the HTTP API process.
// Values are loaded from environment variables with defaults sane enough
// to run locally against the in-memory stores.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	RedisAddr     string
	RedisPassword string
	RedisGeoKey   string

	KafkaBrokers []string
	KafkaTopic   string

	PGDSN string

	// Presence classification windows (inclusive bounds).
	PresenceOnlineWindow time.Duration
	PresenceStaleWindow  time.Duration
	// Default availability window for auto-assign.
	DefaultStaleness time.Duration

	SpeedMPH float64

	// Geocoding: a Google Maps key takes precedence; otherwise the
	// Nominatim endpoint is used.
	GoogleMapsAPIKey string
	NominatimURL     string

	// Dispatch webhook fallback for assignment notices.
	PushEndpoint string

	AdminAPIKey string

	BaseFareUSD    float64
	PerMileUSD     float64
	PerMinuteUSD   float64
	MinimumFareUSD float64
	BookingFeeUSD  float64

	LogLevel      string
	RunMigrations bool
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:        ":8080",
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RedisGeoKey:     "drivers_geo",
		KafkaTopic:      "driver-locations",

		PresenceOnlineWindow: 5 * time.Minute,
		PresenceStaleWindow:  15 * time.Minute,
		DefaultStaleness:     5 * time.Minute,

		SpeedMPH: 30,

		NominatimURL: "https://nominatim.openstreetmap.org",

		BaseFareUSD:    3.00,
		PerMileUSD:     2.80,
		PerMinuteUSD:   0.40,
		MinimumFareUSD: 5.00,

		LogLevel: "info",
	}
}

func LoadServerConfig() (ServerConfig, error) {
	cfg := defaultServerConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.RedisGeoKey, "REDIS_GEO_KEY")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")

	cfg.PGDSN = os.Getenv("PG_DSN")

	setDurationFromEnv(&cfg.PresenceOnlineWindow, "PRESENCE_ONLINE_WINDOW", &errs)
	setDurationFromEnv(&cfg.PresenceStaleWindow, "PRESENCE_STALE_WINDOW", &errs)
	setDurationFromEnv(&cfg.DefaultStaleness, "DISPATCH_STALENESS_WINDOW", &errs)
	setFloatFromEnv(&cfg.SpeedMPH, "DISPATCH_SPEED_MPH", &errs)

	cfg.GoogleMapsAPIKey = os.Getenv("GOOGLE_MAPS_API_KEY")
	setStringFromEnv(&cfg.NominatimURL, "NOMINATIM_URL")
	cfg.PushEndpoint = os.Getenv("PUSH_ENDPOINT")
	cfg.AdminAPIKey = os.Getenv("ADMIN_API_KEY")

	setFloatFromEnv(&cfg.BaseFareUSD, "BASE_FARE_USD", &errs)
	setFloatFromEnv(&cfg.PerMileUSD, "PER_MILE_USD", &errs)
	setFloatFromEnv(&cfg.PerMinuteUSD, "PER_MINUTE_USD", &errs)
	setFloatFromEnv(&cfg.MinimumFareUSD, "MINIMUM_FARE_USD", &errs)
	setFloatFromEnv(&cfg.BookingFeeUSD, "BOOKING_FEE_USD", &errs)

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	cfg.RunMigrations = strings.EqualFold(os.Getenv("MIGRATE"), "true")

	if cfg.SpeedMPH <= 0 {
		errs = append(errs, fmt.Errorf("DISPATCH_SPEED_MPH must be > 0"))
	}
	if cfg.PresenceOnlineWindow <= 0 {
		errs = append(errs, fmt.Errorf("PRESENCE_ONLINE_WINDOW must be > 0"))
	}
	if cfg.PresenceStaleWindow < cfg.PresenceOnlineWindow {
		errs = append(errs, fmt.Errorf("PRESENCE_STALE_WINDOW must be >= PRESENCE_ONLINE_WINDOW"))
	}

	return cfg, errors.Join(errs...)
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setFloatFromEnv(target *float64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = f
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
