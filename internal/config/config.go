// Package config provides shared configuration for the scintill-ai pipeline.
// Values come from environment variables, optionally seeded from a local
// .env file (the committed .env.example documents the expected keys; the
// real .env carries the ISMR webservice credential and stays untracked).
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// GNSS observation site: Presidente Prudente, Brazil. The altitude is the
// ionospheric shell height used for solar-geometry features, not the
// receiver elevation.
const (
	DefaultLatitude  = -22.122112
	DefaultLongitude = -51.407095
	DefaultAltitude  = 350_000.0

	DefaultElevationThreshold = 60.0
	DefaultLowerS4Threshold   = 0.4
	DefaultUpperS4Threshold   = 0.7
)

// Station describes the GNSS observation site the pipeline is built around.
type Station struct {
	Name      string
	Latitude  float64
	Longitude float64
	Altitude  float64
}

// Config holds configuration for all pipeline applications.
type Config struct {
	DataDir      string
	Station      Station
	Magnetometer string // IAGA observatory code, e.g. VSS

	ElevationThreshold float64
	LowerS4Threshold   float64
	UpperS4Threshold   float64

	ISMRBaseURL string
	ISMRAPIKey  string
	ISMRChunk   time.Duration // date-range size of one webservice page
	ISMRPause   time.Duration // pause between pages

	ClickHouseAddr     string
	ClickHouseDatabase string
	ClickHouseTable    string

	RefreshInterval time.Duration
	HTTPTimeout     time.Duration
	Port            string
	AppEnv          string
	LogLevel        string
}

// Load reads configuration from the environment with sensible defaults.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	cfg := &Config{
		DataDir: getEnv("SCINTILL_DATA_DIR", filepath.Join("data", "in")),
		Station: Station{
			Name:      getEnv("GNSS_STATION", "PRU2"),
			Latitude:  getEnvFloat("GNSS_LATITUDE", DefaultLatitude),
			Longitude: getEnvFloat("GNSS_LONGITUDE", DefaultLongitude),
			Altitude:  getEnvFloat("GNSS_ALTITUDE", DefaultAltitude),
		},
		Magnetometer: getEnv("MAGNETOMETER_STATION", "VSS"),

		ElevationThreshold: getEnvFloat("ELEVATION_THRESHOLD", DefaultElevationThreshold),
		LowerS4Threshold:   getEnvFloat("LW_S4_THRESHOLD", DefaultLowerS4Threshold),
		UpperS4Threshold:   getEnvFloat("UP_S4_THRESHOLD", DefaultUpperS4Threshold),

		ISMRBaseURL: getEnv("ISMR_BASE_URL", "https://ismrquerytool.fct.unesp.br/is/ismrtool/calc-var/service_loadVar.php"),
		ISMRAPIKey:  os.Getenv("ISMR_API_KEY"),

		ClickHouseAddr:     getEnv("CLICKHOUSE_ADDR", "127.0.0.1:9000"),
		ClickHouseDatabase: getEnv("CLICKHOUSE_DATABASE", "scintill"),
		ClickHouseTable:    getEnv("CLICKHOUSE_TABLE", "features_raw"),

		Port:     getEnv("PORT", "8080"),
		AppEnv:   getEnv("APP_ENV", "dev"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	var err error
	if cfg.ISMRChunk, err = getEnvDuration("ISMR_CHUNK", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.ISMRPause, err = getEnvDuration("ISMR_PAUSE", 500*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.RefreshInterval, err = getEnvDuration("REFRESH_INTERVAL", 6*time.Hour); err != nil {
		return nil, err
	}
	if cfg.HTTPTimeout, err = getEnvDuration("HTTP_TIMEOUT", 60*time.Second); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IntermagnetDir returns the magnetometer raw-data directory.
func (c *Config) IntermagnetDir() string {
	return filepath.Join(c.DataDir, "intermagnet")
}

// MagnetometerDir returns the raw-data directory of the configured station.
func (c *Config) MagnetometerDir() string {
	return filepath.Join(c.IntermagnetDir(), c.Magnetometer)
}

// OMNIDir returns the solar-wind raw-data directory.
func (c *Config) OMNIDir() string {
	return filepath.Join(c.DataDir, "omni")
}

// GFZDir returns the solar/geomagnetic index raw-data directory.
func (c *Config) GFZDir() string {
	return filepath.Join(c.DataDir, "gfz")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.ParseFloat(value, 64); err == nil {
			return v
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
