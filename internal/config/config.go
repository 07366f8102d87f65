package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the server settings.
type Config struct {
	DatabaseURL string
	HTTPAddr    string
	MetricsAddr string
	LogLevel    string

	NATSURL           string
	NATSSubjectPrefix string
	LogNATSSubjects   bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	MQTTBroker   string
	MQTTClientID string
	MQTTGPSTopic string

	ApproachMeters float64
	RepeatWindow   time.Duration
	AlwaysForce    bool
}

// RelayConfig holds the on-bus GPS relay settings.
type RelayConfig struct {
	BusID        string
	SerialPort   string
	BaudRate     int
	MQTTBroker   string
	MQTTClientID string
	TopicPrefix  string
	MinDistance  float64
	MinInterval  time.Duration
	LogLevel     string
}

// DisplayConfig holds the TV display client settings.
type DisplayConfig struct {
	BusID            string
	WSURL            string
	OverlayDuration  time.Duration
	ApproachThrottle time.Duration
	LogLevel         string
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{}

	// Database URL: prefer DATABASE_URL / PG_DSN, else build from PG* vars
	dsn := firstNonEmpty(
		os.Getenv("DATABASE_URL"),
		os.Getenv("PG_DSN"),
	)
	if dsn == "" {
		host := getenvDefault("PGHOST", "127.0.0.1")
		port := getenvDefault("PGPORT", "5432")
		user := getenvDefault("PGUSER", "postgres")
		pass := os.Getenv("PGPASSWORD")
		db := os.Getenv("PGDATABASE")
		if db == "" {
			return nil, errors.New("PGDATABASE or DATABASE_URL must be set")
		}
		sslmode := getenvDefault("PGSSLMODE", "disable")
		if pass != "" {
			cfg.DatabaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, db, sslmode)
		} else {
			cfg.DatabaseURL = fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, db, sslmode)
		}
	} else {
		cfg.DatabaseURL = dsn
	}

	cfg.HTTPAddr = getenvDefault("HTTP_ADDR", ":8080")
	// Empty disables the metrics server.
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")
	cfg.LogLevel = getenvDefault("LOG_LEVEL", "info")

	// Empty NATS_URL disables the event bus; displays still get websocket pushes.
	cfg.NATSURL = os.Getenv("NATS_URL")
	cfg.NATSSubjectPrefix = getenvDefault("NATS_SUBJECT_PREFIX", "signage")
	cfg.LogNATSSubjects = parseBool(os.Getenv("LOG_NATS_SUBJECTS"))

	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	if v := os.Getenv("REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid REDIS_DB: %q", v)
		}
		cfg.RedisDB = n
	}

	cfg.MQTTBroker = os.Getenv("MQTT_BROKER")
	cfg.MQTTClientID = getenvDefault("MQTT_CLIENT_ID", "fleet-signage-server")
	cfg.MQTTGPSTopic = getenvDefault("MQTT_GPS_TOPIC", "fleet/gps/+")

	var err error
	if cfg.ApproachMeters, err = positiveFloat("ANNOUNCE_APPROACH_M", 500); err != nil {
		return nil, err
	}
	if cfg.RepeatWindow, err = positiveMillis("ANNOUNCE_REPEAT_MS", 2500*time.Millisecond); err != nil {
		return nil, err
	}
	cfg.AlwaysForce = parseBool(os.Getenv("ANNOUNCE_ALWAYS_FORCE"))

	return cfg, nil
}

func LoadRelay() (*RelayConfig, error) {
	_ = godotenv.Load()

	cfg := &RelayConfig{
		BusID:       strings.TrimSpace(os.Getenv("BUS_ID")),
		SerialPort:  getenvDefault("GPS_SERIAL_PORT", "/dev/serial0"),
		MQTTBroker:  getenvDefault("MQTT_BROKER", "tcp://localhost:1883"),
		TopicPrefix: strings.TrimSuffix(getenvDefault("MQTT_GPS_TOPIC_PREFIX", "fleet/gps"), "/"),
		LogLevel:    getenvDefault("LOG_LEVEL", "info"),
	}
	if cfg.BusID == "" {
		return nil, errors.New("BUS_ID must be set")
	}
	cfg.MQTTClientID = getenvDefault("MQTT_CLIENT_ID", "fleet-signage-relay-"+cfg.BusID)

	cfg.BaudRate = 9600
	if v := os.Getenv("GPS_BAUD_RATE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid GPS_BAUD_RATE: %q", v)
		}
		cfg.BaudRate = n
	}

	var err error
	if cfg.MinDistance, err = positiveFloat("RELAY_MIN_DISTANCE_M", 50); err != nil {
		return nil, err
	}
	if cfg.MinInterval, err = positiveMillis("RELAY_MIN_INTERVAL_MS", 5*time.Second); err != nil {
		return nil, err
	}
	return cfg, nil
}

func LoadDisplay() (*DisplayConfig, error) {
	_ = godotenv.Load()

	cfg := &DisplayConfig{
		BusID:    strings.TrimSpace(os.Getenv("BUS_ID")),
		WSURL:    getenvDefault("DISPLAY_WS_URL", "ws://localhost:8080/ws"),
		LogLevel: getenvDefault("LOG_LEVEL", "info"),
	}
	var err error
	if cfg.OverlayDuration, err = positiveMillis("OVERLAY_MS", 4*time.Second); err != nil {
		return nil, err
	}
	// Zero disables the client-side throttle.
	cfg.ApproachThrottle = 5 * time.Second
	if v := os.Getenv("OVERLAY_APPROACH_THROTTLE_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms < 0 {
			return nil, fmt.Errorf("invalid OVERLAY_APPROACH_THROTTLE_MS: %q", v)
		}
		cfg.ApproachThrottle = time.Duration(ms) * time.Millisecond
	}
	return cfg, nil
}

func positiveFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return f, nil
}

func positiveMillis(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	ms, err := strconv.Atoi(v)
	if err != nil || ms <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}
