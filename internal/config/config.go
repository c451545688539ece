// Package config loads device settings from the environment, optionally
// seeded from a .env file.
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

// Config holds environment-based settings
type Config struct {
	// Schedule pipeline
	LookaheadDays         int           // LOOKAHEAD_DAYS
	WarningLeadMinutes    int           // WARNING_LEAD_MINUTES
	RequestTimeout        time.Duration // REQUEST_TIMEOUT
	MidnightWindowMinutes int           // MIDNIGHT_WINDOW_MINUTES, 1..60
	InterRequestDelay     time.Duration // INTER_REQUEST_DELAY

	// Location
	City           string
	Country        string
	PrayerMethod   int
	AladhanBaseURL string

	// Time
	Timezone        string
	TimezoneOffset  int
	NTPServers      []string
	NTPSyncAttempts int
	NTPRetryDelay   time.Duration

	// Storage
	DataDir string

	// Link
	LinkProbeAddr     string
	LinkProbeTimeout  time.Duration
	ReconnectInterval time.Duration

	// Command surface
	ServerAddress string
	JWTSecret     string
	CommandPIN    string

	// Output
	MQTTBrokerURL string
	MQTTTopic     string
	DeviceID      string

	// Mirror
	RedisAddress  string
	RedisUsername string
	RedisPassword string

	// Logging
	LogLevel  string // debug|info|warn|error
	LogPretty bool
	LogFile   string
}

// LoadDotEnv reads path into the environment if it exists. Variables already
// set win over the file.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads configuration from environment variables, applies defaults and
// validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		LookaheadDays:         getint("LOOKAHEAD_DAYS", 7),
		WarningLeadMinutes:    getint("WARNING_LEAD_MINUTES", 10),
		RequestTimeout:        getdur("REQUEST_TIMEOUT", 10*time.Second),
		MidnightWindowMinutes: getint("MIDNIGHT_WINDOW_MINUTES", 5),
		InterRequestDelay:     getdur("INTER_REQUEST_DELAY", time.Second),

		City:           getenv("CITY", "Nganjuk"),
		Country:        getenv("COUNTRY", "Indonesia"),
		PrayerMethod:   getint("PRAYER_METHOD", 20),
		AladhanBaseURL: getenv("ALADHAN_BASE_URL", "http://api.aladhan.com/v1/timingsByCity"),

		Timezone:        getenv("TIMEZONE", "Asia/Jakarta"),
		TimezoneOffset:  getint("TIMEZONE_OFFSET", 7),
		NTPServers:      splitCSV(getenv("NTP_SERVERS", "pool.ntp.org,time.nist.gov,time.google.com")),
		NTPSyncAttempts: getint("NTP_SYNC_ATTEMPTS", 15),
		NTPRetryDelay:   getdur("NTP_RETRY_DELAY", time.Second),

		DataDir: getenv("DATA_DIR", "./data"),

		LinkProbeAddr:     getenv("LINK_PROBE_ADDR", "api.aladhan.com:80"),
		LinkProbeTimeout:  getdur("LINK_PROBE_TIMEOUT", 3*time.Second),
		ReconnectInterval: getdur("RECONNECT_INTERVAL", 30*time.Second),

		ServerAddress: getenv("SERVER_ADDRESS", ":8080"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		CommandPIN:    getenv("COMMAND_PIN", "1234"),

		MQTTBrokerURL: os.Getenv("MQTT_BROKER_URL"),
		MQTTTopic:     getenv("MQTT_TOPIC", "muezzin/{device}/buzzer"),
		DeviceID:      getenv("DEVICE_ID", hostname()),

		RedisAddress:  os.Getenv("REDIS_ADDRESS"),
		RedisUsername: os.Getenv("REDIS_USERNAME"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),
		LogFile:   os.Getenv("LOG_FILE"),
	}

	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return errors.New("LOG_LEVEL must be one of: debug, info, warn, error")
	}
	if c.LookaheadDays < 0 || c.LookaheadDays > 30 {
		return errors.New("LOOKAHEAD_DAYS must be between 0 and 30")
	}
	if c.WarningLeadMinutes < 1 || c.WarningLeadMinutes > 120 {
		return errors.New("WARNING_LEAD_MINUTES must be between 1 and 120")
	}
	if c.MidnightWindowMinutes < 1 || c.MidnightWindowMinutes > 60 {
		return errors.New("MIDNIGHT_WINDOW_MINUTES must be between 1 and 60")
	}
	if c.RequestTimeout <= 0 || c.LinkProbeTimeout <= 0 || c.ReconnectInterval <= 0 {
		return errors.New("timeouts must be positive durations")
	}
	if c.InterRequestDelay < 0 || c.NTPRetryDelay < 0 {
		return errors.New("delays must be >= 0")
	}
	if strings.TrimSpace(c.City) == "" || strings.ContainsAny(c.City, `/\`) {
		return errors.New("CITY must be a non-empty name without path separators")
	}
	if strings.TrimSpace(c.Country) == "" {
		return errors.New("COUNTRY must not be empty")
	}
	if c.PrayerMethod < 0 {
		return errors.New("PRAYER_METHOD must be >= 0")
	}
	if c.NTPSyncAttempts < 1 {
		return errors.New("NTP_SYNC_ATTEMPTS must be >= 1")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return errors.New("DATA_DIR must not be empty")
	}
	if c.TimezoneOffset < -12 || c.TimezoneOffset > 14 {
		return errors.New("TIMEZONE_OFFSET must be between -12 and 14")
	}
	return nil
}

// RequireServer checks the settings only the HTTP command surface needs.
func (c *Config) RequireServer() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.CommandPIN == "" {
		return errors.New("COMMAND_PIN must not be empty")
	}
	if strings.TrimSpace(c.ServerAddress) == "" {
		return errors.New("SERVER_ADDRESS must not be empty")
	}
	return nil
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "muezzin"
	}
	return h
}

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
