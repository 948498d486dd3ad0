package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	RefreshModePoller  = "poller"
	RefreshModeRequest = "request"

	DefaultTelemetryURL = "https://rs485-plc-default-rtdb.firebaseio.com/.json"
)

type Config struct {
	AppEnv   string
	LogLevel slog.Level
	HTTPAddr string

	// LogFile, when set, receives a rotated copy of the log output.
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int

	// StaticDir is the absolute path to the directory served at /static/.
	// Set via STATIC_DIR (relative paths are resolved against the process working directory at startup).
	StaticDir string

	TelemetryURL string
	FetchTimeout time.Duration
	PollInterval time.Duration
	// RefreshMode is "poller" (background fetch on PollInterval) or
	// "request" (one fetch per dashboard request).
	RefreshMode     string
	HistoryCapacity int
	TableSize       int

	MQTTEnabled  bool
	MQTTBroker   string
	MQTTPort     int
	MQTTClientID string
	MQTTTopic    string
}

var defaults = map[string]string{
	"app_env":          "dev",
	"log_level":        "info",
	"log_max_size_mb":  "10",
	"log_max_backups":  "3",
	"http_addr":        "0.0.0.0:5000",
	"static_dir":       "static",
	"telemetry_url":    DefaultTelemetryURL,
	"fetch_timeout":    "5s",
	"poll_interval":    "1s",
	"refresh_mode":     RefreshModePoller,
	"history_capacity": "50",
	"table_size":       "10",
	"mqtt_enabled":     "false",
	"mqtt_broker":      "localhost",
	"mqtt_port":        "1883",
	"mqtt_client_id":   "",
	"mqtt_topic":       "plc/s7-1200/telemetry",
}

// NewViper returns a viper instance reading upper-cased environment
// variables (HTTP_ADDR, TELEMETRY_URL, ...) over the built-in defaults.
func NewViper() *viper.Viper {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.AutomaticEnv()
	return v
}

func LoadFromEnv() (Config, error) {
	return Load(NewViper())
}

// Load reads the configuration from v. When CONFIG_FILE (or the config key)
// names a file it is merged below environment variables and flags.
func Load(v *viper.Viper) (Config, error) {
	if path := get(v, "config_file"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %q: %w", path, err)
		}
	}

	appEnv := get(v, "app_env")
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	level, err := parseLogLevel(get(v, "log_level"))
	if err != nil {
		return Config{}, err
	}

	logMaxSizeMB, err := parsePositiveInt(v, "log_max_size_mb")
	if err != nil {
		return Config{}, err
	}
	logMaxBackups, err := parseInt(v, "log_max_backups")
	if err != nil {
		return Config{}, err
	}

	staticDir, err := filepath.Abs(get(v, "static_dir"))
	if err != nil {
		return Config{}, fmt.Errorf("STATIC_DIR %q: %w", get(v, "static_dir"), err)
	}

	telemetryURL := get(v, "telemetry_url")
	if !strings.HasPrefix(telemetryURL, "http://") && !strings.HasPrefix(telemetryURL, "https://") {
		return Config{}, fmt.Errorf("invalid TELEMETRY_URL %q (expected http:// or https:// URL)", telemetryURL)
	}

	fetchTimeout, err := parsePositiveDuration(v, "fetch_timeout")
	if err != nil {
		return Config{}, err
	}
	pollInterval, err := parsePositiveDuration(v, "poll_interval")
	if err != nil {
		return Config{}, err
	}

	refreshMode := strings.ToLower(get(v, "refresh_mode"))
	switch refreshMode {
	case RefreshModePoller, RefreshModeRequest:
	default:
		return Config{}, fmt.Errorf("invalid REFRESH_MODE %q (allowed: poller, request)", refreshMode)
	}

	historyCapacity, err := parsePositiveInt(v, "history_capacity")
	if err != nil {
		return Config{}, err
	}
	tableSize, err := parsePositiveInt(v, "table_size")
	if err != nil {
		return Config{}, err
	}

	mqttEnabledStr := get(v, "mqtt_enabled")
	mqttEnabled, err := strconv.ParseBool(mqttEnabledStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid MQTT_ENABLED %q: %w", mqttEnabledStr, err)
	}
	mqttPort, err := parsePositiveInt(v, "mqtt_port")
	if err != nil {
		return Config{}, err
	}

	return Config{
		AppEnv:          appEnv,
		LogLevel:        level,
		HTTPAddr:        get(v, "http_addr"),
		LogFile:         get(v, "log_file"),
		LogMaxSizeMB:    logMaxSizeMB,
		LogMaxBackups:   logMaxBackups,
		StaticDir:       staticDir,
		TelemetryURL:    telemetryURL,
		FetchTimeout:    fetchTimeout,
		PollInterval:    pollInterval,
		RefreshMode:     refreshMode,
		HistoryCapacity: historyCapacity,
		TableSize:       tableSize,
		MQTTEnabled:     mqttEnabled,
		MQTTBroker:      get(v, "mqtt_broker"),
		MQTTPort:        mqttPort,
		MQTTClientID:    get(v, "mqtt_client_id"),
		MQTTTopic:       get(v, "mqtt_topic"),
	}, nil
}

// get returns the trimmed value of key, or its default when the configured
// value is blank.
func get(v *viper.Viper, key string) string {
	s := strings.TrimSpace(v.GetString(key))
	if s == "" {
		return defaults[key]
	}
	return s
}

func envName(key string) string {
	return strings.ToUpper(key)
}

func parseInt(v *viper.Viper, key string) (int, error) {
	s := get(v, key)
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", envName(key), s, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("%s must not be negative, got %d", envName(key), n)
	}
	return n, nil
}

func parsePositiveInt(v *viper.Viper, key string) (int, error) {
	n, err := parseInt(v, key)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, fmt.Errorf("%s must be positive, got %d", envName(key), n)
	}
	return n, nil
}

func parsePositiveDuration(v *viper.Viper, key string) (time.Duration, error) {
	s := get(v, key)
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", envName(key), s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %v", envName(key), d)
	}
	return d, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
