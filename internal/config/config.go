package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind           string   `yaml:"bind"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	Bible       BibleConfig      `yaml:"bible"`
	Detector    DetectorConfig   `yaml:"detector"`
	Pending     PendingConfig    `yaml:"pending"`
	Display     DisplayConfig    `yaml:"display"`
	Push        PushConfig       `yaml:"push"`
	EventStore  EventStoreConfig `yaml:"event_store"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type BibleConfig struct {
	Path               string `yaml:"path"`
	DefaultTranslation string `yaml:"default_translation"`
}

type DetectorConfig struct {
	Enabled          bool `yaml:"enabled"`
	ConsumePartials  bool `yaml:"consume_partials"`
	DebounceWindowMS int  `yaml:"debounce_window_ms"`
}

type PendingConfig struct {
	MaxPending int `yaml:"max_pending"`
	MaxHistory int `yaml:"max_history"`
}

type DisplayConfig struct {
	Address              string `yaml:"address"`
	ConnectTimeoutMS     int    `yaml:"connect_timeout_ms"`
	ExchangeTimeoutMS    int    `yaml:"exchange_timeout_ms"`
	MaxReconnectAttempts int    `yaml:"max_reconnect_attempts"`
	ReconnectDelayMS     int    `yaml:"reconnect_delay_ms"`
}

type PushConfig struct {
	ResultClearDelayMS int `yaml:"result_clear_delay_ms"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxEvents     int    `yaml:"max_events"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

func Default() Config {
	return Config{
		RuntimeName: "verselink-runtime",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind:           "0.0.0.0",
			Port:           8080,
			AllowedOrigins: []string{"*"},
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Bible: BibleConfig{
			Path:               "./data/bible.db",
			DefaultTranslation: "KJV",
		},
		Detector: DetectorConfig{
			Enabled:          true,
			ConsumePartials:  false,
			DebounceWindowMS: 5000,
		},
		Pending: PendingConfig{
			MaxPending: 10,
			MaxHistory: 50,
		},
		Display: DisplayConfig{
			Address:              "",
			ConnectTimeoutMS:     5000,
			ExchangeTimeoutMS:    10000,
			MaxReconnectAttempts: 5,
			ReconnectDelayMS:     2000,
		},
		Push: PushConfig{
			ResultClearDelayMS: 3000,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/verselink-events.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxEvents:     10000,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "VERSELINK_RUNTIME_NAME")
	overrideString(&cfg.Environment, "VERSELINK_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "VERSELINK_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "VERSELINK_HTTP_PORT")
	overrideStringSlice(&cfg.HTTP.AllowedOrigins, "VERSELINK_HTTP_ALLOWED_ORIGINS")
	overrideString(&cfg.Telemetry.LogLevel, "VERSELINK_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "VERSELINK_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "VERSELINK_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "VERSELINK_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Embedded, "VERSELINK_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "VERSELINK_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "VERSELINK_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "VERSELINK_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "VERSELINK_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "VERSELINK_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "VERSELINK_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "VERSELINK_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Bible.Path, "VERSELINK_BIBLE_PATH")
	overrideString(&cfg.Bible.DefaultTranslation, "VERSELINK_BIBLE_DEFAULT_TRANSLATION")
	overrideBool(&cfg.Detector.Enabled, "VERSELINK_DETECTOR_ENABLED")
	overrideBool(&cfg.Detector.ConsumePartials, "VERSELINK_DETECTOR_CONSUME_PARTIALS")
	overrideInt(&cfg.Detector.DebounceWindowMS, "VERSELINK_DETECTOR_DEBOUNCE_WINDOW_MS")
	overrideInt(&cfg.Pending.MaxPending, "VERSELINK_PENDING_MAX_PENDING")
	overrideInt(&cfg.Pending.MaxHistory, "VERSELINK_PENDING_MAX_HISTORY")
	overrideString(&cfg.Display.Address, "VERSELINK_DISPLAY_ADDRESS")
	overrideInt(&cfg.Display.ConnectTimeoutMS, "VERSELINK_DISPLAY_CONNECT_TIMEOUT_MS")
	overrideInt(&cfg.Display.ExchangeTimeoutMS, "VERSELINK_DISPLAY_EXCHANGE_TIMEOUT_MS")
	overrideInt(&cfg.Display.MaxReconnectAttempts, "VERSELINK_DISPLAY_MAX_RECONNECT_ATTEMPTS")
	overrideInt(&cfg.Display.ReconnectDelayMS, "VERSELINK_DISPLAY_RECONNECT_DELAY_MS")
	overrideInt(&cfg.Push.ResultClearDelayMS, "VERSELINK_PUSH_RESULT_CLEAR_DELAY_MS")
	overrideString(&cfg.EventStore.Path, "VERSELINK_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "VERSELINK_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "VERSELINK_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxEvents, "VERSELINK_EVENT_STORE_MAX_EVENTS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "VERSELINK_EVENT_STORE_VACUUM_ON_START")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	if cfg.Bible.Path == "" {
		return errors.New("bible.path must not be empty")
	}
	if cfg.Bible.DefaultTranslation == "" {
		return errors.New("bible.default_translation must not be empty")
	}
	if cfg.Detector.DebounceWindowMS < 0 {
		return errors.New("detector.debounce_window_ms must be >= 0")
	}
	if cfg.Pending.MaxPending <= 0 {
		return errors.New("pending.max_pending must be >= 1")
	}
	if cfg.Pending.MaxHistory < 0 {
		return errors.New("pending.max_history must be >= 0")
	}
	if err := ValidateDisplayAddress(cfg.Display.Address); err != nil {
		return err
	}
	if cfg.Display.ConnectTimeoutMS <= 0 {
		return errors.New("display.connect_timeout_ms must be positive")
	}
	if cfg.Display.ExchangeTimeoutMS <= 0 {
		return errors.New("display.exchange_timeout_ms must be positive")
	}
	if cfg.Display.MaxReconnectAttempts < 0 {
		return errors.New("display.max_reconnect_attempts must be >= 0")
	}
	if cfg.Display.ReconnectDelayMS < 0 {
		return errors.New("display.reconnect_delay_ms must be >= 0")
	}
	if cfg.Push.ResultClearDelayMS < 0 {
		return errors.New("push.result_clear_delay_ms must be >= 0")
	}
	if cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	return nil
}

// ValidateDisplayAddress rejects malformed stage display addresses before any
// connection attempt is made. An empty address is allowed: the display can be
// configured later at runtime.
func ValidateDisplayAddress(address string) error {
	if address == "" {
		return nil
	}
	u, err := url.Parse(address)
	if err != nil {
		return fmt.Errorf("display.address is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("display.address must use http or https")
	}
	if u.Host == "" {
		return errors.New("display.address must include a host")
	}
	if port := u.Port(); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil || n <= 0 || n > 65535 {
			return errors.New("display.address port must be between 1 and 65535")
		}
	}
	return nil
}
