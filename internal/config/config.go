// Package config provides YAML-based configuration for the dispatch dashboard services.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Failure policies for the positions cache.
const (
	FailurePolicyClear      = "clear"
	FailurePolicyServeStale = "serve_stale"
)

// AppConfig represents the root configuration structure
type AppConfig struct {
	Server     ServerConfig     `yaml:"server" validate:"required"`
	Logging    LoggingConfig    `yaml:"logging"`
	Positions  PositionsConfig  `yaml:"positions"`
	Records    RecordsConfig    `yaml:"records"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Watch      WatchConfig      `yaml:"watch"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port                 int    `yaml:"port" validate:"gt=0,lte=65535"`
	BindAddress          string `yaml:"bind_address"`
	EnableCORS           bool   `yaml:"enable_cors"`
	AllowOrigins         string `yaml:"allow_origins"`
	ReadTimeout          int    `yaml:"read_timeout_seconds" validate:"gte=0"`
	WriteTimeout         int    `yaml:"write_timeout_seconds" validate:"gte=0"`
	IdleTimeout          int    `yaml:"idle_timeout_seconds" validate:"gte=0"`
	BodyLimit            string `yaml:"body_limit"`
	EnableCompression    bool   `yaml:"enable_compression"`
	CompressionLevel     int    `yaml:"compression_level" validate:"gte=-1,lte=9"`
	EnableRequestLogging bool   `yaml:"enable_request_logging"`
	ExposeErrorDetails   bool   `yaml:"expose_error_details"`
}

// LoggingConfig controls the process logger.
type LoggingConfig struct {
	Level      string `yaml:"level" validate:"omitempty,oneof=DEBUG INFO WARN ERROR debug info warn error"`
	FilePath   string `yaml:"file_path"`
	MaxAgeDays int    `yaml:"max_age_days" validate:"gte=0"`
}

// Bounds is the geographic box the aircraft feed is queried for.
type Bounds struct {
	South float64 `yaml:"south" validate:"gte=-90,lte=90"`
	West  float64 `yaml:"west" validate:"gte=-180,lte=180"`
	North float64 `yaml:"north" validate:"gte=-90,lte=90,gtfield=South"`
	East  float64 `yaml:"east" validate:"gte=-180,lte=180"`
}

// PositionsConfig configures the aircraft feed and the position cache in front of it.
type PositionsConfig struct {
	FeedURL               string   `yaml:"feed_url" validate:"omitempty,url"`
	Token                 string   `yaml:"token"`
	Bounds                Bounds   `yaml:"bounds"`
	TypeCodes             []string `yaml:"type_codes"`
	CacheTTLSeconds       int      `yaml:"cache_ttl_seconds" validate:"gt=0"`
	TimeoutSeconds        int      `yaml:"timeout_seconds" validate:"gt=0"`
	FailurePolicy         string   `yaml:"failure_policy" validate:"oneof=clear serve_stale"`
	StreamIntervalSeconds int      `yaml:"stream_interval_seconds" validate:"gt=0"`
}

// RecordsConfig configures the dispatch record store (NocoDB).
type RecordsConfig struct {
	BaseURL        string `yaml:"base_url" validate:"omitempty,url"`
	APIToken       string `yaml:"api_token"`
	TableID        string `yaml:"table_id"`
	Limit          int    `yaml:"limit" validate:"gt=0,lte=1000"`
	TimeoutSeconds int    `yaml:"timeout_seconds" validate:"gt=0"`
}

// ClassifierConfig configures the chief-complaint language model call.
type ClassifierConfig struct {
	Endpoint          string `yaml:"endpoint" validate:"omitempty,url"`
	APIKey            string `yaml:"api_key"`
	Model             string `yaml:"model"`
	TimeoutSeconds    int    `yaml:"timeout_seconds" validate:"gt=0"`
	MaxFallbackLength int    `yaml:"max_fallback_length" validate:"gt=0"`
}

// WatchConfig configures the mapwatch client.
type WatchConfig struct {
	ServerURL                string `yaml:"server_url" validate:"omitempty,url"`
	PositionsIntervalSeconds int    `yaml:"positions_interval_seconds" validate:"gte=15,lte=120"`
	RecordsIntervalSeconds   int    `yaml:"records_interval_seconds" validate:"gt=0"`
	FrameRate                int    `yaml:"frame_rate" validate:"gt=0,lte=120"`
	OutputPath               string `yaml:"output_path"`
	UseMsgpack               bool   `yaml:"use_msgpack"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:                 5000,
			BindAddress:          "0.0.0.0",
			EnableCORS:           true,
			AllowOrigins:         "*",
			ReadTimeout:          30,
			WriteTimeout:         30,
			IdleTimeout:          120,
			BodyLimit:            "1M",
			EnableCompression:    true,
			CompressionLevel:     5,
			EnableRequestLogging: true,
			ExposeErrorDetails:   true,
		},
		Logging: LoggingConfig{
			Level:      "INFO",
			MaxAgeDays: 30,
		},
		Positions: PositionsConfig{
			// Indianapolis metro area.
			Bounds: Bounds{
				South: 39.4,
				West:  -86.6,
				North: 40.1,
				East:  -85.7,
			},
			CacheTTLSeconds:       60,
			TimeoutSeconds:        10,
			FailurePolicy:         FailurePolicyClear,
			StreamIntervalSeconds: 15,
		},
		Records: RecordsConfig{
			Limit:          100,
			TimeoutSeconds: 15,
		},
		Classifier: ClassifierConfig{
			Model:             "gpt-4o-mini",
			TimeoutSeconds:    10,
			MaxFallbackLength: 60,
		},
		Watch: WatchConfig{
			ServerURL:                "http://localhost:5000",
			PositionsIntervalSeconds: 15,
			RecordsIntervalSeconds:   15,
			FrameRate:                30,
			OutputPath:               "scene.geojson",
		},
	}
}

// LoadConfig loads configuration from a YAML file. A missing file is created
// with the defaults. Environment overrides are applied last and the result is validated.
func LoadConfig(configPath string) (*AppConfig, error) {
	config := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	config.applyEnvironmentOverrides()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks field constraints.
func (c *AppConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Save writes the configuration to a YAML file.
func (c *AppConfig) Save(configPath string) error {
	output, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# Dispatch dashboard configuration\n# Generated on first run; credentials may be supplied through the environment instead.\n\n")
	content := append(header, output...)

	if err := os.WriteFile(configPath, content, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		} else {
			log.Warnf("ignoring PORT=%q: %v", port, err)
		}
	}

	overrides := map[string]*string{
		"LOG_LEVEL":           &c.Logging.Level,
		"AIRCRAFT_FEED_URL":   &c.Positions.FeedURL,
		"AIRCRAFT_FEED_TOKEN": &c.Positions.Token,
		"NOCODB_BASE_URL":     &c.Records.BaseURL,
		"NOCODB_API_TOKEN":    &c.Records.APIToken,
		"NOCODB_TABLE_ID":     &c.Records.TableID,
		"LLM_ENDPOINT":        &c.Classifier.Endpoint,
		"LLM_API_KEY":         &c.Classifier.APIKey,
		"MAPWATCH_SERVER_URL": &c.Watch.ServerURL,
	}
	for name, field := range overrides {
		if v := os.Getenv(name); v != "" {
			*field = v
		}
	}
}

// GetLogLevel maps the configured level name to a logrus level. Unknown names mean INFO.
func (c *AppConfig) GetLogLevel() log.Level {
	switch c.Logging.Level {
	case "DEBUG", "debug":
		return log.DebugLevel
	case "WARN", "warn":
		return log.WarnLevel
	case "ERROR", "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// GetCacheTTL returns the positions cache lifetime.
func (c *AppConfig) GetCacheTTL() time.Duration {
	return time.Duration(c.Positions.CacheTTLSeconds) * time.Second
}

// GetFeedTimeout returns the upstream aircraft feed request timeout.
func (c *AppConfig) GetFeedTimeout() time.Duration {
	return time.Duration(c.Positions.TimeoutSeconds) * time.Second
}

// GetStreamInterval returns how often the websocket stream re-reads the cache.
func (c *AppConfig) GetStreamInterval() time.Duration {
	return time.Duration(c.Positions.StreamIntervalSeconds) * time.Second
}

// GetRecordsTimeout returns the record store request timeout.
func (c *AppConfig) GetRecordsTimeout() time.Duration {
	return time.Duration(c.Records.TimeoutSeconds) * time.Second
}

// GetClassifierTimeout returns the language model request timeout.
func (c *AppConfig) GetClassifierTimeout() time.Duration {
	return time.Duration(c.Classifier.TimeoutSeconds) * time.Second
}

// GetPositionsInterval returns the mapwatch positions poll interval.
func (c *AppConfig) GetPositionsInterval() time.Duration {
	return time.Duration(c.Watch.PositionsIntervalSeconds) * time.Second
}

// GetRecordsInterval returns the mapwatch dispatch records poll interval.
func (c *AppConfig) GetRecordsInterval() time.Duration {
	return time.Duration(c.Watch.RecordsIntervalSeconds) * time.Second
}

// GetFrameInterval returns the mapwatch repaint period.
func (c *AppConfig) GetFrameInterval() time.Duration {
	return time.Second / time.Duration(c.Watch.FrameRate)
}
