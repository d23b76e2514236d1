package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix namespaces every environment variable read by Load
const EnvPrefix = "SCADALAB"

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server" envconfig:"SERVER"`
	Security      SecurityConfig      `yaml:"security" envconfig:"SECURITY"`
	Logging       LoggingConfig       `yaml:"logging" envconfig:"LOGGING"`
	Observability ObservabilityConfig `yaml:"observability" envconfig:"OBSERVABILITY"`
	Processing    ProcessingConfig    `yaml:"processing" envconfig:"PROCESSING"`
	Paths         PathsConfig         `yaml:"paths" envconfig:"PATHS"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port             int           `yaml:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout      time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout     time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"60s"`
	IdleTimeout      time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	MaxHeaderBytes   int           `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES" default:"1048576"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	OperationTimeout time.Duration `yaml:"operation_timeout" envconfig:"OPERATION_TIMEOUT" default:"5m"`
}

// SecurityConfig contains request-shaping configuration
type SecurityConfig struct {
	MaxBodyBytes int64           `yaml:"max_body_bytes" envconfig:"MAX_BODY_BYTES" default:"10485760"`
	RateLimit    RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" default:"100"`
	Burst   int     `yaml:"burst" envconfig:"BURST" default:"50"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Format      string `yaml:"format" envconfig:"FORMAT" default:"json"`
	Output      string `yaml:"output" envconfig:"OUTPUT" default:"console"`
	FilePath    string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/scadalab.log"`
	Development bool   `yaml:"development" envconfig:"DEVELOPMENT" default:"false"`
}

// ObservabilityConfig controls tracing and metrics export
type ObservabilityConfig struct {
	ServiceName    string  `yaml:"service_name" envconfig:"SERVICE_NAME" default:"scadalab"`
	Environment    string  `yaml:"environment" envconfig:"ENVIRONMENT" default:"development"`
	TracingEnabled bool    `yaml:"tracing_enabled" envconfig:"TRACING_ENABLED" default:"false"`
	MetricsEnabled bool    `yaml:"metrics_enabled" envconfig:"METRICS_ENABLED" default:"true"`
	SampleRate     float64 `yaml:"sample_rate" envconfig:"SAMPLE_RATE" default:"1.0"`
}

// ProcessingConfig carries the tunables of the processing pipeline. Every
// field is handed to the component that needs it at construction time.
type ProcessingConfig struct {
	TimestampCandidates []string `yaml:"timestamp_candidates" envconfig:"TIMESTAMP_CANDIDATES" default:"timestamp,time,datetime,date,ts"`
	MinSeriesColumns    int      `yaml:"min_series_columns" envconfig:"MIN_SERIES_COLUMNS" default:"1"`
	GapMultiplier       float64  `yaml:"gap_multiplier" envconfig:"GAP_MULTIPLIER" default:"5.0"`
	MaxMissingRatio     float64  `yaml:"max_missing_ratio" envconfig:"MAX_MISSING_RATIO" default:"0.95"`
	DisabledMethods     []string `yaml:"disabled_methods" envconfig:"DISABLED_METHODS"`
	SyncGridPolicy      string   `yaml:"sync_grid_policy" envconfig:"SYNC_GRID_POLICY" default:"intersection"`
	MaxGridPoints       int      `yaml:"max_grid_points" envconfig:"MAX_GRID_POINTS" default:"1000000"`
	ParseDates          bool     `yaml:"parse_dates" envconfig:"PARSE_DATES" default:"true"`
	MaxConcurrentLoads  int      `yaml:"max_concurrent_loads" envconfig:"MAX_CONCURRENT_LOADS" default:"4"`
	MaxInputBytes       int64    `yaml:"max_input_bytes" envconfig:"MAX_INPUT_BYTES" default:"536870912"`
}

// PathsConfig contains file system paths configuration
type PathsConfig struct {
	DataDir   string `yaml:"data_dir" envconfig:"DATA_DIR" default:"data"`
	OutputDir string `yaml:"output_dir" envconfig:"OUTPUT_DIR" default:"output"`
	LogsDir   string `yaml:"logs_dir" envconfig:"LOGS_DIR" default:"logs"`
}

// Load loads configuration from environment variables and an optional YAML
// file. An explicit path wins over the well-known locations.
func Load(configPath string) (*Config, error) {
	var cfg Config

	// Load from environment variables first
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	configFile := configPath
	if configFile == "" {
		configFile = getConfigFilePath()
	}
	if configFile != "" {
		if _, err := os.Stat(configFile); err != nil {
			if configPath != "" {
				return nil, fmt.Errorf("config file %s: %w", configFile, err)
			}
		} else {
			fileConfig, err := loadFromFile(configFile)
			if err != nil {
				return nil, fmt.Errorf("failed to load config from file: %w", err)
			}
			cfg = mergeConfigs(*fileConfig, cfg, envSet)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadFromFile loads configuration from YAML file
func loadFromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// envSet reports whether an environment variable under the prefix is present
func envSet(key string) bool {
	_, ok := os.LookupEnv(EnvPrefix + "_" + key)
	return ok
}

// mergeConfigs overlays file values onto the env-derived config. Env wins
// whenever the variable was explicitly set; otherwise a non-zero file value
// replaces the envconfig default.
func mergeConfigs(fileConfig, envConfig Config, isSet func(string) bool) Config {
	out := envConfig

	mergeInt(&out.Server.Port, fileConfig.Server.Port, isSet("SERVER_PORT"))
	mergeDuration(&out.Server.ReadTimeout, fileConfig.Server.ReadTimeout, isSet("SERVER_READ_TIMEOUT"))
	mergeDuration(&out.Server.WriteTimeout, fileConfig.Server.WriteTimeout, isSet("SERVER_WRITE_TIMEOUT"))
	mergeDuration(&out.Server.IdleTimeout, fileConfig.Server.IdleTimeout, isSet("SERVER_IDLE_TIMEOUT"))
	mergeDuration(&out.Server.ShutdownTimeout, fileConfig.Server.ShutdownTimeout, isSet("SERVER_SHUTDOWN_TIMEOUT"))
	mergeDuration(&out.Server.OperationTimeout, fileConfig.Server.OperationTimeout, isSet("SERVER_OPERATION_TIMEOUT"))

	if fileConfig.Security.MaxBodyBytes > 0 && !isSet("SECURITY_MAX_BODY_BYTES") {
		out.Security.MaxBodyBytes = fileConfig.Security.MaxBodyBytes
	}
	mergeFloat(&out.Security.RateLimit.RPS, fileConfig.Security.RateLimit.RPS, isSet("SECURITY_RATE_LIMIT_RPS"))
	mergeInt(&out.Security.RateLimit.Burst, fileConfig.Security.RateLimit.Burst, isSet("SECURITY_RATE_LIMIT_BURST"))

	mergeString(&out.Logging.Level, fileConfig.Logging.Level, isSet("LOGGING_LEVEL"))
	mergeString(&out.Logging.Output, fileConfig.Logging.Output, isSet("LOGGING_OUTPUT"))
	mergeString(&out.Logging.FilePath, fileConfig.Logging.FilePath, isSet("LOGGING_FILE_PATH"))

	mergeString(&out.Observability.ServiceName, fileConfig.Observability.ServiceName, isSet("OBSERVABILITY_SERVICE_NAME"))
	mergeString(&out.Observability.Environment, fileConfig.Observability.Environment, isSet("OBSERVABILITY_ENVIRONMENT"))
	if fileConfig.Observability.TracingEnabled && !isSet("OBSERVABILITY_TRACING_ENABLED") {
		out.Observability.TracingEnabled = true
	}

	p := &out.Processing
	fp := fileConfig.Processing
	if len(fp.TimestampCandidates) > 0 && !isSet("PROCESSING_TIMESTAMP_CANDIDATES") {
		p.TimestampCandidates = fp.TimestampCandidates
	}
	if len(fp.DisabledMethods) > 0 && !isSet("PROCESSING_DISABLED_METHODS") {
		p.DisabledMethods = fp.DisabledMethods
	}
	mergeInt(&p.MinSeriesColumns, fp.MinSeriesColumns, isSet("PROCESSING_MIN_SERIES_COLUMNS"))
	mergeFloat(&p.GapMultiplier, fp.GapMultiplier, isSet("PROCESSING_GAP_MULTIPLIER"))
	mergeFloat(&p.MaxMissingRatio, fp.MaxMissingRatio, isSet("PROCESSING_MAX_MISSING_RATIO"))
	mergeString(&p.SyncGridPolicy, fp.SyncGridPolicy, isSet("PROCESSING_SYNC_GRID_POLICY"))
	mergeInt(&p.MaxGridPoints, fp.MaxGridPoints, isSet("PROCESSING_MAX_GRID_POINTS"))
	mergeInt(&p.MaxConcurrentLoads, fp.MaxConcurrentLoads, isSet("PROCESSING_MAX_CONCURRENT_LOADS"))
	if fp.MaxInputBytes > 0 && !isSet("PROCESSING_MAX_INPUT_BYTES") {
		p.MaxInputBytes = fp.MaxInputBytes
	}

	mergeString(&out.Paths.DataDir, fileConfig.Paths.DataDir, isSet("PATHS_DATA_DIR"))
	mergeString(&out.Paths.OutputDir, fileConfig.Paths.OutputDir, isSet("PATHS_OUTPUT_DIR"))
	mergeString(&out.Paths.LogsDir, fileConfig.Paths.LogsDir, isSet("PATHS_LOGS_DIR"))

	return out
}

func mergeInt(dst *int, v int, envWins bool) {
	if v != 0 && !envWins {
		*dst = v
	}
}

func mergeFloat(dst *float64, v float64, envWins bool) {
	if v != 0 && !envWins {
		*dst = v
	}
}

func mergeString(dst *string, v string, envWins bool) {
	if v != "" && !envWins {
		*dst = v
	}
}

func mergeDuration(dst *time.Duration, v time.Duration, envWins bool) {
	if v != 0 && !envWins {
		*dst = v
	}
}

// validate validates the configuration
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}

	switch c.Logging.Output {
	case "console", "file", "both":
	default:
		return fmt.Errorf("invalid logging output %q", c.Logging.Output)
	}

	if c.Logging.Format != "json" {
		c.Logging.Format = "json"
	}

	if c.Processing.GapMultiplier <= 0 {
		return fmt.Errorf("gap multiplier must be positive, got %g", c.Processing.GapMultiplier)
	}

	if c.Processing.MaxMissingRatio < 0 || c.Processing.MaxMissingRatio > 1 {
		return fmt.Errorf("max missing ratio must be in [0,1], got %g", c.Processing.MaxMissingRatio)
	}

	policy := strings.ToLower(c.Processing.SyncGridPolicy)
	if policy != "intersection" && policy != "union" {
		return fmt.Errorf("invalid sync grid policy %q", c.Processing.SyncGridPolicy)
	}
	c.Processing.SyncGridPolicy = policy

	if c.Processing.MaxGridPoints < 2 {
		return fmt.Errorf("max grid points must be at least 2")
	}

	if c.Processing.MaxConcurrentLoads <= 0 {
		c.Processing.MaxConcurrentLoads = 1
	}

	return nil
}

// LogFilePath resolves the log file against the logs directory
func (c *Config) LogFilePath() string {
	if filepath.IsAbs(c.Logging.FilePath) || filepath.Dir(c.Logging.FilePath) != "." {
		return c.Logging.FilePath
	}
	return filepath.Join(c.Paths.LogsDir, c.Logging.FilePath)
}

// getConfigFilePath returns the path to the config file
func getConfigFilePath() string {
	locations := []string{
		"config.yaml",
		"configs/config.yaml",
		"../configs/config.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return ""
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:             8080,
			ReadTimeout:      15 * time.Second,
			WriteTimeout:     60 * time.Second,
			IdleTimeout:      60 * time.Second,
			MaxHeaderBytes:   1 << 20, // 1MB
			ShutdownTimeout:  30 * time.Second,
			OperationTimeout: 5 * time.Minute,
		},
		Security: SecurityConfig{
			MaxBodyBytes: 10 << 20,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     100,
				Burst:   50,
			},
		},
		Logging: LoggingConfig{
			Level:    DefaultLogLevel,
			Format:   DefaultLogFormat,
			Output:   "console",
			FilePath: "logs/scadalab.log",
		},
		Observability: ObservabilityConfig{
			ServiceName:    "scadalab",
			Environment:    "development",
			MetricsEnabled: true,
			SampleRate:     1.0,
		},
		Processing: ProcessingConfig{
			TimestampCandidates: []string{"timestamp", "time", "datetime", "date", "ts"},
			MinSeriesColumns:    1,
			GapMultiplier:       5.0,
			MaxMissingRatio:     0.95,
			SyncGridPolicy:      "intersection",
			MaxGridPoints:       1_000_000,
			ParseDates:          true,
			MaxConcurrentLoads:  4,
			MaxInputBytes:       MaxInputFileSize,
		},
		Paths: PathsConfig{
			DataDir:   "data",
			OutputDir: "output",
			LogsDir:   "logs",
		},
	}
}
