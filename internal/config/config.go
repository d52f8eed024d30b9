package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Data source kinds.
const (
	SourceSQL  = "sql"
	SourceHTTP = "http"
)

// Compliance window modes. "grace" bounds recovery by complianceGrace,
// "next-fault" keeps a fault open until the next distinct one.
const (
	ComplianceGraceMode     = "grace"
	ComplianceNextFaultMode = "next-fault"
)

// Config captures the settings required to boot the trainer service.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Data     DataConfig     `yaml:"data"`
	Training TrainingConfig `yaml:"training"`
	Logging  LoggingConfig  `yaml:"logging"`
	Cache    CacheConfig    `yaml:"cache"`
}

// ServerConfig controls gRPC listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// DataConfig selects where experiment runs are read from.
type DataConfig struct {
	Source string     `yaml:"source"`
	SQL    SQLConfig  `yaml:"sql"`
	HTTP   HTTPConfig `yaml:"http"`
	// Runs restricts training to these run ids; empty trains on every run.
	Runs []string `yaml:"runs"`
}

// SQLConfig configures the experiment database.
type SQLConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// HTTPConfig configures access to the mirador-core experiment APIs.
type HTTPConfig struct {
	BaseURL  string        `yaml:"baseURL"`
	RunsPath string        `yaml:"runsPath"`
	RunPath  string        `yaml:"runPath"`
	Timeout  time.Duration `yaml:"timeout"`
}

// TrainingConfig controls the search.
type TrainingConfig struct {
	Workers          int           `yaml:"workers"`
	Metric           string        `yaml:"metric"`
	Absolute         bool          `yaml:"absolute"`
	Reputation       string        `yaml:"reputation"`
	ReputationValue  float64       `yaml:"reputationValue"`
	Layers           []string      `yaml:"layers"`
	Categories       []string      `yaml:"categories"`
	ComplianceGrace  time.Duration `yaml:"complianceGrace"`
	ComplianceMode   string        `yaml:"complianceMode"`
	CandidatesPath   string        `yaml:"candidatesPath"`
	EnsemblePerLayer int           `yaml:"ensemblePerLayer"`
	PersistResults   bool          `yaml:"persistResults"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// CacheConfig controls caching of raw run payloads. Backend is "valkey" or "memory".
type CacheConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Backend      string        `yaml:"backend"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxRetries   int           `yaml:"maxRetries"`
	TLS          bool          `yaml:"tls"`
	RunTTL       time.Duration `yaml:"runTTL"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("MIRADOR_TRAINER_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	switch c.Data.Source {
	case SourceSQL:
		if c.Data.SQL.DSN == "" {
			return fmt.Errorf("data.sql.dsn is required for the sql source")
		}
	case SourceHTTP:
		if c.Data.HTTP.BaseURL == "" {
			return fmt.Errorf("data.http.baseURL is required for the http source")
		}
	default:
		return fmt.Errorf("unknown data source %q", c.Data.Source)
	}
	if c.Training.ComplianceGrace < 0 {
		return fmt.Errorf("training.complianceGrace must not be negative")
	}
	switch c.Training.ComplianceMode {
	case ComplianceGraceMode, ComplianceNextFaultMode:
	default:
		return fmt.Errorf("unknown training.complianceMode %q", c.Training.ComplianceMode)
	}
	if c.Training.CandidatesPath == "" {
		return fmt.Errorf("training.candidatesPath is required")
	}
	switch c.Cache.Backend {
	case "valkey", "memory":
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":50061",
			MetricsAddress:  ":2113",
			GracefulTimeout: 10 * time.Second,
		},
		Data: DataConfig{
			Source: SourceSQL,
			SQL:    SQLConfig{Driver: "sqlite", DSN: "data/experiments.db"},
			HTTP: HTTPConfig{
				RunsPath: "/api/v1/experiments",
				RunPath:  "/api/v1/experiments/run",
				Timeout:  10 * time.Second,
			},
		},
		Training: TrainingConfig{
			Metric:           "TP",
			Reputation:       "BETA",
			ReputationValue:  1,
			Categories:       []string{"PLAIN"},
			ComplianceMode:   ComplianceGraceMode,
			CandidatesPath:   "configs/candidates.yaml",
			EnsemblePerLayer: 3,
			PersistResults:   false,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Cache: CacheConfig{
			Enabled:      false,
			Backend:      "valkey",
			RunTTL:       30 * time.Minute,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			MaxRetries:   2,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	envString("MIRADOR_TRAINER_SERVER_ADDRESS", &cfg.Server.Address)
	envString("MIRADOR_TRAINER_METRICS_ADDRESS", &cfg.Server.MetricsAddress)

	envString("MIRADOR_TRAINER_DATA_SOURCE", &cfg.Data.Source)
	envString("MIRADOR_TRAINER_SQL_DRIVER", &cfg.Data.SQL.Driver)
	envString("MIRADOR_TRAINER_SQL_DSN", &cfg.Data.SQL.DSN)
	envString("MIRADOR_CORE_BASE_URL", &cfg.Data.HTTP.BaseURL)
	envDuration("MIRADOR_CORE_TIMEOUT", &cfg.Data.HTTP.Timeout)
	envList("MIRADOR_TRAINER_RUNS", &cfg.Data.Runs)

	envInt("MIRADOR_TRAINER_WORKERS", &cfg.Training.Workers)
	envString("MIRADOR_TRAINER_METRIC", &cfg.Training.Metric)
	envBool("MIRADOR_TRAINER_ABSOLUTE", &cfg.Training.Absolute)
	envString("MIRADOR_TRAINER_REPUTATION", &cfg.Training.Reputation)
	envList("MIRADOR_TRAINER_LAYERS", &cfg.Training.Layers)
	envList("MIRADOR_TRAINER_CATEGORIES", &cfg.Training.Categories)
	envDuration("MIRADOR_TRAINER_COMPLIANCE_GRACE", &cfg.Training.ComplianceGrace)
	envString("MIRADOR_TRAINER_COMPLIANCE_MODE", &cfg.Training.ComplianceMode)
	envString("MIRADOR_TRAINER_CANDIDATES_PATH", &cfg.Training.CandidatesPath)
	envInt("MIRADOR_TRAINER_ENSEMBLE_PER_LAYER", &cfg.Training.EnsemblePerLayer)
	envBool("MIRADOR_TRAINER_PERSIST_RESULTS", &cfg.Training.PersistResults)

	envString("MIRADOR_TRAINER_LOG_LEVEL", &cfg.Logging.Level)
	if v := os.Getenv("MIRADOR_TRAINER_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}

	envBool("MIRADOR_TRAINER_CACHE_ENABLED", &cfg.Cache.Enabled)
	envString("MIRADOR_TRAINER_CACHE_BACKEND", &cfg.Cache.Backend)
	envString("MIRADOR_TRAINER_CACHE_ADDR", &cfg.Cache.Addr)
	envString("MIRADOR_TRAINER_CACHE_USERNAME", &cfg.Cache.Username)
	envString("MIRADOR_TRAINER_CACHE_PASSWORD", &cfg.Cache.Password)
	envInt("MIRADOR_TRAINER_CACHE_DB", &cfg.Cache.DB)
	envBool("MIRADOR_TRAINER_CACHE_TLS", &cfg.Cache.TLS)
	envDuration("MIRADOR_TRAINER_CACHE_DIAL_TIMEOUT", &cfg.Cache.DialTimeout)
	envDuration("MIRADOR_TRAINER_CACHE_READ_TIMEOUT", &cfg.Cache.ReadTimeout)
	envDuration("MIRADOR_TRAINER_CACHE_WRITE_TIMEOUT", &cfg.Cache.WriteTimeout)
	envInt("MIRADOR_TRAINER_CACHE_MAX_RETRIES", &cfg.Cache.MaxRetries)
	envDuration("MIRADOR_TRAINER_CACHE_RUN_TTL", &cfg.Cache.RunTTL)
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		*dst = strings.EqualFold(v, "true") || v == "1"
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func envList(key string, dst *[]string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	*dst = out
}
