// Package config loads control-plane settings with ENV > YAML file > defaults precedence.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig is the strict YAML overlay shape. Unknown fields are rejected.
type FileConfig struct {
	DataDir  string `yaml:"dataDir,omitempty"`
	LogLevel string `yaml:"logLevel,omitempty"`

	Server   ServerFileConfig   `yaml:"server,omitempty"`
	Encoder  EncoderFileConfig  `yaml:"encoder,omitempty"`
	Admission AdmissionFileConfig `yaml:"admission,omitempty"`
	Ingest   IngestFileConfig   `yaml:"ingest,omitempty"`
}

type ServerFileConfig struct {
	ListenAddr     string   `yaml:"listenAddr,omitempty"`
	MetricsAddr    string   `yaml:"metricsAddr,omitempty"`
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty"`
}

type EncoderFileConfig struct {
	Bin         string `yaml:"bin,omitempty"`
	StopTimeout string `yaml:"stopTimeout,omitempty"`
}

type AdmissionFileConfig struct {
	MaxConcurrentStreams int `yaml:"maxConcurrentStreams,omitempty"`
}

type IngestFileConfig struct {
	BaseURL string `yaml:"baseUrl,omitempty"`
}

// AppConfig is the fully resolved runtime configuration.
type AppConfig struct {
	DataDir  string
	LogLevel string
	LogService string

	ListenAddr     string
	MetricsAddr    string
	AllowedOrigins []string

	EncoderBin     string
	EncoderStopTimeout time.Duration

	MaxConcurrentStreams int

	IngestBaseURL string

	DBPath string

	HealthTickInterval time.Duration
	TelemetryInterval  time.Duration

	TracingEnabled  bool
	TracingEndpoint string
}

// Loader loads configuration from a YAML file overlaid with environment variables.
type Loader struct {
	configPath string
}

// NewLoader creates a Loader that reads the optional YAML file at configPath
// ("" disables the file overlay).
func NewLoader(configPath string) *Loader {
	return &Loader{configPath: configPath}
}

// Load resolves configuration with precedence ENV > file > defaults.
func (l *Loader) Load() (AppConfig, error) {
	cfg := l.defaults()

	if l.configPath != "" {
		fileCfg, err := l.loadFile(l.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		l.mergeFile(&cfg, fileCfg)
	}

	l.mergeEnv(&cfg)

	if abs, err := filepath.Abs(cfg.DataDir); err == nil {
		cfg.DataDir = abs
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "streamctl.db")
	}

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (l *Loader) defaults() AppConfig {
	return AppConfig{
		DataDir:              "./data",
		LogLevel:             "info",
		LogService:           "streamctl",
		ListenAddr:           ":8080",
		MetricsAddr:          ":9090",
		EncoderBin:           "ffmpeg",
		EncoderStopTimeout:   10 * time.Second,
		MaxConcurrentStreams: 4,
		HealthTickInterval:   10 * time.Second,
		TelemetryInterval:    2 * time.Second,
	}
}

func (l *Loader) loadFile(path string) (*FileConfig, error) {
	path = filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var fileCfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fileCfg); err != nil {
		if err == io.EOF {
			return &FileConfig{}, nil
		}
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(new(struct{})); err != io.EOF {
		return nil, fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return &fileCfg, nil
}

func (l *Loader) mergeFile(dst *AppConfig, src *FileConfig) {
	if src.DataDir != "" {
		dst.DataDir = expandEnv(src.DataDir)
	}
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
	if src.Server.ListenAddr != "" {
		dst.ListenAddr = src.Server.ListenAddr
	}
	if src.Server.MetricsAddr != "" {
		dst.MetricsAddr = src.Server.MetricsAddr
	}
	if len(src.Server.AllowedOrigins) > 0 {
		dst.AllowedOrigins = src.Server.AllowedOrigins
	}
	if src.Encoder.Bin != "" {
		dst.EncoderBin = expandEnv(src.Encoder.Bin)
	}
	if src.Encoder.StopTimeout != "" {
		if d, err := time.ParseDuration(src.Encoder.StopTimeout); err == nil {
			dst.EncoderStopTimeout = d
		}
	}
	if src.Admission.MaxConcurrentStreams > 0 {
		dst.MaxConcurrentStreams = src.Admission.MaxConcurrentStreams
	}
	if src.Ingest.BaseURL != "" {
		dst.IngestBaseURL = expandEnv(src.Ingest.BaseURL)
	}
}

func (l *Loader) mergeEnv(cfg *AppConfig) {
	cfg.DataDir = ParseString("STREAMCTL_DATA_DIR", cfg.DataDir)
	cfg.LogLevel = ParseString("STREAMCTL_LOG_LEVEL", cfg.LogLevel)
	cfg.LogService = ParseString("STREAMCTL_LOG_SERVICE", cfg.LogService)

	cfg.ListenAddr = ParseString("STREAMCTL_LISTEN_ADDR", cfg.ListenAddr)
	cfg.MetricsAddr = ParseString("STREAMCTL_METRICS_ADDR", cfg.MetricsAddr)
	if origins := ParseString("STREAMCTL_ALLOWED_ORIGINS", ""); origins != "" {
		cfg.AllowedOrigins = splitComma(origins)
	}

	cfg.EncoderBin = ParseString("STREAMCTL_ENCODER_BIN", cfg.EncoderBin)
	cfg.EncoderStopTimeout = ParseDuration("STREAMCTL_ENCODER_STOP_TIMEOUT", cfg.EncoderStopTimeout)

	cfg.MaxConcurrentStreams = ParseInt("STREAMCTL_MAX_CONCURRENT_STREAMS", cfg.MaxConcurrentStreams)

	cfg.IngestBaseURL = ParseString("STREAMCTL_INGEST_BASE_URL", cfg.IngestBaseURL)

	cfg.DBPath = ParseString("STREAMCTL_DB_PATH", cfg.DBPath)

	cfg.HealthTickInterval = ParseDuration("STREAMCTL_HEALTH_TICK_INTERVAL", cfg.HealthTickInterval)
	cfg.TelemetryInterval = ParseDuration("STREAMCTL_TELEMETRY_INTERVAL", cfg.TelemetryInterval)

	cfg.TracingEnabled = ParseBool("STREAMCTL_TRACING_ENABLED", cfg.TracingEnabled)
	cfg.TracingEndpoint = ParseString("STREAMCTL_TRACING_ENDPOINT", cfg.TracingEndpoint)
}

func splitComma(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// String renders the config with secrets masked, safe to log.
func (c AppConfig) String() string {
	return fmt.Sprintf(
		"AppConfig{DataDir:%s LogLevel:%s ListenAddr:%s MetricsAddr:%s EncoderBin:%s MaxConcurrentStreams:%d IngestBaseURL:%s DBPath:%s TracingEnabled:%t TracingEndpoint:%s}",
		c.DataDir, c.LogLevel, c.ListenAddr, c.MetricsAddr, c.EncoderBin, c.MaxConcurrentStreams, maskURL(c.IngestBaseURL), c.DBPath, c.TracingEnabled, c.TracingEndpoint,
	)
}

// maskURL redacts userinfo from a URL so credentials never reach logs.
func maskURL(u string) string {
	if u == "" {
		return u
	}
	if idx := strings.Index(u, "@"); idx != -1 {
		schemeIdx := strings.Index(u, "://")
		if schemeIdx != -1 && schemeIdx < idx {
			return u[:schemeIdx+3] + "***" + u[idx:]
		}
	}
	return u
}
