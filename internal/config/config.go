package config

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vango-dev/dataverse/internal/errors"
	"github.com/vango-dev/dataverse/pkg/frame"
)

const (
	// ConfigFileName is the name of the YAML configuration file.
	ConfigFileName = "dataverse.yaml"

	// JSONConfigFileName is the name of the JSON configuration file.
	JSONConfigFileName = "dataverse.json"

	// DefaultInspectorAddr is the default inspector listen address.
	DefaultInspectorAddr = "localhost:7070"

	// DefaultMetricsNamespace is the default Prometheus namespace.
	DefaultMetricsNamespace = "dataverse"

	// DefaultTracerName is the default OpenTelemetry tracer name.
	DefaultTracerName = "github.com/vango-dev/dataverse"

	// DefaultTraceExporter disables span export.
	DefaultTraceExporter = "none"

	// DefaultLogLevel is the default log level.
	DefaultLogLevel = "info"
)

// fileNames lists the configuration files Load looks for, in order.
var fileNames = []string{ConfigFileName, "dataverse.yml", JSONConfigFileName}

// Config represents the complete dataverse configuration.
type Config struct {
	// Loop contains frame loop configuration.
	Loop LoopConfig `json:"loop" yaml:"loop"`

	// Inspector contains inspector server configuration.
	Inspector InspectorConfig `json:"inspector" yaml:"inspector"`

	// Metrics contains Prometheus configuration.
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`

	// Tracing contains OpenTelemetry configuration.
	Tracing TracingConfig `json:"tracing" yaml:"tracing"`

	// Log contains logging configuration.
	Log LogConfig `json:"log" yaml:"log"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// LoopConfig contains frame loop settings.
type LoopConfig struct {
	// FPS is the number of frames per second.
	FPS int `json:"fps,omitempty" yaml:"fps,omitempty"`

	// DispatchBuffer is the capacity of the dispatch queue.
	DispatchBuffer int `json:"dispatchBuffer,omitempty" yaml:"dispatchBuffer,omitempty"`
}

// InspectorConfig contains inspector server settings.
type InspectorConfig struct {
	// Enabled starts the inspector with the serve command.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Addr is the address to listen on.
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"`
}

// MetricsConfig contains Prometheus settings.
type MetricsConfig struct {
	Namespace string `json:"namespace,omitempty" yaml:"namespace,omitempty"`
}

// TracingConfig contains OpenTelemetry settings.
type TracingConfig struct {
	// TracerName is the instrumentation name of tick spans.
	TracerName string `json:"tracerName,omitempty" yaml:"tracerName,omitempty"`

	// SkipIdle suppresses spans for ticks with nothing to do.
	SkipIdle bool `json:"skipIdle,omitempty" yaml:"skipIdle,omitempty"`

	// Exporter is "none" or "stdout".
	Exporter string `json:"exporter,omitempty" yaml:"exporter,omitempty"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	// Level is one of debug, info, warn or error.
	Level string `json:"level,omitempty" yaml:"level,omitempty"`
}

// New creates a new Config with default values.
func New() *Config {
	return &Config{
		Loop: LoopConfig{
			FPS:            frame.DefaultFPS,
			DispatchBuffer: frame.DefaultDispatchBuffer,
		},
		Inspector: InspectorConfig{
			Enabled: true,
			Addr:    DefaultInspectorAddr,
		},
		Metrics: MetricsConfig{
			Namespace: DefaultMetricsNamespace,
		},
		Tracing: TracingConfig{
			TracerName: DefaultTracerName,
			SkipIdle:   true,
			Exporter:   DefaultTraceExporter,
		},
		Log: LogConfig{
			Level: DefaultLogLevel,
		},
	}
}

// Load reads configuration from the specified directory. It looks for
// dataverse.yaml, dataverse.yml and dataverse.json, in that order.
func Load(dir string) (*Config, error) {
	path, ok := Find(dir)
	if !ok {
		return nil, errors.New("DV100").
			WithDetail("No dataverse.yaml or dataverse.json found in " + dir).
			WithSuggestion("Run 'dataverse config init' to create one")
	}
	return LoadFile(path)
}

// Find returns the configuration file in dir, if any.
func Find(dir string) (string, bool) {
	for _, name := range fileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}
	return "", false
}

// LoadFile reads configuration from the specified file path. The format
// is chosen by extension: .yaml and .yml are YAML, anything else is JSON.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("DV100").
				WithDetail("No configuration file at " + path).
				WithSuggestion("Run 'dataverse config init' to create one")
		}
		return nil, errors.New("DV102").Wrap(err)
	}

	cfg, err := Parse(data, isYAML(path))
	if err != nil {
		return nil, errors.New("DV102").
			WithDetail("Failed to parse " + filepath.Base(path) + ": " + err.Error()).
			WithLocationFromError(path, err).
			Wrap(err)
	}
	cfg.configPath = path
	return cfg, nil
}

// Parse decodes a configuration document over the defaults.
func Parse(data []byte, asYAML bool) (*Config, error) {
	cfg := New()
	var err error
	if asYAML {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

// Save writes the configuration to the file it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.Newf(errors.CategoryConfig, "no config path set")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration to the specified path, as YAML or JSON
// depending on the extension.
func (c *Config) SaveTo(path string) error {
	data, err := c.Marshal(isYAML(path))
	if err != nil {
		return errors.New("DV103").Wrap(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.New("DV103").Wrap(err)
	}
	c.configPath = path
	return nil
}

// Marshal encodes the configuration as YAML or indented JSON.
func (c *Config) Marshal(asYAML bool) ([]byte, error) {
	if asYAML {
		return yaml.Marshal(c)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	if c.Loop.FPS == 0 {
		c.Loop.FPS = frame.DefaultFPS
	}
	if c.Loop.DispatchBuffer == 0 {
		c.Loop.DispatchBuffer = frame.DefaultDispatchBuffer
	}
	if c.Inspector.Addr == "" {
		c.Inspector.Addr = DefaultInspectorAddr
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = DefaultMetricsNamespace
	}
	if c.Tracing.TracerName == "" {
		c.Tracing.TracerName = DefaultTracerName
	}
	if c.Tracing.Exporter == "" {
		c.Tracing.Exporter = DefaultTraceExporter
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Loop.FPS < 1 || c.Loop.FPS > frame.MaxFPS {
		return errors.New("DV101").
			WithDetail("loop.fps is " + strconv.Itoa(c.Loop.FPS) + "; it must be between 1 and " + strconv.Itoa(frame.MaxFPS))
	}
	if c.Loop.DispatchBuffer < 1 {
		return errors.New("DV101").
			WithDetail("loop.dispatchBuffer must be positive")
	}
	switch c.Tracing.Exporter {
	case "none", "stdout":
	default:
		return errors.New("DV101").
			WithDetail("tracing.exporter is " + strconv.Quote(c.Tracing.Exporter)).
			WithSuggestion("Use none or stdout")
	}
	if _, ok := parseLevel(c.Log.Level); !ok {
		return errors.New("DV101").
			WithDetail("log.level is " + strconv.Quote(c.Log.Level)).
			WithSuggestion("Use one of debug, info, warn or error")
	}
	return nil
}

// SlogLevel returns the configured log level. Unknown levels map to info.
func (c *Config) SlogLevel() slog.Level {
	level, _ := parseLevel(c.Log.Level)
	return level
}

func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// LoadFromWorkingDir loads configuration from the current working directory.
// A missing file yields the defaults.
func LoadFromWorkingDir() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	if _, ok := Find(wd); !ok {
		return New(), nil
	}
	return Load(wd)
}
