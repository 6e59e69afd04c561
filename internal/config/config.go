package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/kvpbridge/internal/endpoint"
	"github.com/banshee-data/kvpbridge/internal/joints"
	"github.com/banshee-data/kvpbridge/internal/krl"
)

// DefaultConfigPath is the example bridge configuration shipped with the repo.
const DefaultConfigPath = "config/kvpbridge.example.yaml"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Defaults applied by the Get* accessors when a field is unset.
const (
	DefaultAggregateType    = "E6AXIS"
	DefaultUnits            = "deg"
	DefaultRateHz           = 83.3
	DefaultDiagBuffer       = 16
	DefaultDiagWindow       = 512
	DefaultLogEvery         = 0
	DefaultFailureThreshold = 10
	DefaultHTTPListen       = ":8080"
	DefaultLogMaxSizeMB     = 50
	DefaultLogMaxBackups    = 5
)

// Config is the root bridge configuration. Pointer fields are optional; the
// Get* methods supply defaults for anything the file leaves out, so partial
// configs are safe.
type Config struct {
	Robot       RobotConfig       `json:"robot" yaml:"robot"`
	Joints      []string          `json:"joints" yaml:"joints"`
	Control     ControlConfig     `json:"control" yaml:"control"`
	Diagnostics DiagnosticsConfig `json:"diagnostics" yaml:"diagnostics"`
	HTTP        ListenConfig      `json:"http" yaml:"http"`
	GRPC        ListenConfig      `json:"grpc" yaml:"grpc"`
	Log         LogConfig         `json:"log" yaml:"log"`
}

// RobotConfig describes the remote controller and its variables.
type RobotConfig struct {
	Address       string  `json:"address" yaml:"address"`
	ReadVariable  *string `json:"read_variable,omitempty" yaml:"read_variable,omitempty"`
	WriteVariable *string `json:"write_variable,omitempty" yaml:"write_variable,omitempty"`
	AggregateType *string `json:"aggregate_type,omitempty" yaml:"aggregate_type,omitempty"`
	Units         *string `json:"units,omitempty" yaml:"units,omitempty"`
	IOTimeout     *string `json:"io_timeout,omitempty" yaml:"io_timeout,omitempty"`     // duration string like "250ms"
	DialTimeout   *string `json:"dial_timeout,omitempty" yaml:"dial_timeout,omitempty"` // duration string like "2s"
	// SeedCommand holds command writes until the first good state read and
	// fills untouched joints from it.
	SeedCommand *bool `json:"seed_command,omitempty" yaml:"seed_command,omitempty"`
}

// ControlConfig configures the built-in fixed-rate loop.
type ControlConfig struct {
	RateHz *float64 `json:"rate_hz,omitempty" yaml:"rate_hz,omitempty"`
}

// DiagnosticsConfig sizes the diagnostic channel and its consumers.
type DiagnosticsConfig struct {
	Buffer           *int `json:"buffer,omitempty" yaml:"buffer,omitempty"`
	Window           *int `json:"window,omitempty" yaml:"window,omitempty"`
	LogEvery         *int `json:"log_every,omitempty" yaml:"log_every,omitempty"`
	FailureThreshold *int `json:"failure_threshold,omitempty" yaml:"failure_threshold,omitempty"`
}

// ListenConfig holds a listen address. An empty HTTP address falls back to
// DefaultHTTPListen; an empty gRPC address disables the gRPC server.
type ListenConfig struct {
	Listen *string `json:"listen,omitempty" yaml:"listen,omitempty"`
}

// LogConfig configures the optional rotated log file.
type LogConfig struct {
	File       string `json:"file,omitempty" yaml:"file,omitempty"`
	MaxSizeMB  *int   `json:"max_size_mb,omitempty" yaml:"max_size_mb,omitempty"`
	MaxBackups *int   `json:"max_backups,omitempty" yaml:"max_backups,omitempty"`
}

// Dev returns a self-contained configuration for a six-axis arm on the
// in-process simulator.
func Dev() *Config {
	return &Config{
		Robot:  RobotConfig{Address: "sim://localhost"},
		Joints: []string{"joint_a1", "joint_a2", "joint_a3", "joint_a4", "joint_a5", "joint_a6"},
	}
}

// Load reads a Config from a .json, .yaml or .yml file and validates it.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if ext == ".json" {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", strings.TrimPrefix(ext, "."), err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are usable.
func (c *Config) Validate() error {
	if _, err := c.EndpointOptions().Normalize(); err != nil {
		return err
	}
	if err := joints.ValidateNames(c.Joints); err != nil {
		return err
	}
	if _, err := krl.NewCodec(c.GetAggregateType(), krl.Units(c.GetUnits())); err != nil {
		return err
	}

	if c.Robot.IOTimeout != nil && *c.Robot.IOTimeout != "" {
		d, err := time.ParseDuration(*c.Robot.IOTimeout)
		if err != nil {
			return fmt.Errorf("invalid robot.io_timeout '%s': %w", *c.Robot.IOTimeout, err)
		}
		if d < 0 {
			return fmt.Errorf("robot.io_timeout must be non-negative, got %s", d)
		}
	}
	if c.Robot.DialTimeout != nil && *c.Robot.DialTimeout != "" {
		d, err := time.ParseDuration(*c.Robot.DialTimeout)
		if err != nil {
			return fmt.Errorf("invalid robot.dial_timeout '%s': %w", *c.Robot.DialTimeout, err)
		}
		if d <= 0 {
			return fmt.Errorf("robot.dial_timeout must be positive, got %s", d)
		}
	}

	if c.Control.RateHz != nil && (*c.Control.RateHz <= 0 || *c.Control.RateHz > 1000) {
		return fmt.Errorf("control.rate_hz must be in (0, 1000], got %g", *c.Control.RateHz)
	}
	if c.Diagnostics.Buffer != nil && *c.Diagnostics.Buffer < 1 {
		return fmt.Errorf("diagnostics.buffer must be at least 1, got %d", *c.Diagnostics.Buffer)
	}
	if c.Diagnostics.Window != nil && *c.Diagnostics.Window < 1 {
		return fmt.Errorf("diagnostics.window must be at least 1, got %d", *c.Diagnostics.Window)
	}
	if c.Diagnostics.LogEvery != nil && *c.Diagnostics.LogEvery < 0 {
		return fmt.Errorf("diagnostics.log_every must be non-negative, got %d", *c.Diagnostics.LogEvery)
	}
	if c.Diagnostics.FailureThreshold != nil && *c.Diagnostics.FailureThreshold < 1 {
		return fmt.Errorf("diagnostics.failure_threshold must be at least 1, got %d", *c.Diagnostics.FailureThreshold)
	}
	if c.Log.MaxSizeMB != nil && *c.Log.MaxSizeMB < 1 {
		return errors.New("log.max_size_mb must be at least 1")
	}
	if c.Log.MaxBackups != nil && *c.Log.MaxBackups < 0 {
		return errors.New("log.max_backups must be non-negative")
	}
	return nil
}

// EndpointOptions maps the robot section onto endpoint.Options. Unset
// timeouts map to the endpoint defaults.
func (c *Config) EndpointOptions() endpoint.Options {
	return endpoint.Options{
		Address:       c.Robot.Address,
		ReadVariable:  c.GetReadVariable(),
		WriteVariable: c.GetWriteVariable(),
		DialTimeout:   c.GetDialTimeout(),
		IOTimeout:     c.GetIOTimeout(),
	}
}

// GetReadVariable returns robot.read_variable or the default.
func (c *Config) GetReadVariable() string {
	if c.Robot.ReadVariable == nil || *c.Robot.ReadVariable == "" {
		return endpoint.DefaultReadVariable
	}
	return *c.Robot.ReadVariable
}

// GetWriteVariable returns robot.write_variable or the default.
func (c *Config) GetWriteVariable() string {
	if c.Robot.WriteVariable == nil || *c.Robot.WriteVariable == "" {
		return endpoint.DefaultWriteVariable
	}
	return *c.Robot.WriteVariable
}

// GetAggregateType returns robot.aggregate_type or the default.
func (c *Config) GetAggregateType() string {
	if c.Robot.AggregateType == nil || *c.Robot.AggregateType == "" {
		return DefaultAggregateType
	}
	return *c.Robot.AggregateType
}

// GetUnits returns robot.units or the default.
func (c *Config) GetUnits() string {
	if c.Robot.Units == nil || *c.Robot.Units == "" {
		return DefaultUnits
	}
	return *c.Robot.Units
}

// GetIOTimeout parses robot.io_timeout. Zero disables the bound.
func (c *Config) GetIOTimeout() time.Duration {
	if c.Robot.IOTimeout == nil || *c.Robot.IOTimeout == "" {
		return endpoint.DefaultIOTimeout
	}
	d, err := time.ParseDuration(*c.Robot.IOTimeout)
	if err != nil {
		return endpoint.DefaultIOTimeout // default on parse error
	}
	return d
}

// GetDialTimeout parses robot.dial_timeout.
func (c *Config) GetDialTimeout() time.Duration {
	if c.Robot.DialTimeout == nil || *c.Robot.DialTimeout == "" {
		return endpoint.DefaultDialTimeout
	}
	d, err := time.ParseDuration(*c.Robot.DialTimeout)
	if err != nil {
		return endpoint.DefaultDialTimeout
	}
	return d
}

// GetSeedCommand returns robot.seed_command or false.
func (c *Config) GetSeedCommand() bool {
	return c.Robot.SeedCommand != nil && *c.Robot.SeedCommand
}

// GetRateHz returns control.rate_hz or the default.
func (c *Config) GetRateHz() float64 {
	if c.Control.RateHz == nil {
		return DefaultRateHz
	}
	return *c.Control.RateHz
}

// GetPeriod returns the control period derived from GetRateHz.
func (c *Config) GetPeriod() time.Duration {
	return time.Duration(float64(time.Second) / c.GetRateHz())
}

// GetDiagnosticsBuffer returns diagnostics.buffer or the default.
func (c *Config) GetDiagnosticsBuffer() int {
	if c.Diagnostics.Buffer == nil {
		return DefaultDiagBuffer
	}
	return *c.Diagnostics.Buffer
}

// GetDiagnosticsWindow returns diagnostics.window or the default.
func (c *Config) GetDiagnosticsWindow() int {
	if c.Diagnostics.Window == nil {
		return DefaultDiagWindow
	}
	return *c.Diagnostics.Window
}

// GetLogEvery returns diagnostics.log_every; zero logs failures only.
func (c *Config) GetLogEvery() int {
	if c.Diagnostics.LogEvery == nil {
		return DefaultLogEvery
	}
	return *c.Diagnostics.LogEvery
}

// GetFailureThreshold returns diagnostics.failure_threshold or the default.
func (c *Config) GetFailureThreshold() int {
	if c.Diagnostics.FailureThreshold == nil {
		return DefaultFailureThreshold
	}
	return *c.Diagnostics.FailureThreshold
}

// GetHTTPListen returns http.listen or the default.
func (c *Config) GetHTTPListen() string {
	if c.HTTP.Listen == nil || *c.HTTP.Listen == "" {
		return DefaultHTTPListen
	}
	return *c.HTTP.Listen
}

// GetGRPCListen returns grpc.listen; empty means disabled.
func (c *Config) GetGRPCListen() string {
	if c.GRPC.Listen == nil {
		return ""
	}
	return *c.GRPC.Listen
}

// GetLogMaxSizeMB returns log.max_size_mb or the default.
func (c *Config) GetLogMaxSizeMB() int {
	if c.Log.MaxSizeMB == nil {
		return DefaultLogMaxSizeMB
	}
	return *c.Log.MaxSizeMB
}

// GetLogMaxBackups returns log.max_backups or the default.
func (c *Config) GetLogMaxBackups() int {
	if c.Log.MaxBackups == nil {
		return DefaultLogMaxBackups
	}
	return *c.Log.MaxBackups
}
