// Package config loads and saves the console settings.
//
// Settings live in armctl.json in the working directory, or in a YAML file
// when the path ends in .yaml or .yml. Values from a .env file and ARMCTL_*
// environment variables override whatever the file says.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/gwillem/armctl/pkg/motion"
)

const DefaultConfigFile = "armctl.json"

// Defaults used when the file and the environment leave a field out. A
// field that is present keeps its value, zero included.
const (
	DefaultPort        = "/dev/ttyUSB0"
	DefaultBaud        = 115200
	DefaultSpeed       = motion.DefaultSpeed
	DefaultStepDelayMs = int(motion.DefaultStepDelay / time.Millisecond)
	DefaultRampSteps   = motion.DefaultRampSteps
	DefaultLogLevel    = "info"
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("invalid config")

// Config holds the console configuration
type Config struct {
	Port        string `json:"port" yaml:"port"`
	Baud        int    `json:"baud" yaml:"baud"`
	Speed       int    `json:"speed" yaml:"speed"`
	StepDelayMs int    `json:"step_delay_ms" yaml:"step_delay_ms"`
	RampSteps   int    `json:"ramp_steps" yaml:"ramp_steps"`
	LogLevel    string `json:"log_level" yaml:"log_level"`
	LogFile     string `json:"log_file,omitempty" yaml:"log_file,omitempty"`
	MonitorAddr string `json:"monitor_addr,omitempty" yaml:"monitor_addr,omitempty"`
}

// Defaults returns a config with every field at its default.
func Defaults() *Config {
	return &Config{
		Port:        DefaultPort,
		Baud:        DefaultBaud,
		Speed:       DefaultSpeed,
		StepDelayMs: DefaultStepDelayMs,
		RampSteps:   DefaultRampSteps,
		LogLevel:    DefaultLogLevel,
	}
}

// StepDelay returns the pause between ramp steps.
func (c *Config) StepDelay() time.Duration {
	return time.Duration(c.StepDelayMs) * time.Millisecond
}

// Validate checks every field.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Port) == "":
		return fmt.Errorf("%w: port is empty", ErrInvalid)
	case c.Baud <= 0:
		return fmt.Errorf("%w: baud %d", ErrInvalid, c.Baud)
	case c.Speed < 0:
		return fmt.Errorf("%w: speed %d is negative", ErrInvalid, c.Speed)
	case c.StepDelayMs < 0:
		return fmt.Errorf("%w: step delay %dms is negative", ErrInvalid, c.StepDelayMs)
	case c.RampSteps < 1:
		return fmt.Errorf("%w: ramp steps %d", ErrInvalid, c.RampSteps)
	}
	if !isOff(c.LogLevel) {
		if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
			return fmt.Errorf("%w: log level %q", ErrInvalid, c.LogLevel)
		}
	}
	return nil
}

// LoadFrom reads path on top of the defaults and applies environment
// overrides. A missing file is not an error.
func LoadFrom(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(path, data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	// .env is optional
	_ = godotenv.Load()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveTo saves configuration to a specific file
func (c *Config) SaveTo(path string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Exists returns true if the config file at path exists
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func decode(path string, data []byte, cfg *Config) error {
	if isYAML(path) {
		return yaml.Unmarshal(data, cfg)
	}
	return json.Unmarshal(data, cfg)
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func isOff(level string) bool {
	return level == "off" || level == "none"
}

func (c *Config) applyEnv() {
	c.Port = getEnv("ARMCTL_PORT", c.Port)
	c.Baud = getEnvAsInt("ARMCTL_BAUD", c.Baud)
	c.Speed = getEnvAsInt("ARMCTL_SPEED", c.Speed)
	c.StepDelayMs = getEnvAsInt("ARMCTL_STEP_DELAY_MS", c.StepDelayMs)
	c.RampSteps = getEnvAsInt("ARMCTL_RAMP_STEPS", c.RampSteps)
	c.LogLevel = getEnv("ARMCTL_LOG_LEVEL", c.LogLevel)
	c.LogFile = getEnv("ARMCTL_LOG_FILE", c.LogFile)
	c.MonitorAddr = getEnv("ARMCTL_MONITOR_ADDR", c.MonitorAddr)
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return v
}
