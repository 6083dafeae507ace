// Package netsimconfig holds daemon configuration and the discovery-file
// format clients use to find a running daemon, generalized from
// pkg/config/config.go's Config/DefaultConfig/NewLogger shape.
package netsimconfig

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds daemon-wide configuration.
type Config struct {
	LogLevel       logrus.Level  `json:"log_level"`
	GrpcPort       int           `json:"grpc_port"`
	WebPort        int           `json:"web_port"`
	CaptureDir     string        `json:"capture_dir"`
	IdleTimeout    time.Duration `json:"idle_timeout"`
	ShutdownOnIdle bool          `json:"shutdown_on_idle"`
}

// DefaultConfig returns default daemon configuration values.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:       logrus.InfoLevel,
		GrpcPort:       0, // recorded only: netsimd opens no gRPC listener and writes no grpc.port
		WebPort:        0,
		CaptureDir:     "pcaps",
		IdleTimeout:    15 * time.Second,
		ShutdownOnIdle: true,
	}
}

// NewLogger creates a configured logger instance.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.LogLevel)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return logger
}

// BeaconDefaults holds the operator-overridable advertising defaults applied
// to a BluetoothBeacon chip at creation time, before any per-request patch.
type BeaconDefaults struct {
	Mode         string `yaml:"mode"`           // low_power, balanced, low_latency
	TxPowerLevel string `yaml:"tx_power_level"` // ultra_low, low, medium, high
	Scannable    bool   `yaml:"scannable"`
}

// RadioDefaults is the daemon's secondary, YAML-shaped configuration: values
// an operator may want to override per deployment without touching the CLI
// flags on every invocation, distinct from the per-request struct-tag
// defaults internal/registry applies with mcuadros/go-defaults.
type RadioDefaults struct {
	Beacon BeaconDefaults `yaml:"beacon"`
}

// DefaultRadioDefaults returns the built-in radio defaults, used when no
// --radio-defaults file is given.
func DefaultRadioDefaults() *RadioDefaults {
	return &RadioDefaults{
		Beacon: BeaconDefaults{
			Mode:         "low_power",
			TxPowerLevel: "medium",
		},
	}
}

// LoadRadioDefaults reads and parses a YAML radio-defaults file. An empty
// path returns the built-in defaults unchanged.
func LoadRadioDefaults(path string) (*RadioDefaults, error) {
	rd := DefaultRadioDefaults()
	if path == "" {
		return rd, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("netsimconfig: read radio defaults: %w", err)
	}
	if err := yaml.Unmarshal(data, rd); err != nil {
		return nil, fmt.Errorf("netsimconfig: parse radio defaults %s: %w", path, err)
	}
	return rd, nil
}
