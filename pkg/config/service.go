package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/NotCoffee418/sml_smart_meter/pkg/pathing"
	"github.com/NotCoffee418/sml_smart_meter/pkg/publisher"
	"github.com/NotCoffee418/sml_smart_meter/pkg/smlframe"
	"github.com/sirupsen/logrus"
)

type Err string

func (e Err) Error() string {
	return string(e)
}

const ErrInvalidConfig = Err("invalid configuration")

var (
	ActiveReaderConfig         *ReaderConfig
	ActiveMeterCollectorConfig *MeterCollectorConfig
)

func DefaultReaderConfig() *ReaderConfig {
	return &ReaderConfig{
		SerialDevice:             "/dev/ttyUSB0",
		Baudrate:                 9600,
		FrameCapacity:            smlframe.DefaultCapacity,
		PublishEveryFrames:       60,
		VerifyCRC:                false,
		InactivityTimeoutSeconds: 60,
		ListenAddress:            "0.0.0.0",
		ListenPort:               9039,
		DeviceName:               "sml-meter",
		LogLevel:                 "info",
		MQTTPort:                 1883,
		MQTTBaseTopic:            "sml_meter",
	}
}

func DefaultMeterCollectorConfig() *MeterCollectorConfig {
	return &MeterCollectorConfig{
		ReaderAPIHost: "localhost:9039",
		LogLevel:      "info",
	}
}

func LoadReaderConfig() error {
	if err := pathing.EnsureConfigDir(); err != nil {
		return err
	}
	cfg, err := LoadReaderConfigFrom(filepath.Join(pathing.GetConfigDir(), "sml_reader.toml"))
	if err != nil {
		return err
	}
	ActiveReaderConfig = cfg
	return nil
}

func LoadMeterCollectorConfig() error {
	if err := pathing.EnsureConfigDir(); err != nil {
		return err
	}
	cfg, err := LoadMeterCollectorConfigFrom(filepath.Join(pathing.GetConfigDir(), "meter_collector.toml"))
	if err != nil {
		return err
	}
	ActiveMeterCollectorConfig = cfg
	return nil
}

// LoadReaderConfigFrom reads configPath, writing the defaults there first
// if it does not exist. Keys missing from the file keep their defaults.
func LoadReaderConfigFrom(configPath string) (*ReaderConfig, error) {
	cfg := DefaultReaderConfig()
	if err := loadOrCreate(configPath, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func LoadMeterCollectorConfigFrom(configPath string) (*MeterCollectorConfig, error) {
	cfg := DefaultMeterCollectorConfig()
	if err := loadOrCreate(configPath, cfg); err != nil {
		return nil, err
	}
	if cfg.ReaderAPIHost == "" {
		return nil, fmt.Errorf("%w: reader_api_host is empty", ErrInvalidConfig)
	}
	return cfg, nil
}

func loadOrCreate(configPath string, cfg any) error {
	// Create default if not exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfgFile, err := os.Create(configPath)
		if err != nil {
			return err
		}
		defer cfgFile.Close()
		if err := toml.NewEncoder(cfgFile).Encode(cfg); err != nil {
			return fmt.Errorf("writing default config %s: %w", configPath, err)
		}
		return nil
	}

	// Load existing config
	if _, err := toml.DecodeFile(configPath, cfg); err != nil {
		return fmt.Errorf("reading config %s: %w", configPath, err)
	}
	return nil
}

func (c *ReaderConfig) Validate() error {
	if c.SerialDevice == "" {
		return fmt.Errorf("%w: serial_device is empty", ErrInvalidConfig)
	}
	if c.Baudrate == 0 {
		return fmt.Errorf("%w: baudrate is zero", ErrInvalidConfig)
	}
	if c.FrameCapacity < smlframe.MinCapacity || c.FrameCapacity > smlframe.MaxCapacity {
		return fmt.Errorf("%w: frame_capacity %d outside %d..%d",
			ErrInvalidConfig, c.FrameCapacity, smlframe.MinCapacity, smlframe.MaxCapacity)
	}
	if c.PublishEveryFrames < 1 {
		return fmt.Errorf("%w: publish_every_frames must be at least 1", ErrInvalidConfig)
	}
	if c.InactivityTimeoutSeconds < 0 {
		return fmt.Errorf("%w: inactivity_timeout_seconds is negative", ErrInvalidConfig)
	}
	if c.ListenPort < 0 || c.ListenPort > 65535 {
		return fmt.Errorf("%w: listen_port %d", ErrInvalidConfig, c.ListenPort)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: log_level: %v", ErrInvalidConfig, err)
	}
	return nil
}

func (c *ReaderConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.ListenAddress, c.ListenPort)
}

func (c *ReaderConfig) InactivityTimeout() time.Duration {
	return time.Duration(c.InactivityTimeoutSeconds) * time.Second
}

func (c *ReaderConfig) Influx() publisher.InfluxConfig {
	return publisher.InfluxConfig{
		URL:    c.InfluxURL,
		Token:  c.InfluxToken,
		Org:    c.InfluxOrg,
		Bucket: c.InfluxBucket,
	}
}

func (c *ReaderConfig) MQTT() publisher.MQTTConfig {
	return publisher.MQTTConfig{
		Host:      c.MQTTHost,
		Port:      c.MQTTPort,
		Username:  c.MQTTUsername,
		Password:  c.MQTTPassword,
		BaseTopic: c.MQTTBaseTopic,
	}
}

// ParseLogLevel falls back to info for unknown names.
func ParseLogLevel(name string) logrus.Level {
	level, err := logrus.ParseLevel(name)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}
