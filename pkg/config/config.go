// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config provides YAML-based configuration loading for the sensor
// board and its ground tools.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/soar-avionics/sob/pkg/sobproto"
)

// Task priority bounds accepted by the scheduler
const (
	minPriority = 0
	maxPriority = 15
)

// Config is the root application configuration.
type Config struct {
	// Node is this board's bus identity (rcu, dmb, pbb, sob)
	Node string `mapstructure:"node"`

	Link      LinkConfig      `mapstructure:"link"`
	Tasks     TasksConfig     `mapstructure:"tasks"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	LoadCell  LoadCellConfig  `mapstructure:"load_cell"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
	Log       LogConfig       `mapstructure:"log"`
}

// LinkConfig selects the serial transport. Exactly one of Port or URL is used;
// URL wins when both are set.
type LinkConfig struct {
	Port           string `mapstructure:"port"`
	Baud           int    `mapstructure:"baud"`
	URL            string `mapstructure:"url"`
	Username       string `mapstructure:"username"`
	NoSSLVerify    bool   `mapstructure:"no_ssl_verify"`
	RxBufferBytes  int    `mapstructure:"rx_buffer_bytes"`
	TxBufferBytes  int    `mapstructure:"tx_buffer_bytes"`
	InterByteGapMs int    `mapstructure:"inter_byte_gap_ms"`
}

// TaskConfig holds scheduling parameters for one task
type TaskConfig struct {
	QueueDepth int `mapstructure:"queue_depth"`
	Priority   int `mapstructure:"priority"`
	StackWords int `mapstructure:"stack_words"`
}

// TasksConfig holds per-task scheduling parameters
type TasksConfig struct {
	Protocol     TaskConfig `mapstructure:"protocol"`
	LoadCell     TaskConfig `mapstructure:"load_cell"`
	Thermocouple TaskConfig `mapstructure:"thermocouple"`
	IR           TaskConfig `mapstructure:"ir"`
	Telemetry    TaskConfig `mapstructure:"telemetry"`
}

// TelemetryConfig controls the periodic logging task
type TelemetryConfig struct {
	PeriodMs  int    `mapstructure:"period_ms"`
	Target    string `mapstructure:"target"`
	IncludeIR bool   `mapstructure:"include_ir"`
}

// LoadCellConfig controls load cell averaging and polling
type LoadCellConfig struct {
	TareSamples    int `mapstructure:"tare_samples"`
	SampleAverage  int `mapstructure:"sample_average"`
	PollIntervalMs int `mapstructure:"poll_interval_ms"`
}

// MQTTConfig controls forwarding of received telemetry to a broker
type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	BrokerURL   string `mapstructure:"broker_url"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	ClientID    string `mapstructure:"client_id"`
	QoS         int    `mapstructure:"qos"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format: console or json
	Format string `mapstructure:"format"`
	// Outputs: list of outputs: stdout, stderr, or file paths
	Outputs []string `mapstructure:"outputs"`

	Rotation    RotationConfig `mapstructure:"rotation"`
	Development bool           `mapstructure:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
	Enable     bool   `mapstructure:"enable"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// Default returns a Config populated with the board defaults.
func Default() *Config {
	return &Config{
		Node: "sob",
		Link: LinkConfig{
			Baud:           115200,
			RxBufferBytes:  255,
			TxBufferBytes:  258,
			InterByteGapMs: 50,
		},
		Tasks: TasksConfig{
			Protocol:     TaskConfig{QueueDepth: 10, Priority: 3, StackWords: 512},
			LoadCell:     TaskConfig{QueueDepth: 10, Priority: 2, StackWords: 1024},
			Thermocouple: TaskConfig{QueueDepth: 10, Priority: 2, StackWords: 512},
			IR:           TaskConfig{QueueDepth: 10, Priority: 2, StackWords: 512},
			Telemetry:    TaskConfig{QueueDepth: 10, Priority: 2, StackWords: 512},
		},
		Telemetry: TelemetryConfig{
			PeriodMs:  500,
			Target:    "rcu",
			IncludeIR: false,
		},
		LoadCell: LoadCellConfig{
			TareSamples:    10,
			SampleAverage:  10,
			PollIntervalMs: 25,
		},
		MQTT: MQTTConfig{
			Enabled:     false,
			BrokerURL:   "tcp://localhost:1883",
			TopicPrefix: "soar",
			ClientID:    "sob-ground",
			QoS:         0,
		},
		Log: LogConfig{
			Level:   "info",
			Format:  "console",
			Outputs: []string{"stderr"},
			Rotation: RotationConfig{
				Enable:     false,
				Filename:   "logs/sob.log",
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
	}
}

// Load reads configuration from the provided path (if non-empty),
// otherwise it searches common locations and supports environment overrides.
// Environment variables use the prefix SOB and `.`/`-` are replaced with `_`.
// Example: SOB_LINK_PORT=/dev/ttyUSB0
//
// The link is not validated here; callers apply flag overrides first and
// then call Validate.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("SOB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v, cfg)

	if path == "" {
		if envPath := os.Getenv("SOB_CONFIG"); envPath != "" {
			path = envPath
		}
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("sob")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".sob"))
		}
	}

	// Read config file if present; if not found, continue with defaults/env
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// seed defaults for viper so env-only configs work
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("node", cfg.Node)

	v.SetDefault("link.port", cfg.Link.Port)
	v.SetDefault("link.baud", cfg.Link.Baud)
	v.SetDefault("link.url", cfg.Link.URL)
	v.SetDefault("link.username", cfg.Link.Username)
	v.SetDefault("link.no_ssl_verify", cfg.Link.NoSSLVerify)
	v.SetDefault("link.rx_buffer_bytes", cfg.Link.RxBufferBytes)
	v.SetDefault("link.tx_buffer_bytes", cfg.Link.TxBufferBytes)
	v.SetDefault("link.inter_byte_gap_ms", cfg.Link.InterByteGapMs)

	tasks := map[string]TaskConfig{
		"protocol":     cfg.Tasks.Protocol,
		"load_cell":    cfg.Tasks.LoadCell,
		"thermocouple": cfg.Tasks.Thermocouple,
		"ir":           cfg.Tasks.IR,
		"telemetry":    cfg.Tasks.Telemetry,
	}
	for name, tc := range tasks {
		v.SetDefault("tasks."+name+".queue_depth", tc.QueueDepth)
		v.SetDefault("tasks."+name+".priority", tc.Priority)
		v.SetDefault("tasks."+name+".stack_words", tc.StackWords)
	}

	v.SetDefault("telemetry.period_ms", cfg.Telemetry.PeriodMs)
	v.SetDefault("telemetry.target", cfg.Telemetry.Target)
	v.SetDefault("telemetry.include_ir", cfg.Telemetry.IncludeIR)

	v.SetDefault("load_cell.tare_samples", cfg.LoadCell.TareSamples)
	v.SetDefault("load_cell.sample_average", cfg.LoadCell.SampleAverage)
	v.SetDefault("load_cell.poll_interval_ms", cfg.LoadCell.PollIntervalMs)

	v.SetDefault("mqtt.enabled", cfg.MQTT.Enabled)
	v.SetDefault("mqtt.broker_url", cfg.MQTT.BrokerURL)
	v.SetDefault("mqtt.topic_prefix", cfg.MQTT.TopicPrefix)
	v.SetDefault("mqtt.client_id", cfg.MQTT.ClientID)
	v.SetDefault("mqtt.qos", cfg.MQTT.QoS)

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.filename", cfg.Log.Rotation.Filename)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)
}

// Validate checks the whole configuration, including the link.
func (c *Config) Validate() error {
	if err := c.validate(); err != nil {
		return err
	}
	return c.Link.Validate()
}

// Validate checks that a transport is selected.
func (l LinkConfig) Validate() error {
	if strings.TrimSpace(l.Port) == "" && strings.TrimSpace(l.URL) == "" {
		return errors.New("no link configured: set link.port or link.url")
	}
	if l.URL == "" && l.Baud <= 0 {
		return fmt.Errorf("invalid link.baud: %d", l.Baud)
	}
	return nil
}

func (c *Config) validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Log.Level)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stderr"}
	}

	if _, err := c.NodeID(); err != nil {
		return fmt.Errorf("invalid node: %w", err)
	}
	if _, err := c.TelemetryTarget(); err != nil {
		return fmt.Errorf("invalid telemetry.target: %w", err)
	}
	if c.Telemetry.PeriodMs <= 0 || c.Telemetry.PeriodMs > 0xFFFF {
		return fmt.Errorf("invalid telemetry.period_ms: %d", c.Telemetry.PeriodMs)
	}

	tasks := []struct {
		name string
		tc   TaskConfig
	}{
		{"protocol", c.Tasks.Protocol},
		{"load_cell", c.Tasks.LoadCell},
		{"thermocouple", c.Tasks.Thermocouple},
		{"ir", c.Tasks.IR},
		{"telemetry", c.Tasks.Telemetry},
	}
	for _, t := range tasks {
		if t.tc.QueueDepth <= 0 {
			return fmt.Errorf("invalid tasks.%s.queue_depth: %d", t.name, t.tc.QueueDepth)
		}
		if t.tc.Priority < minPriority || t.tc.Priority > maxPriority {
			return fmt.Errorf("invalid tasks.%s.priority: %d", t.name, t.tc.Priority)
		}
		if t.tc.StackWords <= 0 || t.tc.StackWords > 0xFFFF {
			return fmt.Errorf("invalid tasks.%s.stack_words: %d", t.name, t.tc.StackWords)
		}
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return fmt.Errorf("invalid mqtt.qos: %d", c.MQTT.QoS)
	}
	if c.MQTT.Enabled && strings.TrimSpace(c.MQTT.BrokerURL) == "" {
		return errors.New("mqtt.enabled requires mqtt.broker_url")
	}
	return nil
}

// NodeID returns the configured bus identity
func (c *Config) NodeID() (sobproto.Node, error) {
	return sobproto.ParseNode(c.Node)
}

// TelemetryTarget returns the node telemetry is sent to
func (c *Config) TelemetryTarget() (sobproto.Node, error) {
	return sobproto.ParseNode(c.Telemetry.Target)
}
