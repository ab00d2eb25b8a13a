// Package config loads the YAML configuration of rpcd.
//
//	log:
//	  level: info
//	  development: false
//	codec: json            # json | msgpack
//	max_frame_size: 65536
//	registry:
//	  listen: ":7070"
//	  etcd:
//	    endpoints: ["127.0.0.1:2379"]
//	    lease_ttl: 10
//	topic:
//	  listen: ":7080"
//	metrics:
//	  listen: ":9100"
//
// Missing fields keep their defaults; unknown fields are an error.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mini-jsonrpc/codec"
	"mini-jsonrpc/protocol"
	"os"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Log          LogConfig      `yaml:"log"`
	Codec        string         `yaml:"codec"`
	MaxFrameSize int            `yaml:"max_frame_size"`
	Registry     RegistryConfig `yaml:"registry"`
	Topic        TopicConfig    `yaml:"topic"`
	Metrics      MetricsConfig  `yaml:"metrics"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

type RegistryConfig struct {
	Listen string     `yaml:"listen"`
	Etcd   EtcdConfig `yaml:"etcd"`
}

// EtcdConfig enables the etcd mirror of the registry when Endpoints is set.
type EtcdConfig struct {
	Endpoints []string `yaml:"endpoints"`
	LeaseTTL  int64    `yaml:"lease_ttl"`
}

type TopicConfig struct {
	Listen string `yaml:"listen"`
}

// MetricsConfig exposes Prometheus metrics on Listen; empty disables it.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

func Default() *Config {
	return &Config{
		Log:          LogConfig{Level: "info"},
		Codec:        "json",
		MaxFrameSize: protocol.DefaultMaxFrameSize,
		Registry: RegistryConfig{
			Listen: ":7070",
			Etcd:   EtcdConfig{LeaseTTL: 10},
		},
		Topic:   TopicConfig{Listen: ":7080"},
		Metrics: MetricsConfig{Listen: ":9100"},
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: log.level: %w", err)
	}
	if _, err := codec.ParseCodecType(c.Codec); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.MaxFrameSize <= 0 {
		return fmt.Errorf("config: max_frame_size must be positive, got %d", c.MaxFrameSize)
	}
	if len(c.Registry.Etcd.Endpoints) > 0 && c.Registry.Etcd.LeaseTTL <= 0 {
		return fmt.Errorf("config: registry.etcd.lease_ttl must be positive, got %d", c.Registry.Etcd.LeaseTTL)
	}
	return nil
}

// CodecType is the validated codec selection.
func (c *Config) CodecType() codec.CodecType {
	ct, _ := codec.ParseCodecType(c.Codec)
	return ct
}
