package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the nanowork configuration file.
type Config struct {
	Policy  string       `yaml:"policy"` // v1, v2, node or tracker
	Cache   int          `yaml:"cache"`
	Metrics string       `yaml:"metrics"` // listen address of the prometheus endpoint, empty to disable
	CPU     CPUConfig    `yaml:"cpu"`
	OpenCL  OpenCLConfig `yaml:"opencl"`
	Remote  RemoteConfig `yaml:"remote"`
	Node    NodeConfig   `yaml:"node"`
}

type CPUConfig struct {
	Enabled bool  `yaml:"enabled"`
	Threads int32 `yaml:"threads"`
}

type OpenCLConfig struct {
	Enabled        bool  `yaml:"enabled"`
	Platform       int32 `yaml:"platform"`
	Device         int32 `yaml:"device"`
	GlobalWorkSize int32 `yaml:"global_work_size"`
}

type RemoteConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	User    string `yaml:"user"`
	APIKey  string `yaml:"api_key"`
	Timeout int32  `yaml:"timeout"`
}

type NodeConfig struct {
	Enabled   bool   `yaml:"enabled"` // use work_generate of the node
	RPC       string `yaml:"rpc"`
	Websocket string `yaml:"websocket"`
}

// DefaultConfig returns the config used without a config file: CPU only with
// the epoch v2 thresholds.
func DefaultConfig() *Config {
	return &Config{
		Policy: "v2",
		Cache:  1024,
		CPU: CPUConfig{
			Enabled: true,
		},
		Node: NodeConfig{
			RPC:       "http://127.0.0.1:7076",
			Websocket: "ws://127.0.0.1:7078",
		},
	}
}

// LoadConfig reads a YAML config file on top of the defaults. An empty path
// returns the defaults.
func LoadConfig(path string) (*Config, error) {
	conf := DefaultConfig()
	if len(path) == 0 {
		return conf, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, conf); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// Validate checks that the enabled backends have what they need.
func (c *Config) Validate() error {
	switch c.Policy {
	case "v1", "v2", "node", "tracker":
	default:
		return fmt.Errorf("unknown policy %q", c.Policy)
	}
	if !c.CPU.Enabled && !c.OpenCL.Enabled && !c.Remote.Enabled && !c.Node.Enabled {
		return fmt.Errorf("no backend enabled")
	}
	if c.Cache < 0 {
		return fmt.Errorf("cache size must not be negative")
	}
	return nil
}
