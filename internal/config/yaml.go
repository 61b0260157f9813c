// SPDX-License-Identifier: MIT
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFile reads a YAML config file over the defaults. Fields absent from
// the file keep their default values.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
	}

	cfg := NewConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %q: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is within supported limits.
func (c *Config) Validate() error {
	if c.SampleRate < MinSampleRate || c.SampleRate > MaxSampleRate {
		return fmt.Errorf("sample rate %.0f outside supported range [%d, %d]",
			c.SampleRate, MinSampleRate, MaxSampleRate)
	}
	if c.Channels < 1 {
		return fmt.Errorf("channel count must be at least 1, got %d", c.Channels)
	}
	if c.Duration <= 0 {
		return fmt.Errorf("render duration must be positive, got %s", c.Duration)
	}
	return nil
}
