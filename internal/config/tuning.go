// Package config loads the digitizer tuning file. Fields omitted from
// the JSON retain their defaults, so partial configs are safe.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// TuningConfig represents the root configuration for tuning parameters.
// Threshold values are raw 14-bit signed sample counts. The same JSON
// schema is accepted at startup and for threshold updates.
type TuningConfig struct {
	// Trigger channel params
	TrigExcite       *int  `json:"trig_excite,omitempty"`
	TrigRelax        *int  `json:"trig_relax,omitempty"`
	TrigLatency      *int  `json:"trig_latency,omitempty"`
	TrigDelay        *int  `json:"trig_delay,omitempty"`
	TrigBypassFilter *bool `json:"trig_bypass_filter,omitempty"`

	// ACP channel params
	ACPExcite  *int `json:"acp_excite,omitempty"`
	ACPRelax   *int `json:"acp_relax,omitempty"`
	ACPLatency *int `json:"acp_latency,omitempty"`

	// ARP channel params
	ARPExcite  *int `json:"arp_excite,omitempty"`
	ARPRelax   *int `json:"arp_relax,omitempty"`
	ARPLatency *int `json:"arp_latency,omitempty"`

	// Capture params
	Decim   *int `json:"decim,omitempty"`
	Samples *int `json:"samples,omitempty"`
}

// Helper functions to create pointers
func ptrInt(v int) *int    { return &v }
func ptrBool(v bool) *bool { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under
// the max file size.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	// Validate the config file path.
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// sampleMin and sampleMax bound threshold values to the 14-bit signed
// range the digitizer produces.
const (
	sampleMin = -8192
	sampleMax = 8191
)

func validThreshold(name string, v *int) error {
	if v == nil {
		return nil
	}
	if *v < sampleMin || *v > sampleMax {
		return fmt.Errorf("%s must be between %d and %d, got %d", name, sampleMin, sampleMax, *v)
	}
	return nil
}

func validCount(name string, v *int) error {
	if v == nil {
		return nil
	}
	if *v < 0 {
		return fmt.Errorf("%s must be non-negative, got %d", name, *v)
	}
	return nil
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	thresholds := []struct {
		name string
		v    *int
	}{
		{"trig_excite", c.TrigExcite},
		{"trig_relax", c.TrigRelax},
		{"acp_excite", c.ACPExcite},
		{"acp_relax", c.ACPRelax},
		{"arp_excite", c.ARPExcite},
		{"arp_relax", c.ARPRelax},
	}
	for _, t := range thresholds {
		if err := validThreshold(t.name, t.v); err != nil {
			return err
		}
	}

	counts := []struct {
		name string
		v    *int
	}{
		{"trig_latency", c.TrigLatency},
		{"trig_delay", c.TrigDelay},
		{"acp_latency", c.ACPLatency},
		{"arp_latency", c.ARPLatency},
	}
	for _, t := range counts {
		if err := validCount(t.name, t.v); err != nil {
			return err
		}
	}

	if c.Decim != nil && *c.Decim < 1 {
		return fmt.Errorf("decim must be positive, got %d", *c.Decim)
	}
	if c.Samples != nil && (*c.Samples < 0 || *c.Samples > 16384) {
		return fmt.Errorf("samples must be between 0 and 16384, got %d", *c.Samples)
	}

	return nil
}

// GetTrigExcite returns the trig_excite value or the default.
func (c *TuningConfig) GetTrigExcite() int {
	if c.TrigExcite == nil {
		return 3000
	}
	return *c.TrigExcite
}

// GetTrigRelax returns the trig_relax value or the default.
func (c *TuningConfig) GetTrigRelax() int {
	if c.TrigRelax == nil {
		return 500
	}
	return *c.TrigRelax
}

// GetTrigLatency returns the trig_latency value or the default.
func (c *TuningConfig) GetTrigLatency() int {
	if c.TrigLatency == nil {
		return 0
	}
	return *c.TrigLatency
}

// GetTrigDelay returns the trig_delay value or the default.
func (c *TuningConfig) GetTrigDelay() int {
	if c.TrigDelay == nil {
		return 0
	}
	return *c.TrigDelay
}

// GetTrigBypassFilter returns the trig_bypass_filter value or the default.
func (c *TuningConfig) GetTrigBypassFilter() bool {
	if c.TrigBypassFilter == nil {
		return false
	}
	return *c.TrigBypassFilter
}

// GetACPExcite returns the acp_excite value or the default.
func (c *TuningConfig) GetACPExcite() int {
	if c.ACPExcite == nil {
		return 3000
	}
	return *c.ACPExcite
}

// GetACPRelax returns the acp_relax value or the default.
func (c *TuningConfig) GetACPRelax() int {
	if c.ACPRelax == nil {
		return 500
	}
	return *c.ACPRelax
}

// GetACPLatency returns the acp_latency value or the default.
func (c *TuningConfig) GetACPLatency() int {
	if c.ACPLatency == nil {
		return 0
	}
	return *c.ACPLatency
}

// GetARPExcite returns the arp_excite value or the default.
func (c *TuningConfig) GetARPExcite() int {
	if c.ARPExcite == nil {
		return 3000
	}
	return *c.ARPExcite
}

// GetARPRelax returns the arp_relax value or the default.
func (c *TuningConfig) GetARPRelax() int {
	if c.ARPRelax == nil {
		return 500
	}
	return *c.ARPRelax
}

// GetARPLatency returns the arp_latency value or the default.
func (c *TuningConfig) GetARPLatency() int {
	if c.ARPLatency == nil {
		return 0
	}
	return *c.ARPLatency
}

// GetDecim returns the decim value or the default.
func (c *TuningConfig) GetDecim() int {
	if c.Decim == nil {
		return 1
	}
	return *c.Decim
}

// GetSamples returns the samples value or the default.
func (c *TuningConfig) GetSamples() int {
	if c.Samples == nil {
		return 3000
	}
	return *c.Samples
}
