// Package config loads and validates soundbench.yml, the per-project
// description of how to build, watch, and serve a processing module.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration with YAML support for values like
// "300ms" or "2m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the top-level soundbench.yml structure.
type Config struct {
	Version string       `yaml:"version"`
	Build   BuildConfig  `yaml:"build"`
	Watch   WatchConfig  `yaml:"watch"`
	Server  ServerConfig `yaml:"server,omitempty"`
	Audio   AudioConfig  `yaml:"audio,omitempty"`

	// CacheDir holds staged module artifacts and the sidecar parameter
	// cache. Relative paths resolve against the config file location.
	CacheDir string `yaml:"cache_dir,omitempty"`

	// Dir is the directory containing the config file. Build commands
	// run from here so relative paths in them behave predictably.
	Dir string `yaml:"-"`
}

// BuildConfig describes the external build tool invocation.
type BuildConfig struct {
	Command  []string `yaml:"command"`
	Artifact string   `yaml:"artifact"`
	Timeout  Duration `yaml:"timeout,omitempty"`

	// ExtractCommand overrides the parameter-extraction subprocess.
	// Empty means the soundbench binary re-executes itself with its
	// hidden extract command.
	ExtractCommand []string `yaml:"extract_command,omitempty"`
	ExtractTimeout Duration `yaml:"extract_timeout,omitempty"`
}

// WatchConfig describes the source tree watch.
type WatchConfig struct {
	Paths      []string `yaml:"paths"`
	Debounce   Duration `yaml:"debounce,omitempty"`
	Extensions []string `yaml:"extensions,omitempty"`
}

// ServerConfig describes the control-surface endpoint.
type ServerConfig struct {
	Listen           string   `yaml:"listen,omitempty"`
	MeterInterval    Duration `yaml:"meter_interval,omitempty"`
	SpectrumInterval Duration `yaml:"spectrum_interval,omitempty"`
}

// AudioConfig describes the optional audio subsystem.
type AudioConfig struct {
	Enabled bool `yaml:"enabled"`

	// Device is "null" or "wav".
	Device  string `yaml:"device,omitempty"`
	WavPath string `yaml:"wav_path,omitempty"`

	SampleRate   float64 `yaml:"sample_rate,omitempty"`
	BufferFrames int     `yaml:"buffer_frames,omitempty"`
	Channels     int     `yaml:"channels,omitempty"`

	// Source is the test signal fed into the chain: "silence" or
	// "sine".
	Source  string  `yaml:"source,omitempty"`
	SineHz  float64 `yaml:"sine_hz,omitempty"`
	SineAmp float64 `yaml:"sine_amp,omitempty"`
}

// Defaults fills every optional field left at its zero value.
func (c *Config) Defaults() {
	if c.Build.Timeout == 0 {
		c.Build.Timeout = Duration(2 * time.Minute)
	}
	if c.Build.ExtractTimeout == 0 {
		c.Build.ExtractTimeout = Duration(30 * time.Second)
	}
	if c.Watch.Debounce == 0 {
		c.Watch.Debounce = Duration(300 * time.Millisecond)
	}
	if len(c.Watch.Extensions) == 0 {
		c.Watch.Extensions = []string{".go"}
	}
	if c.Server.Listen == "" {
		c.Server.Listen = "127.0.0.1:8765"
	}
	if c.Server.MeterInterval == 0 {
		c.Server.MeterInterval = Duration(50 * time.Millisecond)
	}
	if c.Server.SpectrumInterval == 0 {
		c.Server.SpectrumInterval = Duration(100 * time.Millisecond)
	}
	if c.Audio.Device == "" {
		c.Audio.Device = "null"
	}
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = 48000
	}
	if c.Audio.BufferFrames == 0 {
		c.Audio.BufferFrames = 512
	}
	if c.Audio.Channels == 0 {
		c.Audio.Channels = 2
	}
	if c.Audio.Source == "" {
		c.Audio.Source = "sine"
	}
	if c.CacheDir == "" {
		c.CacheDir = ".soundbench"
	}
}

// Validate performs strict validation. Called after Defaults.
func (c *Config) Validate() error {
	if c.Version != "1" {
		return fmt.Errorf("unsupported version: %q (expected: \"1\")", c.Version)
	}
	if len(c.Build.Command) == 0 {
		return fmt.Errorf("build.command is required")
	}
	if c.Build.Artifact == "" {
		return fmt.Errorf("build.artifact is required")
	}
	if len(c.Watch.Paths) == 0 {
		return fmt.Errorf("watch.paths requires at least one directory")
	}
	for _, ext := range c.Watch.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("watch.extensions entry %q must start with a dot", ext)
		}
	}
	switch c.Audio.Device {
	case "null", "wav":
	default:
		return fmt.Errorf("audio.device must be 'null' or 'wav', got %q", c.Audio.Device)
	}
	if c.Audio.Device == "wav" && c.Audio.WavPath == "" {
		return fmt.Errorf("audio.wav_path is required for the wav device")
	}
	switch c.Audio.Source {
	case "silence", "sine":
	default:
		return fmt.Errorf("audio.source must be 'silence' or 'sine', got %q", c.Audio.Source)
	}
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.sample_rate must be positive")
	}
	if c.Audio.BufferFrames <= 0 {
		return fmt.Errorf("audio.buffer_frames must be positive")
	}
	if c.Audio.Channels < 1 || c.Audio.Channels > 2 {
		return fmt.Errorf("audio.channels must be 1 or 2")
	}
	return nil
}

// Load reads, defaults, and validates a soundbench.yml. Relative watch
// paths and the cache dir are resolved against the file's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.Defaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	base := filepath.Dir(path)
	cfg.Dir = base
	for i, p := range cfg.Watch.Paths {
		if !filepath.IsAbs(p) {
			cfg.Watch.Paths[i] = filepath.Join(base, p)
		}
	}
	if !filepath.IsAbs(cfg.CacheDir) {
		cfg.CacheDir = filepath.Join(base, cfg.CacheDir)
	}
	if !filepath.IsAbs(cfg.Build.Artifact) {
		cfg.Build.Artifact = filepath.Join(base, cfg.Build.Artifact)
	}

	return &cfg, nil
}
