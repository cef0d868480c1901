package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Source backends.
const (
	SourceAuto      = "auto"
	SourcePortAudio = "portaudio"
	SourcePipeWire  = "pipewire"
	SourceSynthetic = "synthetic"
)

// Storage backends.
const (
	BackendLocal = "local"
	BackendS3    = "s3"
	BackendGCS   = "gcs"
)

const maxClips = 99

type DefinitionsConfig struct {
	Sources []SourceDefinition `mapstructure:"sources" yaml:"sources"`
}

type SourceDefinition struct {
	ID      string  `mapstructure:"id" yaml:"id"`
	Backend string  `mapstructure:"backend" yaml:"backend"`
	Device  string  `mapstructure:"device" yaml:"device,omitempty"`
	ToneHz  float64 `mapstructure:"tone_hz" yaml:"tone_hz,omitempty"`
}

type SourceReference struct {
	Ref    string   `mapstructure:"ref" yaml:"ref"`
	Device *string  `mapstructure:"device,omitempty" yaml:"device,omitempty"`
	ToneHz *float64 `mapstructure:"tone_hz,omitempty" yaml:"tone_hz,omitempty"`
}

type GlobalsConfig struct {
	Output GlobalOutputConfig `mapstructure:"output" yaml:"output"`
}

type GlobalOutputConfig struct {
	Directory string `mapstructure:"directory" yaml:"directory"`
	Backend   string `mapstructure:"backend" yaml:"backend"`
	Bucket    string `mapstructure:"bucket" yaml:"bucket"`
}

type RootConfig struct {
	ActiveConfig string                    `mapstructure:"active_config" yaml:"active_config"`
	Globals      *GlobalsConfig            `mapstructure:"globals,omitempty" yaml:"globals,omitempty"`
	Audio        *AudioConfig              `mapstructure:"audio,omitempty" yaml:"audio,omitempty"`
	Definitions  *DefinitionsConfig        `mapstructure:"definitions,omitempty" yaml:"definitions,omitempty"`
	Configs      map[string]*ConfigProfile `mapstructure:"configs" yaml:"configs"`
}

type Config struct {
	Audio   AudioConfig   `mapstructure:"audio" yaml:"audio"`
	Source  SourceConfig  `mapstructure:"source" yaml:"source"`
	Session SessionConfig `mapstructure:"session" yaml:"session"`
	Output  OutputConfig  `mapstructure:"output" yaml:"output"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`

	// Internal field to track inheritance information for info command
	Inheritance *InheritanceInfo `mapstructure:"-" yaml:"-"`
}

type ConfigProfile struct {
	Audio   AudioConfig      `mapstructure:"audio" yaml:"audio"`
	Source  *SourceReference `mapstructure:"source,omitempty" yaml:"source,omitempty"`
	Session SessionConfig    `mapstructure:"session" yaml:"session"`
	Output  OutputConfig     `mapstructure:"output" yaml:"output"`
	Log     LogConfig        `mapstructure:"log" yaml:"log"`
}

type InheritanceInfo struct {
	Audio struct {
		SampleRate string // "inherited" or "profile-specific"
		ChunkSize  string
	}
	Source  string
	Session struct {
		Clips          string
		Duration       string
		InterClipDelay string
		DeadlineMargin string
	}
	Output struct {
		Backend   string
		Directory string
		Prefix    string
	}
}

type AudioConfig struct {
	SampleRate int `mapstructure:"sample_rate" yaml:"sample_rate"`
	ChunkSize  int `mapstructure:"chunk_size" yaml:"chunk_size"` // samples per transfer
}

type SourceConfig struct {
	ID      string  `mapstructure:"id" yaml:"id"`
	Backend string  `mapstructure:"backend" yaml:"backend"` // "portaudio", "pipewire", "synthetic", "auto"
	Device  string  `mapstructure:"device" yaml:"device,omitempty"`
	ToneHz  float64 `mapstructure:"tone_hz" yaml:"tone_hz,omitempty"`
}

type SessionConfig struct {
	Clips          int           `mapstructure:"clips" yaml:"clips"`
	Duration       time.Duration `mapstructure:"duration" yaml:"duration"`
	InterClipDelay time.Duration `mapstructure:"inter_clip_delay" yaml:"inter_clip_delay"`
	// DeadlineMargin is added to Duration to form the capture deadline.
	DeadlineMargin time.Duration `mapstructure:"deadline_margin" yaml:"deadline_margin"`
}

type OutputConfig struct {
	Backend   string `mapstructure:"backend" yaml:"backend"` // "local", "s3", "gcs"
	Directory string `mapstructure:"directory" yaml:"directory"`
	Prefix    string `mapstructure:"prefix" yaml:"prefix"`
	Bucket    string `mapstructure:"bucket" yaml:"bucket,omitempty"`
	Region    string `mapstructure:"region" yaml:"region,omitempty"`
}

type LogConfig struct {
	File       string `mapstructure:"file" yaml:"file,omitempty"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb,omitempty"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups,omitempty"`
}

// Default returns the built-in configuration used when no file exists.
func Default() *Config {
	return &Config{
		Audio: AudioConfig{
			SampleRate: 48000,
			ChunkSize:  960, // 20 ms at 48 kHz
		},
		Source: SourceConfig{
			ID:      "default",
			Backend: SourceAuto,
			ToneHz:  440,
		},
		Session: SessionConfig{
			Clips:          5,
			Duration:       5 * time.Second,
			InterClipDelay: time.Second,
			DeadlineMargin: 2 * time.Second,
		},
		Output: OutputConfig{
			Backend:   BackendLocal,
			Directory: filepath.Join(os.Getenv("HOME"), "Audio", "cliplog"),
			Prefix:    "CLIP",
		},
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// TargetSamples is the number of samples in one clip.
func (c *Config) TargetSamples() int {
	return int(int64(c.Audio.SampleRate) * int64(c.Session.Duration) / int64(time.Second))
}

// Deadline is the maximum time one capture session may take.
func (c *Config) Deadline() time.Duration {
	return c.Session.Duration + c.Session.DeadlineMargin
}

// maxClipSamples is the most 16-bit mono samples a RIFF size field can hold.
const maxClipSamples = (math.MaxUint32 - 36) / 2

// ClipBytes is the size of one full clip file.
func (c *Config) ClipBytes() uint64 {
	return 44 + 2*uint64(c.TargetSamples())
}

// LoadWithProfile loads configFile and resolves profile (or the file's
// active_config). A missing file yields the built-in defaults.
func LoadWithProfile(configFile, profile string) (*Config, error) {
	if configFile == "" {
		return nil, fmt.Errorf("no config file specified, use --config flag")
	}

	if _, err := os.Stat(configFile); errors.Is(err, os.ErrNotExist) {
		if profile != "" && profile != "default" {
			return nil, fmt.Errorf("configuration profile '%s' not found: %s does not exist", profile, configFile)
		}
		cfg := mergeConfigs(Default(), &Config{})
		cfg.Output.Directory = expandPath(cfg.Output.Directory)
		return cfg, cfg.Validate()
	}

	// Validate configuration format first
	rootConfig, err := ValidateConfigurationFormat(configFile)
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	// Determine which config to use
	configName := profile
	if configName == "" {
		configName = rootConfig.ActiveConfig
	}
	if configName == "" {
		configName = "default"
	}

	selectedConfig := &Config{}
	if selectedProfile, exists := rootConfig.Configs[configName]; exists {
		selectedConfig, err = convertProfileToConfig(selectedProfile, rootConfig.Definitions)
		if err != nil {
			return nil, fmt.Errorf("error resolving configuration profile '%s': %w", configName, err)
		}
	} else if configName != "default" {
		return nil, fmt.Errorf("configuration profile '%s' not found", configName)
	}

	// Shared audio settings apply below every profile
	base := Default()
	if rootConfig.Audio != nil {
		if rootConfig.Audio.SampleRate != 0 {
			base.Audio.SampleRate = rootConfig.Audio.SampleRate
		}
		if rootConfig.Audio.ChunkSize != 0 {
			base.Audio.ChunkSize = rootConfig.Audio.ChunkSize
		}
	}

	// Merge with default profile if it exists and we're not already using it
	if configName != "default" {
		if defaultProfile, exists := rootConfig.Configs["default"]; exists {
			defaultConfig, err := convertProfileToConfig(defaultProfile, rootConfig.Definitions)
			if err != nil {
				return nil, fmt.Errorf("error resolving default configuration: %w", err)
			}
			base = mergeConfigs(base, defaultConfig)
		}
	}
	selectedConfig = mergeConfigs(base, selectedConfig)

	// Global output settings take precedence over profiles
	if rootConfig.Globals != nil {
		g := rootConfig.Globals.Output
		if g.Directory != "" {
			selectedConfig.Output.Directory = g.Directory
		}
		if g.Backend != "" {
			selectedConfig.Output.Backend = g.Backend
		}
		if g.Bucket != "" {
			selectedConfig.Output.Bucket = g.Bucket
		}
	}

	if selectedConfig.Output.Backend == BackendLocal {
		selectedConfig.Output.Directory = expandPath(selectedConfig.Output.Directory)
	}
	selectedConfig.Log.File = expandPath(selectedConfig.Log.File)

	if err := selectedConfig.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return selectedConfig, nil
}

// UpdateActiveConfig updates the active_config field in the config file
func UpdateActiveConfig(configFile, newActiveConfig string) error {
	if configFile == "" {
		return fmt.Errorf("no config file specified")
	}

	rootConfig, err := ValidateConfigurationFormat(configFile)
	if err != nil {
		return err
	}
	if _, ok := rootConfig.Configs[newActiveConfig]; !ok && newActiveConfig != "default" {
		return fmt.Errorf("configuration profile '%s' not found", newActiveConfig)
	}

	// Create a new viper instance to avoid interfering with the global one
	v := viper.New()
	v.SetConfigFile(configFile)

	// Read current config
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	// Update the active_config field
	v.Set("active_config", newActiveConfig)

	// Write back to file
	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("error writing config file %s: %w", configFile, err)
	}

	return nil
}

// WriteDefault writes a starter configuration file. It refuses to
// overwrite an existing file.
func WriteDefault(configFile string) error {
	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file %s already exists", configFile)
	}

	d := Default()
	root := RootConfig{
		ActiveConfig: "default",
		Audio:        &d.Audio,
		Globals: &GlobalsConfig{Output: GlobalOutputConfig{
			Directory: "~/Audio/cliplog",
		}},
		Definitions: &DefinitionsConfig{Sources: []SourceDefinition{
			{ID: "mic", Backend: SourceAuto},
			{ID: "tone", Backend: SourceSynthetic, ToneHz: 440},
		}},
		Configs: map[string]*ConfigProfile{
			"default": {
				Source:  &SourceReference{Ref: "mic"},
				Session: d.Session,
				Output:  OutputConfig{Backend: BackendLocal, Prefix: d.Output.Prefix},
			},
			"test": {
				Source:  &SourceReference{Ref: "tone"},
				Session: SessionConfig{Clips: 2, Duration: time.Second},
			},
		},
	}

	out, err := yaml.Marshal(root)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil {
		return err
	}
	return os.WriteFile(configFile, out, 0o644)
}

// convertProfileToConfig converts a ConfigProfile to Config by resolving the source reference
func convertProfileToConfig(profile *ConfigProfile, definitions *DefinitionsConfig) (*Config, error) {
	if profile == nil {
		return nil, fmt.Errorf("profile cannot be nil")
	}

	config := &Config{
		Audio:   profile.Audio,
		Session: profile.Session,
		Output:  profile.Output,
		Log:     profile.Log,
	}

	if profile.Source == nil {
		return config, nil
	}

	ref := profile.Source
	if ref.Ref == "" {
		return nil, fmt.Errorf("source: 'ref' is required")
	}

	definition := findDefinition(definitions, ref.Ref)
	if definition == nil {
		return nil, fmt.Errorf("source: reference '%s' not found in definitions", ref.Ref)
	}

	config.Source = SourceConfig{
		ID:      definition.ID,
		Backend: definition.Backend,
		Device:  definition.Device,
		ToneHz:  definition.ToneHz,
	}

	// Apply overrides
	if ref.Device != nil {
		config.Source.Device = *ref.Device
	}
	if ref.ToneHz != nil {
		config.Source.ToneHz = *ref.ToneHz
	}

	return config, nil
}

func findDefinition(definitions *DefinitionsConfig, id string) *SourceDefinition {
	if definitions == nil {
		return nil
	}
	for i := range definitions.Sources {
		if definitions.Sources[i].ID == id {
			return &definitions.Sources[i]
		}
	}
	return nil
}

// mergeConfigs overlays profile on base. Zero values in profile inherit
// the base value, so an explicit zero (e.g. inter_clip_delay: 0) cannot
// override a non-zero base.
func mergeConfigs(base, profile *Config) *Config {
	result := &Config{}
	result.Inheritance = &InheritanceInfo{}
	inh := result.Inheritance

	if base != nil {
		result.Audio = base.Audio
		result.Source = base.Source
		result.Session = base.Session
		result.Output = base.Output
		result.Log = base.Log

		inh.Audio.SampleRate = "inherited"
		inh.Audio.ChunkSize = "inherited"
		inh.Source = "inherited"
		inh.Session.Clips = "inherited"
		inh.Session.Duration = "inherited"
		inh.Session.InterClipDelay = "inherited"
		inh.Session.DeadlineMargin = "inherited"
		inh.Output.Backend = "inherited"
		inh.Output.Directory = "inherited"
		inh.Output.Prefix = "inherited"
	}

	if profile == nil {
		return result
	}

	if profile.Audio.SampleRate != 0 {
		result.Audio.SampleRate = profile.Audio.SampleRate
		inh.Audio.SampleRate = "profile-specific"
	}
	if profile.Audio.ChunkSize != 0 {
		result.Audio.ChunkSize = profile.Audio.ChunkSize
		inh.Audio.ChunkSize = "profile-specific"
	}

	if profile.Source.ID != "" {
		result.Source = profile.Source
		inh.Source = "profile-specific"
	}

	if profile.Session.Clips != 0 {
		result.Session.Clips = profile.Session.Clips
		inh.Session.Clips = "profile-specific"
	}
	if profile.Session.Duration != 0 {
		result.Session.Duration = profile.Session.Duration
		inh.Session.Duration = "profile-specific"
	}
	if profile.Session.InterClipDelay != 0 {
		result.Session.InterClipDelay = profile.Session.InterClipDelay
		inh.Session.InterClipDelay = "profile-specific"
	}
	if profile.Session.DeadlineMargin != 0 {
		result.Session.DeadlineMargin = profile.Session.DeadlineMargin
		inh.Session.DeadlineMargin = "profile-specific"
	}

	if profile.Output.Backend != "" {
		result.Output.Backend = profile.Output.Backend
		inh.Output.Backend = "profile-specific"
	}
	if profile.Output.Directory != "" {
		result.Output.Directory = profile.Output.Directory
		inh.Output.Directory = "profile-specific"
	}
	if profile.Output.Prefix != "" {
		result.Output.Prefix = profile.Output.Prefix
		inh.Output.Prefix = "profile-specific"
	}
	if profile.Output.Bucket != "" {
		result.Output.Bucket = profile.Output.Bucket
	}
	if profile.Output.Region != "" {
		result.Output.Region = profile.Output.Region
	}

	if profile.Log.File != "" {
		result.Log.File = profile.Log.File
	}
	if profile.Log.MaxSizeMB != 0 {
		result.Log.MaxSizeMB = profile.Log.MaxSizeMB
	}
	if profile.Log.MaxBackups != 0 {
		result.Log.MaxBackups = profile.Log.MaxBackups
	}

	return result
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// Validate checks a resolved configuration.
func (c *Config) Validate() error {
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.sample_rate must be > 0, got: %d", c.Audio.SampleRate)
	}
	if c.Audio.ChunkSize <= 0 {
		return fmt.Errorf("audio.chunk_size must be > 0, got: %d", c.Audio.ChunkSize)
	}

	if err := validateSourceBackend(c.Source.Backend, "source"); err != nil {
		return err
	}
	if c.Source.ToneHz < 0 {
		return fmt.Errorf("source: 'tone_hz' must be >= 0, got: %.1f", c.Source.ToneHz)
	}

	if c.Session.Clips < 1 || c.Session.Clips > maxClips {
		return fmt.Errorf("session.clips must be between 1 and %d, got: %d", maxClips, c.Session.Clips)
	}
	if c.Session.Duration <= 0 {
		return fmt.Errorf("session.duration must be > 0, got: %v", c.Session.Duration)
	}
	if c.Session.InterClipDelay < 0 {
		return fmt.Errorf("session.inter_clip_delay must be >= 0, got: %v", c.Session.InterClipDelay)
	}
	if c.Session.DeadlineMargin < 0 {
		return fmt.Errorf("session.deadline_margin must be >= 0, got: %v", c.Session.DeadlineMargin)
	}
	if c.TargetSamples() <= 0 {
		return fmt.Errorf("session.duration %v is shorter than one sample at %d Hz", c.Session.Duration, c.Audio.SampleRate)
	}
	// Checked in float first; the sample count itself can overflow int64.
	if float64(c.Audio.SampleRate)*c.Session.Duration.Seconds() > maxClipSamples || c.ClipBytes() > math.MaxUint32 {
		return fmt.Errorf("session.duration %v at %d Hz exceeds the 4 GiB WAV size limit", c.Session.Duration, c.Audio.SampleRate)
	}

	switch c.Output.Backend {
	case BackendLocal:
		if c.Output.Directory == "" {
			return fmt.Errorf("output.directory is required for the local backend")
		}
	case BackendS3, BackendGCS:
		if c.Output.Bucket == "" {
			return fmt.Errorf("output.bucket is required for the %s backend", c.Output.Backend)
		}
	default:
		return fmt.Errorf("output.backend must be 'local', 's3' or 'gcs', got: %s", c.Output.Backend)
	}
	if strings.ContainsAny(c.Output.Prefix, `/\`) {
		return fmt.Errorf("output.prefix must not contain path separators, got: %s", c.Output.Prefix)
	}

	return nil
}

func validateSourceBackend(backend, prefix string) error {
	switch backend {
	case "", SourceAuto, SourcePortAudio, SourcePipeWire, SourceSynthetic:
		return nil
	default:
		return fmt.Errorf("%s: 'backend' must be one of auto, portaudio, pipewire, synthetic; got: %s", prefix, backend)
	}
}

// ValidateConfigurationFormat validates the configuration file format and returns parsed config
func ValidateConfigurationFormat(configFile string) (*RootConfig, error) {
	v := viper.New()
	v.SetConfigFile(configFile)

	// Set environment variable prefix
	v.SetEnvPrefix("CLIPLOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	var rootConfig RootConfig
	if err := v.Unmarshal(&rootConfig); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Validate definitions section
	if err := validateDefinitions(rootConfig.Definitions); err != nil {
		return nil, fmt.Errorf("invalid definitions: %w", err)
	}

	// Validate that all source references in configs are valid
	for configName, configProfile := range rootConfig.Configs {
		if configProfile == nil {
			continue
		}
		if err := validateSourceReference(configProfile.Source, rootConfig.Definitions); err != nil {
			return nil, fmt.Errorf("invalid config '%s': %w", configName, err)
		}
	}

	return &rootConfig, nil
}

// validateDefinitions validates the definitions section
func validateDefinitions(definitions *DefinitionsConfig) error {
	if definitions == nil {
		return nil
	}

	seenIDs := make(map[string]bool)

	for i, def := range definitions.Sources {
		prefix := fmt.Sprintf("definitions.sources[%d]", i)
		if def.ID == "" {
			return fmt.Errorf("%s: 'id' is required", prefix)
		}
		if seenIDs[def.ID] {
			return fmt.Errorf("%s: duplicate ID '%s'", prefix, def.ID)
		}
		seenIDs[def.ID] = true

		if err := validateSourceBackend(def.Backend, prefix); err != nil {
			return err
		}
		if def.ToneHz < 0 {
			return fmt.Errorf("%s: 'tone_hz' must be >= 0, got: %.1f", prefix, def.ToneHz)
		}
	}

	return nil
}

// validateSourceReference validates the source reference of a config profile
func validateSourceReference(ref *SourceReference, definitions *DefinitionsConfig) error {
	if ref == nil {
		return nil
	}
	if ref.Ref == "" {
		return fmt.Errorf("source: 'ref' is required")
	}
	if findDefinition(definitions, ref.Ref) == nil {
		return fmt.Errorf("source: references undefined source definition '%s'", ref.Ref)
	}
	if ref.ToneHz != nil && *ref.ToneHz < 0 {
		return fmt.Errorf("source: tone_hz override must be >= 0, got %.1f", *ref.ToneHz)
	}
	return nil
}
