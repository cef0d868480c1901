package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestMergeConfigs_SelectionAndFallback(t *testing.T) {
	// Create base (default) config
	base := &Config{
		Audio: AudioConfig{
			SampleRate: 48000,
			ChunkSize:  960,
		},
		Source: SourceConfig{ID: "mic", Backend: SourcePortAudio},
		Session: SessionConfig{
			Clips:          5,
			Duration:       5 * time.Second,
			InterClipDelay: time.Second,
			DeadlineMargin: 2 * time.Second,
		},
		Output: OutputConfig{
			Backend:   BackendLocal,
			Directory: "~/Audio/Default",
			Prefix:    "CLIP",
		},
	}

	// Profile overrides some settings only
	profile := &Config{
		Audio: AudioConfig{
			SampleRate: 16000,
		},
		Session: SessionConfig{
			Clips:    10,
			Duration: 30 * time.Second,
		},
		Output: OutputConfig{
			Directory: "~/Audio/Field",
		},
	}

	result := mergeConfigs(base, profile)

	if result.Audio.SampleRate != 16000 {
		t.Errorf("Expected sample rate 16000, got %d", result.Audio.SampleRate)
	}
	if result.Audio.ChunkSize != 960 {
		t.Errorf("Expected inherited chunk size 960, got %d", result.Audio.ChunkSize)
	}
	if result.Source.ID != "mic" || result.Source.Backend != SourcePortAudio {
		t.Errorf("Expected inherited source, got %+v", result.Source)
	}
	if result.Session.Clips != 10 || result.Session.Duration != 30*time.Second {
		t.Errorf("Session overrides not applied: %+v", result.Session)
	}
	if result.Session.InterClipDelay != time.Second || result.Session.DeadlineMargin != 2*time.Second {
		t.Errorf("Session fallbacks not applied: %+v", result.Session)
	}
	if result.Output.Directory != "~/Audio/Field" {
		t.Errorf("Expected directory '~/Audio/Field', got %s", result.Output.Directory)
	}
	if result.Output.Prefix != "CLIP" || result.Output.Backend != BackendLocal {
		t.Errorf("Expected inherited output prefix/backend, got %+v", result.Output)
	}

	// Test inheritance tracking
	if result.Inheritance == nil {
		t.Fatal("Inheritance tracking not initialized")
	}
	inh := result.Inheritance
	if inh.Audio.SampleRate != "profile-specific" {
		t.Errorf("Expected sample rate to be profile-specific, got %s", inh.Audio.SampleRate)
	}
	if inh.Audio.ChunkSize != "inherited" {
		t.Errorf("Expected chunk size to be inherited, got %s", inh.Audio.ChunkSize)
	}
	if inh.Source != "inherited" {
		t.Errorf("Expected source to be inherited, got %s", inh.Source)
	}
	if inh.Session.Clips != "profile-specific" || inh.Session.InterClipDelay != "inherited" {
		t.Errorf("Unexpected session inheritance: %+v", inh.Session)
	}
	if inh.Output.Directory != "profile-specific" || inh.Output.Prefix != "inherited" {
		t.Errorf("Unexpected output inheritance: %+v", inh.Output)
	}
}

func TestMergeConfigs_ProfileOnly(t *testing.T) {
	// Test when profile has all required fields - no inheritance needed
	profile := &Config{
		Audio:   AudioConfig{SampleRate: 8000, ChunkSize: 160},
		Source:  SourceConfig{ID: "tone", Backend: SourceSynthetic, ToneHz: 1000},
		Session: SessionConfig{Clips: 1, Duration: time.Second},
		Output:  OutputConfig{Backend: BackendS3, Bucket: "logs", Prefix: "SITE"},
	}

	result := mergeConfigs(nil, profile)

	if result.Audio != profile.Audio {
		t.Errorf("Audio config not preserved: %+v", result.Audio)
	}
	if result.Source != profile.Source {
		t.Errorf("Source not preserved: %+v", result.Source)
	}
	if result.Output.Bucket != "logs" || result.Output.Prefix != "SITE" {
		t.Errorf("Output not preserved: %+v", result.Output)
	}
	if result.Inheritance.Source != "profile-specific" {
		t.Errorf("Expected source to be profile-specific, got %s", result.Inheritance.Source)
	}
}

func TestMergeConfigs_EmptyProfile(t *testing.T) {
	base := Default()
	result := mergeConfigs(base, &Config{})

	if result.Audio != base.Audio || result.Session != base.Session || result.Source != base.Source {
		t.Errorf("Empty profile should inherit everything, got %+v", result)
	}
	if result.Inheritance.Session.Duration != "inherited" {
		t.Errorf("Expected duration to be inherited, got %s", result.Inheritance.Session.Duration)
	}
}

func TestExpandPath(t *testing.T) {
	// Test tilde expansion
	homeDir, _ := os.UserHomeDir()

	tests := []struct {
		input    string
		expected string
	}{
		{"~/Audio/cliplog", filepath.Join(homeDir, "Audio", "cliplog")},
		{"/absolute/path", "/absolute/path"},
		{"relative/path", "relative/path"},
		{"~", "~"}, // Should not expand bare tilde
	}

	for _, test := range tests {
		result := expandPath(test.input)
		if result != test.expected {
			t.Errorf("expandPath(%q) = %q, expected %q", test.input, result, test.expected)
		}
	}
}

func TestConfig_TargetAndDeadline(t *testing.T) {
	tests := []struct {
		name     string
		rate     int
		duration time.Duration
		margin   time.Duration
		target   int
		deadline time.Duration
	}{
		{"48k_5s", 48000, 5 * time.Second, 2 * time.Second, 240000, 7 * time.Second},
		{"16k_30s", 16000, 30 * time.Second, 0, 480000, 30 * time.Second},
		{"8k_half_second", 8000, 500 * time.Millisecond, time.Second, 4000, 1500 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Audio.SampleRate = tt.rate
			cfg.Session.Duration = tt.duration
			cfg.Session.DeadlineMargin = tt.margin

			if got := cfg.TargetSamples(); got != tt.target {
				t.Errorf("TargetSamples() = %d, want %d", got, tt.target)
			}
			if got := cfg.Deadline(); got != tt.deadline {
				t.Errorf("Deadline() = %v, want %v", got, tt.deadline)
			}
			if got := cfg.ClipBytes(); got != 44+2*uint64(tt.target) {
				t.Errorf("ClipBytes() = %d", got)
			}
		})
	}
}

func TestLoadWithProfile_MissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.yaml")

	cfg, err := LoadWithProfile(path, "")
	if err != nil {
		t.Fatalf("Expected defaults for missing file, got error: %v", err)
	}
	if cfg.Session.Clips != 5 || cfg.Audio.SampleRate != 48000 || cfg.Output.Prefix != "CLIP" {
		t.Errorf("Unexpected defaults: %+v", cfg)
	}

	if _, err := LoadWithProfile(path, "field"); err == nil {
		t.Error("Expected error for named profile without a config file")
	}
}

func TestLoadWithProfile_ProfileOverDefault(t *testing.T) {
	configContent := `
active_config: field
audio:
    sample_rate: 16000
definitions:
    sources:
        - id: mic
          backend: portaudio
          device: USB Audio
        - id: tone
          backend: synthetic
          tone_hz: 440
configs:
    default:
        source:
            ref: mic
        session:
            clips: 3
            duration: 2s
            inter_clip_delay: 500ms
        output:
            directory: /data/clips
    field:
        source:
            ref: tone
            tone_hz: 1000
        session:
            duration: 10s
        output:
            prefix: FIELD
`
	configFile := createTempConfig(t, configContent)
	defer os.Remove(configFile)

	cfg, err := LoadWithProfile(configFile, "")
	if err != nil {
		t.Fatalf("Failed to load configuration: %v", err)
	}

	if cfg.Audio.SampleRate != 16000 || cfg.Audio.ChunkSize != 960 {
		t.Errorf("Unexpected audio config %+v", cfg.Audio)
	}
	if cfg.Source.ID != "tone" || cfg.Source.Backend != SourceSynthetic || cfg.Source.ToneHz != 1000 {
		t.Errorf("Unexpected source %+v", cfg.Source)
	}
	if cfg.Session.Clips != 3 || cfg.Session.Duration != 10*time.Second || cfg.Session.InterClipDelay != 500*time.Millisecond {
		t.Errorf("Unexpected session %+v", cfg.Session)
	}
	if cfg.Output.Directory != "/data/clips" || cfg.Output.Prefix != "FIELD" {
		t.Errorf("Unexpected output %+v", cfg.Output)
	}
	if cfg.Inheritance.Session.Clips != "inherited" || cfg.Inheritance.Session.Duration != "profile-specific" {
		t.Errorf("Unexpected inheritance %+v", cfg.Inheritance.Session)
	}

	// Explicit profile wins over active_config
	cfg, err = LoadWithProfile(configFile, "default")
	if err != nil {
		t.Fatalf("Failed to load default profile: %v", err)
	}
	if cfg.Source.ID != "mic" || cfg.Source.Device != "USB Audio" {
		t.Errorf("Expected mic source from default profile, got %+v", cfg.Source)
	}
}

func TestGlobalsOutputDirectory(t *testing.T) {
	configContent := `
active_config: test
globals:
    output:
        directory: /global/clips
definitions:
    sources:
        - id: mic
          backend: auto
configs:
    test:
        source:
            ref: mic
        output:
            directory: /profile/clips
            prefix: TEST
`
	configFile := createTempConfig(t, configContent)
	defer os.Remove(configFile)

	cfg, err := LoadWithProfile(configFile, "test")
	if err != nil {
		t.Fatalf("Failed to load configuration: %v", err)
	}

	// Verify that global directory overrides profile directory
	if cfg.Output.Directory != "/global/clips" {
		t.Errorf("Expected directory '/global/clips' from globals, got '%s'", cfg.Output.Directory)
	}
	// Verify other output settings still come from profile
	if cfg.Output.Prefix != "TEST" {
		t.Errorf("Expected prefix 'TEST' from profile, got '%s'", cfg.Output.Prefix)
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cliplog.yaml")

	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault: %v", err)
	}
	if err := WriteDefault(path); err == nil {
		t.Error("Expected refusal to overwrite existing file")
	}

	cfg, err := LoadWithProfile(path, "test")
	if err != nil {
		t.Fatalf("Generated config does not load: %v", err)
	}
	if cfg.Source.Backend != SourceSynthetic || cfg.Session.Clips != 2 || cfg.Session.Duration != time.Second {
		t.Errorf("Unexpected test profile %+v", cfg)
	}
	// Inherited from the default profile
	if cfg.Session.InterClipDelay != time.Second {
		t.Errorf("Expected inter-clip delay inherited from default, got %v", cfg.Session.InterClipDelay)
	}
}

func TestUpdateActiveConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cliplog.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault: %v", err)
	}

	if err := UpdateActiveConfig(path, "test"); err != nil {
		t.Fatalf("UpdateActiveConfig: %v", err)
	}
	cfg, err := LoadWithProfile(path, "")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Source.ID != "tone" {
		t.Errorf("Expected active profile 'test', got source %s", cfg.Source.ID)
	}

	if err := UpdateActiveConfig(path, "nonexistent"); err == nil {
		t.Error("Expected error for unknown profile")
	}
}

// Helper function to check if string contains substring
func containsSubstring(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
