package audio

import (
	"fmt"
	"strings"

	"github.com/audiolibrelab/cliplog/internal/capture"
	"github.com/audiolibrelab/cliplog/internal/config"
	"github.com/rs/zerolog"
)

// BackendType represents the type of audio backend
type BackendType string

const (
	BackendTypePortAudio BackendType = "portaudio"
	BackendTypePipeWire  BackendType = "pipewire"
	BackendTypeSynthetic BackendType = "synthetic"
	BackendTypeAuto      BackendType = "auto"
)

// Device describes an audio input device.
type Device struct {
	Name              string  `yaml:"name"`
	HostAPI           string  `yaml:"host_api"`
	MaxInputChannels  int     `yaml:"max_input_channels"`
	DefaultSampleRate float64 `yaml:"default_sample_rate"`
	Default           bool    `yaml:"default"`
}

// NewSource creates the transfer source selected by the configuration.
func NewSource(cfg *config.Config, log zerolog.Logger) (capture.TransferSource, error) {
	log = log.With().Str("source", cfg.Source.ID).Logger()

	switch backend := determineBackend(cfg); backend {
	case BackendTypePortAudio:
		src, err := NewPortAudioSource(cfg.Source.Device, cfg.Audio.SampleRate, cfg.Audio.ChunkSize, log)
		if err != nil {
			return nil, err
		}
		return src, nil
	case BackendTypePipeWire:
		src, err := NewPipeWireSource(cfg.Source.Device, cfg.Audio.SampleRate, cfg.Audio.ChunkSize, log)
		if err != nil {
			return nil, err
		}
		return src, nil
	case BackendTypeSynthetic:
		tone := cfg.Source.ToneHz
		if tone == 0 {
			tone = 440
		}
		return NewSyntheticSource(cfg.Audio.SampleRate, cfg.Audio.ChunkSize, tone, log), nil
	default:
		return nil, fmt.Errorf("unsupported audio backend: %s", backend)
	}
}

// determineBackend determines which backend to use based on configuration
func determineBackend(cfg *config.Config) BackendType {
	switch strings.ToLower(cfg.Source.Backend) {
	case "synthetic":
		return BackendTypeSynthetic
	case "pipewire":
		return BackendTypePipeWire
	case "portaudio", "auto", "":
		return BackendTypePortAudio
	default:
		return BackendType(cfg.Source.Backend)
	}
}

// GetAvailableBackends returns list of available backends on current system
func GetAvailableBackends() []BackendType {
	return []BackendType{BackendTypePortAudio, BackendTypePipeWire, BackendTypeSynthetic}
}
