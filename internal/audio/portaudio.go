package audio

import (
	"errors"
	"fmt"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"
)

// PortAudioSource captures mono 16-bit samples from an input device.
type PortAudioSource struct {
	*engine
	stream *portaudio.Stream
	buffer []int16
	log    zerolog.Logger
}

// NewPortAudioSource opens and starts an input stream on device (or the
// default input device when empty).
func NewPortAudioSource(device string, sampleRate, chunk int, log zerolog.Logger) (*PortAudioSource, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	dev, err := findInputDevice(device)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}

	s := &PortAudioSource{
		buffer: make([]int16, chunk),
		log:    log,
	}
	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: 1,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(sampleRate),
		FramesPerBuffer: chunk,
	}, s.buffer)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open audio stream on %s: %w", dev.Name, err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to start audio stream: %w", err)
	}
	s.stream = stream

	log.Debug().Str("device", dev.Name).Int("sample_rate", sampleRate).Int("chunk", chunk).Msg("PortAudio stream started")
	s.engine = newEngine(chunk, s.read, log)
	return s, nil
}

func (s *PortAudioSource) read(dst []int16) error {
	if err := s.stream.Read(); err != nil {
		if !errors.Is(err, portaudio.InputOverflowed) {
			return err
		}
		// The engine reads continuously, so this is a real scheduling stall.
		s.log.Warn().Msg("Input overflowed")
	}
	copy(dst, s.buffer)
	return nil
}

func (s *PortAudioSource) Close() error {
	s.engine.close()
	s.stream.Stop()
	err := s.stream.Close()
	portaudio.Terminate()
	return err
}

func findInputDevice(name string) (*portaudio.DeviceInfo, error) {
	if name == "" {
		device, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("failed to get default input device: %w", err)
		}
		return device, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	for _, d := range devices {
		if d.Name == name && d.MaxInputChannels > 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("input device not found: %s", name)
}

// ListDevices returns the available PortAudio input devices.
func ListDevices() ([]Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	result := make([]Device, 0, len(devices))
	defaultDevice, _ := portaudio.DefaultInputDevice()

	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			result = append(result, Device{
				Name:              d.Name,
				HostAPI:           d.HostApi.Name,
				MaxInputChannels:  d.MaxInputChannels,
				DefaultSampleRate: d.DefaultSampleRate,
				Default:           d == defaultDevice,
			})
		}
	}

	return result, nil
}
