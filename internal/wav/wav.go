// Package wav encodes and parses the 44-byte RIFF/WAVE header used for
// persisted clips: uncompressed PCM, mono, 16 bits per sample.
package wav

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"
)

const (
	// HeaderSize is the size of the canonical PCM header in bytes.
	HeaderSize = 44

	FormatPCM     = 1
	Channels      = 1
	BitsPerSample = 16
	BlockAlign    = Channels * BitsPerSample / 8

	fmtChunkSize = 16
)

// MaxSamples is the longest payload whose sizes fit the 32-bit RIFF fields.
const MaxSamples = (math.MaxUint32 - 36) / BlockAlign

var (
	ErrInvalidHeader = errors.New("invalid WAV header")
	// ErrSize means a payload or rate does not fit the 32-bit header fields.
	ErrSize = errors.New("WAV size out of range")
)

// Header describes a PCM WAV file.
type Header struct {
	TotalSize     uint32 `yaml:"total_size"`
	AudioFormat   uint16 `yaml:"audio_format"`
	Channels      uint16 `yaml:"channels"`
	SampleRate    uint32 `yaml:"sample_rate"`
	ByteRate      uint32 `yaml:"byte_rate"`
	BlockAlign    uint16 `yaml:"block_align"`
	BitsPerSample uint16 `yaml:"bits_per_sample"`
	DataSize      uint32 `yaml:"data_size"`
}

// NewHeader returns the header for samples 16-bit mono samples at sampleRate.
func NewHeader(sampleRate, samples int) (Header, error) {
	if samples < 0 || samples > MaxSamples {
		return Header{}, fmt.Errorf("%w: %d samples (max %d)", ErrSize, samples, MaxSamples)
	}
	if sampleRate <= 0 || sampleRate > math.MaxUint32/BlockAlign {
		return Header{}, fmt.Errorf("%w: sample rate %d", ErrSize, sampleRate)
	}
	dataSize := uint32(samples) * BlockAlign
	return Header{
		TotalSize:     36 + dataSize,
		AudioFormat:   FormatPCM,
		Channels:      Channels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * BlockAlign,
		BlockAlign:    BlockAlign,
		BitsPerSample: BitsPerSample,
		DataSize:      dataSize,
	}, nil
}

// Samples returns the number of samples described by DataSize.
func (h Header) Samples() int {
	if h.BlockAlign == 0 {
		return 0
	}
	return int(h.DataSize / uint32(h.BlockAlign))
}

// Duration returns the playback duration of the data chunk.
func (h Header) Duration() time.Duration {
	if h.SampleRate == 0 {
		return 0
	}
	return time.Duration(h.Samples()) * time.Second / time.Duration(h.SampleRate)
}

// Bytes encodes the header, little-endian throughout.
func (h Header) Bytes() [HeaderSize]byte {
	var hdr [HeaderSize]byte
	copy(hdr[0:4], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:8], h.TotalSize)
	copy(hdr[8:12], "WAVE")
	copy(hdr[12:16], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:20], fmtChunkSize)
	binary.LittleEndian.PutUint16(hdr[20:22], h.AudioFormat)
	binary.LittleEndian.PutUint16(hdr[22:24], h.Channels)
	binary.LittleEndian.PutUint32(hdr[24:28], h.SampleRate)
	binary.LittleEndian.PutUint32(hdr[28:32], h.ByteRate)
	binary.LittleEndian.PutUint16(hdr[32:34], h.BlockAlign)
	binary.LittleEndian.PutUint16(hdr[34:36], h.BitsPerSample)
	copy(hdr[36:40], "data")
	binary.LittleEndian.PutUint32(hdr[40:44], h.DataSize)
	return hdr
}

// WriteTo writes the encoded header to w.
func (h Header) WriteTo(w io.Writer) (int64, error) {
	hdr := h.Bytes()
	n, err := w.Write(hdr[:])
	return int64(n), err
}

// ReadHeader reads and validates a canonical 44-byte PCM header.
func ReadHeader(r io.Reader) (Header, error) {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Header{}, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
	}

	if string(hdr[0:4]) != "RIFF" || string(hdr[8:12]) != "WAVE" {
		return Header{}, fmt.Errorf("%w: missing RIFF/WAVE magic", ErrInvalidHeader)
	}
	if string(hdr[12:16]) != "fmt " || binary.LittleEndian.Uint32(hdr[16:20]) != fmtChunkSize {
		return Header{}, fmt.Errorf("%w: unexpected fmt chunk", ErrInvalidHeader)
	}
	if string(hdr[36:40]) != "data" {
		return Header{}, fmt.Errorf("%w: missing data chunk", ErrInvalidHeader)
	}

	h := Header{
		TotalSize:     binary.LittleEndian.Uint32(hdr[4:8]),
		AudioFormat:   binary.LittleEndian.Uint16(hdr[20:22]),
		Channels:      binary.LittleEndian.Uint16(hdr[22:24]),
		SampleRate:    binary.LittleEndian.Uint32(hdr[24:28]),
		ByteRate:      binary.LittleEndian.Uint32(hdr[28:32]),
		BlockAlign:    binary.LittleEndian.Uint16(hdr[32:34]),
		BitsPerSample: binary.LittleEndian.Uint16(hdr[34:36]),
		DataSize:      binary.LittleEndian.Uint32(hdr[40:44]),
	}

	if h.AudioFormat != FormatPCM {
		return h, fmt.Errorf("%w: audio format %d is not PCM", ErrInvalidHeader, h.AudioFormat)
	}
	if h.TotalSize != 36+h.DataSize {
		return h, fmt.Errorf("%w: RIFF size %d does not match data size %d", ErrInvalidHeader, h.TotalSize, h.DataSize)
	}
	return h, nil
}

// AppendSamples appends samples to dst as signed 16-bit little-endian PCM.
func AppendSamples(dst []byte, samples []int16) []byte {
	for _, s := range samples {
		dst = binary.LittleEndian.AppendUint16(dst, uint16(s))
	}
	return dst
}
