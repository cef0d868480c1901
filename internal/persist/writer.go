// Package persist assembles captured buffers into a PCM payload and writes
// each clip to storage as a WAV file.
package persist

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/audiolibrelab/cliplog/internal/storage"
	"github.com/audiolibrelab/cliplog/internal/wav"
	"github.com/rs/zerolog"
)

var (
	ErrStorageOpenFailed      = errors.New("storage open failed")
	ErrStorageWriteIncomplete = errors.New("storage write incomplete")
	ErrInvalidParameters      = errors.New("invalid parameters")
	// ErrSequence means buffers were delivered out of completion order.
	ErrSequence = errors.New("buffer sequence violation")
)

// DefaultPrefix is the clip file name prefix.
const DefaultPrefix = "CLIP"

// FileName returns the file name of clip index, e.g. CLIP_03.WAV.
func FileName(prefix string, index int) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return fmt.Sprintf("%s_%02d.WAV", prefix, index)
}

// Result describes a persisted clip.
type Result struct {
	Clip     int
	Name     string
	Location string
	Samples  int
	Bytes    int64
	Duration time.Duration
}

// Writer collects one clip at a time. It implements capture.Sink.
type Writer struct {
	store      storage.Storage
	sampleRate int
	prefix     string
	log        zerolog.Logger

	payload []byte
	samples int
	nextSeq uint64
}

func NewWriter(store storage.Storage, sampleRate int, prefix string, log zerolog.Logger) *Writer {
	return &Writer{
		store:      store,
		sampleRate: sampleRate,
		prefix:     prefix,
		log:        log,
	}
}

// Begin resets the writer for a clip of target samples.
func (w *Writer) Begin(target int) {
	w.payload = w.payload[:0]
	if need := min(target, wav.MaxSamples) * wav.BlockAlign; cap(w.payload) < need {
		w.payload = make([]byte, 0, need)
	}
	w.samples = 0
	w.nextSeq = 0
}

// Samples returns the number of samples collected since Begin.
func (w *Writer) Samples() int { return w.samples }

// Consume appends the first count samples in the order received.
func (w *Writer) Consume(samples []int16, count int, seq uint64) error {
	if count < 0 || count > len(samples) {
		return fmt.Errorf("%w: count %d for buffer of %d", ErrInvalidParameters, count, len(samples))
	}
	if seq != w.nextSeq {
		return fmt.Errorf("%w: expected buffer %d, got %d", ErrSequence, w.nextSeq, seq)
	}
	if w.samples+count > wav.MaxSamples {
		return fmt.Errorf("%w: clip would exceed %d samples", ErrInvalidParameters, wav.MaxSamples)
	}
	w.payload = wav.AppendSamples(w.payload, samples[:count])
	w.samples += count
	w.nextSeq++
	return nil
}

// Finalize frames the collected payload as clip index and writes it.
// totalSamples must equal the number of samples consumed.
func (w *Writer) Finalize(ctx context.Context, index, totalSamples int) (*Result, error) {
	if totalSamples <= 0 || totalSamples != w.samples {
		return nil, fmt.Errorf("%w: total %d, payload holds %d samples", ErrInvalidParameters, totalSamples, w.samples)
	}

	hdr, err := wav.NewHeader(w.sampleRate, totalSamples)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParameters, err)
	}
	name := FileName(w.prefix, index)
	location := w.store.Location(name)

	h, err := w.store.Open(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrStorageOpenFailed, location, err)
	}

	head := hdr.Bytes()
	if err := writeFull(h, head[:]); err != nil {
		return nil, w.abort(h, location, "header", err)
	}
	if err := writeFull(h, w.payload); err != nil {
		return nil, w.abort(h, location, "payload", err)
	}
	if err := h.Close(); err != nil {
		return nil, w.abort(h, location, "commit", err)
	}

	res := &Result{
		Clip:     index,
		Name:     name,
		Location: location,
		Samples:  totalSamples,
		Bytes:    int64(wav.HeaderSize + len(w.payload)),
		Duration: hdr.Duration(),
	}
	w.log.Info().
		Int("clip", index).
		Str("file", location).
		Int("samples", res.Samples).
		Float64("seconds", res.Duration.Seconds()).
		Int64("bytes", res.Bytes).
		Msg("Clip saved")
	return res, nil
}

func (w *Writer) abort(h storage.Handle, location, stage string, cause error) error {
	if err := h.Abort(); err != nil {
		w.log.Warn().Err(err).Str("file", location).Msg("Failed to discard incomplete clip")
	}
	return fmt.Errorf("%w: %s %s: %v", ErrStorageWriteIncomplete, location, stage, cause)
}

func writeFull(w io.Writer, p []byte) error {
	n, err := w.Write(p)
	if err != nil {
		return err
	}
	if n < len(p) {
		return io.ErrShortWrite
	}
	return nil
}
