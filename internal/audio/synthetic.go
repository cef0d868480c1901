package audio

import (
	"math"
	"time"

	"github.com/rs/zerolog"
)

const syntheticAmplitude = 0.3 * math.MaxInt16

// maxSyntheticLag is how far behind the clock the generator may run before
// it drops the missed time.
const maxSyntheticLag = 5 * time.Millisecond

// SyntheticSource produces a sine tone paced at the configured sample rate.
// It stands in for a microphone on machines without audio hardware.
type SyntheticSource struct {
	*engine
	sampleRate int
	toneHz     float64
	phase      float64

	start    time.Time
	produced int64
}

func NewSyntheticSource(sampleRate, chunk int, toneHz float64, log zerolog.Logger) *SyntheticSource {
	s := &SyntheticSource{sampleRate: sampleRate, toneHz: toneHz}
	s.engine = newEngine(chunk, s.read, log)
	return s
}

func (s *SyntheticSource) read(dst []int16) error {
	if s.start.IsZero() {
		s.start = time.Now()
	}
	s.produced += int64(len(dst))
	due := s.start.Add(time.Duration(s.produced) * time.Second / time.Duration(s.sampleRate))
	if wait := time.Until(due); wait > 0 {
		time.Sleep(wait)
	} else if wait < -maxSyntheticLag {
		// Fell behind the clock; resync instead of bursting to catch up.
		s.start = time.Now()
		s.produced = 0
	}

	step := 2 * math.Pi * s.toneHz / float64(s.sampleRate)
	for i := range dst {
		dst[i] = int16(syntheticAmplitude * math.Sin(s.phase))
		s.phase += step
		if s.phase >= 2*math.Pi {
			s.phase -= 2 * math.Pi
		}
	}
	return nil
}

func (s *SyntheticSource) Close() error {
	s.engine.close()
	return nil
}
