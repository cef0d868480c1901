package service

import (
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"
)

// Outcome classifies one clip.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomePartial Outcome = "partial"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

// ClipResult is the record of one clip attempt.
type ClipResult struct {
	Index int    `yaml:"index"`
	File  string `yaml:"file,omitempty"`
	// Samples is the captured count capped at the clip target.
	Samples int `yaml:"samples"`
	// PayloadSamples is what was persisted; the last buffer may run past
	// the target.
	PayloadSamples int           `yaml:"payload_samples"`
	Bytes          int64         `yaml:"bytes,omitempty"`
	Audio          time.Duration `yaml:"audio"`
	Outcome        Outcome       `yaml:"outcome"`
	State          string        `yaml:"state,omitempty"`
	Error          string        `yaml:"error,omitempty"`
	Elapsed        time.Duration `yaml:"elapsed"`
}

// Report aggregates a run.
type Report struct {
	RunID      string        `yaml:"run_id"`
	Profile    string        `yaml:"profile,omitempty"`
	Started    time.Time     `yaml:"started"`
	Ended      time.Time     `yaml:"ended"`
	SampleRate int           `yaml:"sample_rate"`
	Target     int           `yaml:"target_samples"`
	Location   string        `yaml:"location"`
	Clips      []ClipResult  `yaml:"clips"`
	Succeeded  int           `yaml:"succeeded"`
	Partial    int           `yaml:"partial"`
	Failed     int           `yaml:"failed"`
	Skipped    int           `yaml:"skipped"`
	TotalAudio time.Duration `yaml:"total_audio"`
}

func (r *Report) add(c ClipResult) {
	r.Clips = append(r.Clips, c)
	switch c.Outcome {
	case OutcomeSuccess:
		r.Succeeded++
	case OutcomePartial:
		r.Partial++
	case OutcomeFailed:
		r.Failed++
	case OutcomeSkipped:
		r.Skipped++
	}
	if c.File != "" {
		r.TotalAudio += c.Audio
	}
}

// Saved returns the number of clips that produced a file.
func (r *Report) Saved() int {
	n := 0
	for _, c := range r.Clips {
		if c.File != "" {
			n++
		}
	}
	return n
}

// FileRange returns the first and last persisted file names.
func (r *Report) FileRange() (first, last string) {
	for _, c := range r.Clips {
		if c.File == "" {
			continue
		}
		if first == "" {
			first = c.File
		}
		last = c.File
	}
	return first, last
}

// WriteYAML writes the report as YAML.
func (r *Report) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("error marshaling report: %w", err)
	}
	return enc.Close()
}
