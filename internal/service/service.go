package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/audiolibrelab/cliplog/internal/audio"
	"github.com/audiolibrelab/cliplog/internal/capture"
	"github.com/audiolibrelab/cliplog/internal/config"
	"github.com/audiolibrelab/cliplog/internal/persist"
	"github.com/audiolibrelab/cliplog/internal/storage"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrCollaboratorUnavailable means the transfer source or storage could not
// be used before the first clip. It is the only fatal run error.
var ErrCollaboratorUnavailable = errors.New("required collaborator unavailable")

// Service represents the clip logging service
type Service interface {
	// Preflight verifies the source and storage before a run.
	Preflight(ctx context.Context) error
	// Run records every configured clip and returns the run report.
	Run(ctx context.Context) (*Report, error)

	// Information operations
	GetConfig() *config.Config
	GetStatus() (Status, int)
	GetLastError() string
	ClipPath(index int) string

	Close() error
}

// Status represents the current service state
type Status string

const (
	StatusStandby   Status = "STANDBY"
	StatusPreflight Status = "PREFLIGHT"
	StatusRecording Status = "RECORDING"
	StatusSettling  Status = "SETTLING"
	StatusDone      Status = "DONE"
	StatusError     Status = "ERROR"
)

// Deps are the collaborators of a service. Clock defaults to the system
// clock.
type Deps struct {
	Source  capture.TransferSource
	Storage storage.Storage
	Clock   capture.Clock
	Logger  zerolog.Logger
}

// ClipLogService is the main service implementation
type ClipLogService struct {
	cfg        *config.Config
	src        capture.TransferSource
	store      storage.Storage
	clock      capture.Clock
	log        zerolog.Logger
	producer   *capture.Producer
	controller *capture.Controller
	writer     *persist.Writer

	statusMu sync.RWMutex
	status   Status
	clip     int

	// Error tracking
	lastError      string
	lastErrorMutex sync.RWMutex
}

// New creates a service around already opened collaborators.
func New(cfg *config.Config, deps Deps) (Service, error) {
	if deps.Source == nil || deps.Storage == nil {
		return nil, fmt.Errorf("%w: source and storage are required", ErrCollaboratorUnavailable)
	}
	if deps.Clock == nil {
		deps.Clock = capture.SystemClock{}
	}

	chunk := cfg.Audio.ChunkSize
	producer, err := capture.NewProducer(deps.Source, make([]int16, chunk), make([]int16, chunk))
	if err != nil {
		return nil, err
	}

	return &ClipLogService{
		cfg:        cfg,
		src:        deps.Source,
		store:      deps.Storage,
		clock:      deps.Clock,
		log:        deps.Logger,
		producer:   producer,
		controller: capture.NewController(producer, deps.Clock, deps.Logger),
		writer:     persist.NewWriter(deps.Storage, cfg.Audio.SampleRate, cfg.Output.Prefix, deps.Logger),
		status:     StatusStandby,
	}, nil
}

// Open creates the configured transfer source and storage backend and
// returns a service using them.
func Open(ctx context.Context, cfg *config.Config, log zerolog.Logger) (Service, error) {
	store, err := storage.New(ctx, cfg.Output)
	if err != nil {
		return nil, fmt.Errorf("%w: storage: %v", ErrCollaboratorUnavailable, err)
	}
	src, err := audio.NewSource(cfg, log)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("%w: transfer source: %v", ErrCollaboratorUnavailable, err)
	}
	svc, err := New(cfg, Deps{Source: src, Storage: store, Logger: log})
	if err != nil {
		src.Close()
		store.Close()
		return nil, err
	}
	return svc, nil
}

// Run records cfg.Session.Clips clips. A failed clip never stops the run;
// cancelling ctx persists the clip in progress and skips the rest.
func (s *ClipLogService) Run(ctx context.Context) (*Report, error) {
	s.clearLastError()

	runID := uuid.NewString()
	log := s.log.With().Str("run_id", runID).Logger()
	clips := s.cfg.Session.Clips

	report := &Report{
		RunID:      runID,
		Started:    s.clock.Now(),
		SampleRate: s.cfg.Audio.SampleRate,
		Target:     s.cfg.TargetSamples(),
		Location:   s.store.Location(""),
	}

	log.Info().
		Int("clips", clips).
		Dur("duration", s.cfg.Session.Duration).
		Int("sample_rate", s.cfg.Audio.SampleRate).
		Str("format", "mono 16-bit PCM").
		Str("location", report.Location).
		Msg("Recording plan")

	for i := 1; i <= clips; i++ {
		if ctx.Err() != nil {
			report.add(ClipResult{Index: i, Outcome: OutcomeSkipped})
			continue
		}

		s.setStatus(StatusRecording, i)
		res := s.recordClip(ctx, log.With().Int("clip", i).Logger(), i)
		report.add(res)

		if res.Outcome == OutcomeFailed {
			s.setLastError(fmt.Sprintf("clip %d: %s", i, res.Error))
		}

		if i < clips && ctx.Err() == nil && s.cfg.Session.InterClipDelay > 0 {
			s.setStatus(StatusSettling, i)
			select {
			case <-s.clock.After(s.cfg.Session.InterClipDelay):
			case <-ctx.Done():
			}
		}
	}

	report.Ended = s.clock.Now()
	s.setStatus(StatusDone, 0)

	first, last := report.FileRange()
	log.Info().
		Int("saved", report.Saved()).
		Int("succeeded", report.Succeeded).
		Int("partial", report.Partial).
		Int("failed", report.Failed).
		Int("skipped", report.Skipped).
		Float64("audio_seconds", report.TotalAudio.Seconds()).
		Str("first", first).
		Str("last", last).
		Msg("Recording complete")

	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

func (s *ClipLogService) recordClip(ctx context.Context, log zerolog.Logger, index int) ClipResult {
	target := s.cfg.TargetSamples()
	res := ClipResult{Index: index}
	start := s.clock.Now()

	log.Info().Int("target", target).Msg("Recording clip")

	s.writer.Begin(target)
	sess, runErr := s.controller.Run(ctx, target, s.cfg.Deadline(), s.writer)
	if sess == nil {
		res.Outcome = OutcomeFailed
		res.Error = runErr.Error()
		res.Elapsed = s.clock.Now().Sub(start)
		return res
	}
	res.State = string(sess.State)

	payload := s.writer.Samples()
	res.Samples = min(payload, target)
	res.PayloadSamples = payload

	if payload == 0 {
		switch {
		case sess.State == capture.StateStopped:
			res.Outcome = OutcomeSkipped
		default:
			res.Outcome = OutcomeFailed
		}
		if runErr != nil {
			res.Error = runErr.Error()
		} else {
			res.Error = "no samples captured"
		}
		log.Warn().Str("state", res.State).Str("error", res.Error).Msg("Clip not saved")
		res.Elapsed = s.clock.Now().Sub(start)
		return res
	}

	// Storage must still be usable when the run is being cancelled.
	saved, err := s.writer.Finalize(context.WithoutCancel(ctx), index, payload)
	if err != nil {
		res.Outcome = OutcomeFailed
		res.Error = errors.Join(runErr, err).Error()
		log.Error().Err(err).Msg("Clip not saved")
		res.Elapsed = s.clock.Now().Sub(start)
		return res
	}
	res.File = saved.Name
	res.Bytes = saved.Bytes
	res.Audio = saved.Duration

	switch {
	case runErr == nil:
		res.Outcome = OutcomeSuccess
	case errors.Is(runErr, capture.ErrCaptureTimeout), sess.State == capture.StateStopped:
		res.Outcome = OutcomePartial
		res.Error = runErr.Error()
	default:
		res.Outcome = OutcomeFailed
		res.Error = runErr.Error()
	}

	log.Debug().
		Str("outcome", string(res.Outcome)).
		Int("target", target).
		Int("captured", sess.Captured).
		Int("buffers", sess.Events).
		Msg("Clip finished")
	res.Elapsed = s.clock.Now().Sub(start)
	return res
}

// GetConfig returns the current configuration
func (s *ClipLogService) GetConfig() *config.Config {
	return s.cfg
}

// GetStatus returns the service state and the clip being recorded.
func (s *ClipLogService) GetStatus() (Status, int) {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return s.status, s.clip
}

// ClipPath returns where clip index is stored.
func (s *ClipLogService) ClipPath(index int) string {
	return s.store.Location(persist.FileName(s.cfg.Output.Prefix, index))
}

// Close releases the transfer source and storage.
func (s *ClipLogService) Close() error {
	return errors.Join(s.src.Close(), s.store.Close())
}

func (s *ClipLogService) setStatus(status Status, clip int) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.status = status
	s.clip = clip
}

// GetLastError returns the last error message (thread-safe)
func (s *ClipLogService) GetLastError() string {
	s.lastErrorMutex.RLock()
	defer s.lastErrorMutex.RUnlock()
	return s.lastError
}

// setLastError sets the last error message (thread-safe)
func (s *ClipLogService) setLastError(err string) {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = err
}

// clearLastError clears the last error message (thread-safe)
func (s *ClipLogService) clearLastError() {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = ""
}
