package service

import (
	"context"
	"fmt"
	"time"

	"github.com/audiolibrelab/cliplog/internal/capture"
	"github.com/audiolibrelab/cliplog/internal/storage"
	"golang.org/x/sync/errgroup"
)

// firstBufferMargin bounds how long the source may take to fill its first buffer.
const firstBufferMargin = 2 * time.Second

type discardSink struct{}

func (discardSink) Consume([]int16, int, uint64) error { return nil }

// Preflight checks that the storage backend is reachable with room for the
// whole run, and that the transfer source completes a buffer. Any failure
// wraps ErrCollaboratorUnavailable.
func (s *ClipLogService) Preflight(ctx context.Context) error {
	s.setStatus(StatusPreflight, 0)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := s.store.Ping(gctx); err != nil {
			return fmt.Errorf("%w: storage: %v", ErrCollaboratorUnavailable, err)
		}
		if sc, ok := s.store.(storage.SpaceChecker); ok {
			need := uint64(s.cfg.Session.Clips) * s.cfg.ClipBytes()
			if err := sc.CheckSpace(gctx, need); err != nil {
				return fmt.Errorf("%w: storage: %v", ErrCollaboratorUnavailable, err)
			}
		}
		s.log.Debug().Str("location", s.store.Location("")).Msg("Storage ready")
		return nil
	})

	g.Go(func() error {
		chunk := s.producer.ChunkSize()
		deadline := firstBufferMargin + time.Duration(chunk)*time.Second/time.Duration(s.cfg.Audio.SampleRate)
		sess, err := s.controller.Run(gctx, chunk, deadline, discardSink{})
		if err != nil {
			return fmt.Errorf("%w: transfer source: %v", ErrCollaboratorUnavailable, err)
		}
		s.log.Debug().Dur("latency", sess.Ended.Sub(sess.Started)).Msg("Transfer source ready")
		return nil
	})

	if err := g.Wait(); err != nil {
		s.setLastError(err.Error())
		s.setStatus(StatusError, 0)
		return err
	}
	s.setStatus(StatusStandby, 0)
	return nil
}

var _ capture.Sink = discardSink{}
