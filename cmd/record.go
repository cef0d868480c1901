package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/audiolibrelab/cliplog/internal/service"

	"github.com/spf13/cobra"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record the configured series of clips",
	Long: `Check the audio source and storage, then record every configured clip.
Each clip is written as <prefix>_NN.WAV. Press Ctrl+C to stop: the clip in
progress is kept and the remaining clips are skipped.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := applyRecordFlags(cmd); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc, err := service.Open(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer svc.Close()

		if err := svc.Preflight(ctx); err != nil {
			return err
		}

		report, runErr := svc.Run(ctx)
		if report != nil {
			report.Profile = profile
			printSummary(os.Stdout, report)

			if path, _ := cmd.Flags().GetString("report"); path != "" {
				if err := writeReport(path, report); err != nil {
					logger.Error().Err(err).Str("file", path).Msg("Failed to write report")
				}
			}
		}
		if runErr != nil {
			if errors.Is(runErr, context.Canceled) {
				return fmt.Errorf("recording interrupted: %w", runErr)
			}
			return runErr
		}
		return nil
	},
}

func writeReport(path string, report *service.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := report.WriteYAML(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func addRecordFlags(c *cobra.Command) {
	c.Flags().IntP("clips", "n", 0, "number of clips (overrides config)")
	c.Flags().DurationP("duration", "d", 0, "clip duration, e.g. 5s (overrides config)")
	c.Flags().Duration("delay", -1, "delay between clips (overrides config)")
	c.Flags().StringP("output", "o", "", "output directory or object prefix (overrides config)")
	c.Flags().String("source", "", "source backend: portaudio, pipewire or synthetic (overrides config)")
	c.Flags().String("device", "", "input device name (overrides config)")
	c.Flags().String("report", "", "write the run report as YAML to this file")
}

// applyRecordFlags applies command line overrides and revalidates.
func applyRecordFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()
	if n, _ := flags.GetInt("clips"); n != 0 {
		cfg.Session.Clips = n
	}
	if d, _ := flags.GetDuration("duration"); d != 0 {
		cfg.Session.Duration = d
	}
	if d, _ := flags.GetDuration("delay"); d >= 0 {
		cfg.Session.InterClipDelay = d
	}
	if dir, _ := flags.GetString("output"); dir != "" {
		cfg.Output.Directory = dir
	}
	if src, _ := flags.GetString("source"); src != "" {
		cfg.Source.Backend = src
	}
	if dev, _ := flags.GetString("device"); dev != "" {
		cfg.Source.Device = dev
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}
	logger.Debug().
		Int("clips", cfg.Session.Clips).
		Str("duration", cfg.Session.Duration.String()).
		Str("delay", cfg.Session.InterClipDelay.Round(time.Millisecond).String()).
		Str("output", cfg.Output.Directory).
		Msg("Session options")
	return nil
}

func init() {
	addRecordFlags(recordCmd)
}
