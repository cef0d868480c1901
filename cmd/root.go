package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/audiolibrelab/cliplog/internal/config"
	"github.com/audiolibrelab/cliplog/internal/logging"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// exitInterrupted is the conventional status for SIGINT.
const exitInterrupted = 130

var (
	cfg          *config.Config
	cfgFile      string
	profile      string
	verboseLevel int

	logger    = zerolog.Nop()
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "cliplog",
	Short: "Record a fixed series of audio clips to WAV files",
	Long: `cliplog records a fixed number of fixed-duration mono clips from an
audio input and stores each one as CLIP_NN.WAV on local disk, S3 or GCS.

A failed clip never stops the run. Without a subcommand it acts as
'cliplog record'.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Commands that work without a config unless one is given
		if (cmd.Name() == "sources" || cmd.Name() == "inspect") && cfgFile == "" {
			logger, logCloser = logging.New(os.Stderr, verboseLevel, config.LogConfig{})
			return nil
		}

		// Use default config path if not specified
		if cfgFile == "" {
			cfgFile = os.ExpandEnv("$HOME/.config/cliplog.yaml")
		}

		var err error
		cfg, err = config.LoadWithProfile(cfgFile, profile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		logger, logCloser = logging.New(os.Stderr, verboseLevel, cfg.Log)
		logger.Debug().Str("config", cfgFile).Str("profile", profile).Msg("Configuration loaded")
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if logCloser != nil {
			return logCloser.Close()
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return recordCmd.RunE(cmd, args)
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if errors.Is(err, context.Canceled) {
			os.Exit(exitInterrupted)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/cliplog.yaml)")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "configuration profile to use (overrides active_config from file)")
	rootCmd.PersistentFlags().IntVarP(&verboseLevel, "verbose", "v", 0, "verbose level: 0=info, 1=debug, 2=trace")

	addRecordFlags(rootCmd)

	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(sourcesCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(infoCmd)
}
