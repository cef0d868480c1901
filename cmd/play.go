package cmd

import (
	"fmt"
	"strconv"

	"github.com/audiolibrelab/cliplog/internal/play"

	"github.com/spf13/cobra"
)

var playCmd = &cobra.Command{
	Use:   "play [clip-number]",
	Short: "Play a recorded clip",
	Long: `Play a clip from the local output directory with the first player found
on PATH (vlc, mpv, ffplay or aplay).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := strconv.Atoi(args[0])
		if err != nil || index < 1 {
			return fmt.Errorf("invalid clip number %q", args[0])
		}
		if err := play.New(cfg).Play(index); err != nil {
			return fmt.Errorf("playback failed: %w", err)
		}
		return nil
	},
}
