package cmd

import (
	"fmt"

	"github.com/audiolibrelab/cliplog/internal/persist"
	"github.com/audiolibrelab/cliplog/internal/storage"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show resolved configuration and the clip paths of a run",
	Long:  `Display the resolved configuration with inheritance indicators and the files a run would write. Shows which values are inherited from default vs profile-specific.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		inh := cfg.Inheritance

		fmt.Printf("=== FILE PATHS ===\n")
		store, err := storage.New(cmd.Context(), cfg.Output)
		if err != nil {
			return fmt.Errorf("failed to open storage: %w", err)
		}
		defer store.Close()
		first := persist.FileName(cfg.Output.Prefix, 1)
		last := persist.FileName(cfg.Output.Prefix, cfg.Session.Clips)
		fmt.Printf("first_clip: %s\n", store.Location(first))
		fmt.Printf("last_clip: %s\n", store.Location(last))
		fmt.Printf("clip_size: %d bytes\n", cfg.ClipBytes())

		fmt.Printf("\n=== RESOLVED CONFIGURATION ===\n")

		fmt.Printf("\n[Audio]\n")
		fmt.Printf("sample_rate: %d %s\n", cfg.Audio.SampleRate, getInheritanceIndicator(inh.Audio.SampleRate))
		fmt.Printf("chunk_size: %d %s\n", cfg.Audio.ChunkSize, getInheritanceIndicator(inh.Audio.ChunkSize))

		fmt.Printf("\n[Source]\n")
		fmt.Printf("id: %s %s\n", cfg.Source.ID, getInheritanceIndicator(inh.Source))
		fmt.Printf("backend: %s\n", cfg.Source.Backend)
		if cfg.Source.Device != "" {
			fmt.Printf("device: %s\n", cfg.Source.Device)
		}

		fmt.Printf("\n[Session]\n")
		fmt.Printf("clips: %d %s\n", cfg.Session.Clips, getInheritanceIndicator(inh.Session.Clips))
		fmt.Printf("duration: %s %s\n", cfg.Session.Duration, getInheritanceIndicator(inh.Session.Duration))
		fmt.Printf("inter_clip_delay: %s %s\n", cfg.Session.InterClipDelay, getInheritanceIndicator(inh.Session.InterClipDelay))
		fmt.Printf("deadline_margin: %s %s\n", cfg.Session.DeadlineMargin, getInheritanceIndicator(inh.Session.DeadlineMargin))
		fmt.Printf("target_samples: %d\n", cfg.TargetSamples())

		fmt.Printf("\n[Output]\n")
		fmt.Printf("backend: %s %s\n", cfg.Output.Backend, getInheritanceIndicator(inh.Output.Backend))
		fmt.Printf("directory: %s %s\n", cfg.Output.Directory, getInheritanceIndicator(inh.Output.Directory))
		fmt.Printf("prefix: %s %s\n", cfg.Output.Prefix, getInheritanceIndicator(inh.Output.Prefix))

		return nil
	},
}

// getInheritanceIndicator returns a formatted indicator for inheritance status
func getInheritanceIndicator(status string) string {
	switch status {
	case "inherited":
		return "[inherited]"
	case "profile-specific":
		return "[profile-specific]"
	default:
		return "[unknown]"
	}
}
