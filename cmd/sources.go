package cmd

import (
	"fmt"
	"runtime"

	"github.com/audiolibrelab/cliplog/internal/audio"

	"github.com/spf13/cobra"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List available audio input devices",
	Long: `List the PortAudio input devices and PipeWire source nodes that can be
used as a clip source.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("Audio input devices (%s)\n", runtime.GOOS)
		fmt.Printf("═══════════════════════════════════════\n\n")

		devices, err := audio.ListDevices()
		if err != nil {
			logger.Warn().Err(err).Msg("PortAudio unavailable")
		}
		fmt.Printf("PORTAUDIO (%d found):\n", len(devices))
		for i, d := range devices {
			mark := " "
			if d.Default {
				mark = "*"
			}
			fmt.Printf("%s %d. %s [%s] %d ch, %.0f Hz\n", mark, i+1, d.Name, d.HostAPI, d.MaxInputChannels, d.DefaultSampleRate)
		}

		nodes, err := audio.NewPipeWire().ListNodes()
		if err != nil {
			logger.Debug().Err(err).Msg("PipeWire unavailable")
		}
		fmt.Printf("\nPIPEWIRE (%d found):\n", len(nodes))
		for i, n := range nodes {
			fmt.Printf("  %d. %s\n", i+1, n)
		}

		fmt.Printf("\nBackends: ")
		for i, b := range audio.GetAvailableBackends() {
			if i > 0 {
				fmt.Print(", ")
			}
			fmt.Print(b)
		}
		fmt.Printf("\nSet definitions.sources[].device to a device name, or use --device.\n")
		return nil
	},
}
