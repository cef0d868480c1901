package cmd

import (
	"fmt"
	"os"

	"github.com/audiolibrelab/cliplog/internal/wav"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type inspection struct {
	File     string     `yaml:"file"`
	Header   wav.Header `yaml:"header"`
	Samples  int        `yaml:"samples"`
	Duration string     `yaml:"duration"`
	FileSize int64      `yaml:"file_size"`
	Complete bool       `yaml:"complete"`
}

var inspectCmd = &cobra.Command{
	Use:   "inspect [file]",
	Short: "Print the header of a recorded clip",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		h, err := wav.ReadHeader(f)
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		st, err := f.Stat()
		if err != nil {
			return err
		}

		out, err := yaml.Marshal(inspection{
			File:     args[0],
			Header:   h,
			Samples:  h.Samples(),
			Duration: h.Duration().String(),
			FileSize: st.Size(),
			Complete: st.Size() == int64(wav.HeaderSize)+int64(h.DataSize),
		})
		if err != nil {
			return fmt.Errorf("error marshaling header: %w", err)
		}
		fmt.Print(string(out))
		return nil
	},
}
