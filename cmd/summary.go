package cmd

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/audiolibrelab/cliplog/internal/service"

	"github.com/fatih/color"
)

var outcomeColors = map[service.Outcome]*color.Color{
	service.OutcomeSuccess: color.New(color.FgGreen),
	service.OutcomePartial: color.New(color.FgYellow),
	service.OutcomeFailed:  color.New(color.FgRed, color.Bold),
	service.OutcomeSkipped: color.New(color.FgHiBlack),
}

// printSummary writes one row per clip followed by the totals.
func printSummary(w io.Writer, r *service.Report) {
	var table bytes.Buffer
	tw := tabwriter.NewWriter(&table, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CLIP\tOUTCOME\tSAMPLES\tAUDIO\tFILE\tERROR")
	for _, c := range r.Clips {
		file := c.File
		if file == "" {
			file = "-"
		}
		fmt.Fprintf(tw, "%02d\t%s\t%d\t%.2fs\t%s\t%s\n",
			c.Index, c.Outcome, c.Samples, c.Audio.Seconds(), file, c.Error)
	}
	tw.Flush()

	// Colour after layout so escape codes do not count towards column widths.
	lines := strings.SplitAfter(table.String(), "\n")
	at := strings.Index(lines[0], "OUTCOME")
	for i, line := range lines {
		if i > 0 && i <= len(r.Clips) {
			line = colorOutcome(line, at, r.Clips[i-1].Outcome)
		}
		io.WriteString(w, line)
	}

	fmt.Fprintf(w, "\n%d saved (%d succeeded, %d partial), %d failed, %d skipped\n",
		r.Saved(), r.Succeeded, r.Partial, r.Failed, r.Skipped)
	fmt.Fprintf(w, "Total audio: %.2fs at %d Hz\n", r.TotalAudio.Seconds(), r.SampleRate)
	if first, last := r.FileRange(); first != "" {
		fmt.Fprintf(w, "Files: %s .. %s in %s\n", first, last, r.Location)
	}
}

func colorOutcome(line string, at int, outcome service.Outcome) string {
	col, ok := outcomeColors[outcome]
	end := at + len(outcome)
	if !ok || at < 0 || end > len(line) || line[at:end] != string(outcome) {
		return line
	}
	return line[:at] + col.Sprint(string(outcome)) + line[end:]
}
