package audio

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os/exec"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// PipeWire queries the PipeWire graph through pw-link.
type PipeWire struct {
	// output runs pw-link with args and returns its stdout.
	output func(args ...string) ([]byte, error)
}

// NewPipeWire creates a new PipeWire instance
func NewPipeWire() *PipeWire {
	return &PipeWire{
		output: func(args ...string) ([]byte, error) {
			return exec.Command("pw-link", args...).Output()
		},
	}
}

// ListPorts returns all output ports, i.e. everything that can be recorded.
func (pw *PipeWire) ListPorts() ([]string, error) {
	output, err := pw.output("-o")
	if err != nil {
		return nil, fmt.Errorf("failed to list PipeWire ports: %w", err)
	}

	var ports []string
	for _, line := range strings.Split(string(output), "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "Output ports:") {
			ports = append(ports, line)
		}
	}
	return ports, nil
}

// ListNodes returns the distinct node names owning output ports.
func (pw *PipeWire) ListNodes() ([]string, error) {
	ports, err := pw.ListPorts()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var nodes []string
	for _, port := range ports {
		node := nodeName(port)
		if !seen[node] {
			seen[node] = true
			nodes = append(nodes, node)
		}
	}
	sort.Strings(nodes)
	return nodes, nil
}

// ValidateTarget checks that target names exactly one recordable node.
func (pw *PipeWire) ValidateTarget(target string) error {
	if target == "" {
		return nil
	}
	ports, err := pw.ListPorts()
	if err != nil {
		return err
	}
	return validateTargetInList(target, ports)
}

func validateTargetInList(target string, ports []string) error {
	var matches []string
	for _, port := range ports {
		if nodeName(port) == target {
			matches = append(matches, port)
		}
	}
	if len(matches) == 0 {
		return fmt.Errorf("source not found: %s", target)
	}

	// A mono node exposes one port; more than one port per channel
	// position means two nodes share the name.
	if dups := findPortDuplicatesInList(matches); len(dups) > 0 {
		return fmt.Errorf("duplicate sources detected for '%s': %v. Please close conflicting applications", target, dups)
	}
	return nil
}

// findPortDuplicatesInList returns the ports that appear more than once.
func findPortDuplicatesInList(ports []string) []string {
	count := make(map[string]int)
	var dups []string
	for _, port := range ports {
		count[port]++
		if count[port] == 2 {
			dups = append(dups, port)
		}
	}
	return dups
}

func nodeName(port string) string {
	if i := strings.LastIndex(port, ":"); i > 0 {
		return port[:i]
	}
	return port
}

// PipeWireSource captures from a PipeWire node by reading raw s16le mono
// samples from a pw-record child process.
type PipeWireSource struct {
	*engine
	cmd    *exec.Cmd
	stdout io.ReadCloser
	reader *bufio.Reader
	log    zerolog.Logger
}

// NewPipeWireSource starts pw-record on target (the default source when
// empty).
func NewPipeWireSource(target string, sampleRate, chunk int, log zerolog.Logger) (*PipeWireSource, error) {
	if err := NewPipeWire().ValidateTarget(target); err != nil {
		return nil, err
	}

	args := []string{
		"--rate", strconv.Itoa(sampleRate),
		"--channels", "1",
		"--format", "s16",
		"--latency", strconv.Itoa(chunk),
	}
	if target != "" {
		args = append(args, "--target", target)
	}
	args = append(args, "-")

	cmd := exec.Command("pw-record", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pw-record pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start pw-record: %w", err)
	}
	log.Debug().Strs("args", args).Int("pid", cmd.Process.Pid).Msg("pw-record started")

	s := newPipeSource(stdout, chunk, log)
	s.cmd = cmd
	return s, nil
}

// newPipeSource captures from a raw s16le mono stream.
func newPipeSource(stdout io.ReadCloser, chunk int, log zerolog.Logger) *PipeWireSource {
	s := &PipeWireSource{
		stdout: stdout,
		reader: bufio.NewReaderSize(stdout, chunk*2*4),
		log:    log,
	}
	s.engine = newEngine(chunk, s.read, log)
	return s
}

func (s *PipeWireSource) read(dst []int16) error {
	return readSamples(s.reader, dst)
}

// readSamples fills dst with little-endian 16-bit samples from r.
func readSamples(r io.Reader, dst []int16) error {
	if err := binary.Read(r, binary.LittleEndian, dst); err != nil {
		return fmt.Errorf("pw-record stream: %w", err)
	}
	return nil
}

func (s *PipeWireSource) Close() error {
	// Kill first so a blocked read in the engine returns.
	if s.cmd != nil && s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
	s.stdout.Close()
	s.engine.close()
	if s.cmd != nil {
		if err := s.cmd.Wait(); err != nil {
			s.log.Debug().Err(err).Msg("pw-record exited")
		}
	}
	return nil
}
