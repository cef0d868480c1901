package audio

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func fakePipeWire(out string, err error) *PipeWire {
	return &PipeWire{output: func(args ...string) ([]byte, error) {
		return []byte(out), err
	}}
}

const portListing = `alsa_input.usb-Focusrite_Scarlett:capture_FL
alsa_input.usb-Focusrite_Scarlett:capture_FR
alsa_input.pci-0000_00_1f.3.analog-stereo:capture_MONO
Chrome:output_FL
Chrome:output_FL
`

func TestListPorts(t *testing.T) {
	ports, err := fakePipeWire("Output ports:\n"+portListing, nil).ListPorts()
	if err != nil {
		t.Fatalf("ListPorts: %v", err)
	}
	if len(ports) != 5 {
		t.Errorf("Expected 5 ports, got %d: %v", len(ports), ports)
	}
}

func TestListNodes(t *testing.T) {
	nodes, err := fakePipeWire(portListing, nil).ListNodes()
	if err != nil {
		t.Fatalf("ListNodes: %v", err)
	}
	want := []string{"Chrome", "alsa_input.pci-0000_00_1f.3.analog-stereo", "alsa_input.usb-Focusrite_Scarlett"}
	if strings.Join(nodes, ",") != strings.Join(want, ",") {
		t.Errorf("ListNodes = %v, want %v", nodes, want)
	}
}

func TestValidateTarget(t *testing.T) {
	tests := []struct {
		name    string
		target  string
		wantErr string
	}{
		{"default source", "", ""},
		{"stereo device", "alsa_input.usb-Focusrite_Scarlett", ""},
		{"mono device", "alsa_input.pci-0000_00_1f.3.analog-stereo", ""},
		{"missing", "nonexistent", "source not found"},
		{"duplicate browser", "Chrome", "duplicate sources"},
	}

	pw := fakePipeWire(portListing, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := pw.ValidateTarget(tt.target)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Expected no error, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected %q error, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateTarget_PwLinkFails(t *testing.T) {
	err := fakePipeWire("", errors.New("exit status 1")).ValidateTarget("anything")
	if err == nil || !strings.Contains(err.Error(), "failed to list PipeWire ports") {
		t.Errorf("Expected pw-link error, got %v", err)
	}
}

func TestFindPortDuplicatesInList(t *testing.T) {
	dups := findPortDuplicatesInList([]string{"a:1", "b:1", "a:1", "a:1"})
	if len(dups) != 1 || dups[0] != "a:1" {
		t.Errorf("Expected [a:1], got %v", dups)
	}
	if dups := findPortDuplicatesInList([]string{"a:FL", "a:FR"}); len(dups) != 0 {
		t.Errorf("Expected no duplicates, got %v", dups)
	}
}

func TestReadSamples(t *testing.T) {
	raw := []byte{0x01, 0x00, 0xff, 0xff, 0x00, 0x80}
	dst := make([]int16, 3)
	if err := readSamples(bytes.NewReader(raw), dst); err != nil {
		t.Fatalf("readSamples: %v", err)
	}
	if dst[0] != 1 || dst[1] != -1 || dst[2] != -32768 {
		t.Errorf("Unexpected samples %v", dst)
	}

	if err := readSamples(bytes.NewReader(raw[:3]), dst); err == nil {
		t.Error("Expected error on short stream")
	}
}
