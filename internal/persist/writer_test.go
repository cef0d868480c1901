package persist

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/audiolibrelab/cliplog/internal/storage"
	"github.com/audiolibrelab/cliplog/internal/wav"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

func TestFileName(t *testing.T) {
	tests := []struct {
		prefix string
		index  int
		want   string
	}{
		{"CLIP", 1, "CLIP_01.WAV"},
		{"CLIP", 12, "CLIP_12.WAV"},
		{"", 3, "CLIP_03.WAV"},
		{"SITE", 99, "SITE_99.WAV"},
	}
	for _, tt := range tests {
		if got := FileName(tt.prefix, tt.index); got != tt.want {
			t.Errorf("FileName(%q, %d) = %s, want %s", tt.prefix, tt.index, got, tt.want)
		}
	}
}

func newMemWriter(t *testing.T) (*Writer, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	return NewWriter(storage.NewLocal(fs, "/out"), 48000, "CLIP", zerolog.Nop()), fs
}

func TestWriter_PersistsClip(t *testing.T) {
	w, fs := newMemWriter(t)
	w.Begin(6)

	if err := w.Consume([]int16{1, -2, 3}, 3, 0); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if err := w.Consume([]int16{0x1234, -1, 7}, 3, 1); err != nil {
		t.Fatalf("Consume: %v", err)
	}

	res, err := w.Finalize(context.Background(), 2, 6)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if res.Name != "CLIP_02.WAV" || res.Bytes != 44+12 {
		t.Errorf("Unexpected result %+v", res)
	}

	data, err := afero.ReadFile(fs, "/out/CLIP_02.WAV")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	hdr, err := wav.ReadHeader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if hdr.DataSize != 12 || hdr.TotalSize != 48 || hdr.SampleRate != 48000 {
		t.Errorf("Unexpected header %+v", hdr)
	}

	want := []byte{1, 0, 0xfe, 0xff, 3, 0, 0x34, 0x12, 0xff, 0xff, 7, 0}
	if !bytes.Equal(data[44:], want) {
		t.Errorf("Payload = % x, want % x", data[44:], want)
	}
}

func TestWriter_PartialClipSizes(t *testing.T) {
	w, fs := newMemWriter(t)
	w.Begin(240000)

	buf := make([]int16, 960)
	for seq := 0; seq < 120; seq++ {
		if err := w.Consume(buf, len(buf), uint64(seq)); err != nil {
			t.Fatalf("Consume %d: %v", seq, err)
		}
	}
	if _, err := w.Finalize(context.Background(), 1, w.Samples()); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	f, err := fs.Open("/out/CLIP_01.WAV")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	hdr, err := wav.ReadHeader(f)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if hdr.DataSize != 2*115200 || hdr.TotalSize != 36+2*115200 {
		t.Errorf("Unexpected sizes data=%d total=%d", hdr.DataSize, hdr.TotalSize)
	}
}

func TestWriter_SequenceViolation(t *testing.T) {
	w, _ := newMemWriter(t)
	w.Begin(8)

	if err := w.Consume([]int16{1, 2}, 2, 0); err != nil {
		t.Fatal(err)
	}
	if err := w.Consume([]int16{3, 4}, 2, 2); !errors.Is(err, ErrSequence) {
		t.Errorf("Expected ErrSequence for gap, got %v", err)
	}
	if err := w.Consume([]int16{3, 4}, 2, 0); !errors.Is(err, ErrSequence) {
		t.Errorf("Expected ErrSequence for regression, got %v", err)
	}
	if w.Samples() != 2 {
		t.Errorf("Rejected buffers must not be appended, have %d samples", w.Samples())
	}
}

func TestWriter_BeginResets(t *testing.T) {
	w, _ := newMemWriter(t)
	w.Begin(4)
	w.Consume([]int16{1, 2, 3, 4}, 4, 0)

	w.Begin(4)
	if w.Samples() != 0 {
		t.Fatalf("Expected empty payload after Begin, got %d", w.Samples())
	}
	if err := w.Consume([]int16{1, 2}, 2, 0); err != nil {
		t.Errorf("Expected sequence to restart, got %v", err)
	}
}

func TestWriter_FinalizeInvalidParameters(t *testing.T) {
	w, fs := newMemWriter(t)
	w.Begin(4)

	if _, err := w.Finalize(context.Background(), 1, 0); !errors.Is(err, ErrInvalidParameters) {
		t.Errorf("Expected ErrInvalidParameters for zero samples, got %v", err)
	}

	w.Consume([]int16{1, 2}, 2, 0)
	if _, err := w.Finalize(context.Background(), 1, 4); !errors.Is(err, ErrInvalidParameters) {
		t.Errorf("Expected ErrInvalidParameters for mismatched total, got %v", err)
	}
	if exists, _ := afero.Exists(fs, "/out/CLIP_01.WAV"); exists {
		t.Error("No file should be written for invalid parameters")
	}
}

func TestWriter_RejectsOversizedClip(t *testing.T) {
	tests := []struct {
		name string
		run  func(w *Writer) error
	}{
		{"consume_past_limit", func(w *Writer) error {
			w.samples = wav.MaxSamples - 5
			return w.Consume(make([]int16, 10), 10, 0)
		}},
		{"finalize_past_limit", func(w *Writer) error {
			w.samples = wav.MaxSamples + 1
			_, err := w.Finalize(context.Background(), 1, wav.MaxSamples+1)
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, fs := newMemWriter(t)
			w.Begin(4)
			if err := tt.run(w); !errors.Is(err, ErrInvalidParameters) {
				t.Errorf("Expected ErrInvalidParameters, got %v", err)
			}
			if exists, _ := afero.Exists(fs, "/out/CLIP_01.WAV"); exists {
				t.Error("No file should be written for an oversized clip")
			}
		})
	}
}

// failingStorage wraps a Local and injects failures.
type failingStorage struct {
	*storage.Local
	openErr  error
	writeErr error
	shortAt  int
	aborted  int
}

func (f *failingStorage) Open(ctx context.Context, name string) (storage.Handle, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	h, err := f.Local.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return &failingHandle{Handle: h, s: f}, nil
}

type failingHandle struct {
	storage.Handle
	s      *failingStorage
	writes int
}

func (h *failingHandle) Write(p []byte) (int, error) {
	h.writes++
	if h.s.writeErr != nil && h.writes > 1 {
		return 0, h.s.writeErr
	}
	if h.s.shortAt > 0 && h.writes == h.s.shortAt {
		n, _ := h.Handle.Write(p[:len(p)/2])
		return n, nil
	}
	return h.Handle.Write(p)
}

func (h *failingHandle) Abort() error {
	h.s.aborted++
	return h.Handle.Abort()
}

func TestWriter_StorageFailures(t *testing.T) {
	tests := []struct {
		name      string
		store     *failingStorage
		wantErr   error
		wantAbort int
	}{
		{"open_fails", &failingStorage{openErr: errors.New("no card")}, ErrStorageOpenFailed, 0},
		{"payload_write_fails", &failingStorage{writeErr: errors.New("io error")}, ErrStorageWriteIncomplete, 1},
		{"short_header", &failingStorage{shortAt: 1}, ErrStorageWriteIncomplete, 1},
		{"short_payload", &failingStorage{shortAt: 2}, ErrStorageWriteIncomplete, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			tt.store.Local = storage.NewLocal(fs, "/out")
			w := NewWriter(tt.store, 8000, "CLIP", zerolog.Nop())
			w.Begin(4)
			w.Consume([]int16{1, 2, 3, 4}, 4, 0)

			_, err := w.Finalize(context.Background(), 1, 4)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Expected %v, got %v", tt.wantErr, err)
			}
			if tt.store.aborted != tt.wantAbort {
				t.Errorf("Expected %d aborts, got %d", tt.wantAbort, tt.store.aborted)
			}
			entries, _ := afero.ReadDir(fs, "/out")
			if len(entries) != 0 {
				t.Errorf("Expected no file left behind, found %d", len(entries))
			}
		})
	}
}
