package play

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/audiolibrelab/cliplog/internal/config"
	"github.com/audiolibrelab/cliplog/internal/persist"
)

// players in order of preference.
var players = []string{"vlc", "mpv", "ffplay", "aplay"}

type Player struct {
	cfg *config.Config
	out io.Writer

	lookPath func(string) (string, error)
	run      func(*exec.Cmd) error
}

func New(cfg *config.Config) *Player {
	return &Player{
		cfg:      cfg,
		out:      os.Stdout,
		lookPath: exec.LookPath,
		run:      (*exec.Cmd).Run,
	}
}

// Path returns the local path of clip index.
func (p *Player) Path(index int) string {
	return filepath.Join(p.cfg.Output.Directory, persist.FileName(p.cfg.Output.Prefix, index))
}

// Play plays clip index from the output directory. Only the local backend
// keeps clips on this machine.
func (p *Player) Play(index int) error {
	if p.cfg.Output.Backend != config.BackendLocal {
		return fmt.Errorf("playback requires the local backend, current backend is %s", p.cfg.Output.Backend)
	}
	return p.PlayFile(p.Path(index))
}

// PlayFile plays a WAV file with the first audio player found on PATH.
func (p *Player) PlayFile(audioFile string) error {
	if _, err := os.Stat(audioFile); err != nil {
		return fmt.Errorf("audio file not found: %s", audioFile)
	}

	player, err := p.findAudioPlayer()
	if err != nil {
		return fmt.Errorf("no suitable audio player found: %w", err)
	}

	fmt.Fprintf(p.out, "Playing: %s\n", audioFile)

	cmd := command(player, audioFile)
	if err := p.run(cmd); err != nil {
		return fmt.Errorf("playback failed with %s: %w", player, err)
	}

	fmt.Fprintln(p.out, "Playback completed")
	return nil
}

func command(player, audioFile string) *exec.Cmd {
	switch player {
	case "vlc":
		return exec.Command("vlc", "--play-and-exit", audioFile)
	case "mpv":
		return exec.Command("mpv", "--no-video", audioFile)
	case "ffplay":
		return exec.Command("ffplay", "-nodisp", "-autoexit", audioFile)
	default:
		return exec.Command(player, audioFile)
	}
}

func (p *Player) findAudioPlayer() (string, error) {
	for _, player := range players {
		if _, err := p.lookPath(player); err == nil {
			return player, nil
		}
	}
	return "", fmt.Errorf("no audio player found (tried: %s)", strings.Join(players, ", "))
}
