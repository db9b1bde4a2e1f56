// Package audio plays synthesized speech through a local command-line player.
package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/teslashibe/go-presence/pkg/tts"
)

// ErrNoPlayer is returned when no command is configured for an encoding.
var ErrNoPlayer = errors.New("audio: no player for encoding")

// Runner executes a player command and waits for it to exit.
type Runner func(ctx context.Context, name string, args ...string) error

// ExecRunner runs the command with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// DefaultCommands maps encodings to player command lines. The literal
// {file} is replaced with the path of the audio file.
func DefaultCommands() map[tts.Encoding][]string {
	return map[tts.Encoding][]string{
		tts.EncodingMP3:   {"mpg123", "-q", "{file}"},
		tts.EncodingWAV:   {"aplay", "-q", "{file}"},
		tts.EncodingPCM24: {"aplay", "-q", "-f", "S16_LE", "-r", "24000", "-c", "1", "{file}"},
	}
}

// Player writes audio to a temp file and hands it to an external player.
// Playback is serialized so utterances never overlap.
type Player struct {
	commands map[tts.Encoding][]string
	run      Runner
	tmpDir   string
	logger   *slog.Logger

	// Callbacks
	OnPlaybackStart func()
	OnPlaybackEnd   func()

	playMu     sync.Mutex
	speaking   bool
	speakingMu sync.Mutex
}

// NewPlayer creates a player. A nil commands map uses DefaultCommands and a
// nil runner uses ExecRunner.
func NewPlayer(commands map[tts.Encoding][]string, run Runner, logger *slog.Logger) *Player {
	if commands == nil {
		commands = DefaultCommands()
	}
	if run == nil {
		run = ExecRunner
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Player{
		commands: commands,
		run:      run,
		tmpDir:   os.TempDir(),
		logger:   logger.With("component", "audio.player"),
	}
}

// SetCommand overrides the command line for one encoding.
func (p *Player) SetCommand(enc tts.Encoding, argv []string) {
	p.playMu.Lock()
	defer p.playMu.Unlock()
	p.commands[enc] = argv
}

// Play blocks until the audio has finished playing.
func (p *Player) Play(ctx context.Context, res *tts.AudioResult) error {
	if res == nil || len(res.Audio) == 0 {
		return nil
	}

	p.playMu.Lock()
	defer p.playMu.Unlock()

	argv, ok := p.commands[res.Format.Encoding]
	if !ok || len(argv) == 0 {
		return fmt.Errorf("%w %q", ErrNoPlayer, res.Format.Encoding)
	}

	f, err := os.CreateTemp(p.tmpDir, "presence-tts-*"+res.Format.Encoding.Extension())
	if err != nil {
		return fmt.Errorf("audio: temp file: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.Write(res.Audio); err != nil {
		f.Close()
		return fmt.Errorf("audio: write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("audio: close temp file: %w", err)
	}

	args := make([]string, 0, len(argv)-1)
	for _, a := range argv[1:] {
		args = append(args, strings.ReplaceAll(a, "{file}", path))
	}

	p.setSpeaking(true)
	if p.OnPlaybackStart != nil {
		p.OnPlaybackStart()
	}
	defer func() {
		p.setSpeaking(false)
		if p.OnPlaybackEnd != nil {
			p.OnPlaybackEnd()
		}
	}()

	p.logger.Debug("playing audio", "bytes", len(res.Audio), "encoding", res.Format.Encoding, "player", argv[0])
	if err := p.run(ctx, argv[0], args...); err != nil {
		return fmt.Errorf("audio: play: %w", err)
	}
	return nil
}

func (p *Player) setSpeaking(v bool) {
	p.speakingMu.Lock()
	p.speaking = v
	p.speakingMu.Unlock()
}

// IsSpeaking reports whether a clip is currently playing.
func (p *Player) IsSpeaking() bool {
	p.speakingMu.Lock()
	defer p.speakingMu.Unlock()
	return p.speaking
}
