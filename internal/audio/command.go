package audio

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Placeholders substituted in CommandPlayer arguments.
const (
	FilePlaceholder   = "{file}"
	VolumePlaceholder = "{volume}"
)

// DefaultCommand is the external player used when none is configured.
const DefaultCommand = "pw-cat"

// DefaultArgs plays {file} through PipeWire at {volume}.
var DefaultArgs = []string{"--playback", "--volume", VolumePlaceholder, FilePlaceholder}

const defaultCommandTimeout = 30 * time.Second

// CommandPlayer plays sounds by running an external program.
type CommandPlayer struct {
	Command string
	Args    []string
	Timeout time.Duration
}

// NewCommandPlayer creates a player for command. Empty values fall back to
// pw-cat and its default arguments.
func NewCommandPlayer(command string, args []string) *CommandPlayer {
	if command == "" {
		command = DefaultCommand
	}
	if len(args) == 0 {
		args = DefaultArgs
	}
	return &CommandPlayer{
		Command: command,
		Args:    args,
		Timeout: defaultCommandTimeout,
	}
}

// Play runs the command and waits for it. A non-zero exit is an error.
func (p *CommandPlayer) Play(ctx context.Context, path string, volume float64) error {
	if path == "" {
		return errors.New("no sound file configured")
	}

	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	args := expandArgs(p.Args, ExpandPath(path), clampVolume(volume))
	cmd := exec.CommandContext(ctx, p.Command, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return fmt.Errorf("%s failed: %w: %s", p.Command, err, msg)
		}
		return fmt.Errorf("%s failed: %w", p.Command, err)
	}
	return nil
}

// expandArgs substitutes the file and volume placeholders.
func expandArgs(args []string, path string, volume float64) []string {
	vol := strconv.FormatFloat(volume, 'f', 2, 64)
	out := make([]string, len(args))
	for i, a := range args {
		a = strings.ReplaceAll(a, FilePlaceholder, path)
		a = strings.ReplaceAll(a, VolumePlaceholder, vol)
		out[i] = a
	}
	return out
}
