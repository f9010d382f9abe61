package locksource

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
)

// LineStream yields raw monitor output lines until the underlying
// process exits, then reports end-of-stream. Close releases the
// process and its pipe; callers must Close before starting a
// replacement so only one monitor handle is open at a time.
type LineStream interface {
	Next() (string, bool)
	Close() error
}

// Source launches a signal monitor. The monitor is long-running but
// may exit on its own (session bus restart); that is normal lifecycle,
// not an error.
type Source interface {
	Start(ctx context.Context) (LineStream, error)
}

const screenSaverMatchRule = "type='signal',interface='org.freedesktop.ScreenSaver',member='ActiveChanged'"

// CommandSource runs an external command and streams its stdout. It
// never writes to the process.
type CommandSource struct {
	Name string
	Args []string
}

// NewDBusSource monitors the session bus for screen-lock transitions.
func NewDBusSource() CommandSource {
	return CommandSource{
		Name: "dbus-monitor",
		Args: []string{"--session", screenSaverMatchRule},
	}
}

func (s CommandSource) Start(ctx context.Context) (LineStream, error) {
	cmd := exec.CommandContext(ctx, s.Name, s.Args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("monitor stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", s.Name, err)
	}
	return &processStream{cmd: cmd, scanner: bufio.NewScanner(stdout)}, nil
}

type processStream struct {
	cmd     *exec.Cmd
	scanner *bufio.Scanner
	waited  bool
}

func (s *processStream) Next() (string, bool) {
	if s.scanner.Scan() {
		return s.scanner.Text(), true
	}
	return "", false
}

func (s *processStream) Close() error {
	if s.waited {
		return nil
	}
	s.waited = true
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	// Wait reaps the process and closes the stdout pipe; skipping it
	// would leak a descriptor on every monitor restart.
	_ = s.cmd.Wait()
	return nil
}

// ScriptSource replays a canned line sequence; it stands in for the
// real monitor in tests.
type ScriptSource struct {
	Lines []string

	starts int
}

func (s *ScriptSource) Start(ctx context.Context) (LineStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.starts++
	return &sliceStream{lines: s.Lines}, nil
}

// Starts reports how many times the source has been started.
func (s *ScriptSource) Starts() int {
	return s.starts
}

type sliceStream struct {
	lines []string
	pos   int
}

func (s *sliceStream) Next() (string, bool) {
	if s.pos >= len(s.lines) {
		return "", false
	}
	line := s.lines[s.pos]
	s.pos++
	return line, true
}

func (s *sliceStream) Close() error {
	s.pos = len(s.lines)
	return nil
}
