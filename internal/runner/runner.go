package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/CZERTAINLY/wait-for-it/internal/model"
)

const (
	ExitCannotExecute = 126
	ExitNotFound      = 127
)

// Command is the trailing command to execute once all services are up.
type Command struct {
	Path   string
	Args   []string
	Env    []string // nil inherits the environment
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// FromArgv builds a command with the standard streams of this process.
func FromArgv(argv []string) Command {
	var cmd Command
	if len(argv) > 0 {
		cmd.Path = argv[0]
		cmd.Args = append([]string(nil), argv[1:]...)
	}
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd
}

type Result struct {
	ExitCode int
	Err      error
}

// Runner executes a command and forwards its exit code. Cancelling the
// context sends SIGTERM to the command and kills it after KillDelay.
type Runner struct {
	killDelay time.Duration
}

func New() Runner {
	return Runner{killDelay: 10 * time.Second}
}

func (r Runner) WithKillDelay(d time.Duration) Runner {
	r.killDelay = d
	return r
}

// Run executes the command and waits for it. A non zero exit code is not an
// error. If the command can't be started, the error wraps model.ErrCommand
// and the exit code follows the shell convention (126 or 127).
func (r Runner) Run(ctx context.Context, proto Command) Result {
	var res Result
	if proto.Path == "" {
		res.ExitCode = ExitNotFound
		res.Err = fmt.Errorf("%w: empty command", model.ErrCommand)
		return res
	}

	cmd := exec.CommandContext(ctx, proto.Path, proto.Args...)
	cmd.Env = proto.Env
	cmd.Stdin = proto.Stdin
	cmd.Stdout = proto.Stdout
	cmd.Stderr = proto.Stderr
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = r.killDelay

	started := time.Now()
	if err := cmd.Start(); err != nil {
		res.ExitCode = startExitCode(err)
		res.Err = fmt.Errorf("%w: %w", model.ErrCommand, err)
		return res
	}
	slog.DebugContext(ctx, "command started", "path", proto.Path, "pid", cmd.Process.Pid)

	err := cmd.Wait()

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		res.ExitCode = 0
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
		if res.ExitCode < 0 {
			// terminated by a signal
			res.ExitCode = 1
		}
	default:
		res.ExitCode = 1
		res.Err = err
	}

	slog.DebugContext(ctx, "command finished",
		"path", proto.Path,
		"exit_code", res.ExitCode,
		"duration", time.Since(started),
	)
	return res
}

func startExitCode(err error) int {
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return ExitNotFound
	}
	return ExitCannotExecute
}
