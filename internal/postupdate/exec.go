package postupdate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
)

// ExecName is the registry name of the external-process strategy.
const ExecName = "exec"

// maxOutput caps the command output kept for the failure log.
const maxOutput = 4096

// ExecAction runs a local executable with the new IP as its last argument.
// The working directory is the executable's own directory.
type ExecAction struct {
	command string
	args    []string
	dir     string
	logger  *slog.Logger
}

// NewExecAction resolves command (via PATH when it has no separator) and
// returns an action running it with args followed by the IP.
func NewExecAction(command string, args []string, logger *slog.Logger) (*ExecAction, error) {
	if command == "" {
		return nil, errors.New("COMMAND is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	resolved, err := exec.LookPath(command)
	if err != nil {
		return nil, fmt.Errorf("resolving command %q: %w", command, err)
	}
	abs, err := filepath.Abs(resolved)
	if err != nil {
		return nil, fmt.Errorf("resolving command %q: %w", command, err)
	}

	return &ExecAction{
		command: abs,
		args:    args,
		dir:     filepath.Dir(abs),
		logger:  logger,
	}, nil
}

// ExecFactory returns the Factory for the exec strategy.
// Settings: COMMAND (required), ARGS (space-separated, optional).
func ExecFactory() Factory {
	return func(cfg FactoryConfig) (Action, error) {
		return NewExecAction(cfg.Settings["COMMAND"], strings.Fields(cfg.Settings["ARGS"]), cfg.Logger)
	}
}

// Name returns "exec".
func (a *ExecAction) Name() string {
	return ExecName
}

// Command returns the resolved executable path.
func (a *ExecAction) Command() string {
	return a.command
}

// Propagate runs the command and waits for it to exit. Once started the
// process is not killed when ctx ends; it runs to completion.
func (a *ExecAction) Propagate(ctx context.Context, ip string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	args := append(append([]string{}, a.args...), ip)
	cmd := exec.Command(a.command, args...)
	cmd.Dir = a.dir

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	a.logger.Debug("running post-update command",
		slog.String("command", a.command),
		slog.String("dir", a.dir),
	)

	if err := cmd.Run(); err != nil {
		output := strings.TrimSpace(out.String())
		if len(output) > maxOutput {
			output = output[:maxOutput]
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("command exited with status %d: %s", exitErr.ExitCode(), output)
		}
		return fmt.Errorf("starting command: %w", err)
	}
	return nil
}
