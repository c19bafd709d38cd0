package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/cuongbtq/queue-worker/internal/worker/domain"
)

const (
	defaultCommandTimeout = 5 * time.Minute
	commandWaitDelay      = time.Second
)

// Command runs a shell command per job. The payload is written to the
// command's stdin as JSON and the exit code becomes the outcome.
type Command struct {
	logger  *slog.Logger
	command string
	timeout time.Duration
}

// NewCommand creates a handler running command through sh -c
func NewCommand(command string, timeout time.Duration, logger *slog.Logger) *Command {
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	return &Command{
		logger:  logger.With(slog.String("handler", "command")),
		command: command,
		timeout: timeout,
	}
}

// Handle executes the command. A command that cannot be started or that
// exceeds the timeout is a fault; any exit status is an outcome.
func (c *Command) Handle(ctx context.Context, payload domain.Payload) (int, error) {
	input, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("failed to encode payload for command: %w", err)
	}

	execCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, "sh", "-c", c.command)
	cmd.Stdin = bytes.NewReader(input)
	// children left behind by sh must not hold the output pipes open
	cmd.WaitDelay = commandWaitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()

	if execCtx.Err() != nil {
		return 0, fmt.Errorf("command timed out after %s: %w", c.timeout, execCtx.Err())
	}

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return 0, fmt.Errorf("failed to run command: %w", err)
	}

	code := cmd.ProcessState.ExitCode()

	c.logger.Debug("Command finished",
		slog.String("command", c.command),
		slog.Int("exit_code", code),
		slog.String("stdout", stdout.String()),
		slog.String("stderr", stderr.String()),
	)

	return code, nil
}
