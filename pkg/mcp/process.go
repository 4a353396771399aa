package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
)

// Spawn starts a tool source subprocess and returns a Client speaking the
// protocol over its stdio. The process dies with ctx.
func Spawn(ctx context.Context, name, command string, args []string, logger *slog.Logger) (*Client, error) {
	cmd := exec.CommandContext(ctx, command, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe for %s: %w", name, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe for %s: %w", name, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start tool source %s: %w", name, err)
	}
	go func() {
		// Reap the child; the exit error surfaces as a closed stream.
		_ = cmd.Wait()
	}()

	return NewClient(name, stdout, stdin, logger), nil
}
