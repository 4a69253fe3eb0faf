package capture

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

const (
	// CommandTimeout bounds a single clipboard read
	CommandTimeout = 5 * time.Second

	// MaxTextSize is the largest clipboard text forwarded
	MaxTextSize = 1 << 20
)

type tool struct {
	name string
	args []string
}

// Supported clipboard tools in order of preference
var tools = []tool{
	{name: "wl-paste", args: []string{"--no-newline", "--type", "text"}},
	{name: "xsel", args: []string{"--output", "--clipboard"}},
	{name: "xclip", args: []string{"-out", "-selection", "clipboard"}},
	{name: "pbpaste"},
}

// CommandReader reads the clipboard by running a platform clipboard tool
type CommandReader struct {
	tool    tool
	timeout time.Duration
	run     func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// DetectReader returns a reader for the first clipboard tool found on PATH
func DetectReader() (*CommandReader, error) {
	return detect(exec.LookPath)
}

func detect(lookup func(string) (string, error)) (*CommandReader, error) {
	for _, t := range tools {
		if _, err := lookup(t.name); err == nil {
			return &CommandReader{tool: t, timeout: CommandTimeout, run: runCommand}, nil
		}
	}
	return nil, fmt.Errorf("no clipboard tool found (install wl-clipboard, xsel or xclip)")
}

// Tool is the name of the command in use
func (r *CommandReader) Tool() string {
	return r.tool.name
}

// Read returns the current clipboard text. An empty clipboard is not an error. Any
// failure of the tool is reported as ErrCaptureDenied.
func (r *CommandReader) Read(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	output, err := r.run(ctx, r.tool.name, r.tool.args...)
	if ctx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("%w: %s timed out after %v", ErrCaptureDenied, r.tool.name, r.timeout)
	}
	if err != nil {
		var exitErr *exec.ExitError
		// Empty clipboard on some systems
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 && len(output) == 0 {
			return "", nil
		}
		return "", fmt.Errorf("%w: %s: %v", ErrCaptureDenied, r.tool.name, err)
	}
	if len(output) > MaxTextSize {
		return "", fmt.Errorf("%w: clipboard exceeds %d bytes", ErrCaptureDenied, MaxTextSize)
	}
	return string(output), nil
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}
