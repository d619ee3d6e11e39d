package client

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/stemsplit/api/internal/config"
)

// ErrTransformFailed is wrapped by every TransformError
var ErrTransformFailed = errors.New("separation failed")

// TransformError carries the captured output of a failed separation run
type TransformError struct {
	Err    error
	Output string
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("%v: %v", ErrTransformFailed, e.Err)
}

func (e *TransformError) Unwrap() []error {
	return []error{ErrTransformFailed, e.Err}
}

// Separator splits one input file into named parts
type Separator interface {
	// Separate returns the part names that were produced mapped to their local files
	Separate(ctx context.Context, inputPath, model, outputDir string) (map[string]string, error)
}

// CommandRunner executes a command and returns its combined output
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// DemucsClient runs the demucs command line separator
type DemucsClient struct {
	command   []string
	device    string
	parts     []string
	extension string
	run       CommandRunner
}

// NewDemucsClient creates a separator from configuration
func NewDemucsClient(cfg *config.SeparatorConfig) *DemucsClient {
	return &DemucsClient{
		command:   cfg.Command,
		device:    cfg.Device,
		parts:     cfg.Parts,
		extension: cfg.Extension,
		run:       runCommand,
	}
}

// WithRunner replaces the process runner
func (c *DemucsClient) WithRunner(run CommandRunner) *DemucsClient {
	c.run = run
	return c
}

// Separate runs the separator and collects {outputDir}/{model}/{stem}/{part}.{ext}
// for every configured part that exists afterwards.
func (c *DemucsClient) Separate(ctx context.Context, inputPath, model, outputDir string) (map[string]string, error) {
	if inputPath == "" {
		return nil, errors.New("input path required")
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	args := append([]string{}, c.command[1:]...)
	if c.device != "" {
		args = append(args, "-d", c.device)
	}
	args = append(args, "-n", model, "--out", outputDir)
	if c.extension == "mp3" {
		args = append(args, "--mp3")
	}
	args = append(args, inputPath)

	// A running separation is never aborted
	output, err := c.run(context.WithoutCancel(ctx), c.command[0], args...)
	if err != nil {
		return nil, &TransformError{Err: err, Output: strings.TrimSpace(string(output))}
	}

	stem := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	base := filepath.Join(outputDir, model, stem)
	produced := make(map[string]string, len(c.parts))
	for _, part := range c.parts {
		path := filepath.Join(base, part+"."+c.extension)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			produced[part] = path
		}
	}
	return produced, nil
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	return cmd.CombinedOutput()
}
