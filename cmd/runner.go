package main

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/crossfade/internal/shared"
)

// Runner holds the dependencies every command needs: the loaded
// configuration, a structured logger, and the writer commands print
// human-readable output to.
type Runner struct {
	config *shared.Config
	logger *log.Logger
	output io.Writer
}

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	Config *shared.Config
	Logger *log.Logger
	Output io.Writer
}

// NewRunner builds a Runner, defaulting Output to os.Stdout.
func NewRunner(cfg RunnerConfig) *Runner {
	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}
	return &Runner{config: cfg.Config, logger: cfg.Logger, output: output}
}

func (r *Runner) writePlain(format string, args ...any) error {
	_, err := fmt.Fprintf(r.output, format, args...)
	return err
}

func (r *Runner) writePlainln(s string) error {
	_, err := fmt.Fprintln(r.output, s)
	return err
}

// register returns every top-level command the CLI exposes.
func (r *Runner) register() []*cli.Command {
	return []*cli.Command{
		setupCommand(r),
		authCommand(r),
		migrateCommand(r),
		cacheCommand(r),
	}
}
