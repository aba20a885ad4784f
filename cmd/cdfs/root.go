package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

// Version is the semantic version (set via -ldflags).
var Version = "dev"

var (
	debug bool

	rootCmd = &cobra.Command{
		Use:   "cdfs",
		Short: "Pack, unpack, list, and verify CDFS archives",
		Long: `cdfs works with CDFS sector-addressed archives: single-file
containers that store a directory tree with every file aligned to a
sector boundary, so any entry can be read with whole-sector I/O.

Entries keep the order they were packed in; a manifest file can pin
that order explicitly for layout-sensitive archives.`,
	}
)

// ExitError carries a specific process exit code out of a command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit code %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(packCmd)
	rootCmd.AddCommand(unpackCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(verifyCmd)
}

// newLogger builds the logger handed to the library. Debug level only when
// --debug is set; otherwise info and up.
func newLogger() *slog.Logger {
	level := log.InfoLevel
	if debug {
		level = log.DebugLevel
	}
	return slog.New(log.NewWithOptions(os.Stderr, log.Options{
		Level:  level,
		Prefix: "cdfs",
	}))
}

func execute() {
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(Version),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}
