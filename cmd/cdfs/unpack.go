package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/meigma/cdfs"
)

var (
	unpackCacheSize int64

	unpackCmd = &cobra.Command{
		Use:   "unpack <archive> <output-dir>",
		Short: "Extract an archive into a directory",
		Long: `Unpack recreates the archive's directory tree under output-dir.

Entries that cannot be written are reported and skipped; the command
exits non-zero if any entry failed.`,
		Args: cobra.ExactArgs(2),
		RunE: runUnpack,
	}
)

func init() {
	unpackCmd.Flags().Int64Var(&unpackCacheSize, "cache-size", cdfs.DefaultCacheSize, "read cache budget in bytes")
}

func runUnpack(cmd *cobra.Command, args []string) error {
	archivePath, outputDir := args[0], args[1]
	logger := newLogger()

	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	src, err := cdfs.NewFileSource(f)
	if err != nil {
		return err
	}
	a, err := cdfs.Open(src,
		cdfs.OpenWithCacheSize(unpackCacheSize),
		cdfs.OpenWithLogger(logger),
	)
	if err != nil {
		return err
	}

	summary, err := a.Extract(cmd.Context(), outputDir)
	if err != nil {
		return err
	}

	for _, fail := range summary.Failed {
		fmt.Fprintln(cmd.ErrOrStderr(), "error:", fail.Error())
	}
	fmt.Fprintf(cmd.OutOrStdout(), "extracted %d files (%d bytes)\n", summary.Files, summary.Bytes)
	if len(summary.Failed) > 0 {
		return &ExitError{Code: 1, Err: fmt.Errorf("%d entries failed", len(summary.Failed))}
	}
	return nil
}
