package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/meigma/cdfs"
)

var (
	verifyChecksums bool
	verifyCacheSize int64

	verifyCmd = &cobra.Command{
		Use:   "verify <archive>",
		Short: "Check an archive's structural integrity",
		Long: `Verify re-derives the archive's layout invariants: every file span
inside the data region, no two spans overlapping, no duplicate names.

With --checksums each file's content is also hashed and compared to the
digest recorded at pack time, when the archive carries digests. The
command exits non-zero if any finding is reported.`,
		Args: cobra.ExactArgs(1),
		RunE: runVerify,
	}
)

func init() {
	verifyCmd.Flags().BoolVar(&verifyChecksums, "checksums", false, "also verify file content digests")
	verifyCmd.Flags().Int64Var(&verifyCacheSize, "cache-size", cdfs.DefaultCacheSize, "read cache budget in bytes")
}

func runVerify(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	src, err := cdfs.NewFileSource(f)
	if err != nil {
		return err
	}

	opts := []cdfs.VerifyOption{
		cdfs.VerifyWithCacheSize(verifyCacheSize),
		cdfs.VerifyWithLogger(newLogger()),
	}
	if verifyChecksums {
		opts = append(opts, cdfs.VerifyWithChecksums())
	}

	report, err := cdfs.Verify(cmd.Context(), src, opts...)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, finding := range report.Findings {
		fmt.Fprintln(out, finding.String())
	}
	if !report.OK() {
		return &ExitError{Code: 1, Err: fmt.Errorf("%d findings", len(report.Findings))}
	}

	mode := "structure"
	if report.ChecksumsVerified {
		mode = "structure and checksums"
	}
	fmt.Fprintf(out, "ok: %d files across %d sectors (%s)\n", report.Files, report.TotalSectors, mode)
	return nil
}
