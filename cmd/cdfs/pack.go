package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/meigma/cdfs"
)

var (
	packSectorSize uint32
	packCacheSize  int64
	packChecksums  bool
	packManifest   string

	packCmd = &cobra.Command{
		Use:   "pack <input-dir> <output-file>",
		Short: "Pack a directory into an archive",
		Long: `Pack writes every regular file under input-dir into a new archive.

Files are laid out in walk order (lexicographic within each directory)
unless --manifest names a path list, in which case that exact order is
used. On failure the partial output file is removed.`,
		Args: cobra.ExactArgs(2),
		RunE: runPack,
	}
)

func init() {
	packCmd.Flags().Uint32Var(&packSectorSize, "sector-size", cdfs.DefaultSectorSize, "sector size in bytes (power of two, 512-65536)")
	packCmd.Flags().Int64Var(&packCacheSize, "cache-size", cdfs.DefaultCacheSize, "write cache budget in bytes")
	packCmd.Flags().BoolVar(&packChecksums, "checksums", false, "record a SHA-256 digest per file (reads each input twice)")
	packCmd.Flags().StringVar(&packManifest, "manifest", "", "pack the paths listed in this file, in order")
}

func runPack(cmd *cobra.Command, args []string) error {
	inputDir, outputFile := args[0], args[1]
	logger := newLogger()

	src := cdfs.DirSource(inputDir)
	if packManifest != "" {
		f, err := os.Open(packManifest)
		if err != nil {
			return err
		}
		paths, err := cdfs.ReadManifest(f)
		f.Close()
		if err != nil {
			return err
		}
		src = cdfs.ManifestSource(inputDir, paths)
	}

	out, err := os.Create(outputFile)
	if err != nil {
		return err
	}

	opts := []cdfs.PackOption{
		cdfs.PackWithSectorSize(packSectorSize),
		cdfs.PackWithCacheSize(packCacheSize),
		cdfs.PackWithLogger(logger),
	}
	if packChecksums {
		opts = append(opts, cdfs.PackWithChecksums())
	}

	summary, err := cdfs.Pack(cmd.Context(), src, out, opts...)
	if err != nil {
		out.Close()
		// An interrupted pack leaves a truncated stream behind.
		os.Remove(outputFile)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(outputFile)
		return err
	}

	for _, w := range summary.Warnings {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning:", w.Error())
	}
	fmt.Fprintf(cmd.OutOrStdout(), "packed %d files (%d bytes) into %d sectors of %d bytes\n",
		summary.Files, summary.Bytes, summary.TotalSectors, summary.SectorSize)
	return nil
}
