package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/meigma/cdfs"
)

var (
	listWriteList string

	listCmd = &cobra.Command{
		Use:   "list <archive>",
		Short: "List archive entries in stored order",
		Long: `List prints every entry in the archive's stored traversal order,
which is the physical layout order of the file data.

With --write-list the file paths are also written to a manifest that
'pack --manifest' accepts, reproducing the same layout.`,
		Args: cobra.ExactArgs(1),
		RunE: runList,
	}
)

func init() {
	listCmd.Flags().StringVar(&listWriteList, "write-list", "", "also write file paths to this manifest file")
}

func runList(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	src, err := cdfs.NewFileSource(f)
	if err != nil {
		return err
	}
	a, err := cdfs.Open(src, cdfs.OpenWithLogger(newLogger()))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	i := 0
	var files int
	var bytes uint64
	for e := range a.Entries() {
		if e.Kind == cdfs.KindDir {
			fmt.Fprintf(out, "%6d %12s  %s/\n", i, "-", e.Path)
		} else {
			fmt.Fprintf(out, "%6d %12d  %s\n", i, e.Length, e.Path)
			files++
			bytes += e.Length
		}
		i++
	}
	fmt.Fprintf(out, "%d files, %d bytes, %d sectors of %d bytes\n",
		files, bytes, a.TotalSectors(), a.SectorSize())

	if listWriteList != "" {
		lf, err := os.Create(listWriteList)
		if err != nil {
			return err
		}
		if err := a.WriteManifest(lf); err != nil {
			lf.Close()
			return err
		}
		return lf.Close()
	}
	return nil
}
