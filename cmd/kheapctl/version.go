package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/joshuapare/kheap/internal/format"
)

// Set by the release build with -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and heap geometry",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "kheapctl %s (%s, %s)\n", version, commit, date)
		fmt.Fprintf(out, "  go:         %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
		fmt.Fprintf(out, "  page size:  %d\n", format.PageSize)
		fmt.Fprintf(out, "  max chunk:  %d\n", format.MaxChunkSize)
		fmt.Fprintf(out, "  max refs:   %d\n", format.MaxRefs)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
