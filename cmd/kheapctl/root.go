package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/joshuapare/kheap/cmd/kheapctl/logger"
)

var (
	// Global flags
	verbose    bool
	quiet      bool
	jsonOut    bool
	logDir     string
	logStderr  bool
	layoutFile string
	ramMiB     int
)

var rootCmd = &cobra.Command{
	Use:   "kheapctl",
	Short: "Boot and exercise the kernel heap in a simulated RISC-V machine",
	Long: `kheapctl brings up the kernel memory core (page pool, Sv39 kernel page
table and the sub-page heap allocator) over simulated RAM, then lets you
inspect the result, replay allocation scripts and run randomized workloads
with the heap invariants checked along the way.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		return logger.Init(logger.Options{
			Enabled: logDir != "" || logStderr,
			LogDir:  logDir,
			Level:   level,
			Stderr:  logStderr,
		})
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return logger.Close()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().
		BoolVarP(&quiet, "quiet", "q", false, "Suppress all output except errors")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVar(&logDir, "log", "", "Write JSON logs to a dated file in this directory")
	rootCmd.PersistentFlags().BoolVar(&logStderr, "log-stderr", false, "Write text logs to stderr")
	rootCmd.PersistentFlags().StringVar(&layoutFile, "layout", "", "YAML file with the kernel memory layout")
	rootCmd.PersistentFlags().IntVar(&ramMiB, "ram", 16, "RAM size in MiB when no --layout is given")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Helper functions for output

// printInfo prints an info message if not in quiet mode
func printInfo(format string, args ...any) {
	if !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printVerbose prints a verbose message if verbose mode is enabled
func printVerbose(format string, args ...any) {
	if verbose && !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printJSON outputs data as JSON
func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

var numbers = message.NewPrinter(language.English)

// formatNumber renders n with thousands separators.
func formatNumber(n int) string {
	return numbers.Sprintf("%d", n)
}

// formatBytes renders n as a human-readable size.
func formatBytes(n int) string {
	const unit = 1024
	if n < unit {
		return numbers.Sprintf("%d B", n)
	}
	div, exp := unit, 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return numbers.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func hexAddr(addr uintptr) string {
	return fmt.Sprintf("0x%08x", addr)
}
