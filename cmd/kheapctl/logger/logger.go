// Package logger holds the process-wide logger for kheapctl. Output is
// discarded until Init enables it.
package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// L is the global logger. Library packages receive it through their
// WithLogger options.
var L = discard()

// out is the file behind L when logging to disk.
var out io.Closer

const (
	logPrefix     = "kheapctl-"
	logSuffix     = ".log"
	dateLayout    = "2006-01-02"
	retentionDays = 30
)

// Options configures the logger initialization.
type Options struct {
	Enabled bool       // false discards everything
	LogDir  string     // default ~/.kheapctl/logs
	Level   slog.Level // minimum level; the zero value is Info
	Stderr  bool       // text records on stderr instead of a JSON file
}

// Init replaces L according to opts, closing any file a previous call
// opened. File output goes to one JSON file per day; files older than the
// retention window are removed on the way.
func Init(opts Options) error {
	if err := Close(); err != nil {
		return err
	}
	if !opts.Enabled {
		return nil
	}

	handlerOpts := &slog.HandlerOptions{Level: opts.Level}
	if opts.Stderr {
		L = slog.New(slog.NewTextHandler(os.Stderr, handlerOpts))
		return nil
	}

	dir := opts.LogDir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		dir = filepath.Join(home, ".kheapctl", "logs")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	now := time.Now()
	pruneLogs(dir, now)

	f, err := os.OpenFile(filepath.Join(dir, logFileName(now)), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	out = f
	L = slog.New(slog.NewJSONHandler(f, handlerOpts))
	return nil
}

// Close flushes and closes the log file, if any, and resets L to discard.
func Close() error {
	L = discard()
	if out == nil {
		return nil
	}
	err := out.Close()
	out = nil
	return err
}

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func logFileName(day time.Time) string {
	return logPrefix + day.Format(dateLayout) + logSuffix
}

// pruneLogs removes kheapctl log files dated before the retention window.
// Errors are ignored.
func pruneLogs(dir string, now time.Time) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	cutoff := now.AddDate(0, 0, -retentionDays)

	for _, e := range entries {
		stamp, ok := strings.CutPrefix(e.Name(), logPrefix)
		if !ok {
			continue
		}
		stamp, ok = strings.CutSuffix(stamp, logSuffix)
		if !ok {
			continue
		}
		day, err := time.Parse(dateLayout, stamp)
		if err != nil || !day.Before(cutoff) {
			continue
		}
		_ = os.Remove(filepath.Join(dir, e.Name()))
	}
}
