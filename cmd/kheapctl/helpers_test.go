package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

// resetFlags puts the global flags back to a small, quiet default machine.
func resetFlags(t *testing.T) {
	t.Helper()
	verbose = false
	quiet = false
	jsonOut = false
	logDir = ""
	logStderr = false
	layoutFile = ""
	ramMiB = 4
}

// writeLayout writes a YAML layout file into a temp dir and points --layout at it.
func writeLayout(t *testing.T, yamlText string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "layout.yaml")
	if err := os.WriteFile(path, []byte(yamlText), 0o644); err != nil {
		t.Fatalf("failed to write layout: %v", err)
	}
	layoutFile = path
}

// captureOutput runs fn with os.Stdout redirected into a pipe and returns
// what it printed.
func captureOutput(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}
	saved := os.Stdout
	os.Stdout = w

	// Drain concurrently so large outputs cannot fill the pipe.
	done := make(chan []byte)
	go func() {
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(r)
		done <- buf.Bytes()
	}()

	runErr := fn()

	os.Stdout = saved
	w.Close()
	return string(<-done), runErr
}

func assertJSON(t *testing.T, output string) {
	t.Helper()
	assert.True(t, json.Valid([]byte(output)), "invalid JSON output:\n%s", output)
}

func assertContains(t *testing.T, output string, expected []string) {
	t.Helper()
	for _, want := range expected {
		assert.Contains(t, output, want)
	}
}

func assertNotContains(t *testing.T, output string, unwanted []string) {
	t.Helper()
	for _, dont := range unwanted {
		assert.NotContains(t, output, dont)
	}
}
