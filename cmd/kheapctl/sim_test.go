package main

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func resetSimFlags(t *testing.T) {
	t.Helper()
	resetFlags(t)
	simOps = 2000
	simSeed = 7
	simMaxSize = 512
	simFreePct = 45
	simVerifyEvery = 1
}

func TestSimCommand(t *testing.T) {
	resetSimFlags(t)

	output, err := captureOutput(t, runSim)
	require.NoError(t, err)
	assertContains(t, output, []string{
		"Simulation (seed 7)",
		"operations:  2,000",
		"Heap Statistics:",
		"live chunks:  0 (0 B)",
		"zones:        1",
		"Heap invariants held.",
	})
}

func TestSimCommand_JSON(t *testing.T) {
	resetSimFlags(t)
	jsonOut = true
	simMaxSize = 4080
	simVerifyEvery = 10

	output, err := captureOutput(t, runSim)
	require.NoError(t, err)

	var report SimReport
	require.NoError(t, json.Unmarshal([]byte(output), &report))
	require.Equal(t, uint64(7), report.Seed)
	require.Equal(t, report.Allocs, report.Frees, "every chunk is drained at the end")
	require.Equal(t, report.Allocs+report.OOMs, report.Heap.AllocCalls)
	require.Zero(t, report.Heap.LiveChunks)
	require.Equal(t, 1, report.Heap.Zones)
	require.Equal(t, report.Heap.GrowCalls, report.Heap.ShrinkCalls)
	require.Greater(t, report.PeakZones, 1)
}

func TestSimCommand_Deterministic(t *testing.T) {
	run := func() SimReport {
		resetSimFlags(t)
		jsonOut = true
		simVerifyEvery = 0
		output, err := captureOutput(t, runSim)
		require.NoError(t, err)
		var r SimReport
		require.NoError(t, json.Unmarshal([]byte(output), &r))
		return r
	}
	require.Equal(t, run(), run())
}

func TestSimCommand_OOM(t *testing.T) {
	resetSimFlags(t)
	ramMiB = 1
	simFreePct = 0
	simOps = 3000
	simMaxSize = 4080

	output, err := captureOutput(t, runSim)
	require.NoError(t, err)
	assertNotContains(t, output, []string{"out of mem:  0\n"})
}

func TestSimCommand_RejectsFlags(t *testing.T) {
	tests := []struct {
		name string
		set  func()
		want string
	}{
		{"max size", func() { simMaxSize = 5000 }, "--max-size"},
		{"negative size", func() { simMaxSize = -1 }, "--max-size"},
		{"free pct", func() { simFreePct = 101 }, "--free-pct"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetSimFlags(t)
			tt.set()
			_, err := captureOutput(t, runSim)
			require.ErrorContains(t, err, tt.want)
		})
	}
}
