package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joshuapare/kheap/mem/kalloc"
)

var (
	dumpAlloc     []int
	dumpFreeEvery int
	dumpCompact   bool
)

func init() {
	cmd := newDumpCmd()
	cmd.Flags().IntSliceVar(&dumpAlloc, "alloc", nil, "Allocation sizes to request, in order")
	cmd.Flags().IntVar(&dumpFreeEvery, "free-every", 0, "Free every Nth allocation after the script runs (0 keeps all)")
	cmd.Flags().BoolVar(&dumpCompact, "compact", false, "One line per zone")
	rootCmd.AddCommand(cmd)
}

func newDumpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dump",
		Short: "Replay an allocation script and print every zone and chunk",
		Long: `The dump command boots kernel memory, requests the given allocation sizes
in order, optionally frees every Nth one, and then prints the heap: each
zone with its ref count and link, and each chunk with its header.

Example:
  kheapctl dump --alloc 32,64,4080
  kheapctl dump --alloc 16,16,16,16 --free-every 2
  kheapctl dump --alloc 100,200 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump()
		},
	}
}

// ZoneDump is one zone in the dump output.
type ZoneDump struct {
	Base   string      `json:"base"`
	Next   string      `json:"next,omitempty"`
	Refs   int         `json:"refs"`
	Free   int         `json:"free_bytes"`
	Chunks []ChunkDump `json:"chunks"`
}

// ChunkDump is one chunk in the dump output.
type ChunkDump struct {
	Header string `json:"header"`
	Data   string `json:"data"`
	Size   int    `json:"size"`
	Used   bool   `json:"used"`
}

func runDump() error {
	if dumpFreeEvery < 0 {
		return fmt.Errorf("--free-every must not be negative, got %d", dumpFreeEvery)
	}

	s, err := boot()
	if err != nil {
		return err
	}
	defer s.Close()

	var chunks []kalloc.Chunk
	for i, size := range dumpAlloc {
		c, err := s.Heap.Alloc(size)
		if err != nil {
			return fmt.Errorf("alloc #%d (%d bytes): %w", i+1, size, err)
		}
		printVerbose("alloc(%d) = %s\n", size, hexAddr(c.Addr))
		chunks = append(chunks, c)
	}
	if dumpFreeEvery > 0 {
		for i := dumpFreeEvery - 1; i < len(chunks); i += dumpFreeEvery {
			printVerbose("free(%s)\n", hexAddr(chunks[i].Addr))
			s.Heap.Free(chunks[i])
		}
	}
	if err := s.Heap.Verify(); err != nil {
		return err
	}

	zones := dumpZones(s.Heap.Zones())
	if jsonOut {
		return printJSON(zones)
	}

	for _, z := range zones {
		next := z.Next
		if next == "" {
			next = "-"
		}
		printInfo("zone %s  refs=%d  next=%s  free=%s\n", z.Base, z.Refs, next, formatBytes(z.Free))
		if dumpCompact {
			continue
		}
		for _, c := range z.Chunks {
			state := "free"
			if c.Used {
				state = "used"
			}
			printInfo("  %s  %s %5d\n", c.Data, state, c.Size)
		}
	}
	printInfo("%s\n", strings.Repeat("-", 40))
	printStats(s.Heap.GetStats())
	return nil
}

func dumpZones(infos []kalloc.ZoneInfo) []ZoneDump {
	out := make([]ZoneDump, 0, len(infos))
	for _, zi := range infos {
		z := ZoneDump{
			Base: hexAddr(zi.Base),
			Refs: zi.Refs,
			Free: zi.FreeBytes(),
		}
		if zi.Next != 0 {
			z.Next = hexAddr(zi.Next)
		}
		for _, c := range zi.Chunks {
			z.Chunks = append(z.Chunks, ChunkDump{
				Header: hexAddr(c.Header),
				Data:   hexAddr(c.Data),
				Size:   c.Size,
				Used:   c.Used,
			})
		}
		out = append(out, z)
	}
	return out
}
