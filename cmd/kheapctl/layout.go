package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/joshuapare/kheap/cmd/kheapctl/logger"
	"github.com/joshuapare/kheap/internal/format"
	"github.com/joshuapare/kheap/mem/vm"
)

// loadLayout reads the layout from --layout, or synthesizes one for --ram.
func loadLayout() (vm.Layout, error) {
	if layoutFile == "" {
		if ramMiB <= 0 {
			return vm.Layout{}, fmt.Errorf("--ram must be positive, got %d", ramMiB)
		}
		return vm.DefaultLayout(format.DRAMBase, ramMiB<<20), nil
	}

	data, err := os.ReadFile(layoutFile)
	if err != nil {
		return vm.Layout{}, fmt.Errorf("failed to read layout: %w", err)
	}
	var l vm.Layout
	if err := yaml.Unmarshal(data, &l); err != nil {
		return vm.Layout{}, fmt.Errorf("failed to parse layout %s: %w", layoutFile, err)
	}
	return l, nil
}

// boot brings up a Space for the configured layout.
func boot() (*vm.Space, error) {
	l, err := loadLayout()
	if err != nil {
		return nil, err
	}
	printVerbose("Booting with %s of RAM at %s\n", formatBytes(l.RAMSize()), hexAddr(l.TextStart))

	cfg := vm.DefaultConfig
	cfg.Logger = logger.L
	s, err := vm.Init(l, cfg)
	if err != nil {
		return nil, fmt.Errorf("boot failed: %w", err)
	}
	return s, nil
}
