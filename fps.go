package main

import (
	"strconv"
	"strings"
)

// FPSPreset is a framerate ceiling the capture side will not exceed.
type FPSPreset struct {
	Value       int
	Description string
}

var FPSPresets = []FPSPreset{
	{Value: 15, Description: "low power"},
	{Value: 24, Description: "cinematic"},
	{Value: 30, Description: "standard"},
	{Value: 60, Description: "smooth"},
}

// DefaultFPSIndex returns the index of the default preset (30).
func DefaultFPSIndex() int {
	return 2
}

// ParseFPSFlag parses a --fps value, falling back to the default on garbage.
func ParseFPSFlag(value string) int {
	if fps, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && fps > 0 {
		return fps
	}
	return FPSPresets[DefaultFPSIndex()].Value
}

// NearestFPS clamps an arbitrary framerate onto the preset ladder, used when
// validating persisted settings.
func NearestFPS(fps int) int {
	if fps <= 0 {
		return FPSPresets[DefaultFPSIndex()].Value
	}
	best := FPSPresets[0].Value
	for _, p := range FPSPresets {
		if abs(p.Value-fps) < abs(best-fps) {
			best = p.Value
		}
	}
	return best
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
