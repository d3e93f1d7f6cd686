package main

import "strings"

// QualityPreset pairs a bitrate hint with the capture ceilings that make it
// achievable.
type QualityPreset struct {
	Name        string
	Bitrate     int // kbps, advisory hint for the transport
	MaxWidth    int
	MaxHeight   int
	Description string
}

// Quality presets from lowest to highest.
var QualityPresets = []QualityPreset{
	{Name: "Low", Bitrate: 500, MaxWidth: 854, MaxHeight: 480, Description: "500 kbps"},
	{Name: "Medium", Bitrate: 1500, MaxWidth: 1280, MaxHeight: 720, Description: "1.5 Mbps"},
	{Name: "High", Bitrate: 3000, MaxWidth: 1920, MaxHeight: 1080, Description: "3 Mbps"},
	{Name: "Ultra", Bitrate: 6000, MaxWidth: 2560, MaxHeight: 1440, Description: "6 Mbps"},
	{Name: "Max", Bitrate: 12000, MaxWidth: 3840, MaxHeight: 2160, Description: "12 Mbps"},
}

// DefaultQualityIndex returns the index of the default preset (Medium).
func DefaultQualityIndex() int {
	return 1
}

// QualityByName finds a preset by name, case-insensitive. Nil when unknown.
func QualityByName(name string) *QualityPreset {
	name = strings.ToLower(strings.TrimSpace(name))
	for i := range QualityPresets {
		if strings.ToLower(QualityPresets[i].Name) == name {
			return &QualityPresets[i]
		}
	}
	return nil
}

// ParseQualityFlag resolves a --quality value, accepting the short legacy
// names, and falls back to the default preset.
func ParseQualityFlag(value string) *QualityPreset {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "lo", "low":
		return &QualityPresets[0]
	case "med", "medium":
		return &QualityPresets[1]
	case "hi", "high":
		return &QualityPresets[2]
	}
	if preset := QualityByName(value); preset != nil {
		return preset
	}
	return &QualityPresets[DefaultQualityIndex()]
}
