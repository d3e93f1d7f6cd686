package main

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// UserSettings holds persistable user preferences.
type UserSettings struct {
	Quality         string  `json:"quality"`
	Codec           string  `json:"codec"`
	FPS             int     `json:"fps"`
	SignalURL       string  `json:"signalUrl,omitempty"`
	SyncIntervalSec float64 `json:"syncIntervalSec"`
}

// SettingsManager handles loading and saving user settings.
type SettingsManager struct {
	path     string
	settings UserSettings
}

// NewSettingsManager creates a settings manager with the default config path.
func NewSettingsManager() (*SettingsManager, error) {
	path, err := settingsPath()
	if err != nil {
		return nil, err
	}
	return &SettingsManager{path: path}, nil
}

// settingsPath returns the config file location. XDG_CONFIG_HOME overrides
// the platform default.
func settingsPath() (string, error) {
	var configDir string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		configDir = filepath.Join(xdg, "beamcast")
	} else {
		userConfigDir, err := os.UserConfigDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(userConfigDir, "beamcast")
	}
	return filepath.Join(configDir, "config.json"), nil
}

// DefaultSettings returns the defaults used when nothing is stored.
func DefaultSettings() UserSettings {
	return UserSettings{
		Quality:         QualityPresets[DefaultQualityIndex()].Name,
		Codec:           string(CodecVP8),
		FPS:             FPSPresets[DefaultFPSIndex()].Value,
		SyncIntervalSec: 5,
	}
}

// Load reads settings from the config file. A missing or unreadable file
// yields defaults, not an error.
func (sm *SettingsManager) Load() (UserSettings, error) {
	sm.settings = DefaultSettings()

	data, err := os.ReadFile(sm.path)
	if err != nil {
		if os.IsNotExist(err) {
			return sm.settings, nil
		}
		return sm.settings, err
	}

	if err := json.Unmarshal(data, &sm.settings); err != nil {
		sm.settings = DefaultSettings()
		return sm.settings, nil
	}

	sm.validate()
	return sm.settings, nil
}

// validate snaps out-of-range values back to defaults so a hand-edited file
// cannot wedge startup.
func (sm *SettingsManager) validate() {
	if QualityByName(sm.settings.Quality) == nil {
		sm.settings.Quality = QualityPresets[DefaultQualityIndex()].Name
	}
	sm.settings.Codec = string(ParseCodecFlag(sm.settings.Codec))
	sm.settings.FPS = NearestFPS(sm.settings.FPS)
	if sm.settings.SyncIntervalSec <= 0 {
		sm.settings.SyncIntervalSec = 5
	}
}

// Save writes settings to the config file, creating the directory as needed.
func (sm *SettingsManager) Save(settings UserSettings) error {
	sm.settings = settings

	if err := os.MkdirAll(filepath.Dir(sm.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(sm.path, data, 0o644)
}

// Settings returns the current settings.
func (sm *SettingsManager) Settings() UserSettings {
	return sm.settings
}
