package relay

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config carries the relay's runtime settings. Values come from the
// environment with sensible defaults, so the relay runs with no setup.
type Config struct {
	Port        string
	MediaDir    string
	MaxUploadMB int
	Environment string
}

// LoadConfig reads a .env file when one is present and falls back to
// defaults for anything unset.
func LoadConfig() Config {
	// A missing .env file is fine; explicit environment still applies.
	_ = godotenv.Load()

	return Config{
		Port:        getEnv("BEAMCAST_PORT", "8080"),
		MediaDir:    getEnv("BEAMCAST_MEDIA_DIR", "beamcast-media"),
		MaxUploadMB: getEnvInt("BEAMCAST_MAX_UPLOAD_MB", 512),
		Environment: getEnv("BEAMCAST_ENV", "development"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
