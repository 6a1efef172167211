package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config carries every run parameter the pipeline needs: the six directory
// roles, the run level, and the worker count. It replaces any ambient
// settings store; the orchestrator receives it explicitly.
type Config struct {
	LightDir      string
	DarkDir       string
	MasterDarkDir string
	FlatDir       string
	MasterFlatDir string
	OutputDir     string

	// Level selects which phases run: 0 processes darks, flats and
	// lights; 1 reuses existing master darks; 2 reuses existing master
	// darks and flats.
	Level int

	// Workers bounds the job pool; 0 means one worker per CPU core.
	Workers int

	Verbose bool
}

// Load builds a Config from environment variables with defaults. A .env
// file is read first if one exists.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		LightDir:      getEnv("ASTROREDUCE_LIGHT_DIR", "./lights"),
		DarkDir:       getEnv("ASTROREDUCE_DARK_DIR", "./darks"),
		MasterDarkDir: getEnv("ASTROREDUCE_MDARK_DIR", "./mdarks"),
		FlatDir:       getEnv("ASTROREDUCE_FLAT_DIR", "./flats"),
		MasterFlatDir: getEnv("ASTROREDUCE_MFLAT_DIR", "./mflats"),
		OutputDir:     getEnv("ASTROREDUCE_OUTPUT_DIR", "./output"),
		Level:         getEnvInt("ASTROREDUCE_LEVEL", 0),
		Workers:       getEnvInt("ASTROREDUCE_WORKERS", 0),
		Verbose:       getEnv("ASTROREDUCE_VERBOSE", "") == "true",
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
