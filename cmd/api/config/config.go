package config

import (
	"os"
	"strconv"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/joho/godotenv"
)

type Config struct {
	Port             string
	DataDir          string
	MBRBinPath       string
	DefaultDiskSize  datasize.ByteSize
	LoopWaitAttempts int
	LoopWaitInterval time.Duration
}

// Load loads configuration from environment variables.
// Automatically loads .env file if present.
func Load() *Config {
	// Try to load .env file (fail silently if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		DataDir:          getEnv("DATA_DIR", "/var/lib/bootimg"),
		MBRBinPath:       getEnv("MBR_BIN", "/usr/lib/syslinux/mbr/mbr.bin"),
		DefaultDiskSize:  getEnvSize("DEFAULT_DISK_SIZE", 2048*datasize.MB),
		LoopWaitAttempts: getEnvInt("LOOP_WAIT_ATTEMPTS", 10),
		LoopWaitInterval: getEnvDuration("LOOP_WAIT_INTERVAL", 100*time.Millisecond),
	}

	return cfg
}

// DefaultDiskSizeMiB returns the default disk size in whole MiB.
func (c *Config) DefaultDiskSizeMiB() int64 {
	return int64(c.DefaultDiskSize.MBytes())
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvSize(key string, defaultValue datasize.ByteSize) datasize.ByteSize {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := datasize.ParseString(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
