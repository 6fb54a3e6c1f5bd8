package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port         string
	DataDir      string
	RemoteAPIURL string
	RemoteToken  string
	SyncInterval time.Duration
}

func Load() (*Config, error) {
	port := getEnv("PORT", "8090")
	dataDir := getEnv("DATA_DIR", "./data")
	remoteURL := getEnv("REMOTE_API_URL", "")
	remoteToken := getEnv("REMOTE_API_TOKEN", "")

	syncInterval := DefaultSyncConfig().Interval
	if raw := os.Getenv("SYNC_INTERVAL_MINUTES"); raw != "" {
		minutes, err := strconv.Atoi(raw)
		if err != nil {
			return nil, err
		}
		syncInterval = time.Duration(minutes) * time.Minute
	}

	return &Config{
		Port:         port,
		DataDir:      dataDir,
		RemoteAPIURL: remoteURL,
		RemoteToken:  remoteToken,
		SyncInterval: syncInterval,
	}, nil
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
