package config

import "time"

// SyncConfig holds synchronization configuration
type SyncConfig struct {
	Interval time.Duration
}

// DefaultSyncConfig returns the default sync configuration
func DefaultSyncConfig() *SyncConfig {
	return &SyncConfig{
		Interval: time.Minute * 5,
	}
}
