package config

import "time"

// RemoteConfig holds back-office API configuration
type RemoteConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	Retry   RetryConfig
}

// RetryConfig holds retry configuration for transient request failures
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRemoteConfig returns the default back-office API configuration
func DefaultRemoteConfig() *RemoteConfig {
	return &RemoteConfig{
		Timeout: 60 * time.Second,
		Retry: RetryConfig{
			MaxRetries:     3,
			InitialBackoff: time.Second,
			MaxBackoff:     time.Minute,
		},
	}
}
