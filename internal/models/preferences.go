package models

// SyncPreferences controls whether synchronization may use metered
// connections. Persisted as a singleton; mutated only by explicit user
// action and read fresh on every sync attempt.
type SyncPreferences struct {
	AllowMobileData bool `json:"allow_mobile_data"`
}

// DefaultSyncPreferences returns the preferences used before the user has
// ever touched the toggle.
func DefaultSyncPreferences() *SyncPreferences {
	return &SyncPreferences{AllowMobileData: false}
}
