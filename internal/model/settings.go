package model

import "time"

// Settings is the locally persisted application state that is not part of
// any list. SyncData is the master switch for authenticated sync; shared
// lists always sync regardless.
type Settings struct {
	SyncData           bool      `json:"syncData"`
	AutoBackup         bool      `json:"autoBackup"`
	LastAutoBackupDate time.Time `json:"lastAutoBackupDate"`
	LastUpSyncDate     time.Time `json:"lastUpSyncDate"`

	// DeltaTokens holds the per-provider cursor up to which remote changes
	// have been consumed, keyed by provider id.
	DeltaTokens map[string]string `json:"deltaTokens,omitempty"`

	// StorageProvider selects the active backend; empty means the default
	// provider.
	StorageProvider string `json:"storageProvider,omitempty"`
}

// NewSettings returns settings with first-start defaults.
func NewSettings() *Settings {
	now := time.Now()
	return &Settings{
		AutoBackup:         true,
		LastAutoBackupDate: now,
		LastUpSyncDate:     now,
		DeltaTokens:        map[string]string{},
	}
}

// Clone returns a copy that stays stable while the original keeps
// changing. The delta token map is copied, not shared.
func (s *Settings) Clone() *Settings {
	c := *s
	c.DeltaTokens = make(map[string]string, len(s.DeltaTokens))
	for k, v := range s.DeltaTokens {
		c.DeltaTokens[k] = v
	}
	return &c
}

// DeltaToken returns the stored delta cursor for a provider, or "".
func (s *Settings) DeltaToken(providerID string) string {
	return s.DeltaTokens[providerID]
}

// SetDeltaToken stores (or with "" clears) the delta cursor for a provider.
func (s *Settings) SetDeltaToken(providerID, token string) {
	if s.DeltaTokens == nil {
		s.DeltaTokens = map[string]string{}
	}
	if token == "" {
		delete(s.DeltaTokens, providerID)
		return
	}
	s.DeltaTokens[providerID] = token
}
