package types

import "time"

// Identity ties a participant to its network origin and to a token
// persisted on the device.
type Identity struct {
	IdentityHash string `json:"identity_hash"`
	DeviceToken  string `json:"device_token"`
}

// BanRecord denies access to a matching identity until ExpiresAt.
type BanRecord struct {
	IdentityHash string    `json:"identity_hash"`
	DeviceToken  string    `json:"device_token"`
	Reason       string    `json:"reason"`
	IssuedAt     time.Time `json:"issued_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Active reports whether the ban is still in force at now.
func (b BanRecord) Active(now time.Time) bool { return now.Before(b.ExpiresAt) }

// Matches reports whether the ban applies to id. Either field matching is
// enough.
func (b BanRecord) Matches(id Identity) bool {
	if b.IdentityHash != "" && b.IdentityHash == id.IdentityHash {
		return true
	}
	return b.DeviceToken != "" && b.DeviceToken == id.DeviceToken
}

// RateWindow counts messages sent by one session in the current window.
type RateWindow struct {
	WindowStart time.Time
	Count       int
}
