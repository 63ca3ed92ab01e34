package types

// Username is the display name attached to every log entry.
type Username string

// String returns the string form of the username.
func (u Username) String() string { return string(u) }

// GroupID identifies a group log. It is derived from the group key
// material, so every member holding the same keys computes the same value.
type GroupID string

// String returns the string form of the group identifier.
func (g GroupID) String() string { return string(g) }

// Short returns the first 12 characters for display.
func (g GroupID) Short() string {
	if len(g) <= 12 {
		return string(g)
	}
	return string(g[:12])
}

const (
	// MaxUsernameLength bounds display names.
	MaxUsernameLength = 20
	// MaxMessageLength bounds message text.
	MaxMessageLength = 1000
)
