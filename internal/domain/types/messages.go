package types

import "time"

// Message is one persisted log entry. Author and Timestamp are stored in
// the clear; only the text is encrypted.
type Message struct {
	ID         string    `json:"id"`
	Author     Username  `json:"author"`
	Timestamp  time.Time `json:"timestamp"`
	Ciphertext []byte    `json:"ciphertext"`
}

// Line is a decrypted entry ready for display.
type Line struct {
	ID        string
	Author    Username
	Timestamp time.Time
	Text      string
	IsSelf    bool
}
