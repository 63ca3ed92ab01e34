package types

// Scheme selects how group key material is turned into a cipher.
type Scheme string

const (
	// SchemeRSAOAEP uses a shared RSA key pair (PEM encoded).
	SchemeRSAOAEP Scheme = "rsa-oaep"
	// SchemePassphrase derives a symmetric key from a shared passphrase.
	SchemePassphrase Scheme = "passphrase"
)

// Valid reports whether s is a known scheme.
func (s Scheme) Valid() bool {
	return s == SchemeRSAOAEP || s == SchemePassphrase
}

// KeyMaterial is whatever a member supplies to join a group. Only the
// fields relevant to Scheme are populated.
type KeyMaterial struct {
	Scheme        Scheme `json:"scheme"`
	PublicKeyPEM  string `json:"public_key,omitempty"`
	PrivateKeyPEM string `json:"private_key,omitempty"`
	Passphrase    string `json:"passphrase,omitempty"`
	Salt          []byte `json:"salt,omitempty"`
}
