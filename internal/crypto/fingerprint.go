package crypto

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"io"

	"golang.org/x/crypto/hkdf"

	"cipherlog/internal/domain"
)

const groupIDInfo = "cipherlog group-identity"

// GroupIDFromPublicKey returns the SHA-256 hex digest of a PKIX DER
// public key.
func GroupIDFromPublicKey(der []byte) domain.GroupID {
	sum := sha256.Sum256(der)
	return domain.GroupID(hex.EncodeToString(sum[:]))
}

// GroupIDFromKey expands a derived symmetric key into a group identity.
// The key itself is never revealed by the identity.
func GroupIDFromKey(key []byte) domain.GroupID {
	r := hkdf.New(sha256.New, key, nil, []byte(groupIDInfo))
	out := make([]byte, sha256.Size)
	if _, err := io.ReadFull(r, out); err != nil {
		// hkdf only fails past 255*HashLen bytes of output.
		panic(err)
	}
	return domain.GroupID(hex.EncodeToString(out))
}

// GroupIDFromPEM returns the group identity of a PEM public key.
func GroupIDFromPEM(publicPEM string) (domain.GroupID, error) {
	pub, err := ParsePublicKey(publicPEM)
	if err != nil {
		return "", err
	}
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", err
	}
	return GroupIDFromPublicKey(der), nil
}
