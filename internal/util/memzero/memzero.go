// Package memzero clears key buffers once they are no longer needed.
package memzero

import "crypto/subtle"

// Zero overwrites b with zeros. A nil or empty slice is a no-op.
func Zero(b []byte) {
	if len(b) == 0 {
		return
	}
	subtle.ConstantTimeCopy(1, b, make([]byte, len(b)))
}
