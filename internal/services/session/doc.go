// Package session coordinates one member's participation in a group.
//
// A Session validates credentials, resolves the member's identity,
// refuses banned identities, opens the group log and polls it in the
// background while connected. Sends pass through the rate limiter before
// they reach the log.
//
// State machine:
//
//	Disconnected -> Validating -> Connected -> Disconnected
//	                     \-> Disconnected (validation, ban or key failure)
//
// A ban issued while connected ends the session. Key material lives only
// in the cipher held by a connected session and is wiped on Disconnect.
// CredentialCache persists key material only when asked to.
package session
