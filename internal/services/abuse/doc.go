// Package abuse enforces the per-session send rate and the shared ban
// registry.
//
// A session may send Limit messages per Window. The next message in the
// same window issues a ban lasting BanDuration, recorded against both the
// identity hash and the device token. Expired bans are ignored on read and
// pruned on the next write.
package abuse
