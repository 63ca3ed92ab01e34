// Package identity derives the identity abuse control keys on.
//
// An identity pairs a hash of the participant's network origin with a
// device token persisted in the shared store. The origin is pluggable:
// HostOrigin reads the hostname and first routable address, StaticOrigin
// pins a fixed string for tests and scripted use.
package identity
