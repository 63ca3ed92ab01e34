package domain

import (
	interfaces "cipherlog/internal/domain/interfaces"
	types "cipherlog/internal/domain/types"
)

// Type aliases expose domain types from the types subpackage for compact imports.
type (
	Username    = types.Username
	GroupID     = types.GroupID
	Scheme      = types.Scheme
	KeyMaterial = types.KeyMaterial
	Message     = types.Message
	Line        = types.Line
	Identity    = types.Identity
	BanRecord   = types.BanRecord
	RateWindow  = types.RateWindow
)

// Scheme values re-exported for callers that only import domain.
const (
	SchemeRSAOAEP    = types.SchemeRSAOAEP
	SchemePassphrase = types.SchemePassphrase

	MaxUsernameLength = types.MaxUsernameLength
	MaxMessageLength  = types.MaxMessageLength
)

// Interface aliases expose domain interfaces from the interfaces subpackage.
type (
	KVStore          = interfaces.KVStore
	Swapper          = interfaces.Swapper
	Cipher           = interfaces.Cipher
	CryptoEngine     = interfaces.CryptoEngine
	IdentityResolver = interfaces.IdentityResolver
	MessageLog       = interfaces.MessageLog
	AbuseController  = interfaces.AbuseController
	Presenter        = interfaces.Presenter
)
