package models

import (
	"time"
)

// Revocation reasons recorded on refresh tokens.
const (
	ReasonReplaced          = "replaced"
	ReasonAncestorReused    = "ancestor token reused"
	ReasonRevokedExplicitly = "revoked without replacement"
)

// RefreshToken is one link of a refresh-token chain. Each successful rotation
// revokes the presented token and points ReplacedByTokenValue at its successor.
//
// TokenValue, OwnerID, IssuedAt and ExpiresAt are written once at insert time.
type RefreshToken struct {
	BaseModel
	TokenValue           string     `gorm:"size:64;uniqueIndex;not null" json:"-"`
	OwnerID              string     `gorm:"size:36;index;not null" json:"ownerId"`
	IssuedAt             time.Time  `gorm:"not null" json:"issuedAt"`
	ExpiresAt            time.Time  `gorm:"index;not null" json:"expiresAt"`
	RevokedAt            *time.Time `gorm:"index" json:"revokedAt,omitempty"`
	RevokedByIP          string     `gorm:"size:45" json:"revokedByIp,omitempty"`
	RevocationReason     string     `gorm:"size:64" json:"revocationReason,omitempty"`
	ReplacedByTokenValue string     `gorm:"size:64;index" json:"-"`
	CreatedByIP          string     `gorm:"size:45" json:"createdByIp,omitempty"`
	Version              int        `gorm:"not null;default:0" json:"-"`

	Owner User `gorm:"foreignKey:OwnerID" json:"-"`
}

// IsRevoked reports whether the token can no longer be rotated.
func (t RefreshToken) IsRevoked() bool {
	return t.RevokedAt != nil
}

// IsExpired reports whether now is at or past the expiry instant.
func (t RefreshToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// IsActive reports whether the token is unrevoked and unexpired at now.
func (t RefreshToken) IsActive(now time.Time) bool {
	return !t.IsRevoked() && !t.IsExpired(now)
}

// WriteOp is the kind of change a RefreshTokenWrite performs.
type WriteOp int

const (
	// WriteInsert stores a brand new token.
	WriteInsert WriteOp = iota
	// WriteRevoke updates the revocation columns (and the forward pointer) of an
	// existing token. Token.Version holds the version the change was computed from.
	WriteRevoke
)

// RefreshTokenWrite is a single pending change to the refresh_tokens table.
type RefreshTokenWrite struct {
	Op    WriteOp
	Token RefreshToken
}
