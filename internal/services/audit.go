package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"medical-office-server/internal/models"
	"medical-office-server/internal/utils"
)

type RevocationEventKind string

const (
	EventRotated         RevocationEventKind = "rotated"
	EventReuseDetected   RevocationEventKind = "reuse_detected"
	EventCascadeRevoked  RevocationEventKind = "cascade_revoked"
	EventExplicitRevoked RevocationEventKind = "explicit_revoked"
)

// RevocationEvent describes one state change, or one detected replay, in a
// refresh-token chain. Token values never appear in events.
type RevocationEvent struct {
	Kind        RevocationEventKind
	TokenID     string
	OwnerID     string
	At          time.Time
	IPAddress   string
	Reason      string
	SuccessorID string
	ActorID     string
}

// RevocationRecorder receives events after the matching writes have committed.
type RevocationRecorder interface {
	Record(ctx context.Context, event RevocationEvent)
}

// ZapRevocationRecorder writes events to a zap logger. Reuse is logged at warn
// level, everything else at info.
type ZapRevocationRecorder struct {
	logger *zap.Logger
}

func NewZapRevocationRecorder(logger *zap.Logger) *ZapRevocationRecorder {
	return &ZapRevocationRecorder{logger: logger.Named("refresh_tokens")}
}

func (r *ZapRevocationRecorder) Record(_ context.Context, event RevocationEvent) {
	fields := []zap.Field{
		zap.String("event", string(event.Kind)),
		zap.String("token_id", event.TokenID),
		zap.String("owner_id", event.OwnerID),
		zap.Time("at", event.At),
		zap.String("ip", event.IPAddress),
	}
	if event.Reason != "" {
		fields = append(fields, zap.String("reason", event.Reason))
	}
	if event.SuccessorID != "" {
		fields = append(fields, zap.String("successor_id", event.SuccessorID))
	}
	if event.ActorID != "" {
		fields = append(fields, zap.String("actor_id", event.ActorID))
	}

	if event.Kind == EventReuseDetected {
		r.logger.Warn("refresh token reuse detected", fields...)
		return
	}
	r.logger.Info("refresh token state changed", fields...)
}

type TokenState string

const (
	TokenStateActive   TokenState = "active"
	TokenStateExpired  TokenState = "expired"
	TokenStateReplaced TokenState = "replaced"
	TokenStateRevoked  TokenState = "revoked"
)

// TokenAuditEntry is the administrative view of one refresh token. The token
// value is withheld; the successor is identified by ID.
type TokenAuditEntry struct {
	ID               string     `json:"id"`
	OwnerID          string     `json:"ownerId"`
	IssuedAt         time.Time  `json:"issuedAt"`
	ExpiresAt        time.Time  `json:"expiresAt"`
	CreatedByIP      string     `json:"createdByIp"`
	RevokedAt        *time.Time `json:"revokedAt,omitempty"`
	RevokedByIP      string     `json:"revokedByIp,omitempty"`
	RevocationReason string     `json:"revocationReason,omitempty"`
	ReplacedByID     string     `json:"replacedById,omitempty"`
	State            TokenState `json:"state"`
}

// RevocationAudit lists a user's refresh tokens with their revocation history.
type RevocationAudit struct {
	store RefreshTokenStore
	clock utils.Clock
}

func NewRevocationAudit(store RefreshTokenStore, clock utils.Clock) *RevocationAudit {
	return &RevocationAudit{store: store, clock: clock}
}

// ListTokens returns every token owned by ownerID, newest first.
func (a *RevocationAudit) ListTokens(ctx context.Context, ownerID string) ([]TokenAuditEntry, error) {
	tokens, err := a.store.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list refresh tokens: %w", err)
	}

	idByValue := make(map[string]string, len(tokens))
	for _, t := range tokens {
		idByValue[t.TokenValue] = t.ID
	}

	now := a.clock.Now()
	entries := make([]TokenAuditEntry, 0, len(tokens))
	for _, t := range tokens {
		entries = append(entries, TokenAuditEntry{
			ID:               t.ID,
			OwnerID:          t.OwnerID,
			IssuedAt:         t.IssuedAt,
			ExpiresAt:        t.ExpiresAt,
			CreatedByIP:      t.CreatedByIP,
			RevokedAt:        t.RevokedAt,
			RevokedByIP:      t.RevokedByIP,
			RevocationReason: t.RevocationReason,
			ReplacedByID:     idByValue[t.ReplacedByTokenValue],
			State:            tokenState(t, now),
		})
	}
	return entries, nil
}

func tokenState(t models.RefreshToken, now time.Time) TokenState {
	switch {
	case t.IsRevoked() && t.ReplacedByTokenValue != "":
		return TokenStateReplaced
	case t.IsRevoked():
		return TokenStateRevoked
	case t.IsExpired(now):
		return TokenStateExpired
	default:
		return TokenStateActive
	}
}
