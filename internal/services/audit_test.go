package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"medical-office-server/internal/models"
)

func TestRevocationAudit_ListTokens(t *testing.T) {
	store := newMemoryTokenStore()
	revokedAt := t0.Add(-30 * time.Minute)

	store.put(models.RefreshToken{
		BaseModel: models.BaseModel{ID: "id-a"}, TokenValue: "a", OwnerID: "u-1",
		IssuedAt: t0.Add(-3 * time.Hour), ExpiresAt: t0.Add(lifetime),
		RevokedAt: &revokedAt, RevokedByIP: "10.0.0.1", RevocationReason: models.ReasonReplaced,
		ReplacedByTokenValue: "b",
	})
	store.put(models.RefreshToken{
		BaseModel: models.BaseModel{ID: "id-b"}, TokenValue: "b", OwnerID: "u-1",
		IssuedAt: t0.Add(-30 * time.Minute), ExpiresAt: t0.Add(lifetime),
	})
	store.put(models.RefreshToken{
		BaseModel: models.BaseModel{ID: "id-c"}, TokenValue: "c", OwnerID: "u-1",
		IssuedAt: t0.Add(-8 * 24 * time.Hour), ExpiresAt: t0.Add(-24 * time.Hour),
	})
	store.put(models.RefreshToken{
		BaseModel: models.BaseModel{ID: "id-d"}, TokenValue: "d", OwnerID: "u-1",
		IssuedAt: t0.Add(-5 * time.Hour), ExpiresAt: t0.Add(lifetime),
		RevokedAt: &revokedAt, RevocationReason: models.ReasonRevokedExplicitly,
	})
	store.put(models.RefreshToken{
		BaseModel: models.BaseModel{ID: "id-e"}, TokenValue: "e", OwnerID: "u-2",
		IssuedAt: t0, ExpiresAt: t0.Add(lifetime),
	})

	audit := NewRevocationAudit(store, newFakeClock(t0))
	entries, err := audit.ListTokens(context.Background(), "u-1")
	require.NoError(t, err)
	require.Len(t, entries, 4)

	ids := make([]string, 0, len(entries))
	states := map[string]TokenState{}
	for _, e := range entries {
		ids = append(ids, e.ID)
		states[e.ID] = e.State
	}
	assert.Equal(t, []string{"id-b", "id-a", "id-d", "id-c"}, ids)
	assert.Equal(t, map[string]TokenState{
		"id-a": TokenStateReplaced,
		"id-b": TokenStateActive,
		"id-c": TokenStateExpired,
		"id-d": TokenStateRevoked,
	}, states)

	replaced := entries[1]
	assert.Equal(t, "id-b", replaced.ReplacedByID)
	assert.Equal(t, "10.0.0.1", replaced.RevokedByIP)
	assert.Equal(t, models.ReasonReplaced, replaced.RevocationReason)
	assert.Equal(t, revokedAt, *replaced.RevokedAt)
}

func TestRevocationAudit_EmptyOwner(t *testing.T) {
	audit := NewRevocationAudit(newMemoryTokenStore(), newFakeClock(t0))

	entries, err := audit.ListTokens(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestZapRevocationRecorder(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	recorder := NewZapRevocationRecorder(zap.New(core))

	recorder.Record(context.Background(), RevocationEvent{
		Kind: EventRotated, TokenID: "id-a", OwnerID: "u-1", At: t0,
		Reason: models.ReasonReplaced, SuccessorID: "id-b",
	})
	recorder.Record(context.Background(), RevocationEvent{
		Kind: EventReuseDetected, TokenID: "id-a", OwnerID: "u-1", At: t0, IPAddress: "203.0.113.9",
	})

	entries := logs.All()
	require.Len(t, entries, 2)

	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "id-b", entries[0].ContextMap()["successor_id"])

	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "reuse_detected", entries[1].ContextMap()["event"])
	assert.Equal(t, "203.0.113.9", entries[1].ContextMap()["ip"])
	assert.NotContains(t, entries[1].ContextMap(), "successor_id")
}
