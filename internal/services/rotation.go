package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"medical-office-server/internal/models"
	"medical-office-server/internal/repository"
	"medical-office-server/internal/utils"
)

// RefreshTokenStore is the persistence the rotation engine works against.
// Apply must commit all writes atomically or none of them, and must fail with
// repository.ErrStaleRefreshToken when a revocation's expected version is gone.
type RefreshTokenStore interface {
	FindByValue(ctx context.Context, value string) (*models.RefreshToken, error)
	ListByOwner(ctx context.Context, ownerID string) ([]models.RefreshToken, error)
	Apply(ctx context.Context, writes []models.RefreshTokenWrite) error
}

const maxCascadeAttempts = 3

// RotationEngine decides whether a presented refresh token is usable, mints
// successors, and revokes the rest of a chain when a consumed token is replayed.
type RotationEngine struct {
	store     RefreshTokenStore
	clock     utils.Clock
	generator utils.TokenGenerator
	recorder  RevocationRecorder
	lifetime  time.Duration
}

// NewRotationEngine creates an engine issuing tokens valid for lifetime.
func NewRotationEngine(
	store RefreshTokenStore,
	clock utils.Clock,
	generator utils.TokenGenerator,
	recorder RevocationRecorder,
	lifetime time.Duration,
) *RotationEngine {
	return &RotationEngine{
		store:     store,
		clock:     clock,
		generator: generator,
		recorder:  recorder,
		lifetime:  lifetime,
	}
}

// IssueNewChain creates the head of a new chain for ownerID.
func (e *RotationEngine) IssueNewChain(ctx context.Context, ownerID, ipAddress string) (*models.RefreshToken, error) {
	token, err := e.mint(ownerID, ipAddress, e.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := e.store.Apply(ctx, []models.RefreshTokenWrite{{Op: models.WriteInsert, Token: token}}); err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}
	return &token, nil
}

// Rotate exchanges a presented token for its successor.
//
// Presenting a token that is already revoked is treated as theft: every
// descendant of it is revoked before ErrTokenReuseDetected is returned.
// An expired token fails with ErrTokenExpired and changes nothing.
func (e *RotationEngine) Rotate(ctx context.Context, presentedValue, ipAddress string) (*models.RefreshToken, error) {
	now := e.clock.Now()

	current, err := e.lookup(ctx, presentedValue)
	if err != nil {
		return nil, err
	}
	if current.IsRevoked() {
		return nil, e.handleReuse(ctx, *current, ipAddress, now)
	}
	if current.IsExpired(now) {
		return nil, ErrTokenExpired
	}

	successor, err := e.mint(current.OwnerID, ipAddress, now)
	if err != nil {
		return nil, err
	}

	if err := e.store.Apply(ctx, planRotation(*current, successor, ipAddress, now)); err != nil {
		if errors.Is(err, repository.ErrStaleRefreshToken) {
			return nil, e.resolveConflict(ctx, presentedValue, ipAddress, now)
		}
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}

	e.recorder.Record(ctx, RevocationEvent{
		Kind:        EventRotated,
		TokenID:     current.ID,
		OwnerID:     current.OwnerID,
		At:          now,
		IPAddress:   ipAddress,
		Reason:      models.ReasonReplaced,
		SuccessorID: successor.ID,
	})
	return &successor, nil
}

// RevokeDescendantChain walks forward from start along ReplacedByTokenValue and
// revokes every token that is not revoked yet, start included. All revocations
// commit together. The walk ignores cancellation of ctx: once started, it runs
// until the chain is fully revoked or the store fails.
func (e *RotationEngine) RevokeDescendantChain(
	ctx context.Context,
	start models.RefreshToken,
	now time.Time,
	ipAddress, reason string,
) error {
	ctx = context.WithoutCancel(ctx)

	var lastErr error
	for attempt := 0; attempt < maxCascadeAttempts; attempt++ {
		if attempt > 0 {
			fresh, err := e.store.FindByValue(ctx, start.TokenValue)
			if err != nil {
				return fmt.Errorf("reload chain start: %w", err)
			}
			start = *fresh
		}

		writes, err := e.planCascade(ctx, start, now, ipAddress, reason)
		if err != nil {
			return err
		}
		if len(writes) == 0 {
			return nil
		}

		err = e.store.Apply(ctx, writes)
		if err == nil {
			for _, w := range writes {
				e.recorder.Record(ctx, RevocationEvent{
					Kind:      EventCascadeRevoked,
					TokenID:   w.Token.ID,
					OwnerID:   w.Token.OwnerID,
					At:        now,
					IPAddress: ipAddress,
					Reason:    reason,
				})
			}
			return nil
		}
		if !errors.Is(err, repository.ErrStaleRefreshToken) {
			return fmt.Errorf("revoke chain: %w", err)
		}
		lastErr = err
	}
	return fmt.Errorf("revoke chain: gave up after %d attempts: %w", maxCascadeAttempts, lastErr)
}

// RevokeExplicit revokes exactly the token identified by value. Descendants are
// not touched. Actors other than admins can only revoke their own tokens; a
// token owned by someone else is reported as not found.
func (e *RotationEngine) RevokeExplicit(ctx context.Context, value, ipAddress string, actor models.Actor) error {
	now := e.clock.Now()

	token, err := e.lookup(ctx, value)
	if err != nil {
		return err
	}
	if !actor.IsAdmin() && token.OwnerID != actor.ID {
		return ErrTokenNotFound
	}
	if token.IsRevoked() {
		return ErrTokenAlreadyRevoked
	}
	if token.IsExpired(now) {
		return ErrTokenExpired
	}

	revoked := revokedCopy(*token, now, ipAddress, models.ReasonRevokedExplicitly)
	if err := e.store.Apply(ctx, []models.RefreshTokenWrite{{Op: models.WriteRevoke, Token: revoked}}); err != nil {
		if errors.Is(err, repository.ErrStaleRefreshToken) {
			// Only revocations bump the version.
			return ErrTokenAlreadyRevoked
		}
		return fmt.Errorf("revoke refresh token: %w", err)
	}

	e.recorder.Record(ctx, RevocationEvent{
		Kind:      EventExplicitRevoked,
		TokenID:   token.ID,
		OwnerID:   token.OwnerID,
		At:        now,
		IPAddress: ipAddress,
		Reason:    models.ReasonRevokedExplicitly,
		ActorID:   actor.ID,
	})
	return nil
}

func (e *RotationEngine) lookup(ctx context.Context, value string) (*models.RefreshToken, error) {
	token, err := e.store.FindByValue(ctx, value)
	if errors.Is(err, repository.ErrRefreshTokenNotFound) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("look up refresh token: %w", err)
	}
	return token, nil
}

func (e *RotationEngine) handleReuse(ctx context.Context, token models.RefreshToken, ipAddress string, now time.Time) error {
	e.recorder.Record(ctx, RevocationEvent{
		Kind:      EventReuseDetected,
		TokenID:   token.ID,
		OwnerID:   token.OwnerID,
		At:        now,
		IPAddress: ipAddress,
		Reason:    token.RevocationReason,
	})
	if err := e.RevokeDescendantChain(ctx, token, now, ipAddress, models.ReasonAncestorReused); err != nil {
		return fmt.Errorf("revoke descendants of reused token: %w", err)
	}
	return ErrTokenReuseDetected
}

// resolveConflict runs after a rotation lost an optimistic write. If the token
// is now revoked, another request consumed it first and this one is a replay.
func (e *RotationEngine) resolveConflict(ctx context.Context, presentedValue, ipAddress string, now time.Time) error {
	token, err := e.lookup(ctx, presentedValue)
	if err != nil {
		return err
	}
	if token.IsRevoked() {
		return e.handleReuse(ctx, *token, ipAddress, now)
	}
	return ErrConcurrentTokenUpdate
}

func (e *RotationEngine) planCascade(
	ctx context.Context,
	start models.RefreshToken,
	now time.Time,
	ipAddress, reason string,
) ([]models.RefreshTokenWrite, error) {
	var writes []models.RefreshTokenWrite
	if !start.IsRevoked() {
		writes = append(writes, models.RefreshTokenWrite{Op: models.WriteRevoke, Token: revokedCopy(start, now, ipAddress, reason)})
	}

	visited := map[string]struct{}{start.TokenValue: {}}
	next := start.ReplacedByTokenValue
	for next != "" {
		if _, seen := visited[next]; seen {
			break
		}
		visited[next] = struct{}{}

		token, err := e.store.FindByValue(ctx, next)
		if errors.Is(err, repository.ErrRefreshTokenNotFound) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("walk refresh token chain: %w", err)
		}
		if token.OwnerID != start.OwnerID {
			break
		}
		if !token.IsRevoked() {
			writes = append(writes, models.RefreshTokenWrite{Op: models.WriteRevoke, Token: revokedCopy(*token, now, ipAddress, reason)})
		}
		next = token.ReplacedByTokenValue
	}
	return writes, nil
}

func (e *RotationEngine) mint(ownerID, ipAddress string, now time.Time) (models.RefreshToken, error) {
	value, err := e.generator.NewTokenValue()
	if err != nil {
		return models.RefreshToken{}, fmt.Errorf("generate refresh token: %w", err)
	}
	return models.RefreshToken{
		BaseModel:   models.BaseModel{ID: uuid.NewString()},
		TokenValue:  value,
		OwnerID:     ownerID,
		IssuedAt:    now,
		ExpiresAt:   now.Add(e.lifetime),
		CreatedByIP: ipAddress,
	}, nil
}

// planRotation retires current in favour of successor.
func planRotation(current, successor models.RefreshToken, ipAddress string, now time.Time) []models.RefreshTokenWrite {
	retired := revokedCopy(current, now, ipAddress, models.ReasonReplaced)
	retired.ReplacedByTokenValue = successor.TokenValue
	return []models.RefreshTokenWrite{
		{Op: models.WriteRevoke, Token: retired},
		{Op: models.WriteInsert, Token: successor},
	}
}

// revokedCopy returns t with its revocation fields set. Version is left as read
// so the store can detect a concurrent change.
func revokedCopy(t models.RefreshToken, now time.Time, ipAddress, reason string) models.RefreshToken {
	revokedAt := now
	t.RevokedAt = &revokedAt
	t.RevokedByIP = ipAddress
	t.RevocationReason = reason
	return t
}
