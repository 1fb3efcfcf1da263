package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"medical-office-server/internal/models"
)

// RefreshTokenRepository persists refresh-token chains with gorm.
type RefreshTokenRepository struct {
	db *gorm.DB
}

// NewRefreshTokenRepository creates a repository over db.
func NewRefreshTokenRepository(db *gorm.DB) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

// FindByValue returns the token whose bearer value is value.
func (r *RefreshTokenRepository) FindByValue(ctx context.Context, value string) (*models.RefreshToken, error) {
	var token models.RefreshToken
	err := r.db.WithContext(ctx).
		Where("token_value = ?", value).
		First(&token).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRefreshTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read refresh token: %w", err)
	}
	return &token, nil
}

// ListByOwner returns every token ever issued to ownerID, newest first.
func (r *RefreshTokenRepository) ListByOwner(ctx context.Context, ownerID string) ([]models.RefreshToken, error) {
	var tokens []models.RefreshToken
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("issued_at desc").
		Find(&tokens).
		Error
	if err != nil {
		return nil, fmt.Errorf("failed to list refresh tokens: %w", err)
	}
	return tokens, nil
}

// Apply executes writes in a single transaction. Revocations run before inserts,
// so a successor never becomes visible while its predecessor is still unrevoked.
// A revocation whose expected version no longer matches fails the whole batch
// with ErrStaleRefreshToken.
func (r *RefreshTokenRepository) Apply(ctx context.Context, writes []models.RefreshTokenWrite) error {
	ordered := make([]models.RefreshTokenWrite, len(writes))
	copy(ordered, writes)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Op == models.WriteRevoke && ordered[j].Op != models.WriteRevoke
	})

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, w := range ordered {
			switch w.Op {
			case models.WriteRevoke:
				if err := revokeToken(tx, w.Token); err != nil {
					return err
				}
			case models.WriteInsert:
				if err := insertToken(tx, w.Token); err != nil {
					return err
				}
			default:
				return fmt.Errorf("unknown refresh token write op %d", w.Op)
			}
		}
		return nil
	})
}

func revokeToken(tx *gorm.DB, token models.RefreshToken) error {
	res := tx.Model(&models.RefreshToken{}).
		Where("id = ? AND version = ?", token.ID, token.Version).
		Updates(map[string]interface{}{
			"revoked_at":              token.RevokedAt,
			"revoked_by_ip":           token.RevokedByIP,
			"revocation_reason":       token.RevocationReason,
			"replaced_by_token_value": token.ReplacedByTokenValue,
			"version":                 gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStaleRefreshToken
	}
	return nil
}

func insertToken(tx *gorm.DB, token models.RefreshToken) error {
	if err := tx.Omit(clause.Associations).Create(&token).Error; err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("failed to store refresh token: %w", ErrDuplicateKey)
		}
		return fmt.Errorf("failed to store refresh token: %w", err)
	}
	return nil
}
