package checkout

import (
	"context"
	"strings"

	"github.com/angelmondragon/storefront-core/internal/repo"
	"github.com/angelmondragon/storefront-core/pkg/db"
	"github.com/angelmondragon/storefront-core/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-core/pkg/errors"
	"github.com/angelmondragon/storefront-core/pkg/pagination"
	"gorm.io/gorm"
)

// AttemptRepository persists checkout attempts.
type AttemptRepository interface {
	Record(ctx context.Context, attempt *models.CheckoutAttempt) error
	ListBySession(ctx context.Context, sessionID string, params pagination.Params) (AttemptPage, error)
}

// AttemptPage is one page of a session's attempts, newest first. NextCursor is empty on the
// last page.
type AttemptPage struct {
	Attempts   []models.CheckoutAttempt
	NextCursor string
}

type attemptRepository struct {
	repo.Base
}

// NewAttemptRepository builds the gorm-backed ledger.
func NewAttemptRepository(conn *gorm.DB) AttemptRepository {
	if conn == nil {
		return nil
	}
	return &attemptRepository{Base: repo.NewBase(conn)}
}

func (r *attemptRepository) Record(ctx context.Context, attempt *models.CheckoutAttempt) error {
	if attempt == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "attempt required")
	}
	if strings.TrimSpace(attempt.SessionID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "attempt session id required")
	}
	if err := r.DB(ctx).Create(attempt).Error; err != nil {
		if db.IsUniqueViolation(err) {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "checkout attempt already recorded")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record checkout attempt")
	}
	return nil
}

func (r *attemptRepository) ListBySession(ctx context.Context, sessionID string, params pagination.Params) (AttemptPage, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return AttemptPage{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	limit := pagination.NormalizeLimit(params.Limit)

	query := r.DB(ctx).Where("session_id = ?", sessionID)
	if cursor != nil {
		query = query.Where("created_at < ? OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
	var rows []models.CheckoutAttempt
	err = query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(limit)).
		Find(&rows).Error
	if err != nil {
		return AttemptPage{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list checkout attempts")
	}

	var page AttemptPage
	page.Attempts, page.NextCursor = pagination.Trim(rows, limit, func(a models.CheckoutAttempt) pagination.Cursor {
		return pagination.Cursor{CreatedAt: a.CreatedAt, ID: a.ID}
	})
	return page, nil
}
