package repos

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lexvoice/casecall-backend/internal/pkg/errors"
	"github.com/lexvoice/casecall-backend/internal/platform/logger"
	"github.com/lexvoice/casecall-backend/internal/types"
)

type CallSummaryRepo interface {
	Create(ctx context.Context, tx *gorm.DB, row *types.CallSummary) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.CallSummary, error)
	GetBySession(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (*types.CallSummary, error)
	// SoftDelete is the only removal path; summaries are never hard-deleted.
	SoftDelete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
}

type callSummaryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCallSummaryRepo(db *gorm.DB, baseLog *logger.Logger) CallSummaryRepo {
	return &callSummaryRepo{db: db, log: baseLog.With("repo", "CallSummaryRepo")}
}

func (r *callSummaryRepo) Create(ctx context.Context, tx *gorm.DB, row *types.CallSummary) error {
	if row == nil || row.CaseID == uuid.Nil {
		return fmt.Errorf("invalid call summary: %w", errors.ErrInvalidArgument)
	}
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Create(row).Error
}

func (r *callSummaryRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.CallSummary, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("missing summary id: %w", errors.ErrInvalidArgument)
	}
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out types.CallSummary
	err := transaction.WithContext(ctx).
		Where("id = ? AND is_deleted = false", id).
		First(&out).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *callSummaryRepo) GetBySession(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (*types.CallSummary, error) {
	if sessionID == uuid.Nil {
		return nil, fmt.Errorf("missing session id: %w", errors.ErrInvalidArgument)
	}
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out types.CallSummary
	err := transaction.WithContext(ctx).
		Where("session_id = ? AND is_deleted = false", sessionID).
		Order("created_at DESC").
		First(&out).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *callSummaryRepo) SoftDelete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing summary id: %w", errors.ErrInvalidArgument)
	}
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now().UTC()
	return transaction.WithContext(ctx).
		Model(&types.CallSummary{}).
		Where("id = ? AND is_deleted = false", id).
		Updates(map[string]interface{}{
			"is_deleted": true,
			"deleted_at": now,
			"updated_at": now,
		}).Error
}
