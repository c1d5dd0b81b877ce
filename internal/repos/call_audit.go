package repos

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lexvoice/casecall-backend/internal/pkg/errors"
	"github.com/lexvoice/casecall-backend/internal/platform/logger"
	"github.com/lexvoice/casecall-backend/internal/types"
)

// CallAuditRepo is append-only. There is deliberately no update or delete.
type CallAuditRepo interface {
	Create(ctx context.Context, tx *gorm.DB, row *types.CallAuditLog) error
	ListBySession(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, limit int) ([]*types.CallAuditLog, error)
	ListBySessionAndType(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, eventType string) ([]*types.CallAuditLog, error)
}

type callAuditRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCallAuditRepo(db *gorm.DB, baseLog *logger.Logger) CallAuditRepo {
	return &callAuditRepo{db: db, log: baseLog.With("repo", "CallAuditRepo")}
}

func (r *callAuditRepo) Create(ctx context.Context, tx *gorm.DB, row *types.CallAuditLog) error {
	if row == nil || row.SessionID == uuid.Nil || row.EventType == "" {
		return fmt.Errorf("invalid audit row: %w", errors.ErrInvalidArgument)
	}
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Create(row).Error
}

func (r *callAuditRepo) ListBySession(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, limit int) ([]*types.CallAuditLog, error) {
	if sessionID == uuid.Nil {
		return nil, fmt.Errorf("missing session id: %w", errors.ErrInvalidArgument)
	}
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 || limit > 500 {
		limit = 200
	}
	var out []*types.CallAuditLog
	err := transaction.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *callAuditRepo) ListBySessionAndType(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, eventType string) ([]*types.CallAuditLog, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.CallAuditLog
	err := transaction.WithContext(ctx).
		Where("session_id = ? AND event_type = ?", sessionID, eventType).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
