package repos

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lexvoice/casecall-backend/internal/pkg/errors"
	"github.com/lexvoice/casecall-backend/internal/platform/logger"
	"github.com/lexvoice/casecall-backend/internal/types"
)

type CallSessionRepo interface {
	// Create persists a new session after verifying, under the same
	// transaction, that no other active session exists for the case.
	Create(ctx context.Context, tx *gorm.DB, row *types.CallSession) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.CallSession, error)
	FindActiveByCase(ctx context.Context, tx *gorm.DB, caseID uuid.UUID) (*types.CallSession, error)
	ListByCase(ctx context.Context, tx *gorm.DB, caseID uuid.UUID, limit int) ([]*types.CallSession, error)
	// UpdateWithVersion performs the optimistic-lock write: a single
	// conditional UPDATE that bumps version iff the expected version still
	// holds. Zero rows affected means errors.ErrVersionConflict.
	UpdateWithVersion(ctx context.Context, tx *gorm.DB, id uuid.UUID, expectedVersion int, updates map[string]interface{}) error
	// Heartbeat bypasses the version check; liveness pings must never be
	// blocked by a concurrent state transition.
	Heartbeat(ctx context.Context, tx *gorm.DB, id uuid.UUID, at time.Time) error
	SoftDelete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
}

type callSessionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCallSessionRepo(db *gorm.DB, baseLog *logger.Logger) CallSessionRepo {
	return &callSessionRepo{db: db, log: baseLog.With("repo", "CallSessionRepo")}
}

func (r *callSessionRepo) Create(ctx context.Context, tx *gorm.DB, row *types.CallSession) error {
	if row == nil || row.CaseID == uuid.Nil || row.UserID == uuid.Nil {
		return fmt.Errorf("invalid call session: %w", errors.ErrInvalidArgument)
	}
	run := func(transaction *gorm.DB) error {
		var count int64
		err := transaction.WithContext(ctx).
			Model(&types.CallSession{}).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("case_id = ? AND is_deleted = false AND status IN ?", row.CaseID,
				[]string{types.SessionStatusCreated, types.SessionStatusReady, types.SessionStatusInProgress}).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("case %s already has an active session: %w", row.CaseID, errors.ErrInvalidArgument)
		}
		if row.Version == 0 {
			row.Version = 1
		}
		if row.Status == "" {
			row.Status = types.SessionStatusCreated
		}
		return transaction.WithContext(ctx).Create(row).Error
	}
	if tx != nil {
		return run(tx)
	}
	return r.db.WithContext(ctx).Transaction(run)
}

func (r *callSessionRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.CallSession, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("missing session id: %w", errors.ErrInvalidArgument)
	}
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out types.CallSession
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

func (r *callSessionRepo) FindActiveByCase(ctx context.Context, tx *gorm.DB, caseID uuid.UUID) (*types.CallSession, error) {
	if caseID == uuid.Nil {
		return nil, fmt.Errorf("missing case id: %w", errors.ErrInvalidArgument)
	}
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out types.CallSession
	err := transaction.WithContext(ctx).
		Where("case_id = ? AND is_deleted = false AND status IN ?", caseID,
			[]string{types.SessionStatusCreated, types.SessionStatusReady, types.SessionStatusInProgress}).
		Order("created_at DESC").
		First(&out).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *callSessionRepo) ListByCase(ctx context.Context, tx *gorm.DB, caseID uuid.UUID, limit int) ([]*types.CallSession, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []*types.CallSession
	err := transaction.WithContext(ctx).
		Where("case_id = ? AND is_deleted = false", caseID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *callSessionRepo) UpdateWithVersion(ctx context.Context, tx *gorm.DB, id uuid.UUID, expectedVersion int, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing session id: %w", errors.ErrInvalidArgument)
	}
	if expectedVersion <= 0 {
		return fmt.Errorf("expected version must be positive: %w", errors.ErrInvalidArgument)
	}
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["version"] = expectedVersion + 1
	updates["updated_at"] = time.Now().UTC()

	res := transaction.WithContext(ctx).
		Model(&types.CallSession{}).
		Where("id = ? AND version = ? AND is_deleted = false", id, expectedVersion).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := transaction.WithContext(ctx).
			Model(&types.CallSession{}).
			Where("id = ? AND is_deleted = false", id).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return errors.ErrNotFound
		}
		return errors.ErrVersionConflict
	}
	return nil
}

func (r *callSessionRepo) Heartbeat(ctx context.Context, tx *gorm.DB, id uuid.UUID, at time.Time) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing session id: %w", errors.ErrInvalidArgument)
	}
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&types.CallSession{}).
		Where("id = ?", id).
		UpdateColumn("last_heartbeat_at", at).Error
}

func (r *callSessionRepo) SoftDelete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing session id: %w", errors.ErrInvalidArgument)
	}
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now().UTC()
	return transaction.WithContext(ctx).
		Model(&types.CallSession{}).
		Where("id = ? AND is_deleted = false", id).
		Updates(map[string]interface{}{
			"is_deleted": true,
			"deleted_at": now,
			"updated_at": now,
		}).Error
}
