package repos

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lexvoice/casecall-backend/internal/pkg/errors"
	"github.com/lexvoice/casecall-backend/internal/platform/logger"
	"github.com/lexvoice/casecall-backend/internal/types"
)

type CallTurnRepo interface {
	// CreateNext assigns the next sequential turn number and inserts the
	// turn atomically. The session row is locked for the duration so two
	// concurrent submissions can never collide on a number.
	CreateNext(ctx context.Context, tx *gorm.DB, row *types.CallTranscriptTurn) error
	ListBySession(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, limit int) ([]*types.CallTranscriptTurn, error)
	CountBySession(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (int64, error)
	ListHotBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, limit int) ([]*types.CallTranscriptTurn, error)
	MarkCold(ctx context.Context, tx *gorm.DB, id uuid.UUID, objectKey string) error
}

type callTurnRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCallTurnRepo(db *gorm.DB, baseLog *logger.Logger) CallTurnRepo {
	return &callTurnRepo{db: db, log: baseLog.With("repo", "CallTurnRepo")}
}

func (r *callTurnRepo) CreateNext(ctx context.Context, tx *gorm.DB, row *types.CallTranscriptTurn) error {
	if row == nil || row.SessionID == uuid.Nil || row.TurnType == "" {
		return fmt.Errorf("invalid transcript turn: %w", errors.ErrInvalidArgument)
	}
	run := func(transaction *gorm.DB) error {
		var session types.CallSession
		if err := transaction.WithContext(ctx).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", row.SessionID).
			First(&session).Error; err != nil {
			return err
		}
		var maxNumber int
		if err := transaction.WithContext(ctx).
			Model(&types.CallTranscriptTurn{}).
			Where("session_id = ?", row.SessionID).
			Select("COALESCE(MAX(turn_number), 0)").
			Scan(&maxNumber).Error; err != nil {
			return err
		}
		row.TurnNumber = maxNumber + 1
		if row.StorageTier == "" {
			row.StorageTier = types.StorageTierHot
		}
		return transaction.WithContext(ctx).Create(row).Error
	}
	if tx != nil {
		return run(tx)
	}
	return r.db.WithContext(ctx).Transaction(run)
}

func (r *callTurnRepo) ListBySession(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, limit int) ([]*types.CallTranscriptTurn, error) {
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
	var out []*types.CallTranscriptTurn
	err := transaction.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("turn_number ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *callTurnRepo) CountBySession(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	err := transaction.WithContext(ctx).
		Model(&types.CallTranscriptTurn{}).
		Where("session_id = ?", sessionID).
		Count(&count).Error
	return count, err
}

func (r *callTurnRepo) ListHotBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, limit int) ([]*types.CallTranscriptTurn, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	var out []*types.CallTranscriptTurn
	err := transaction.WithContext(ctx).
		Where("storage_tier = ? AND created_at < ?", types.StorageTierHot, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *callTurnRepo) MarkCold(ctx context.Context, tx *gorm.DB, id uuid.UUID, objectKey string) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing turn id: %w", errors.ErrInvalidArgument)
	}
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&types.CallTranscriptTurn{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"storage_tier":       types.StorageTierCold,
			"archive_object_key": objectKey,
		}).Error
}
