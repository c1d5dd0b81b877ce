package repos

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lexvoice/casecall-backend/internal/pkg/errors"
	"github.com/lexvoice/casecall-backend/internal/platform/logger"
	"github.com/lexvoice/casecall-backend/internal/types"
)

// CaseReaderRepo is the read-only Case/Document/Rules API this core consumes.
// Case management owns the writes.
type CaseReaderRepo interface {
	GetCase(ctx context.Context, tx *gorm.DB, caseID uuid.UUID) (*types.LegalCase, error)
	ListDocuments(ctx context.Context, tx *gorm.DB, caseID uuid.UUID) ([]*types.CaseDocument, error)
	ListReviewNotes(ctx context.Context, tx *gorm.DB, caseID uuid.UUID) ([]*types.HumanReviewNote, error)
	ListFindings(ctx context.Context, tx *gorm.DB, caseID uuid.UUID) ([]*types.AIEligibilityFinding, error)
	ListRuleRequirements(ctx context.Context, tx *gorm.DB, visaType string) ([]*types.VisaRuleRequirement, error)
}

type caseReaderRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCaseReaderRepo(db *gorm.DB, baseLog *logger.Logger) CaseReaderRepo {
	return &caseReaderRepo{db: db, log: baseLog.With("repo", "CaseReaderRepo")}
}

func (r *caseReaderRepo) GetCase(ctx context.Context, tx *gorm.DB, caseID uuid.UUID) (*types.LegalCase, error) {
	if caseID == uuid.Nil {
		return nil, fmt.Errorf("missing case id: %w", errors.ErrInvalidArgument)
	}
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out types.LegalCase
	err := transaction.WithContext(ctx).Where("id = ?", caseID).First(&out).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *caseReaderRepo) ListDocuments(ctx context.Context, tx *gorm.DB, caseID uuid.UUID) ([]*types.CaseDocument, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.CaseDocument
	err := transaction.WithContext(ctx).
		Where("case_id = ?", caseID).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *caseReaderRepo) ListReviewNotes(ctx context.Context, tx *gorm.DB, caseID uuid.UUID) ([]*types.HumanReviewNote, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.HumanReviewNote
	err := transaction.WithContext(ctx).
		Where("case_id = ?", caseID).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *caseReaderRepo) ListFindings(ctx context.Context, tx *gorm.DB, caseID uuid.UUID) ([]*types.AIEligibilityFinding, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.AIEligibilityFinding
	err := transaction.WithContext(ctx).
		Where("case_id = ?", caseID).
		Order("created_at DESC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *caseReaderRepo) ListRuleRequirements(ctx context.Context, tx *gorm.DB, visaType string) ([]*types.VisaRuleRequirement, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.VisaRuleRequirement
	err := transaction.WithContext(ctx).
		Where("visa_type = ?", visaType).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
