package testutil

import (
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/lexvoice/casecall-backend/internal/platform/logger"
	"github.com/lexvoice/casecall-backend/internal/types"
)

var errMissingDSN = errors.New("missing TEST_POSTGRES_DSN")

var (
	dbOnce sync.Once
	db     *gorm.DB
	dbErr  error

	logOnce sync.Once
	logg    *logger.Logger
	logErr  error
)

func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	logOnce.Do(func() {
		logg, logErr = logger.New("test")
	})
	if logErr != nil {
		tb.Fatalf("failed to init logger: %v", logErr)
	}
	return logg
}

func DB(tb testing.TB) *gorm.DB {
	tb.Helper()

	dbOnce.Do(func() {
		dsn := os.Getenv("TEST_POSTGRES_DSN")
		if dsn == "" {
			dbErr = errMissingDSN
			return
		}

		var err error
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
			DisableForeignKeyConstraintWhenMigrating: true,
			Logger:                                   gormLogger.Default.LogMode(gormLogger.Silent),
		})
		if err != nil {
			dbErr = err
			return
		}

		if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
			dbErr = err
			return
		}

		if err := autoMigrateAll(db); err != nil {
			dbErr = err
			return
		}
	})

	if errors.Is(dbErr, errMissingDSN) {
		tb.Skip("set TEST_POSTGRES_DSN to run repo integration tests")
	}
	if dbErr != nil {
		tb.Fatalf("failed to init test db: %v", dbErr)
	}
	return db
}

func Tx(tb testing.TB, db *gorm.DB) *gorm.DB {
	tb.Helper()
	tx := db.Begin()
	if tx.Error != nil {
		tb.Fatalf("begin tx: %v", tx.Error)
	}
	tb.Cleanup(func() {
		_ = tx.Rollback().Error
	})
	return tx
}

// SeedCase inserts a minimal open case owned by a fresh user.
func SeedCase(tb testing.TB, tx *gorm.DB) *types.LegalCase {
	tb.Helper()
	row := &types.LegalCase{
		UserID:   uuid.New(),
		CaseType: "work_visa",
		Status:   types.CaseStatusOpen,
	}
	if err := tx.Create(row).Error; err != nil {
		tb.Fatalf("seed case: %v", err)
	}
	return row
}

// SeedSession inserts a session for the case in the given status.
func SeedSession(tb testing.TB, tx *gorm.DB, legalCase *types.LegalCase, status string) *types.CallSession {
	tb.Helper()
	row := &types.CallSession{
		CaseID: legalCase.ID,
		UserID: legalCase.UserID,
		Status: status,
	}
	if err := tx.Create(row).Error; err != nil {
		tb.Fatalf("seed session: %v", err)
	}
	return row
}

func autoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&types.LegalCase{},
		&types.CaseDocument{},
		&types.HumanReviewNote{},
		&types.AIEligibilityFinding{},
		&types.VisaRuleRequirement{},

		&types.CallSession{},
		&types.CallTranscriptTurn{},
		&types.CallAuditLog{},
		&types.CallSummary{},
	)
}
