package repos_test

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/lexvoice/casecall-backend/internal/pkg/errors"
	"github.com/lexvoice/casecall-backend/internal/repos"
	"github.com/lexvoice/casecall-backend/internal/repos/testutil"
	"github.com/lexvoice/casecall-backend/internal/types"
)

func TestSummaryLifecycle(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := repos.NewCallSummaryRepo(db, testutil.Logger(t))
	legalCase := testutil.SeedCase(t, tx)
	session := testutil.SeedSession(t, tx, legalCase, types.SessionStatusCompleted)

	row := &types.CallSummary{
		SessionID:   &session.ID,
		CaseID:      legalCase.ID,
		SummaryText: "The applicant asked about documents.",
		TurnCount:   4,
	}
	if err := repo.Create(context.Background(), tx, row); err != nil {
		t.Fatalf("create: %v", err)
	}

	bySession, err := repo.GetBySession(context.Background(), tx, session.ID)
	if err != nil {
		t.Fatalf("get by session: %v", err)
	}
	if bySession.ID != row.ID {
		t.Fatalf("expected summary %s, got %s", row.ID, bySession.ID)
	}

	if err := repo.SoftDelete(context.Background(), tx, row.ID); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	_, err = repo.GetBySession(context.Background(), tx, session.ID)
	if !stderrors.Is(err, errors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after soft delete, got %v", err)
	}
}
