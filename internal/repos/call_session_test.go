package repos_test

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/lexvoice/casecall-backend/internal/pkg/errors"
	"github.com/lexvoice/casecall-backend/internal/repos"
	"github.com/lexvoice/casecall-backend/internal/repos/testutil"
	"github.com/lexvoice/casecall-backend/internal/types"
)

func TestCreateEnforcesSingleActiveSession(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := repos.NewCallSessionRepo(db, testutil.Logger(t))
	legalCase := testutil.SeedCase(t, tx)

	first := &types.CallSession{CaseID: legalCase.ID, UserID: legalCase.UserID}
	if err := repo.Create(context.Background(), tx, first); err != nil {
		t.Fatalf("first create: %v", err)
	}

	second := &types.CallSession{CaseID: legalCase.ID, UserID: legalCase.UserID}
	err := repo.Create(context.Background(), tx, second)
	if !stderrors.Is(err, errors.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for second active session, got %v", err)
	}

	// A terminal session frees the slot.
	if err := repo.UpdateWithVersion(context.Background(), tx, first.ID, first.Version, map[string]interface{}{
		"status": types.SessionStatusCompleted,
	}); err != nil {
		t.Fatalf("complete first: %v", err)
	}
	third := &types.CallSession{CaseID: legalCase.ID, UserID: legalCase.UserID}
	if err := repo.Create(context.Background(), tx, third); err != nil {
		t.Fatalf("create after completion: %v", err)
	}
}

func TestUpdateWithVersionOptimisticLock(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := repos.NewCallSessionRepo(db, testutil.Logger(t))
	legalCase := testutil.SeedCase(t, tx)
	session := testutil.SeedSession(t, tx, legalCase, types.SessionStatusCreated)

	err := repo.UpdateWithVersion(context.Background(), tx, session.ID, session.Version, map[string]interface{}{
		"status": types.SessionStatusReady,
	})
	if err != nil {
		t.Fatalf("first update: %v", err)
	}

	// A second writer holding the stale version loses.
	err = repo.UpdateWithVersion(context.Background(), tx, session.ID, session.Version, map[string]interface{}{
		"status": types.SessionStatusTerminated,
	})
	if !stderrors.Is(err, errors.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}

	reloaded, err := repo.GetByID(context.Background(), tx, session.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Status != types.SessionStatusReady {
		t.Fatalf("stale writer must not win, got %s", reloaded.Status)
	}
	if reloaded.Version != session.Version+1 {
		t.Fatalf("expected version %d, got %d", session.Version+1, reloaded.Version)
	}
}

func TestUpdateWithVersionMissingSession(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := repos.NewCallSessionRepo(db, testutil.Logger(t))

	err := repo.UpdateWithVersion(context.Background(), tx, uuid.New(), 1, map[string]interface{}{
		"status": types.SessionStatusReady,
	})
	if !stderrors.Is(err, errors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestHeartbeatDoesNotBumpVersion(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := repos.NewCallSessionRepo(db, testutil.Logger(t))
	legalCase := testutil.SeedCase(t, tx)
	session := testutil.SeedSession(t, tx, legalCase, types.SessionStatusInProgress)

	at := time.Now().UTC()
	if err := repo.Heartbeat(context.Background(), tx, session.ID, at); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	reloaded, err := repo.GetByID(context.Background(), tx, session.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.LastHeartbeatAt == nil {
		t.Fatalf("expected heartbeat timestamp")
	}
	if reloaded.Version != session.Version {
		t.Fatalf("heartbeat must not change version: %d vs %d", reloaded.Version, session.Version)
	}
}

func TestFindActiveByCase(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := repos.NewCallSessionRepo(db, testutil.Logger(t))
	legalCase := testutil.SeedCase(t, tx)

	found, err := repo.FindActiveByCase(context.Background(), tx, legalCase.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found != nil {
		t.Fatalf("expected no active session")
	}

	session := testutil.SeedSession(t, tx, legalCase, types.SessionStatusInProgress)
	found, err = repo.FindActiveByCase(context.Background(), tx, legalCase.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found == nil || found.ID != session.ID {
		t.Fatalf("expected session %s", session.ID)
	}
}

func TestSoftDeleteHidesSession(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := repos.NewCallSessionRepo(db, testutil.Logger(t))
	legalCase := testutil.SeedCase(t, tx)
	session := testutil.SeedSession(t, tx, legalCase, types.SessionStatusCompleted)

	if err := repo.SoftDelete(context.Background(), tx, session.ID); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	_, err := repo.GetByID(context.Background(), tx, session.ID)
	if !stderrors.Is(err, errors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after soft delete, got %v", err)
	}
}
