package repositories

import (
	"context"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/GarretWalker/marketplace-management/internal/db/models"
)

// ---------------------------------------------------------------------------
// SyncRunRepository
// ---------------------------------------------------------------------------

func TestSyncRunRepository_Create(t *testing.T) {
	db, mock := newMockDB(t)
	run := &models.SyncRun{
		ID: testClaimID, ChamberID: testChamberID, SyncType: models.SyncTypeChamberMaster,
		Status: models.SyncRunStarted, StartedAt: testNow,
	}

	mock.ExpectExec("INSERT INTO sync_log").
		WithArgs(testClaimID, testChamberID, "chambermaster", "started", 0, 0, 0, testNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := NewSyncRunRepository(db).Create(context.Background(), run); err != nil {
		t.Fatalf("Create: %v", err)
	}
	expectationsMet(t, mock)
}

func TestSyncRunRepository_Finish(t *testing.T) {
	msg := "directory returned status 503"
	done := testNow
	run := &models.SyncRun{
		ID: testClaimID, ChamberID: testChamberID, Status: models.SyncRunFailed,
		ErrorMessage: &msg, CompletedAt: &done,
	}

	t.Run("started run", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND status = 'started'")).
			WithArgs(testClaimID, "failed", 0, 0, 0, msg, testNow).
			WillReturnResult(sqlmock.NewResult(0, 1))

		if err := NewSyncRunRepository(db).Finish(context.Background(), run); err != nil {
			t.Fatalf("Finish: %v", err)
		}
		expectationsMet(t, mock)
	})

	t.Run("already finished", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectExec("UPDATE sync_log").WillReturnResult(sqlmock.NewResult(0, 0))

		if err := NewSyncRunRepository(db).Finish(context.Background(), run); !errors.Is(err, ErrConflict) {
			t.Errorf("error = %v, want ErrConflict", err)
		}
	})
}

func TestSyncRunRepository_GetLatest(t *testing.T) {
	cols := []string{
		"id", "chamber_id", "sync_type", "status", "members_added", "members_updated",
		"members_deactivated", "error_message", "started_at", "completed_at",
	}

	t.Run("latest", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery(regexp.QuoteMeta("ORDER BY started_at DESC LIMIT 1")).
			WithArgs(testChamberID).
			WillReturnRows(sqlmock.NewRows(cols).AddRow(
				testClaimID, testChamberID, "chambermaster", "completed", 3, 7, 1, nil, testNow, testNow,
			))

		run, err := NewSyncRunRepository(db).GetLatest(context.Background(), testChamberID)
		if err != nil {
			t.Fatalf("GetLatest: %v", err)
		}
		if !run.IsTerminal() || run.MembersAdded != 3 || run.MembersUpdated != 7 || run.MembersDeactivated != 1 {
			t.Errorf("run = %+v", run)
		}
	})

	t.Run("never synced", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery("FROM sync_log").WillReturnRows(sqlmock.NewRows(cols))

		run, err := NewSyncRunRepository(db).GetLatest(context.Background(), testChamberID)
		if run != nil || err != nil {
			t.Errorf("GetLatest = (%v, %v), want (nil, nil)", run, err)
		}
	})
}
