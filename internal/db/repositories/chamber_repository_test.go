package repositories

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/GarretWalker/marketplace-management/internal/db/models"
)

// ---------------------------------------------------------------------------
// Shared helpers
// ---------------------------------------------------------------------------

var errDB = errors.New("db error")

var (
	testChamberID = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	testMemberID  = uuid.MustParse("22222222-2222-2222-2222-222222222222")
	testUserID    = uuid.MustParse("33333333-3333-3333-3333-333333333333")
	testClaimID   = uuid.MustParse("44444444-4444-4444-4444-444444444444")
	testNow       = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func expectationsMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// ---------------------------------------------------------------------------
// ChamberRepository
// ---------------------------------------------------------------------------

var chamberCols = []string{
	"id", "name", "slug", "city", "state", "contact_email", "phone", "website_url",
	"chambermaster_association_id", "chambermaster_api_key", "chambermaster_base_url",
	"chambermaster_sync_enabled", "chambermaster_last_sync_at", "is_active", "created_at", "updated_at",
}

func chamberRow(apiKey interface{}) *sqlmock.Rows {
	return sqlmock.NewRows(chamberCols).AddRow(
		testChamberID, "Springfield Chamber", "springfield", "Springfield", "IL", nil, nil, nil,
		"1234", apiKey, nil,
		true, nil, true, testNow, testNow,
	)
}

func TestChamberRepository_GetByID(t *testing.T) {
	t.Run("found with key", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery(regexp.QuoteMeta("FROM chambers WHERE id = $1")).
			WithArgs(testChamberID).
			WillReturnRows(chamberRow("enc:v1:abc"))

		c, err := NewChamberRepository(db).GetByID(context.Background(), testChamberID)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if c == nil || c.Name != "Springfield Chamber" {
			t.Fatalf("chamber = %+v", c)
		}
		if !c.HasAPIKey {
			t.Error("HasAPIKey = false, want true")
		}
		expectationsMet(t, mock)
	})

	t.Run("found without key", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery("FROM chambers").WillReturnRows(chamberRow(nil))

		c, err := NewChamberRepository(db).GetByID(context.Background(), testChamberID)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if c.HasAPIKey {
			t.Error("HasAPIKey = true for NULL key")
		}
	})

	t.Run("not found", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery("FROM chambers").WillReturnRows(sqlmock.NewRows(chamberCols))

		c, err := NewChamberRepository(db).GetByID(context.Background(), testChamberID)
		if err != nil || c != nil {
			t.Errorf("GetByID = (%v, %v), want (nil, nil)", c, err)
		}
	})

	t.Run("db error", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery("FROM chambers").WillReturnError(errDB)

		if _, err := NewChamberRepository(db).GetByID(context.Background(), testChamberID); !errors.Is(err, errDB) {
			t.Errorf("error = %v, want wrapped errDB", err)
		}
	})
}

func TestChamberRepository_UpdateDirectorySettings(t *testing.T) {
	assoc, key := "1234", "enc:v1:abc"
	chamber := &models.Chamber{ID: testChamberID, AssociationID: &assoc, APIKey: &key, SyncEnabled: true, UpdatedAt: testNow}

	t.Run("updated", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectExec("UPDATE chambers").
			WithArgs(testChamberID, assoc, key, nil, true, testNow).
			WillReturnResult(sqlmock.NewResult(0, 1))

		if err := NewChamberRepository(db).UpdateDirectorySettings(context.Background(), chamber); err != nil {
			t.Fatalf("UpdateDirectorySettings: %v", err)
		}
		expectationsMet(t, mock)
	})

	t.Run("missing chamber", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectExec("UPDATE chambers").WillReturnResult(sqlmock.NewResult(0, 0))

		if err := NewChamberRepository(db).UpdateDirectorySettings(context.Background(), chamber); !errors.Is(err, ErrNotFound) {
			t.Errorf("error = %v, want ErrNotFound", err)
		}
	})
}

func TestChamberRepository_TouchLastSync(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec(regexp.QuoteMeta("SET chambermaster_last_sync_at = $2")).
		WithArgs(testChamberID, testNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE chambers").WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewChamberRepository(db)
	if err := repo.TouchLastSync(context.Background(), testChamberID, testNow); err != nil {
		t.Fatalf("TouchLastSync: %v", err)
	}
	if err := repo.TouchLastSync(context.Background(), testChamberID, testNow); !errors.Is(err, ErrNotFound) {
		t.Errorf("second call error = %v, want ErrNotFound", err)
	}
	expectationsMet(t, mock)
}

func TestChamberRepository_GetLastSyncAt(t *testing.T) {
	query := regexp.QuoteMeta("SELECT chambermaster_last_sync_at FROM chambers WHERE id = $1")

	t.Run("synced", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery(query).WillReturnRows(sqlmock.NewRows([]string{"chambermaster_last_sync_at"}).AddRow(testNow))

		at, found, err := NewChamberRepository(db).GetLastSyncAt(context.Background(), testChamberID)
		if err != nil || !found || at == nil || !at.Equal(testNow) {
			t.Errorf("GetLastSyncAt = (%v, %v, %v)", at, found, err)
		}
	})

	t.Run("never synced", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery(query).WillReturnRows(sqlmock.NewRows([]string{"chambermaster_last_sync_at"}).AddRow(nil))

		at, found, err := NewChamberRepository(db).GetLastSyncAt(context.Background(), testChamberID)
		if err != nil || !found || at != nil {
			t.Errorf("GetLastSyncAt = (%v, %v, %v), want (nil, true, nil)", at, found, err)
		}
	})

	t.Run("missing chamber", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery(query).WillReturnRows(sqlmock.NewRows([]string{"chambermaster_last_sync_at"}))

		_, found, err := NewChamberRepository(db).GetLastSyncAt(context.Background(), testChamberID)
		if err != nil || found {
			t.Errorf("GetLastSyncAt found = %v, err = %v; want false, nil", found, err)
		}
	})
}
