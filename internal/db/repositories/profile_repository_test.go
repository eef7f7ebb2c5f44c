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
// ProfileRepository
// ---------------------------------------------------------------------------

var profileCols = []string{"id", "email", "full_name", "role", "chamber_id", "merchant_id", "created_at", "updated_at"}

func TestProfileRepository_GetByID(t *testing.T) {
	t.Run("chamber admin", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery("FROM profiles").
			WithArgs(testUserID).
			WillReturnRows(sqlmock.NewRows(profileCols).AddRow(
				testUserID, "admin@example.com", "Ada Admin", "chamber_admin", testChamberID, nil, testNow, testNow,
			))

		p, err := NewProfileRepository(db).GetByID(context.Background(), testUserID)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if p.Role != models.RoleChamberAdmin || p.ChamberID == nil || *p.ChamberID != testChamberID {
			t.Errorf("profile = %+v", p)
		}
		if p.MerchantID != nil {
			t.Errorf("merchant_id = %v, want nil", p.MerchantID)
		}
	})

	t.Run("missing", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery("FROM profiles").WillReturnRows(sqlmock.NewRows(profileCols))

		p, err := NewProfileRepository(db).GetByID(context.Background(), testUserID)
		if p != nil || err != nil {
			t.Errorf("GetByID = (%v, %v), want (nil, nil)", p, err)
		}
	})
}

func TestProfileRepository_LinkMerchant(t *testing.T) {
	t.Run("promotes visitors only", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectExec(regexp.QuoteMeta("role = CASE WHEN role = 'visitor' THEN 'merchant' ELSE role END")).
			WithArgs(testUserID, testMerchantID, testNow).
			WillReturnResult(sqlmock.NewResult(0, 1))

		if err := NewProfileRepository(db).LinkMerchant(context.Background(), testUserID, testMerchantID, testNow); err != nil {
			t.Fatalf("LinkMerchant: %v", err)
		}
		expectationsMet(t, mock)
	})

	t.Run("missing profile", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectExec("UPDATE profiles").WillReturnResult(sqlmock.NewResult(0, 0))

		err := NewProfileRepository(db).LinkMerchant(context.Background(), testUserID, testMerchantID, testNow)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("error = %v, want ErrNotFound", err)
		}
	})
}

// ---------------------------------------------------------------------------
// NotificationRepository
// ---------------------------------------------------------------------------

func TestNotificationRepository_Create(t *testing.T) {
	db, mock := newMockDB(t)
	link := "/merchant/dashboard"
	claimID := testClaimID
	n := &models.Notification{
		ID: testMemberID, RecipientID: testUserID, Type: models.NotificationTypeClaimApproved,
		Title: "Claim approved", Message: "Your claim was approved.", Link: &link, ClaimID: &claimID,
		CreatedAt: testNow,
	}

	mock.ExpectExec(regexp.QuoteMeta("$8, FALSE, $9)")).
		WithArgs(testMemberID, testUserID, "claim_approved", "Claim approved", "Your claim was approved.",
			"/merchant/dashboard", testClaimID, nil, testNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO notifications").WillReturnError(errDB)

	repo := NewNotificationRepository(db)
	if err := repo.Create(context.Background(), n); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.Create(context.Background(), n); !errors.Is(err, errDB) {
		t.Errorf("error = %v, want errDB", err)
	}
	expectationsMet(t, mock)
}

func TestNotificationRepository_ListForRecipient(t *testing.T) {
	cols := []string{"id", "recipient_id", "type", "title", "message", "link", "claim_id", "merchant_id", "is_read", "created_at"}

	db, mock := newMockDB(t)
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC LIMIT $2")).
		WithArgs(testUserID, 25).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			testClaimID, testUserID, "claim_approved", "Claim approved", "Welcome", nil, testClaimID, nil, false, testNow,
		))

	list, err := NewNotificationRepository(db).ListForRecipient(context.Background(), testUserID, 25)
	if err != nil {
		t.Fatalf("ListForRecipient: %v", err)
	}
	if len(list) != 1 || list[0].IsRead || list[0].ClaimID == nil {
		t.Errorf("notifications = %+v", list)
	}
	expectationsMet(t, mock)
}
