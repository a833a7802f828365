package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func TestRouteReopensActiveConversation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewStore(mock)
	orgID := uuid.New()
	customerID := uuid.New()
	convID := uuid.New()

	mock.ExpectQuery("UPDATE conversations").
		WithArgs(customerID).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(convID))

	got, err := store.Route(context.Background(), orgID, customerID)
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if got != convID {
		t.Fatalf("expected reuse of %s, got %s", convID, got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRouteCreatesWhenNoneActive(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewStore(mock)
	orgID := uuid.New()
	customerID := uuid.New()
	convID := uuid.New()

	mock.ExpectQuery("UPDATE conversations").
		WithArgs(customerID).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("INSERT INTO conversations").
		WithArgs(orgID, customerID).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(convID))

	got, err := store.Route(context.Background(), orgID, customerID)
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if got != convID {
		t.Fatalf("expected new conversation %s, got %s", convID, got)
	}
}

func TestRouteRetriesAfterLosingInsertRace(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewStore(mock)
	orgID := uuid.New()
	customerID := uuid.New()
	winnerID := uuid.New()

	// First pass: nothing active, insert loses the unique-index race.
	mock.ExpectQuery("UPDATE conversations").
		WithArgs(customerID).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("INSERT INTO conversations").
		WithArgs(orgID, customerID).
		WillReturnError(pgx.ErrNoRows)
	// Second pass finds the winner's row.
	mock.ExpectQuery("UPDATE conversations").
		WithArgs(customerID).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(winnerID))

	got, err := store.Route(context.Background(), orgID, customerID)
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if got != winnerID {
		t.Fatalf("expected winner %s, got %s", winnerID, got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewStore(mock)
	convID := uuid.New()
	orgID := uuid.New()
	customerID := uuid.New()
	expires := time.Now().Add(2 * time.Hour)

	mock.ExpectQuery("SELECT c.id, c.organization_id").
		WithArgs(convID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "organization_id", "customer_id", "status", "customer_service_window_expires_at", "phone", "name"}).
			AddRow(convID, orgID, customerID, "open", &expires, "15550002222", "Ada"))

	conv, err := store.GetByID(context.Background(), convID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if conv.CustomerPhone != "15550002222" {
		t.Fatalf("expected joined customer phone, got %q", conv.CustomerPhone)
	}
	if !conv.WindowOpen(time.Now()) {
		t.Fatal("expected service window open")
	}
	if conv.WindowOpen(time.Now().Add(3 * time.Hour)) {
		t.Fatal("expected service window closed after expiry")
	}
}

func TestGetByID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewStore(mock)
	mock.ExpectQuery("SELECT c.id, c.organization_id").
		WithArgs(pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)

	if _, err := store.GetByID(context.Background(), uuid.New()); err != ErrConversationNotFound {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
}

func TestRecordInboundAndOutbound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewStore(mock)
	convID := uuid.New()

	mock.ExpectExec("UPDATE conversations").
		WithArgs(convID, "Hi, do you have a 3pm slot?").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	if err := store.RecordInbound(context.Background(), convID, "Hi, do you have a 3pm slot?"); err != nil {
		t.Fatalf("record inbound: %v", err)
	}

	mock.ExpectExec("UPDATE conversations").
		WithArgs(convID, "Yes, 3pm works!").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	if err := store.RecordOutbound(context.Background(), convID, "Yes, 3pm works!"); err != nil {
		t.Fatalf("record outbound: %v", err)
	}
}

func TestTruncatePreview(t *testing.T) {
	long := make([]rune, 200)
	for i := range long {
		long[i] = 'x'
	}
	if got := truncatePreview(string(long)); len([]rune(got)) != 120 {
		t.Fatalf("expected preview truncated to 120 runes, got %d", len([]rune(got)))
	}
	if got := truncatePreview("short"); got != "short" {
		t.Fatalf("expected short preview untouched, got %q", got)
	}
}
