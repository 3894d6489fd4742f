package device

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates an in-memory SQLite database with the devices table.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE devices (
			id TEXT PRIMARY KEY,
			serial_number TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL DEFAULT '',
			kind TEXT NOT NULL,
			state TEXT NOT NULL DEFAULT 'ready',
			firmware_version TEXT NOT NULL DEFAULT '',
			session_id TEXT,
			errors TEXT NOT NULL DEFAULT '[]',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
		CREATE INDEX idx_devices_kind ON devices(kind);
	`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// testDevice creates a device for testing.
func testDevice(id, serial string) *Device {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &Device{
		ID:           id,
		SerialNumber: serial,
		Name:         serial,
		Kind:         KindBrewer,
		State:        StateReady,
		Errors:       []ErrorEntry{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestSQLiteRepository_Create(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	d := testDevice("dev-1", "SN-1000")
	if err := repo.Create(ctx, d); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := repo.GetBySerial(ctx, "SN-1000")
	if err != nil {
		t.Fatalf("GetBySerial() error = %v", err)
	}
	if got.ID != "dev-1" {
		t.Errorf("ID = %q, want %q", got.ID, "dev-1")
	}
	if got.Kind != KindBrewer {
		t.Errorf("Kind = %q, want %q", got.Kind, KindBrewer)
	}
	if got.State != StateReady {
		t.Errorf("State = %q, want %q", got.State, StateReady)
	}
	if len(got.Errors) != 0 {
		t.Errorf("Errors length = %d, want 0", len(got.Errors))
	}

	// Duplicate serial must be rejected.
	dup := testDevice("dev-2", "SN-1000")
	err = repo.Create(ctx, dup)
	if !errors.Is(err, ErrDeviceExists) {
		t.Errorf("Create() duplicate serial error = %v, want ErrDeviceExists", err)
	}
}

func TestSQLiteRepository_GetByID_NotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)

	_, err := repo.GetByID(context.Background(), "missing")
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("GetByID() error = %v, want ErrDeviceNotFound", err)
	}
}

func TestSQLiteRepository_UpdateState(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	d := testDevice("dev-1", "SN-1000")
	if err := repo.Create(ctx, d); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := repo.UpdateState(ctx, "dev-1", StateBrewing); err != nil {
		t.Fatalf("UpdateState() error = %v", err)
	}

	got, err := repo.GetByID(ctx, "dev-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.State != StateBrewing {
		t.Errorf("State = %q, want %q", got.State, StateBrewing)
	}
	firstUpdate := got.UpdatedAt

	// Reporting the same state again must not bump updated_at.
	if err := repo.UpdateState(ctx, "dev-1", StateBrewing); err != nil {
		t.Fatalf("UpdateState() repeat error = %v", err)
	}
	got, err = repo.GetByID(ctx, "dev-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if !got.UpdatedAt.Equal(firstUpdate) {
		t.Errorf("UpdatedAt changed on unchanged state: %v -> %v", firstUpdate, got.UpdatedAt)
	}

	if err := repo.UpdateState(ctx, "missing", StateReady); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("UpdateState() missing device error = %v, want ErrDeviceNotFound", err)
	}
}

func TestSQLiteRepository_UpdateFirmware(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	d := testDevice("dev-1", "SN-1000")
	if err := repo.Create(ctx, d); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := repo.UpdateFirmware(ctx, "dev-1", "0.2.6"); err != nil {
		t.Fatalf("UpdateFirmware() error = %v", err)
	}
	got, err := repo.GetByID(ctx, "dev-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.FirmwareVersion != "0.2.6" {
		t.Errorf("FirmwareVersion = %q, want %q", got.FirmwareVersion, "0.2.6")
	}
	firstUpdate := got.UpdatedAt

	// Same version again is a no-op.
	if err := repo.UpdateFirmware(ctx, "dev-1", "0.2.6"); err != nil {
		t.Fatalf("UpdateFirmware() repeat error = %v", err)
	}
	got, _ = repo.GetByID(ctx, "dev-1")
	if !got.UpdatedAt.Equal(firstUpdate) {
		t.Errorf("UpdatedAt changed on unchanged firmware")
	}
}

func TestSQLiteRepository_AppendError(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	d := testDevice("dev-1", "SN-1000")
	if err := repo.Create(ctx, d); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	reportedAt := time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		entry := ErrorEntry{Code: 42, ReportedAt: reportedAt.Add(time.Duration(i) * time.Minute)}
		if err := repo.AppendError(ctx, "dev-1", entry); err != nil {
			t.Fatalf("AppendError() #%d error = %v", i, err)
		}
	}

	got, err := repo.GetByID(ctx, "dev-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if len(got.Errors) != 3 {
		t.Fatalf("Errors length = %d, want 3 (repeated codes accumulate)", len(got.Errors))
	}
	if got.Errors[0].Code != 42 || got.Errors[0].Acknowledged {
		t.Errorf("Errors[0] = %+v, want code 42 unacknowledged", got.Errors[0])
	}
	if !got.Errors[1].ReportedAt.After(got.Errors[0].ReportedAt) {
		t.Errorf("entries not in append order")
	}

	err = repo.AppendError(ctx, "missing", ErrorEntry{Code: 1, ReportedAt: reportedAt})
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("AppendError() missing device error = %v, want ErrDeviceNotFound", err)
	}
}

func TestSQLiteRepository_AcknowledgeErrors(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	d := testDevice("dev-1", "SN-1000")
	if err := repo.Create(ctx, d); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	entry := ErrorEntry{Code: 7, ReportedAt: time.Now().UTC()}
	if err := repo.AppendError(ctx, "dev-1", entry); err != nil {
		t.Fatalf("AppendError() error = %v", err)
	}

	if err := repo.AcknowledgeErrors(ctx, "dev-1"); err != nil {
		t.Fatalf("AcknowledgeErrors() error = %v", err)
	}

	got, err := repo.GetByID(ctx, "dev-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if len(got.Errors) != 1 || !got.Errors[0].Acknowledged {
		t.Errorf("Errors = %+v, want single acknowledged entry", got.Errors)
	}
}

func TestSQLiteRepository_AssignSession(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	d := testDevice("dev-1", "SN-1000")
	if err := repo.Create(ctx, d); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	sessionID := "abcdefghij0123456789"
	if err := repo.AssignSession(ctx, "dev-1", &sessionID); err != nil {
		t.Fatalf("AssignSession() error = %v", err)
	}
	got, _ := repo.GetByID(ctx, "dev-1")
	if got.CurrentSessionID == nil || *got.CurrentSessionID != sessionID {
		t.Errorf("CurrentSessionID = %v, want %q", got.CurrentSessionID, sessionID)
	}

	if err := repo.AssignSession(ctx, "dev-1", nil); err != nil {
		t.Fatalf("AssignSession(nil) error = %v", err)
	}
	got, _ = repo.GetByID(ctx, "dev-1")
	if got.CurrentSessionID != nil {
		t.Errorf("CurrentSessionID = %v, want nil", got.CurrentSessionID)
	}
}

func TestSQLiteRepository_ListByKind(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	brewer := testDevice("dev-1", "SN-1000")
	ferm := testDevice("dev-2", "SN-2000")
	ferm.Kind = KindFermenter
	ferm.State = StateNothingTodo

	for _, d := range []*Device{brewer, ferm} {
		if err := repo.Create(ctx, d); err != nil {
			t.Fatalf("Create(%s) error = %v", d.ID, err)
		}
	}

	all, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 2 {
		t.Errorf("List() length = %d, want 2", len(all))
	}

	ferms, err := repo.ListByKind(ctx, KindFermenter)
	if err != nil {
		t.Fatalf("ListByKind() error = %v", err)
	}
	if len(ferms) != 1 || ferms[0].ID != "dev-2" {
		t.Errorf("ListByKind(fermenter) = %+v, want only dev-2", ferms)
	}
}

func TestSQLiteRepository_Delete(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	d := testDevice("dev-1", "SN-1000")
	if err := repo.Create(ctx, d); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := repo.Delete(ctx, "dev-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := repo.GetByID(ctx, "dev-1"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("GetByID() after delete error = %v, want ErrDeviceNotFound", err)
	}
	if err := repo.Delete(ctx, "dev-1"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Delete() twice error = %v, want ErrDeviceNotFound", err)
	}
}
