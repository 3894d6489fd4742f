package session

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testSession(id, deviceID string) *Session {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &Session{
		ID:                id,
		Name:              "Brewing 2026-03-01 12:00",
		Type:              TypeBrewing,
		DeviceID:          deviceID,
		Status:            StatusIdle,
		History:           []HistoryEntry{},
		BrewingParameters: DefaultBrewingParameters(),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func TestSQLiteRepository_ApplyTransition_Conflict(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	s := testSession("abcdefghij0123456789", "dev-1")
	if err := repo.Create(ctx, s); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	entry := HistoryEntry{
		Event:         EventStartBrewing,
		PreviousState: StatusIdle,
		EventDate:     time.Now().UTC(),
	}
	if err := repo.ApplyTransition(ctx, s.ID, StatusBrewing, entry); err != nil {
		t.Fatalf("ApplyTransition() error = %v", err)
	}

	// The stored status is Brewing now; a write still predicated on Idle
	// must fail rather than clobber.
	stale := HistoryEntry{
		Event:         EventStartDeepClean,
		PreviousState: StatusIdle,
		EventDate:     time.Now().UTC(),
	}
	err := repo.ApplyTransition(ctx, s.ID, StatusDeepCleaning, stale)
	if !errors.Is(err, ErrStatusConflict) {
		t.Errorf("ApplyTransition() stale error = %v, want ErrStatusConflict", err)
	}

	err = repo.ApplyTransition(ctx, "missing", StatusBrewing, entry)
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("ApplyTransition() missing session error = %v, want ErrSessionNotFound", err)
	}
}

func TestSQLiteRepository_ApplyTransition_PinsPhaseStartOnce(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	s := testSession("abcdefghij0123456789", "dev-1")
	s.Status = StatusBrewing
	if err := repo.Create(ctx, s); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	eventDate := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	entry := HistoryEntry{Event: EventStartFermenting, PreviousState: StatusBrewing, EventDate: eventDate}
	if err := repo.ApplyTransition(ctx, s.ID, StatusFermenting, entry); err != nil {
		t.Fatalf("ApplyTransition() error = %v", err)
	}

	got, err := repo.GetByID(ctx, s.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	start := got.BrewingParameters.StartOfFermentation
	if start == nil || !start.Equal(eventDate) {
		t.Fatalf("StartOfFermentation = %v, want %v", start, eventDate)
	}

	// An explicit later SetFermentationStartIfAbsent must not move it.
	if err := repo.SetFermentationStartIfAbsent(ctx, s.ID, eventDate.Add(time.Hour)); err != nil {
		t.Fatalf("SetFermentationStartIfAbsent() error = %v", err)
	}
	got, _ = repo.GetByID(ctx, s.ID)
	if !got.BrewingParameters.StartOfFermentation.Equal(eventDate) {
		t.Errorf("StartOfFermentation moved to %v", got.BrewingParameters.StartOfFermentation)
	}
}

func TestSQLiteRepository_GetByDeviceAndStatus(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	idle := testSession("aaaaaaaaaaaaaaaaaaaa", "dev-1")
	brewing := testSession("bbbbbbbbbbbbbbbbbbbb", "dev-1")
	brewing.Status = StatusBrewing
	other := testSession("cccccccccccccccccccc", "dev-2")
	other.Status = StatusBrewing

	for _, s := range []*Session{idle, brewing, other} {
		if err := repo.Create(ctx, s); err != nil {
			t.Fatalf("Create(%s) error = %v", s.ID, err)
		}
	}

	got, err := repo.GetByDeviceAndStatus(ctx, "dev-1", StatusBrewing)
	if err != nil {
		t.Fatalf("GetByDeviceAndStatus() error = %v", err)
	}
	if got.ID != brewing.ID {
		t.Errorf("session = %s, want %s", got.ID, brewing.ID)
	}

	_, err = repo.GetByDeviceAndStatus(ctx, "dev-1", StatusFermenting)
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("GetByDeviceAndStatus() no match error = %v, want ErrSessionNotFound", err)
	}
}
