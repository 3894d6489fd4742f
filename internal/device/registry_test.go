package device

import (
	"context"
	"errors"
	"testing"

	"github.com/picobrewhouse/brewhouse-core/internal/infrastructure/logging"
)

func setupRegistry(t *testing.T) *Registry {
	t.Helper()
	db := setupTestDB(t)
	return NewRegistry(NewSQLiteRepository(db), logging.Default())
}

func TestRegistry_Register_Idempotent(t *testing.T) {
	reg := setupRegistry(t)
	ctx := context.Background()

	first, err := reg.Register(ctx, "SN-1000", KindBrewer)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if first.SerialNumber != "SN-1000" {
		t.Errorf("SerialNumber = %q, want SN-1000", first.SerialNumber)
	}
	if first.State != StateReady {
		t.Errorf("State = %q, want %q", first.State, StateReady)
	}

	// Give the device a name, then register the same serial again: the
	// existing record must come back untouched.
	if err := reg.Rename(ctx, first.ID, "Kitchen Brewer"); err != nil {
		t.Fatalf("Rename() error = %v", err)
	}

	second, err := reg.Register(ctx, "SN-1000", KindBrewer)
	if err != nil {
		t.Fatalf("Register() again error = %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("second registration ID = %q, want %q", second.ID, first.ID)
	}
	if second.Name != "Kitchen Brewer" {
		t.Errorf("Name = %q, want %q (registration must not reset it)", second.Name, "Kitchen Brewer")
	}
}

func TestRegistry_Register_EmptySerial(t *testing.T) {
	reg := setupRegistry(t)

	_, err := reg.Register(context.Background(), "", KindBrewer)
	if !errors.Is(err, ErrInvalidSerial) {
		t.Errorf("Register() error = %v, want ErrInvalidSerial", err)
	}
}

func TestRegistry_Register_FermenterDefaultState(t *testing.T) {
	reg := setupRegistry(t)

	d, err := reg.Register(context.Background(), "FERM-1", KindFermenter)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if d.State != StateNothingTodo {
		t.Errorf("State = %q, want %q", d.State, StateNothingTodo)
	}
}

func TestRegistry_ReportStateCode(t *testing.T) {
	reg := setupRegistry(t)
	ctx := context.Background()

	if _, err := reg.Register(ctx, "SN-1000", KindBrewer); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	d, err := reg.ReportStateCode(ctx, "SN-1000", 7)
	if err != nil {
		t.Fatalf("ReportStateCode() error = %v", err)
	}
	if d.State != StateDeepClean {
		t.Errorf("State = %q, want %q", d.State, StateDeepClean)
	}

	if _, err := reg.ReportStateCode(ctx, "SN-1000", 99); !errors.Is(err, ErrInvalidState) {
		t.Errorf("ReportStateCode(99) error = %v, want ErrInvalidState", err)
	}

	if _, err := reg.ReportStateCode(ctx, "UNKNOWN", 2); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("ReportStateCode() unknown serial error = %v, want ErrDeviceNotFound", err)
	}
}

func TestRegistry_ReportError_Accumulates(t *testing.T) {
	reg := setupRegistry(t)
	ctx := context.Background()

	d, err := reg.Register(ctx, "SN-1000", KindBrewer)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := reg.ReportError(ctx, "SN-1000", 13); err != nil {
			t.Fatalf("ReportError() #%d error = %v", i, err)
		}
	}

	got, err := reg.Get(ctx, d.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(got.Errors) != 2 {
		t.Errorf("Errors length = %d, want 2", len(got.Errors))
	}
}

func TestStateCodeRoundTrip(t *testing.T) {
	codes := []int{2, 3, 4, 5, 6, 7, 9}
	for _, code := range codes {
		s, err := StateFromCode(code)
		if err != nil {
			t.Fatalf("StateFromCode(%d) error = %v", code, err)
		}
		if s.Code() != code {
			t.Errorf("Code() round trip for %d = %d", code, s.Code())
		}
	}

	if StateNothingTodo.Code() != -1 {
		t.Errorf("fermenter state Code() = %d, want -1", StateNothingTodo.Code())
	}
}
