package device

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/picobrewhouse/brewhouse-core/internal/infrastructure/logging"
)

// Registry provides device lifecycle operations on top of a Repository.
//
// The registry holds no in-process state of its own: every call reads and
// writes through the repository, so multiple service instances can share
// the same database without coordination.
type Registry struct {
	repo   Repository
	logger *logging.Logger
}

// NewRegistry creates a device registry.
func NewRegistry(repo Repository, logger *logging.Logger) *Registry {
	return &Registry{
		repo:   repo,
		logger: logger.With("component", "device-registry"),
	}
}

// Register ensures a device with the given serial number exists and
// returns it. Registration is idempotent: a serial seen before returns
// the existing record untouched, including its name, session and error log.
func (r *Registry) Register(ctx context.Context, serial string, kind Kind) (*Device, error) {
	if serial == "" {
		return nil, ErrInvalidSerial
	}

	existing, err := r.repo.GetBySerial(ctx, serial)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrDeviceNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	d := &Device{
		ID:              uuid.New().String(),
		SerialNumber:    serial,
		Name:            serial,
		Kind:            kind,
		State:           DefaultState(kind),
		FirmwareVersion: "",
		Errors:          []ErrorEntry{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := r.repo.Create(ctx, d); err != nil {
		if errors.Is(err, ErrDeviceExists) {
			// Lost a registration race; the winner's record stands.
			return r.repo.GetBySerial(ctx, serial)
		}
		return nil, err
	}

	r.logger.Info("device registered", "serial", serial, "kind", kind, "id", d.ID)
	return d, nil
}

// ReportStateCode records a brewer state report given as a wire code.
// Returns the device after the update.
func (r *Registry) ReportStateCode(ctx context.Context, serial string, code int) (*Device, error) {
	state, err := StateFromCode(code)
	if err != nil {
		return nil, err
	}
	return r.ReportState(ctx, serial, state)
}

// ReportState records a state report from a device. An unchanged state is
// a no-op and does not touch updated_at.
func (r *Registry) ReportState(ctx context.Context, serial string, state State) (*Device, error) {
	d, err := r.repo.GetBySerial(ctx, serial)
	if err != nil {
		return nil, err
	}
	if err := r.repo.UpdateState(ctx, d.ID, state); err != nil {
		return nil, err
	}
	if d.State != state {
		r.logger.Debug("device state changed",
			"serial", serial, "from", d.State, "to", state)
		d.State = state
	}
	return d, nil
}

// ReportFirmware records the firmware version a device reports. Unchanged
// versions are a no-op.
func (r *Registry) ReportFirmware(ctx context.Context, serial string, version string) (*Device, error) {
	d, err := r.repo.GetBySerial(ctx, serial)
	if err != nil {
		return nil, err
	}
	if err := r.repo.UpdateFirmware(ctx, d.ID, version); err != nil {
		return nil, err
	}
	d.FirmwareVersion = version
	return d, nil
}

// ReportError appends an error code to a device's error log. Unlike state
// and firmware reports, error reports always write: repeated codes
// accumulate as separate entries.
func (r *Registry) ReportError(ctx context.Context, serial string, code int) error {
	d, err := r.repo.GetBySerial(ctx, serial)
	if err != nil {
		return err
	}

	entry := ErrorEntry{
		Code:       code,
		ReportedAt: time.Now().UTC(),
	}
	if err := r.repo.AppendError(ctx, d.ID, entry); err != nil {
		return err
	}

	r.logger.Warn("device reported error", "serial", serial, "code", code)
	return nil
}

// AcknowledgeErrors marks every logged error on a device as acknowledged.
func (r *Registry) AcknowledgeErrors(ctx context.Context, id string) error {
	return r.repo.AcknowledgeErrors(ctx, id)
}

// AttachSession links a device to its active session.
func (r *Registry) AttachSession(ctx context.Context, id string, sessionID string) error {
	return r.repo.AssignSession(ctx, id, &sessionID)
}

// DetachSession clears the active session link on a device.
func (r *Registry) DetachSession(ctx context.Context, id string) error {
	return r.repo.AssignSession(ctx, id, nil)
}

// Get retrieves a device by ID.
func (r *Registry) Get(ctx context.Context, id string) (*Device, error) {
	return r.repo.GetByID(ctx, id)
}

// GetBySerial retrieves a device by serial number.
func (r *Registry) GetBySerial(ctx context.Context, serial string) (*Device, error) {
	return r.repo.GetBySerial(ctx, serial)
}

// List retrieves all devices, optionally filtered to a kind.
func (r *Registry) List(ctx context.Context, kind Kind) ([]Device, error) {
	if kind == "" {
		return r.repo.List(ctx)
	}
	if _, err := ParseKind(string(kind)); err != nil {
		return nil, err
	}
	return r.repo.ListByKind(ctx, kind)
}

// Rename updates a device's display name.
func (r *Registry) Rename(ctx context.Context, id string, name string) error {
	if name == "" {
		return ErrInvalidName
	}
	return r.repo.Rename(ctx, id, name)
}

// Delete removes a device.
func (r *Registry) Delete(ctx context.Context, id string) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}
	r.logger.Info("device deleted", "id", id)
	return nil
}
