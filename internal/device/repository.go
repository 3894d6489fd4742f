package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for device persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetByID retrieves a device by its unique identifier.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id string) (*Device, error)

	// GetBySerial retrieves a device by its serial number.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetBySerial(ctx context.Context, serial string) (*Device, error)

	// List retrieves all devices.
	List(ctx context.Context) ([]Device, error)

	// ListByKind retrieves all devices of a given kind.
	ListByKind(ctx context.Context, kind Kind) ([]Device, error)

	// Create inserts a new device. If a device with the same serial number
	// already exists, no row is written and ErrDeviceExists is returned.
	Create(ctx context.Context, device *Device) error

	// UpdateState updates the reported state of a device. The write is
	// conditional: if the stored state already matches, no row is touched
	// and updated_at is left as is.
	UpdateState(ctx context.Context, id string, state State) error

	// UpdateFirmware updates the reported firmware version. Conditional in
	// the same way as UpdateState.
	UpdateFirmware(ctx context.Context, id string, version string) error

	// AppendError appends an entry to the device error log.
	// The append is unconditional: repeated reports accumulate.
	AppendError(ctx context.Context, id string, entry ErrorEntry) error

	// AcknowledgeErrors marks all logged errors on a device as acknowledged.
	AcknowledgeErrors(ctx context.Context, id string) error

	// AssignSession sets (or clears, with nil) the device's active session.
	AssignSession(ctx context.Context, id string, sessionID *string) error

	// Rename updates the human-friendly device name.
	Rename(ctx context.Context, id string, name string) error

	// Delete removes a device by ID.
	// Returns ErrDeviceNotFound if the device does not exist.
	Delete(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const deviceColumns = `id, serial_number, name, kind, state, firmware_version,
	session_id, errors, created_at, updated_at`

// GetByID retrieves a device by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("getting device %s: %w", id, err)
	}
	return d, nil
}

// GetBySerial retrieves a device by its serial number.
func (r *SQLiteRepository) GetBySerial(ctx context.Context, serial string) (*Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE serial_number = ?`

	row := r.db.QueryRowContext(ctx, query, serial)
	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("getting device by serial %s: %w", serial, err)
	}
	return d, nil
}

// List retrieves all devices ordered by creation time.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices ORDER BY created_at`
	return r.queryDevices(ctx, query)
}

// ListByKind retrieves all devices of a given kind.
func (r *SQLiteRepository) ListByKind(ctx context.Context, kind Kind) ([]Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE kind = ? ORDER BY created_at`
	return r.queryDevices(ctx, query, kind)
}

func (r *SQLiteRepository) queryDevices(ctx context.Context, query string, args ...any) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

// Create inserts a new device.
func (r *SQLiteRepository) Create(ctx context.Context, device *Device) error {
	errorsJSON, err := json.Marshal(device.Errors)
	if err != nil {
		return fmt.Errorf("marshalling errors: %w", err)
	}
	if len(device.Errors) == 0 {
		errorsJSON = []byte("[]")
	}

	query := `
		INSERT INTO devices (id, serial_number, name, kind, state,
			firmware_version, session_id, errors, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(serial_number) DO NOTHING`

	result, err := r.db.ExecContext(ctx, query,
		device.ID,
		device.SerialNumber,
		device.Name,
		device.Kind,
		device.State,
		device.FirmwareVersion,
		nullableStringPtr(device.CurrentSessionID),
		string(errorsJSON),
		device.CreatedAt.UTC().Format(time.RFC3339),
		device.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDeviceExists
		}
		return fmt.Errorf("creating device: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		// Conflict on serial number; the existing record stands.
		return ErrDeviceExists
	}
	return nil
}

// UpdateState updates the reported state of a device.
// The WHERE clause skips the write (and the updated_at bump) when the
// stored state already matches.
func (r *SQLiteRepository) UpdateState(ctx context.Context, id string, state State) error {
	query := `UPDATE devices SET state = ?, updated_at = ? WHERE id = ? AND state <> ?`

	result, err := r.db.ExecContext(ctx, query,
		state, time.Now().UTC().Format(time.RFC3339), id, state)
	if err != nil {
		return fmt.Errorf("updating device state: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		// Either the state was unchanged or the device does not exist.
		return r.ensureExists(ctx, id)
	}
	return nil
}

// UpdateFirmware updates the reported firmware version.
func (r *SQLiteRepository) UpdateFirmware(ctx context.Context, id string, version string) error {
	query := `UPDATE devices SET firmware_version = ?, updated_at = ? WHERE id = ? AND firmware_version <> ?`

	result, err := r.db.ExecContext(ctx, query,
		version, time.Now().UTC().Format(time.RFC3339), id, version)
	if err != nil {
		return fmt.Errorf("updating device firmware: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return r.ensureExists(ctx, id)
	}
	return nil
}

// AppendError appends an entry to the device error log using SQLite's
// json_insert, so concurrent reporters never lose entries.
func (r *SQLiteRepository) AppendError(ctx context.Context, id string, entry ErrorEntry) error {
	entryJSON, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshalling error entry: %w", err)
	}

	query := `
		UPDATE devices
		SET errors = json_insert(errors, '$[#]', json(?)), updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		string(entryJSON), time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("appending device error: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// AcknowledgeErrors marks all logged errors on a device as acknowledged.
func (r *SQLiteRepository) AcknowledgeErrors(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	var raw string
	err = tx.QueryRowContext(ctx, `SELECT errors FROM devices WHERE id = ?`, id).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrDeviceNotFound
		}
		return fmt.Errorf("reading device errors: %w", err)
	}

	var entries []ErrorEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return fmt.Errorf("unmarshalling device errors: %w", err)
	}

	changed := false
	for i := range entries {
		if !entries[i].Acknowledged {
			entries[i].Acknowledged = true
			changed = true
		}
	}
	if !changed {
		return tx.Commit()
	}

	updated, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshalling device errors: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE devices SET errors = ?, updated_at = ? WHERE id = ?`,
		string(updated), time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("acknowledging device errors: %w", err)
	}
	return tx.Commit()
}

// AssignSession sets (or clears, with nil) the device's active session.
func (r *SQLiteRepository) AssignSession(ctx context.Context, id string, sessionID *string) error {
	query := `UPDATE devices SET session_id = ?, updated_at = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		nullableStringPtr(sessionID), time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("assigning session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// Rename updates the human-friendly device name.
func (r *SQLiteRepository) Rename(ctx context.Context, id string, name string) error {
	query := `UPDATE devices SET name = ?, updated_at = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		name, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("renaming device: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// Delete removes a device by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM devices WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// ensureExists distinguishes a conditional no-op update from a missing row.
func (r *SQLiteRepository) ensureExists(ctx context.Context, id string) error {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM devices WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrDeviceNotFound
	}
	if err != nil {
		return fmt.Errorf("checking device existence: %w", err)
	}
	return nil
}

// rowScanner abstracts sql.Row and sql.Rows for scanDevice.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanDevice scans a device row into a Device struct.
func scanDevice(row rowScanner) (*Device, error) {
	var d Device
	var sessionID sql.NullString
	var errorsJSON, createdAt, updatedAt string

	err := row.Scan(
		&d.ID,
		&d.SerialNumber,
		&d.Name,
		&d.Kind,
		&d.State,
		&d.FirmwareVersion,
		&sessionID,
		&errorsJSON,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if sessionID.Valid {
		d.CurrentSessionID = &sessionID.String
	}

	if err := json.Unmarshal([]byte(errorsJSON), &d.Errors); err != nil {
		return nil, fmt.Errorf("unmarshalling errors: %w", err)
	}

	if d.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if d.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &d, nil
}

// nullableStringPtr converts a *string to a value suitable for a nullable
// TEXT column.
func nullableStringPtr(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
