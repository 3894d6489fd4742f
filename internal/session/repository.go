package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Repository defines the interface for session persistence operations.
type Repository interface {
	// Create inserts a new session.
	Create(ctx context.Context, s *Session) error

	// GetByID retrieves a session by its identifier.
	// Returns ErrSessionNotFound if the session does not exist.
	GetByID(ctx context.Context, id string) (*Session, error)

	// GetByIDAndDevice retrieves a session only if it belongs to the
	// given device. Returns ErrSessionNotFound otherwise.
	GetByIDAndDevice(ctx context.Context, id, deviceID string) (*Session, error)

	// GetByDeviceAndStatus retrieves the first session on a device in a
	// given status. Returns ErrSessionNotFound if none matches.
	GetByDeviceAndStatus(ctx context.Context, deviceID string, status Status) (*Session, error)

	// List retrieves all sessions, newest first.
	List(ctx context.Context) ([]Session, error)

	// ListByDevice retrieves all sessions for a device, newest first.
	ListByDevice(ctx context.Context, deviceID string) ([]Session, error)

	// ApplyTransition atomically records an accepted transition: the
	// status moves from entry.PreviousState to next, the history gains
	// the entry, and if next begins a timed phase whose start is still
	// unset, the start is recorded in the same write.
	//
	// The update is conditional on the stored status still being
	// entry.PreviousState; ErrStatusConflict is returned when another
	// writer got there first.
	ApplyTransition(ctx context.Context, id string, next Status, entry HistoryEntry) error

	// SetFermentationStartIfAbsent records the start of fermentation if
	// no start has been recorded yet. Later calls are no-ops, so the
	// first telemetry batch pins the phase clock.
	SetFermentationStartIfAbsent(ctx context.Context, id string, start time.Time) error

	// Rename updates the session display name.
	Rename(ctx context.Context, id string, name string) error

	// Delete removes a session.
	// Returns ErrSessionNotFound if the session does not exist.
	Delete(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const sessionColumns = `id, name, session_type, device_id, status, status_history,
	fermentation_days, cold_crashing_days, carbonating_days,
	start_of_fermentation, start_of_cold_crashing, start_of_carbonating,
	created_at, updated_at`

// Create inserts a new session.
func (r *SQLiteRepository) Create(ctx context.Context, s *Session) error {
	historyJSON, err := json.Marshal(s.History)
	if err != nil {
		return fmt.Errorf("marshalling history: %w", err)
	}
	if len(s.History) == 0 {
		historyJSON = []byte("[]")
	}

	query := `
		INSERT INTO sessions (id, name, session_type, device_id, status, status_history,
			fermentation_days, cold_crashing_days, carbonating_days,
			start_of_fermentation, start_of_cold_crashing, start_of_carbonating,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	p := s.BrewingParameters
	_, err = r.db.ExecContext(ctx, query,
		s.ID,
		s.Name,
		s.Type,
		s.DeviceID,
		s.Status,
		string(historyJSON),
		p.FermentationDays,
		p.ColdCrashingDays,
		p.CarbonatingDays,
		nullableTime(p.StartOfFermentation),
		nullableTime(p.StartOfColdCrashing),
		nullableTime(p.StartOfCarbonating),
		s.CreatedAt.UTC().Format(time.RFC3339),
		s.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	return nil
}

// GetByID retrieves a session by its identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = ?`

	s, err := scanSession(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("getting session %s: %w", id, err)
	}
	return s, nil
}

// GetByIDAndDevice retrieves a session only if it belongs to the device.
func (r *SQLiteRepository) GetByIDAndDevice(ctx context.Context, id, deviceID string) (*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = ? AND device_id = ?`

	s, err := scanSession(r.db.QueryRowContext(ctx, query, id, deviceID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("getting session %s for device %s: %w", id, deviceID, err)
	}
	return s, nil
}

// GetByDeviceAndStatus retrieves the first session on a device in a status.
func (r *SQLiteRepository) GetByDeviceAndStatus(ctx context.Context, deviceID string, status Status) (*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions
		WHERE device_id = ? AND status = ?
		ORDER BY created_at DESC LIMIT 1`

	s, err := scanSession(r.db.QueryRowContext(ctx, query, deviceID, status))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("getting %s session for device %s: %w", status, deviceID, err)
	}
	return s, nil
}

// List retrieves all sessions, newest first.
func (r *SQLiteRepository) List(ctx context.Context) ([]Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions ORDER BY created_at DESC`
	return r.querySessions(ctx, query)
}

// ListByDevice retrieves all sessions for a device, newest first.
func (r *SQLiteRepository) ListByDevice(ctx context.Context, deviceID string) ([]Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE device_id = ? ORDER BY created_at DESC`
	return r.querySessions(ctx, query, deviceID)
}

func (r *SQLiteRepository) querySessions(ctx context.Context, query string, args ...any) ([]Session, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}
	return sessions, nil
}

// phaseStartColumn maps a status to the phase-start column it begins.
func phaseStartColumn(next Status) string {
	switch next {
	case StatusFermenting:
		return "start_of_fermentation"
	case StatusColdCrashing:
		return "start_of_cold_crashing"
	case StatusCarbonating:
		return "start_of_carbonating"
	default:
		return ""
	}
}

// ApplyTransition atomically records an accepted transition.
func (r *SQLiteRepository) ApplyTransition(ctx context.Context, id string, next Status, entry HistoryEntry) error {
	entryJSON, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshalling history entry: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	eventDate := entry.EventDate.UTC().Format(time.RFC3339)

	var result sql.Result
	if col := phaseStartColumn(next); col != "" {
		query := `
			UPDATE sessions
			SET status = ?,
				status_history = json_insert(status_history, '$[#]', json(?)),
				` + col + ` = coalesce(` + col + `, ?),
				updated_at = ?
			WHERE id = ? AND status = ?`
		result, err = r.db.ExecContext(ctx, query,
			next, string(entryJSON), eventDate, now, id, entry.PreviousState)
	} else {
		query := `
			UPDATE sessions
			SET status = ?,
				status_history = json_insert(status_history, '$[#]', json(?)),
				updated_at = ?
			WHERE id = ? AND status = ?`
		result, err = r.db.ExecContext(ctx, query,
			next, string(entryJSON), now, id, entry.PreviousState)
	}
	if err != nil {
		return fmt.Errorf("applying transition: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		// Distinguish a lost race from a missing session.
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrStatusConflict
	}
	return nil
}

// SetFermentationStartIfAbsent records the fermentation start once.
func (r *SQLiteRepository) SetFermentationStartIfAbsent(ctx context.Context, id string, start time.Time) error {
	query := `
		UPDATE sessions SET start_of_fermentation = ?, updated_at = ?
		WHERE id = ? AND start_of_fermentation IS NULL`

	_, err := r.db.ExecContext(ctx, query,
		start.UTC().Format(time.RFC3339), time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("setting fermentation start: %w", err)
	}
	return nil
}

// Rename updates the session display name.
func (r *SQLiteRepository) Rename(ctx context.Context, id string, name string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET name = ?, updated_at = ? WHERE id = ?`,
		name, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("renaming session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Delete removes a session.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// rowScanner abstracts sql.Row and sql.Rows for scanSession.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanSession scans a session row into a Session struct.
func scanSession(row rowScanner) (*Session, error) {
	var s Session
	var historyJSON, createdAt, updatedAt string
	var fermStart, crashStart, carbStart sql.NullString

	err := row.Scan(
		&s.ID,
		&s.Name,
		&s.Type,
		&s.DeviceID,
		&s.Status,
		&historyJSON,
		&s.BrewingParameters.FermentationDays,
		&s.BrewingParameters.ColdCrashingDays,
		&s.BrewingParameters.CarbonatingDays,
		&fermStart,
		&crashStart,
		&carbStart,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(historyJSON), &s.History); err != nil {
		return nil, fmt.Errorf("unmarshalling history: %w", err)
	}

	if s.BrewingParameters.StartOfFermentation, err = parseNullableTime(fermStart); err != nil {
		return nil, err
	}
	if s.BrewingParameters.StartOfColdCrashing, err = parseNullableTime(crashStart); err != nil {
		return nil, err
	}
	if s.BrewingParameters.StartOfCarbonating, err = parseNullableTime(carbStart); err != nil {
		return nil, err
	}

	if s.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if s.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &s, nil
}

// nullableTime converts an optional time to a nullable TEXT value.
func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

// parseNullableTime parses an optional RFC3339 column value.
func parseNullableTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v.String)
	if err != nil {
		return nil, fmt.Errorf("parsing timestamp: %w", err)
	}
	return &t, nil
}
