// Package timeseries persists telemetry samples in fixed-capacity buckets.
//
// Samples are grouped by a coarse time key (minute for brewing, day for
// fermentation) and appended to the newest bucket for that key until it
// reaches capacity, at which point a fresh bucket is started. Appends use
// only conditional single-statement writes, so concurrent reporters never
// exceed a bucket's capacity, never lose samples and never open two
// buckets where one would do.
package timeseries

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// DefaultBucketCapacity is the number of samples a bucket holds before a
// new one is started.
const DefaultBucketCapacity = 100

// Store persists telemetry samples in SQLite-backed buckets.
type Store struct {
	db       *sql.DB
	capacity int
}

// NewStore creates a telemetry store. A capacity of zero or less selects
// DefaultBucketCapacity.
func NewStore(db *sql.DB, capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultBucketCapacity
	}
	return &Store{db: db, capacity: capacity}
}

// Capacity returns the per-bucket sample capacity.
func (s *Store) Capacity() int {
	return s.capacity
}

// Append adds a sample to the series for a session.
//
// The sample lands in the newest bucket matching its own timestamp's
// grouping key. If every bucket for that key is full (or none exists),
// a new one is created. Both writes are conditional single statements:
// the UPDATE targets exactly one bucket by id, and the INSERT re-checks
// for headroom inside the statement so two concurrent first-samples
// cannot both open a bucket. A lost round means another appender
// committed in between; the loop retries against the fresh bucket set.
func (s *Store) Append(ctx context.Context, sessionID string, kind Kind, sample Sample) error {
	at := sample.SampleTime()
	if at.IsZero() {
		return fmt.Errorf("%w: zero timestamp", ErrInvalidSample)
	}

	payload, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSample, err)
	}

	key := BucketKey(kind, at)
	ts := at.UTC().Format(time.RFC3339)

	update := `
		UPDATE timeseries_buckets
		SET samples = json_insert(samples, '$[#]', json(?)),
			nbs = nbs + 1,
			first = min(first, ?),
			last = max(last, ?)
		WHERE id = (
			SELECT id FROM timeseries_buckets
			WHERE session_id = ? AND kind = ? AND bucket_key = ? AND nbs < ?
			ORDER BY id DESC LIMIT 1)`

	insert := `
		INSERT INTO timeseries_buckets (session_id, kind, bucket_key, nbs, first, last, samples)
		SELECT ?, ?, ?, 1, ?, ?, json_array(json(?))
		WHERE NOT EXISTS (
			SELECT 1 FROM timeseries_buckets
			WHERE session_id = ? AND kind = ? AND bucket_key = ? AND nbs < ?)`

	for {
		result, err := s.db.ExecContext(ctx, update,
			string(payload), ts, ts, sessionID, kind, key, s.capacity)
		if err != nil {
			return fmt.Errorf("appending sample: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("checking rows affected: %w", err)
		}
		if rows > 0 {
			return nil
		}

		// No bucket with headroom; start a new one for this key.
		result, err = s.db.ExecContext(ctx, insert,
			sessionID, kind, key, ts, ts, string(payload),
			sessionID, kind, key, s.capacity)
		if err != nil {
			return fmt.Errorf("creating bucket: %w", err)
		}
		rows, err = result.RowsAffected()
		if err != nil {
			return fmt.Errorf("checking rows affected: %w", err)
		}
		if rows > 0 {
			return nil
		}

		if err := ctx.Err(); err != nil {
			return fmt.Errorf("appending sample: %w", err)
		}
	}
}

// ReadOrdered returns every sample for a session's series, ordered by
// bucket start time. Within a bucket, samples keep their append order.
func (s *Store) ReadOrdered(ctx context.Context, sessionID string, kind Kind) ([]json.RawMessage, error) {
	query := `
		SELECT samples FROM timeseries_buckets
		WHERE session_id = ? AND kind = ?
		ORDER BY first ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, sessionID, kind)
	if err != nil {
		return nil, fmt.Errorf("querying buckets: %w", err)
	}
	defer rows.Close()

	var samples []json.RawMessage
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scanning bucket: %w", err)
		}
		var bucket []json.RawMessage
		if err := json.Unmarshal([]byte(raw), &bucket); err != nil {
			return nil, fmt.Errorf("unmarshalling bucket samples: %w", err)
		}
		samples = append(samples, bucket...)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating buckets: %w", err)
	}
	return samples, nil
}

// ReadBrewing returns a session's brewing series decoded into typed samples.
func (s *Store) ReadBrewing(ctx context.Context, sessionID string) ([]BrewingSample, error) {
	raw, err := s.ReadOrdered(ctx, sessionID, KindBrewing)
	if err != nil {
		return nil, err
	}
	samples := make([]BrewingSample, 0, len(raw))
	for _, r := range raw {
		var sample BrewingSample
		if err := json.Unmarshal(r, &sample); err != nil {
			return nil, fmt.Errorf("unmarshalling brewing sample: %w", err)
		}
		samples = append(samples, sample)
	}
	return samples, nil
}

// ReadFermentation returns a session's fermentation series decoded into
// typed samples.
func (s *Store) ReadFermentation(ctx context.Context, sessionID string) ([]FermentationSample, error) {
	raw, err := s.ReadOrdered(ctx, sessionID, KindFermenting)
	if err != nil {
		return nil, err
	}
	samples := make([]FermentationSample, 0, len(raw))
	for _, r := range raw {
		var sample FermentationSample
		if err := json.Unmarshal(r, &sample); err != nil {
			return nil, fmt.Errorf("unmarshalling fermentation sample: %w", err)
		}
		samples = append(samples, sample)
	}
	return samples, nil
}

// count returns the total number of samples stored for a session's series.
func (s *Store) count(ctx context.Context, sessionID string, kind Kind) (int, error) {
	var count sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT sum(nbs) FROM timeseries_buckets WHERE session_id = ? AND kind = ?`,
		sessionID, kind).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting samples: %w", err)
	}
	return int(count.Int64), nil
}
