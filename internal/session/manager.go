package session

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/picobrewhouse/brewhouse-core/internal/device"
	"github.com/picobrewhouse/brewhouse-core/internal/infrastructure/logging"
	"github.com/picobrewhouse/brewhouse-core/internal/timeseries"
)

// sessionIDAlphabet and sessionIDLength shape the device-facing session
// identifier. Appliances echo this id back in telemetry requests, so it
// stays short and lowercase alphanumeric.
const (
	sessionIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	sessionIDLength   = 20
)

// transitionAttempts bounds the optimistic-retry loop in SubmitEvent.
const transitionAttempts = 3

// EventSink receives notifications after state changes and telemetry
// appends have been committed. Implementations must not block; slow
// consumers should buffer internally.
type EventSink interface {
	// SessionTransitioned is called after an accepted transition.
	SessionTransitioned(ctx context.Context, s *Session, event Event, previous Status)

	// TelemetryAppended is called after a sample has been stored.
	TelemetryAppended(ctx context.Context, sessionID string, kind timeseries.Kind, sample timeseries.Sample)
}

// noopSink discards all notifications.
type noopSink struct{}

func (noopSink) SessionTransitioned(context.Context, *Session, Event, Status) {}
func (noopSink) TelemetryAppended(context.Context, string, timeseries.Kind, timeseries.Sample) {
}

// Manager drives the session lifecycle: creation, event submission
// through the state machine, and telemetry capture.
//
// The manager keeps no state of its own; concurrent submissions are
// serialised through conditional writes, so several instances can share
// one database.
type Manager struct {
	repo      Repository
	devices   *device.Registry
	telemetry *timeseries.Store
	logger    *logging.Logger
	sink      EventSink
	now       func() time.Time
}

// NewManager creates a session manager.
func NewManager(repo Repository, devices *device.Registry, telemetry *timeseries.Store, logger *logging.Logger) *Manager {
	return &Manager{
		repo:      repo,
		devices:   devices,
		telemetry: telemetry,
		logger:    logger.With("component", "session-manager"),
		sink:      noopSink{},
		now:       time.Now,
	}
}

// SetEventSink wires a sink for transition and telemetry notifications.
// Call before serving traffic; the sink is not guarded by a lock.
func (m *Manager) SetEventSink(sink EventSink) {
	if sink == nil {
		sink = noopSink{}
	}
	m.sink = sink
}

// newSessionID generates a device-facing session identifier.
func newSessionID() (string, error) {
	alphabetLen := big.NewInt(int64(len(sessionIDAlphabet)))
	id := make([]byte, sessionIDLength)
	for i := range id {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", fmt.Errorf("generating session id: %w", err)
		}
		id[i] = sessionIDAlphabet[n.Int64()]
	}
	return string(id), nil
}

// CreateSession starts a new session of the given type on a device.
// The session begins Idle; the caller submits the type's start event
// separately (devices do this implicitly through the protocol handlers).
func (m *Manager) CreateSession(ctx context.Context, deviceID string, sessionType Type) (*Session, error) {
	if _, err := m.devices.Get(ctx, deviceID); err != nil {
		return nil, err
	}

	id, err := newSessionID()
	if err != nil {
		return nil, err
	}

	now := m.now().UTC()
	s := &Session{
		ID:                id,
		Name:              fmt.Sprintf("%s %s", sessionType, now.Format("2006-01-02 15:04")),
		Type:              sessionType,
		DeviceID:          deviceID,
		Status:            StatusIdle,
		History:           []HistoryEntry{},
		BrewingParameters: DefaultBrewingParameters(),
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := m.repo.Create(ctx, s); err != nil {
		return nil, err
	}
	if err := m.devices.AttachSession(ctx, deviceID, s.ID); err != nil {
		return nil, err
	}

	m.logger.Info("session created",
		"session", s.ID, "type", sessionType, "device", deviceID)
	return s, nil
}

// SubmitEvent runs an event through the lifecycle rules and persists the
// outcome.
//
// A rejected event (wrong state or unsatisfied time guard) returns
// ErrTransitionRejected and leaves no trace: no history entry, no
// updated_at bump. Concurrent submissions are resolved optimistically;
// when another writer changes the status mid-flight the event is
// re-evaluated against the fresh state, a bounded number of times.
func (m *Manager) SubmitEvent(ctx context.Context, id string, event Event) (Status, error) {
	var lastErr error
	for attempt := 0; attempt < transitionAttempts; attempt++ {
		s, err := m.repo.GetByID(ctx, id)
		if err != nil {
			return "", err
		}

		next := Next(s.Status, event, guardsFor(s, m.now()))
		if next == s.Status {
			return s.Status, ErrTransitionRejected
		}

		entry := HistoryEntry{
			Event:         event,
			PreviousState: s.Status,
			EventDate:     m.now().UTC(),
		}
		err = m.repo.ApplyTransition(ctx, id, next, entry)
		if err == nil {
			m.afterTransition(ctx, s, next, event, entry)
			return next, nil
		}
		if !errors.Is(err, ErrStatusConflict) {
			return "", err
		}
		lastErr = err
	}
	return "", lastErr
}

// afterTransition performs the bookkeeping that follows a committed
// transition: device detach on completion, logging and fan-out.
func (m *Manager) afterTransition(ctx context.Context, before *Session, next Status, event Event, entry HistoryEntry) {
	m.logger.Info("session transitioned",
		"session", before.ID, "event", event, "from", before.Status, "to", next)

	if next == StatusFinished {
		if err := m.devices.DetachSession(ctx, before.DeviceID); err != nil {
			m.logger.Warn("failed to detach finished session",
				"session", before.ID, "device", before.DeviceID, "error", err)
		}
	}

	after := *before
	after.Status = next
	after.History = append(append([]HistoryEntry{}, before.History...), entry)
	m.sink.SessionTransitioned(ctx, &after, event, before.Status)
}

// AppendBrewingTelemetry stores one brewer datapoint for a session.
func (m *Manager) AppendBrewingTelemetry(ctx context.Context, sessionID string, sample timeseries.BrewingSample) error {
	if _, err := m.repo.GetByID(ctx, sessionID); err != nil {
		return err
	}
	if err := m.telemetry.Append(ctx, sessionID, timeseries.KindBrewing, sample); err != nil {
		return err
	}
	m.sink.TelemetryAppended(ctx, sessionID, timeseries.KindBrewing, sample)
	return nil
}

// FermReading is one raw fermenter datapoint as the appliance reports
// it: Fahrenheit and PSI, without a timestamp.
type FermReading struct {
	TemperatureF float64
	PressurePsi  float64
}

// AppendFermentationBatch stores a window of fermenter readings.
//
// Fermenters buffer readings and deliver them in one batch covering the
// past hour, sampled every rate minutes. Timestamps are reconstructed by
// spreading the readings backwards from now. Voltage is measured once
// per window and stamped onto every reading. The first batch a session
// receives also pins the start of its fermentation clock.
func (m *Manager) AppendFermentationBatch(ctx context.Context, sessionID string, rate float64, voltage float64, readings []FermReading) error {
	if _, err := m.repo.GetByID(ctx, sessionID); err != nil {
		return err
	}

	now := m.now().UTC()
	if err := m.repo.SetFermentationStartIfAbsent(ctx, sessionID, now); err != nil {
		return err
	}

	for i, r := range readings {
		offset := time.Duration(60-float64(i)*rate) * time.Minute
		sample := timeseries.FermentationSample{
			Temperature: timeseries.FahrenheitToCelsius(r.TemperatureF),
			Pressure:    timeseries.PsiToMillibar(r.PressurePsi),
			Voltage:     voltage,
			Timestamp:   now.Add(-offset).Unix(),
		}
		if err := m.telemetry.Append(ctx, sessionID, timeseries.KindFermenting, sample); err != nil {
			return err
		}
		m.sink.TelemetryAppended(ctx, sessionID, timeseries.KindFermenting, sample)
	}
	return nil
}

// Get retrieves a session by id.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	return m.repo.GetByID(ctx, id)
}

// GetForDevice retrieves a session by id, scoped to a device. Appliance
// telemetry goes through this lookup so one unit cannot report into
// another's session.
func (m *Manager) GetForDevice(ctx context.Context, id, deviceID string) (*Session, error) {
	return m.repo.GetByIDAndDevice(ctx, id, deviceID)
}

// ActiveByDevice retrieves the session on a device in a given status.
func (m *Manager) ActiveByDevice(ctx context.Context, deviceID string, status Status) (*Session, error) {
	return m.repo.GetByDeviceAndStatus(ctx, deviceID, status)
}

// List retrieves sessions, optionally scoped to a device.
func (m *Manager) List(ctx context.Context, deviceID string) ([]Session, error) {
	if deviceID == "" {
		return m.repo.List(ctx)
	}
	return m.repo.ListByDevice(ctx, deviceID)
}

// Rename updates a session's display name.
func (m *Manager) Rename(ctx context.Context, id string, name string) error {
	return m.repo.Rename(ctx, id, name)
}

// Delete removes a session.
func (m *Manager) Delete(ctx context.Context, id string) error {
	return m.repo.Delete(ctx, id)
}

// Telemetry exposes the underlying store for read-side handlers.
func (m *Manager) Telemetry() *timeseries.Store {
	return m.telemetry
}
