package session

import (
	"fmt"
	"time"
)

// Type categorises what a session does on the appliance.
type Type string

// Session types.
const (
	TypeBrewing    Type = "Brewing"
	TypeDeepClean  Type = "DeepClean"
	TypeSousVide   Type = "SousVide"
	TypeColdBrew   Type = "ColdBrew"
	TypeManualBrew Type = "ManualBrew"
)

// Session type wire codes, as brewers send them when starting a session.
const (
	codeBrewing    = 0
	codeDeepClean  = 1
	codeSousVide   = 2
	codeColdBrew   = 4
	codeManualBrew = 5
)

var typeByCode = map[int]Type{
	codeBrewing:    TypeBrewing,
	codeDeepClean:  TypeDeepClean,
	codeSousVide:   TypeSousVide,
	codeColdBrew:   TypeColdBrew,
	codeManualBrew: TypeManualBrew,
}

var codeByType = map[Type]int{
	TypeBrewing:    codeBrewing,
	TypeDeepClean:  codeDeepClean,
	TypeSousVide:   codeSousVide,
	TypeColdBrew:   codeColdBrew,
	TypeManualBrew: codeManualBrew,
}

// TypeFromCode converts a wire code to a session Type.
// Returns ErrInvalidType for unrecognised codes.
func TypeFromCode(code int) (Type, error) {
	t, ok := typeByCode[code]
	if !ok {
		return "", fmt.Errorf("%w: code %d", ErrInvalidType, code)
	}
	return t, nil
}

// ParseType validates and converts a string to a Type.
func ParseType(s string) (Type, error) {
	t := Type(s)
	if _, ok := codeByType[t]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidType, s)
	}
	return t, nil
}

// Code returns the wire code for a session type.
func (t Type) Code() int {
	return codeByType[t]
}

// StartEvent returns the lifecycle event that starts a session of this type.
func (t Type) StartEvent() Event {
	switch t {
	case TypeDeepClean:
		return EventStartDeepClean
	case TypeSousVide:
		return EventStartSousVide
	case TypeColdBrew:
		return EventStartColdBrew
	case TypeManualBrew:
		return EventStartManualBrew
	default:
		return EventStartBrewing
	}
}

// Default timed-phase durations in days, applied when a session is
// created without explicit parameters.
const (
	DefaultFermentationDays = 6
	DefaultColdCrashingDays = 1
	DefaultCarbonatingDays  = 14
)

// BrewingParameters hold the timed-phase durations of a session and the
// moments each phase actually began. A nil start means the phase has not
// been entered yet, and its elapsed-time guard can never be satisfied.
type BrewingParameters struct {
	FermentationDays    int        `json:"fermentationDuration"`
	StartOfFermentation *time.Time `json:"startOfFermentation,omitempty"`
	ColdCrashingDays    int        `json:"coldCrashingDuration"`
	StartOfColdCrashing *time.Time `json:"startOfColdCrashing,omitempty"`
	CarbonatingDays     int        `json:"carbonatingDuration"`
	StartOfCarbonating  *time.Time `json:"startOfCarbonating,omitempty"`
}

// DefaultBrewingParameters returns the customary phase durations.
func DefaultBrewingParameters() BrewingParameters {
	return BrewingParameters{
		FermentationDays: DefaultFermentationDays,
		ColdCrashingDays: DefaultColdCrashingDays,
		CarbonatingDays:  DefaultCarbonatingDays,
	}
}

// HistoryEntry records one accepted transition in a session's life.
// Rejected events leave no trace.
type HistoryEntry struct {
	Event         Event     `json:"event"`
	PreviousState Status    `json:"previousState"`
	EventDate     time.Time `json:"eventDate"`
}

// Session is one run of an appliance: a brew, a clean, a sous-vide cook,
// or a cold brew, together with its fermentation afterlife.
type Session struct {
	// ID is the 20-character identifier handed to the device; it is the
	// primary key and appears in device protocol exchanges.
	ID string `json:"id"`

	// Name is a human-friendly label, defaulting to the type and
	// creation time.
	Name string `json:"name"`

	Type Type `json:"sessionType"`

	// DeviceID is the appliance this session runs on.
	DeviceID string `json:"deviceId"`

	Status  Status         `json:"status"`
	History []HistoryEntry `json:"statusHistory"`

	BrewingParameters BrewingParameters `json:"brewingParameters"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// remainingSeconds computes how long is left in a timed phase. A missing
// start or non-positive duration yields GuardNeverSatisfied.
func remainingSeconds(start *time.Time, days int, now time.Time) int64 {
	if start == nil || days <= 0 {
		return GuardNeverSatisfied
	}
	deadline := start.Add(time.Duration(days) * 24 * time.Hour)
	return int64(deadline.Sub(now) / time.Second)
}

// guardsFor derives the guard context for a session at a given instant.
func guardsFor(s *Session, now time.Time) GuardContext {
	p := s.BrewingParameters
	return GuardContext{
		FermentingRemainingSec:   remainingSeconds(p.StartOfFermentation, p.FermentationDays, now),
		ColdCrashingRemainingSec: remainingSeconds(p.StartOfColdCrashing, p.ColdCrashingDays, now),
		CarbonatingRemainingSec:  remainingSeconds(p.StartOfCarbonating, p.CarbonatingDays, now),
	}
}
