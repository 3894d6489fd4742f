package device

import (
	"fmt"
	"time"
)

// Kind identifies the appliance family a device belongs to.
type Kind string

// Supported device kinds.
const (
	// KindBrewer is a countertop brewing appliance.
	KindBrewer Kind = "brewer"

	// KindFermenter is a fermentation monitoring appliance.
	KindFermenter Kind = "fermenter"
)

// ParseKind validates and converts a string to a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindBrewer, KindFermenter:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
}

// State represents the operational state a device last reported.
type State string

// Brewer states. Brewers report these as numeric codes on the wire;
// see StateFromCode and Code for the mapping.
const (
	StateReady     State = "ready"
	StateBrewing   State = "brewing"
	StateSousVide  State = "sous_vide"
	StateRackBeer  State = "rack_beer"
	StateRinse     State = "rinse"
	StateDeepClean State = "deep_clean"
	StateDeScale   State = "de_scale"
)

// Fermenter states. Fermenters do not report these directly; the service
// derives them from the attached session's lifecycle.
const (
	StateNothingTodo State = "nothing_todo"
	StateSendingData State = "sending_data"
	StateFermError   State = "ferm_error"
	StateCompleted   State = "completed"
)

// Brewer wire codes.
const (
	codeReady     = 2
	codeBrewing   = 3
	codeSousVide  = 4
	codeRackBeer  = 5
	codeRinse     = 6
	codeDeepClean = 7
	codeDeScale   = 9
)

var stateByCode = map[int]State{
	codeReady:     StateReady,
	codeBrewing:   StateBrewing,
	codeSousVide:  StateSousVide,
	codeRackBeer:  StateRackBeer,
	codeRinse:     StateRinse,
	codeDeepClean: StateDeepClean,
	codeDeScale:   StateDeScale,
}

var codeByState = map[State]int{
	StateReady:     codeReady,
	StateBrewing:   codeBrewing,
	StateSousVide:  codeSousVide,
	StateRackBeer:  codeRackBeer,
	StateRinse:     codeRinse,
	StateDeepClean: codeDeepClean,
	StateDeScale:   codeDeScale,
}

// StateFromCode converts a brewer wire code to a State.
// Returns ErrInvalidState for unrecognised codes.
func StateFromCode(code int) (State, error) {
	s, ok := stateByCode[code]
	if !ok {
		return "", fmt.Errorf("%w: code %d", ErrInvalidState, code)
	}
	return s, nil
}

// Code returns the brewer wire code for a state, or -1 if the state has
// no numeric representation (fermenter-derived states).
func (s State) Code() int {
	c, ok := codeByState[s]
	if !ok {
		return -1
	}
	return c
}

// ErrorEntry is a single error report from a device.
// Entries are append-only; acknowledgement flips the flag but never
// removes the entry.
type ErrorEntry struct {
	Code         int       `json:"code"`
	ReportedAt   time.Time `json:"reportedAt"`
	Acknowledged bool      `json:"acknowledged"`
}

// Device represents a registered brewing or fermentation appliance.
type Device struct {
	// ID is the internal unique identifier (UUID).
	ID string `json:"id"`

	// SerialNumber is the appliance serial printed on the unit.
	// Unique across all devices; registration is keyed on it.
	SerialNumber string `json:"serialNumber"`

	// Name is a human-friendly label, settable via the management API.
	Name string `json:"name"`

	// Kind distinguishes brewers from fermenters.
	Kind Kind `json:"kind"`

	// State is the last reported operational state.
	State State `json:"state"`

	// FirmwareVersion is the firmware the device last reported.
	FirmwareVersion string `json:"firmwareVersion"`

	// CurrentSessionID references the active session, if any.
	CurrentSessionID *string `json:"currentSessionId,omitempty"`

	// Errors is the append-only device error log.
	Errors []ErrorEntry `json:"errors"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DefaultState returns the initial state for a freshly registered device
// of the given kind.
func DefaultState(kind Kind) State {
	if kind == KindFermenter {
		return StateNothingTodo
	}
	return StateReady
}
