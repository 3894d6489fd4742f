package session

import "math"

// Status is a session lifecycle state.
type Status string

// Session lifecycle states. Finished is terminal: no event moves a
// session out of it.
const (
	StatusIdle            Status = "Idle"
	StatusBrewing         Status = "Brewing"
	StatusFermenting      Status = "Fermenting"
	StatusColdCrashing    Status = "ColdCrashing"
	StatusCarbonating     Status = "Carbonating"
	StatusDeepCleaning    Status = "DeepCleaning"
	StatusColdBrewing     Status = "ColdBrewing"
	StatusSousVideCooking Status = "SousVideCooking"
	StatusFinished        Status = "Finished"
)

// Event is a session lifecycle event.
type Event string

// Session lifecycle events.
const (
	EventStartBrewing      Event = "START_BREWING"
	EventStartManualBrew   Event = "START_MANUALBREW"
	EventStartDeepClean    Event = "START_DEEPCLEAN"
	EventStartSousVide     Event = "START_SOUSVIDE"
	EventStartColdBrew     Event = "START_COLDBREW"
	EventStartFermenting   Event = "START_FERMENTING"
	EventStartColdCrashing Event = "START_COLDCRASHING"
	EventStartCarbonating  Event = "START_CARBONATING"
	EventEndSession        Event = "END_SESSION"
	EventCancelSession     Event = "CANCEL_SESSION"
)

var validEvents = map[Event]bool{
	EventStartBrewing:      true,
	EventStartManualBrew:   true,
	EventStartDeepClean:    true,
	EventStartSousVide:     true,
	EventStartColdBrew:     true,
	EventStartFermenting:   true,
	EventStartColdCrashing: true,
	EventStartCarbonating:  true,
	EventEndSession:        true,
	EventCancelSession:     true,
}

// ParseEvent validates and converts a string to an Event.
func ParseEvent(s string) (Event, error) {
	e := Event(s)
	if !validEvents[e] {
		return "", ErrInvalidEvent
	}
	return e, nil
}

// GuardNeverSatisfied is the remaining-seconds value used when a phase
// has no recorded start or no duration: the elapsed-time guard can never
// fire, so the session cannot skip ahead.
const GuardNeverSatisfied int64 = math.MaxInt64

// GuardContext carries the remaining seconds of each timed phase, used
// to gate transitions out of that phase.
type GuardContext struct {
	FermentingRemainingSec   int64
	ColdCrashingRemainingSec int64
	CarbonatingRemainingSec  int64
}

// Next computes the state a session moves to when an event arrives.
//
// The function is pure: it consults only its arguments, so callers decide
// how to persist the outcome. An event that is not accepted in the
// current state, or whose time guard is not yet satisfied, returns the
// current state unchanged; callers detect rejection by comparing the
// result against the input.
//
// CANCEL_SESSION is accepted in every state except Finished, which
// absorbs all events.
func Next(current Status, event Event, guards GuardContext) Status {
	if current == StatusFinished {
		return StatusFinished
	}
	if event == EventCancelSession {
		return StatusFinished
	}

	switch current {
	case StatusIdle:
		switch event {
		case EventStartBrewing, EventStartManualBrew:
			return StatusBrewing
		case EventStartDeepClean:
			return StatusDeepCleaning
		case EventStartSousVide:
			return StatusSousVideCooking
		case EventStartColdBrew:
			return StatusColdBrewing
		}

	case StatusBrewing:
		if event == EventStartFermenting {
			return StatusFermenting
		}

	case StatusFermenting:
		if guards.FermentingRemainingSec > 0 {
			return current
		}
		switch event {
		case EventStartColdCrashing:
			return StatusColdCrashing
		case EventStartCarbonating:
			return StatusCarbonating
		}

	case StatusColdCrashing:
		if event == EventStartCarbonating && guards.ColdCrashingRemainingSec <= 0 {
			return StatusCarbonating
		}

	case StatusCarbonating:
		if event == EventEndSession && guards.CarbonatingRemainingSec <= 0 {
			return StatusFinished
		}

	case StatusDeepCleaning, StatusColdBrewing, StatusSousVideCooking:
		if event == EventEndSession {
			return StatusFinished
		}
	}

	return current
}
