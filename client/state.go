package client

import "slices"

// State is a step in the lifecycle of one exchange.
type State int

const (
	StateCreated State = iota
	StateSessionOpen
	StateConnectionOpen
	StateRequestOpen
	StateSending
	StateAwaitingSendComplete
	StateWritingBody
	StateAwaitingResponse
	StateHeadersAvailable
	StateReadingBody
	StateComplete
	StateRejected
)

var stateNames = [...]string{
	StateCreated:              "created",
	StateSessionOpen:          "session open",
	StateConnectionOpen:       "connection open",
	StateRequestOpen:          "request open",
	StateSending:              "sending",
	StateAwaitingSendComplete: "awaiting send complete",
	StateWritingBody:          "writing body",
	StateAwaitingResponse:     "awaiting response",
	StateHeadersAvailable:     "headers available",
	StateReadingBody:          "reading body",
	StateComplete:             "complete",
	StateRejected:             "rejected",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// predecessors lists, per state, the states it may be entered from.
// StateRejected is reachable from anywhere and is handled separately.
var predecessors = map[State][]State{
	StateSessionOpen:          {StateCreated},
	StateConnectionOpen:       {StateSessionOpen},
	StateRequestOpen:          {StateConnectionOpen},
	StateSending:              {StateRequestOpen},
	StateAwaitingSendComplete: {StateSending},
	StateWritingBody:          {StateAwaitingSendComplete},
	StateAwaitingResponse:     {StateAwaitingSendComplete, StateWritingBody},
	StateHeadersAvailable:     {StateAwaitingResponse},
	StateReadingBody:          {StateHeadersAvailable, StateReadingBody},
	StateComplete:             {StateHeadersAvailable, StateReadingBody},
}

// canEnter reports whether to may follow from.
func canEnter(from, to State) bool {
	if from.terminal() {
		return false
	}
	if to == StateRejected {
		return true
	}

	return slices.Contains(predecessors[to], from)
}

func (s State) terminal() bool {
	return s == StateComplete || s == StateRejected
}
