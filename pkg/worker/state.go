package worker

import "sync"

// State is a phase of an interview session.
type State int

const (
	StateIdle State = iota
	StateAwaitingParticipant
	StateGreetingSent
	StateConversationActive
	StateClosing
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingParticipant:
		return "awaiting_participant"
	case StateGreetingSent:
		return "greeting_sent"
	case StateConversationActive:
		return "conversation_active"
	case StateClosing:
		return "closing"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Event drives session transitions.
type Event int

const (
	EventRoomConnected Event = iota
	EventParticipantJoined
	EventGreetingDone
	EventReplyClosing
	EventClosingSpoken
	EventRoomDisconnected
	EventProcessExit
	EventProviderError
)

func (e Event) String() string {
	switch e {
	case EventRoomConnected:
		return "room_connected"
	case EventParticipantJoined:
		return "participant_joined"
	case EventGreetingDone:
		return "greeting_done"
	case EventReplyClosing:
		return "reply_closing"
	case EventClosingSpoken:
		return "closing_spoken"
	case EventRoomDisconnected:
		return "room_disconnected"
	case EventProcessExit:
		return "process_exit"
	case EventProviderError:
		return "provider_error"
	default:
		return "unknown"
	}
}

// transitions is the complete table; any pair not listed is ignored. AwaitingParticipant
// deliberately has a single entry.
var transitions = map[State]map[Event]State{
	StateIdle: {
		EventRoomConnected: StateAwaitingParticipant,
		EventProcessExit:   StateTerminated,
		EventProviderError: StateTerminated,
	},
	StateAwaitingParticipant: {
		EventParticipantJoined: StateGreetingSent,
	},
	StateGreetingSent: {
		EventGreetingDone:     StateConversationActive,
		EventRoomDisconnected: StateTerminated,
		EventProcessExit:      StateTerminated,
		EventProviderError:    StateTerminated,
	},
	StateConversationActive: {
		EventReplyClosing:     StateClosing,
		EventRoomDisconnected: StateTerminated,
		EventProcessExit:      StateTerminated,
		EventProviderError:    StateTerminated,
	},
	StateClosing: {
		EventClosingSpoken:    StateTerminated,
		EventRoomDisconnected: StateTerminated,
		EventProcessExit:      StateTerminated,
		EventProviderError:    StateTerminated,
	},
}

// Next looks up the transition for ev in state s. ok is false when the event is ignored.
func Next(s State, ev Event) (next State, ok bool) {
	next, ok = transitions[s][ev]
	if !ok {
		return s, false
	}
	return next, true
}

// TransitionFunc observes an applied transition.
type TransitionFunc func(from, to State, ev Event)

// Machine applies the transition table to a single session. Safe for concurrent use.
type Machine struct {
	mu       sync.Mutex
	state    State
	observer TransitionFunc
}

// NewMachine returns a machine in StateIdle. observer may be nil.
func NewMachine(observer TransitionFunc) *Machine {
	return &Machine{state: StateIdle, observer: observer}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Fire applies ev and reports whether the state changed.
func (m *Machine) Fire(ev Event) (State, bool) {
	m.mu.Lock()
	from := m.state
	to, ok := Next(from, ev)
	if ok {
		m.state = to
	}
	m.mu.Unlock()

	if ok && m.observer != nil {
		m.observer(from, to, ev)
	}
	return to, ok
}
