package worker

import (
	"testing"

	"github.com/matryer/is"
)

var allEvents = []Event{
	EventRoomConnected,
	EventParticipantJoined,
	EventGreetingDone,
	EventReplyClosing,
	EventClosingSpoken,
	EventRoomDisconnected,
	EventProcessExit,
	EventProviderError,
}

func TestNext_AwaitingParticipantOnlyLeavesOnJoin(t *testing.T) {
	for _, ev := range allEvents {
		t.Run(ev.String(), func(t *testing.T) {
			is := is.New(t)
			next, ok := Next(StateAwaitingParticipant, ev)
			if ev == EventParticipantJoined {
				is.True(ok)
				is.Equal(next, StateGreetingSent)
				return
			}
			is.True(!ok)
			is.Equal(next, StateAwaitingParticipant)
		})
	}
}

func TestNext_Table(t *testing.T) {
	tests := []struct {
		from State
		ev   Event
		want State
		ok   bool
	}{
		{StateIdle, EventRoomConnected, StateAwaitingParticipant, true},
		{StateIdle, EventProcessExit, StateTerminated, true},
		{StateIdle, EventParticipantJoined, StateIdle, false},
		{StateGreetingSent, EventGreetingDone, StateConversationActive, true},
		{StateGreetingSent, EventReplyClosing, StateGreetingSent, false},
		{StateConversationActive, EventReplyClosing, StateClosing, true},
		{StateConversationActive, EventClosingSpoken, StateConversationActive, false},
		{StateConversationActive, EventRoomDisconnected, StateTerminated, true},
		{StateConversationActive, EventProviderError, StateTerminated, true},
		{StateClosing, EventClosingSpoken, StateTerminated, true},
		{StateClosing, EventProcessExit, StateTerminated, true},
		{StateClosing, EventParticipantJoined, StateClosing, false},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"/"+tt.ev.String(), func(t *testing.T) {
			is := is.New(t)
			got, ok := Next(tt.from, tt.ev)
			is.Equal(ok, tt.ok)
			is.Equal(got, tt.want)
		})
	}
}

func TestNext_TerminatedIsFinal(t *testing.T) {
	is := is.New(t)
	for _, ev := range allEvents {
		next, ok := Next(StateTerminated, ev)
		is.True(!ok)
		is.Equal(next, StateTerminated)
	}
}

func TestMachine_Observer(t *testing.T) {
	is := is.New(t)
	var seen []string
	m := NewMachine(func(from, to State, ev Event) {
		seen = append(seen, from.String()+">"+to.String())
	})

	is.Equal(m.State(), StateIdle)
	m.Fire(EventRoomConnected)
	_, ok := m.Fire(EventGreetingDone) // ignored while awaiting
	is.True(!ok)
	m.Fire(EventParticipantJoined)

	is.Equal(m.State(), StateGreetingSent)
	is.Equal(seen, []string{
		"idle>awaiting_participant",
		"awaiting_participant>greeting_sent",
	})
}
