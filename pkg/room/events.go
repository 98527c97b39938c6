package room

import (
	"time"

	"github.com/livekit/protocol/livekit"
)

// EventType represents the type of room event.
type EventType string

const (
	// EventParticipantJoined is fired when a non-agent participant is in the room, either
	// already present at connect time or joining later.
	EventParticipantJoined EventType = "participant_joined"

	// EventParticipantLeft is fired when a tracked participant disconnects.
	EventParticipantLeft EventType = "participant_left"

	// EventTrackSubscribed is fired once an audio track is subscribed and feeding Audio().
	EventTrackSubscribed EventType = "track_subscribed"

	// EventDisconnected is fired when the agent's own connection to the room ends.
	EventDisconnected EventType = "disconnected"
)

// Event represents a room event with associated data.
type Event struct {
	Type        EventType
	Timestamp   time.Time
	Participant *livekit.ParticipantInfo
	Track       *livekit.TrackInfo
	Reason      string
}

// NewEvent creates a new event with the current timestamp.
func NewEvent(eventType EventType) Event {
	return Event{
		Type:      eventType,
		Timestamp: time.Now(),
	}
}

// WithParticipant adds participant information to the event.
func (e Event) WithParticipant(identity, sid string, state livekit.ParticipantInfo_State) Event {
	e.Participant = &livekit.ParticipantInfo{
		Sid:      sid,
		Identity: identity,
		State:    state,
	}
	return e
}

// WithTrack adds track information to the event.
func (e Event) WithTrack(sid, name string, kind livekit.TrackType) Event {
	e.Track = &livekit.TrackInfo{Sid: sid, Name: name, Type: kind}
	return e
}

// WithReason records why the room connection ended.
func (e Event) WithReason(reason string) Event {
	e.Reason = reason
	return e
}

// Identity returns the participant identity or "" if the event has none.
func (e Event) Identity() string {
	if e.Participant == nil {
		return ""
	}
	return e.Participant.Identity
}
