// Package room connects an interview agent to a LiveKit room. It subscribes only to audio
// from the human participant, delivers decoded audio as 10 ms PCM frames and publishes a
// single PCM microphone track for the agent's speech.
package room

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	lkmedia "github.com/livekit/server-sdk-go/v2/pkg/media"
	"github.com/pion/webrtc/v4"

	"github.com/chriscow/interview-agent/pkg/rtc"
)

const (
	DefaultInputSampleRate  = 48000
	DefaultOutputSampleRate = 24000
	DefaultTrackName        = "agent-voice"

	eventBufferSize = 32
	audioBufferSize = 100
	outBufferSize   = 64
)

// Config contains configuration for connecting to a room.
type Config struct {
	URL       string
	APIKey    string
	APISecret string
	RoomName  string
	Identity  string
	Name      string

	// InputSampleRate is the rate remote audio is resampled to before delivery.
	InputSampleRate int
	// OutputSampleRate is the rate of frames written to Output().
	OutputSampleRate int
	TrackName        string
}

func (c *Config) applyDefaults() {
	if c.InputSampleRate == 0 {
		c.InputSampleRate = DefaultInputSampleRate
	}
	if c.OutputSampleRate == 0 {
		c.OutputSampleRate = DefaultOutputSampleRate
	}
	if c.TrackName == "" {
		c.TrackName = DefaultTrackName
	}
	if c.Identity == "" {
		c.Identity = "agent-" + c.RoomName
	}
	if c.Name == "" {
		c.Name = "Interviewer"
	}
}

func (c Config) validate() error {
	switch {
	case c.URL == "":
		return errors.New("URL is required")
	case c.APIKey == "" || c.APISecret == "":
		return errors.New("API key and secret are required")
	case c.RoomName == "":
		return errors.New("room name is required")
	}
	return nil
}

// Room wraps the LiveKit room connection.
type Room struct {
	cfg    Config
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	events chan Event
	audio  chan rtc.AudioFrame
	out    chan rtc.AudioFrame

	mu           sync.Mutex
	room         *lksdk.Room
	track        *lkmedia.PCMLocalTrack
	participants map[string]*livekit.ParticipantInfo
	linked       string // identity whose audio we listen to
	remote       *lkmedia.PCMRemoteTrack
	writers      []*frameWriter
	closed       bool
}

func newRoom(ctx context.Context, cfg Config, logger *slog.Logger) *Room {
	if logger == nil {
		logger = slog.Default()
	}
	roomCtx, cancel := context.WithCancel(ctx)
	return &Room{
		cfg:          cfg,
		logger:       logger.With(slog.String("room", cfg.RoomName)),
		ctx:          roomCtx,
		cancel:       cancel,
		events:       make(chan Event, eventBufferSize),
		audio:        make(chan rtc.AudioFrame, audioBufferSize),
		out:          make(chan rtc.AudioFrame, outBufferSize),
		participants: make(map[string]*livekit.ParticipantInfo),
	}
}

// Connect joins the room as an agent participant with auto-subscribe disabled, publishes
// the agent's audio track and reports participants that were already present.
func Connect(ctx context.Context, cfg Config, logger *slog.Logger) (*Room, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	r := newRoom(ctx, cfg, logger)

	callback := &lksdk.RoomCallback{
		OnParticipantConnected:    r.onParticipantConnected,
		OnParticipantDisconnected: r.onParticipantDisconnected,
		OnDisconnected:            r.onDisconnected,
		ParticipantCallback: lksdk.ParticipantCallback{
			OnTrackPublished:  r.onTrackPublished,
			OnTrackSubscribed: r.onTrackSubscribed,
		},
	}

	lkRoom, err := lksdk.ConnectToRoom(cfg.URL, lksdk.ConnectInfo{
		APIKey:              cfg.APIKey,
		APISecret:           cfg.APISecret,
		RoomName:            cfg.RoomName,
		ParticipantIdentity: cfg.Identity,
		ParticipantName:     cfg.Name,
		ParticipantKind:     lksdk.ParticipantAgent,
	}, callback, lksdk.WithAutoSubscribe(false))
	if err != nil {
		r.cancel()
		return nil, fmt.Errorf("connect to room %s: %w", cfg.RoomName, err)
	}

	track, err := lkmedia.NewPCMLocalTrack(cfg.OutputSampleRate, 1, nil)
	if err != nil {
		lkRoom.Disconnect()
		r.cancel()
		return nil, fmt.Errorf("create audio track: %w", err)
	}
	if _, err := lkRoom.LocalParticipant.PublishTrack(track, &lksdk.TrackPublicationOptions{
		Name:   cfg.TrackName,
		Source: livekit.TrackSource_MICROPHONE,
	}); err != nil {
		track.Close()
		lkRoom.Disconnect()
		r.cancel()
		return nil, fmt.Errorf("publish audio track: %w", err)
	}

	r.mu.Lock()
	r.room = lkRoom
	r.track = track
	r.mu.Unlock()

	r.logger.Info("Connected to LiveKit room",
		slog.String("url", cfg.URL),
		slog.String("identity", cfg.Identity))

	r.wg.Add(1)
	go r.pumpOutput()

	for _, rp := range lkRoom.GetRemoteParticipants() {
		r.onParticipantConnected(rp)
		for _, pub := range rp.TrackPublications() {
			if remote, ok := pub.(*lksdk.RemoteTrackPublication); ok {
				r.onTrackPublished(remote, rp)
			}
		}
	}

	return r, nil
}

// Events returns the room event stream. It is closed by Disconnect.
func (r *Room) Events() <-chan Event { return r.events }

// Audio returns decoded audio from the linked participant as mono frames at
// InputSampleRate. It is closed by Disconnect.
func (r *Room) Audio() <-chan rtc.AudioFrame { return r.audio }

// Output accepts agent speech frames at OutputSampleRate for publication.
func (r *Room) Output() chan<- rtc.AudioFrame { return r.out }

// InputSampleRate reports the rate of frames on Audio().
func (r *Room) InputSampleRate() int { return r.cfg.InputSampleRate }

// ClearOutput drops speech queued on the published track, used when the agent is interrupted.
func (r *Room) ClearOutput() {
drain:
	for {
		select {
		case <-r.out:
		default:
			break drain
		}
	}
	r.mu.Lock()
	track := r.track
	r.mu.Unlock()
	if track != nil {
		track.ClearQueue()
	}
}

// Participants returns a copy of the tracked remote participants.
func (r *Room) Participants() map[string]*livekit.ParticipantInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make(map[string]*livekit.ParticipantInfo, len(r.participants))
	for k, v := range r.participants {
		result[k] = v
	}
	return result
}

// Disconnect leaves the room and closes the event and audio streams. Safe to call twice.
func (r *Room) Disconnect() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	lkRoom, track, remote, writers := r.room, r.track, r.remote, r.writers
	r.mu.Unlock()

	r.cancel()
	if remote != nil {
		remote.Close()
	}
	// once every writer is closed nothing else sends on r.audio
	for _, w := range writers {
		_ = w.Close()
	}
	if lkRoom != nil {
		lkRoom.Disconnect()
	}
	r.wg.Wait()
	if track != nil {
		track.Close()
	}

	r.mu.Lock()
	close(r.events)
	close(r.audio)
	r.mu.Unlock()

	r.logger.Info("Disconnected from LiveKit room")
}

func (r *Room) pumpOutput() {
	defer r.wg.Done()
	for {
		select {
		case <-r.ctx.Done():
			return
		case frame := <-r.out:
			if frame.SampleRate != r.cfg.OutputSampleRate || frame.NumChannels != 1 {
				r.logger.Warn("Dropping output frame with unexpected format",
					slog.Int("sample_rate", frame.SampleRate),
					slog.Int("channels", frame.NumChannels))
				continue
			}
			r.mu.Lock()
			track := r.track
			r.mu.Unlock()
			if err := track.WriteSample(toPCM16(frame)); err != nil {
				r.logger.Error("Failed to write audio sample", slog.String("error", err.Error()))
			}
		}
	}
}

// Event handlers

func isAgent(rp *lksdk.RemoteParticipant) bool {
	return rp.Kind() == lksdk.ParticipantAgent
}

func (r *Room) onParticipantConnected(rp *lksdk.RemoteParticipant) {
	r.participantJoined(rp.Identity(), rp.SID(), isAgent(rp))
}

func (r *Room) onParticipantDisconnected(rp *lksdk.RemoteParticipant) {
	r.participantLeft(rp.Identity(), rp.SID())
}

func (r *Room) onDisconnected() {
	r.sendEvent(NewEvent(EventDisconnected).WithReason("connection closed"))
}

func (r *Room) onTrackPublished(pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
	if pub.Kind() != lksdk.TrackKindAudio || !r.isLinked(rp.Identity()) {
		return
	}
	if pub.IsSubscribed() {
		return
	}
	r.logger.Info("Subscribing to audio track",
		slog.String("participant", rp.Identity()),
		slog.String("track_sid", pub.SID()))
	if err := pub.SetSubscribed(true); err != nil {
		r.logger.Error("Failed to subscribe to audio track",
			slog.String("error", err.Error()),
			slog.String("participant", rp.Identity()))
	}
}

func (r *Room) onTrackSubscribed(track *webrtc.TrackRemote, pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
	if track.Kind() != webrtc.RTPCodecTypeAudio || !r.isLinked(rp.Identity()) {
		return
	}

	writer := newFrameWriter(r.cfg.InputSampleRate, 1, r.audio, r.logger)
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.writers = append(r.writers, writer)
	r.mu.Unlock()

	remote, err := lkmedia.NewPCMRemoteTrack(track, writer,
		lkmedia.WithTargetSampleRate(r.cfg.InputSampleRate),
		lkmedia.WithTargetChannels(1),
	)
	if err != nil {
		_ = writer.Close()
		r.logger.Error("Failed to decode audio track",
			slog.String("error", err.Error()),
			slog.String("track_sid", pub.SID()))
		return
	}

	r.mu.Lock()
	prev := r.remote
	r.remote = remote
	r.mu.Unlock()

	// a republished microphone replaces the previous decoder
	if prev != nil {
		prev.Close()
	}

	r.sendEvent(NewEvent(EventTrackSubscribed).
		WithParticipant(rp.Identity(), rp.SID(), livekit.ParticipantInfo_ACTIVE).
		WithTrack(pub.SID(), pub.Name(), livekit.TrackType_AUDIO))

	r.logger.Info("Track subscribed",
		slog.String("participant", rp.Identity()),
		slog.String("track_sid", pub.SID()),
		slog.String("codec", track.Codec().MimeType))
}

// participantJoined tracks a remote participant. The first non-agent participant becomes
// the linked one whose audio is delivered; agents are ignored entirely.
func (r *Room) participantJoined(identity, sid string, agent bool) {
	if agent {
		r.logger.Debug("Ignoring agent participant", slog.String("identity", identity))
		return
	}

	r.mu.Lock()
	if _, ok := r.participants[identity]; ok {
		r.mu.Unlock()
		return
	}
	r.participants[identity] = &livekit.ParticipantInfo{
		Sid:      sid,
		Identity: identity,
		State:    livekit.ParticipantInfo_ACTIVE,
	}
	if r.linked == "" {
		r.linked = identity
	}
	r.mu.Unlock()

	r.sendEvent(NewEvent(EventParticipantJoined).
		WithParticipant(identity, sid, livekit.ParticipantInfo_ACTIVE))

	r.logger.Info("Participant connected",
		slog.String("identity", identity),
		slog.String("sid", sid))
}

func (r *Room) participantLeft(identity, sid string) {
	r.mu.Lock()
	if _, ok := r.participants[identity]; !ok {
		r.mu.Unlock()
		return
	}
	delete(r.participants, identity)
	if r.linked == identity {
		r.linked = ""
	}
	r.mu.Unlock()

	r.sendEvent(NewEvent(EventParticipantLeft).
		WithParticipant(identity, sid, livekit.ParticipantInfo_DISCONNECTED))

	r.logger.Info("Participant disconnected",
		slog.String("identity", identity),
		slog.String("sid", sid))
}

func (r *Room) isLinked(identity string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return identity != "" && r.linked == identity
}

// sendEvent delivers an event unless the room is closed. Events are dropped with a
// warning when the consumer is not keeping up.
func (r *Room) sendEvent(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	select {
	case r.events <- event:
	default:
		r.logger.Warn("Events channel is full, dropping event",
			slog.String("event_type", string(event.Type)))
	}
}
