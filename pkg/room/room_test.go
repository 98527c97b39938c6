package room

import (
	"context"
	"log/slog"
	"testing"

	"github.com/livekit/protocol/livekit"
	media "github.com/livekit/media-sdk"
	"github.com/matryer/is"

	"github.com/chriscow/interview-agent/pkg/rtc"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "complete", cfg: Config{URL: "ws://lk", APIKey: "k", APISecret: "s", RoomName: "room-1"}},
		{name: "no url", cfg: Config{APIKey: "k", APISecret: "s", RoomName: "room-1"}, wantErr: true},
		{name: "no secret", cfg: Config{URL: "ws://lk", APIKey: "k", RoomName: "room-1"}, wantErr: true},
		{name: "no room", cfg: Config{URL: "ws://lk", APIKey: "k", APISecret: "s"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := is.New(t)
			err := tt.cfg.validate()
			is.Equal(err != nil, tt.wantErr)
		})
	}
}

func TestConfigDefaults(t *testing.T) {
	is := is.New(t)
	cfg := Config{RoomName: "room-abc"}
	cfg.applyDefaults()

	is.Equal(cfg.InputSampleRate, DefaultInputSampleRate)
	is.Equal(cfg.OutputSampleRate, DefaultOutputSampleRate)
	is.Equal(cfg.Identity, "agent-room-abc")
	is.Equal(cfg.TrackName, DefaultTrackName)
}

func TestFrameWriter_Rechunks(t *testing.T) {
	is := is.New(t)
	out := make(chan rtc.AudioFrame, 10)
	w := newFrameWriter(16000, 1, out, slog.Default())

	// 160 samples per frame; 100 + 300 = 400 → two frames, 80 carried
	first := make(media.PCM16Sample, 100)
	for i := range first {
		first[i] = int16(i)
	}
	is.NoErr(w.WriteSample(first))
	is.Equal(len(out), 0)

	is.NoErr(w.WriteSample(make(media.PCM16Sample, 300)))
	is.Equal(len(out), 2)
	is.Equal(len(w.carry), 80)

	f := <-out
	is.Equal(f.SampleRate, 16000)
	is.Equal(len(f.Data), 320)
	is.Equal(f.Samples()[99], int16(99)) // ordering preserved across writes
	is.Equal(f.Samples()[100], int16(0))
}

func TestFrameWriter_DropsWhenFullAndAfterClose(t *testing.T) {
	is := is.New(t)
	out := make(chan rtc.AudioFrame, 1)
	w := newFrameWriter(16000, 1, out, slog.Default())

	is.NoErr(w.WriteSample(make(media.PCM16Sample, 480)))
	is.Equal(len(out), 1)
	is.Equal(w.dropped, 2)

	<-out
	is.NoErr(w.Close())
	is.NoErr(w.WriteSample(make(media.PCM16Sample, 160)))
	is.Equal(len(out), 0) // closed writers never send
	is.Equal(w.SampleRate(), 16000)
}

func TestToPCM16(t *testing.T) {
	is := is.New(t)
	in := make([]int16, 240)
	in[0], in[239] = -32768, 32767

	frames := rtc.SplitPCM(in, 24000, 1, 0)
	is.Equal(len(frames), 1)

	got := toPCM16(frames[0])
	is.Equal(len(got), 240)
	is.Equal(got[0], int16(-32768))
	is.Equal(got[239], int16(32767))
}

func TestParticipantTracking(t *testing.T) {
	is := is.New(t)
	r := newRoom(context.Background(), Config{RoomName: "room-1"}, nil)

	r.participantJoined("bot", "PA_bot", true)
	r.participantJoined("alice", "PA_1", false)
	r.participantJoined("alice", "PA_1", false) // duplicate is ignored
	r.participantJoined("bob", "PA_2", false)

	is.Equal(len(r.Participants()), 2)
	is.True(r.isLinked("alice")) // first human wins
	is.True(!r.isLinked("bob"))
	is.True(!r.isLinked("bot"))

	ev := <-r.Events()
	is.Equal(ev.Type, EventParticipantJoined)
	is.Equal(ev.Identity(), "alice")
	is.Equal(ev.Participant.State, livekit.ParticipantInfo_ACTIVE)
	ev = <-r.Events()
	is.Equal(ev.Identity(), "bob")

	r.participantLeft("alice", "PA_1")
	r.participantLeft("ghost", "PA_9") // unknown participants produce no event
	ev = <-r.Events()
	is.Equal(ev.Type, EventParticipantLeft)
	is.Equal(ev.Participant.State, livekit.ParticipantInfo_DISCONNECTED)
	is.True(!r.isLinked("alice"))
	is.Equal(len(r.Events()), 0)
}

func TestDisconnectWithoutConnection(t *testing.T) {
	is := is.New(t)
	r := newRoom(context.Background(), Config{RoomName: "room-1"}, nil)
	r.participantJoined("alice", "PA_1", false)

	r.Disconnect()
	r.Disconnect()

	// buffered events are still readable, then the channel is closed
	ev, ok := <-r.Events()
	is.True(ok)
	is.Equal(ev.Type, EventParticipantJoined)
	_, ok = <-r.Events()
	is.True(!ok)
	_, ok = <-r.Audio()
	is.True(!ok)

	r.participantJoined("bob", "PA_2", false) // no panic after close
}
