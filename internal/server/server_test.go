package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matryer/is"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/chriscow/interview-agent/internal/metrics"
	"github.com/chriscow/interview-agent/pkg/interview"
	"github.com/chriscow/interview-agent/pkg/launch"
	"github.com/chriscow/interview-agent/pkg/rooms"
	"github.com/chriscow/interview-agent/pkg/token"
)

type fakeRegistry struct {
	active map[string]struct{}
	err    error
}

func (f *fakeRegistry) ListActiveRooms(context.Context) (map[string]struct{}, error) {
	return f.active, f.err
}

type fakeHandle struct{ exit chan error }

func (h *fakeHandle) PID() int    { return 7 }
func (h *fakeHandle) Wait() error { return <-h.exit }

type fakeLauncher struct {
	mu      sync.Mutex
	err     error
	specs   []launch.Spec
	handles []*fakeHandle
}

func (f *fakeLauncher) Launch(_ context.Context, spec launch.Spec) (launch.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.specs = append(f.specs, spec)
	if f.err != nil {
		return nil, f.err
	}
	h := &fakeHandle{exit: make(chan error, 1)}
	f.handles = append(f.handles, h)
	return h, nil
}

type fixture struct {
	server   *httptest.Server
	issuer   *token.Issuer
	registry *fakeRegistry
	launcher *fakeLauncher
	pool     *launch.Pool
	metrics  *metrics.Metrics
}

func newFixture(t *testing.T, mutate func(*Deps), poolOpts ...launch.Option) *fixture {
	t.Helper()
	issuer, err := token.NewIssuer("devkey", "devsecret-devsecret-devsecret-00", time.Hour)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{
		issuer:   issuer,
		registry: &fakeRegistry{active: map[string]struct{}{}},
		launcher: &fakeLauncher{},
		metrics:  metrics.New("interviewer"),
	}
	f.pool = launch.NewPool(f.launcher, append([]launch.Option{launch.WithLogger(logger)}, poolOpts...)...)

	deps := Deps{
		Tokens:   issuer,
		Rooms:    rooms.NewGenerator(f.registry),
		Launcher: f.pool,
		Plan:     interview.Default(),
		Metrics:  f.metrics,
		Logger:   logger,
	}
	if mutate != nil {
		mutate(&deps)
	}
	f.server = httptest.NewServer(New(deps).Router())
	t.Cleanup(func() {
		f.server.Close()
		f.launcher.mu.Lock()
		for _, h := range f.launcher.handles {
			select {
			case h.exit <- nil:
			default:
			}
		}
		f.launcher.mu.Unlock()
	})
	return f
}

func noRedirect() *http.Client {
	return &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

func TestGetToken_GrantsRequestedIdentityAndRoom(t *testing.T) {
	is := is.New(t)
	f := newFixture(t, nil)

	resp, err := http.Get(f.server.URL + "/getToken?name=Alice&room=room-abc123")
	is.NoErr(err)
	is.Equal(resp.StatusCode, http.StatusOK)
	is.Equal(resp.Header.Get("Content-Type"), "application/json")

	var body struct {
		Token string `json:"token"`
	}
	decodeBody(t, resp, &body)

	claims, err := f.issuer.Verify(body.Token)
	is.NoErr(err)
	is.Equal(claims.Identity, "Alice")
	is.Equal(claims.Name, "Alice")
	is.Equal(claims.Room, "room-abc123")
	is.True(claims.RoomJoin)
	is.Equal(testutil.ToFloat64(f.metrics.TokensIssued.WithLabelValues("ok")), 1.0)
	is.Equal(testutil.ToFloat64(f.metrics.RoomsGenerated), 0.0) // room was given
}

func TestGetToken_GeneratesRoom(t *testing.T) {
	is := is.New(t)
	f := newFixture(t, nil)
	f.registry.active = map[string]struct{}{"room-aaaaaaaa": {}, "room-bbbbbbbb": {}}

	resp, err := http.Get(f.server.URL + "/getToken")
	is.NoErr(err)
	is.Equal(resp.StatusCode, http.StatusOK)

	var body struct {
		Token string `json:"token"`
	}
	decodeBody(t, resp, &body)

	claims, err := f.issuer.Verify(body.Token)
	is.NoErr(err)
	is.Equal(claims.Identity, token.DefaultIdentity)
	is.True(strings.HasPrefix(claims.Room, rooms.Prefix))
	is.Equal(len(claims.Room), len(rooms.Prefix)+8)
	_, taken := f.registry.active[claims.Room]
	is.True(!taken)
	is.Equal(testutil.ToFloat64(f.metrics.RoomsGenerated), 1.0)
}

func TestGetToken_RegistryUnavailable(t *testing.T) {
	is := is.New(t)
	f := newFixture(t, nil)
	f.registry.err = rooms.ErrBackendUnavailable

	resp, err := http.Get(f.server.URL + "/getToken?name=Alice")
	is.NoErr(err)
	is.Equal(resp.StatusCode, http.StatusServiceUnavailable)

	var body errorResponse
	decodeBody(t, resp, &body)
	is.Equal(body.Error, "room_backend_unavailable")
	is.Equal(testutil.ToFloat64(f.metrics.TokensIssued.WithLabelValues("room_unavailable")), 1.0)
}

func TestForm_RedirectsToInterview(t *testing.T) {
	is := is.New(t)
	f := newFixture(t, nil)

	resp, err := noRedirect().PostForm(f.server.URL+"/form", url.Values{
		"name":    {"Alice"},
		"company": {"Acme"},
		"room":    {"room-abc123"},
	})
	is.NoErr(err)
	resp.Body.Close()
	is.Equal(resp.StatusCode, http.StatusSeeOther)

	loc, err := url.Parse(resp.Header.Get("Location"))
	is.NoErr(err)
	is.Equal(loc.Path, "/interview")
	is.Equal(loc.Query().Get("room"), "room-abc123")

	job, err := f.pool.Get(loc.Query().Get("job"))
	is.NoErr(err)
	is.Equal(job.Room, "room-abc123")
	is.Equal(job.Status, launch.StatusRunning)

	f.launcher.mu.Lock()
	defer f.launcher.mu.Unlock()
	is.Equal(len(f.launcher.specs), 1)
	is.Equal(f.launcher.specs[0].Plan.Company, "Acme")
	is.Equal(f.launcher.specs[0].Room, "room-abc123")
}

func TestForm_GeneratesRoomWhenAbsent(t *testing.T) {
	is := is.New(t)
	f := newFixture(t, nil)

	resp, err := noRedirect().PostForm(f.server.URL+"/form", url.Values{"name": {"Bob"}})
	is.NoErr(err)
	resp.Body.Close()
	is.Equal(resp.StatusCode, http.StatusSeeOther)

	loc, err := url.Parse(resp.Header.Get("Location"))
	is.NoErr(err)
	is.True(strings.HasPrefix(loc.Query().Get("room"), rooms.Prefix))

	f.launcher.mu.Lock()
	defer f.launcher.mu.Unlock()
	is.Equal(f.launcher.specs[0].Plan.Company, interview.Default().Company) // blank company keeps the base plan's
}

func TestForm_SpawnFailureIsNotARedirect(t *testing.T) {
	is := is.New(t)
	f := newFixture(t, nil)
	f.launcher.err = errors.New("exec: \"interviewer\": executable file not found in $PATH")

	resp, err := noRedirect().PostForm(f.server.URL+"/form", url.Values{
		"name": {"Alice"},
		"room": {"room-abc123"},
	})
	is.NoErr(err)
	is.Equal(resp.StatusCode, http.StatusInternalServerError)
	is.Equal(resp.Header.Get("Location"), "")

	var body errorResponse
	decodeBody(t, resp, &body)
	is.Equal(body.Error, "launch_failed")

	jobs := f.pool.List()
	is.Equal(len(jobs), 1)
	is.Equal(jobs[0].Status, launch.StatusFailed)
}

func TestForm_PoolFull(t *testing.T) {
	is := is.New(t)
	f := newFixture(t, nil, launch.WithMaxJobs(1))
	form := url.Values{"name": {"Alice"}, "room": {"room-abc123"}}

	resp, err := noRedirect().PostForm(f.server.URL+"/form", form)
	is.NoErr(err)
	resp.Body.Close()
	is.Equal(resp.StatusCode, http.StatusSeeOther)

	resp, err = noRedirect().PostForm(f.server.URL+"/form", form)
	is.NoErr(err)
	is.Equal(resp.StatusCode, http.StatusServiceUnavailable)

	var body errorResponse
	decodeBody(t, resp, &body)
	is.Equal(body.Error, "pool_full")
}

func TestForm_RegistryUnavailable(t *testing.T) {
	is := is.New(t)
	f := newFixture(t, nil)
	f.registry.err = rooms.ErrBackendUnavailable

	resp, err := noRedirect().PostForm(f.server.URL+"/form", url.Values{"name": {"Alice"}})
	is.NoErr(err)
	resp.Body.Close()
	is.Equal(resp.StatusCode, http.StatusServiceUnavailable)
	is.Equal(len(f.pool.List()), 0)
}

func TestGetJob(t *testing.T) {
	is := is.New(t)
	f := newFixture(t, nil)

	job, err := f.pool.Submit(context.Background(), launch.Spec{Room: "room-abc123", Plan: interview.Default()})
	is.NoErr(err)

	resp, err := http.Get(f.server.URL + "/jobs/" + job.ID)
	is.NoErr(err)
	is.Equal(resp.StatusCode, http.StatusOK)
	var got launch.Job
	decodeBody(t, resp, &got)
	is.Equal(got.ID, job.ID)
	is.Equal(got.Room, "room-abc123")
	is.Equal(got.PID, 7)

	resp, err = http.Get(f.server.URL + "/jobs/nope")
	is.NoErr(err)
	resp.Body.Close()
	is.Equal(resp.StatusCode, http.StatusNotFound)
}

func TestJobEvents_StreamsUntilTerminal(t *testing.T) {
	is := is.New(t)
	f := newFixture(t, nil)

	job, err := f.pool.Submit(context.Background(), launch.Spec{Room: "room-abc123", Plan: interview.Default()})
	is.NoErr(err)

	wsURL := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/jobs/" + job.ID + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	is.NoErr(err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	var snap launch.Job
	is.NoErr(conn.ReadJSON(&snap))
	is.Equal(snap.Status, launch.StatusRunning)

	f.launcher.handles[0].exit <- nil

	is.NoErr(conn.ReadJSON(&snap))
	is.Equal(snap.Status, launch.StatusCompleted)

	_, _, err = conn.ReadMessage()
	is.True(websocket.IsCloseError(err, websocket.CloseNormalClosure))
}

func TestJobEvents_UnknownJob(t *testing.T) {
	is := is.New(t)
	f := newFixture(t, nil)

	resp, err := http.Get(f.server.URL + "/jobs/nope/events")
	is.NoErr(err)
	resp.Body.Close()
	is.Equal(resp.StatusCode, http.StatusNotFound)
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    string
	}{
		{name: "any origin", allowed: nil, origin: "https://app.example", want: "https://app.example"},
		{name: "listed origin", allowed: []string{"https://app.example"}, origin: "https://app.example", want: "https://app.example"},
		{name: "unlisted origin", allowed: []string{"https://app.example"}, origin: "https://evil.example", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := is.New(t)
			f := newFixture(t, func(d *Deps) { d.AllowedOrigins = tt.allowed })

			req, err := http.NewRequest(http.MethodOptions, f.server.URL+"/getToken", nil)
			is.NoErr(err)
			req.Header.Set("Origin", tt.origin)
			req.Header.Set("Access-Control-Request-Method", http.MethodGet)

			resp, err := http.DefaultClient.Do(req)
			is.NoErr(err)
			resp.Body.Close()
			is.Equal(resp.Header.Get("Access-Control-Allow-Origin"), tt.want)
			if tt.want != "" {
				is.Equal(resp.StatusCode, http.StatusNoContent)
			}
		})
	}
}

func TestHealthzAndMetrics(t *testing.T) {
	is := is.New(t)
	f := newFixture(t, nil)

	resp, err := http.Get(f.server.URL + "/healthz")
	is.NoErr(err)
	resp.Body.Close()
	is.Equal(resp.StatusCode, http.StatusOK)

	resp, err = http.Get(f.server.URL + "/metrics")
	is.NoErr(err)
	defer resp.Body.Close()
	is.Equal(resp.StatusCode, http.StatusOK)
	body, err := io.ReadAll(resp.Body)
	is.NoErr(err)
	is.True(strings.Contains(string(body), "go_goroutines"))
}
