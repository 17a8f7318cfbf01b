package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"google.golang.org/protobuf/proto"

	"github.com/cxd309/transit-engine/internal/clock"
	"github.com/cxd309/transit-engine/internal/engine"
	"github.com/cxd309/transit-engine/internal/feed"
	"github.com/cxd309/transit-engine/internal/fleet"
	"github.com/cxd309/transit-engine/internal/kinematics"
	"github.com/cxd309/transit-engine/internal/loader"
	"github.com/cxd309/transit-engine/internal/simerr"
)

const testScenario = `
streets:
  - {id: main, begin: [0, 0], end: [600, 0]}
  - {id: north, begin: [600, 0], end: [600, 400], stop: 0.5}
  - {id: east, begin: [600, 0], end: [900, 0]}
routes:
  - {id: r1, streets: [main, north]}
  - {id: r2, streets: [main, east]}
lines:
  - {id: L1, label: "1", destination: Harbour, routes: [r1, r2], timetable: ["00:01", "00:03"]}
  - {id: L2, label: "2", destination: Depot, routes: [r2], timetable: ["00:02"]}
`

func TestMain(m *testing.M) {
	log.SetOutput(io.Discard)
	m.Run()
}

type recordingPublisher struct {
	ticks []engine.TickLog
}

func (p *recordingPublisher) Publish(t engine.TickLog) error {
	p.ticks = append(p.ticks, t)
	return nil
}
func (p *recordingPublisher) Close() {}

func newTestDriver(t *testing.T, interval time.Duration, pub *recordingPublisher, hub *Hub) *Driver {
	t.Helper()
	sc, err := loader.ParseScenario([]byte(testScenario))
	if err != nil {
		t.Fatal(err)
	}
	sim, err := engine.New(engine.Config{StepTime: time.Minute, Motion: kinematics.ConstantSpeed{Speed: 1}})
	if err != nil {
		t.Fatal(err)
	}
	if err := sim.InitializeSimulation(sc.Network, sc.Lines); err != nil {
		t.Fatal(err)
	}
	if pub == nil {
		return NewDriver(sim, interval, nil, hub)
	}
	return NewDriver(sim, interval, pub, hub)
}

func newTestServer(t *testing.T) (*Server, *Driver, *recordingPublisher) {
	t.Helper()
	pub := &recordingPublisher{}
	hub := NewHub([]string{"*"})
	d := newTestDriver(t, 0, pub, hub)
	ref, err := feed.NewGeoReference(50, 4, 1)
	if err != nil {
		t.Fatal(err)
	}
	s := New(d, hub, feed.Builder{Ref: ref}, []string{"*"})
	s.now = func() time.Time { return time.Unix(1700000000, 0) }
	return s, d, pub
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
}

func TestStatusCodes(t *testing.T) {
	s, _, _ := newTestServer(t)
	h := s.Handler()

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"status", http.MethodGet, "/api/status", "", http.StatusOK},
		{"vehicles", http.MethodGet, "/api/vehicles", "", http.StatusOK},
		{"vehicle bad id", http.MethodGet, "/api/vehicles/abc", "", http.StatusBadRequest},
		{"vehicle unknown", http.MethodGet, "/api/vehicles/99", "", http.StatusNotFound},
		{"events", http.MethodGet, "/api/events", "", http.StatusOK},
		{"lines", http.MethodGet, "/api/lines", "", http.StatusOK},
		{"alternate single variant", http.MethodPost, "/api/lines/1/alternate", "", http.StatusNotFound},
		{"alternate out of range", http.MethodPost, "/api/lines/7/alternate", "", http.StatusNotFound},
		{"alternate bad index", http.MethodPost, "/api/lines/x/alternate", "", http.StatusBadRequest},
		{"streets", http.MethodGet, "/api/streets", "", http.StatusOK},
		{"traffic unknown street", http.MethodPut, "/api/streets/nowhere/traffic", `{"percent": 50}`, http.StatusNotFound},
		{"traffic out of range", http.MethodPut, "/api/streets/main/traffic", `{"percent": 150}`, http.StatusBadRequest},
		{"traffic missing percent", http.MethodPut, "/api/streets/main/traffic", `{}`, http.StatusBadRequest},
		{"time invalid", http.MethodPost, "/api/time", `{"hours": 24, "minutes": 0}`, http.StatusBadRequest},
		{"time malformed", http.MethodPost, "/api/time", `{"hours": "noon"}`, http.StatusBadRequest},
		{"step negative", http.MethodPost, "/api/step", `{"seconds": -5}`, http.StatusBadRequest},
		{"nearest missing y", http.MethodGet, "/api/streets/nearest?x=1", "", http.StatusBadRequest},
		{"nearest nothing close", http.MethodGet, "/api/streets/nearest?x=5000&y=5000", "", http.StatusNotFound},
		{"wrong method", http.MethodDelete, "/api/status", "", http.StatusMethodNotAllowed},
		{"wrong method on step", http.MethodGet, "/api/step", "", http.StatusMethodNotAllowed},
		{"wrong method on traffic", http.MethodPost, "/api/streets/main/traffic", `{"percent": 50}`, http.StatusMethodNotAllowed},
		{"unknown path", http.MethodGet, "/api/nothing", "", http.StatusNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, h, tc.method, tc.path, tc.body)
			if rec.Code != tc.want {
				t.Errorf("%s %s = %d, want %d (%s)", tc.method, tc.path, rec.Code, tc.want, rec.Body.String())
			}
		})
	}
}

func TestStepAndQuery(t *testing.T) {
	s, _, pub := newTestServer(t)
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/step", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("step = %d %s", rec.Code, rec.Body.String())
	}
	var tick engine.TickLog
	decode(t, rec, &tick)
	if tick.Tick != 1 || tick.Time != clock.MustNew(0, 1, 0) || len(tick.Vehicles) != 1 {
		t.Errorf("tick = %+v", tick)
	}
	if len(pub.ticks) != 1 {
		t.Errorf("published %d ticks", len(pub.ticks))
	}

	rec = do(t, h, http.MethodPost, "/api/step", `{"seconds": 120}`)
	decode(t, rec, &tick)
	if tick.Time != clock.MustNew(0, 3, 0) || len(tick.Vehicles) != 3 {
		t.Errorf("second tick = %+v", tick)
	}

	var v fleet.VehicleLog
	decode(t, do(t, h, http.MethodGet, "/api/vehicles/1", ""), &v)
	if v.Line != "L1" || v.Distance != 120 || v.Street != "main" || v.NextStop != "north" {
		t.Errorf("vehicle 1 = %+v", v)
	}

	var status statusView
	decode(t, do(t, h, http.MethodGet, "/api/status", ""), &status)
	if status.Stats.Ticks != 2 || status.Stats.Live != 3 || status.Stats.Pending != 0 || status.StepSeconds != 60 {
		t.Errorf("status = %+v", status)
	}
}

func TestLinesAndAlternate(t *testing.T) {
	s, _, _ := newTestServer(t)
	h := s.Handler()

	var ls []lineView
	decode(t, do(t, h, http.MethodGet, "/api/lines", ""), &ls)
	if len(ls) != 2 || ls[0].ActiveRoute != "r1" || len(ls[0].Routes) != 2 || ls[1].Index != 1 {
		t.Fatalf("lines = %+v", ls)
	}

	rec := do(t, h, http.MethodPost, "/api/lines/0/alternate", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("alternate = %d %s", rec.Code, rec.Body.String())
	}
	var lv lineView
	decode(t, rec, &lv)
	if lv.ActiveRoute != "r2" {
		t.Errorf("active route after alternate = %s", lv.ActiveRoute)
	}

	var events []eventView
	decode(t, do(t, h, http.MethodGet, "/api/events", ""), &events)
	if len(events) != 3 || events[0].Line != "L1" || events[1].Line != "L2" || events[0].Kind != "departure" {
		t.Errorf("events = %+v", events)
	}

	var status statusView
	rec = do(t, h, http.MethodPost, "/api/restart", "")
	decode(t, rec, &status)
	if rec.Code != http.StatusOK || status.Time != clock.Midnight {
		t.Errorf("restart = %d %+v", rec.Code, status)
	}
	decode(t, do(t, h, http.MethodGet, "/api/lines", ""), &ls)
	if ls[0].ActiveRoute != "r1" {
		t.Error("restart should restore the primary route")
	}
}

func TestTrafficAndNearest(t *testing.T) {
	s, d, _ := newTestServer(t)
	h := s.Handler()

	rec := do(t, h, http.MethodPut, "/api/streets/main/traffic", `{"percent": 50}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("traffic = %d %s", rec.Code, rec.Body.String())
	}
	var sv streetView
	decode(t, rec, &sv)
	if sv.Traffic != 0.5 {
		t.Errorf("traffic = %v", sv.Traffic)
	}

	if _, err := d.Step(0); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Step(0); err != nil {
		t.Fatal(err)
	}
	var v fleet.VehicleLog
	decode(t, do(t, h, http.MethodGet, "/api/vehicles/1", ""), &v)
	if v.Distance != 30 {
		t.Errorf("distance at half traffic = %v", v.Distance)
	}

	decode(t, do(t, h, http.MethodPut, "/api/streets/main/traffic", `{"percent": 0}`), &sv)
	if sv.Traffic != 0.01 {
		t.Errorf("zero percent traffic = %v, want clamped", sv.Traffic)
	}

	var nv nearestView
	rec = do(t, h, http.MethodGet, "/api/streets/nearest?x=610&y=200", "")
	decode(t, rec, &nv)
	if rec.Code != http.StatusOK || nv.Street.ID != "north" || nv.Distance != 10 {
		t.Errorf("nearest = %d %+v", rec.Code, nv)
	}
	if nv.Street.Stop == nil || *nv.Street.Stop != 0.5 {
		t.Errorf("north stop = %v", nv.Street.Stop)
	}

	decode(t, do(t, h, http.MethodGet, "/api/streets/nearest?x=300&y=-40&radius=50", ""), &nv)
	if nv.Street.ID != "main" || nv.Distance != 40 {
		t.Errorf("nearest with radius = %+v", nv)
	}
}

func TestSetTime(t *testing.T) {
	s, _, _ := newTestServer(t)
	h := s.Handler()

	var status statusView
	rec := do(t, h, http.MethodPost, "/api/time", `{"hours": 7, "minutes": 30}`)
	decode(t, rec, &status)
	if rec.Code != http.StatusOK || status.Time != clock.MustNew(7, 30, 0) {
		t.Errorf("set time = %d %+v", rec.Code, status)
	}

	// Every departure is overdue and fires on the next tick.
	var tick engine.TickLog
	decode(t, do(t, h, http.MethodPost, "/api/step", ""), &tick)
	if len(tick.Vehicles) != 3 {
		t.Errorf("backlog tick has %d vehicles", len(tick.Vehicles))
	}
}

func TestFeed(t *testing.T) {
	s, d, _ := newTestServer(t)
	h := s.Handler()
	if _, err := d.Step(3 * time.Minute); err != nil {
		t.Fatal(err)
	}

	rec := do(t, h, http.MethodGet, "/api/feed/vehicle-positions", "")
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != feed.ContentType {
		t.Fatalf("feed = %d %s", rec.Code, rec.Header().Get("Content-Type"))
	}
	var fm gtfsrtpb.FeedMessage
	if err := proto.Unmarshal(rec.Body.Bytes(), &fm); err != nil {
		t.Fatal(err)
	}
	if len(fm.GetEntity()) != 3 {
		t.Errorf("entities = %d, want 3", len(fm.GetEntity()))
	}
	if fm.GetHeader().GetTimestamp() != 1700000000 {
		t.Errorf("header timestamp = %d", fm.GetHeader().GetTimestamp())
	}
}

func TestCORS(t *testing.T) {
	s, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Origin", "http://map.example")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got == "" {
		t.Error("missing CORS header")
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{simerr.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("line 3: %w", simerr.ErrNotFound), http.StatusNotFound},
		{simerr.ErrInvalidInput, http.StatusBadRequest},
		{simerr.ErrInvalidDuration, http.StatusBadRequest},
		{simerr.ErrInvalidSchedule, http.StatusBadRequest},
		{simerr.ErrInvalidTraffic, http.StatusBadRequest},
		{fmt.Errorf("%w: duplicate", simerr.ErrHalted), http.StatusInternalServerError},
		{simerr.ErrDuplicateID, http.StatusInternalServerError},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		if got := statusFor(tc.err); got != tc.want {
			t.Errorf("statusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestDriverRun(t *testing.T) {
	pub := &recordingPublisher{}
	d := newTestDriver(t, 0, nil, nil)
	d.pub = pub

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	ticks := func() int {
		var n int
		_ = d.Do(func(s *engine.Simulation) error {
			n = s.Stats().Ticks
			return nil
		})
		return n
	}

	time.Sleep(20 * time.Millisecond)
	if n := ticks(); n != 0 {
		t.Fatalf("paused driver stepped %d times", n)
	}

	d.SetInterval(2 * time.Millisecond)
	deadline := time.Now().Add(2 * time.Second)
	for ticks() < 3 {
		if time.Now().After(deadline) {
			t.Fatal("driver did not step")
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("driver did not stop")
	}
	if d.Interval() != 2*time.Millisecond {
		t.Errorf("interval = %s", d.Interval())
	}
}

func TestConcurrentStepsPublishInOrder(t *testing.T) {
	pub := &recordingPublisher{}
	d := newTestDriver(t, 0, pub, nil)

	const workers, steps = 8, 25
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < steps; j++ {
				if _, err := d.Step(0); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()

	if len(pub.ticks) != workers*steps {
		t.Fatalf("published %d ticks, want %d", len(pub.ticks), workers*steps)
	}
	for i, tick := range pub.ticks {
		if tick.Tick != i+1 {
			t.Fatalf("publish #%d carried tick %d", i+1, tick.Tick)
		}
	}
}

func TestWebSocketMoves(t *testing.T) {
	s, d, _ := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/moves"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	read := func() Message {
		t.Helper()
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatal(err)
		}
		var m Message
		if err := json.NewDecoder(bytes.NewReader(data)).Decode(&m); err != nil {
			t.Fatal(err)
		}
		return m
	}

	if m := read(); m.Type != TypeSnapshot {
		t.Errorf("first message type = %s", m.Type)
	}

	deadline := time.Now().Add(2 * time.Second)
	for s.hub.Count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(time.Millisecond)
	}
	if _, err := d.Step(0); err != nil {
		t.Fatal(err)
	}
	m := read()
	if m.Type != TypeMoves || m.Tick.Tick != 1 || len(m.Tick.Vehicles) != 1 {
		t.Errorf("moves message = %+v", m)
	}
}

func TestHubDropsSlowClient(t *testing.T) {
	h := NewHub(nil)
	c := &client{send: make(chan []byte, 1)}
	h.clients[c] = struct{}{}

	h.Broadcast(Message{Type: TypeMoves})
	if h.Count() != 1 {
		t.Fatal("client dropped with room in its buffer")
	}
	h.dropLocked(c)
	if h.Count() != 0 {
		t.Fatal("drop did not unregister")
	}
	if _, ok := <-c.send; !ok {
		t.Error("queued message lost before close")
	}
	if _, ok := <-c.send; ok {
		t.Error("send channel should be closed")
	}
}

func TestOriginAllowed(t *testing.T) {
	if !originAllowed(nil, "") {
		t.Error("same-origin requests carry no Origin and must pass")
	}
	if originAllowed([]string{"http://a"}, "http://b") {
		t.Error("unlisted origin allowed")
	}
	if !originAllowed([]string{"*"}, "http://b") {
		t.Error("wildcard rejected")
	}
}
