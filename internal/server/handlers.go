package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/paulmach/orb"

	"github.com/cxd309/transit-engine/internal/clock"
	"github.com/cxd309/transit-engine/internal/engine"
	"github.com/cxd309/transit-engine/internal/feed"
	"github.com/cxd309/transit-engine/internal/fleet"
	"github.com/cxd309/transit-engine/internal/lines"
	"github.com/cxd309/transit-engine/internal/network"
	"github.com/cxd309/transit-engine/internal/simerr"
)

type statusView struct {
	RunID        string          `json:"run_id"`
	Time         clock.TimeOfDay `json:"time"`
	StepSeconds  float64         `json:"step_seconds"`
	TickInterval string          `json:"tick_interval"`
	Stats        engine.Stats    `json:"stats"`
	Halted       string          `json:"halted,omitempty"`
}

type eventView struct {
	Time clock.TimeOfDay `json:"time"`
	Line lines.LineID    `json:"line"`
	Kind string          `json:"kind"`
}

type lineView struct {
	Index       int               `json:"index"`
	ID          lines.LineID      `json:"id"`
	Label       string            `json:"label"`
	Destination string            `json:"destination"`
	ActiveRoute network.RouteID   `json:"active_route"`
	Routes      []network.RouteID `json:"routes"`
	Timetable   []clock.TimeOfDay `json:"timetable"`
}

type streetView struct {
	ID      network.StreetID `json:"id"`
	Begin   orb.Point        `json:"begin"`
	End     orb.Point        `json:"end"`
	Length  float64          `json:"length"`
	Traffic float64          `json:"traffic"`
	Stop    *float64         `json:"stop,omitempty"`
}

type nearestView struct {
	Street   streetView `json:"street"`
	Distance float64    `json:"distance"`
}

func newLineView(i int, l *lines.Line) lineView {
	v := lineView{
		Index:       i,
		ID:          l.ID(),
		Label:       l.Label(),
		Destination: l.Destination(),
		ActiveRoute: l.ActiveRoute().ID(),
		Timetable:   l.Timetable(),
	}
	for _, r := range l.Variants() {
		v.Routes = append(v.Routes, r.ID())
	}
	return v
}

func newStreetView(st *network.Street) streetView {
	v := streetView{
		ID:      st.ID(),
		Begin:   st.Begin(),
		End:     st.End(),
		Length:  st.Length(),
		Traffic: st.TrafficFlow(),
	}
	if f, ok := st.Stop(); ok {
		v.Stop = &f
	}
	return v
}

func (s *Server) status(sim *engine.Simulation) statusView {
	v := statusView{
		RunID:        sim.RunID(),
		Time:         sim.Now(),
		StepSeconds:  sim.StepTime().Seconds(),
		TickInterval: s.driver.interval.String(),
		Stats:        sim.Stats(),
	}
	if err := sim.Halted(); err != nil {
		v.Halted = err.Error()
	}
	return v
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var v statusView
	_ = s.driver.Do(func(sim *engine.Simulation) error {
		v = s.status(sim)
		return nil
	})
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleVehicles(w http.ResponseWriter, r *http.Request) {
	var out []fleet.VehicleLog
	_ = s.driver.Do(func(sim *engine.Simulation) error {
		out = sim.Vehicles()
		return nil
	})
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleVehicle(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, fmt.Errorf("vehicle id %q: %w", raw, simerr.ErrInvalidInput))
		return
	}
	var v fleet.VehicleLog
	err = s.driver.Do(func(sim *engine.Simulation) error {
		v, err = sim.Vehicle(id)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	var out []eventView
	_ = s.driver.Do(func(sim *engine.Simulation) error {
		pending := sim.PendingEvents()
		out = make([]eventView, len(pending))
		for i, ev := range pending {
			out[i] = eventView{Time: ev.Time, Line: ev.Line.ID(), Kind: string(ev.Kind)}
		}
		return nil
	})
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleLines(w http.ResponseWriter, r *http.Request) {
	out := []lineView{}
	_ = s.driver.Do(func(sim *engine.Simulation) error {
		if sim.Lines() == nil {
			return nil
		}
		for i, l := range sim.Lines().All() {
			out = append(out, newLineView(i, l))
		}
		return nil
	})
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAlternate(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["index"]
	idx, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, fmt.Errorf("line index %q: %w", raw, simerr.ErrInvalidInput))
		return
	}
	var v lineView
	err = s.driver.Do(func(sim *engine.Simulation) error {
		if err := sim.AlternateLineRoute(idx); err != nil {
			return err
		}
		l, err := sim.Lines().At(idx)
		if err != nil {
			return err
		}
		v = newLineView(idx, l)
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleStreets(w http.ResponseWriter, r *http.Request) {
	out := []streetView{}
	_ = s.driver.Do(func(sim *engine.Simulation) error {
		if sim.Network() == nil {
			return nil
		}
		for _, st := range sim.Network().Streets() {
			out = append(out, newStreetView(st))
		}
		return nil
	})
	writeJSON(w, http.StatusOK, out)
}

func queryFloat(r *http.Request, key string, def *float64) (float64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		if def != nil {
			return *def, nil
		}
		return 0, fmt.Errorf("missing query parameter %q: %w", key, simerr.ErrInvalidInput)
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("query parameter %s=%q: %w", key, raw, simerr.ErrInvalidInput)
	}
	return f, nil
}

func (s *Server) handleNearest(w http.ResponseWriter, r *http.Request) {
	x, err := queryFloat(r, "x", nil)
	if err != nil {
		writeError(w, err)
		return
	}
	y, err := queryFloat(r, "y", nil)
	if err != nil {
		writeError(w, err)
		return
	}
	radius := DefaultPickRadius
	if radius, err = queryFloat(r, "radius", &radius); err != nil {
		writeError(w, err)
		return
	}

	var v nearestView
	err = s.driver.Do(func(sim *engine.Simulation) error {
		if sim.Network() == nil {
			return fmt.Errorf("no network loaded: %w", simerr.ErrNotFound)
		}
		st, d, err := sim.Network().Nearest(orb.Point{x, y}, radius)
		if err != nil {
			return err
		}
		v = nearestView{Street: newStreetView(st), Distance: d}
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type trafficRequest struct {
	Percent *int `json:"percent"`
}

func (s *Server) handleTraffic(w http.ResponseWriter, r *http.Request) {
	var req trafficRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Percent == nil {
		writeError(w, fmt.Errorf("traffic request needs {\"percent\": 0..100}: %w", simerr.ErrInvalidInput))
		return
	}
	id := mux.Vars(r)["id"]
	var v streetView
	err := s.driver.Do(func(sim *engine.Simulation) error {
		if sim.Network() == nil {
			return fmt.Errorf("no network loaded: %w", simerr.ErrNotFound)
		}
		st, err := sim.Network().Street(id)
		if err != nil {
			return err
		}
		if err := st.SetTrafficPercent(*req.Percent); err != nil {
			return err
		}
		v = newStreetView(st)
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	s.log.WithField("street", id).WithField("traffic", v.Traffic).Info("traffic changed")
	writeJSON(w, http.StatusOK, v)
}

type timeRequest struct {
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
}

func (s *Server) handleSetTime(w http.ResponseWriter, r *http.Request) {
	var req timeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("decoding time request: %v: %w", err, simerr.ErrInvalidInput))
		return
	}
	var v statusView
	err := s.driver.Do(func(sim *engine.Simulation) error {
		if err := sim.SetTime(req.Hours, req.Minutes); err != nil {
			return err
		}
		v = s.status(sim)
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type stepRequest struct {
	Seconds float64 `json:"seconds"`
}

func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	var req stepRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, fmt.Errorf("decoding step request: %v: %w", err, simerr.ErrInvalidInput))
			return
		}
	}
	if req.Seconds < 0 {
		writeError(w, fmt.Errorf("step of %vs: %w", req.Seconds, simerr.ErrInvalidDuration))
		return
	}
	tick, err := s.driver.Step(time.Duration(req.Seconds * float64(time.Second)))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tick)
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	var (
		v    statusView
		tick engine.TickLog
	)
	err := s.driver.Do(func(sim *engine.Simulation) error {
		if err := sim.Restart(); err != nil {
			return err
		}
		v = s.status(sim)
		tick = sim.LastTick()
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if s.hub != nil {
		s.hub.Broadcast(snapshotMessage(tick))
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	var (
		vehicles []fleet.VehicleLog
		now      clock.TimeOfDay
		days     int
	)
	_ = s.driver.Do(func(sim *engine.Simulation) error {
		vehicles = sim.Vehicles()
		now = sim.Now()
		days = sim.Stats().Days
		return nil
	})
	data, err := feed.Marshal(s.feed.OnDay(days).Build(vehicles, now, s.now()))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", feed.ContentType)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) handleMoves(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		http.Error(w, "live stream disabled", http.StatusNotFound)
		return
	}
	var tick engine.TickLog
	_ = s.driver.Do(func(sim *engine.Simulation) error {
		tick = sim.LastTick()
		return nil
	})
	s.hub.ServeWS(w, r, snapshotMessage(tick))
}
