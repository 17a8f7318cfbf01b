package publish

import (
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/paulmach/orb"
	log "github.com/sirupsen/logrus"

	"github.com/cxd309/transit-engine/internal/clock"
	"github.com/cxd309/transit-engine/internal/config"
	"github.com/cxd309/transit-engine/internal/engine"
)

func TestTopic(t *testing.T) {
	tests := map[string]string{
		"":         "moves",
		"transit":  "transit/moves",
		"/city/a/": "city/a/moves",
	}
	for prefix, want := range tests {
		if got := Topic(prefix); got != want {
			t.Errorf("Topic(%q) = %q, want %q", prefix, got, want)
		}
	}
}

func TestNewDisabled(t *testing.T) {
	p, err := New(config.MQTTConfig{Enabled: false})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := p.(Discard); !ok {
		t.Errorf("disabled publisher = %T", p)
	}
	if err := p.Publish(engine.TickLog{}); err != nil {
		t.Error(err)
	}
}

func TestMQTTPublish(t *testing.T) {
	l := log.New()
	l.SetOutput(io.Discard)

	type message struct {
		topic   string
		payload []byte
	}
	var sent []message
	closed := false
	m := newMQTT("city",
		func(topic string, payload []byte) error {
			sent = append(sent, message{topic, payload})
			return nil
		},
		func() { closed = true },
		log.NewEntry(l),
	)

	tick := engine.TickLog{
		Tick: 3,
		Time: clock.MustNew(8, 15, 0),
		Vehicles: []engine.VehiclePosition{
			{ID: 1, Line: "L1", Position: orb.Point{10, 20}},
		},
	}
	if err := m.Publish(tick); err != nil {
		t.Fatal(err)
	}
	if len(sent) != 1 || sent[0].topic != "city/moves" {
		t.Fatalf("sent = %v", sent)
	}
	var got engine.TickLog
	if err := json.Unmarshal(sent[0].payload, &got); err != nil {
		t.Fatal(err)
	}
	if got.Tick != 3 || got.Time != tick.Time || len(got.Vehicles) != 1 || got.Vehicles[0].Position != (orb.Point{10, 20}) {
		t.Errorf("payload = %+v", got)
	}

	m.Close()
	if !closed {
		t.Error("Close did not disconnect")
	}
}

func TestMQTTPublishError(t *testing.T) {
	boom := errors.New("broker gone")
	m := newMQTT("x", func(string, []byte) error { return boom }, nil, log.NewEntry(log.New()))
	if err := m.Publish(engine.TickLog{}); !errors.Is(err, boom) {
		t.Errorf("error = %v", err)
	}
	m.Close()
}
