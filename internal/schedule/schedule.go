// Package schedule implements the event table: the time-ordered set of
// pending vehicle departures that the engine drains as simulated time
// advances.
//
// An event is Pending until DrainDue returns it (Fired) or Cancel drops it
// (Cancelled). Fired events are never re-armed.
package schedule

import (
	"fmt"
	"sort"

	"github.com/cxd309/transit-engine/internal/clock"
	"github.com/cxd309/transit-engine/internal/lines"
	"github.com/cxd309/transit-engine/internal/simerr"
)

// Kind distinguishes event types. Only departures exist today.
type Kind string

const KindDeparture Kind = "departure"

// PendingEvent is one scheduled departure.
type PendingEvent struct {
	Time clock.TimeOfDay
	Line *lines.Line
	Kind Kind
	seq  uint64
}

// Seq returns the insertion sequence number used to break time ties.
func (e PendingEvent) Seq() uint64 { return e.seq }

// EventTable holds pending events sorted by (time, insertion order).
type EventTable struct {
	events  []PendingEvent
	nextSeq uint64
}

// NewEventTable returns an empty table.
func NewEventTable() *EventTable {
	return &EventTable{}
}

// Schedule inserts a departure for line at t.
func (et *EventTable) Schedule(t clock.TimeOfDay, line *lines.Line) error {
	if !t.Valid() {
		return fmt.Errorf("event at %s: %w", t, simerr.ErrInvalidSchedule)
	}
	if line == nil {
		return fmt.Errorf("event at %s has no line: %w", t, simerr.ErrInvalidSchedule)
	}
	ev := PendingEvent{Time: t, Line: line, Kind: KindDeparture, seq: et.nextSeq}
	et.nextSeq++

	// Insert after every event at or before t so ties keep insertion order.
	i := sort.Search(len(et.events), func(i int) bool { return et.events[i].Time > t })
	et.events = append(et.events, PendingEvent{})
	copy(et.events[i+1:], et.events[i:])
	et.events[i] = ev
	return nil
}

// DrainDue removes and returns every event scheduled at or before upto, in
// ascending time order with ties in insertion order.
func (et *EventTable) DrainDue(upto clock.TimeOfDay) []PendingEvent {
	n := sort.Search(len(et.events), func(i int) bool { return et.events[i].Time > upto })
	if n == 0 {
		return nil
	}
	due := make([]PendingEvent, n)
	copy(due, et.events[:n])
	rest := make([]PendingEvent, len(et.events)-n)
	copy(rest, et.events[n:])
	et.events = rest
	return due
}

// Peek returns the next event to fire without removing it.
func (et *EventTable) Peek() (PendingEvent, bool) {
	if len(et.events) == 0 {
		return PendingEvent{}, false
	}
	return et.events[0], true
}

// Pending returns a copy of all pending events in firing order.
func (et *EventTable) Pending() []PendingEvent {
	out := make([]PendingEvent, len(et.events))
	copy(out, et.events)
	return out
}

// Len returns the number of pending events.
func (et *EventTable) Len() int { return len(et.events) }

// Cancel drops every pending event and returns how many were cancelled.
func (et *EventTable) Cancel() int {
	n := len(et.events)
	et.events = nil
	return n
}
