package dossier

import (
	"fmt"
	"sync"
	"time"
)

// Phase is a stage of a research run. Phases only move forward.
type Phase int

const (
	PhasePlanning Phase = iota + 1
	PhaseSearching
	PhaseWriting
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhasePlanning:
		return "planning"
	case PhaseSearching:
		return "searching"
	case PhaseWriting:
		return "writing"
	case PhaseDone:
		return "done"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// MarshalText renders the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText parses a phase name.
func (p *Phase) UnmarshalText(b []byte) error {
	switch string(b) {
	case "planning":
		*p = PhasePlanning
	case "searching":
		*p = PhaseSearching
	case "writing":
		*p = PhaseWriting
	case "done":
		*p = PhaseDone
	default:
		return fmt.Errorf("unknown phase %q", string(b))
	}
	return nil
}

// Event is a progress update emitted by the Manager. Key identifies the line
// being updated; a later event with the same key replaces the earlier one.
type Event struct {
	TraceID string    `json:"trace_id"`
	Phase   Phase     `json:"phase"`
	Key     string    `json:"key"`
	Message string    `json:"message"`
	Done    bool      `json:"done"`
	Time    time.Time `json:"time"`
}

// Printer receives progress events. The Manager serializes calls, so
// implementations need not be safe for concurrent use.
type Printer interface {
	Update(ev Event)
}

// PrinterFunc adapts a function to the Printer interface.
type PrinterFunc func(Event)

func (f PrinterFunc) Update(ev Event) { f(ev) }

type nopPrinter struct{}

func (nopPrinter) Update(Event) {}

// EventLog is an append-only Printer that records every event.
type EventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *EventLog) Update(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

// Events returns a copy of the recorded events in arrival order.
func (l *EventLog) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// Latest returns the most recent event for each key.
func (l *EventLog) Latest() map[string]Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]Event, len(l.events))
	for _, ev := range l.events {
		out[ev.Key] = ev
	}
	return out
}

// eventSink stamps events with the run's trace id and serializes delivery.
type eventSink struct {
	mu      sync.Mutex
	printer Printer
	traceID string
}

func newEventSink(p Printer, traceID string) *eventSink {
	if p == nil {
		p = nopPrinter{}
	}
	return &eventSink{printer: p, traceID: traceID}
}

func (s *eventSink) emit(phase Phase, key, message string, done bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.printer.Update(Event{
		TraceID: s.traceID,
		Phase:   phase,
		Key:     key,
		Message: message,
		Done:    done,
		Time:    time.Now(),
	})
}
