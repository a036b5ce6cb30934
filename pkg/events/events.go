// Package events carries the outward observability stream. Operations report
// their outcome through return values; the events published here are hooks
// for dashboards and downstream integrations, never the control flow.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	CompanyAdded           Kind = "CompanyAdded"
	CompanyDataReady       Kind = "CompanyDataReady"
	EmissionReportReceived Kind = "EmissionReportReceived"
	CompanyDataReceived    Kind = "companyDataReceived"
	SavingsCalculated      Kind = "savingsCalculated"
	Verified               Kind = "Verified"
	Minted                 Kind = "Minted"
	Burned                 Kind = "Burned"
	Transferred            Kind = "Transferred"
	CertificateMinted      Kind = "CertificateMinted"
	DeviceRegistered       Kind = "DeviceRegistered"
	DeviceUnregistered     Kind = "DeviceUnregistered"
	VehicleRegistered      Kind = "VehicleRegistered"
	RoundOpened            Kind = "RoundOpened"
	RoundReset             Kind = "RoundReset"
)

// Event is one outward notification.
type Event struct {
	ID     string         `json:"id"`
	Kind   Kind           `json:"kind"`
	At     time.Time      `json:"at"`
	Fields map[string]any `json:"fields"`
}

// New assigns a fresh UUID and timestamp to the notification.
func New(kind Kind, fields map[string]any) Event {
	return Event{
		ID:     uuid.New().String(),
		Kind:   kind,
		At:     time.Now().UTC(),
		Fields: fields,
	}
}

// Sink receives events. Implementations must tolerate being called from
// inside component critical sections and so must not call back into the
// publishing component.
type Sink interface {
	Publish(Event)
}

// Emit publishes to sink if one is wired. Components hold a possibly-nil Sink.
func Emit(sink Sink, kind Kind, fields map[string]any) {
	if sink == nil {
		return
	}
	sink.Publish(New(kind, fields))
}

// Recorder is an in-memory Sink used by tests and the default service setup.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Publish(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// ByKind filters recorded events.
func (r *Recorder) ByKind(kind Kind) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}
