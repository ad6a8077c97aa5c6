package capture

import (
	"sync"
)

type EventType string

const (
	EventPointerMove   EventType = "pointermove"
	EventClick         EventType = "click"
	EventKeyDown       EventType = "keydown"
	EventCaptureChange EventType = "capturechange"
)

// Event is a UI input event in client coordinates.
type Event struct {
	Type      EventType
	ClientX   float64
	ClientY   float64
	MovementX float64
	MovementY float64
	Key       string
	// Captured is set on EventCaptureChange.
	Captured bool

	defaultPrevented bool
}

// PreventDefault suppresses the local action for the event.
func (e *Event) PreventDefault() { e.defaultPrevented = true }

func (e *Event) DefaultPrevented() bool { return e.defaultPrevented }

type Listener func(ev *Event)

// Target is anything listeners can be installed on: the capture viewport
// or the window around it.
type Target interface {
	// AddListener installs l and returns the function that removes it.
	AddListener(typ EventType, l Listener) (remove func())
}

type entry struct {
	id int
	l  Listener
}

// Dispatcher is an in-process Target. UI front ends feed it events with
// Dispatch; listeners run in registration order.
type Dispatcher struct {
	mu        sync.Mutex
	nextID    int
	listeners map[EventType][]entry
}

var _ Target = (*Dispatcher)(nil)

func NewDispatcher() *Dispatcher {
	return &Dispatcher{listeners: make(map[EventType][]entry)}
}

func (d *Dispatcher) AddListener(typ EventType, l Listener) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	id := d.nextID
	d.listeners[typ] = append(d.listeners[typ], entry{id: id, l: l})
	var once sync.Once
	return func() {
		once.Do(func() { d.remove(typ, id) })
	}
}

func (d *Dispatcher) remove(typ EventType, id int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	entries := d.listeners[typ]
	for i, e := range entries {
		if e.id == id {
			d.listeners[typ] = append(entries[:i:i], entries[i+1:]...)
			break
		}
	}
	if len(d.listeners[typ]) == 0 {
		delete(d.listeners, typ)
	}
}

// Dispatch delivers ev to the listeners installed for its type and reports
// whether any of them prevented the default action.
func (d *Dispatcher) Dispatch(ev *Event) bool {
	d.mu.Lock()
	entries := append([]entry(nil), d.listeners[ev.Type]...)
	d.mu.Unlock()
	for _, e := range entries {
		e.l(ev)
	}
	return ev.DefaultPrevented()
}

// ListenerCount is the number of installed listeners across all types.
func (d *Dispatcher) ListenerCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, entries := range d.listeners {
		n += len(entries)
	}
	return n
}
