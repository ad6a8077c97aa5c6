// Package capture turns pointer and keyboard events on the controller into
// remote-input commands.
package capture

import (
	"errors"
	"sync"

	"github.com/fixdesk/remotedesk"
	"github.com/fixdesk/remotedesk/metrics"
	"github.com/fixdesk/remotedesk/shared"
	"go.uber.org/zap"
)

// Sender transmits commands; *remotedesk.Session implements it.
type Sender interface {
	Send(cmd remotedesk.Command) error
}

// Tap observes every command that was actually transmitted.
type Tap interface {
	Tap(cmd remotedesk.Command)
}

// PointerLock requests exclusive pointer capture from the front end. The
// front end confirms or releases capture with an EventCaptureChange on the
// window target.
type PointerLock interface {
	RequestCapture()
}

type EncoderConfig struct {
	Mode    Mode
	Sender  Sender
	Tap     Tap
	Lock    PointerLock
	Metrics *metrics.Collector
}

var ErrAlreadyAttached = errors.New("encoder already attached")

type Encoder struct {
	logger  shared.LoggerAdapter
	mode    Mode
	sender  Sender
	tap     Tap
	lock    PointerLock
	metrics *metrics.Collector

	mu        sync.Mutex
	viewport  Viewport
	attached  bool
	captured  bool
	cursor    remotedesk.Point
	window    Target
	removers  []func()
	keyRemove func()
}

func NewEncoder(logger shared.LoggerAdapter, cfg EncoderConfig) (*Encoder, error) {
	if logger == nil {
		return nil, shared.ErrNoLogger
	}
	if cfg.Sender == nil {
		return nil, errors.New("no sender provided")
	}
	if cfg.Mode == ModeExclusiveCapture && cfg.Lock == nil {
		return nil, errors.New("exclusive capture needs a pointer lock")
	}
	return &Encoder{
		logger:  logger.With(zap.String("component", "encoder"), zap.String("mode", cfg.Mode.String())),
		mode:    cfg.Mode,
		sender:  cfg.Sender,
		tap:     cfg.Tap,
		lock:    cfg.Lock,
		metrics: cfg.Metrics,
		cursor:  remotedesk.Point{X: 0.5, Y: 0.5},
	}, nil
}

func (e *Encoder) Mode() Mode { return e.mode }

// SetViewport updates the capture bounds, e.g. after a resize.
func (e *Encoder) SetViewport(v Viewport) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.viewport = v
}

func (e *Encoder) Captured() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.captured
}

// Attach installs listeners on the viewport surface and the window.
func (e *Encoder) Attach(surface, window Target) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.attached {
		return ErrAlreadyAttached
	}
	e.attached = true
	e.window = window
	e.removers = append(e.removers,
		surface.AddListener(EventPointerMove, e.handlePointerMove),
		surface.AddListener(EventClick, e.handleClick),
	)
	switch e.mode {
	case ModeViewportRelative:
		e.removers = append(e.removers, window.AddListener(EventKeyDown, e.handleKeyDown))
	case ModeExclusiveCapture:
		e.removers = append(e.removers, window.AddListener(EventCaptureChange, e.handleCaptureChange))
	}
	e.logger.Debug("encoder attached")
	return nil
}

// Detach removes every listener the encoder installed. Safe to call more
// than once.
func (e *Encoder) Detach() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.attached {
		return
	}
	for _, remove := range e.removers {
		remove()
	}
	e.removers = nil
	if e.keyRemove != nil {
		e.keyRemove()
		e.keyRemove = nil
	}
	e.attached = false
	e.captured = false
	e.window = nil
	e.logger.Debug("encoder detached")
}

// AttachWhileConnected attaches the encoder when the session connects and
// detaches it as soon as the session closes or errors.
func (e *Encoder) AttachWhileConnected(session *remotedesk.Session, surface, window Target) {
	session.OnStateChange(func(_, next remotedesk.SessionState, _ error) {
		switch {
		case next == remotedesk.SessionStateConnected:
			if err := e.Attach(surface, window); err != nil {
				e.logger.Error("attaching encoder", err)
			}
		case next.Terminal():
			e.Detach()
		}
	})
	if session.State() == remotedesk.SessionStateConnected {
		if err := e.Attach(surface, window); err != nil && !errors.Is(err, ErrAlreadyAttached) {
			e.logger.Error("attaching encoder", err)
		}
	}
}

func (e *Encoder) handlePointerMove(ev *Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.mode {
	case ModeViewportRelative:
		p, ok := e.viewport.Normalize(ev.ClientX, ev.ClientY)
		if !ok {
			return
		}
		e.emitLocked(remotedesk.MoveCommand(p.X, p.Y))
	case ModeExclusiveCapture:
		if !e.captured || e.viewport.Empty() {
			return
		}
		e.cursor.X = clamp01(e.cursor.X + ev.MovementX/e.viewport.Width)
		e.cursor.Y = clamp01(e.cursor.Y + ev.MovementY/e.viewport.Height)
		e.emitLocked(remotedesk.MoveCommand(e.cursor.X, e.cursor.Y))
	}
}

func (e *Encoder) handleClick(_ *Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mode == ModeExclusiveCapture && !e.captured {
		e.lock.RequestCapture()
		return
	}
	e.emitLocked(remotedesk.ClickCommand())
}

func (e *Encoder) handleKeyDown(ev *Event) {
	if ev.Key == "" {
		return
	}
	ev.PreventDefault()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.emitLocked(remotedesk.KeyCommand(ev.Key))
}

func (e *Encoder) handleCaptureChange(ev *Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.attached {
		return
	}
	e.captured = ev.Captured
	if ev.Captured {
		if e.keyRemove == nil {
			e.keyRemove = e.window.AddListener(EventKeyDown, e.handleKeyDown)
		}
		e.logger.Info("pointer captured")
		return
	}
	if e.keyRemove != nil {
		e.keyRemove()
		e.keyRemove = nil
	}
	e.logger.Info("pointer released")
}

// emitLocked sends cmd and, only once it went out, hands it to the tap.
// Holding mu keeps send order and tap order identical.
func (e *Encoder) emitLocked(cmd remotedesk.Command) {
	if err := e.sender.Send(cmd); err != nil {
		e.logger.Warn("sending command failed", zap.Stringer("command", cmd), zap.Error(err))
		e.metrics.CommandDropped("send")
		return
	}
	e.metrics.CommandSent(string(cmd.Channel))
	if e.tap != nil {
		e.tap.Tap(cmd)
	}
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
