// Package executor replays inbound remote-input commands on the local
// machine.
package executor

import (
	"errors"
	"fmt"
	"math"

	"github.com/fixdesk/remotedesk"
	"github.com/fixdesk/remotedesk/metrics"
	"github.com/fixdesk/remotedesk/shared"
	"github.com/fixdesk/remotedesk/tools"
	"go.uber.org/zap"
)

// InputDriver injects pointer and keyboard input into the OS.
type InputDriver interface {
	// ScreenSize returns the current primary screen size in pixels.
	ScreenSize() (width, height int)
	MoveTo(x, y int)
	// Click presses the primary button at the current pointer position.
	Click()
	KeyTap(key string, modifiers ...string) error
}

// Policy decides what happens to move coordinates outside [0,1].
type Policy int

const (
	PolicyClamp Policy = iota
	PolicyReject
	PolicyPass
)

func (p Policy) String() string {
	switch p {
	case PolicyClamp:
		return "clamp"
	case PolicyReject:
		return "reject"
	case PolicyPass:
		return "pass"
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "clamp":
		return PolicyClamp, nil
	case "reject":
		return PolicyReject, nil
	case "pass":
		return PolicyPass, nil
	}
	return 0, fmt.Errorf("unknown coordinate policy %q", s)
}

var ErrOutOfRange = errors.New("coordinates out of range")

type Executor struct {
	logger  shared.LoggerAdapter
	driver  InputDriver
	policy  Policy
	metrics *metrics.Collector
}

func New(logger shared.LoggerAdapter, driver InputDriver, policy Policy, m *metrics.Collector) (*Executor, error) {
	if logger == nil {
		return nil, shared.ErrNoLogger
	}
	if driver == nil {
		return nil, errors.New("no input driver provided")
	}
	return &Executor{
		logger:  logger.With(zap.String("component", "executor"), zap.Stringer("policy", policy)),
		driver:  driver,
		policy:  policy,
		metrics: m,
	}, nil
}

// Execute replays a single command. The screen size is queried on every
// move so resolution changes take effect immediately.
func (e *Executor) Execute(cmd remotedesk.Command) error {
	switch cmd.Channel {
	case remotedesk.ChannelMove:
		p, err := e.applyPolicy(cmd.Point)
		if err != nil {
			return err
		}
		w, h := e.driver.ScreenSize()
		x, y := tools.ScaleToScreen(p.X, w), tools.ScaleToScreen(p.Y, h)
		e.driver.MoveTo(x, y)
		e.logger.Trace("pointer moved", zap.Int("x", x), zap.Int("y", y))
	case remotedesk.ChannelClick:
		e.driver.Click()
		e.logger.Debug("clicked")
	case remotedesk.ChannelKey:
		key, mods, err := ResolveKey(cmd.Key)
		if err != nil {
			return err
		}
		if err := e.driver.KeyTap(key, mods...); err != nil {
			return fmt.Errorf("tapping %q: %w", key, err)
		}
		e.logger.Debug("key tapped", zap.String("key", key), zap.Strings("modifiers", mods))
	default:
		return fmt.Errorf("%w: unknown channel %q", shared.ErrCommandDecode, cmd.Channel)
	}
	e.metrics.CommandExecuted(string(cmd.Channel))
	return nil
}

// Handle executes cmd and drops it with a diagnostic on failure. It is
// meant to be registered as the session's command handler.
func (e *Executor) Handle(cmd remotedesk.Command) {
	if err := e.Execute(cmd); err != nil {
		e.logger.Warn("dropping command", zap.Stringer("command", cmd), zap.Error(err))
		reason := "driver"
		switch {
		case errors.Is(err, shared.ErrCommandDecode):
			reason = "decode"
		case errors.Is(err, ErrOutOfRange):
			reason = "range"
		}
		e.metrics.CommandDropped(reason)
	}
}

func (e *Executor) applyPolicy(p remotedesk.Point) (remotedesk.Point, error) {
	if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
		return p, fmt.Errorf("%w: non-finite coordinates", shared.ErrCommandDecode)
	}
	if inUnit(p.X) && inUnit(p.Y) {
		return p, nil
	}
	switch e.policy {
	case PolicyReject:
		return p, fmt.Errorf("%w: (%g, %g)", ErrOutOfRange, p.X, p.Y)
	case PolicyPass:
		return p, nil
	}
	return remotedesk.Point{X: clamp01(p.X), Y: clamp01(p.Y)}, nil
}

func inUnit(f float64) bool { return f >= 0 && f <= 1 }

func clamp01(f float64) float64 {
	return math.Min(1, math.Max(0, f))
}
