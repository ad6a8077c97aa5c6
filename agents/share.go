// Package agents drives the operator-facing flows: sharing a screen,
// controlling a shared screen, and reporting problems.
package agents

import (
	"context"
	"errors"
	"fmt"

	"github.com/fixdesk/remotedesk"
	"github.com/fixdesk/remotedesk/config"
	"github.com/fixdesk/remotedesk/executor"
	"github.com/fixdesk/remotedesk/metrics"
	"github.com/fixdesk/remotedesk/shared"
	"github.com/fixdesk/remotedesk/tools"
	"go.uber.org/zap"
)

// ShareAgent runs on the machine being helped: it shares the screen,
// generates the offer and replays inbound commands.
type ShareAgent struct {
	Logger   shared.LoggerAdapter
	Printer  *shared.Printer
	Signaler Signaler
	Config   *config.Config
	Metrics  *metrics.Collector
	Slot     *remotedesk.Slot

	// Media and Driver default to screen capture and the OS input driver.
	Media  remotedesk.MediaAcquirer
	Driver executor.InputDriver

	session *remotedesk.Session
}

func (a *ShareAgent) validate() error {
	switch {
	case a.Logger == nil:
		return shared.ErrNoLogger
	case a.Config == nil:
		return shared.ErrNoConfig
	case a.Printer == nil:
		return errors.New("no printer provided")
	case a.Signaler == nil:
		return errors.New("no signaler provided")
	}
	return nil
}

// Spawn negotiates the session and returns once it is connected. The
// returned channel closes when the session ends.
func (a *ShareAgent) Spawn(ctx context.Context) (<-chan struct{}, error) {
	if err := a.validate(); err != nil {
		return nil, err
	}
	logger := a.Logger.With(zap.String("agent", "share"))
	logger.Info("spawning share agent")
	a.say("🤝 Starting screen share...\n")

	policy, err := executor.ParsePolicy(a.Config.Executor.Policy)
	if err != nil {
		return nil, err
	}
	driver := a.Driver
	if driver == nil {
		driver = tools.NewRobotDriver()
	}
	exec, err := executor.New(logger, driver, policy, a.Metrics)
	if err != nil {
		return nil, fmt.Errorf("creating executor: %w", err)
	}
	media := a.Media
	if media == nil {
		media = tools.ScreenAcquirer(logger, tools.ScreenOptions{
			FrameRate: a.Config.WebRTC.FrameRate,
			BitRate:   a.Config.WebRTC.BitRate,
		})
	}

	session, err := newSession(ctx, logger, a.Config, a.Metrics, a.Printer, remotedesk.RoleInitiator, media)
	if err != nil {
		return nil, err
	}
	a.session = session
	if a.Slot != nil {
		a.Slot.Replace(session)
	}
	if err := session.RegisterCommandHandler(exec.Handle); err != nil {
		return nil, fmt.Errorf("registering command handler: %w", err)
	}

	a.say("🖥️  Capturing screen and generating offer...")
	offer, err := session.CreateOffer(ctx)
	if err != nil {
		if errors.Is(err, shared.ErrMediaAcquisition) {
			a.say("❌ Could not access the screen. Check the screen recording permission.\n")
		}
		return nil, err
	}
	a.say("✅ Offer ready.\n")
	if err := a.Signaler.Publish(ctx, "offer", offer); err != nil {
		return nil, fmt.Errorf("publishing offer: %w", err)
	}

	retry := false
	for {
		answer, err := a.Signaler.Receive(ctx, "answer", retry)
		if err != nil {
			return nil, fmt.Errorf("receiving answer: %w", err)
		}
		err = session.AcceptAnswer(answer)
		if err == nil {
			break
		}
		if !errors.Is(err, shared.ErrSignalFormat) {
			return nil, err
		}
		logger.Warn("rejected answer", zap.Error(err))
		retry = true
	}

	if err := waitConnected(ctx, session); err != nil {
		return nil, err
	}
	a.say("🟢 Connected. The helper can now control this machine.\n")
	return session.Done(), nil
}

func (a *ShareAgent) Session() *remotedesk.Session { return a.session }

func (a *ShareAgent) Close() error {
	if a.session == nil {
		return nil
	}
	return a.session.Close()
}

func (a *ShareAgent) say(s string) {
	if err := a.Printer.Writeln(s, 0); err != nil {
		a.Logger.Error("printing status", err)
	}
}

// newSession builds a session from config and wires metrics and state
// reporting into it.
func newSession(
	ctx context.Context,
	logger shared.LoggerAdapter,
	cfg *config.Config,
	m *metrics.Collector,
	printer *shared.Printer,
	role remotedesk.Role,
	media remotedesk.MediaAcquirer,
) (*remotedesk.Session, error) {
	session, err := remotedesk.NewSession(ctx, logger, remotedesk.SessionConfig{
		Role:            role,
		ICEServers:      cfg.WebRTCICEServers(),
		IncludeLoopback: cfg.WebRTC.IncludeLoopback,
		ChannelLabel:    cfg.WebRTC.ChannelLabel,
		GatherTimeout:   cfg.WebRTC.GatherTimeout,
		Media:           media,
	})
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	m.SessionStarted(role.String())
	session.OnStateChange(func(_, next remotedesk.SessionState, err error) {
		m.StateChanged(next.String())
		switch next {
		case remotedesk.SessionStateClosed:
			_ = printer.Writeln("🔌 Session closed.", 0)
		case remotedesk.SessionStateErrored:
			_ = printer.Writef(0, "❌ Connection failed: %v", err)
		}
	})
	return session, nil
}

func waitConnected(ctx context.Context, session *remotedesk.Session) error {
	select {
	case <-session.Connected():
		return nil
	case <-session.Done():
		if err := session.Err(); err != nil {
			return err
		}
		return shared.ErrNotConnected
	case <-ctx.Done():
		return ctx.Err()
	}
}
