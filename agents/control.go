package agents

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fixdesk/remotedesk"
	"github.com/fixdesk/remotedesk/capture"
	"github.com/fixdesk/remotedesk/config"
	"github.com/fixdesk/remotedesk/metrics"
	"github.com/fixdesk/remotedesk/recorder"
	"github.com/fixdesk/remotedesk/shared"
	"github.com/fixdesk/remotedesk/tools"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"
)

// ControlAgent runs on the helper's machine: it answers an offer, shows
// the control surface and records actions into reusable solutions.
type ControlAgent struct {
	Logger   shared.LoggerAdapter
	Printer  *shared.Printer
	Prompter *shared.Prompter
	Signaler Signaler
	Config   *config.Config
	Metrics  *metrics.Collector
	Slot     *remotedesk.Slot
	Store    recorder.SolutionStore

	// ProgramOptions are appended to the terminal UI options.
	ProgramOptions []tea.ProgramOption
}

func (a *ControlAgent) validate() error {
	switch {
	case a.Logger == nil:
		return shared.ErrNoLogger
	case a.Config == nil:
		return shared.ErrNoConfig
	case a.Printer == nil:
		return errors.New("no printer provided")
	case a.Prompter == nil:
		return errors.New("no prompter provided")
	case a.Signaler == nil:
		return errors.New("no signaler provided")
	}
	return nil
}

// Run negotiates the session, hands the terminal to the control surface
// until the session ends or the operator quits, then offers to save the
// recording.
func (a *ControlAgent) Run(ctx context.Context) error {
	if err := a.validate(); err != nil {
		return err
	}
	logger := a.Logger.With(zap.String("agent", "control"))
	mode, err := capture.ParseMode(a.Config.Capture.Mode)
	if err != nil {
		return err
	}

	session, err := newSession(ctx, logger, a.Config, a.Metrics, a.Printer, remotedesk.RoleResponder, nil)
	if err != nil {
		return err
	}
	defer session.Close()
	if a.Slot != nil {
		a.Slot.Replace(session)
	}
	if dir := a.Config.Recording.Dir; dir != "" {
		err := session.RegisterTrackRemoteHandler(func(track *webrtc.TrackRemote) {
			path, err := tools.RecordRemoteVideo(ctx, logger, track, dir, session.ID())
			if err != nil {
				logger.Warn("remote track not recorded", zap.Error(err))
				return
			}
			logger.Info("remote screen saved", zap.String("path", path))
		})
		if err != nil {
			return fmt.Errorf("registering track handler: %w", err)
		}
	}

	retry := false
	var answer string
	for {
		offer, err := a.Signaler.Receive(ctx, "offer", retry)
		if err != nil {
			return fmt.Errorf("receiving offer: %w", err)
		}
		a.say("⏳ Generating answer...")
		answer, err = session.AcceptOffer(ctx, offer)
		if err == nil {
			break
		}
		if !errors.Is(err, shared.ErrSignalFormat) {
			return err
		}
		logger.Warn("rejected offer", zap.Error(err))
		retry = true
	}
	if err := a.Signaler.Publish(ctx, "answer", answer); err != nil {
		return fmt.Errorf("publishing answer: %w", err)
	}
	if err := waitConnected(ctx, session); err != nil {
		return err
	}
	logger.Info("connected", zap.String("session", session.ID()))

	rec := recorder.New(logger, a.Metrics)
	rec.StopOnSessionEnd(session)
	model := &viewportModel{
		surface:  capture.NewDispatcher(),
		window:   capture.NewDispatcher(),
		recorder: rec,
		mode:     mode,
		peer:     session.ID(),
	}
	opts := append([]tea.ProgramOption{
		tea.WithAltScreen(),
		tea.WithMouseAllMotion(),
		tea.WithContext(ctx),
	}, a.ProgramOptions...)
	program := tea.NewProgram(model, opts...)

	encoder, err := capture.NewEncoder(logger, capture.EncoderConfig{
		Mode:    mode,
		Sender:  session,
		Tap:     rec,
		Lock:    teaLock{send: program.Send},
		Metrics: a.Metrics,
	})
	if err != nil {
		return err
	}
	model.encoder = encoder
	encoder.AttachWhileConnected(session, model.surface, model.window)

	go func() {
		<-session.Done()
		program.Send(sessionEndedMsg{err: session.Err()})
	}()
	if _, err := program.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("running control surface: %w", err)
	}
	encoder.Detach()
	if rec.Recording() {
		rec.Stop()
	}
	if err := session.Close(); err != nil {
		logger.Warn("closing session", zap.Error(err))
	}
	if err := session.Err(); err != nil {
		a.say(fmt.Sprintf("❌ Session ended with an error: %v", err))
	}
	return a.offerSave(context.WithoutCancel(ctx), rec)
}

// offerSave walks the operator through saving the recorded actions. The
// buffer survives failed saves until the operator gives up.
func (a *ControlAgent) offerSave(ctx context.Context, rec *recorder.Recorder) error {
	n := rec.Len()
	if n == 0 {
		return nil
	}
	if a.Store == nil {
		a.say(fmt.Sprintf("⚠️  %d recorded actions discarded: no store configured.", n))
		rec.Discard()
		return nil
	}
	ok, err := a.Prompter.Confirm(fmt.Sprintf("💾 Save %d recorded actions as a solution?", n), 0)
	if err != nil || !ok {
		rec.Discard()
		return err
	}
	for {
		problem, err := a.Prompter.Ask("Problem description:", 1)
		if err != nil {
			return err
		}
		solution, err := a.Prompter.Ask("Solution description:", 1)
		if err != nil {
			return err
		}
		saved, err := rec.Save(ctx, a.Store, problem, solution)
		switch {
		case err == nil:
			a.say(fmt.Sprintf("✅ Saved solution %s with %d actions.", saved.ID, len(saved.Actions)))
			return nil
		case errors.Is(err, shared.ErrInvalidSolution):
			a.say("⚠️  Both descriptions are required.")
		case errors.Is(err, shared.ErrStorage):
			a.say(fmt.Sprintf("❌ Saving failed: %v", err))
			retry, perr := a.Prompter.Confirm("Try again?", 1)
			if perr != nil || !retry {
				rec.Discard()
				return err
			}
		default:
			return err
		}
	}
}

func (a *ControlAgent) say(s string) {
	if err := a.Printer.Writeln(s, 0); err != nil {
		a.Logger.Error("printing status", err)
	}
}
