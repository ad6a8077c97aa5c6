package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fixdesk/remotedesk"
	"github.com/fixdesk/remotedesk/assistant"
	"github.com/fixdesk/remotedesk/shared"
	"github.com/goccy/go-yaml"
	"go.uber.org/zap"
)

// TicketStore is the part of the repository the reporter writes to.
type TicketStore interface {
	CreateTicket(ctx context.Context, t remotedesk.Ticket) (*remotedesk.Ticket, error)
	UpdateTicket(ctx context.Context, t remotedesk.Ticket) error
}

// CommandRunner runs suggested fix commands; *assistant.Runner implements it.
type CommandRunner interface {
	Execute(ctx context.Context, command string) (assistant.ExecResult, error)
}

// Reporter turns a problem report into a ticket with the help of the
// analyzer, answering its clarifying questions through the prompter.
type Reporter struct {
	Logger   shared.LoggerAdapter
	Printer  *shared.Printer
	Prompter *shared.Prompter
	Analyzer assistant.Analyzer
	Store    TicketStore
	// Runner is optional; without it suggested commands are only listed.
	Runner     CommandRunner
	ReportedBy string

	now func() time.Time
}

func (r *Reporter) validate() error {
	switch {
	case r.Logger == nil:
		return shared.ErrNoLogger
	case r.Store == nil:
		return shared.ErrNoStore
	case r.Printer == nil || r.Prompter == nil:
		return errors.New("no terminal provided")
	case r.Analyzer == nil:
		return errors.New("no analyzer provided")
	}
	return nil
}

// Report analyzes the problem, files the ticket and offers to run the
// suggested commands.
func (r *Reporter) Report(ctx context.Context, rec *assistant.Recording, prompt string) (*remotedesk.Ticket, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, fmt.Errorf("%w: empty problem description", shared.ErrInvalidTicket)
	}
	now := r.now
	if now == nil {
		now = time.Now
	}
	logger := r.Logger.With(zap.String("agent", "reporter"))

	r.say("🔎 Analyzing the problem...", 0)
	result := r.Analyzer.StartConversation(ctx, rec, prompt)
	for result.Type == assistant.ResultQuestion {
		answer, err := r.Prompter.Ask("🤖 "+result.Question, 0)
		if err != nil {
			return nil, err
		}
		result = r.Analyzer.ContinueConversation(ctx, answer)
	}
	if result.Type == assistant.ResultError {
		logger.Warn("analysis failed", zap.String("message", result.Message))
		return nil, errors.New(result.Message)
	}
	analysis := result.Analysis

	draft := remotedesk.Ticket{
		Title:       analysis.Title,
		Description: analysis.Description,
		Resolution:  analysis.Resolution,
		Status:      analysis.Status,
		Priority:    analysis.Priority,
		ReportedBy:  r.ReportedBy,
	}
	if rec != nil {
		draft.VideoURL = rec.Name
	}
	draft.AddLog(now(), "Ticket created from AI analysis.")
	ticket, err := r.Store.CreateTicket(ctx, draft)
	if err != nil {
		return nil, err
	}
	logger.Info("ticket created", zap.String("ticket", ticket.ID))

	if len(analysis.SuggestedCommands) > 0 {
		r.runSuggested(ctx, ticket, analysis.SuggestedCommands, now)
		if err := r.Store.UpdateTicket(ctx, *ticket); err != nil {
			logger.Error("updating ticket logs", err, zap.String("ticket", ticket.ID))
		}
	}

	out, err := yaml.Marshal(ticket)
	if err != nil {
		return ticket, fmt.Errorf("rendering ticket: %w", err)
	}
	r.say("🎫 Ticket filed:", 0)
	r.say(strings.TrimRight(string(out), "\n"), 1)
	return ticket, nil
}

func (r *Reporter) runSuggested(ctx context.Context, ticket *remotedesk.Ticket, commands []string, now func() time.Time) {
	if r.Runner == nil {
		r.say("🛠️  Suggested commands:", 0)
		for _, c := range commands {
			r.say(c, 1)
		}
		return
	}
	for _, c := range commands {
		res, err := r.Runner.Execute(ctx, c)
		switch {
		case errors.Is(err, shared.ErrNotApproved):
			ticket.AddLog(now(), "Declined: %s", c)
			continue
		case err != nil:
			ticket.AddLog(now(), "Failed to run %s: %v", c, err)
			r.say(fmt.Sprintf("❌ %v", err), 1)
			continue
		}
		ticket.AddLog(now(), "Ran %s (exit %d)", c, res.ExitCode)
		if out := strings.TrimSpace(res.Stdout); out != "" {
			ticket.AddLog(now(), "stdout: %s", out)
			r.say(out, 1)
		}
		if out := strings.TrimSpace(res.Stderr); out != "" {
			ticket.AddLog(now(), "stderr: %s", out)
			r.say(out, 1)
		}
	}
}

// ConfirmApprover asks the operator before each command runs.
func ConfirmApprover(p *shared.Prompter) assistant.Approver {
	return func(_ context.Context, command string) (bool, error) {
		return p.Confirm(fmt.Sprintf("▶️  Run %q?", command), 1)
	}
}

func (r *Reporter) say(s string, ind int) {
	if err := r.Printer.Writeln(s, ind); err != nil {
		r.Logger.Error("printing report", err)
	}
}
