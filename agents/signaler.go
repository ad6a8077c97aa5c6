package agents

import (
	"context"
	"fmt"

	"github.com/fixdesk/remotedesk/shared"
)

// Signaler carries offer and answer blobs between the two operators.
type Signaler interface {
	// Publish hands the local blob to the operator for delivery.
	Publish(ctx context.Context, kind, blob string) error
	// Receive returns the blob the remote operator delivered. retry is set
	// when the previous blob was rejected.
	Receive(ctx context.Context, kind string, retry bool) (string, error)
}

// TerminalSignaler prints blobs and reads pasted ones, one line each.
type TerminalSignaler struct {
	Printer  *shared.Printer
	Prompter *shared.Prompter
}

func (s TerminalSignaler) Publish(_ context.Context, kind, blob string) error {
	if err := s.Printer.Writef(0, "📋 Copy this %s and send it to the other side:", kind); err != nil {
		return err
	}
	if err := s.Printer.Writeln(blob, 1); err != nil {
		return err
	}
	return s.Printer.Writeln("", 0)
}

func (s TerminalSignaler) Receive(ctx context.Context, kind string, retry bool) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	question := fmt.Sprintf("📥 Paste the %s:", kind)
	if retry {
		question = fmt.Sprintf("📥 That %s was not valid, paste it again:", kind)
	}
	return s.Prompter.Ask(question, 0)
}
