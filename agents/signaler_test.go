package agents

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/fixdesk/remotedesk/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// terminal builds a printer and prompter over an in-memory console.
func terminal(t *testing.T, input string) (*shared.Printer, *shared.Prompter, *bytes.Buffer) {
	t.Helper()
	out := new(bytes.Buffer)
	printer, err := shared.NewPrinter("│  ", shared.NewNopCloseHook(out))
	require.NoError(t, err)
	return printer, shared.NewPrompter(printer, strings.NewReader(input)), out
}

// chanSignaler connects an agent to a test peer through channels.
type chanSignaler struct {
	published chan string
	incoming  chan string
	retries   int
}

func newChanSignaler() *chanSignaler {
	return &chanSignaler{published: make(chan string, 1), incoming: make(chan string, 4)}
}

func (s *chanSignaler) Publish(ctx context.Context, _, blob string) error {
	select {
	case s.published <- blob:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *chanSignaler) Receive(ctx context.Context, _ string, retry bool) (string, error) {
	if retry {
		s.retries++
	}
	select {
	case blob := <-s.incoming:
		return blob, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestTerminalSignalerPublish(t *testing.T) {
	printer, prompter, out := terminal(t, "")
	s := TerminalSignaler{Printer: printer, Prompter: prompter}

	require.NoError(t, s.Publish(context.Background(), "offer", `{"type":"offer"}`))
	assert.Equal(t, "📋 Copy this offer and send it to the other side:\n│  {\"type\":\"offer\"}\n\n", out.String())
}

func TestTerminalSignalerReceive(t *testing.T) {
	printer, prompter, out := terminal(t, "  {\"type\":\"answer\"}  \nsecond\n")
	s := TerminalSignaler{Printer: printer, Prompter: prompter}

	blob, err := s.Receive(context.Background(), "answer", false)
	require.NoError(t, err)
	assert.Equal(t, `{"type":"answer"}`, blob)
	assert.Contains(t, out.String(), "Paste the answer")

	blob, err = s.Receive(context.Background(), "answer", true)
	require.NoError(t, err)
	assert.Equal(t, "second", blob)
	assert.Contains(t, out.String(), "was not valid")

	_, err = s.Receive(context.Background(), "answer", false)
	assert.ErrorIs(t, err, io.EOF)
}

func TestTerminalSignalerReceiveCancelled(t *testing.T) {
	printer, prompter, _ := terminal(t, "blob\n")
	s := TerminalSignaler{Printer: printer, Prompter: prompter}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Receive(ctx, "offer", false)
	assert.ErrorIs(t, err, context.Canceled)
}
