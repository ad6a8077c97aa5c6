// Package store persists tickets and recorded solutions.
package store

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/fixdesk/remotedesk"
	"github.com/fixdesk/remotedesk/config"
	"github.com/fixdesk/remotedesk/shared"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// Repository is the storage collaborator. Failures wrap shared.ErrStorage;
// unknown ids wrap shared.ErrNotFound.
type Repository interface {
	GetTickets(ctx context.Context) ([]remotedesk.Ticket, error)
	CreateTicket(ctx context.Context, t remotedesk.Ticket) (*remotedesk.Ticket, error)
	GetTicketByID(ctx context.Context, id string) (*remotedesk.Ticket, error)
	// UpdateTicket replaces an existing ticket.
	UpdateTicket(ctx context.Context, t remotedesk.Ticket) error
	CreateSolution(ctx context.Context, s remotedesk.NewSolution) (*remotedesk.Solution, error)
	// FindSolutions returns solutions whose problem description contains
	// every whitespace-separated term of query, newest first.
	FindSolutions(ctx context.Context, query string) ([]remotedesk.Solution, error)
	GetSolution(ctx context.Context, id string) (*remotedesk.Solution, error)
	Ping(ctx context.Context) error
	Close() error
}

// Open creates the repository selected by cfg.Store.Driver.
func Open(ctx context.Context, cfg *config.Config, logger shared.LoggerAdapter) (Repository, error) {
	if cfg == nil {
		return nil, shared.ErrNoConfig
	}
	if logger == nil {
		return nil, shared.ErrNoLogger
	}
	switch cfg.Store.Driver {
	case "sqlite":
		return NewSQLite(cfg.Store.Path)
	case "redis":
		r := cfg.Store.Redis
		return NewRedis(ctx, logger, r.Address, r.Password, r.DB, r.Prefix)
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

const ticketIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewTicketID returns an id of the form TICK-XXXXXXXX.
func NewTicketID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	for i := range b {
		b[i] = ticketIDAlphabet[int(b[i])%len(ticketIDAlphabet)]
	}
	return "TICK-" + string(b)
}

// prepareTicket validates t and fills in store-assigned fields.
func prepareTicket(t remotedesk.Ticket, now time.Time) (remotedesk.Ticket, error) {
	t.Title = strings.TrimSpace(t.Title)
	if t.Title == "" {
		return t, fmt.Errorf("%w: title is required", shared.ErrInvalidTicket)
	}
	if t.Status == "" {
		t.Status = remotedesk.TicketStatusNew
	}
	if !t.Status.Valid() {
		return t, fmt.Errorf("%w: unknown status %q", shared.ErrInvalidTicket, t.Status)
	}
	if t.Priority == "" {
		t.Priority = remotedesk.PriorityMedium
	}
	if !t.Priority.Valid() {
		return t, fmt.Errorf("%w: unknown priority %q", shared.ErrInvalidTicket, t.Priority)
	}
	if t.ID == "" {
		t.ID = NewTicketID()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.CreatedAt = t.CreatedAt.UTC().Truncate(time.Millisecond)
	return t, nil
}

func prepareSolution(s remotedesk.NewSolution, now time.Time) (remotedesk.Solution, error) {
	problem := strings.TrimSpace(s.ProblemDescription)
	solution := strings.TrimSpace(s.SolutionDescription)
	if problem == "" || solution == "" {
		return remotedesk.Solution{}, shared.ErrInvalidSolution
	}
	actions := s.Actions
	if actions == nil {
		actions = []remotedesk.RecordedAction{}
	}
	return remotedesk.Solution{
		ID:                  uuid.NewString(),
		ProblemDescription:  problem,
		SolutionDescription: solution,
		Actions:             actions,
		CreatedAt:           now.UTC().Truncate(time.Millisecond),
	}, nil
}

func queryTerms(query string) []string {
	return strings.Fields(strings.ToLower(query))
}

func matchesTerms(text string, terms []string) bool {
	text = strings.ToLower(text)
	for _, term := range terms {
		if !strings.Contains(text, term) {
			return false
		}
	}
	return true
}

// storedAction is the CBOR shape of a recorded action.
type storedAction struct {
	Channel string   `cbor:"1,keyasint"`
	X       *float64 `cbor:"2,keyasint,omitempty"`
	Y       *float64 `cbor:"3,keyasint,omitempty"`
	Key     string   `cbor:"4,keyasint,omitempty"`
	At      int64    `cbor:"5,keyasint"`
}

func encodeActions(actions []remotedesk.RecordedAction) ([]byte, error) {
	out := make([]storedAction, 0, len(actions))
	for _, a := range actions {
		sa := storedAction{Channel: string(a.Channel), Key: a.Key, At: a.At.UnixNano()}
		if a.Channel == remotedesk.ChannelMove {
			x, y := a.Point.X, a.Point.Y
			sa.X, sa.Y = &x, &y
		}
		out = append(out, sa)
	}
	return cbor.Marshal(out)
}

func decodeActions(data []byte) ([]remotedesk.RecordedAction, error) {
	var in []storedAction
	if err := cbor.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("decoding actions: %w", err)
	}
	out := make([]remotedesk.RecordedAction, 0, len(in))
	for _, sa := range in {
		ch := remotedesk.Channel(sa.Channel)
		if !ch.Valid() {
			return nil, fmt.Errorf("decoding actions: unknown channel %q", sa.Channel)
		}
		a := remotedesk.RecordedAction{
			Command: remotedesk.Command{Channel: ch, Key: sa.Key},
			At:      time.Unix(0, sa.At).UTC(),
		}
		if sa.X != nil && sa.Y != nil {
			a.Point = remotedesk.Point{X: *sa.X, Y: *sa.Y}
		}
		out = append(out, a)
	}
	return out, nil
}
