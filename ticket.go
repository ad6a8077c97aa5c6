package remotedesk

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
)

type TicketStatus string

const (
	TicketStatusNew            TicketStatus = "New"
	TicketStatusInProgress     TicketStatus = "In Progress"
	TicketStatusResolved       TicketStatus = "Resolved"
	TicketStatusNeedsAttention TicketStatus = "Needs Attention"
	TicketStatusAIResolved     TicketStatus = "AI Resolved"
)

func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusNew, TicketStatusInProgress, TicketStatusResolved,
		TicketStatusNeedsAttention, TicketStatusAIResolved:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

type Ticket struct {
	ID          string       `json:"id" yaml:"id"`
	Title       string       `json:"title" yaml:"title"`
	Description string       `json:"description" yaml:"description"`
	Status      TicketStatus `json:"status" yaml:"status"`
	Priority    Priority     `json:"priority" yaml:"priority"`
	ReportedBy  string       `json:"reportedBy" yaml:"reportedBy"`
	AssignedTo  string       `json:"assignedTo,omitempty" yaml:"assignedTo,omitempty"`
	CreatedAt   time.Time    `json:"createdAt" yaml:"createdAt"`
	Resolution  string       `json:"resolution,omitempty" yaml:"resolution,omitempty"`
	VideoURL    string       `json:"videoUrl,omitempty" yaml:"videoUrl,omitempty"`
	Logs        []string     `json:"logs,omitempty" yaml:"logs,omitempty"`
}

// AddLog appends a timestamped activity line.
func (t *Ticket) AddLog(at time.Time, format string, args ...any) {
	t.Logs = append(t.Logs, at.Format("15:04:05")+" - "+fmt.Sprintf(format, args...))
}

// RecordedAction is a Command captured at send time.
type RecordedAction struct {
	Command
	At time.Time
}

type wireAction struct {
	Channel Channel         `json:"channel"`
	Payload json.RawMessage `json:"payload"`
	At      time.Time       `json:"at"`
}

func (a RecordedAction) MarshalJSON() ([]byte, error) {
	cmd, err := a.Command.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var w wireAction
	if err := sonic.Unmarshal(cmd, &w); err != nil {
		return nil, err
	}
	w.At = a.At
	return sonic.Marshal(w)
}

func (a RecordedAction) MarshalYAML() ([]byte, error) {
	return yaml.Marshal(map[string]any{
		"channel": string(a.Channel),
		"payload": a.payload(),
		"at":      a.At.Format(time.RFC3339Nano),
	})
}

func (a *RecordedAction) UnmarshalJSON(data []byte) error {
	var cmd Command
	if err := cmd.UnmarshalJSON(data); err != nil {
		return err
	}
	var w wireAction
	if err := sonic.Unmarshal(data, &w); err != nil {
		return err
	}
	a.Command = cmd
	a.At = w.At
	return nil
}

// NewSolution is what the recorder hands to storage; the store assigns ID
// and CreatedAt.
type NewSolution struct {
	ProblemDescription  string           `json:"problemDescription"`
	SolutionDescription string           `json:"solutionDescription"`
	Actions             []RecordedAction `json:"actions"`
}

type Solution struct {
	ID                  string           `json:"id" yaml:"id"`
	ProblemDescription  string           `json:"problemDescription" yaml:"problemDescription"`
	SolutionDescription string           `json:"solutionDescription" yaml:"solutionDescription"`
	Actions             []RecordedAction `json:"actions" yaml:"actions"`
	CreatedAt           time.Time        `json:"createdAt" yaml:"createdAt"`
}
