// Package recorder buffers the controller's outgoing commands and packages
// them into solutions.
package recorder

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fixdesk/remotedesk"
	"github.com/fixdesk/remotedesk/metrics"
	"github.com/fixdesk/remotedesk/shared"
	"go.uber.org/zap"
)

type State int

const (
	StateIdle State = iota
	StateRecording
)

func (s State) String() string {
	if s == StateRecording {
		return "recording"
	}
	return "idle"
}

// SolutionStore is the part of the storage collaborator the recorder needs.
type SolutionStore interface {
	CreateSolution(ctx context.Context, solution remotedesk.NewSolution) (*remotedesk.Solution, error)
}

type Recorder struct {
	logger  shared.LoggerAdapter
	metrics *metrics.Collector
	now     func() time.Time

	mu      sync.Mutex
	state   State
	actions []remotedesk.RecordedAction
	// gen changes whenever the buffer is replaced.
	gen uint64
}

func New(logger shared.LoggerAdapter, m *metrics.Collector) *Recorder {
	if logger == nil {
		logger = shared.NewNopLogger()
	}
	return &Recorder{
		logger:  logger.With(zap.String("component", "recorder")),
		metrics: m,
		now:     time.Now,
	}
}

func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Recorder) Recording() bool {
	return r.State() == StateRecording
}

// Start begins a new recording. Any unsaved buffer is discarded first.
func (r *Recorder) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n := len(r.actions); n > 0 {
		r.logger.Info("discarding unsaved recording", zap.Int("actions", n))
	}
	r.actions = nil
	r.gen++
	r.state = StateRecording
	r.logger.Info("recording started")
}

// Stop ends the recording and keeps the buffer for the save flow.
func (r *Recorder) Stop() []remotedesk.RecordedAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateRecording {
		r.state = StateIdle
		r.logger.Info("recording stopped", zap.Int("actions", len(r.actions)))
	}
	return r.copyLocked()
}

// Toggle starts a recording when idle and stops it otherwise.
func (r *Recorder) Toggle() State {
	if r.Recording() {
		r.Stop()
		return StateIdle
	}
	r.Start()
	return StateRecording
}

// Tap appends cmd when recording. Called synchronously by the encoder in
// send order.
func (r *Recorder) Tap(cmd remotedesk.Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateRecording {
		return
	}
	r.actions = append(r.actions, remotedesk.RecordedAction{Command: cmd, At: r.now()})
	r.metrics.ActionRecorded()
}

func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.actions)
}

func (r *Recorder) Actions() []remotedesk.RecordedAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.copyLocked()
}

// Discard drops the buffer without saving.
func (r *Recorder) Discard() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = nil
	r.gen++
	r.state = StateIdle
}

// StopOnSessionEnd stops an active recording when session closes or errors.
// The buffer is kept for save or discard.
func (r *Recorder) StopOnSessionEnd(session *remotedesk.Session) {
	session.OnStateChange(func(_, next remotedesk.SessionState, _ error) {
		if next.Terminal() && r.Recording() {
			r.logger.Info("session ended while recording", zap.String("state", next.String()))
			r.Stop()
		}
	})
}

// Save validates the descriptions and persists the buffer. The buffer is
// cleared only after the store confirms the save.
func (r *Recorder) Save(ctx context.Context, store SolutionStore, problem, solution string) (*remotedesk.Solution, error) {
	if store == nil {
		return nil, shared.ErrNoStore
	}
	problem = strings.TrimSpace(problem)
	solution = strings.TrimSpace(solution)
	if problem == "" || solution == "" {
		r.metrics.SolutionFailed()
		return nil, shared.ErrInvalidSolution
	}

	r.mu.Lock()
	if r.state == StateRecording {
		r.mu.Unlock()
		return nil, shared.ErrRecordingActive
	}
	actions := r.copyLocked()
	gen := r.gen
	r.mu.Unlock()

	saved, err := store.CreateSolution(ctx, remotedesk.NewSolution{
		ProblemDescription:  problem,
		SolutionDescription: solution,
		Actions:             actions,
	})
	if err != nil {
		r.metrics.SolutionFailed()
		r.logger.Error("saving solution", err, zap.Int("actions", len(actions)))
		return nil, fmt.Errorf("%w: %w", shared.ErrStorage, err)
	}

	r.mu.Lock()
	// A recording started while the save was in flight owns the buffer now.
	if r.gen == gen {
		r.actions = nil
	}
	r.mu.Unlock()
	r.metrics.SolutionSaved()
	r.logger.Info("solution saved", zap.String("solution", saved.ID), zap.Int("actions", len(actions)))
	return saved, nil
}

func (r *Recorder) copyLocked() []remotedesk.RecordedAction {
	if len(r.actions) == 0 {
		return []remotedesk.RecordedAction{}
	}
	out := make([]remotedesk.RecordedAction, len(r.actions))
	copy(out, r.actions)
	return out
}
