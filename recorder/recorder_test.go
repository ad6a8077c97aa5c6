package recorder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fixdesk/remotedesk"
	"github.com/fixdesk/remotedesk/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	calls []remotedesk.NewSolution
	err   error
}

func (f *fakeStore) CreateSolution(_ context.Context, s remotedesk.NewSolution) (*remotedesk.Solution, error) {
	f.calls = append(f.calls, s)
	if f.err != nil {
		return nil, f.err
	}
	return &remotedesk.Solution{
		ID:                  "sol-1",
		ProblemDescription:  s.ProblemDescription,
		SolutionDescription: s.SolutionDescription,
		Actions:             s.Actions,
	}, nil
}

func newRecorder() *Recorder {
	r := New(shared.NewNopLogger(), nil)
	tick := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	r.now = func() time.Time {
		tick = tick.Add(time.Millisecond)
		return tick
	}
	return r
}

func TestTapOnlyWhileRecording(t *testing.T) {
	r := newRecorder()
	r.Tap(remotedesk.ClickCommand())
	assert.Equal(t, 0, r.Len())

	r.Start()
	r.Tap(remotedesk.MoveCommand(0.1, 0.2))
	r.Tap(remotedesk.ClickCommand())
	r.Tap(remotedesk.KeyCommand("Enter"))
	actions := r.Stop()
	require.Len(t, actions, 3)
	assert.Equal(t, remotedesk.ChannelMove, actions[0].Channel)
	assert.Equal(t, remotedesk.ChannelClick, actions[1].Channel)
	assert.Equal(t, "Enter", actions[2].Key)
	assert.True(t, actions[0].At.Before(actions[1].At))

	r.Tap(remotedesk.ClickCommand())
	assert.Equal(t, 3, r.Len())
}

func TestStartClearsPreviousBuffer(t *testing.T) {
	r := newRecorder()
	r.Start()
	r.Tap(remotedesk.ClickCommand())
	r.Tap(remotedesk.ClickCommand())
	r.Stop()
	require.Equal(t, 2, r.Len())

	r.Start()
	assert.Equal(t, 0, r.Len())
	assert.True(t, r.Recording())
}

func TestToggle(t *testing.T) {
	r := newRecorder()
	assert.Equal(t, StateRecording, r.Toggle())
	assert.Equal(t, StateIdle, r.Toggle())
}

func TestSaveValidation(t *testing.T) {
	tests := []struct {
		name     string
		problem  string
		solution string
	}{
		{name: "empty problem", problem: "", solution: "x"},
		{name: "blank problem", problem: "   ", solution: "x"},
		{name: "empty solution", problem: "a", solution: ""},
		{name: "blank solution", problem: "a", solution: "\t\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRecorder()
			r.Start()
			r.Tap(remotedesk.ClickCommand())
			r.Stop()
			store := &fakeStore{}

			_, err := r.Save(context.Background(), store, tt.problem, tt.solution)
			assert.ErrorIs(t, err, shared.ErrInvalidSolution)
			assert.Empty(t, store.calls)
			assert.Equal(t, 1, r.Len())
		})
	}
}

func TestSaveEmptyActions(t *testing.T) {
	r := newRecorder()
	store := &fakeStore{}

	saved, err := r.Save(context.Background(), store, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, "sol-1", saved.ID)
	require.Len(t, store.calls, 1)
	assert.NotNil(t, store.calls[0].Actions)
	assert.Empty(t, store.calls[0].Actions)
}

func TestSaveClearsBufferOnSuccess(t *testing.T) {
	r := newRecorder()
	r.Start()
	r.Tap(remotedesk.KeyCommand("a"))
	r.Stop()
	store := &fakeStore{}

	saved, err := r.Save(context.Background(), store, "  VPN drops ", " Reset adapter ")
	require.NoError(t, err)
	assert.Equal(t, "VPN drops", saved.ProblemDescription)
	assert.Equal(t, "Reset adapter", saved.SolutionDescription)
	assert.Len(t, saved.Actions, 1)
	assert.Equal(t, 0, r.Len())
}

func TestSaveKeepsBufferOnStorageFailure(t *testing.T) {
	r := newRecorder()
	r.Start()
	r.Tap(remotedesk.KeyCommand("a"))
	r.Stop()
	store := &fakeStore{err: errors.New("disk full")}

	_, err := r.Save(context.Background(), store, "a", "b")
	assert.ErrorIs(t, err, shared.ErrStorage)
	assert.Equal(t, 1, r.Len())

	store.err = nil
	_, err = r.Save(context.Background(), store, "a", "b")
	require.NoError(t, err)
	assert.Len(t, store.calls[1].Actions, 1)
}

func TestSaveWhileRecording(t *testing.T) {
	r := newRecorder()
	r.Start()
	_, err := r.Save(context.Background(), &fakeStore{}, "a", "b")
	assert.ErrorIs(t, err, shared.ErrRecordingActive)
}

func TestDiscard(t *testing.T) {
	r := newRecorder()
	r.Start()
	r.Tap(remotedesk.ClickCommand())
	r.Discard()
	assert.Equal(t, 0, r.Len())
	assert.False(t, r.Recording())
}

func TestStopOnSessionEnd(t *testing.T) {
	session, err := remotedesk.NewSession(context.Background(), shared.NewNopLogger(), remotedesk.SessionConfig{Role: remotedesk.RoleResponder})
	require.NoError(t, err)

	r := newRecorder()
	r.StopOnSessionEnd(session)
	r.Start()
	r.Tap(remotedesk.ClickCommand())

	require.NoError(t, session.Close())
	assert.False(t, r.Recording())
	assert.Equal(t, 1, r.Len())
}

// restartingStore records a new take while the save is in flight.
type restartingStore struct {
	r *Recorder
}

func (s restartingStore) CreateSolution(_ context.Context, sol remotedesk.NewSolution) (*remotedesk.Solution, error) {
	s.r.Start()
	s.r.Tap(remotedesk.KeyCommand("a"))
	s.r.Tap(remotedesk.KeyCommand("b"))
	s.r.Stop()
	return &remotedesk.Solution{ID: "sol-2", Actions: sol.Actions}, nil
}

func TestSaveKeepsRecordingMadeDuringSave(t *testing.T) {
	r := newRecorder()
	r.Start()
	r.Tap(remotedesk.ClickCommand())
	r.Stop()

	saved, err := r.Save(context.Background(), restartingStore{r: r}, "problem", "solution")
	require.NoError(t, err)
	require.Len(t, saved.Actions, 1)

	actions := r.Actions()
	require.Len(t, actions, 2)
	assert.Equal(t, remotedesk.KeyCommand("a"), actions[0].Command)
	assert.Equal(t, remotedesk.KeyCommand("b"), actions[1].Command)
}
