package agents

import (
	"context"
	"errors"
	"testing"

	"github.com/fixdesk/remotedesk"
	"github.com/fixdesk/remotedesk/recorder"
	"github.com/fixdesk/remotedesk/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakySolutions struct {
	failures int
	saved    []remotedesk.NewSolution
}

func (f *flakySolutions) CreateSolution(_ context.Context, s remotedesk.NewSolution) (*remotedesk.Solution, error) {
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("database is locked")
	}
	f.saved = append(f.saved, s)
	return &remotedesk.Solution{
		ID:                  "sol-1",
		ProblemDescription:  s.ProblemDescription,
		SolutionDescription: s.SolutionDescription,
		Actions:             s.Actions,
	}, nil
}

func recorded(cmds ...remotedesk.Command) *recorder.Recorder {
	rec := recorder.New(shared.NewNopLogger(), nil)
	rec.Start()
	for _, cmd := range cmds {
		rec.Tap(cmd)
	}
	rec.Stop()
	return rec
}

func newControlAgent(t *testing.T, input string, store recorder.SolutionStore) (*ControlAgent, func() string) {
	t.Helper()
	printer, prompter, out := terminal(t, input)
	return &ControlAgent{
		Logger:   shared.NewNopLogger(),
		Printer:  printer,
		Prompter: prompter,
		Signaler: newChanSignaler(),
		Config:   testConfig(),
		Store:    store,
	}, out.String
}

func TestControlAgentValidation(t *testing.T) {
	assert.ErrorIs(t, (&ControlAgent{}).Run(context.Background()), shared.ErrNoLogger)
	assert.ErrorIs(t, (&ControlAgent{Logger: shared.NewNopLogger()}).Run(context.Background()), shared.ErrNoConfig)

	a, _ := newControlAgent(t, "", nil)
	a.Config.Capture.Mode = "telepathy"
	assert.Error(t, a.Run(context.Background()))
}

func TestOfferSaveReasksOnBlankDescriptions(t *testing.T) {
	store := &flakySolutions{}
	a, out := newControlAgent(t, "y\n  \nfixed it\nWi-Fi drops\nToggled the adapter\n", store)
	rec := recorded(remotedesk.ClickCommand(), remotedesk.KeyCommand("Enter"))

	require.NoError(t, a.offerSave(context.Background(), rec))
	require.Len(t, store.saved, 1)
	assert.Equal(t, "Wi-Fi drops", store.saved[0].ProblemDescription)
	assert.Equal(t, "Toggled the adapter", store.saved[0].SolutionDescription)
	assert.Len(t, store.saved[0].Actions, 2)
	assert.Zero(t, rec.Len())
	assert.Contains(t, out(), "Both descriptions are required")
	assert.Contains(t, out(), "Saved solution sol-1 with 2 actions")
}

func TestOfferSaveRetriesStorageFailure(t *testing.T) {
	store := &flakySolutions{failures: 1}
	a, out := newControlAgent(t, "yes\nprinter jam\ncleared tray\ny\nprinter jam\ncleared tray\n", store)
	rec := recorded(remotedesk.ClickCommand())

	require.NoError(t, a.offerSave(context.Background(), rec))
	require.Len(t, store.saved, 1)
	assert.Contains(t, out(), "Saving failed")
}

func TestOfferSaveGiveUpDiscards(t *testing.T) {
	store := &flakySolutions{failures: 5}
	a, _ := newControlAgent(t, "y\np\ns\nn\n", store)
	rec := recorded(remotedesk.ClickCommand())

	err := a.offerSave(context.Background(), rec)
	assert.ErrorIs(t, err, shared.ErrStorage)
	assert.Zero(t, rec.Len())
	assert.Empty(t, store.saved)
}

func TestOfferSaveDeclined(t *testing.T) {
	store := &flakySolutions{}
	a, _ := newControlAgent(t, "n\n", store)
	rec := recorded(remotedesk.ClickCommand())

	require.NoError(t, a.offerSave(context.Background(), rec))
	assert.Empty(t, store.saved)
	assert.Zero(t, rec.Len())
}

func TestOfferSaveNothingRecorded(t *testing.T) {
	a, out := newControlAgent(t, "", &flakySolutions{})
	require.NoError(t, a.offerSave(context.Background(), recorder.New(nil, nil)))
	assert.Empty(t, out())
}
