package agents

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fixdesk/remotedesk"
	"github.com/fixdesk/remotedesk/config"
	"github.com/fixdesk/remotedesk/metrics"
	"github.com/fixdesk/remotedesk/shared"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTrack struct {
	*webrtc.TrackLocalStaticSample
}

func (staticTrack) OnEnded(func(error)) {}
func (staticTrack) Close() error        { return nil }

func staticScreen(t *testing.T) remotedesk.MediaAcquirer {
	t.Helper()
	return func(context.Context) ([]remotedesk.LocalTrack, error) {
		inner, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}, "video", "screen",
		)
		if err != nil {
			return nil, err
		}
		return []remotedesk.LocalTrack{staticTrack{inner}}, nil
	}
}

type recordingDriver struct {
	mu     sync.Mutex
	clicks int
	keys   []string
}

func (d *recordingDriver) ScreenSize() (int, int) { return 1920, 1080 }
func (d *recordingDriver) MoveTo(int, int)        {}

func (d *recordingDriver) Click() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clicks++
}

func (d *recordingDriver) KeyTap(key string, _ ...string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.keys = append(d.keys, key)
	return nil
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.WebRTC.ICEServers = nil
	cfg.WebRTC.IncludeLoopback = true
	return cfg
}

func TestShareAgentValidation(t *testing.T) {
	printer, _, _ := terminal(t, "")
	_, err := (&ShareAgent{}).Spawn(context.Background())
	assert.ErrorIs(t, err, shared.ErrNoLogger)
	_, err = (&ShareAgent{Logger: shared.NewNopLogger()}).Spawn(context.Background())
	assert.ErrorIs(t, err, shared.ErrNoConfig)
	_, err = (&ShareAgent{Logger: shared.NewNopLogger(), Config: testConfig(), Printer: printer}).Spawn(context.Background())
	assert.Error(t, err)
}

func TestShareAgentBadPolicy(t *testing.T) {
	printer, _, _ := terminal(t, "")
	cfg := testConfig()
	cfg.Executor.Policy = "wrap"
	a := &ShareAgent{Logger: shared.NewNopLogger(), Printer: printer, Signaler: newChanSignaler(), Config: cfg}
	_, err := a.Spawn(context.Background())
	assert.Error(t, err)
}

func TestShareAgentExecutesRemoteCommands(t *testing.T) {
	if testing.Short() {
		t.Skip("peer-to-peer test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	printer, _, out := terminal(t, "")
	signaler := newChanSignaler()
	driver := &recordingDriver{}
	var slot remotedesk.Slot
	t.Cleanup(func() { _ = slot.Close() })
	agent := &ShareAgent{
		Logger:   shared.NewNopLogger(),
		Printer:  printer,
		Signaler: signaler,
		Config:   testConfig(),
		Metrics:  metrics.NewCollector(),
		Slot:     &slot,
		Media:    staticScreen(t),
		Driver:   driver,
	}

	type spawned struct {
		done <-chan struct{}
		err  error
	}
	result := make(chan spawned, 1)
	go func() {
		done, err := agent.Spawn(ctx)
		result <- spawned{done, err}
	}()

	responder, err := remotedesk.NewSession(ctx, shared.NewNopLogger(), remotedesk.SessionConfig{
		Role:            remotedesk.RoleResponder,
		IncludeLoopback: true,
	})
	require.NoError(t, err)
	defer responder.Close()

	var offer string
	select {
	case offer = <-signaler.published:
	case <-ctx.Done():
		t.Fatal("no offer published")
	}
	answer, err := responder.AcceptOffer(ctx, offer)
	require.NoError(t, err)
	signaler.incoming <- "not an answer"
	signaler.incoming <- answer

	var got spawned
	select {
	case got = <-result:
	case <-ctx.Done():
		t.Fatal("share agent never connected")
	}
	require.NoError(t, got.err)
	assert.Equal(t, 1, signaler.retries)
	assert.Same(t, agent.Session(), slot.Current())
	assert.Contains(t, out.String(), "Connected")

	select {
	case <-responder.Connected():
	case <-ctx.Done():
		t.Fatal("responder never connected")
	}
	require.NoError(t, responder.Send(remotedesk.ClickCommand()))
	require.NoError(t, responder.Send(remotedesk.KeyCommand("Enter")))
	require.Eventually(t, func() bool {
		driver.mu.Lock()
		defer driver.mu.Unlock()
		return driver.clicks == 1 && len(driver.keys) == 1
	}, 10*time.Second, 20*time.Millisecond)
	driver.mu.Lock()
	assert.Equal(t, []string{"enter"}, driver.keys)
	driver.mu.Unlock()

	require.NoError(t, agent.Close())
	select {
	case <-got.done:
	case <-time.After(5 * time.Second):
		t.Fatal("done channel not closed")
	}
}

func TestNewSessionPrintsOneLinePerEnd(t *testing.T) {
	printer, _, out := terminal(t, "")
	session, err := newSession(context.Background(), shared.NewNopLogger(), testConfig(), nil, printer, remotedesk.RoleResponder, nil)
	require.NoError(t, err)
	require.NoError(t, session.Close())
	assert.Equal(t, "🔌 Session closed.\n", out.String())
}
