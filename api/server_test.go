package api

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/fixdesk/remotedesk"
	"github.com/fixdesk/remotedesk/metrics"
	"github.com/fixdesk/remotedesk/shared"
	"github.com/fixdesk/remotedesk/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

type harness struct {
	client *fasthttp.Client
	repo   store.Repository
}

func newHarness(t *testing.T, repo store.Repository) *harness {
	t.Helper()
	if repo == nil {
		sqlite, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = sqlite.Close() })
		repo = sqlite
	}
	srv, err := NewServer(shared.NewNopLogger(), repo, metrics.NewCollector())
	require.NoError(t, err)

	ln := fasthttputil.NewInmemoryListener()
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return &harness{
		client: &fasthttp.Client{Dial: func(string) (net.Conn, error) { return ln.Dial() }},
		repo:   repo,
	}
}

func (h *harness) do(t *testing.T, method, uri string, body any) (int, []byte) {
	t.Helper()
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI("http://remotedesk" + uri)
	req.Header.SetMethod(method)
	switch b := body.(type) {
	case nil:
	case string:
		req.SetBodyString(b)
	default:
		data, err := sonic.Marshal(b)
		require.NoError(t, err)
		req.SetBody(data)
	}
	require.NoError(t, h.client.DoTimeout(req, resp, 5*time.Second))
	return resp.StatusCode(), append([]byte(nil), resp.Body()...)
}

func TestTicketRoutes(t *testing.T) {
	h := newHarness(t, nil)

	code, body := h.do(t, fasthttp.MethodPost, "/tickets", remotedesk.Ticket{Title: "Mouse lag", ReportedBy: "sam"})
	require.Equal(t, fasthttp.StatusCreated, code, string(body))
	var created remotedesk.Ticket
	require.NoError(t, sonic.Unmarshal(body, &created))
	assert.Equal(t, remotedesk.TicketStatusNew, created.Status)

	code, body = h.do(t, fasthttp.MethodGet, "/tickets/"+created.ID, nil)
	require.Equal(t, fasthttp.StatusOK, code)
	var got remotedesk.Ticket
	require.NoError(t, sonic.Unmarshal(body, &got))
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "sam", got.ReportedBy)

	code, body = h.do(t, fasthttp.MethodGet, "/tickets", nil)
	require.Equal(t, fasthttp.StatusOK, code)
	var list []remotedesk.Ticket
	require.NoError(t, sonic.Unmarshal(body, &list))
	assert.Len(t, list, 1)

	code, _ = h.do(t, fasthttp.MethodGet, "/tickets/TICK-NOPE0000", nil)
	assert.Equal(t, fasthttp.StatusNotFound, code)

	code, _ = h.do(t, fasthttp.MethodPost, "/tickets", remotedesk.Ticket{})
	assert.Equal(t, fasthttp.StatusBadRequest, code)

	code, _ = h.do(t, fasthttp.MethodPost, "/tickets", "{not json")
	assert.Equal(t, fasthttp.StatusBadRequest, code)

	code, _ = h.do(t, fasthttp.MethodDelete, "/tickets", nil)
	assert.Equal(t, fasthttp.StatusMethodNotAllowed, code)
}

func TestSolutionRoutes(t *testing.T) {
	h := newHarness(t, nil)

	code, body := h.do(t, fasthttp.MethodPost, "/solutions",
		`{"problemDescription":"VPN drops","solutionDescription":"Reset adapter","actions":[
			{"channel":"robot-mouse-move","payload":{"x":0.5,"y":0.25},"at":"2026-03-01T09:00:00Z"},
			{"channel":"robot-key-tap","payload":"Enter","at":"2026-03-01T09:00:01Z"}]}`)
	require.Equal(t, fasthttp.StatusCreated, code, string(body))
	var sol remotedesk.Solution
	require.NoError(t, sonic.Unmarshal(body, &sol))
	require.Len(t, sol.Actions, 2)
	assert.Equal(t, remotedesk.MoveCommand(0.5, 0.25), sol.Actions[0].Command)

	code, body = h.do(t, fasthttp.MethodGet, "/solutions?q=vpn", nil)
	require.Equal(t, fasthttp.StatusOK, code)
	var found []remotedesk.Solution
	require.NoError(t, sonic.Unmarshal(body, &found))
	require.Len(t, found, 1)
	assert.Equal(t, sol.ID, found[0].ID)

	code, _ = h.do(t, fasthttp.MethodGet, "/solutions/"+sol.ID, nil)
	assert.Equal(t, fasthttp.StatusOK, code)

	code, _ = h.do(t, fasthttp.MethodPost, "/solutions", `{"problemDescription":"","solutionDescription":"x","actions":[]}`)
	assert.Equal(t, fasthttp.StatusBadRequest, code)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t, nil)

	code, _ := h.do(t, fasthttp.MethodGet, "/healthz", nil)
	assert.Equal(t, fasthttp.StatusOK, code)

	code, _ = h.do(t, fasthttp.MethodGet, "/nowhere", nil)
	assert.Equal(t, fasthttp.StatusNotFound, code)

	code, body := h.do(t, fasthttp.MethodGet, "/metrics", nil)
	require.Equal(t, fasthttp.StatusOK, code)
	assert.Contains(t, string(body), `remotedesk_api_requests_total{code="200",route="/healthz"} 1`)
	assert.Contains(t, string(body), `remotedesk_api_requests_total{code="404",route="other"} 1`)
}

// brokenRepo fails every call.
type brokenRepo struct{ store.Repository }

func (brokenRepo) GetTickets(context.Context) ([]remotedesk.Ticket, error) {
	return nil, errors.Join(shared.ErrStorage, errors.New("disk gone"))
}

func (brokenRepo) Ping(context.Context) error { return errors.New("disk gone") }

func TestStorageFailures(t *testing.T) {
	h := newHarness(t, brokenRepo{})

	code, body := h.do(t, fasthttp.MethodGet, "/tickets", nil)
	assert.Equal(t, fasthttp.StatusInternalServerError, code)
	assert.NotContains(t, string(body), "disk gone")

	code, _ = h.do(t, fasthttp.MethodGet, "/healthz", nil)
	assert.Equal(t, fasthttp.StatusServiceUnavailable, code)
}

func TestNewServerValidation(t *testing.T) {
	_, err := NewServer(nil, brokenRepo{}, nil)
	assert.ErrorIs(t, err, shared.ErrNoLogger)
	_, err = NewServer(shared.NewNopLogger(), nil, nil)
	assert.ErrorIs(t, err, shared.ErrNoStore)
}
