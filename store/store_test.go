package store

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/fixdesk/remotedesk"
	"github.com/fixdesk/remotedesk/config"
	"github.com/fixdesk/remotedesk/shared"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clock hands out strictly increasing millisecond timestamps.
type clock struct{ t time.Time }

func (c *clock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newClock() *clock {
	return &clock{t: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
}

func openSQLite(t *testing.T) Repository {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "data", "remotedesk.db"))
	require.NoError(t, err)
	s.now = newClock().now
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func openRedis(t *testing.T) Repository {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	prefix := "remotedesk-test-" + NewTicketID()
	s := NewRedisWithClient(client, prefix)
	s.now = newClock().now
	t.Cleanup(func() {
		ctx := context.Background()
		keys, _ := client.Keys(ctx, prefix+":*").Result()
		if len(keys) > 0 {
			client.Del(ctx, keys...)
		}
		_ = s.Close()
	})
	return s
}

func forEachDriver(t *testing.T, fn func(t *testing.T, repo Repository)) {
	drivers := map[string]func(t *testing.T) Repository{
		"sqlite": openSQLite,
		"redis":  openRedis,
	}
	for name, open := range drivers {
		t.Run(name, func(t *testing.T) {
			fn(t, open(t))
		})
	}
}

func sampleActions() []remotedesk.RecordedAction {
	at := time.Date(2026, 3, 1, 9, 0, 0, 123456789, time.UTC)
	return []remotedesk.RecordedAction{
		{Command: remotedesk.MoveCommand(0.25, 0.75), At: at},
		{Command: remotedesk.ClickCommand(), At: at.Add(time.Millisecond)},
		{Command: remotedesk.KeyCommand("Enter"), At: at.Add(2 * time.Millisecond)},
	}
}

func TestTickets(t *testing.T) {
	forEachDriver(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()

		tickets, err := repo.GetTickets(ctx)
		require.NoError(t, err)
		assert.Empty(t, tickets)

		first, err := repo.CreateTicket(ctx, remotedesk.Ticket{
			Title:       "Printer offline",
			Description: "Office printer shows offline",
			ReportedBy:  "alex",
		})
		require.NoError(t, err)
		assert.Regexp(t, regexp.MustCompile(`^TICK-[A-Z0-9]{8}$`), first.ID)
		assert.Equal(t, remotedesk.TicketStatusNew, first.Status)
		assert.Equal(t, remotedesk.PriorityMedium, first.Priority)

		second, err := repo.CreateTicket(ctx, remotedesk.Ticket{
			Title:    "VPN drops",
			Status:   remotedesk.TicketStatusAIResolved,
			Priority: remotedesk.PriorityHigh,
			Logs:     []string{"09:00:00 - created"},
		})
		require.NoError(t, err)

		got, err := repo.GetTicketByID(ctx, second.ID)
		require.NoError(t, err)
		assert.Equal(t, second, got)

		tickets, err = repo.GetTickets(ctx)
		require.NoError(t, err)
		require.Len(t, tickets, 2)
		assert.Equal(t, second.ID, tickets[0].ID)
		assert.Equal(t, first.ID, tickets[1].ID)

		got.AddLog(time.Date(2026, 3, 1, 9, 5, 0, 0, time.UTC), "ran %s", "ipconfig")
		got.Status = remotedesk.TicketStatusResolved
		require.NoError(t, repo.UpdateTicket(ctx, *got))
		updated, err := repo.GetTicketByID(ctx, got.ID)
		require.NoError(t, err)
		assert.Equal(t, remotedesk.TicketStatusResolved, updated.Status)
		assert.Equal(t, []string{"09:00:00 - created", "09:05:00 - ran ipconfig"}, updated.Logs)
		assert.True(t, updated.CreatedAt.Equal(second.CreatedAt))
	})
}

func TestTicketErrors(t *testing.T) {
	forEachDriver(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()

		_, err := repo.GetTicketByID(ctx, "TICK-MISSING0")
		assert.ErrorIs(t, err, shared.ErrNotFound)

		_, err = repo.CreateTicket(ctx, remotedesk.Ticket{Title: "  "})
		assert.ErrorIs(t, err, shared.ErrInvalidTicket)
		_, err = repo.CreateTicket(ctx, remotedesk.Ticket{Title: "x", Status: "Closed"})
		assert.ErrorIs(t, err, shared.ErrInvalidTicket)
		_, err = repo.CreateTicket(ctx, remotedesk.Ticket{Title: "x", Priority: "Urgent"})
		assert.ErrorIs(t, err, shared.ErrInvalidTicket)

		assert.ErrorIs(t, repo.UpdateTicket(ctx, remotedesk.Ticket{ID: "TICK-MISSING0", Title: "x"}), shared.ErrNotFound)
	})
}

func TestSolutions(t *testing.T) {
	forEachDriver(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()

		saved, err := repo.CreateSolution(ctx, remotedesk.NewSolution{
			ProblemDescription:  "  Outlook keeps asking for password ",
			SolutionDescription: "Clear cached credentials",
			Actions:             sampleActions(),
		})
		require.NoError(t, err)
		assert.NotEmpty(t, saved.ID)
		assert.Equal(t, "Outlook keeps asking for password", saved.ProblemDescription)

		empty, err := repo.CreateSolution(ctx, remotedesk.NewSolution{
			ProblemDescription:  "Printer offline",
			SolutionDescription: "Restart spooler",
		})
		require.NoError(t, err)
		assert.Empty(t, empty.Actions)

		got, err := repo.GetSolution(ctx, saved.ID)
		require.NoError(t, err)
		assert.Equal(t, saved, got)

		found, err := repo.FindSolutions(ctx, "OUTLOOK password")
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, saved.ID, found[0].ID)
		assert.Equal(t, sampleActions(), found[0].Actions)

		found, err = repo.FindSolutions(ctx, "outlook printer")
		require.NoError(t, err)
		assert.Empty(t, found)

		found, err = repo.FindSolutions(ctx, "")
		require.NoError(t, err)
		require.Len(t, found, 2)
		assert.Equal(t, empty.ID, found[0].ID)

		accented, err := repo.CreateSolution(ctx, remotedesk.NewSolution{
			ProblemDescription:  "Écran noir après mise à jour",
			SolutionDescription: "Réinstaller le pilote graphique",
		})
		require.NoError(t, err)
		for _, q := range []string{"écran", "ÉCRAN", "APRÈS écran"} {
			found, err = repo.FindSolutions(ctx, q)
			require.NoError(t, err)
			require.Len(t, found, 1, q)
			assert.Equal(t, accented.ID, found[0].ID)
		}

		_, err = repo.GetSolution(ctx, "missing")
		assert.ErrorIs(t, err, shared.ErrNotFound)

		_, err = repo.CreateSolution(ctx, remotedesk.NewSolution{ProblemDescription: "x"})
		assert.ErrorIs(t, err, shared.ErrInvalidSolution)
	})
}

func TestActionsCodec(t *testing.T) {
	blob, err := encodeActions(sampleActions())
	require.NoError(t, err)
	decoded, err := decodeActions(blob)
	require.NoError(t, err)
	assert.Equal(t, sampleActions(), decoded)

	blob, err = encodeActions(nil)
	require.NoError(t, err)
	decoded, err = decodeActions(blob)
	require.NoError(t, err)
	assert.Empty(t, decoded)

	_, err = decodeActions([]byte{0xff})
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Path = filepath.Join(t.TempDir(), "open.db")
	repo, err := Open(context.Background(), cfg, shared.NewNopLogger())
	require.NoError(t, err)
	require.NoError(t, repo.Ping(context.Background()))
	require.NoError(t, repo.Close())

	cfg.Store.Driver = "lowdb"
	_, err = Open(context.Background(), cfg, shared.NewNopLogger())
	assert.Error(t, err)

	_, err = Open(context.Background(), nil, shared.NewNopLogger())
	assert.ErrorIs(t, err, shared.ErrNoConfig)
}

func TestNewTicketID(t *testing.T) {
	seen := map[string]bool{}
	for range 100 {
		id := NewTicketID()
		assert.Regexp(t, `^TICK-[A-Z0-9]{8}$`, id)
		seen[id] = true
	}
	assert.Greater(t, len(seen), 95)
}
