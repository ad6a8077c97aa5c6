package remotedesk

import (
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordedActionJSON(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	action := RecordedAction{Command: MoveCommand(0.1, 0.9), At: at}

	data, err := sonic.Marshal(action)
	require.NoError(t, err)
	assert.JSONEq(t, `{"channel":"robot-mouse-move","payload":{"x":0.1,"y":0.9},"at":"2026-03-01T10:30:00Z"}`, string(data))

	var decoded RecordedAction
	require.NoError(t, sonic.Unmarshal(data, &decoded))
	assert.Equal(t, action.Command, decoded.Command)
	assert.True(t, at.Equal(decoded.At))
}

func TestTicketAddLog(t *testing.T) {
	var ticket Ticket
	ticket.AddLog(time.Date(2026, 1, 2, 14, 30, 15, 0, time.UTC), "Ticket created by %s.", "ana")
	require.Len(t, ticket.Logs, 1)
	assert.Equal(t, "14:30:15 - Ticket created by ana.", ticket.Logs[0])
}

func TestEnumsValid(t *testing.T) {
	assert.True(t, TicketStatusAIResolved.Valid())
	assert.False(t, TicketStatus("Closed").Valid())
	assert.True(t, PriorityHigh.Valid())
	assert.False(t, Priority("Urgent").Valid())
}
