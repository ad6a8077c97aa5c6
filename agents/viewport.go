package agents

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fixdesk/remotedesk/capture"
	"github.com/fixdesk/remotedesk/recorder"
)

// Header and footer each take one terminal row around the surface.
const chromeRows = 2

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("231")).Background(lipgloss.Color("24")).Padding(0, 1)
	recStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("231")).Background(lipgloss.Color("160")).Padding(0, 1)
	footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	bodyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Align(lipgloss.Center, lipgloss.Center)
)

type captureMsg struct{ captured bool }

type sessionEndedMsg struct{ err error }

// teaLock answers capture requests by confirming them on the program loop.
// Terminals have no real pointer lock, so capture is granted immediately.
type teaLock struct {
	send func(tea.Msg)
}

func (l teaLock) RequestCapture() {
	go l.send(captureMsg{captured: true})
}

var teaKeys = map[tea.KeyType]string{
	tea.KeyEnter:     "Enter",
	tea.KeyTab:       "Tab",
	tea.KeyBackspace: "Backspace",
	tea.KeyDelete:    "Delete",
	tea.KeyInsert:    "Insert",
	tea.KeyHome:      "Home",
	tea.KeyEnd:       "End",
	tea.KeyPgUp:      "PageUp",
	tea.KeyPgDown:    "PageDown",
	tea.KeyUp:        "ArrowUp",
	tea.KeyDown:      "ArrowDown",
	tea.KeyLeft:      "ArrowLeft",
	tea.KeyRight:     "ArrowRight",
	tea.KeyEsc:       "Escape",
	tea.KeySpace:     " ",
	tea.KeyF1:        "F1",
	tea.KeyF2:        "F2",
	tea.KeyF3:        "F3",
	tea.KeyF4:        "F4",
	tea.KeyF5:        "F5",
	tea.KeyF6:        "F6",
	tea.KeyF7:        "F7",
	tea.KeyF8:        "F8",
	tea.KeyF9:        "F9",
	tea.KeyF10:       "F10",
	tea.KeyF11:       "F11",
	tea.KeyF12:       "F12",
}

// browserKeys converts a terminal key press into browser key identifiers.
func browserKeys(msg tea.KeyMsg) []string {
	if msg.Type == tea.KeyRunes {
		keys := make([]string, 0, len(msg.Runes))
		for _, r := range msg.Runes {
			keys = append(keys, string(r))
		}
		return keys
	}
	if key, ok := teaKeys[msg.Type]; ok {
		return []string{key}
	}
	return nil
}

// viewportModel renders the control surface and feeds terminal input into
// the capture dispatchers.
type viewportModel struct {
	surface  *capture.Dispatcher
	window   *capture.Dispatcher
	encoder  *capture.Encoder
	recorder *recorder.Recorder
	mode     capture.Mode
	peer     string

	width, height int
	lastX, lastY  int
	havePos       bool
	captured      bool
	ended         bool
	endErr        error
}

func (m *viewportModel) Init() tea.Cmd { return nil }

func (m *viewportModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.encoder.SetViewport(m.bounds())
	case tea.MouseMsg:
		m.handleMouse(msg)
	case tea.KeyMsg:
		return m, m.handleKey(msg)
	case captureMsg:
		m.captured = msg.captured
		m.window.Dispatch(&capture.Event{Type: capture.EventCaptureChange, Captured: msg.captured})
	case sessionEndedMsg:
		m.ended = true
		m.endErr = msg.err
		return m, tea.Quit
	}
	return m, nil
}

// bounds is the surface area below the header and above the footer.
func (m *viewportModel) bounds() capture.Viewport {
	height := m.height - chromeRows
	if height < 0 {
		height = 0
	}
	return capture.Viewport{Left: 0, Top: 1, Width: float64(m.width), Height: float64(height)}
}

func (m *viewportModel) handleMouse(msg tea.MouseMsg) {
	// Cell centers keep normalized points strictly inside the surface.
	x, y := float64(msg.X)+0.5, float64(msg.Y)+0.5
	if !m.bounds().Contains(x, y) {
		return
	}
	switch {
	case msg.Action == tea.MouseActionMotion:
		ev := &capture.Event{Type: capture.EventPointerMove, ClientX: x, ClientY: y}
		if m.havePos {
			ev.MovementX = float64(msg.X - m.lastX)
			ev.MovementY = float64(msg.Y - m.lastY)
		}
		m.lastX, m.lastY, m.havePos = msg.X, msg.Y, true
		m.surface.Dispatch(ev)
	case msg.Action == tea.MouseActionPress && msg.Button == tea.MouseButtonLeft:
		m.lastX, m.lastY, m.havePos = msg.X, msg.Y, true
		m.surface.Dispatch(&capture.Event{Type: capture.EventClick, ClientX: x, ClientY: y})
	}
}

func (m *viewportModel) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.Type {
	case tea.KeyCtrlC:
		return tea.Quit
	case tea.KeyCtrlR:
		m.recorder.Toggle()
		return nil
	case tea.KeyEsc:
		if m.mode == capture.ModeExclusiveCapture && m.captured {
			m.captured = false
			m.window.Dispatch(&capture.Event{Type: capture.EventCaptureChange, Captured: false})
			return nil
		}
	}
	for _, key := range browserKeys(msg) {
		m.window.Dispatch(&capture.Event{Type: capture.EventKeyDown, Key: key})
	}
	return nil
}

func (m *viewportModel) View() string {
	if m.width == 0 {
		return "connecting..."
	}
	header := headerStyle.Render(fmt.Sprintf("remote control · %s · %s", m.peer, m.mode))
	if m.recorder.Recording() {
		header += recStyle.Render(fmt.Sprintf("● REC %d", m.recorder.Len()))
	} else if n := m.recorder.Len(); n > 0 {
		header += footerStyle.Render(fmt.Sprintf("  %d actions recorded", n))
	}

	var body string
	switch {
	case m.ended:
		body = "session ended"
	case m.mode == capture.ModeExclusiveCapture && !m.captured:
		body = "click to take control"
	case m.mode == capture.ModeExclusiveCapture:
		body = "in control · esc to release"
	default:
		body = "move and click here to control the remote screen"
	}
	height := m.height - chromeRows
	if height < 0 {
		height = 0
	}
	body = bodyStyle.Width(m.width).Height(height).Render(body)

	footer := footerStyle.Render(strings.Join([]string{"ctrl+r record", "ctrl+c quit"}, " · "))
	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
}
