package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/beamcast/beamcast/pkg/media"
	"github.com/beamcast/beamcast/pkg/playback"
	"github.com/beamcast/beamcast/pkg/protocol"
	"github.com/beamcast/beamcast/pkg/session"
)

// hostApp bundles the wired host engine with everything the TUI needs to
// drive it.
type hostApp struct {
	config      Config
	host        *session.Host
	room        string
	self        protocol.PeerID
	provider    media.CaptureProvider
	constraints media.CaptureConstraints
	quality     *QualityPreset
	uploader    media.Uploader // nil when signaling over Redis
	mediaPath   string
	ctx         context.Context
}

// watchCommand is what a viewer runs to join this room.
func (app *hostApp) watchCommand() string {
	cmd := "beamcast --watch " + app.room
	if app.config.RedisAddr != "" {
		return cmd + " --redis " + app.config.RedisAddr
	}
	if app.config.SignalURL != "" && app.config.SignalURL != LocalSignalServer {
		return cmd + " --signal " + app.config.SignalURL
	}
	return cmd
}

// copyToClipboard pipes text into the platform clipboard helper.
func copyToClipboard(text string) error {
	for _, name := range []string{"pbcopy", "xclip"} {
		path, err := exec.LookPath(name)
		if err != nil {
			continue
		}
		cmd := exec.Command(path)
		if name == "xclip" {
			cmd = exec.Command(path, "-selection", "clipboard")
		}
		cmd.Stdin = strings.NewReader(text)
		return cmd.Run()
	}
	return fmt.Errorf("no clipboard helper found")
}

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12"))

	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("10"))

	normalStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("7"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("14"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))

	urlStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("13"))

	viewerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	keyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("14"))

	keySepStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))
)

// Messages
type tickMsg time.Time

type shareStartedMsg struct {
	mode media.Mode
}

type shareErrorMsg struct {
	err string
}

type stoppedMsg struct{}

// Model
type model struct {
	app *hostApp

	mode     media.Mode
	starting bool

	viewerCount int
	playState   playback.State
	startTime   time.Time
	lastError   string

	copyMessage string
	copyMsgTime time.Time

	width  int
	height int
}

func initialModel(app *hostApp) model {
	return model{app: app}
}

func (m model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		tickCmd(),
		tea.SetWindowTitle("Beamcast - " + m.app.room),
	}
	// Flags that name a source mean the host wants to go live immediately.
	if m.app.mediaPath != "" {
		cmds = append(cmds, m.startFileCmd())
	} else if m.app.config.IVFPath != "" {
		cmds = append(cmds, m.startCaptureCmd())
	}
	return tea.Batch(cmds...)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) startCaptureCmd() tea.Cmd {
	app := m.app
	return func() tea.Msg {
		if err := app.host.StartCapture(app.ctx, app.provider, app.constraints); err != nil {
			return shareErrorMsg{err: err.Error()}
		}
		return shareStartedMsg{mode: media.ModeScreen}
	}
}

func (m model) startFileCmd() tea.Cmd {
	app := m.app
	return func() tea.Msg {
		if err := app.host.StartFile(app.ctx, app.mediaPath, app.uploader); err != nil {
			return shareErrorMsg{err: err.Error()}
		}
		return shareStartedMsg{mode: media.ModeFile}
	}
}

func (m model) stopCmd() tea.Cmd {
	app := m.app
	return func() tea.Msg {
		app.host.Stop(app.ctx)
		return stoppedMsg{}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		m.mode = m.app.host.Mode()
		m.viewerCount = m.app.host.Viewers()
		if m.mode == media.ModeFile {
			m.playState = m.app.host.PlaybackState()
		}
		if m.copyMessage != "" && time.Since(m.copyMsgTime) > 2*time.Second {
			m.copyMessage = ""
		}
		return m, tickCmd()

	case shareStartedMsg:
		m.starting = false
		m.mode = msg.mode
		m.startTime = time.Now()
		m.lastError = ""
		return m, nil

	case shareErrorMsg:
		m.starting = false
		m.mode = m.app.host.Mode()
		m.lastError = msg.err
		return m, nil

	case stoppedMsg:
		m.mode = media.ModeNone
		m.viewerCount = 0
		return m, nil
	}

	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "s":
		if m.starting {
			return m, nil
		}
		if m.mode == media.ModeScreen {
			return m, m.stopCmd()
		}
		m.starting = true
		m.lastError = ""
		return m, m.startCaptureCmd()

	case "f":
		if m.starting {
			return m, nil
		}
		if m.mode == media.ModeFile {
			return m, m.stopCmd()
		}
		if m.app.mediaPath == "" {
			m.lastError = "no media file; start with --media FILE"
			return m, nil
		}
		if m.app.uploader == nil {
			m.lastError = "file broadcast needs the relay; Redis signaling carries no media"
			return m, nil
		}
		m.starting = true
		m.lastError = ""
		return m, m.startFileCmd()

	case " ":
		if m.mode != media.ModeFile {
			return m, nil
		}
		if m.playState.Paused {
			m.app.host.Play(m.app.ctx)
		} else {
			m.app.host.Pause(m.app.ctx)
		}
		m.playState = m.app.host.PlaybackState()
		return m, nil

	case "left":
		if m.mode == media.ModeFile {
			m.app.host.SeekBy(m.app.ctx, -5)
			m.playState = m.app.host.PlaybackState()
		}
		return m, nil

	case "right":
		if m.mode == media.ModeFile {
			m.app.host.SeekBy(m.app.ctx, 5)
			m.playState = m.app.host.PlaybackState()
		}
		return m, nil

	case "c":
		if err := copyToClipboard(m.app.watchCommand()); err != nil {
			m.lastError = "copy failed: " + err.Error()
		} else {
			m.copyMessage = "Copied!"
			m.copyMsgTime = time.Now()
		}
		return m, nil
	}

	return m, nil
}

func (m model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Beamcast"))
	b.WriteString(dimStyle.Render(" - screen sharing & synced playback"))
	b.WriteString("\n\n")

	b.WriteString(m.renderRoomLine())
	b.WriteString("\n")
	b.WriteString(m.renderStatusLine())
	b.WriteString("\n")

	if m.lastError != "" {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render("Error: " + m.lastError))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.renderHelp())

	return b.String()
}

func (m model) renderRoomLine() string {
	var b strings.Builder

	b.WriteString(statusStyle.Render("Room: "))
	b.WriteString(normalStyle.Render(m.app.room))
	b.WriteString("  ")
	b.WriteString(statusStyle.Render("Watch: "))
	b.WriteString(urlStyle.Render(m.app.watchCommand()))
	if m.copyMessage != "" {
		b.WriteString("  ")
		b.WriteString(selectedStyle.Render(m.copyMessage))
	}
	return b.String()
}

func (m model) renderStatusLine() string {
	var b strings.Builder

	switch {
	case m.starting:
		b.WriteString(statusStyle.Render("Starting... "))
		b.WriteString(dimStyle.Render("please wait"))

	case m.mode == media.ModeScreen:
		b.WriteString(statusStyle.Render("Sharing: "))
		source := "screen"
		if m.app.config.IVFPath != "" {
			source = truncate(m.app.config.IVFPath, 30)
		}
		b.WriteString(selectedStyle.Render(source))
		b.WriteString("  ")
		b.WriteString(statusStyle.Render("Quality: "))
		b.WriteString(normalStyle.Render(m.app.quality.Name))
		b.WriteString("  ")
		b.WriteString(m.renderViewers())
		b.WriteString("  ")
		b.WriteString(statusStyle.Render("Up: "))
		b.WriteString(normalStyle.Render(formatPosition(time.Since(m.startTime).Seconds())))

	case m.mode == media.ModeFile:
		b.WriteString(statusStyle.Render("Broadcasting: "))
		b.WriteString(selectedStyle.Render(truncate(m.app.mediaPath, 30)))
		b.WriteString("  ")
		state := "playing"
		if m.playState.Paused {
			state = "paused"
		}
		b.WriteString(normalStyle.Render(formatPosition(m.playState.Position)))
		b.WriteString(dimStyle.Render(" " + state))
		b.WriteString("  ")
		b.WriteString(m.renderViewers())

	default:
		b.WriteString(dimStyle.Render("Not sharing. Press "))
		b.WriteString(keyStyle.Render("s"))
		b.WriteString(dimStyle.Render(" to share or "))
		b.WriteString(keyStyle.Render("f"))
		b.WriteString(dimStyle.Render(" to broadcast a file."))
	}
	return b.String()
}

func (m model) renderViewers() string {
	if m.viewerCount == 0 {
		return statusStyle.Render("Viewers: ") + dimStyle.Render("waiting...")
	}
	return statusStyle.Render("Viewers: ") + viewerStyle.Render(fmt.Sprintf("%d", m.viewerCount))
}

func (m model) renderHelp() string {
	sep := keySepStyle.Render(" · ")
	binds := []string{
		keyStyle.Render("s") + helpStyle.Render(" share"),
		keyStyle.Render("f") + helpStyle.Render(" file"),
		keyStyle.Render("space") + helpStyle.Render(" play/pause"),
		keyStyle.Render("←/→") + helpStyle.Render(" seek 5s"),
		keyStyle.Render("c") + helpStyle.Render(" copy"),
		keyStyle.Render("q") + helpStyle.Render(" quit"),
	}
	return strings.Join(binds, sep)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// RunTUI starts the host interface. Logs go to a file so engine output does
// not corrupt the display.
func RunTUI(app *hostApp) error {
	logFile, err := os.Create("beamcast-debug.log")
	if err != nil {
		log.SetOutput(io.Discard)
	} else {
		log.SetOutput(logFile)
		log.Printf("=== Beamcast started at %s ===", time.Now().Format(time.RFC3339))
		defer logFile.Close()
	}
	defer log.SetOutput(os.Stderr)

	p := tea.NewProgram(
		initialModel(app),
		tea.WithAltScreen(),
	)

	_, runErr := p.Run()
	return runErr
}
