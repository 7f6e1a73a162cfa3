// Package tui renders login flow progress in the terminal: a checklist
// of completed stages, a spinner on the current one, and the link plus
// user code when a flow needs the user to act in a browser. It observes
// the flow through a message channel; the auth packages never import it.
package tui

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wintermelt/minecraft_session_keeper/internal/flow"
)

// StageMsg reports a flow stage transition.
type StageMsg struct {
	Stage flow.Stage
}

// LinkMsg carries the URL (and for the device flow, the user code) the
// user must visit to continue.
type LinkMsg struct {
	URL      string
	UserCode string
}

// DoneMsg reports the final outcome. Username is set on success.
type DoneMsg struct {
	Username string
	Err      error
}

// Model is the Bubble Tea model for a running login flow.
type Model struct {
	title   string
	events  <-chan tea.Msg
	cancel  func()
	spinner spinner.Model
	styles  Styles
	keys    keyMap

	completed []flow.Stage
	current   flow.Stage
	running   bool

	link     *LinkMsg
	username string
	err      error
	done     bool
}

type keyMap struct {
	Quit key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Quit: key.NewBinding(
			key.WithKeys("q", "esc", "ctrl+c"),
			key.WithHelp("q", "cancel"),
		),
	}
}

// New creates a progress model. events feeds StageMsg, LinkMsg and
// DoneMsg from the flow adapter; cancel is invoked when the user quits
// before the flow finishes.
func New(title string, events <-chan tea.Msg, cancel func()) Model {
	s := spinner.New()
	s.Spinner = spinner.Line
	s.Style = lipgloss.NewStyle().Foreground(colorCyan)

	return Model{
		title:   title,
		events:  events,
		cancel:  cancel,
		spinner: s,
		styles:  DefaultStyles(),
		keys:    defaultKeyMap(),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listen)
}

// listen blocks on the event channel and hands the next flow message to
// Update. A closed channel ends the subscription.
func (m Model) listen() tea.Msg {
	msg, ok := <-m.events
	if !ok {
		return nil
	}
	return msg
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			if !m.done && m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case StageMsg:
		if msg.Stage.Terminal() {
			m.running = false
			return m, m.listen
		}
		if m.running {
			m.completed = append(m.completed, m.current)
		}
		m.current = msg.Stage
		m.running = true
		return m, m.listen

	case LinkMsg:
		link := msg
		m.link = &link
		return m, m.listen

	case DoneMsg:
		if m.running {
			m.completed = append(m.completed, m.current)
			m.running = false
		}
		m.done = true
		m.username = msg.Username
		m.err = msg.Err
		return m, tea.Quit
	}

	return m, nil
}

// Err returns the flow error, if any, once the program has finished.
func (m Model) Err() error { return m.err }

// View implements tea.Model.
func (m Model) View() string {
	lines := []string{m.styles.Title.Render(m.title), ""}

	for _, s := range m.completed {
		lines = append(lines, m.styles.DoneMark.Render("  ✓ ")+m.styles.DoneStep.Render(StageLabel(s)))
	}
	if m.running {
		lines = append(lines, "  "+m.spinner.View()+" "+m.styles.Step.Render(StageLabel(m.current)))
	}

	if m.link != nil && !m.done {
		lines = append(lines, "", m.styles.Hint.Render("  Open "+m.link.URL+" to continue"))
		if m.link.UserCode != "" {
			lines = append(lines, m.styles.Hint.Render("  and enter the code ")+m.styles.Code.Render(m.link.UserCode))
		}
	}

	if m.done {
		lines = append(lines, "")
		if m.err != nil {
			lines = append(lines, m.styles.Error.Render("  ✗ "+m.err.Error()))
		} else {
			lines = append(lines, m.styles.Success.Render("  Logged in as "+m.username))
		}
	} else {
		lines = append(lines, "", m.styles.Hint.Render("  q to cancel"))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...) + "\n"
}

// StageLabel maps flow stages to what the user sees. The plain-text
// login path reuses it.
func StageLabel(s flow.Stage) string {
	switch s {
	case flow.StageInitial:
		return "Preparing login"
	case flow.StageAwaitAuthCode:
		return "Waiting for the browser sign-in"
	case flow.StagePollDeviceCode:
		return "Waiting for you to approve the device"
	case flow.StageRefreshToken:
		return "Renewing the saved login"
	case flow.StagePasswordAuth:
		return "Authenticating"
	case flow.StageXboxAuth:
		return "Signing in to Xbox Live"
	case flow.StageXSTSAuth:
		return "Authorizing with Xbox services"
	case flow.StageMinecraftAuth:
		return "Signing in to Minecraft"
	default:
		return s.String()
	}
}

// Run drives the model to completion and returns the flow error, if
// any. The caller owns the event channel and closes nothing here.
func Run(title string, events <-chan tea.Msg, cancel func()) error {
	p := tea.NewProgram(New(title, events, cancel))
	final, err := p.Run()
	if err != nil {
		return err
	}
	if m, ok := final.(Model); ok {
		return m.Err()
	}
	return nil
}
