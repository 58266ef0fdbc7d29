// Package tui is the terminal front end: a login screen, then a room list,
// message pane, and message box over the timeline store.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"

	"github.com/ThomasJRyan/Nitrix/internal/config"
	"github.com/ThomasJRyan/Nitrix/internal/notify"
	"github.com/ThomasJRyan/Nitrix/internal/session"
	"github.com/ThomasJRyan/Nitrix/internal/timeline"
	"github.com/ThomasJRyan/Nitrix/internal/tui/styles"
)

// Backend is what the main screen drives. *session.Controller implements it.
type Backend interface {
	Store() *timeline.Store
	Rooms(ctx context.Context) ([]session.Room, error)
	RoomsFromStore() []session.Room
	OpenRoom(roomID string)
	LoadHistory(ctx context.Context, roomID string) (int, error)
	LoadOlder(ctx context.Context, roomID string) (int, error)
	Send(ctx context.Context, roomID, body string) (string, error)
}

// SignalSource yields timeline signals. *notify.Hub implements it.
type SignalSource interface {
	Next(ctx context.Context) (notify.Signal, error)
}

// LoginFunc authenticates and returns a running backend.
type LoginFunc func(ctx context.Context, creds config.Credentials) (Backend, error)

type Config struct {
	Theme      string
	TimeFormat string
	// Credentials prefill the login screen. Complete credentials log in
	// without asking.
	Credentials config.Credentials
	Login       LoginFunc
	Signals     SignalSource
	// State, if set, remembers the last open room.
	State *config.StateStore
	// Remember, if set, is called with credentials that logged in.
	Remember func(config.Credentials) error
	Logger   zerolog.Logger
}

type screen int

const (
	screenLogin screen = iota
	screenMain
)

type focusArea int

const (
	focusRooms focusArea = iota
	focusInput
)

type Model struct {
	ctx    context.Context
	cfg    Config
	keys   keyMap
	logger zerolog.Logger

	messages styles.MessageStyles
	chrome   styles.ChromeStyles
	theme    styles.Theme

	width  int
	height int
	layout styles.Layout

	screen    screen
	login     loginForm
	loggingIn bool
	popup     string
	status    string

	backend    Backend
	store      *timeline.Store
	rooms      []session.Room
	cursor     int
	activeRoom string
	lastRoom   string
	focus      focusArea

	viewport viewport.Model
	input    textinput.Model
}

// NewModel builds the program model. ctx bounds every background request.
func NewModel(ctx context.Context, cfg Config) (*Model, error) {
	if cfg.Login == nil {
		return nil, errors.New("tui: login function is required")
	}
	if _, ok := styles.Themes[cfg.Theme]; cfg.Theme != "" && !ok {
		return nil, fmt.Errorf("invalid theme %q", cfg.Theme)
	}
	theme := styles.ThemeByName(cfg.Theme)

	input := textinput.New()
	input.Prompt = "> "
	input.Placeholder = "Type a message"
	input.CharLimit = 0

	m := &Model{
		ctx:      ctx,
		cfg:      cfg,
		keys:     defaultKeyMap(),
		logger:   cfg.Logger,
		messages: styles.NewMessageStyles(theme, cfg.TimeFormat),
		chrome:   styles.NewChromeStyles(theme),
		theme:    theme,
		screen:   screenLogin,
		login:    newLoginForm(cfg.Credentials),
		viewport: viewport.New(0, 0),
		input:    input,
	}

	if cfg.State != nil {
		st, err := cfg.State.Load()
		if err != nil {
			m.logger.Warn().Err(err).Msg("could not read client state")
		} else if !st.IsEmpty() {
			m.lastRoom = st.LastRoomID
		}
	}
	return m, nil
}

// Run starts the program and blocks until it exits.
func Run(ctx context.Context, cfg Config) error {
	model, err := NewModel(ctx, cfg)
	if err != nil {
		return err
	}
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = program.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (m *Model) Init() tea.Cmd {
	if m.cfg.Credentials.Complete() {
		m.loggingIn = true
		return tea.Batch(textinput.Blink, loginCmd(m.ctx, m.cfg.Login, m.cfg.Credentials))
	}
	return textinput.Blink
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(typed.Width, typed.Height)
		return m, nil
	case tea.KeyMsg:
		return m, m.handleKey(typed)
	case loginResultMsg:
		return m, m.handleLogin(typed)
	case roomsLoadedMsg:
		m.handleRooms(typed)
		if m.activeRoom == "" && m.lastRoom != "" && m.roomIndex(m.lastRoom) >= 0 {
			return m, m.openRoom(m.lastRoom)
		}
		return m, nil
	case historyLoadedMsg:
		m.handleHistory(typed)
		return m, nil
	case sentMsg:
		if typed.err != nil {
			m.showError("Could not send message", typed.err)
		}
		return m, nil
	case signalMsg:
		return m, m.handleSignal(notify.Signal(typed))
	}

	// Cursor blink and other component messages.
	var cmd tea.Cmd
	switch {
	case m.screen == screenLogin:
		f := m.login.focus
		m.login.inputs[f], cmd = m.login.inputs[f].Update(msg)
	case m.focus == focusInput:
		m.input, cmd = m.input.Update(msg)
	}
	return m, cmd
}

func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height
	m.layout = styles.ComputeLayout(width, height)
	m.viewport.Width = m.layout.MessageWidth
	m.viewport.Height = m.layout.PaneHeight
	m.input.Width = maxInt(m.layout.InputWidth-lipgloss.Width(m.input.Prompt)-1, 1)
	if m.store != nil {
		m.refreshMessages(false)
	}
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	if key.Matches(msg, m.keys.Quit) {
		return tea.Quit
	}
	if m.popup != "" {
		if key.Matches(msg, m.keys.Dismiss) {
			m.popup = ""
		}
		return nil
	}

	if m.screen == screenLogin {
		if m.loggingIn {
			return nil
		}
		cmd, submit := m.login.update(msg)
		if !submit {
			return cmd
		}
		creds := m.login.credentials()
		if !creds.Complete() {
			m.popup = "Login failed: all fields are required"
			return nil
		}
		m.loggingIn = true
		return loginCmd(m.ctx, m.cfg.Login, creds)
	}
	return m.handleMainKey(msg)
}

func (m *Model) handleMainKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.ToggleFocus):
		if m.focus == focusRooms {
			m.setFocus(focusInput)
		} else {
			m.setFocus(focusRooms)
		}
		return nil
	case key.Matches(msg, m.keys.Older):
		return m.pageUp()
	case key.Matches(msg, m.keys.ScrollDown):
		m.viewport.SetYOffset(m.viewport.YOffset + m.viewport.Height)
		return nil
	}

	if m.focus == focusInput {
		if key.Matches(msg, m.keys.Select) {
			return m.submitMessage()
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return cmd
	}

	switch {
	case key.Matches(msg, m.keys.QuitRooms):
		return tea.Quit
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.rooms)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Select):
		if m.cursor < len(m.rooms) {
			return m.openRoom(m.rooms[m.cursor].ID)
		}
	}
	return nil
}

func (m *Model) handleLogin(msg loginResultMsg) tea.Cmd {
	m.loggingIn = false
	if msg.err != nil {
		m.logger.Warn().Err(msg.err).Msg("login failed")
		m.popup = "Login failed: " + msg.err.Error()
		return nil
	}

	m.backend = msg.backend
	m.store = msg.backend.Store()
	m.screen = screenMain
	m.rooms = msg.backend.RoomsFromStore()
	m.setFocus(focusRooms)
	m.logger.Info().Str("homeserver", msg.creds.Homeserver).Str("username", msg.creds.Username).Msg("logged in")

	if m.cfg.Remember != nil {
		if err := m.cfg.Remember(msg.creds); err != nil {
			m.logger.Warn().Err(err).Msg("could not save credentials")
		}
	}
	return tea.Batch(loadRoomsCmd(m.ctx, m.backend), waitForSignal(m.ctx, m.cfg.Signals))
}

func (m *Model) handleRooms(msg roomsLoadedMsg) {
	if msg.err != nil {
		m.logger.Warn().Err(msg.err).Msg("could not list rooms")
		m.status = "Could not list rooms"
		return
	}
	selected := ""
	if m.cursor < len(m.rooms) {
		selected = m.rooms[m.cursor].ID
	}
	m.rooms = msg.rooms
	m.cursor = 0
	if i := m.roomIndex(selected); i >= 0 {
		m.cursor = i
	}
	m.status = ""
}

func (m *Model) handleHistory(msg historyLoadedMsg) {
	if msg.err != nil {
		m.showError("Could not load history", msg.err)
		return
	}
	if msg.roomID != m.activeRoom {
		return
	}
	if msg.older && msg.added == 0 {
		m.status = "Start of room"
	}
	m.refreshMessages(!msg.older)
}

func (m *Model) handleSignal(sig notify.Signal) tea.Cmd {
	if m.store == nil {
		return waitForSignal(m.ctx, m.cfg.Signals)
	}
	cmds := []tea.Cmd{waitForSignal(m.ctx, m.cfg.Signals)}
	switch sig.Kind {
	case notify.SignalActivity:
		if m.roomIndex(sig.RoomID) < 0 {
			cmds = append(cmds, loadRoomsCmd(m.ctx, m.backend))
		}
		m.refreshRoomFlags()
	case notify.SignalRefresh:
		m.refreshRoomFlags()
		if sig.RoomID == m.activeRoom {
			m.refreshMessages(false)
		}
	}
	return tea.Batch(cmds...)
}

func (m *Model) openRoom(roomID string) tea.Cmd {
	m.activeRoom = roomID
	m.status = ""
	if i := m.roomIndex(roomID); i >= 0 {
		m.cursor = i
	}
	m.backend.OpenRoom(roomID)
	m.setFocus(focusInput)
	m.refreshRoomFlags()
	m.refreshMessages(true)
	m.rememberRoom(roomID)
	return loadHistoryCmd(m.ctx, m.backend, roomID)
}

func (m *Model) rememberRoom(roomID string) {
	if m.cfg.State == nil {
		return
	}
	st := &config.State{}
	st.SetLastRoom(roomID, m.roomName(roomID))
	if err := m.cfg.State.Save(st); err != nil {
		m.logger.Warn().Err(err).Msg("could not save client state")
	}
}

func (m *Model) setFocus(focus focusArea) {
	m.focus = focus
	if focus == focusInput {
		m.input.Focus()
	} else {
		m.input.Blur()
	}
	if m.store != nil {
		m.store.SetFocus(focus == focusInput)
	}
}

func (m *Model) pageUp() tea.Cmd {
	if m.activeRoom == "" {
		return nil
	}
	if m.viewport.AtTop() {
		m.status = "Loading older messages..."
		return loadOlderCmd(m.ctx, m.backend, m.activeRoom)
	}
	m.viewport.SetYOffset(m.viewport.YOffset - m.viewport.Height)
	return nil
}

func (m *Model) submitMessage() tea.Cmd {
	body := m.input.Value()
	if strings.TrimSpace(body) == "" {
		return nil
	}
	if m.activeRoom == "" {
		m.popup = "Select a room first"
		return nil
	}
	m.input.Reset()
	return sendCmd(m.ctx, m.backend, m.activeRoom, body)
}

// refreshMessages re-renders the active room. Older pages keep the reader's
// place; otherwise the pane follows the tail if it was already there.
func (m *Model) refreshMessages(gotoBottom bool) {
	if m.store == nil || m.activeRoom == "" {
		m.viewport.SetContent("")
		return
	}
	atBottom := m.viewport.AtBottom()
	before := m.viewport.TotalLineCount()
	offset := m.viewport.YOffset

	content := styles.RenderProjection(m.store.Projection(m.activeRoom), m.layout.MessageWidth, m.messages)
	m.viewport.SetContent(content)

	switch {
	case gotoBottom || atBottom:
		m.viewport.GotoBottom()
	default:
		m.viewport.SetYOffset(offset + m.viewport.TotalLineCount() - before)
	}
}

func (m *Model) refreshRoomFlags() {
	if m.store == nil {
		return
	}
	for i := range m.rooms {
		id := m.rooms[i].ID
		m.rooms[i].Unseen = m.store.HasUnseen(id)
		if latest, ok := m.store.Latest(id); ok {
			m.rooms[i].LastActivity = latest.Timestamp
		}
	}
}

func (m *Model) roomIndex(roomID string) int {
	if roomID == "" {
		return -1
	}
	for i, room := range m.rooms {
		if room.ID == roomID {
			return i
		}
	}
	return -1
}

func (m *Model) roomName(roomID string) string {
	if i := m.roomIndex(roomID); i >= 0 {
		return m.rooms[i].Name
	}
	return roomID
}

func (m *Model) showError(prefix string, err error) {
	m.logger.Warn().Err(err).Msg(strings.ToLower(prefix))
	m.popup = prefix + ": " + err.Error()
}

func (m *Model) View() string {
	if m.popup != "" {
		return m.viewPopup()
	}
	if m.screen == screenLogin {
		return m.viewLogin()
	}
	return m.viewMain()
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
