package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ThomasJRyan/Nitrix/internal/config"
	"github.com/ThomasJRyan/Nitrix/internal/notify"
	"github.com/ThomasJRyan/Nitrix/internal/session"
)

const (
	loginTimeout   = 30 * time.Second
	requestTimeout = 30 * time.Second
)

type loginResultMsg struct {
	backend Backend
	creds   config.Credentials
	err     error
}

type signalMsg notify.Signal

type roomsLoadedMsg struct {
	rooms []session.Room
	err   error
}

type historyLoadedMsg struct {
	roomID string
	added  int
	older  bool
	err    error
}

type sentMsg struct {
	roomID string
	err    error
}

func loginCmd(ctx context.Context, login LoginFunc, creds config.Credentials) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, loginTimeout)
		defer cancel()
		backend, err := login(ctx, creds)
		return loginResultMsg{backend: backend, creds: creds, err: err}
	}
}

// waitForSignal blocks on the hub. The model re-issues it after each signal.
func waitForSignal(ctx context.Context, signals SignalSource) tea.Cmd {
	if signals == nil {
		return nil
	}
	return func() tea.Msg {
		sig, err := signals.Next(ctx)
		if err != nil {
			return nil
		}
		return signalMsg(sig)
	}
}

func loadRoomsCmd(ctx context.Context, backend Backend) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()
		rooms, err := backend.Rooms(ctx)
		return roomsLoadedMsg{rooms: rooms, err: err}
	}
}

func loadHistoryCmd(ctx context.Context, backend Backend, roomID string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()
		added, err := backend.LoadHistory(ctx, roomID)
		return historyLoadedMsg{roomID: roomID, added: added, err: err}
	}
}

func loadOlderCmd(ctx context.Context, backend Backend, roomID string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()
		added, err := backend.LoadOlder(ctx, roomID)
		return historyLoadedMsg{roomID: roomID, added: added, older: true, err: err}
	}
}

func sendCmd(ctx context.Context, backend Backend, roomID, body string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()
		_, err := backend.Send(ctx, roomID, body)
		return sentMsg{roomID: roomID, err: err}
	}
}
