package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/sqlgym/internal/live"
	"github.com/desertthunder/sqlgym/internal/models"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgHistoryFetched MsgKind = iota
	MsgVerdict
	MsgConnection
	MsgExpired
)

type historyResult struct {
	subs []models.Submission
	err  error
}

// historyFetchedMsg is the constructor for [MsgHistoryFetched]
func historyFetchedMsg(subs []models.Submission, err error) Msg {
	return Msg{kind: MsgHistoryFetched, data: historyResult{subs, err}}
}

// verdictMsg is the constructor for [MsgVerdict]
func verdictMsg(v models.Verdict) Msg {
	return Msg{kind: MsgVerdict, data: v}
}

// connectionMsg is the constructor for [MsgConnection]
func connectionMsg(s live.State) Msg {
	return Msg{kind: MsgConnection, data: s}
}

// expiredMsg is the constructor for [MsgExpired]
func expiredMsg(reason error) Msg {
	return Msg{kind: MsgExpired, data: reason}
}
