package ui

import (
	"context"
	"fmt"
	"slices"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/sqlgym/internal/live"
	"github.com/desertthunder/sqlgym/internal/models"
	"github.com/desertthunder/sqlgym/internal/submissions"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	SubmissionListView ViewState = iota
	DetailView
)

// eventBuffer bounds pushed messages waiting for the program. Further events are dropped.
const eventBuffer = 64

// HistorySource loads the user's submission history.
type HistorySource interface {
	SubmitHistory(ctx context.Context, userID string) ([]models.Submission, error)
}

// WatchModel represents the TUI application state.
type WatchModel struct {
	ctx      context.Context
	view     ViewState
	userID   string
	history  HistorySource
	tracker  *submissions.Tracker
	events   chan tea.Msg
	state    live.State
	width    int
	height   int
	subs     list.Model
	selected *models.Submission
	pending  bool
	expired  error
	err      error
	help     help.Model
	keys     keyMap
}

// NewWatchModel creates a new TUI model with the provided dependencies.
func NewWatchModel(ctx context.Context, userID string, history HistorySource, tracker *submissions.Tracker) *WatchModel {
	subs := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	subs.Title = "Submissions"
	subs.SetShowHelp(false)

	return &WatchModel{
		ctx:     ctx,
		view:    SubmissionListView,
		userID:  userID,
		history: history,
		tracker: tracker,
		events:  make(chan tea.Msg, eventBuffer),
		state:   live.StateDisconnected,
		subs:    subs,
		help:    help.New(),
		keys:    newKeyMap(),
	}
}

// HandleVerdict folds v into the tracker and schedules a redraw. It is a [live.Handler].
func (m *WatchModel) HandleVerdict(v models.Verdict) {
	m.tracker.Apply(v)
	m.push(verdictMsg(v))
}

// HandleState records a push connection change. It is an OnStateChange listener.
func (m *WatchModel) HandleState(s live.State) {
	m.push(connectionMsg(s))
}

// HandleExpired ends the session view; the CLI prints the sign-in hint after the program exits.
func (m *WatchModel) HandleExpired(reason error) {
	m.push(expiredMsg(reason))
}

// Expired returns the reason the session ended, if it did.
func (m *WatchModel) Expired() error {
	return m.expired
}

func (m *WatchModel) push(msg tea.Msg) {
	select {
	case m.events <- msg:
	default:
	}
}

// Init loads history and starts listening for pushed events.
func (m *WatchModel) Init() tea.Cmd {
	return tea.Batch(m.fetchHistory(), m.waitForEvent())
}

// Update handles incoming messages and updates the model state.
func (m *WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.subs.SetSize(msg.Width-4, msg.Height-8)
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case SubmissionListView:
			return m.handleListKeys(msg)
		case DetailView:
			return m.handleDetailKeys(msg)
		}

	case Msg:
		return m.handleMsg(msg)
	}

	var cmd tea.Cmd
	m.subs, cmd = m.subs.Update(msg)
	return m, cmd
}

func (m *WatchModel) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgHistoryFetched:
		res := msg.data.(historyResult)
		if res.err != nil {
			m.err = res.err
			return m, nil
		}
		m.err = nil
		m.tracker.Load(mergeHistory(res.subs, m.tracker.All()))
		return m, m.refreshList()

	case MsgVerdict:
		v := msg.data.(models.Verdict)
		if m.selected != nil && m.selected.ID == v.SubmissionID {
			updated := m.selected.WithVerdict(v)
			m.selected = &updated
		}
		return m, tea.Batch(m.refreshList(), m.waitForEvent())

	case MsgConnection:
		m.state = msg.data.(live.State)
		return m, m.waitForEvent()

	case MsgExpired:
		m.expired, _ = msg.data.(error)
		return m, tea.Quit
	}
	return m, nil
}

// View renders the UI based on the current view state.
func (m *WatchModel) View() string {
	header := fmt.Sprintf("%s  %s", styles.title.Render("sqlgym"), styles.indicator(m.state))
	if m.err != nil {
		header = fmt.Sprintf("%s\n%s", header, styles.err.Render(fmt.Sprintf("Error: %v", m.err)))
	}

	switch m.view {
	case DetailView:
		return fmt.Sprintf("%s\n\n%s", header, m.renderDetail())
	default:
		return fmt.Sprintf("%s\n\n%s", header, m.renderList())
	}
}

func (m *WatchModel) handleListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.subs.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.subs, cmd = m.subs.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.refresh):
		return m, m.fetchHistory()
	case key.Matches(msg, m.keys.pending):
		m.pending = !m.pending
		return m, m.refreshList()
	case key.Matches(msg, m.keys.enter):
		if item, ok := m.subs.SelectedItem().(submissionItem); ok {
			sub := item.sub
			m.selected = &sub
			m.view = DetailView
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.subs, cmd = m.subs.Update(msg)
	return m, cmd
}

func (m *WatchModel) handleDetailKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back):
		m.view = SubmissionListView
		m.selected = nil
	}
	return m, nil
}

func (m *WatchModel) refreshList() tea.Cmd {
	all := m.tracker.All()
	m.subs.Title = "Submissions"
	if m.pending {
		all = m.tracker.Pending()
		m.subs.Title = "Pending submissions"
	}
	slices.SortStableFunc(all, func(a, b models.Submission) int {
		return b.SubmittedAt.Compare(a.SubmittedAt)
	})
	return m.subs.SetItems(submissionItems(all))
}

func (m *WatchModel) fetchHistory() tea.Cmd {
	return func() tea.Msg {
		subs, err := m.history.SubmitHistory(m.ctx, m.userID)
		return historyFetchedMsg(subs, err)
	}
}

func (m *WatchModel) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-m.events:
			return msg
		case <-m.ctx.Done():
			return tea.Quit()
		}
	}
}

func (m *WatchModel) renderList() string {
	helpKeys := []key.Binding{m.keys.enter, m.keys.refresh, m.keys.pending, m.keys.quit}
	return fmt.Sprintf("%s\n\n%s", m.subs.View(), m.help.ShortHelpView(helpKeys))
}

func (m *WatchModel) renderDetail() string {
	if m.selected == nil {
		return ""
	}
	sub := m.selected
	status := styles.statusStyle(sub.Status).Render(sub.Status.String())
	info := fmt.Sprintf(
		"Submission: %s\nQuestion:   %s\nStatus:     %s\nTests:      %d/%d\nTime:       %dms",
		sub.ID, sub.QuestionID, status, sub.TestsPassed, sub.TestsTotal, sub.ExecutionTimeMs,
	)
	if !sub.Status.IsFinal() {
		info += "\n\n" + styles.help.Render("Waiting for verdict...")
	}
	helpKeys := []key.Binding{m.keys.back, m.keys.quit}
	return fmt.Sprintf("%s\n\n%s", info, m.help.ShortHelpView(helpKeys))
}

// mergeHistory overlays locally tracked entries onto fetched history.
// Local entries win when they carry a final verdict the server copy does not yet show.
func mergeHistory(fetched, local []models.Submission) []models.Submission {
	merged := append([]models.Submission(nil), fetched...)
	index := make(map[string]int, len(merged))
	for i, sub := range merged {
		index[sub.ID] = i
	}
	for _, sub := range local {
		i, ok := index[sub.ID]
		if !ok {
			merged = append(merged, sub)
			continue
		}
		if sub.Status.IsFinal() && !merged[i].Status.IsFinal() {
			merged[i] = sub
		}
	}
	return merged
}
