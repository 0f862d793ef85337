package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/sadopc/sealtrack/internal/datastore"
	"github.com/sadopc/sealtrack/internal/replica"
)

// Notifier carries callbacks from the datastore and session, which run on
// their own goroutines, into the Bubble Tea event loop.
type Notifier struct {
	ch chan tea.Msg
}

// notifyMsg wraps a message that arrived through the Notifier.
type notifyMsg struct {
	msg tea.Msg
}

func NewNotifier() *Notifier {
	return &Notifier{ch: make(chan tea.Msg, 64)}
}

// DataStoreOptions registers the notifier as sync and settings listener.
func (n *Notifier) DataStoreOptions() []datastore.Option {
	return []datastore.Option{
		datastore.WithSyncListener(n.OnSync),
		datastore.WithSettingsListener(n.OnSettings),
	}
}

func (n *Notifier) OnSync(info replica.Info)        { n.send(syncMsg{info: info}) }
func (n *Notifier) OnSettings(s datastore.Settings) { n.send(settingsChangedMsg{settings: s}) }
func (n *Notifier) OnLock()                         { n.send(lockedMsg{}) }

// send never blocks; when the program falls behind, notifications are
// dropped and the next tick catches up.
func (n *Notifier) send(msg tea.Msg) {
	select {
	case n.ch <- msg:
	default:
	}
}

func (n *Notifier) wait() tea.Cmd {
	return func() tea.Msg {
		return notifyMsg{msg: <-n.ch}
	}
}
