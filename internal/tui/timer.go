package tui

import (
	"time"

	"github.com/sadopc/sealtrack/internal/datastore"
	"github.com/sadopc/sealtrack/internal/session"
)

// timerModel mirrors the running activity of the unlocked account. The
// datastore is the source of truth; the timer only caches what to display.
type timerModel struct {
	manager *session.Manager

	current *datastore.Activity
	now     time.Time
}

func newTimerModel(m *session.Manager) timerModel {
	return timerModel{manager: m, now: time.Now()}
}

// reload picks up the running activity, which may have been started on
// another device.
func (t *timerModel) reload() {
	t.current = nil
	ds, err := t.manager.DataStore()
	if err != nil {
		return
	}
	if a, ok := ds.GetCurrentActivity(); ok {
		t.current = &a
	}
}

func (t *timerModel) start(task string, tags []string) (string, error) {
	ds, err := t.manager.DataStore()
	if err != nil {
		return "", err
	}
	ctx, cancel := storeContext()
	defer cancel()

	id, err := ds.StartActivity(ctx, task, tags, time.Now())
	if err != nil {
		return "", err
	}
	if err := ds.Flush(ctx); err != nil {
		return "", err
	}
	t.reload()
	return id, nil
}

// stop ends the running activity. It reports false when nothing was running.
func (t *timerModel) stop() (bool, error) {
	if t.current == nil {
		return false, nil
	}
	ds, err := t.manager.DataStore()
	if err != nil {
		return false, err
	}
	ctx, cancel := storeContext()
	defer cancel()

	if err := ds.StopActivity(ctx, t.current.ID, time.Now()); err != nil {
		return false, err
	}
	if err := ds.Flush(ctx); err != nil {
		return false, err
	}
	t.reload()
	return true, nil
}

func (t *timerModel) tick(now time.Time) {
	t.now = now
}

func (t timerModel) running() bool {
	return t.current != nil
}

func (t timerModel) currentElapsed() time.Duration {
	if t.current == nil {
		return 0
	}
	return t.current.Duration(t.now)
}
