package tui

import (
	"context"
	"errors"
	"fmt"
	"slices"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/sadopc/sealtrack/internal/accounts"
	apperrors "github.com/sadopc/sealtrack/internal/errors"
	"github.com/sadopc/sealtrack/internal/session"
)

type unlockStage int

const (
	stageCredentials unlockStage = iota
	stageConfirmNew
	stageBusy
)

// unlockModel asks for an account and passphrase while the session is
// locked. Unknown usernames go through a confirmation step that creates the
// account.
type unlockModel struct {
	manager *session.Manager
	width   int
	height  int

	stage unlockStage
	form  *huh.Form
	err   string

	username *string
	pass     *string
	repeat   *string
}

func newUnlockModel(m *session.Manager) unlockModel {
	u, p, r := "", "", ""
	return unlockModel{manager: m, username: &u, pass: &p, repeat: &r}
}

func (u *unlockModel) setSize(w, h int) {
	u.width = w
	u.height = h
}

type unlockResultMsg struct {
	username string
	err      error
}

// reset shows a fresh credentials form. The previous username is kept.
func (u unlockModel) reset() (unlockModel, tea.Cmd) {
	*u.pass = ""
	*u.repeat = ""
	if *u.username == "" {
		if names := u.manager.Accounts(); len(names) == 1 {
			*u.username = names[0]
		}
	}
	u.stage = stageCredentials
	u.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Username").
				Suggestions(u.manager.Accounts()).
				Validate(accounts.ValidateUsername).
				Value(u.username),
			huh.NewInput().Title("Passphrase").
				EchoMode(huh.EchoModePassword).
				Validate(nonEmpty("passphrase")).
				Value(u.pass),
		).Title("Unlock"),
	).WithShowHelp(true).WithShowErrors(true)
	return u, u.form.Init()
}

func (u unlockModel) confirmNew() (unlockModel, tea.Cmd) {
	u.stage = stageConfirmNew
	u.form = huh.NewForm(
		huh.NewGroup(
			huh.NewNote().Title("New account").
				Description(fmt.Sprintf("%q has no data on this device. Repeat the passphrase to create it.", *u.username)),
			huh.NewInput().Title("Repeat passphrase").
				EchoMode(huh.EchoModePassword).
				Validate(func(s string) error {
					if s != *u.pass {
						return errors.New("passphrases do not match")
					}
					return nil
				}).
				Value(u.repeat),
		),
	).WithShowHelp(true).WithShowErrors(true)
	return u, u.form.Init()
}

func nonEmpty(name string) func(string) error {
	return func(s string) error {
		if s == "" {
			return fmt.Errorf("%s is required", name)
		}
		return nil
	}
}

func (u unlockModel) unlock(create bool) tea.Cmd {
	username, pass := *u.username, *u.pass
	return func() tea.Msg {
		ctx := context.Background()
		var err error
		if create {
			err = u.manager.CreateAccountAndUnlock(ctx, username, pass)
		} else {
			err = u.manager.Unlock(ctx, username, pass)
		}
		return unlockResultMsg{username: username, err: err}
	}
}

func (u unlockModel) update(msg tea.Msg) (unlockModel, tea.Cmd) {
	switch msg := msg.(type) {
	case unlockResultMsg:
		if msg.err == nil {
			u.err = ""
			return u, func() tea.Msg { return unlockedMsg{username: msg.username} }
		}
		u.err = unlockError(msg.err)
		return u.reset()

	case tea.KeyMsg:
		if u.stage == stageConfirmNew && msg.String() == "esc" {
			return u.reset()
		}
	}

	if u.form == nil || u.stage == stageBusy {
		return u, nil
	}

	form, cmd := u.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		u.form = f
	}
	if u.form.State != huh.StateCompleted {
		return u, cmd
	}

	if u.stage == stageCredentials && !slices.Contains(u.manager.Accounts(), *u.username) {
		return u.confirmNew()
	}
	create := u.stage == stageConfirmNew
	u.stage = stageBusy
	u.err = ""
	return u, u.unlock(create)
}

func unlockError(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrInvalidPassphrase):
		return "Wrong passphrase"
	case errors.Is(err, apperrors.ErrValidation):
		return err.Error()
	default:
		return fmt.Sprintf("Unlock failed: %v", err)
	}
}

func (u unlockModel) view() string {
	w := min(u.width-4, 70)

	title := lipgloss.NewStyle().Bold(true).Foreground(colorPrimary).Render("sealtrack")
	sub := mutedStyle.Render("Your activities are encrypted on this device.")

	body := ""
	switch {
	case u.stage == stageBusy:
		body = warningStyle.Render("Decrypting...")
	case u.form != nil:
		body = u.form.View()
	}

	rows := []string{title, sub, "", body}
	if u.err != "" {
		rows = append(rows, "", errorStyle.Render(u.err))
	}
	panel := activePanelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
	return lipgloss.Place(u.width, u.height, lipgloss.Center, lipgloss.Center, panel)
}
