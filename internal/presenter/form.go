package presenter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/benaskins/voiceauth/internal/authconfig"
)

// Field keys, in display order.
const (
	FieldEmail     = "email"
	FieldPassword  = "password"
	FieldUsername  = "username"
	FieldFirstName = "firstName"
	FieldLastName  = "lastName"
)

// TUI presents the form in a terminal.
type TUI struct {
	in  io.Reader
	out io.Writer
}

// NewTUI returns a terminal presenter reading keys from in and drawing to
// out. Nil values use the process terminal.
func NewTUI(in io.Reader, out io.Writer) *TUI {
	return &TUI{in: in, out: out}
}

// Present runs the form until the user submits a valid form or cancels.
func (t *TUI) Present(ctx context.Context, cfg authconfig.Config) (Submission, error) {
	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if t.in != nil {
		opts = append(opts, tea.WithInput(t.in))
	}
	if t.out != nil {
		opts = append(opts, tea.WithOutput(t.out))
	}

	final, err := tea.NewProgram(newForm(cfg), opts...).Run()
	if err != nil {
		if ctx.Err() != nil {
			return Submission{}, ctx.Err()
		}
		if errors.Is(err, tea.ErrInterrupted) {
			return Submission{}, ErrCanceled
		}
		return Submission{}, fmt.Errorf("running form: %w", err)
	}

	m, ok := final.(form)
	if !ok || !m.submitted {
		return Submission{}, ErrCanceled
	}
	return m.submission(), nil
}

type formField struct {
	key   string
	label string
	input textinput.Model
}

type formStyles struct {
	title  lipgloss.Style
	label  lipgloss.Style
	button lipgloss.Style
	focus  lipgloss.Style
	err    lipgloss.Style
}

// form is the bubbletea model behind TUI.
type form struct {
	cfg       authconfig.Config
	fields    []formField
	focus     int // len(fields) is the submit button
	errMsg    string
	submitted bool
	canceled  bool
	styles    formStyles
}

func newForm(cfg authconfig.Config) form {
	type fieldDef struct {
		key, label string
		show       bool
	}
	defs := []fieldDef{
		{FieldEmail, cfg.EmailLabel, cfg.ShowEmailField},
		{FieldPassword, cfg.PasswordLabel, cfg.ShowPasswordField},
		{FieldUsername, cfg.UsernameLabel, cfg.ShowUsernameField},
		{FieldFirstName, cfg.FirstNameLabel, cfg.ShowFirstNameField},
		{FieldLastName, cfg.LastNameLabel, cfg.ShowLastNameField},
	}

	m := form{cfg: cfg, styles: newStyles(cfg)}
	for _, s := range defs {
		if !s.show {
			continue
		}
		in := textinput.New()
		in.Placeholder = s.label
		in.Prompt = "> "
		in.CharLimit = 256
		if s.key == FieldPassword {
			in.EchoMode = textinput.EchoPassword
			in.EchoCharacter = '•'
		}
		m.fields = append(m.fields, formField{key: s.key, label: s.label, input: in})
	}
	if len(m.fields) > 0 {
		m.fields[0].input.Focus()
	}
	return m
}

func newStyles(cfg authconfig.Config) formStyles {
	text := color(cfg.TextColor)
	return formStyles{
		title:  lipgloss.NewStyle().Bold(true).Foreground(text).MarginBottom(1),
		label:  lipgloss.NewStyle().Foreground(text),
		button: lipgloss.NewStyle().Padding(0, 2).Foreground(color(cfg.ButtonTextColor)).Background(color(cfg.ButtonColor)),
		focus:  lipgloss.NewStyle().Padding(0, 2).Bold(true).Underline(true).Foreground(color(cfg.ButtonTextColor)).Background(color(cfg.ButtonColor)),
		err:    lipgloss.NewStyle().Foreground(lipgloss.Color("#D32F2F")),
	}
}

// color converts RRGGBB or AARRGGBB to a terminal colour. Malformed values
// fall back to the terminal default.
func color(hex string) lipgloss.TerminalColor {
	hex = strings.TrimPrefix(hex, "#")
	switch len(hex) {
	case 8:
		hex = hex[2:]
	case 6:
	default:
		return lipgloss.NoColor{}
	}
	for _, r := range hex {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return lipgloss.NoColor{}
		}
	}
	return lipgloss.Color("#" + hex)
}

func (m form) Init() tea.Cmd {
	return textinput.Blink
}

func (m form) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.canceled = true
			return m, tea.Quit
		case tea.KeyTab, tea.KeyDown:
			return m.moveFocus(1), nil
		case tea.KeyShiftTab, tea.KeyUp:
			return m.moveFocus(-1), nil
		case tea.KeyEnter:
			if m.focus < len(m.fields) {
				return m.moveFocus(1), nil
			}
			if err := Validate(m.submission()); err != nil {
				m.errMsg = err.(*FieldError).Reason
				return m, nil
			}
			m.submitted = true
			return m, tea.Quit
		}
	}

	if m.focus < len(m.fields) {
		var cmd tea.Cmd
		m.fields[m.focus].input, cmd = m.fields[m.focus].input.Update(msg)
		m.errMsg = ""
		return m, cmd
	}
	return m, nil
}

func (m form) moveFocus(delta int) form {
	n := len(m.fields) + 1
	if m.focus < len(m.fields) {
		m.fields[m.focus].input.Blur()
	}
	m.focus = ((m.focus+delta)%n + n) % n
	if m.focus < len(m.fields) {
		m.fields[m.focus].input.Focus()
	}
	return m
}

func (m form) View() string {
	var b strings.Builder
	b.WriteString(m.styles.title.Render(m.cfg.Title))
	b.WriteString("\n")
	for _, f := range m.fields {
		b.WriteString(m.styles.label.Render(f.label))
		b.WriteString("\n")
		b.WriteString(f.input.View())
		b.WriteString("\n\n")
	}
	if m.errMsg != "" {
		b.WriteString(m.styles.err.Render(m.errMsg))
		b.WriteString("\n\n")
	}
	button := m.styles.button
	if m.focus == len(m.fields) {
		button = m.styles.focus
	}
	b.WriteString(button.Render(m.cfg.SubmitButtonText))
	b.WriteString("\n\ntab: next field • enter: submit • esc: cancel\n")
	return b.String()
}

func (m form) submission() Submission {
	var s Submission
	for _, f := range m.fields {
		v := f.input.Value()
		switch f.key {
		case FieldEmail:
			s.Email = strings.TrimSpace(v)
		case FieldPassword:
			s.Password = v
		case FieldUsername:
			s.Username = strings.TrimSpace(v)
		case FieldFirstName:
			s.FirstName = strings.TrimSpace(v)
		case FieldLastName:
			s.LastName = strings.TrimSpace(v)
		}
	}
	return s
}
