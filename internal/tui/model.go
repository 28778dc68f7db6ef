package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"paperrag/internal/domain"
	"paperrag/internal/orchestrator"
)

// Assistant is the TUI-facing subset of the orchestrator.
type Assistant interface {
	Answer(ctx context.Context, question string) (orchestrator.Answer, error)
	Translate(ctx context.Context, text, targetLanguage string, useContext bool) (orchestrator.Translation, error)
	Simplify(ctx context.Context, text string) (orchestrator.Simplification, error)
}

// SwitchFunc returns the assistant backed by the named chat model.
type SwitchFunc func(model string) (Assistant, error)

// Mode is what Enter does with the input line.
type Mode int

const (
	ModeAsk Mode = iota
	ModeTranslate
	ModeSimplify
)

func (m Mode) String() string {
	switch m {
	case ModeTranslate:
		return "translate"
	case ModeSimplify:
		return "simplify"
	default:
		return "ask"
	}
}

// Options configure a new Model.
type Options struct {
	Model    string
	Language string
	Summary  string
	Timeout  time.Duration
	Switch   SwitchFunc
}

type turn struct {
	mode    Mode
	input   string
	output  string
	context []domain.ScoredChunk
	err     error
}

// replyMsg carries a finished request back into Update.
type replyMsg turn

// Model is the Bubble Tea model for the chat screen.
type Model struct {
	assistant Assistant
	opts      Options
	mode      Mode
	input     textinput.Model
	viewport  viewport.Model
	turns     []turn
	status    string
	busy      bool
	ready     bool
}

// New creates a new TUI model instance.
func New(assistant Assistant, opts Options) Model {
	if opts.Language == "" {
		opts.Language = "Spanish"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 2 * time.Minute
	}
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about the paper. Tab switches mode, /model and /lang change settings"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{assistant: assistant, opts: opts, input: ti, viewport: vp, status: "Ready."}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header and summary, status, spacer
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-rh)
		m.refresh()
		return m, nil
	case replyMsg:
		m.busy = false
		t := turn(msg)
		if t.err != nil {
			m.status = "Error: " + t.err.Error()
		} else {
			m.status = fmt.Sprintf("%s done", t.mode)
		}
		m.turns = append(m.turns, t)
		m.refresh()
		m.viewport.GotoBottom()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "tab":
			m.mode = (m.mode + 1) % 3
			m.status = "Mode: " + m.modeLabel()
			return m, nil
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		case "enter":
			line := strings.TrimSpace(m.input.Value())
			if line == "" || m.busy {
				return m, nil
			}
			m.input.SetValue("")
			if strings.HasPrefix(line, "/") {
				m.command(line)
				return m, nil
			}
			m.busy = true
			m.status = "Working on " + m.modeLabel() + "..."
			return m, m.run(m.mode, line)
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// command handles /model and /lang.
func (m *Model) command(line string) {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case "/model":
		if arg == "" {
			m.status = "Model: " + m.opts.Model
			return
		}
		if m.opts.Switch == nil {
			m.status = "Model switching is not available"
			return
		}
		a, err := m.opts.Switch(arg)
		if err != nil {
			m.status = "Error: " + err.Error()
			return
		}
		m.assistant = a
		m.opts.Model = arg
		m.status = "Model: " + arg
	case "/lang":
		if arg == "" {
			m.status = "Language: " + m.opts.Language
			return
		}
		m.opts.Language = arg
		m.status = "Language: " + arg
	default:
		m.status = fmt.Sprintf("Unknown command %s", name)
	}
}

func (m Model) run(mode Mode, text string) tea.Cmd {
	assistant, lang, timeout := m.assistant, m.opts.Language, m.opts.Timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		t := turn{mode: mode, input: text}
		switch mode {
		case ModeTranslate:
			res, err := assistant.Translate(ctx, text, lang, true)
			t.output, t.context, t.err = res.Translation, res.ContextUsed, err
		case ModeSimplify:
			res, err := assistant.Simplify(ctx, text)
			t.output, t.err = res.Simplified, err
		default:
			res, err := assistant.Answer(ctx, text)
			t.output, t.context, t.err = res.Answer, res.ContextUsed, err
		}
		return replyMsg(t)
	}
}

func (m Model) modeLabel() string {
	if m.mode == ModeTranslate {
		return "translate to " + m.opts.Language
	}
	return m.mode.String()
}

// View renders the TUI layout and the conversation.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render(fmt.Sprintf("Paper RAG  [%s | %s]", m.modeLabel(), m.opts.Model))
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.opts.Summary)
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + summary + "\n" + results + "\n" + input + "\n" + status
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
}

func (m Model) renderTranscript() string {
	if len(m.turns) == 0 {
		return "No messages yet."
	}
	var b strings.Builder
	for i, t := range m.turns {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(userStyle.Render(fmt.Sprintf("[%s] %s", t.mode, t.input)))
		b.WriteString("\n")
		if t.err != nil {
			b.WriteString(errorStyle.Render(t.err.Error()))
			continue
		}
		b.WriteString(t.output)
		for _, c := range t.context {
			b.WriteString("\n")
			b.WriteString(sourceStyle.Render(fmt.Sprintf("  %s #%d  relevance=%.3f", c.Source, c.ChunkIndex, c.Similarity)))
			b.WriteString("\n  ")
			b.WriteString(highlightBestSentence(c.Text, t.input))
		}
	}
	return b.String()
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	sourceStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	unicodeWordRe  = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe     = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
)

// highlightBestSentence marks the sentence sharing the most words with query.
func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		sentences = []string{strings.TrimSpace(text)}
	}
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return strings.Join(sentences, " ")
	}
	bestIdx := 0
	bestScore := -1
	for i, s := range sentences {
		score := tokenOverlapScore(qTokens, s)
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	for i := range sentences {
		sent := strings.TrimSpace(sentences[i])
		if i == bestIdx {
			sentences[i] = highlightStyle.Render(sent)
		} else {
			sentences[i] = sent
		}
	}
	return strings.Join(sentences, " ")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	tokens := unicodeWordRe.FindAllString(strings.ToLower(sentence), -1)
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
