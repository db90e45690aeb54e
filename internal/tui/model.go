package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"watchrag/internal/service"
)

// RAGPort is the TUI-facing subset of the RAG service.
type RAGPort interface {
	Answer(ctx context.Context, question string) (service.AnswerResult, error)
}

// Greeting is shown before the first question.
const Greeting = "¡Hola! 😊 ¿En qué puedo ayudarte hoy?"

type turn struct {
	question string
	answer   string
	result   service.AnswerResult
	pending  bool
}

// answerMsg carries a finished answer back to the update loop.
type answerMsg struct {
	index  int
	result service.AnswerResult
	err    error
}

// Model is the Bubble Tea model for the chat window.
type Model struct {
	service  RAGPort
	input    textinput.Model
	viewport viewport.Model
	turns    []turn
	title    string
	status   string
	busy     bool
	ready    bool
}

// New creates a new chat model. title names the shop in the header.
func New(service RAGPort, title string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Escribe tu pregunta y pulsa Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{service: service, input: ti, viewport: vp, title: title, status: "Listo."}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and answer events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, th := transcriptBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + qh + 1 // header, status, spacer
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved-th)
		m.refresh()
		return m, nil
	case answerMsg:
		m.busy = false
		if msg.index < len(m.turns) {
			t := &m.turns[msg.index]
			t.pending = false
			t.result = msg.result
			if msg.err != nil {
				t.answer = "Error: " + msg.err.Error()
				t.result.Failed = true
				m.status = "Error: " + msg.err.Error()
			} else {
				t.answer = msg.result.Answer
				m.status = statusLine(msg.result)
			}
		}
		m.refresh()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD || msg.Type == tea.KeyEsc {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.busy {
				return m, nil
			}
			m.input.Reset()
			m.turns = append(m.turns, turn{question: q, pending: true})
			m.busy = true
			m.status = "Pensando..."
			m.refresh()
			return m, m.ask(len(m.turns)-1, q)
		case "up", "down", "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// ask runs the answer off the update loop.
func (m Model) ask(index int, question string) tea.Cmd {
	svc := m.service
	return func() tea.Msg {
		res, err := svc.Answer(context.Background(), question)
		return answerMsg{index: index, result: res, err: err}
	}
}

// View renders the header, transcript, input and status line.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render(m.title)
	transcript := transcriptBoxStyle.Render(m.viewport.View())
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	return header + "\n" + transcript + "\n" + input + "\n" + status
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m Model) renderTranscript() string {
	width := max(10, m.viewport.Width-2)
	var b strings.Builder
	b.WriteString(botStyle.Width(width).Render("Bot: " + Greeting))
	for _, t := range m.turns {
		b.WriteString("\n\n")
		b.WriteString(userStyle.Width(width).Render("Tú: " + t.question))
		b.WriteString("\n")
		switch {
		case t.pending:
			b.WriteString(mutedStyle.Render("Bot: ..."))
		case t.result.Failed:
			b.WriteString(errorStyle.Width(width).Render("Bot: " + t.answer))
		default:
			b.WriteString(botStyle.Width(width).Render("Bot: " + t.answer))
			b.WriteString("\n")
			b.WriteString(mutedStyle.Render(fmt.Sprintf("confianza %.0f%%", t.result.Confidence*100)))
		}
	}
	return b.String()
}

func statusLine(r service.AnswerResult) string {
	parts := []string{
		fmt.Sprintf("Confianza: %.2f", r.Confidence),
		fmt.Sprintf("Tiempo: %s", r.Latency.Round(time.Millisecond)),
	}
	if r.Failed {
		parts = append(parts, "fallo interno")
	}
	if r.Alerted {
		parts = append(parts, "alerta enviada al administrador")
	}
	return strings.Join(parts, "  |  ")
}

var (
	transcriptBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	userStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	botStyle           = lipgloss.NewStyle()
	errorStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	mutedStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)
