package tui

import (
	"context"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watchrag/internal/service"
)

type fakeRAG struct {
	questions []string
	result    service.AnswerResult
}

func (f *fakeRAG) Answer(_ context.Context, q string) (service.AnswerResult, error) {
	f.questions = append(f.questions, q)
	return f.result, nil
}

func sized(t *testing.T, m Model) Model {
	t.Helper()
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return next.(Model)
}

func typeText(m Model, s string) Model {
	for _, r := range s {
		next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
		m = next.(Model)
	}
	return m
}

func TestChatRoundTrip(t *testing.T) {
	rag := &fakeRAG{result: service.AnswerResult{Answer: "Tenemos el Seiko Presage.", Confidence: 0.82, Latency: 40 * time.Millisecond}}
	m := sized(t, New(rag, "Relojería"))
	assert.Contains(t, m.View(), Greeting)

	m = typeText(m, "¿Tienen Seiko?")
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	require.NotNil(t, cmd, "answer runs as a command")
	assert.True(t, m.busy)
	assert.Empty(t, m.input.Value())
	assert.Contains(t, m.View(), "¿Tienen Seiko?")
	assert.Empty(t, rag.questions, "service not called on the update loop")

	msg := cmd()
	assert.Equal(t, []string{"¿Tienen Seiko?"}, rag.questions)

	next, _ = m.Update(msg)
	m = next.(Model)
	assert.False(t, m.busy)
	view := m.View()
	assert.Contains(t, view, "Tenemos el Seiko Presage.")
	assert.Contains(t, view, "Confianza: 0.82")
}

func TestChatIgnoresBlankAndBusy(t *testing.T) {
	rag := &fakeRAG{}
	m := sized(t, New(rag, "Relojería"))

	m = typeText(m, "   ")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)

	m = typeText(New(rag, "Relojería"), "uno")
	m = sized(t, m)
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = typeText(next.(Model), "dos")
	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd, "one question at a time")
}

func TestStatusLine(t *testing.T) {
	line := statusLine(service.AnswerResult{Confidence: 0.9, Alerted: true, Failed: false, Latency: 1500 * time.Millisecond})
	assert.Contains(t, line, "Confianza: 0.90")
	assert.Contains(t, line, "1.5s")
	assert.Contains(t, line, "alerta")
}

func TestQuitKeys(t *testing.T) {
	m := sized(t, New(&fakeRAG{}, "x"))
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}
