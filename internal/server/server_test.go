package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watchrag/internal/domain"
	"watchrag/internal/logging"
	"watchrag/internal/service"
)

type fakeAnswerer struct {
	calls atomic.Int32
}

func (f *fakeAnswerer) Answer(_ context.Context, q string) (service.AnswerResult, error) {
	f.calls.Add(1)
	if strings.TrimSpace(q) == "" {
		return service.AnswerResult{}, domain.ErrEmptyQuestion
	}
	return service.AnswerResult{Answer: "Respuesta a " + q, Confidence: 0.75}, nil
}

func TestAsk(t *testing.T) {
	srv := httptest.NewServer(New(&fakeAnswerer{}, logging.Discard()).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/ask?q=" + "horario")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	var body askResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "Respuesta a horario", body.Answer)
	assert.Equal(t, 0.75, body.Confidence)

	resp, err = http.Get(srv.URL + "/ask")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/ask", "text/plain", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	srv := httptest.NewServer(New(&fakeAnswerer{}, logging.Discard()).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestChatSocket(t *testing.T) {
	rag := &fakeAnswerer{}
	srv := httptest.NewServer(New(rag, logging.Discard()).Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	require.NoError(t, conn.WriteJSON(chatIn{Message: "¿Tienen Casio?"}))
	var out chatOut
	require.NoError(t, conn.ReadJSON(&out))
	assert.Equal(t, "¿Tienen Casio?", out.User)
	assert.Equal(t, "Respuesta a ¿Tienen Casio?", out.Message)
	assert.Equal(t, 0.75, out.Confidence)

	require.NoError(t, conn.WriteJSON(chatIn{Message: "  "}))
	require.NoError(t, conn.ReadJSON(&out))
	assert.Equal(t, EmptyQuestionWarning, out.Message)
	assert.Zero(t, out.Confidence)
	assert.Equal(t, int32(2), rag.calls.Load())
}

func TestListenAndServeShutdown(t *testing.T) {
	s := New(&fakeAnswerer{}, logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
