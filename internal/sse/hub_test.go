package sse

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/adrianva1983/whatsApp-bot/internal/models"
)

// mockResponseWriter implements http.ResponseWriter and http.Flusher for testing.
type mockResponseWriter struct {
	header   http.Header
	body     []byte
	writeErr error
	mu       sync.Mutex
}

func newMockResponseWriter() *mockResponseWriter {
	return &mockResponseWriter{header: make(http.Header)}
}

func (m *mockResponseWriter) Header() http.Header {
	return m.header
}

func (m *mockResponseWriter) Write(data []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return 0, m.writeErr
	}
	m.body = append(m.body, data...)
	return len(data), nil
}

func (m *mockResponseWriter) WriteHeader(int) {}

func (m *mockResponseWriter) Flush() {}

func (m *mockResponseWriter) failWrites(err error) {
	m.mu.Lock()
	m.writeErr = err
	m.mu.Unlock()
}

func (m *mockResponseWriter) Body() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return string(m.body)
}

// gatedWriter blocks every write after the first until release is closed.
type gatedWriter struct {
	header  http.Header
	release chan struct{}
	started chan struct{}

	mu       sync.Mutex
	writes   int
	returned bool
	late     int
}

func newGatedWriter() *gatedWriter {
	return &gatedWriter{
		header:  make(http.Header),
		release: make(chan struct{}),
		started: make(chan struct{}, 1),
	}
}

func (g *gatedWriter) Header() http.Header { return g.header }
func (g *gatedWriter) WriteHeader(int)     {}
func (g *gatedWriter) Flush()              {}

func (g *gatedWriter) Write(data []byte) (int, error) {
	g.mu.Lock()
	g.writes++
	first := g.writes == 1
	g.mu.Unlock()

	if !first {
		g.started <- struct{}{}
		<-g.release
	}

	g.mu.Lock()
	if g.returned {
		g.late++
	}
	g.mu.Unlock()
	return len(data), nil
}

func (g *gatedWriter) handlerReturned() {
	g.mu.Lock()
	g.returned = true
	g.mu.Unlock()
}

func (g *gatedWriter) lateWrites() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.late
}

// noFlushWriter cannot stream.
type noFlushWriter struct {
	http.ResponseWriter
}

type HubSuite struct {
	suite.Suite
	state models.SessionState
	hub   *Hub
}

func TestHubSuite(t *testing.T) {
	suite.Run(t, new(HubSuite))
}

func (s *HubSuite) SetupTest() {
	s.state = models.SessionState{Status: models.StatusWaitingQR, QRPayload: "data:image/png;base64,AAA"}
	s.hub = NewHub(func() models.SessionState { return s.state })
}

func (s *HubSuite) TestSubscribeWritesSnapshot() {
	w := newMockResponseWriter()

	client, err := s.hub.Subscribe(w)
	s.Require().NoError(err)
	s.NotEmpty(client.ID)
	s.Equal(1, s.hub.ClientCount())

	body := w.Body()
	s.True(strings.HasPrefix(body, "event: update\ndata: {"))
	s.Contains(body, `"status":"waiting-qr"`)
	s.Contains(body, `"qrPayload":"data:image/png;base64,AAA"`)
	s.True(strings.HasSuffix(body, "\n\n"))
	s.Equal(1, strings.Count(body, "event: "))
}

func (s *HubSuite) TestSubscribeRequiresFlusher() {
	_, err := s.hub.Subscribe(noFlushWriter{httptest.NewRecorder()})
	s.ErrorIs(err, ErrStreamingUnsupported)
	s.Equal(0, s.hub.ClientCount())
}

func (s *HubSuite) TestBroadcastState() {
	w := newMockResponseWriter()
	_, err := s.hub.Subscribe(w)
	s.Require().NoError(err)

	s.hub.BroadcastState(models.SessionState{
		Status:   models.StatusConnected,
		Identity: &models.Identity{ID: "34600111222@s.whatsapp.net"},
	})

	body := w.Body()
	s.Equal(2, strings.Count(body, "event: update\n"))
	s.Contains(body, `"status":"connected"`)
	s.Contains(body, `"id":"34600111222@s.whatsapp.net"`)
}

func (s *HubSuite) TestBroadcastMessage() {
	w := newMockResponseWriter()
	_, err := s.hub.Subscribe(w)
	s.Require().NoError(err)

	s.hub.BroadcastMessage(models.Notification{Number: "34600111222", Text: "hola"})

	body := w.Body()
	s.Contains(body, "event: msg\ndata: {")
	s.Contains(body, `"isGroup":false`)
	s.Contains(body, `"number":"34600111222"`)
	s.Contains(body, `"text":"hola"`)
	s.NotContains(body, "groupId")
}

func (s *HubSuite) TestBroadcastMultipleClients() {
	writers := make([]*mockResponseWriter, 3)
	for i := range writers {
		writers[i] = newMockResponseWriter()
		_, err := s.hub.Subscribe(writers[i])
		s.Require().NoError(err)
	}

	s.hub.BroadcastMessage(models.Notification{Number: "1", Text: "x"})

	for i, w := range writers {
		s.Contains(w.Body(), "event: msg", "client %d should receive the message", i)
	}
}

func (s *HubSuite) TestBroadcastNoClients() {
	s.NotPanics(func() {
		s.hub.BroadcastState(s.state)
	})
}

func (s *HubSuite) TestDeadClientRemoved() {
	good := newMockResponseWriter()
	bad := newMockResponseWriter()
	_, err := s.hub.Subscribe(good)
	s.Require().NoError(err)
	badClient, err := s.hub.Subscribe(bad)
	s.Require().NoError(err)

	bad.failWrites(errors.New("broken pipe"))
	s.hub.BroadcastMessage(models.Notification{Number: "1", Text: "x"})

	s.Equal(1, s.hub.ClientCount())
	select {
	case <-badClient.Done:
	default:
		s.Fail("dead client should be closed")
	}
	s.Contains(good.Body(), "event: msg")
}

func (s *HubSuite) TestUnsubscribeTwice() {
	client, err := s.hub.Subscribe(newMockResponseWriter())
	s.Require().NoError(err)

	s.hub.Unsubscribe(client)
	s.NotPanics(func() { s.hub.Unsubscribe(client) })
	s.Equal(0, s.hub.ClientCount())
}

func TestHub_ConcurrentBroadcast(t *testing.T) {
	hub := NewHub(func() models.SessionState { return models.SessionState{Status: models.StatusInit} })
	writers := make([]*mockResponseWriter, 10)
	for i := range writers {
		writers[i] = newMockResponseWriter()
		_, err := hub.Subscribe(writers[i])
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hub.BroadcastMessage(models.Notification{Number: "1", Text: "x"})
		}()
	}
	wg.Wait()

	for _, w := range writers {
		body := w.Body()
		assert.Equal(t, 50, strings.Count(body, "event: msg\n"))
		// Frames are never interleaved.
		for _, frame := range strings.Split(strings.TrimSuffix(body, "\n\n"), "\n\n") {
			assert.True(t, strings.HasPrefix(frame, "event: "), frame)
		}
	}
}

func TestHub_ServeHTTP(t *testing.T) {
	hub := NewHub(func() models.SessionState { return models.SessionState{Status: models.StatusInit} })
	srv := httptest.NewServer(hub)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	buf := make([]byte, 256)
	n, err := resp.Body.Read(buf)
	require.NoError(t, err)
	assert.Contains(t, string(buf[:n]), `event: update`)
	assert.Contains(t, string(buf[:n]), `"status":"init"`)

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestHub_ServeHTTPWaitsForWriteInFlight(t *testing.T) {
	hub := NewHub(func() models.SessionState { return models.SessionState{Status: models.StatusInit} })
	w := newGatedWriter()

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/qr-events", nil).WithContext(ctx)

	served := make(chan struct{})
	go func() {
		hub.ServeHTTP(w, req)
		w.handlerReturned()
		close(served)
	}()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	go hub.BroadcastState(models.SessionState{Status: models.StatusConnected})
	<-w.started

	cancel()
	select {
	case <-served:
		t.Fatal("handler returned while a write was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(w.release)
	<-served

	assert.Zero(t, w.lateWrites())
}

func TestClient_WriteAfterCloseIsSkipped(t *testing.T) {
	w := newMockResponseWriter()
	c := &Client{ID: "c", Writer: w, Flusher: w, Done: make(chan struct{})}

	c.close()

	assert.ErrorIs(t, c.write([]byte("event: update\n\n")), ErrClientClosed)
	assert.Empty(t, w.Body())
}
