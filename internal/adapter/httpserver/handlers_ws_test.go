package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alessandrobessi/tamagotchi/internal/domain"
	"github.com/alessandrobessi/tamagotchi/internal/platform/config"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialWS(t *testing.T, srv *testServer, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if conn != nil {
		t.Cleanup(func() { _ = conn.Close() })
	}
	if resp != nil && resp.Body != nil {
		t.Cleanup(func() { _ = resp.Body.Close() })
	}
	return conn, resp, err
}

func readPet(t *testing.T, conn *websocket.Conn) domain.Pet {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(streamWait)))
	msgType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, msgType)

	var pet domain.Pet
	require.NoError(t, json.Unmarshal(data, &pet))
	return pet
}

func TestWebSocket_SendsInitialSnapshotThenPublishes(t *testing.T) {
	srv := newTestServer(t, &mockPetService{})
	conn, _, err := dialWS(t, srv, nil)
	require.NoError(t, err)

	initial := readPet(t, conn)
	assert.Equal(t, "Tama", initial.Name)
	assert.True(t, initial.IsAlive)

	healed := testPet()
	healed.Health = 55
	srv.hub.Publish(context.Background(), healed)

	got := readPet(t, conn)
	assert.InDelta(t, 55.0, got.Health, 1e-9)

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(srv.streamMetrics.MessagesSent.WithLabelValues(transportWebSocket)) == 2
	}, streamWait, 10*time.Millisecond)
}

func TestWebSocket_ClosesWhenHubStops(t *testing.T) {
	srv := newTestServer(t, &mockPetService{})
	conn, _, err := dialWS(t, srv, nil)
	require.NoError(t, err)
	readPet(t, conn)

	srv.hub.Stop()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(streamWait)))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "unexpected error: %v", err)
}

func TestWebSocket_ClientDisconnectReleasesSubscriber(t *testing.T) {
	srv := newTestServer(t, &mockPetService{})
	conn, _, err := dialWS(t, srv, nil)
	require.NoError(t, err)
	readPet(t, conn)
	require.Equal(t, 1, srv.hub.Count())

	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool {
		return srv.hub.Count() == 0
	}, streamWait, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(srv.streamMetrics.ActiveConnections.WithLabelValues(transportWebSocket)) == 0
	}, streamWait, 10*time.Millisecond)
}

func TestWebSocket_RejectsForeignOrigin(t *testing.T) {
	srv := newTestServer(t, &mockPetService{}, withConfig(func(c *config.Config) {
		c.AppEnv = "production"
	}))

	header := http.Header{}
	header.Set("Origin", "https://evil.example.net")
	_, resp, err := dialWS(t, srv, header)

	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	assert.Eventually(t, func() bool {
		return srv.hub.Count() == 0
	}, streamWait, 10*time.Millisecond)
}
