package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"objwatch/internal/models"
	"objwatch/processing/store"
)

func TestSnapshotEndpoint(t *testing.T) {
	st := store.New()
	st.Set([]models.Detection{{Class: "person", Score: 0.93}}, models.Statistics{FPS: 60, FPSValid: true, ObjectCount: 1}, models.Presence{IsPresent: true})

	srv := httptest.NewServer(New(st, nil, nil).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/snapshot")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var snap models.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, uint64(1), snap.Seq)
	assert.Equal(t, 60, snap.Stats.FPS)
	assert.True(t, snap.Presence.IsPresent)
	require.Len(t, snap.Detections, 1)
	assert.Equal(t, "person", snap.Detections[0].Class)
}

func TestSnapshotEndpointRejectsPost(t *testing.T) {
	srv := httptest.NewServer(New(store.New(), nil, nil).Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/snapshot", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestStatusEndpoint(t *testing.T) {
	status := func() Status { return Status{Running: true, AlertsFired: 2} }
	srv := httptest.NewServer(New(store.New(), status, nil).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	var got Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.True(t, got.Running)
	assert.Equal(t, 2, got.AlertsFired)
}

func TestWebsocketPushesSnapshots(t *testing.T) {
	st := store.New()
	srv := httptest.NewServer(New(st, nil, nil).Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var snap models.Snapshot
	require.NoError(t, conn.ReadJSON(&snap))
	assert.Zero(t, snap.Seq)

	st.Set([]models.Detection{{Class: "cup", Score: 0.5}}, models.Statistics{ObjectCount: 1}, models.Presence{})

	require.NoError(t, conn.ReadJSON(&snap))
	assert.Equal(t, uint64(1), snap.Seq)
	assert.Equal(t, 1, snap.Stats.ObjectCount)
}

func TestRunStopsWithContext(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	l.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(store.New(), nil, nil).Run(ctx, addr) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/api/snapshot")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
