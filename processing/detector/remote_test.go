package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"objwatch/internal/models"
)

type wsHandler func(conn *websocket.Conn, frame image.Image) bool

// newDetectorServer answers every binary frame through handle until handle
// returns false, which closes the connection.
func newDetectorServer(t *testing.T, handle wsHandler) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var connects atomic.Int32
	upgrader := websocket.Upgrader{}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		connects.Add(1)

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			img, err := jpeg.Decode(bytes.NewReader(msg))
			if err != nil {
				return
			}
			if !handle(conn, img) {
				return
			}
		}
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &connects
}

func hostOf(srv *httptest.Server) string {
	return strings.TrimPrefix(srv.URL, "http://")
}

func reply(results []models.DetectionResult) wsHandler {
	return func(conn *websocket.Conn, _ image.Image) bool {
		data, _ := json.Marshal(results)
		return conn.WriteMessage(websocket.TextMessage, data) == nil
	}
}

func TestRemoteDetectorScalesBoxesToFrame(t *testing.T) {
	srv, _ := newDetectorServer(t, reply([]models.DetectionResult{
		{Label: "person", Confidence: 0.93, Box: []float32{0.25, 0.5, 0.75, 1}},
	}))

	d := NewRemoteDetector(hostOf(srv), 0, nil)
	defer d.Close()

	dets, err := d.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 200, 100)))
	require.NoError(t, err)
	require.Len(t, dets, 1)

	assert.Equal(t, "person", dets[0].Class)
	assert.InDelta(t, 0.93, dets[0].Score, 1e-6)
	assert.Equal(t, models.BBox{X: 100, Y: 25, Width: 100, Height: 50}, dets[0].BBox)
}

func TestRemoteDetectorDownscalesBeforeSending(t *testing.T) {
	var sent atomic.Value
	srv, _ := newDetectorServer(t, func(conn *websocket.Conn, img image.Image) bool {
		sent.Store(img.Bounds())
		return conn.WriteMessage(websocket.TextMessage, []byte(`[{"label":"cup","confidence":0.5,"box":[0,0,0.5,0.5]}]`)) == nil
	})

	d := NewRemoteDetector(hostOf(srv), 64, nil)
	defer d.Close()

	dets, err := d.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 256, 128)))
	require.NoError(t, err)

	assert.Equal(t, image.Rect(0, 0, 64, 32), sent.Load())
	require.Len(t, dets, 1)
	assert.Equal(t, models.BBox{Width: 128, Height: 64}, dets[0].BBox)
}

func TestRemoteDetectorReusesConnection(t *testing.T) {
	srv, connects := newDetectorServer(t, reply(nil))

	d := NewRemoteDetector(hostOf(srv), 0, nil)
	defer d.Close()

	require.NoError(t, d.Prepare(context.Background()))
	for i := 0; i < 3; i++ {
		dets, err := d.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 8, 8)))
		require.NoError(t, err)
		assert.Empty(t, dets)
	}
	assert.Equal(t, int32(1), connects.Load())
}

func TestRemoteDetectorRedialsAfterFailure(t *testing.T) {
	var calls atomic.Int32
	srv, connects := newDetectorServer(t, func(conn *websocket.Conn, img image.Image) bool {
		if calls.Add(1) == 1 {
			return false
		}
		return reply(nil)(conn, img)
	})

	d := NewRemoteDetector(hostOf(srv), 0, nil)
	defer d.Close()

	frame := image.NewRGBA(image.Rect(0, 0, 8, 8))
	_, err := d.Detect(context.Background(), frame)
	require.Error(t, err)

	_, err = d.Detect(context.Background(), frame)
	require.NoError(t, err)
	assert.Equal(t, int32(2), connects.Load())
}

func TestRemoteDetectorRejectsMalformedBox(t *testing.T) {
	srv, _ := newDetectorServer(t, reply([]models.DetectionResult{
		{Label: "person", Confidence: 0.9, Box: []float32{0.1, 0.2}},
	}))

	d := NewRemoteDetector(hostOf(srv), 0, nil)
	defer d.Close()

	_, err := d.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 8, 8)))
	assert.Error(t, err)
}

func TestRemoteDetectorHonoursContext(t *testing.T) {
	srv, _ := newDetectorServer(t, func(*websocket.Conn, image.Image) bool {
		return true
	})

	d := NewRemoteDetector(hostOf(srv), 0, nil)
	defer d.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := d.Detect(ctx, image.NewRGBA(image.Rect(0, 0, 8, 8)))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestRemoteDetectorDialError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	d := NewRemoteDetector(hostOf(srv), 0, nil)
	assert.Error(t, d.Prepare(context.Background()))
	assert.Equal(t, "ws://"+hostOf(srv)+"/ws", d.URL())
}
