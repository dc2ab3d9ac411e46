package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/jpeg"
	"net/url"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"objwatch/internal/models"
)

const jpegQuality = 80

// RemoteDetector sends frames to a detection server over a websocket and
// waits for the matching result. One frame is in flight per connection.
type RemoteDetector struct {
	serverURL string
	maxSide   int
	dialer    *websocket.Dialer
	logger    *zap.SugaredLogger

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewRemoteDetector does not connect; the first Detect or Prepare dials.
// Frames larger than maxSide on either side are downscaled before sending.
func NewRemoteDetector(host string, maxSide int, logger *zap.SugaredLogger) *RemoteDetector {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	u := url.URL{Scheme: "ws", Host: host, Path: "/ws"}

	return &RemoteDetector{
		serverURL: u.String(),
		maxSide:   maxSide,
		dialer:    &websocket.Dialer{HandshakeTimeout: 5 * time.Second},
		logger:    logger,
	}
}

func (d *RemoteDetector) URL() string {
	return d.serverURL
}

// Prepare connects to the server if not connected yet.
func (d *RemoteDetector) Prepare(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.connect(ctx)
	return err
}

func (d *RemoteDetector) connect(ctx context.Context) (*websocket.Conn, error) {
	if d.conn != nil {
		return d.conn, nil
	}

	d.logger.Infow("connecting to detector server", "url", d.serverURL)
	conn, _, err := d.dialer.DialContext(ctx, d.serverURL, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", d.serverURL)
	}
	d.logger.Infow("connected to detector server", "url", d.serverURL)
	d.conn = conn
	return conn, nil
}

func (d *RemoteDetector) drop() {
	if d.conn == nil {
		return
	}
	d.conn.Close()
	d.conn = nil
}

func (d *RemoteDetector) Detect(ctx context.Context, frame image.Image) ([]models.Detection, error) {
	if frame == nil {
		return nil, errors.New("nil frame")
	}
	bounds := frame.Bounds()

	payload, err := d.encode(frame)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	conn, err := d.connect(ctx)
	if err != nil {
		return nil, err
	}

	results, err := d.roundTrip(ctx, conn, payload)
	if err != nil {
		d.drop()
		return nil, err
	}

	dets := make([]models.Detection, 0, len(results))
	for _, r := range results {
		det, err := r.ToDetection(bounds.Dx(), bounds.Dy())
		if err != nil {
			return nil, err
		}
		det.BBox.X += float64(bounds.Min.X)
		det.BBox.Y += float64(bounds.Min.Y)
		dets = append(dets, det)
	}
	return dets, nil
}

func (d *RemoteDetector) encode(frame image.Image) ([]byte, error) {
	b := frame.Bounds()
	if d.maxSide > 0 && (b.Dx() > d.maxSide || b.Dy() > d.maxSide) {
		frame = imaging.Fit(frame, d.maxSide, d.maxSide, imaging.Linear)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, errors.Wrap(err, "jpeg encode")
	}
	return buf.Bytes(), nil
}

func (d *RemoteDetector) roundTrip(ctx context.Context, conn *websocket.Conn, payload []byte) ([]models.DetectionResult, error) {
	deadline, _ := ctx.Deadline()
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return nil, err
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}

	// Unblock the read as soon as ctx is done.
	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now())
	})
	defer stop()

	if err := conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
		return nil, errors.Wrap(err, "send frame")
	}

	_, message, err := conn.ReadMessage()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.Wrap(err, "read result")
	}

	var results []models.DetectionResult
	if err := json.Unmarshal(message, &results); err != nil {
		return nil, errors.Wrap(err, "decode result")
	}
	return results, nil
}

func (d *RemoteDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.drop()
	return nil
}
