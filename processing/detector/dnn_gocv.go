//go:build gocv

package detector

import (
	"context"
	"image"
	"os"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"objwatch/internal/models"
)

// DNNDetector runs an SSD MobileNet COCO graph locally through OpenCV.
type DNNDetector struct {
	mu     sync.Mutex
	net    gocv.Net
	logger *zap.SugaredLogger
}

func NewDNNDetector(modelPath, configPath string, logger *zap.SugaredLogger) (*DNNDetector, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, errors.Wrap(err, "model file")
	}
	if _, err := os.Stat(configPath); err != nil {
		return nil, errors.Wrap(err, "model config file")
	}

	net := gocv.ReadNet(modelPath, configPath)
	if net.Empty() {
		return nil, errors.Errorf("failed to load network from %s", modelPath)
	}
	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		net.Close()
		return nil, errors.Wrap(err, "set backend")
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		net.Close()
		return nil, errors.Wrap(err, "set target")
	}

	logger.Infow("detection network loaded", "model", modelPath)
	return &DNNDetector{net: net, logger: logger}, nil
}

func (d *DNNDetector) Detect(ctx context.Context, frame image.Image) ([]models.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mat, err := gocv.ImageToMatRGB(frame)
	if err != nil {
		return nil, errors.Wrap(err, "convert frame")
	}
	defer mat.Close()
	if mat.Empty() {
		return nil, errors.New("empty frame")
	}

	blob := gocv.BlobFromImage(mat, 1.0/127.5, image.Pt(300, 300), gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	defer blob.Close()

	d.mu.Lock()
	defer d.mu.Unlock()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	rows := output.Reshape(1, output.Total()/7)
	defer rows.Close()

	cols := float64(mat.Cols())
	height := float64(mat.Rows())
	bounds := frame.Bounds()

	var dets []models.Detection
	for i := 0; i < rows.Rows(); i++ {
		score := float64(rows.GetFloatAt(i, 2))
		if score <= 0 {
			continue
		}
		x1 := float64(rows.GetFloatAt(i, 3)) * cols
		y1 := float64(rows.GetFloatAt(i, 4)) * height
		x2 := float64(rows.GetFloatAt(i, 5)) * cols
		y2 := float64(rows.GetFloatAt(i, 6)) * height

		dets = append(dets, models.Detection{
			Class: classLabel(int(rows.GetFloatAt(i, 1))),
			Score: min(score, 1),
			BBox: models.BBox{
				X:      x1 + float64(bounds.Min.X),
				Y:      y1 + float64(bounds.Min.Y),
				Width:  x2 - x1,
				Height: y2 - y1,
			},
		})
	}
	return dets, nil
}

func (d *DNNDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}

func newDNNEngine(modelPath, configPath string, logger *zap.SugaredLogger) (Engine, error) {
	return NewDNNDetector(modelPath, configPath, logger)
}
