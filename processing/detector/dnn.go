//go:build !gocv

package detector

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrNoDNN is returned when the binary was built without OpenCV support.
var ErrNoDNN = errors.New("dnn engine not available: rebuild with -tags gocv")

func newDNNEngine(modelPath, configPath string, logger *zap.SugaredLogger) (Engine, error) {
	return nil, ErrNoDNN
}
