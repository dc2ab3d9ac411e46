package models

import (
	"fmt"
	"math"
	"time"

	"github.com/pkg/errors"
)

const PersonClass = "person"

// DetectionResult is the wire form returned by the remote detection server.
// Box is [y1, x1, y2, x2], normalised to the frame size.
type DetectionResult struct {
	Label      string    `json:"label"`
	Confidence float32   `json:"confidence"`
	Box        []float32 `json:"box"`
}

type BBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Detection is one model output in pixel units. Values are never modified
// after the engine returns them.
type Detection struct {
	Class string  `json:"class"`
	Score float64 `json:"score"`
	BBox  BBox    `json:"bbox"`
}

func (d Detection) IsPerson() bool {
	return d.Class == PersonClass
}

// Percent is the score rounded to a whole percentage.
func (d Detection) Percent() int {
	return int(math.Round(d.Score * 100))
}

// Label is the text drawn above a bounding box, e.g. "person 93%".
func (d Detection) Label() string {
	return fmt.Sprintf("%s %d%%", d.Class, d.Percent())
}

// ToDetection scales a normalised wire box to a frame of the given size.
func (r DetectionResult) ToDetection(width, height int) (Detection, error) {
	if len(r.Box) != 4 {
		return Detection{}, errors.Errorf("box for %q has %d coordinates, want 4", r.Label, len(r.Box))
	}

	w := float64(width)
	h := float64(height)

	y1 := float64(r.Box[0]) * h
	x1 := float64(r.Box[1]) * w
	y2 := float64(r.Box[2]) * h
	x2 := float64(r.Box[3]) * w

	return Detection{
		Class: r.Label,
		Score: clampScore(float64(r.Confidence)),
		BBox:  BBox{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1},
	}, nil
}

func clampScore(s float64) float64 {
	switch {
	case s < 0:
		return 0
	case s > 1:
		return 1
	default:
		return s
	}
}

func HasPerson(dets []Detection) bool {
	for _, d := range dets {
		if d.IsPerson() {
			return true
		}
	}
	return false
}

type Statistics struct {
	FPS         int  `json:"fps"`
	FPSValid    bool `json:"fps_valid"`
	ObjectCount int  `json:"object_count"`
}

type Presence struct {
	IsPresent  bool      `json:"is_present"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// Snapshot is everything a cycle publishes for presentation.
type Snapshot struct {
	Seq        uint64      `json:"seq"`
	UpdatedAt  time.Time   `json:"updated_at"`
	Detections []Detection `json:"detections"`
	Stats      Statistics  `json:"stats"`
	Presence   Presence    `json:"presence"`
}
