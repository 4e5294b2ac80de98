// Package detect maps raw frames to coarse, set-independent detections.
// The detection model itself lives behind the Model boundary; this package
// only owns class vocabulary, confidence filtering, and failure signaling.
package detect

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/zkH2O/tftcoach/internal/capture"
	"github.com/zkH2O/tftcoach/internal/logging"
)

// ErrDetectionSkipped marks a recoverable model-invocation failure for a
// single frame. The pipeline continues with the next frame.
var ErrDetectionSkipped = errors.New("detection skipped")

// Class is a coarse detection class. Classes are set-independent: a
// Champion_Icon is a Champion_Icon in every set; which champion it shows is
// the identity resolver's problem.
type Class string

const (
	ClassChampionIcon Class = "Champion_Icon"
	ClassItemIcon     Class = "Item_Icon"
	ClassAugmentIcon  Class = "Augment_Icon"
	ClassShopCard     Class = "Shop_Card"
	ClassGoldText     Class = "Gold_Text"
	ClassStageText    Class = "Stage_Text"
	ClassOpponentText Class = "Opponent_Text"
)

// IsText reports whether detections of this class carry OCR text rather
// than an identifiable icon.
func (c Class) IsText() bool {
	switch c {
	case ClassGoldText, ClassStageText, ClassOpponentText:
		return true
	}
	return false
}

// Detection is one detected region in a frame. Order within a frame is
// irrelevant; callers treat the result as a set.
type Detection struct {
	Class      Class
	Box        image.Rectangle
	Confidence float64
	Text       string // OCR output for text classes, empty otherwise
	FrameSeq   uint64
}

// Model is the object-detection boundary. Implementations return raw
// detections without confidence filtering.
type Model interface {
	Detect(ctx context.Context, img image.Image) ([]Detection, error)
}

// ModelFunc adapts a function to the Model interface.
type ModelFunc func(ctx context.Context, img image.Image) ([]Detection, error)

// Detect implements Model.
func (f ModelFunc) Detect(ctx context.Context, img image.Image) ([]Detection, error) {
	return f(ctx, img)
}

// Detector wraps a Model with a confidence floor.
type Detector struct {
	model Model
	floor float64
}

// New creates a detector. Detections below floor are dropped before return.
func New(model Model, floor float64) *Detector {
	return &Detector{model: model, floor: floor}
}

// Detect runs the model on one frame. On model failure it returns an empty
// set wrapped in ErrDetectionSkipped; the caller logs and moves on.
func (d *Detector) Detect(ctx context.Context, f capture.Frame) ([]Detection, error) {
	timer := logging.StartTimer(logging.CategoryDetect, "detect")
	defer timer.Stop()

	raw, err := d.model.Detect(ctx, f.Image)
	if err != nil {
		return nil, fmt.Errorf("%w: frame seq=%d: %v", ErrDetectionSkipped, f.Seq, err)
	}

	out := make([]Detection, 0, len(raw))
	for _, det := range raw {
		if det.Confidence < d.floor {
			continue
		}
		det.FrameSeq = f.Seq
		out = append(out, det)
	}
	logging.DetectDebug("frame seq=%d: %d/%d detections above floor %.2f", f.Seq, len(out), len(raw), d.floor)
	return out, nil
}
