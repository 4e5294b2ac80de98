package detect

import (
	"context"
	"errors"
	"image"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zkH2O/tftcoach/internal/capture"
)

func frame(seq uint64) capture.Frame {
	return capture.Frame{
		Seq:        seq,
		Image:      image.NewRGBA(image.Rect(0, 0, 8, 8)),
		CapturedAt: time.Now(),
	}
}

func TestDetector_FiltersBelowConfidenceFloor(t *testing.T) {
	model := ModelFunc(func(ctx context.Context, img image.Image) ([]Detection, error) {
		return []Detection{
			{Class: ClassChampionIcon, Confidence: 0.91},
			{Class: ClassItemIcon, Confidence: 0.39},
			{Class: ClassGoldText, Confidence: 0.55, Text: "42"},
		}, nil
	})

	d := New(model, 0.40)
	dets, err := d.Detect(context.Background(), frame(3))
	require.NoError(t, err)

	require.Len(t, dets, 2)
	for _, det := range dets {
		assert.GreaterOrEqual(t, det.Confidence, 0.40)
		assert.Equal(t, uint64(3), det.FrameSeq, "detections carry the source frame sequence")
	}
}

func TestDetector_ModelFailureIsSkippedNotFatal(t *testing.T) {
	model := ModelFunc(func(ctx context.Context, img image.Image) ([]Detection, error) {
		return nil, errors.New("model crashed")
	})

	d := New(model, 0.40)
	dets, err := d.Detect(context.Background(), frame(1))

	assert.Empty(t, dets)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDetectionSkipped)
}

func TestClass_IsText(t *testing.T) {
	assert.True(t, ClassGoldText.IsText())
	assert.True(t, ClassStageText.IsText())
	assert.True(t, ClassOpponentText.IsText())
	assert.False(t, ClassChampionIcon.IsText())
	assert.False(t, ClassItemIcon.IsText())
}

func TestHTTPModel_RoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/detect", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"detections":[
			{"class":"Champion_Icon","box":[10,20,74,84],"confidence":0.88},
			{"class":"Gold_Text","box":[800,10,860,40],"confidence":0.95,"text":"51"}
		]}`))
	}))
	defer srv.Close()

	model := NewHTTPModel(srv.URL, time.Second)
	dets, err := model.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 16, 16)))
	require.NoError(t, err)

	require.Len(t, dets, 2)
	assert.Equal(t, ClassChampionIcon, dets[0].Class)
	assert.Equal(t, image.Rect(10, 20, 74, 84), dets[0].Box)
	assert.InDelta(t, 0.88, dets[0].Confidence, 1e-9)
	assert.Equal(t, "51", dets[1].Text)
}

func TestHTTPModel_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "cuda out of memory", http.StatusInternalServerError)
	}))
	defer srv.Close()

	model := NewHTTPModel(srv.URL, time.Second)
	_, err := model.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 16, 16)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}
