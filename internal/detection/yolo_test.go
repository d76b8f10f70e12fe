package detection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeYOLO_AttributeMajor(t *testing.T) {
	// 2 classes, 3 candidates. Rows are cx, cy, w, h, score0, score1.
	data := []float32{
		100, 200, 300,
		100, 200, 300,
		20, 40, 10,
		20, 40, 10,
		0.9, 0.1, 0.05,
		0.05, 0.8, 0.1,
	}
	boxes, err := DecodeYOLO(data, []int{1, 6, 3}, DecodeParams{
		NumClasses: 2, ScaleX: 2, ScaleY: 1, Confidence: 0.25,
	})
	require.NoError(t, err)
	require.Len(t, boxes, 2)

	assert.Equal(t, ClassVehicleA, boxes[0].Class)
	assert.InDelta(t, 0.9, boxes[0].Score, 1e-6)
	assert.Equal(t, BBox{180, 90, 220, 110}, boxes[0].BBox)

	assert.Equal(t, ClassVehicleB, boxes[1].Class)
	assert.Equal(t, BBox{360, 180, 440, 220}, boxes[1].BBox)
}

func TestDecodeYOLO_CandidateMajor(t *testing.T) {
	// 1 class, 2 candidates. Columns are cx, cy, w, h, objectness, score0.
	data := []float32{
		50, 50, 10, 10, 0.9, 0.5,
		60, 60, 10, 10, 0.1, 1.0,
	}
	boxes, err := DecodeYOLO(data, []int{1, 2, 6}, DecodeParams{
		NumClasses: 1, ScaleX: 1, ScaleY: 1, Confidence: 0.25,
	})
	require.NoError(t, err)
	require.Len(t, boxes, 1)
	assert.InDelta(t, 0.45, boxes[0].Score, 1e-6)
	assert.Equal(t, BBox{45, 45, 55, 55}, boxes[0].BBox)
}

func TestDecodeYOLO_BadShape(t *testing.T) {
	_, err := DecodeYOLO(make([]float32, 12), []int{1, 3, 4}, DecodeParams{NumClasses: 4})
	assert.Error(t, err)

	_, err = DecodeYOLO(make([]float32, 4), []int{1, 8, 10}, DecodeParams{NumClasses: 4})
	assert.Error(t, err, "short buffer")
}

func TestNMS(t *testing.T) {
	boxes := []Box{
		{BBox: BBox{0, 0, 10, 10}, Score: 0.6, Class: ClassVehicleB},
		{BBox: BBox{1, 0, 11, 10}, Score: 0.9, Class: ClassVehicleB},
		{BBox: BBox{1, 0, 11, 10}, Score: 0.5, Class: ClassTrafficLightRed},
		{BBox: BBox{50, 50, 60, 60}, Score: 0.4, Class: ClassVehicleB},
	}
	kept := NMS(boxes, 0.45)
	require.Len(t, kept, 3)
	assert.InDelta(t, 0.9, kept[0].Score, 1e-12)
	assert.Equal(t, ClassTrafficLightRed, kept[1].Class)
	assert.Equal(t, BBox{50, 50, 60, 60}, kept[2].BBox)

	assert.Nil(t, NMS(nil, 0.45))
}
