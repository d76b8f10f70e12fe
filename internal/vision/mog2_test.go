package vision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

const mogSide = 32

// squareFrame is a black frame, optionally with a white square in the middle.
func squareFrame(t *testing.T, square bool) gocv.Mat {
	t.Helper()
	px := make([]byte, mogSide*mogSide)
	if square {
		for y := 8; y < 24; y++ {
			for x := 8; x < 24; x++ {
				px[y*mogSide+x] = 255
			}
		}
	}
	m, err := gocv.NewMatFromBytes(mogSide, mogSide, gocv.MatTypeCV8U, px)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

// centreAfterSquare returns the mask value at the square's centre after the
// square has been visible for several frames.
func centreAfterSquare(t *testing.T, rate float64) byte {
	t.Helper()
	mog := newMOG2(MOG2Config{History: 200, VarThreshold: 16, LearningRate: rate})
	defer mog.Close()

	_, err := mog.apply(squareFrame(t, false))
	require.NoError(t, err)
	var raw []byte
	for range 6 {
		raw, err = mog.apply(squareFrame(t, true))
		require.NoError(t, err)
	}
	require.Len(t, raw, mogSide*mogSide)
	return raw[16*mogSide+16]
}

func TestMOG2_FixedLearningRate(t *testing.T) {
	// A frozen model keeps reporting the new object as foreground.
	assert.Equal(t, byte(255), centreAfterSquare(t, 0))
	// A fast-adapting model absorbs it into the background.
	assert.Equal(t, byte(0), centreAfterSquare(t, 0.5))
}
