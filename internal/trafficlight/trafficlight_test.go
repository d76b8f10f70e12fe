package trafficlight

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/accident.report/internal/detection"
	"github.com/banshee-data/accident.report/internal/timeline"
)

func TestEvents(t *testing.T) {
	set := detection.Set{
		{Index: 9, Boxes: []detection.Box{{Class: detection.ClassTrafficLightGreen}}},
		{Index: 2, Boxes: []detection.Box{
			{Class: detection.ClassVehicleB},
			{Class: detection.ClassTrafficLightRed},
		}},
		{Index: 5},
	}
	got := Events(set)
	assert.Equal(t, []timeline.Event{
		{Label: "traffic-light-red", Frame: 2},
		{Label: "traffic-light-green", Frame: 9},
	}, got)

	assert.Empty(t, Events(detection.Set{{Index: 1, Boxes: []detection.Box{{Class: detection.ClassVehicleB}}}}))
}

func TestSummarize(t *testing.T) {
	events := []timeline.Event{{Label: "traffic-light-red", Frame: 4}, {Label: "traffic-light-green", Frame: 20}}

	info := Summarize(events, 10)
	assert.True(t, info.Visible)
	require.NotNil(t, info.FirstSeenBefore)
	assert.Equal(t, 4, *info.FirstSeenBefore)
	assert.Equal(t, "traffic-light-red", info.StateAtFirstSeen)

	info = Summarize(events, 4)
	assert.False(t, info.Visible)
	assert.Nil(t, info.FirstSeenBefore)

	assert.False(t, Summarize(nil, 100).Visible)
}
