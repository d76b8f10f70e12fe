package meta

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/banshee-data/accident.report/internal/config"
	"github.com/banshee-data/accident.report/internal/direction"
	"github.com/banshee-data/accident.report/internal/egomotion"
	"github.com/banshee-data/accident.report/internal/timeline"
	"github.com/banshee-data/accident.report/internal/trafficlight"
)

func defaultParams() Params {
	return ParamsFromConfig(config.EmptyPipelineConfig())
}

func TestDamageFromDirection(t *testing.T) {
	tests := []struct {
		dir  direction.Label
		want string
		src  Source
	}{
		{direction.FromRight, "1,2", SourceLookup},
		{direction.FromLeft, "2,3", SourceLookup},
		{direction.Center, "2", SourceLookup},
		{direction.Unknown, "7", SourceLookup},
		{direction.Label("sideways"), "2", SourceDefault},
	}
	for _, tt := range tests {
		got, src := DamageFromDirection(tt.dir)
		assert.Equal(t, tt.want, got, "direction %s", tt.dir)
		assert.Equal(t, tt.src, src, "direction %s", tt.dir)
	}
}

func TestNormalizeDamage(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"", "", false},
		{" None ", "", false},
		{"null", "", false},
		{"3", "3", true},
		{"2,1", "1,2", true},
		{"4, 1", "1,4", true},
		{"1,3", "1", true}, // not adjacent
		{"8,5", "5,8", true},
		{"x", "", false},
		{"1,2,3", "1", true},
	}
	for _, tt := range tests {
		got, ok := NormalizeDamage(tt.in)
		assert.Equal(t, tt.ok, ok, "NormalizeDamage(%q)", tt.in)
		assert.Equal(t, tt.want, got, "NormalizeDamage(%q)", tt.in)
	}
}

func TestInfer(t *testing.T) {
	in := Input{
		VideoID:   "42",
		Direction: direction.FromRight,
		Timeline:  timeline.Result{Collision: timeline.Collision{FrameIdx: 75}},
		Signals:   trafficlight.Info{Visible: true},
	}
	d := Infer(in, defaultParams())

	assert.Equal(t, "42", d.Video)
	assert.Equal(t, "t_junction", d.Location)
	assert.Equal(t, GoStraight, d.VehicleADirection)
	assert.Equal(t, SourceDefault, d.VehicleASource)
	assert.Equal(t, direction.FromRight, d.VehicleBDirection)
	assert.True(t, d.TrafficLight)
	assert.Equal(t, "1,2", d.DamageLocation)
	assert.Equal(t, SourceLookup, d.DamageSource)
	assert.Equal(t, 75, d.CollisionFrame)
	assert.Equal(t, "t_junction_go_straight_from_right_true", d.TypeKey)
}

func TestInfer_LegacyDirectionLabel(t *testing.T) {
	d := Infer(Input{Direction: direction.Label("left")}, defaultParams())
	assert.Equal(t, direction.FromLeft, d.VehicleBDirection)
	assert.Equal(t, "2,3", d.DamageLocation)
}

func TestInfer_EgoDirection(t *testing.T) {
	p := defaultParams()
	tests := []struct {
		name string
		pos  []float64
		want string
		src  Source
	}{
		{"right", []float64{0, 1, 2, 10, 20}, TurnRight, SourceEgoWindow},
		{"left", []float64{0, -4, -9, -15}, TurnLeft, SourceEgoWindow},
		{"straight", []float64{0, 1, -1, 2}, GoStraight, SourceEgoWindow},
		{"too short", []float64{0}, GoStraight, SourceDefault},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &egomotion.Window{Position: tt.pos}
			d := Infer(Input{Window: w}, p)
			assert.Equal(t, tt.want, d.VehicleADirection)
			assert.Equal(t, tt.src, d.VehicleASource)
		})
	}
}

func TestWithDamageHint(t *testing.T) {
	base := Infer(Input{Direction: direction.FromRight}, defaultParams())

	got := base.WithDamageHint("")
	assert.Equal(t, base, got)

	got = base.WithDamageHint("4,1")
	assert.Equal(t, "1,4", got.DamageLocation)
	assert.Equal(t, SourceClassifier, got.DamageSource)
	assert.Equal(t, "1,2", base.DamageLocation, "original is unchanged")
}
