// Package meta fuses the upstream stage records into a normalised accident
// descriptor.
package meta

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/banshee-data/accident.report/internal/config"
	"github.com/banshee-data/accident.report/internal/direction"
	"github.com/banshee-data/accident.report/internal/egomotion"
	"github.com/banshee-data/accident.report/internal/timeline"
	"github.com/banshee-data/accident.report/internal/trafficlight"
)

// Vehicle A manoeuvres.
const (
	GoStraight = "go_straight"
	TurnLeft   = "turn_left"
	TurnRight  = "turn_right"
)

// Source records whether a descriptor field was inferred from data or fell
// back to a default.
type Source string

const (
	SourceEgoWindow  Source = "ego_window"
	SourceClassifier Source = "classifier"
	SourceLookup     Source = "direction_lookup"
	SourceDefault    Source = "default"
)

// adjacent lists the damage-location pairs that may be reported together.
var adjacent = map[[2]int]bool{
	{1, 2}: true, {1, 4}: true,
	{2, 3}: true, {3, 5}: true,
	{4, 6}: true, {5, 8}: true,
	{6, 7}: true, {7, 8}: true,
}

var damageByDirection = map[direction.Label][]int{
	direction.FromRight: {1, 2},
	direction.FromLeft:  {2, 3},
	direction.Center:    {2},
	direction.Unknown:   {7},
}

var defaultDamage = []int{2}

// Descriptor is the normalised accident record. It is a value type; the
// With* methods return modified copies.
type Descriptor struct {
	Video             string          `json:"video"`
	Location          string          `json:"location"`
	VehicleADirection string          `json:"vehicle_A_direction"`
	VehicleASource    Source          `json:"vehicle_A_source"`
	VehicleBDirection direction.Label `json:"vehicle_B_direction"`
	TrafficLight      bool            `json:"traffic_light"`
	DamageLocation    string          `json:"damage_location"`
	DamageSource      Source          `json:"damage_source"`
	CollisionFrame    int             `json:"accident_frame_idx"`
	TypeKey           string          `json:"accident_type_key"`
}

// Params tune the inference.
type Params struct {
	Location     string
	EgoWindow    int
	EgoThreshold float64
}

func ParamsFromConfig(cfg *config.PipelineConfig) Params {
	return Params{
		Location:     cfg.GetLocationType(),
		EgoWindow:    cfg.GetEgoDirectionWindow(),
		EgoThreshold: cfg.GetEgoDirectionThreshold(),
	}
}

// Input gathers the upstream records. Window is nil when no ego window
// could be extracted.
type Input struct {
	VideoID   string
	Window    *egomotion.Window
	Direction direction.Label
	Timeline  timeline.Result
	Signals   trafficlight.Info
}

// Infer builds the descriptor. Damage location comes from the direction
// lookup; a classifier hint can replace it later via WithDamageHint.
func Infer(in Input, p Params) Descriptor {
	dirB := direction.Normalize(string(in.Direction))
	aDir, aSrc := egoDirection(in.Window, p)
	damage, src := DamageFromDirection(dirB)

	d := Descriptor{
		Video:             in.VideoID,
		Location:          p.Location,
		VehicleADirection: aDir,
		VehicleASource:    aSrc,
		VehicleBDirection: dirB,
		TrafficLight:      in.Signals.Visible,
		DamageLocation:    damage,
		DamageSource:      src,
		CollisionFrame:    in.Timeline.Collision.FrameIdx,
	}
	d.TypeKey = TypeKey(d.Location, d.VehicleADirection, d.VehicleBDirection, d.TrafficLight)
	return d
}

// TypeKey composes the lookup key location_A_B_signal.
func TypeKey(location, dirA string, dirB direction.Label, signal bool) string {
	return fmt.Sprintf("%s_%s_%s_%s", location, dirA, dirB, strconv.FormatBool(signal))
}

// egoDirection classifies vehicle A's manoeuvre from the net lateral
// displacement over the last EgoWindow frames before the collision.
func egoDirection(w *egomotion.Window, p Params) (string, Source) {
	if w == nil || len(w.Position) < 2 {
		return GoStraight, SourceDefault
	}
	net := w.NetDisplacement(p.EgoWindow)
	switch {
	case net > p.EgoThreshold:
		return TurnRight, SourceEgoWindow
	case net < -p.EgoThreshold:
		return TurnLeft, SourceEgoWindow
	default:
		return GoStraight, SourceEgoWindow
	}
}

// DamageFromDirection maps a vehicle-B direction onto a damage-location code.
// Pairs that are not adjacent collapse to their first location.
func DamageFromDirection(dir direction.Label) (string, Source) {
	base, ok := damageByDirection[dir]
	src := SourceLookup
	if !ok {
		base, src = defaultDamage, SourceDefault
	}
	return formatDamage(base), src
}

func formatDamage(locs []int) string {
	if len(locs) == 1 {
		return strconv.Itoa(locs[0])
	}
	pair := append([]int(nil), locs...)
	sort.Ints(pair)
	if len(pair) == 2 && adjacent[[2]int{pair[0], pair[1]}] {
		return strconv.Itoa(pair[0]) + "," + strconv.Itoa(pair[1])
	}
	return strconv.Itoa(locs[0])
}

// IsEmptyDamage reports whether a damage hint carries no information.
func IsEmptyDamage(hint string) bool {
	switch strings.ToLower(strings.TrimSpace(hint)) {
	case "", "none", "null":
		return true
	}
	return false
}

// NormalizeDamage parses a comma-separated damage hint and applies the
// adjacency rule. It reports false when the hint is empty or malformed.
func NormalizeDamage(hint string) (string, bool) {
	if IsEmptyDamage(hint) {
		return "", false
	}
	var locs []int
	for _, part := range strings.Split(hint, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n <= 0 {
			return "", false
		}
		locs = append(locs, n)
	}
	if len(locs) > 2 {
		locs = locs[:1]
	}
	return formatDamage(locs), true
}

// WithDamageHint returns a copy of d whose damage location is taken from a
// classifier hint. Empty or malformed hints leave d unchanged.
func (d Descriptor) WithDamageHint(hint string) Descriptor {
	loc, ok := NormalizeDamage(hint)
	if !ok {
		return d
	}
	d.DamageLocation = loc
	d.DamageSource = SourceClassifier
	return d
}
