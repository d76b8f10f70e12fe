// Package trafficlight extracts traffic-signal sightings from detections.
package trafficlight

import (
	"github.com/banshee-data/accident.report/internal/detection"
	"github.com/banshee-data/accident.report/internal/timeline"
)

// Events returns one event per signal-state detection, ordered by frame.
// Labels are the class names, e.g. "traffic-light-red".
func Events(set detection.Set) []timeline.Event {
	var out []timeline.Event
	for _, f := range set {
		for _, b := range f.Boxes {
			if b.Class.IsTrafficLight() {
				out = append(out, timeline.Event{Label: b.Class.String(), Frame: f.Index})
			}
		}
	}
	timeline.SortEvents(out)
	return out
}

// Info summarises signal visibility relative to the collision frame.
type Info struct {
	Visible          bool   `json:"traffic_light"`
	FirstSeenBefore  *int   `json:"first_seen_before_accident,omitempty"`
	StateAtFirstSeen string `json:"state_at_first_seen,omitempty"`
}

// Summarize reports whether any signal was seen strictly before collision.
func Summarize(events []timeline.Event, collision int) Info {
	for _, e := range events {
		if e.Frame < collision {
			frame := e.Frame
			return Info{Visible: true, FirstSeenBefore: &frame, StateAtFirstSeen: e.Label}
		}
	}
	return Info{}
}
