// Package timeline reconstructs when the other vehicle first appeared and
// when the collision happened from per-frame detections.
package timeline

import (
	"sort"

	"github.com/banshee-data/accident.report/internal/config"
	"github.com/banshee-data/accident.report/internal/detection"
)

// Event labels.
const (
	EventFirstSeen         = "vehicle_B_first_seen"
	EventSignalDetected    = "traffic_light_detected"
	EventAccidentEstimated = "accident_estimated"
	EventAftermath         = "aftermath"
)

// Event is one point on the reconstructed timeline.
type Event struct {
	Label string `json:"event"`
	Frame int    `json:"frame_idx"`
}

// SortEvents orders events by frame, keeping the causal order of events that
// share a frame.
func SortEvents(events []Event) {
	sort.SliceStable(events, func(i, j int) bool { return events[i].Frame < events[j].Frame })
}

// Collision methods.
const (
	MethodBackground = "background_mask"
	MethodMinArea    = "min_area"
	MethodDefault    = "default"
)

// Collision is the raw collision-frame record.
type Collision struct {
	Frame     string          `json:"frame"`
	FrameIdx  int             `json:"frame_idx"`
	Area      float64         `json:"area"`
	Reference *detection.BBox `json:"reference_box,omitempty"`
	Method    string          `json:"method"`
	// Candidate is the background-mask frame that led to the collision
	// estimate, or -1.
	Candidate int `json:"candidate"`
}

// Params tune the reconstruction.
type Params struct {
	SkipFrames      int
	AftermathOffset int
	IoUThreshold    float64
	MaxBackwardGap  int
}

func ParamsFromConfig(cfg *config.PipelineConfig) Params {
	return Params{
		SkipFrames:      cfg.GetSkipFrames(),
		AftermathOffset: cfg.GetAftermathOffset(),
		IoUThreshold:    cfg.GetIoUThreshold(),
		MaxBackwardGap:  cfg.GetMaxBackwardGap(),
	}
}

// Input gathers the upstream records the reconstructor consumes. Foreground
// and Signals are optional.
type Input struct {
	Detections detection.Set
	// Foreground maps frame index to the count of newly-appeared
	// foreground pixels.
	Foreground map[int]int
	Signals    []Event
	Direction  string
}

// Result is the reconstructed timeline.
type Result struct {
	Events    []Event   `json:"event_timeline"`
	Collision Collision `json:"accident_frame"`
	FirstSeen int       `json:"first_seen_idx"`
	Direction string    `json:"vehicle_B_direction,omitempty"`
}

// Reconstruct locates the collision and first-seen frames and builds the
// ordered event list. It never fails: without any vehicle-B detection the
// collision defaults to frame 0.
func Reconstruct(in Input, p Params) Result {
	frames := append(detection.Set(nil), in.Detections...)
	frames.Sort()

	coll, ok := fromForeground(frames, in.Foreground, p.SkipFrames)
	if !ok {
		coll = fromMinArea(frames, p.SkipFrames)
	}

	firstSeen := coll.FrameIdx
	if coll.Reference != nil {
		firstSeen = walkBack(frames, coll.FrameIdx, *coll.Reference, p)
	}

	events := []Event{{Label: EventFirstSeen, Frame: firstSeen}}
	if len(in.Signals) > 0 {
		first := in.Signals[0].Frame
		for _, s := range in.Signals[1:] {
			first = min(first, s.Frame)
		}
		events = append(events, Event{Label: EventSignalDetected, Frame: first})
	}
	events = append(events,
		Event{Label: EventAccidentEstimated, Frame: coll.FrameIdx},
		Event{Label: EventAftermath, Frame: coll.FrameIdx + p.AftermathOffset},
	)
	SortEvents(events)

	return Result{
		Events:    events,
		Collision: coll,
		FirstSeen: firstSeen,
		Direction: in.Direction,
	}
}

// fromForeground ranks frames past the skip floor by new-foreground count and
// searches outward from the best candidate for a vehicle-B detection,
// forward first.
func fromForeground(frames detection.Set, fg map[int]int, skip int) (Collision, bool) {
	type candidate struct{ frame, count int }
	var cands []candidate
	for idx, n := range fg {
		if idx >= skip && n > 0 {
			cands = append(cands, candidate{idx, n})
		}
	}
	if len(cands) == 0 {
		return Collision{}, false
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].count != cands[j].count {
			return cands[i].count > cands[j].count
		}
		return cands[i].frame < cands[j].frame
	})

	for _, c := range cands {
		start := sort.Search(len(frames), func(i int) bool { return frames[i].Index >= c.frame })
		for i := start; i < len(frames); i++ {
			if b, ok := frames[i].First(detection.ClassVehicleB); ok {
				return collisionAt(frames[i], b, MethodBackground, c.frame), true
			}
		}
		for i := start - 1; i >= 0; i-- {
			if b, ok := frames[i].First(detection.ClassVehicleB); ok {
				return collisionAt(frames[i], b, MethodBackground, c.frame), true
			}
		}
	}
	return Collision{}, false
}

// fromMinArea picks the vehicle-B box of smallest area past the skip floor,
// relaxing the floor when nothing lies beyond it.
func fromMinArea(frames detection.Set, skip int) Collision {
	for _, floor := range []int{skip, 0} {
		best := -1
		var bestBox detection.Box
		for i, f := range frames {
			if f.Index < floor {
				continue
			}
			for _, b := range f.Boxes {
				if b.Class != detection.ClassVehicleB {
					continue
				}
				if best < 0 || b.BBox.Area() < bestBox.BBox.Area() {
					best, bestBox = i, b
				}
			}
		}
		if best >= 0 {
			return collisionAt(frames[best], bestBox, MethodMinArea, -1)
		}
	}
	return Collision{Frame: detection.FrameName(0), Method: MethodDefault, Candidate: -1}
}

func collisionAt(f detection.Frame, b detection.Box, method string, cand int) Collision {
	ref := b.BBox
	return Collision{
		Frame:     f.Name,
		FrameIdx:  f.Index,
		Area:      ref.Area(),
		Reference: &ref,
		Method:    method,
		Candidate: cand,
	}
}

// walkBack steps backward from the collision frame over frame indices and
// returns the earliest frame whose vehicle-B box overlaps ref by at least
// the IoU threshold. The walk stops after MaxBackwardGap consecutive frames
// without a match.
func walkBack(frames detection.Set, collision int, ref detection.BBox, p Params) int {
	byIdx := frames.ByIndex()
	earliest := collision
	gap := 0
	for idx := collision - 1; idx >= 0; idx-- {
		matched := false
		if pos, ok := byIdx[idx]; ok {
			for _, b := range frames[pos].Boxes {
				if b.Class == detection.ClassVehicleB && detection.IoU(b.BBox, ref) >= p.IoUThreshold {
					matched = true
					break
				}
			}
		}
		if matched {
			earliest = idx
			gap = 0
			continue
		}
		gap++
		if gap > p.MaxBackwardGap {
			break
		}
	}
	return earliest
}
