package egomotion

// Window is the analysis vehicle's lateral position between the other
// vehicle's first appearance and the estimated collision, re-based so the
// first sample is exactly zero.
type Window struct {
	FirstSeen int       `json:"first_seen"`
	Collision int       `json:"collision"`
	Position  []float64 `json:"position"`
}

// ExtractWindow integrates the negated ensemble trajectory into an ego
// position series and slices [firstSeen, collision]. It reports false when
// the bounds are out of order or outside the trajectory.
func ExtractWindow(ensemble []float64, firstSeen, collision int) (Window, bool) {
	if firstSeen < 0 || firstSeen > collision || collision >= len(ensemble) {
		return Window{}, false
	}
	egoLat := make([]float64, len(ensemble))
	for i, v := range ensemble {
		egoLat[i] = -v
	}
	pos := cumsum(egoLat)

	base := pos[firstSeen]
	sub := make([]float64, collision-firstSeen+1)
	for i := range sub {
		sub[i] = pos[firstSeen+i] - base
	}
	sub[0] = 0
	return Window{FirstSeen: firstSeen, Collision: collision, Position: sub}, true
}

// Frame returns the absolute frame index of window sample i.
func (w Window) Frame(i int) int { return w.FirstSeen + i }

// NetDisplacement is the change in position over the last k samples of the
// window, or over the whole window when it is shorter.
func (w Window) NetDisplacement(k int) float64 {
	n := len(w.Position)
	if n == 0 || k <= 0 {
		return 0
	}
	start := max(0, n-1-k)
	return w.Position[n-1] - w.Position[start]
}
