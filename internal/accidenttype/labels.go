package accidenttype

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

// LabelMap translates model class indices into accident-type codes and,
// optionally, damage-location hints.
type LabelMap struct {
	Codes  map[int]string
	Damage map[int]string
}

type labelMapFile struct {
	Labels map[string]string `json:"labels"`
	Damage map[string]string `json:"damage_location"`
}

// ParseLabelMap reads {"labels": {"0": "12", ...}, "damage_location": {...}}.
func ParseLabelMap(r io.Reader) (*LabelMap, error) {
	var f labelMapFile
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse label map: %w", err)
	}
	if len(f.Labels) == 0 {
		return nil, fmt.Errorf("label map has no labels")
	}
	lm := &LabelMap{Codes: make(map[int]string, len(f.Labels)), Damage: make(map[int]string, len(f.Damage))}
	for k, v := range f.Labels {
		idx, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("label map key %q is not an index", k)
		}
		lm.Codes[idx] = v
	}
	for k, v := range f.Damage {
		idx, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("damage map key %q is not an index", k)
		}
		lm.Damage[idx] = v
	}
	return lm, nil
}

// Code returns the accident-type code for a model index. Indices absent from
// the map, or a nil map, fall back to the index itself.
func (m *LabelMap) Code(idx int) string {
	if m != nil {
		if c, ok := m.Codes[idx]; ok {
			return c
		}
	}
	return strconv.Itoa(idx)
}

// DamageHint returns the damage-location hint for a model index, if any.
func (m *LabelMap) DamageHint(idx int) string {
	if m == nil {
		return ""
	}
	return m.Damage[idx]
}
