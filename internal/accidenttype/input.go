package accidenttype

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/banshee-data/accident.report/internal/detection"
	"github.com/banshee-data/accident.report/internal/direction"
	"github.com/banshee-data/accident.report/internal/fsutil"
)

// InputSchemaVersion is bumped whenever Input changes shape.
const InputSchemaVersion = 1

// InputFile is the per-run filename of the serialized classifier input.
const InputFile = "type_input.json"

var categoryIndex = map[direction.Label]int{
	direction.FromLeft:  0,
	direction.Center:    1,
	direction.FromRight: 2,
}

// Input is the classifier input record.
type Input struct {
	SchemaVersion int          `json:"schema_version"`
	VideoID       string       `json:"video_id"`
	Category      [3]float32   `json:"category_tensor"`
	BBoxes        [][4]float32 `json:"bbox_sequence"`
	AttentionMask []int32      `json:"attention_mask"`
	AccidentFrame int          `json:"accident_frame"`
	Direction     string       `json:"direction"`
}

// BuildInput assembles the classifier input from the vehicle-B track and its
// direction. An unknown direction leaves the category vector all zero.
func BuildInput(videoID string, track []detection.Sample, dir direction.Label, accidentFrame int) Input {
	in := Input{
		SchemaVersion: InputSchemaVersion,
		VideoID:       videoID,
		BBoxes:        make([][4]float32, len(track)),
		AttentionMask: make([]int32, len(track)),
		AccidentFrame: accidentFrame,
		Direction:     string(dir),
	}
	for i, s := range track {
		in.BBoxes[i] = [4]float32{float32(s.Box[0]), float32(s.Box[1]), float32(s.Box[2]), float32(s.Box[3])}
		in.AttentionMask[i] = 1
	}
	if idx, ok := categoryIndex[dir]; ok {
		in.Category[idx] = 1
	}
	return in
}

// Text serializes the input as space-separated box coordinates, a [SEP]
// marker and the category vector, e.g. "10.0 20.5 30.0 40.0 [SEP] 0.0 1.0 0.0".
func (in Input) Text() string {
	var b strings.Builder
	for _, box := range in.BBoxes {
		for _, v := range box {
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(formatNumber(v))
		}
	}
	b.WriteString(" [SEP] ")
	for i, v := range in.Category {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(formatNumber(v))
	}
	return b.String()
}

// formatNumber renders a float32 in its shortest form, always with a
// fractional part.
func formatNumber(v float32) string {
	s := strconv.FormatFloat(float64(v), 'f', -1, 32)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// WriteInput persists in under dir.
func WriteInput(fsys fsutil.FileSystem, dir string, in Input) error {
	return fsutil.WriteJSON(fsys, filepath.Join(dir, InputFile), in)
}
