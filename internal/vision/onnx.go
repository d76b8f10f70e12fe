package vision

import (
	"context"
	"fmt"
	"sync"

	"gocv.io/x/gocv"

	"github.com/banshee-data/accident.report/internal/accidenttype"
)

// onnxNet is a gocv network guarded for use by concurrent requests.
type onnxNet struct {
	mu  sync.Mutex
	net gocv.Net
}

func (n *onnxNet) run(inputs map[string]gocv.Mat) ([]float32, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for name, m := range inputs {
		n.net.SetInput(m, name)
	}
	out := n.net.Forward("")
	defer out.Close()
	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read output: %w", err)
	}
	// data aliases the Mat buffer, which is freed on return.
	return append([]float32(nil), data...), nil
}

// Close releases the network.
func (n *onnxNet) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.net.Close()
}

// SequenceModel runs the vehicle-B direction network over a
// (timesteps x features) sequence.
type SequenceModel struct {
	onnxNet
}

// LoadSequenceModel reads the direction network.
func LoadSequenceModel(path string, useCUDA bool) (*SequenceModel, error) {
	net, err := loadNet(path, useCUDA)
	if err != nil {
		return nil, err
	}
	return &SequenceModel{onnxNet{net: net}}, nil
}

// Predict implements direction.SequenceModel.
func (m *SequenceModel) Predict(ctx context.Context, seq [][]float32) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(seq) == 0 {
		return nil, fmt.Errorf("empty sequence")
	}
	dim := len(seq[0])
	blob := gocv.NewMatWithSizes([]int{1, len(seq), dim}, gocv.MatTypeCV32F)
	defer blob.Close()
	buf, err := blob.DataPtrFloat32()
	if err != nil {
		return nil, err
	}
	for t, row := range seq {
		if len(row) != dim {
			return nil, fmt.Errorf("step %d has %d features, expected %d", t, len(row), dim)
		}
		copy(buf[t*dim:], row)
	}
	return m.run(map[string]gocv.Mat{"": blob})
}

// TextModel runs the accident-type text classifier over one encoding.
type TextModel struct {
	onnxNet
}

// LoadTextModel reads the accident-type network.
func LoadTextModel(path string, useCUDA bool) (*TextModel, error) {
	net, err := loadNet(path, useCUDA)
	if err != nil {
		return nil, err
	}
	return &TextModel{onnxNet{net: net}}, nil
}

// Logits implements accidenttype.TextModel. Token ids are fed as float
// tensors, which the OpenCV importer casts back for embedding lookups.
func (m *TextModel) Logits(ctx context.Context, enc accidenttype.Encoding) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	inputs := map[string]gocv.Mat{}
	defer func() {
		for _, mat := range inputs {
			mat.Close()
		}
	}()
	for name, ids := range map[string][]int32{
		"input_ids":      enc.InputIDs,
		"attention_mask": enc.AttentionMask,
		"token_type_ids": enc.TokenTypeIDs,
	} {
		mat := gocv.NewMatWithSize(1, len(ids), gocv.MatTypeCV32F)
		inputs[name] = mat
		buf, err := mat.DataPtrFloat32()
		if err != nil {
			return nil, err
		}
		for i, v := range ids {
			buf[i] = float32(v)
		}
	}
	return m.run(inputs)
}
