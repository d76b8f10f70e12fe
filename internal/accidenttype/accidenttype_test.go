package accidenttype

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/accident.report/internal/detection"
	"github.com/banshee-data/accident.report/internal/direction"
	"github.com/banshee-data/accident.report/internal/fsutil"
)

const testVocab = `[PAD]
[UNK]
[CLS]
[SEP]
.
0
1
2
5
10
##0
##5
un
##known
`

func writeVocab(t *testing.T, vocab string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vocab.txt")
	require.NoError(t, os.WriteFile(path, []byte(vocab), 0o644))
	return path
}

func testTokenizer(t *testing.T, maxLen int) *Tokenizer {
	t.Helper()
	tok, err := LoadTokenizer(writeVocab(t, testVocab), maxLen)
	require.NoError(t, err)
	return tok
}

func TestLoadTokenizer_Errors(t *testing.T) {
	_, err := LoadTokenizer(writeVocab(t, "a\nb\n"), 512)
	assert.ErrorContains(t, err, "vocab is missing [CLS]")

	_, err = LoadTokenizer(filepath.Join(t.TempDir(), "missing.txt"), 512)
	assert.ErrorContains(t, err, "failed to read vocab")
}

func TestEncode(t *testing.T) {
	tok := testTokenizer(t, 512)

	enc, err := tok.Encode("10.5 [SEP] Unknown zz")
	require.NoError(t, err)
	assert.Equal(t, []string{"[CLS]", "10", ".", "5", "[SEP]", "un", "##known", "[UNK]", "[SEP]"}, enc.Tokens)
	assert.Equal(t, []int32{2, 9, 4, 8, 3, 12, 13, 1, 3}, enc.InputIDs)
	assert.Len(t, enc.AttentionMask, len(enc.InputIDs))
	for _, m := range enc.AttentionMask {
		assert.Equal(t, int32(1), m)
	}
	assert.Equal(t, make([]int32, len(enc.InputIDs)), enc.TokenTypeIDs)
}

func TestEncode_WordPieceContinuation(t *testing.T) {
	tok := testTokenizer(t, 512)
	enc, err := tok.Encode("100 105")
	require.NoError(t, err)
	assert.Equal(t, []string{"[CLS]", "10", "##0", "10", "##5", "[SEP]"}, enc.Tokens)
}

func TestEncode_Truncates(t *testing.T) {
	tok := testTokenizer(t, 8)
	// Repeated calls must not shrink the limit.
	for range 3 {
		enc, err := tok.Encode(strings.Repeat("1 ", 50))
		require.NoError(t, err)
		assert.Len(t, enc.InputIDs, 8)
		assert.Equal(t, []int32{2, 6, 6, 6, 6, 6, 6, 3}, enc.InputIDs)
		assert.Equal(t, "[SEP]", enc.Tokens[7])
	}
}

func TestBuildInput(t *testing.T) {
	track := []detection.Sample{
		{Frame: 3, Box: detection.BBox{10, 20.5, 30, 40}},
		{Frame: 4, Box: detection.BBox{11, 21, 31, 41}},
	}
	in := BuildInput("v1", track, direction.Center, 75)

	assert.Equal(t, InputSchemaVersion, in.SchemaVersion)
	assert.Equal(t, [3]float32{0, 1, 0}, in.Category)
	assert.Equal(t, []int32{1, 1}, in.AttentionMask)
	assert.Equal(t, 75, in.AccidentFrame)
	assert.Equal(t, "10.0 20.5 30.0 40.0 11.0 21.0 31.0 41.0 [SEP] 0.0 1.0 0.0", in.Text())

	in = BuildInput("v1", nil, direction.Unknown, 0)
	assert.Equal(t, [3]float32{}, in.Category)
	assert.Equal(t, " [SEP] 0.0 0.0 0.0", in.Text())
}

func TestWriteInput(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	in := BuildInput("v9", []detection.Sample{{Frame: 1, Box: detection.BBox{1, 2, 3, 4}}}, direction.FromLeft, 12)
	require.NoError(t, WriteInput(mfs, "/run", in))

	var got Input
	require.NoError(t, fsutil.ReadJSON(mfs, "/run/"+InputFile, &got))
	assert.Equal(t, in, got)
	assert.Equal(t, InputSchemaVersion, got.SchemaVersion)
}

func TestParseLabelMap(t *testing.T) {
	lm, err := ParseLabelMap(strings.NewReader(`{"labels": {"0": "12", "1": "34", "2": "7"}, "damage_location": {"1": "1,2"}}`))
	require.NoError(t, err)
	assert.Equal(t, "34", lm.Code(1))
	assert.Equal(t, "9", lm.Code(9))
	assert.Equal(t, "1,2", lm.DamageHint(1))
	assert.Equal(t, "", lm.DamageHint(0))

	var nilMap *LabelMap
	assert.Equal(t, "3", nilMap.Code(3))
	assert.Equal(t, "", nilMap.DamageHint(3))

	_, err = ParseLabelMap(strings.NewReader(`{"labels": {}}`))
	assert.Error(t, err)
	_, err = ParseLabelMap(strings.NewReader(`{"labels": {"x": "1"}}`))
	assert.Error(t, err)
	_, err = ParseLabelMap(strings.NewReader(`not json`))
	assert.Error(t, err)
}

type stubModel struct {
	logits []float32
	err    error
	got    Encoding
}

func (m *stubModel) Logits(_ context.Context, enc Encoding) ([]float32, error) {
	m.got = enc
	return m.logits, m.err
}

func TestClassify(t *testing.T) {
	tok := testTokenizer(t, 512)
	labels := &LabelMap{
		Codes:  map[int]string{0: "12", 1: "34", 2: "7"},
		Damage: map[int]string{2: "2,3"},
	}
	model := &stubModel{logits: []float32{0.5, 4.0, 1.0}}
	deny := map[string][]string{"from_left": {"34"}}
	c := NewClassifier(tok, model, labels, deny)

	in := BuildInput("v", []detection.Sample{{Box: detection.BBox{1, 2, 5, 10}}}, direction.Center, 0)
	res, err := c.Classify(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "34", res.Code)
	assert.Equal(t, 1, res.Index)
	assert.Empty(t, res.Suppressed)
	assert.Equal(t, len(model.got.InputIDs), res.Tokens)

	in.Direction = string(direction.FromLeft)
	res, err = c.Classify(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "7", res.Code, "denied code is skipped")
	assert.Equal(t, "2,3", res.DamageHint)
	assert.Equal(t, []string{"34"}, res.Suppressed)
	assert.Equal(t, []float32{0.5, 4.0, 1.0}, res.Logits, "raw logits are reported")
}

func TestClassify_Errors(t *testing.T) {
	tok := testTokenizer(t, 512)

	_, err := NewClassifier(nil, &stubModel{}, nil, nil).Classify(context.Background(), Input{})
	assert.ErrorIs(t, err, ErrModelMissing)

	_, err = NewClassifier(tok, &stubModel{err: errors.New("oom")}, nil, nil).Classify(context.Background(), Input{})
	assert.ErrorContains(t, err, "oom")

	_, err = NewClassifier(tok, &stubModel{}, nil, nil).Classify(context.Background(), Input{})
	assert.ErrorContains(t, err, "no logits")
}
