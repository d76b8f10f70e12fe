package accidenttype

import (
	"fmt"
	"sync"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/model/wordpiece"
	"github.com/sugarme/tokenizer/normalizer"
	"github.com/sugarme/tokenizer/pretokenizer"
	"github.com/sugarme/tokenizer/processor"

	"github.com/banshee-data/accident.report/internal/monitoring"
)

// Special tokens of an uncased BERT vocabulary.
const (
	tokenCLS = "[CLS]"
	tokenSEP = "[SEP]"
	tokenUNK = "[UNK]"
	tokenPAD = "[PAD]"
)

// Tokenizer is a BERT uncased WordPiece tokenizer that wraps every text in
// [CLS] ... [SEP] and truncates it to a fixed number of tokens.
type Tokenizer struct {
	mu     sync.Mutex
	tk     *tokenizer.Tokenizer
	maxLen int
}

// LoadTokenizer reads a vocab.txt with one token per line, where the line
// number is the token id. Encodings are truncated to maxLen tokens including
// [CLS] and [SEP]; maxLen <= 2 disables truncation.
func LoadTokenizer(vocabPath string, maxLen int) (*Tokenizer, error) {
	model, err := wordpiece.NewWordPieceFromFile(vocabPath, tokenUNK)
	if err != nil {
		return nil, fmt.Errorf("failed to read vocab: %w", err)
	}
	tk := tokenizer.NewTokenizer(model)

	ids := make(map[string]int, 3)
	for _, special := range []string{tokenCLS, tokenSEP, tokenUNK} {
		id, ok := tk.TokenToId(special)
		if !ok {
			return nil, fmt.Errorf("vocab is missing %s", special)
		}
		ids[special] = id
	}

	tk.WithNormalizer(normalizer.NewBertNormalizer(true, true, true, true))
	tk.WithPreTokenizer(pretokenizer.NewBertPreTokenizer())
	tk.AddSpecialTokens([]tokenizer.AddedToken{
		tokenizer.NewAddedToken(tokenCLS, true),
		tokenizer.NewAddedToken(tokenSEP, true),
		tokenizer.NewAddedToken(tokenPAD, true),
		tokenizer.NewAddedToken(tokenUNK, true),
	})
	tk.WithPostProcessor(processor.NewBertProcessing(
		processor.PostToken{Id: ids[tokenSEP], Value: tokenSEP},
		processor.PostToken{Id: ids[tokenCLS], Value: tokenCLS},
	))

	monitoring.Logf("[accidenttype] loaded vocab from %s", vocabPath)
	return &Tokenizer{tk: tk, maxLen: maxLen}, nil
}

// Encoding is the model input for one text.
type Encoding struct {
	Tokens        []string
	InputIDs      []int32
	AttentionMask []int32
	TokenTypeIDs  []int32
}

// Encode tokenizes text, wraps it in [CLS] ... [SEP] and truncates the body
// so the closing [SEP] is kept.
func (t *Tokenizer) Encode(text string) (Encoding, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Truncation params are rebuilt per call since the encoder adjusts them
	// in place for the special tokens.
	if t.maxLen > 2 {
		t.tk.WithTruncation(&tokenizer.TruncationParams{
			MaxLength: t.maxLen,
			Strategy:  tokenizer.OnlyFirst,
		})
	}
	en, err := t.tk.EncodeSingle(text, true)
	if err != nil {
		return Encoding{}, fmt.Errorf("tokenize: %w", err)
	}

	return Encoding{
		Tokens:        append([]string(nil), en.Tokens...),
		InputIDs:      toInt32(en.Ids),
		AttentionMask: toInt32(en.AttentionMask),
		TokenTypeIDs:  toInt32(en.TypeIds),
	}, nil
}

func toInt32(v []int) []int32 {
	out := make([]int32, len(v))
	for i, x := range v {
		out[i] = int32(x)
	}
	return out
}
