package processor

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultTokenizerModel selects the cl100k_base encoding.
const DefaultTokenizerModel = "gpt-3.5-turbo"

type TiktokenTokenizer struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenTokenizer loads the BPE ranks for model. The first call may
// download them into TIKTOKEN_CACHE_DIR.
func NewTiktokenTokenizer(model string) (*TiktokenTokenizer, error) {
	if model == "" {
		model = DefaultTokenizerModel
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer for %s: %w", model, err)
	}
	return &TiktokenTokenizer{enc: enc}, nil
}

func (t *TiktokenTokenizer) Encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

func (t *TiktokenTokenizer) Decode(tokens []int) string {
	return t.enc.Decode(tokens)
}
