package ctxengine

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is the BPE used by current OpenAI chat and embedding models.
const DefaultEncoding = "cl100k_base"

// TiktokenEstimator counts tokens with a real BPE tokenizer.
type TiktokenEstimator struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenEstimator loads the named encoding. Loading may need network
// access to fetch the rank file, so callers should fall back to a
// CharEstimator on error.
func NewTiktokenEstimator(encoding string) (*TiktokenEstimator, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("ctxengine: loading %s encoding: %w", encoding, err)
	}
	return &TiktokenEstimator{enc: enc}, nil
}

// Estimate returns the exact BPE token count.
func (e *TiktokenEstimator) Estimate(text string) int {
	if text == "" {
		return 0
	}
	return len(e.enc.Encode(text, nil, nil))
}

// EstimatorByName builds the estimator named in configuration:
// "chars" (default), "words", or "tiktoken". A tiktoken load failure
// degrades to the char estimator and is reported through the returned error.
func EstimatorByName(name string) (TokenEstimator, error) {
	switch name {
	case "", "chars":
		return NewCharEstimator(4), nil
	case "words":
		return &WordEstimator{}, nil
	case "tiktoken":
		est, err := NewTiktokenEstimator(DefaultEncoding)
		if err != nil {
			return NewCharEstimator(4), err
		}
		return est, nil
	default:
		return nil, fmt.Errorf("ctxengine: unknown token estimator %q", name)
	}
}
