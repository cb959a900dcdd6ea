package seqgen

import (
	"fmt"

	"seqgen-go/tensor"
)

// Model produces next-token scores for a batch of token rows.
// This can be implemented using various backends:
// - ONNX Runtime sessions (see the onnxmodel package)
// - Go ML libraries
// - HTTP/gRPC calls to inference servers
type Model interface {
	// Forward returns logits of shape (rows, vocab) for the next
	// position of every input row, aligned row-for-row with the input,
	// plus updated incremental state. A nil state input means no prior
	// computation is reused; a nil state output means the model keeps
	// none.
	Forward(tokenIDs [][]int, attentionMask [][]int, state State) (*tensor.Tensor, State, error)
}

// State is the incremental model state threaded between forward passes.
// It is opaque to the generation loop beyond its batch-row dimension.
type State interface {
	// Rows returns the batch-row count the state was produced for.
	Rows() int

	// Select returns a state retaining only the given rows, in order.
	Select(rows []int) State
}

// Tokenizer converts between prompt text and token-id rows.
type Tokenizer interface {
	// Encode turns prompts into a rectangular token-id matrix and a
	// parallel 0/1 attention mask marking which positions are real
	// prompt content.
	Encode(prompts []string) (ids [][]int, mask [][]int, err error)

	// Decode turns token-id rows back into strings, one per row,
	// ignoring padding that trails a stop point.
	Decode(rows [][]int) ([]string, error)

	// PadTokenID returns the id used to pad finished rows.
	PadTokenID() int
}

// MockModel is a deterministic stand-in for a real model backend. The
// logits for a row depend only on the row's token ids, so generation
// with a fixed random source is reproducible. It threads a KVCache
// sized to the input rows, exercising the loop's state pruning.
type MockModel struct {
	Vocab  int
	Layers int
}

// NewMockModel creates a mock model with the given vocabulary size.
func NewMockModel(vocab int) *MockModel {
	return &MockModel{Vocab: vocab, Layers: 2}
}

// Forward generates mock logits and a fresh KV cache for the batch.
func (m *MockModel) Forward(tokenIDs [][]int, attentionMask [][]int, state State) (*tensor.Tensor, State, error) {
	rows := len(tokenIDs)
	if rows == 0 {
		return nil, nil, fmt.Errorf("empty batch")
	}
	if len(attentionMask) != rows {
		return nil, nil, fmt.Errorf("attention mask rows = %d, token rows = %d", len(attentionMask), rows)
	}

	logits := tensor.NewTensor(rows, m.Vocab)
	for i, row := range tokenIDs {
		seed := 1
		for _, id := range row {
			seed = seed*31 + id
		}
		for j := 0; j < m.Vocab; j++ {
			logits.Set(float32((seed+j*13)%17)/4.0, i, j)
		}
	}

	cache := NewKVCache(m.Layers)
	seqLen := len(tokenIDs[0])
	for l := 0; l < m.Layers; l++ {
		k := tensor.NewTensor(rows, 1, seqLen, 4)
		v := tensor.NewTensor(rows, 1, seqLen, 4)
		cache.SetLayer(l, k, v)
	}

	return logits, cache, nil
}

// MockTokenizer is a rune-level tokenizer for demos and tests. Token id
// 0 is the pad token; every rune maps to its code point plus one.
type MockTokenizer struct {
	padID int
}

// NewMockTokenizer creates a new mock tokenizer.
func NewMockTokenizer() *MockTokenizer {
	return &MockTokenizer{padID: 0}
}

// Encode maps each rune to a token id and right-pads rows to a
// rectangle with zero mask entries on the padding.
func (t *MockTokenizer) Encode(prompts []string) ([][]int, [][]int, error) {
	if len(prompts) == 0 {
		return nil, nil, fmt.Errorf("no prompts to encode")
	}

	rows := make([][]int, len(prompts))
	width := 0
	for i, p := range prompts {
		ids := make([]int, 0, len(p))
		for _, r := range p {
			ids = append(ids, int(r)+1)
		}
		rows[i] = ids
		if len(ids) > width {
			width = len(ids)
		}
	}
	if width == 0 {
		return nil, nil, fmt.Errorf("prompts produced no tokens")
	}

	ids := make([][]int, len(rows))
	mask := make([][]int, len(rows))
	for i, row := range rows {
		ids[i] = make([]int, width)
		mask[i] = make([]int, width)
		// Left padding, so generation continues from real content.
		off := width - len(row)
		for j := 0; j < off; j++ {
			ids[i][j] = t.padID
		}
		copy(ids[i][off:], row)
		for j := off; j < width; j++ {
			mask[i][j] = 1
		}
	}
	return ids, mask, nil
}

// Decode maps token ids back to runes, skipping padding.
func (t *MockTokenizer) Decode(rows [][]int) ([]string, error) {
	out := make([]string, len(rows))
	for i, row := range rows {
		runes := make([]rune, 0, len(row))
		for _, id := range row {
			if id == t.padID {
				continue
			}
			runes = append(runes, rune(id-1))
		}
		out[i] = string(runes)
	}
	return out, nil
}

// PadTokenID returns the pad token id.
func (t *MockTokenizer) PadTokenID() int {
	return t.padID
}
