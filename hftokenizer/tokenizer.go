// Package hftokenizer adapts HuggingFace tokenizer.json files to the
// seqgen.Tokenizer interface.
package hftokenizer

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	"github.com/daulet/tokenizers"
	"github.com/goccy/go-json"
	"k8s.io/klog/v2"
)

// Tokenizer wraps a HuggingFace tokenizer loaded from a model
// directory. Encoding results are memoized per prompt, keyed by an
// xxhash of the text, so repeated requests for the same prompt skip the
// tokenizer call.
type Tokenizer struct {
	tk    *tokenizers.Tokenizer
	padID int
	eosID int
	cache map[uint64][]int
}

// New loads tokenizer.json from dir and reads special token ids from
// tokenizer_config.json or config.json when present. Without either,
// the pad id defaults to 0 and the EOS id to -1.
func New(dir string) (*Tokenizer, error) {
	tk, err := tokenizers.FromFile(filepath.Join(dir, "tokenizer.json"))
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}

	t := &Tokenizer{
		tk:    tk,
		padID: 0,
		eosID: -1,
		cache: make(map[uint64][]int),
	}
	t.loadSpecialTokens(dir)
	return t, nil
}

func (t *Tokenizer) loadSpecialTokens(dir string) {
	padSet := false
	for _, name := range []string{"tokenizer_config.json", "config.json"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}

		var cfg struct {
			PadTokenID *int `json:"pad_token_id"`
			EOSTokenID *int `json:"eos_token_id"`
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			klog.Warningf("hftokenizer: skipping malformed %s: %v", name, err)
			continue
		}

		if cfg.PadTokenID != nil && !padSet {
			t.padID = *cfg.PadTokenID
			padSet = true
		}
		if cfg.EOSTokenID != nil && t.eosID < 0 {
			t.eosID = *cfg.EOSTokenID
		}
	}

	// Models without a dedicated pad token conventionally pad with EOS.
	if !padSet && t.eosID >= 0 {
		t.padID = t.eosID
	}
	if !padSet && t.eosID < 0 {
		klog.V(1).Infof("hftokenizer: no special token ids found in %s, using defaults", dir)
	}
}

// Close releases the underlying tokenizer.
func (t *Tokenizer) Close() error {
	return t.tk.Close()
}

// PadTokenID returns the padding token id.
func (t *Tokenizer) PadTokenID() int {
	return t.padID
}

// EOSTokenID returns the end-of-sequence token id, or -1 when unknown.
func (t *Tokenizer) EOSTokenID() int {
	return t.eosID
}

// Encode tokenizes the prompts into a rectangular token matrix with a
// 0/1 attention mask. Rows are left-padded so generation continues from
// real content.
func (t *Tokenizer) Encode(prompts []string) ([][]int, [][]int, error) {
	if len(prompts) == 0 {
		return nil, nil, fmt.Errorf("no prompts to encode")
	}

	rows := make([][]int, len(prompts))
	width := 0
	for i, p := range prompts {
		rows[i] = t.encodeOne(p)
		if len(rows[i]) > width {
			width = len(rows[i])
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

func (t *Tokenizer) encodeOne(prompt string) []int {
	key := xxhash.Sum64String(prompt)
	if hit, ok := t.cache[key]; ok {
		return hit
	}

	raw, _ := t.tk.Encode(prompt, true)
	ids := make([]int, len(raw))
	for i, id := range raw {
		ids[i] = int(id)
	}
	t.cache[key] = ids
	return ids
}

// Decode turns token-id rows back into strings, one per row, dropping
// padding and special tokens.
func (t *Tokenizer) Decode(rows [][]int) ([]string, error) {
	out := make([]string, len(rows))
	for i, row := range rows {
		ids := make([]uint32, 0, len(row))
		for _, id := range row {
			if id == t.padID {
				continue
			}
			ids = append(ids, uint32(id))
		}
		out[i] = t.tk.Decode(ids, true)
	}
	return out, nil
}
