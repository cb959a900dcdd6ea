package seqgen

import "fmt"

// batch tracks the token matrix, attention mask and finished flags for
// one Generate call. The row count is fixed for the whole call: rows
// are never dropped or reordered, finished rows are only masked out of
// the model-facing slice.
type batch struct {
	rows      int
	promptLen int
	pad       int
	tokens    [][]int
	mask      [][]int
	finished  []bool
}

// newBatch broadcasts each prompt row to samples copies, flattened
// prompt-major then sample-minor: row = promptIndex*samples + sampleIndex.
func newBatch(promptIDs, promptMask [][]int, samples, pad int) *batch {
	if len(promptIDs) == 0 || len(promptMask) != len(promptIDs) {
		panic(fmt.Sprintf("seqgen: tokenizer returned %d token rows and %d mask rows", len(promptIDs), len(promptMask)))
	}
	promptLen := len(promptIDs[0])
	for i := range promptIDs {
		if len(promptIDs[i]) != promptLen || len(promptMask[i]) != promptLen {
			panic("seqgen: tokenizer returned a ragged token matrix")
		}
	}

	rows := len(promptIDs) * samples
	b := &batch{
		rows:      rows,
		promptLen: promptLen,
		pad:       pad,
		tokens:    make([][]int, 0, rows),
		mask:      make([][]int, 0, rows),
		finished:  make([]bool, rows),
	}
	for p := range promptIDs {
		for s := 0; s < samples; s++ {
			ids := make([]int, promptLen, promptLen+16)
			copy(ids, promptIDs[p])
			m := make([]int, promptLen, promptLen+16)
			copy(m, promptMask[p])
			b.tokens = append(b.tokens, ids)
			b.mask = append(b.mask, m)
		}
	}
	return b
}

func (b *batch) cols() int {
	return len(b.tokens[0])
}

func (b *batch) numGenerated() int {
	return b.cols() - b.promptLen
}

func (b *batch) allFinished() bool {
	for _, f := range b.finished {
		if !f {
			return false
		}
	}
	return true
}

// activeRows returns the ordered indices of rows not yet finished.
func (b *batch) activeRows() []int {
	active := make([]int, 0, b.rows)
	for r, f := range b.finished {
		if !f {
			active = append(active, r)
		}
	}
	return active
}

// gather returns the token and mask rows for the given indices. The
// returned slices alias the batch and must not be mutated.
func (b *batch) gather(rows []int) ([][]int, [][]int) {
	tokens := make([][]int, len(rows))
	mask := make([][]int, len(rows))
	for i, r := range rows {
		tokens[i] = b.tokens[r]
		mask[i] = b.mask[r]
	}
	return tokens, mask
}

// appendColumn scatters the sampled ids of the active rows into a new
// column, padding every other row, and extends the attention mask by a
// 1 for all rows: the mask marks that the position exists, not that its
// content is meaningful.
func (b *batch) appendColumn(active []int, next []int) {
	if len(next) != len(active) {
		panic(fmt.Sprintf("seqgen: sampled %d tokens for %d active rows", len(next), len(active)))
	}
	col := make([]int, b.rows)
	for r := range col {
		col[r] = b.pad
	}
	for i, r := range active {
		col[r] = next[i]
	}
	for r := 0; r < b.rows; r++ {
		b.tokens[r] = append(b.tokens[r], col[r])
		b.mask[r] = append(b.mask[r], 1)
	}
}

// generatedRows returns the generated suffix of each given row.
func (b *batch) generatedRows(rows []int) [][]int {
	out := make([][]int, len(rows))
	for i, r := range rows {
		out[i] = b.tokens[r][b.promptLen:]
	}
	return out
}

// generatedAll returns the generated suffix of every row, in row order.
func (b *batch) generatedAll() [][]int {
	all := make([]int, b.rows)
	for r := range all {
		all[r] = r
	}
	return b.generatedRows(all)
}

// markFinished applies this step's finish determinations to the rows
// that were active. Flags are monotonic: a finished row never becomes
// active again. Returns the positions within active that are still
// unfinished, for pruning incremental state.
func (b *batch) markFinished(active []int, done []bool) []int {
	if len(done) != len(active) {
		panic(fmt.Sprintf("seqgen: termination predicate returned %d flags for %d active rows", len(done), len(active)))
	}
	kept := make([]int, 0, len(active))
	for i, r := range active {
		if done[i] {
			b.finished[r] = true
		} else {
			kept = append(kept, i)
		}
	}
	return kept
}
