package seqgen

// Option is a functional option for Generator.
type Option func(*Generator)

// WithMaxTokens bounds the number of tokens generated per call. A
// negative value means unbounded: the run stops only when every row
// satisfies the termination predicate. A predicate that never fires
// combined with an unbounded budget will not terminate; bounding the
// run is the caller's responsibility.
func WithMaxTokens(n int) Option {
	return func(g *Generator) {
		g.maxTokens = n
	}
}

// WithProgress shows a progress bar while generating.
func WithProgress(show bool) Option {
	return func(g *Generator) {
		g.progress = show
	}
}
