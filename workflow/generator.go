package workflow

import "context"

// Generation stage names passed to a Generator.
const (
	GenCandidates = "generate_candidates"
	GenResearch   = "research"
	GenRank       = "rank"
	GenDraft      = "draft"
	GenPolish     = "polish"
)

// Output is what a generator returns: either decoded structure or raw text
// that still needs JSON extraction.
type Output struct {
	Structured any
	Text       string
}

// Empty reports whether o carries nothing usable.
func (o Output) Empty() bool {
	return o.Structured == nil && o.Text == ""
}

// Generator produces stage output from a view of the session state. Calls are
// stateless; a Generator may be shared across runs.
type Generator interface {
	Generate(ctx context.Context, stage string, view map[string]any) (Output, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, stage string, view map[string]any) (Output, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, stage string, view map[string]any) (Output, error) {
	return f(ctx, stage, view)
}
