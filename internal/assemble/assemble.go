// Package assemble turns ranked retrieval results into a character-budgeted,
// cited context block for prompt construction. Because the engine supports
// multiple LLM backends with different tokenizers, the budget is expressed in
// characters, deliberately conservative so the rendered block never overflows
// a context window regardless of the model that consumes it.
package assemble

import (
	"fmt"
	"strings"

	"github.com/54b3r/docchat-go/internal/rag"
)

// DefaultBudget is the default context budget in characters. Roughly 3k
// tokens at 4 chars/token — enough for a dozen typical chunks while leaving
// the bulk of an 8k window for history and the answer.
const DefaultBudget = 12000

// separator is the visible delimiter between rendered chunk blocks.
const separator = "\n---\n"

// Assembler renders ranked chunks into a single cited context block. It is a
// pure function of its inputs and holds no mutable state; the same chunk list
// and budget always produce byte-identical output.
type Assembler struct {
	// budget is the maximum length of the rendered context in characters.
	budget int
}

// New constructs an Assembler with the given character budget.
// A non-positive budget falls back to DefaultBudget.
func New(budget int) *Assembler {
	if budget <= 0 {
		budget = DefaultBudget
	}
	return &Assembler{budget: budget}
}

// Budget returns the configured character budget.
func (a *Assembler) Budget() int {
	return a.budget
}

// Rendered is the output of one assembly pass.
type Rendered struct {
	// Context is the assembled context block. Its length never exceeds the
	// assembler's budget. Empty when no chunk survived formatting.
	Context string

	// Chars is len(Context), reported separately for the debug record.
	Chars int

	// Included is the number of chunks that contributed text to Context,
	// counting a truncated boundary chunk.
	Included int

	// Truncated is true when the boundary-crossing chunk was cut to fit.
	Truncated bool
}

// Build renders results in ranking order, accumulating blocks until the
// budget would be exceeded. The chunk that crosses the boundary is truncated
// to the remaining budget; every chunk after it is dropped outright. Chunks
// with empty text are skipped. If nothing survives, the returned Context is
// empty and the caller falls back to a contextless prompt.
func (a *Assembler) Build(results []rag.Result) Rendered {
	var (
		b        strings.Builder
		rendered Rendered
	)

	for _, res := range results {
		if strings.TrimSpace(res.Text) == "" {
			continue
		}

		block := renderBlock(rendered.Included, res)
		if rendered.Included > 0 {
			block = separator + block
		}

		remaining := a.budget - b.Len()
		if remaining <= 0 {
			break
		}
		if len(block) > remaining {
			b.WriteString(block[:remaining])
			rendered.Included++
			rendered.Truncated = true
			break
		}

		b.WriteString(block)
		rendered.Included++
	}

	rendered.Context = b.String()
	rendered.Chars = len(rendered.Context)
	return rendered
}

// renderBlock formats one chunk as a cited block:
//
//	[index] file=<name> chunk=<chunk_index> score=<score>
//	<text>
func renderBlock(index int, res rag.Result) string {
	return fmt.Sprintf("[%d] file=%s chunk=%d score=%.4f\n%s\n",
		index+1, res.Filename, res.Index, res.Score, res.Text)
}
