/*
Package runtime is the façade tying the memory layer to the reactive
scheduler.

A Runtime owns a replica manager, a scheduler, and a pattern registry.
Cells are handles on addressed positions interpreted under schemas:
reads materialise structural views with asCell/asStream positions
rewritten to sub-handles, writes diff against current state and stage
minimal change sets through transactions. Entity identity is causal:
GetCell hashes structured causes so the pair (space, cause) names the
same cell across processes.

# Patterns and Processes

A pattern is a pure function from input value to output value,
registered by name; the evaluation harness that compiles user recipes
into patterns is an external collaborator. Run wires a pattern
instance from an input cell to a result cell: a scheduler computation
re-derives the result whenever the input changes, and the instance's
process fact makes it resumable by any runtime sharing the durable
store. Recipes persist as content-addressed facts, their id the hash
of the normalised file set excluding type declarations.

# Usage

	rt := runtime.New(runtime.Config{Store: store})
	defer rt.Dispose()

	input := rt.GetCell(space, "input", nil)
	result := rt.GetCell(space, "result", nil)
	rt.Patterns().Register("sumAndFormat", sumAndFormat)
	rt.Run(space, "sumAndFormat", input, result)

	input.Set(map[string]any{"values": []any{1, 2, 3}})
	rt.Idle(ctx)
	value, _ := result.Get()

# Integration Points

  - pkg/transaction executes edits with snapshot isolation and retry
  - pkg/traverse materialises reads and records read sets
  - pkg/changeset minimises writes
  - pkg/scheduler propagates novelty into re-computation
*/
package runtime
