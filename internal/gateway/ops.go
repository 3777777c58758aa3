package gateway

import (
	"encoding/json"

	"github.com/dyluth/burrow/pkg/grid"
)

// Operation normalization
//
// Batches arrive as loosely-typed JSON. Each raw operation is validated and
// normalized exactly once at this boundary; anything that doesn't parse is
// silently dropped without failing the batch. Nothing downstream trusts raw
// payload shapes.

// NormalizeOps converts raw operation payloads into validated TileOperations.
// Per-operation rules:
//   - coordinates must be integers within [0, gridSize)
//   - a remove operation requires only coordinates
//   - an upsert operation requires a non-empty item identifier string;
//     metadata, if present, must be a JSON object (arrays and primitives at
//     the top level are rejected as metadata and treated as absent)
//
// Operations failing validation are dropped. Submission order is preserved,
// and a later operation on the same cell supersedes any earlier one in the
// same batch.
func NormalizeOps(rawOps []json.RawMessage, gridSize int) []grid.TileOperation {
	ops := make([]grid.TileOperation, 0, len(rawOps))

	for _, raw := range rawOps {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			continue
		}

		x, ok := intField(fields, "x")
		if !ok {
			continue
		}
		y, ok := intField(fields, "y")
		if !ok {
			continue
		}
		if x < 0 || y < 0 || x >= gridSize || y >= gridSize {
			continue
		}

		if removeRaw, present := fields["remove"]; present {
			var remove bool
			if err := json.Unmarshal(removeRaw, &remove); err == nil && remove {
				ops = append(ops, grid.TileOperation{X: x, Y: y, Remove: true})
			}
			continue
		}

		var itemID string
		if itemRaw, present := fields["itemId"]; present {
			if err := json.Unmarshal(itemRaw, &itemID); err != nil {
				continue
			}
		}
		if itemID == "" {
			continue
		}

		op := grid.TileOperation{X: x, Y: y, ItemID: itemID}
		if metaRaw, present := fields["meta"]; present {
			var meta map[string]any
			if err := json.Unmarshal(metaRaw, &meta); err == nil && meta != nil {
				op.Meta = meta
			}
		}
		ops = append(ops, op)
	}

	return dedupeByCell(ops)
}

// dedupeByCell keeps only the last operation per cell, preserving the
// submission order of the surviving operations.
func dedupeByCell(ops []grid.TileOperation) []grid.TileOperation {
	last := make(map[string]int, len(ops))
	for i, op := range ops {
		last[grid.CellField(op.X, op.Y)] = i
	}

	result := make([]grid.TileOperation, 0, len(last))
	for i, op := range ops {
		if last[grid.CellField(op.X, op.Y)] == i {
			result = append(result, op)
		}
	}

	return result
}

// intField extracts a JSON number field if and only if it is an integer.
// Fractional values and non-numbers are rejected.
func intField(fields map[string]json.RawMessage, name string) (int, bool) {
	raw, present := fields[name]
	if !present {
		return 0, false
	}

	var value float64
	if err := json.Unmarshal(raw, &value); err != nil {
		return 0, false
	}

	n := int(value)
	if float64(n) != value {
		return 0, false
	}

	return n, true
}
