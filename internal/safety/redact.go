// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package safety

import (
	"slices"

	sigilerr "github.com/sigil-dev/aegis/pkg/errors"
)

// Redact replaces every entity span in text with a [TYPE] label.
//
// Replacements are applied back-to-front by start offset so that earlier
// offsets stay valid while later spans change length. A span overlapping one
// already replaced is clipped to end where that replacement began, so no
// character of any matched text survives.
func Redact(text string, entities []Entity) (string, error) {
	if len(entities) == 0 {
		return text, nil
	}

	for _, e := range entities {
		if e.Start < 0 || e.End < e.Start || e.End > len(text) {
			return "", sigilerr.Errorf(sigilerr.CodeSafetyRedactionFailure,
				"entity %s span [%d,%d) out of range for %d bytes", e.Type, e.Start, e.End, len(text))
		}
	}

	sorted := slices.Clone(entities)
	slices.SortStableFunc(sorted, func(a, b Entity) int {
		if a.Start != b.Start {
			return b.Start - a.Start
		}
		return b.End - a.End
	})

	out := text
	limit := len(text)
	for _, e := range sorted {
		end := min(e.End, limit)
		if end <= e.Start {
			continue
		}
		out = out[:e.Start] + "[" + e.Type + "]" + out[end:]
		limit = e.Start
	}
	return out, nil
}
