// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package types

// Direction identifies which side of a turn a safety evaluation covers.
type Direction string

const (
	// DirectionInput is user text travelling to the model.
	DirectionInput Direction = "input"
	// DirectionOutput is model text travelling back to the user.
	DirectionOutput Direction = "output"
)

// Valid reports whether the direction is known.
func (d Direction) Valid() bool {
	switch d {
	case DirectionInput, DirectionOutput:
		return true
	default:
		return false
	}
}
