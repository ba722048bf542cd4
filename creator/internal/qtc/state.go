package qtc

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// Symbol is one component of a QTC state.
type Symbol int8

const (
	Minus Symbol = -1
	Zero  Symbol = 0
	Plus  Symbol = 1

	// Undefined marks a component that does not apply to the state, such as
	// the side relations of a qtcbc state beyond the distance threshold.
	Undefined Symbol = 2
)

func (s Symbol) String() string {
	switch s {
	case Minus:
		return "-"
	case Zero:
		return "0"
	case Plus:
		return "+"
	default:
		return "?"
	}
}

// MarshalJSON encodes Undefined as null and every other symbol as a number.
func (s Symbol) MarshalJSON() ([]byte, error) {
	if s == Undefined {
		return []byte("null"), nil
	}
	return []byte(fmt.Sprintf("%d", int8(s))), nil
}

// UnmarshalJSON accepts -1, 0, 1 (integer or float form) and null.
func (s *Symbol) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = Undefined
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("qtc: decode symbol: %w", err)
	}
	switch f {
	case -1:
		*s = Minus
	case 0:
		*s = Zero
	case 1:
		*s = Plus
	default:
		return fmt.Errorf("qtc: symbol %v out of range", f)
	}
	return nil
}

// State is one QTC state: two components for qtcb, four for qtcc and qtcbc.
type State []Symbol

// Equal reports whether s and o have the same components.
func (s State) Equal(o State) bool {
	return slices.Equal(s, o)
}

// String renders the state as e.g. "(-,0,+,0)".
func (s State) String() string {
	parts := make([]string, len(s))
	for i, sym := range s {
		parts[i] = sym.String()
	}
	return "(" + strings.Join(parts, ",") + ")"
}

// Serialise encodes a sequence as a JSON array of arrays.
func Serialise(states []State) (string, error) {
	if states == nil {
		states = []State{}
	}
	b, err := json.Marshal(states)
	if err != nil {
		return "", fmt.Errorf("qtc: serialise: %w", err)
	}
	return string(b), nil
}

// ParseSequence decodes the output of Serialise.
func ParseSequence(s string) ([]State, error) {
	var states []State
	if err := json.Unmarshal([]byte(s), &states); err != nil {
		return nil, fmt.Errorf("qtc: parse sequence: %w", err)
	}
	return states, nil
}
