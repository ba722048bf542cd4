package qtc

import (
	"fmt"
	"strconv"
	"strings"
)

// Variant selects which relations a state carries.
type Variant string

const (
	QTCB  Variant = "qtcb"
	QTCC  Variant = "qtcc"
	QTCBC Variant = "qtcbc"
)

// variantsByIndex maps the numeric variant selector (0, 1, 2) to a Variant.
var variantsByIndex = []Variant{QTCB, QTCC, QTCBC}

// ParseVariant accepts a variant name (case-insensitive) or its index.
func ParseVariant(s string) (Variant, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if i, err := strconv.Atoi(s); err == nil {
		return VariantByIndex(i)
	}
	v := Variant(s)
	if !v.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownVariant, s)
	}
	return v, nil
}

// VariantByIndex returns the variant for selector 0 (qtcb), 1 (qtcc) or
// 2 (qtcbc).
func VariantByIndex(i int) (Variant, error) {
	if i < 0 || i >= len(variantsByIndex) {
		return "", fmt.Errorf("%w: index %d", ErrUnknownVariant, i)
	}
	return variantsByIndex[i], nil
}

// Valid reports whether v is a known variant.
func (v Variant) Valid() bool {
	switch v {
	case QTCB, QTCC, QTCBC:
		return true
	}
	return false
}

// Width is the number of components per state.
func (v Variant) Width() int {
	if v == QTCB {
		return 2
	}
	return 4
}
