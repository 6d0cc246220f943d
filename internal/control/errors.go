package control

import (
	"errors"
	"fmt"
)

var (
	// ErrStructural marks a gain vector or option set that violates a
	// structural or stability precondition. Always recoverable.
	ErrStructural = errors.New("control: structural violation")

	// ErrUnknownVariant indicates a variant with no registered builder.
	ErrUnknownVariant = errors.New("control: unknown variant")
)

// StructuralError names the violated constraint: which gain (or option)
// and which bound.
type StructuralError struct {
	Variant    Variant
	Index      int // gain index, or -1 for an option
	Name       string
	Value      float64
	Constraint string
}

func (e *StructuralError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("control: %s option %s = %g: %s", e.Variant, e.Name, e.Value, e.Constraint)
	}
	return fmt.Sprintf("control: %s gain %s (index %d) = %g: %s", e.Variant, e.Name, e.Index, e.Value, e.Constraint)
}

func (e *StructuralError) Unwrap() error {
	return ErrStructural
}
