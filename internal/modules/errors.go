package modules

import (
	"errors"
	"fmt"

	dErrors "github.com/AI-Fresh-Docs/RusTokio/pkg/domain-errors"
)

// ToggleErrorKind names why a toggle was refused.
type ToggleErrorKind string

const (
	CoreModuleCannotBeDisabled ToggleErrorKind = "core_module_cannot_be_disabled"
	MissingDependency          ToggleErrorKind = "missing_dependency"
	DependentStillEnabled      ToggleErrorKind = "dependent_still_enabled"
	UnknownModule              ToggleErrorKind = "unknown_module"
)

// ToggleError is a refused toggle. Slug is the module the rule points at: the
// target itself for core and unknown modules, the missing dependency, or the
// dependent that is still enabled.
type ToggleError struct {
	Kind ToggleErrorKind
	Slug string
}

func (e *ToggleError) Error() string {
	switch e.Kind {
	case CoreModuleCannotBeDisabled:
		return fmt.Sprintf("module %q is core and cannot be toggled", e.Slug)
	case MissingDependency:
		return fmt.Sprintf("dependency %q is not enabled", e.Slug)
	case DependentStillEnabled:
		return fmt.Sprintf("module %q depends on it and is still enabled", e.Slug)
	case UnknownModule:
		return fmt.Sprintf("unknown module %q", e.Slug)
	default:
		return fmt.Sprintf("toggle refused: %s (%s)", e.Kind, e.Slug)
	}
}

// Code maps the refusal onto the domain error taxonomy.
func (e *ToggleError) Code() dErrors.Code {
	if e.Kind == UnknownModule {
		return dErrors.CodeNotFound
	}
	return dErrors.CodeConflict
}

// AsToggleError unwraps err to a *ToggleError.
func AsToggleError(err error) (*ToggleError, bool) {
	var te *ToggleError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// IsToggleError reports whether err is a refused toggle of kind.
func IsToggleError(err error, kind ToggleErrorKind) bool {
	te, ok := AsToggleError(err)
	return ok && te.Kind == kind
}
