package deployment

import (
	"errors"
	"fmt"

	"github.com/artpar/chainhost/internal/core/domain"
)

// =============================================================================
// Plan Validation Errors
// =============================================================================

// ErrInvalidPlan is wrapped by every plan validation failure.
var ErrInvalidPlan = errors.New("invalid plan")

// ValidationError describes the first step that breaks plan ordering.
// Index is -1 for errors about the plan as a whole.
type ValidationError struct {
	Index   int
	Step    Step
	Message string
}

func (e *ValidationError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("invalid plan: %s", e.Message)
	}
	return fmt.Sprintf("invalid plan: step %d (%s): %s", e.Index, e.Step, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidPlan
}

func stepError(i int, s Step, format string, args ...any) error {
	return &ValidationError{Index: i, Step: s, Message: fmt.Sprintf(format, args...)}
}

// =============================================================================
// Ordering Validation
// =============================================================================

// Validate checks that the plan can run in the order given.
//
// Every step may only consume addresses produced by earlier steps:
//   - unit, link target, grantee and method names are identifiers
//   - a unit is published at most once
//   - constructor and call references name units already published
//   - a link names a published library and a unit not yet published,
//     and that unit is published later in the plan
//   - an authorization targets a published storage unit and a published
//     grantee, and each (storage, grantee) pair is authorized once
func Validate(p Plan) error {
	if len(p.Steps) == 0 {
		return &ValidationError{Index: -1, Message: "plan has no steps"}
	}

	published := make(map[string]domain.UnitKind)
	linked := make(map[string]bool)
	pendingLinks := make(map[string]int) // unit -> index of first link into it
	granted := make(map[[2]string]bool)

	for i, s := range p.Steps {
		if s.Unit == "" {
			return stepError(i, s, "unit name is required")
		}
		if msg := checkNames(s); msg != "" {
			return stepError(i, s, "%s", msg)
		}
		for _, ref := range s.Refs() {
			if _, ok := published[ref]; !ok {
				return stepError(i, s, "references %s before it is published", ref)
			}
		}

		switch s.Kind {
		case StepPublish:
			if _, ok := published[s.Unit]; ok {
				return stepError(i, s, "%s is already published", s.Unit)
			}
			kind := s.UnitKind
			if kind == "" {
				kind = domain.KindContract
			}
			published[s.Unit] = kind
			delete(pendingLinks, s.Unit)

		case StepLink:
			kind, ok := published[s.Unit]
			if !ok {
				return stepError(i, s, "library %s is not published", s.Unit)
			}
			if kind != domain.KindLibrary {
				return stepError(i, s, "%s is not a library", s.Unit)
			}
			if s.Into == "" {
				return stepError(i, s, "link target is required")
			}
			if _, ok := published[s.Into]; ok {
				return stepError(i, s, "%s is already published and cannot be linked", s.Into)
			}
			key := s.Unit + "->" + s.Into
			if linked[key] {
				return stepError(i, s, "%s is already linked into %s", s.Unit, s.Into)
			}
			linked[key] = true
			if _, ok := pendingLinks[s.Into]; !ok {
				pendingLinks[s.Into] = i
			}

		case StepAuthorize:
			if _, ok := published[s.Unit]; !ok {
				return stepError(i, s, "storage %s is not published", s.Unit)
			}
			if s.Method == "" {
				return stepError(i, s, "authorization method is required")
			}
			if s.Grantee == "" {
				return stepError(i, s, "grantee is required")
			}
			pair := [2]string{s.Unit, s.Grantee}
			if granted[pair] {
				return stepError(i, s, "%s is already authorized on %s", s.Grantee, s.Unit)
			}
			granted[pair] = true

		case StepCall:
			if _, ok := published[s.Unit]; !ok {
				return stepError(i, s, "target %s is not published", s.Unit)
			}
			if s.Method == "" {
				return stepError(i, s, "method is required")
			}

		default:
			return stepError(i, s, "unknown step kind %q", s.Kind)
		}
	}

	// Links into units that are never published are always a plan mistake.
	first := -1
	for _, i := range pendingLinks {
		if first < 0 || i < first {
			first = i
		}
	}
	if first >= 0 {
		return stepError(first, p.Steps[first], "%s is never published", p.Steps[first].Into)
	}

	return nil
}
