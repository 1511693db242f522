package deployment

import (
	"fmt"
	"strings"

	"github.com/artpar/chainhost/internal/core/domain"
)

// =============================================================================
// Step Types
// =============================================================================

// StepKind identifies what a step does when interpreted.
type StepKind string

const (
	// StepPublish publishes a unit and records its address.
	StepPublish StepKind = "publish"
	// StepLink binds a published library into a not-yet-published unit.
	StepLink StepKind = "link"
	// StepAuthorize grants a published unit write access on a storage unit.
	StepAuthorize StepKind = "authorize"
	// StepCall invokes a method on a published unit.
	StepCall StepKind = "call"
)

// RefPrefix marks an argument that refers to the address of a published unit.
const RefPrefix = "@"

// Arg is a step argument: either a literal value or a reference to the
// address recorded for a unit earlier in the run.
type Arg struct {
	Ref   string
	Value string
}

// Ref returns an argument resolving to the address of unit.
func Ref(unit string) Arg {
	return Arg{Ref: unit}
}

// Literal returns a literal argument.
func Literal(value string) Arg {
	return Arg{Value: value}
}

// ParseArg parses "@Unit" as a reference and anything else as a literal.
func ParseArg(s string) Arg {
	if strings.HasPrefix(s, RefPrefix) && len(s) > len(RefPrefix) {
		return Ref(strings.TrimPrefix(s, RefPrefix))
	}
	return Literal(s)
}

// IsRef reports whether the argument refers to a unit address.
func (a Arg) IsRef() bool {
	return a.Ref != ""
}

func (a Arg) String() string {
	if a.IsRef() {
		return RefPrefix + a.Ref
	}
	return a.Value
}

// Step is a pure description of one orchestrator action.
//
// Field use per kind:
//   - publish:   Unit, UnitKind, Args (constructor arguments)
//   - link:      Unit (library), Into (dependent unit)
//   - authorize: Unit (storage), Grantee, Method
//   - call:      Unit (target), Method, Args
type Step struct {
	Kind     StepKind
	Unit     string
	UnitKind domain.UnitKind
	Into     string
	Grantee  string
	Method   string
	Args     []Arg
}

// Publish returns a step publishing a contract unit with constructor args.
func Publish(unit string, args ...Arg) Step {
	return Step{Kind: StepPublish, Unit: unit, UnitKind: domain.KindContract, Args: args}
}

// PublishLibrary returns a step publishing a library unit.
func PublishLibrary(unit string) Step {
	return Step{Kind: StepPublish, Unit: unit, UnitKind: domain.KindLibrary}
}

// Link returns a step binding library into unit.
func Link(library, into string) Step {
	return Step{Kind: StepLink, Unit: library, Into: into}
}

// Authorize returns a step calling method(grantee) on storage.
func Authorize(storage, method, grantee string) Step {
	return Step{Kind: StepAuthorize, Unit: storage, Method: method, Grantee: grantee}
}

// Call returns a step calling method(args...) on target.
func Call(target, method string, args ...Arg) Step {
	return Step{Kind: StepCall, Unit: target, Method: method, Args: args}
}

// CallArgs returns the arguments the step passes on chain.
// Authorization steps pass the grantee address as their single argument.
func (s Step) CallArgs() []Arg {
	if s.Kind == StepAuthorize {
		return []Arg{Ref(s.Grantee)}
	}
	return s.Args
}

// Refs returns every unit whose address the step consumes.
func (s Step) Refs() []string {
	var refs []string
	for _, a := range s.CallArgs() {
		if a.IsRef() {
			refs = append(refs, a.Ref)
		}
	}
	return refs
}

func (s Step) String() string {
	switch s.Kind {
	case StepPublish:
		if s.UnitKind == domain.KindLibrary {
			return fmt.Sprintf("publish library %s", s.Unit)
		}
		return fmt.Sprintf("publish %s(%s)", s.Unit, joinArgs(s.Args))
	case StepLink:
		return fmt.Sprintf("link %s into %s", s.Unit, s.Into)
	case StepAuthorize:
		return fmt.Sprintf("authorize %s on %s.%s", s.Grantee, s.Unit, s.Method)
	case StepCall:
		return fmt.Sprintf("call %s.%s(%s)", s.Unit, s.Method, joinArgs(s.Args))
	default:
		return fmt.Sprintf("%s %s", s.Kind, s.Unit)
	}
}

func joinArgs(args []Arg) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.String()
	}
	return strings.Join(parts, ", ")
}

// =============================================================================
// Plan
// =============================================================================

// Plan is an ordered list of steps. Order is significant and never changed
// by the interpreter.
type Plan struct {
	Name  string
	Steps []Step
}

// Published returns the units the plan publishes, in step order.
func (p Plan) Published() []string {
	var units []string
	for _, s := range p.Steps {
		if s.Kind == StepPublish {
			units = append(units, s.Unit)
		}
	}
	return units
}
