package deployment

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// =============================================================================
// Argument Variables
// =============================================================================

// ErrUnsetVariable is returned for a ${VAR} with no value and no default.
var ErrUnsetVariable = errors.New("variable is not set")

// varPlaceholderRegex matches ${VAR} and ${VAR:-default} patterns.
// Groups:
//   - Group 1: Variable name (required)
//   - Group 3: Default value (optional, after :-)
var varPlaceholderRegex = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// ExpandVariables returns a copy of p with ${VAR} and ${VAR:-default}
// replaced in every literal argument. References are never expanded.
// Every unset variable without a default is named in a single
// ErrUnsetVariable, together with the first step using it.
//
// Example:
//
//	p := Plan{Steps: []Step{Call("TuneTrader", "setFee", Literal("${FEE:-100}"), Literal("true"))}}
//	p, err := ExpandVariables(p, map[string]string{"FEE": "250"})
//	// call TuneTrader.setFee(250, true)
func ExpandVariables(p Plan, vars map[string]string) (Plan, error) {
	out := Plan{Name: p.Name, Steps: make([]Step, len(p.Steps))}
	var missing []string
	seen := make(map[string]bool)

	for i, s := range p.Steps {
		if len(s.Args) > 0 {
			args := make([]Arg, len(s.Args))
			for j, a := range s.Args {
				if a.IsRef() {
					args[j] = a
					continue
				}
				v, unset := expand(a.Value, vars)
				for _, name := range unset {
					if !seen[name] {
						seen[name] = true
						missing = append(missing, fmt.Sprintf("%s (step %d)", name, i))
					}
				}
				args[j] = Literal(v)
			}
			s.Args = args
		}
		out.Steps[i] = s
	}

	if len(missing) > 0 {
		return Plan{}, fmt.Errorf("%w: %s", ErrUnsetVariable, strings.Join(missing, ", "))
	}
	return out, nil
}

// expand substitutes vars into value and returns the names of unset
// variables that have no default, in order of appearance.
func expand(value string, vars map[string]string) (string, []string) {
	var missing []string
	out := varPlaceholderRegex.ReplaceAllStringFunc(value, func(match string) string {
		m := varPlaceholderRegex.FindStringSubmatch(match)
		if v, ok := vars[m[1]]; ok {
			return v
		}
		// ${VAR:-} has an empty default
		if strings.Contains(match, ":-") {
			return m[3]
		}
		missing = append(missing, m[1])
		return match
	})
	return out, missing
}
