package deployment

import (
	"fmt"
	"regexp"
)

// =============================================================================
// Unit Naming Functions
// =============================================================================

// identifierRegex matches contract, library and method names.
var identifierRegex = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// ValidIdentifier reports whether name can name a unit or a method.
//
// Example:
//
//	ValidIdentifier("ContractStorage") // true
//	ValidIdentifier("Tune Trader")     // false
//	ValidIdentifier("2ndStorage")      // false
func ValidIdentifier(name string) bool {
	return identifierRegex.MatchString(name)
}

// checkNames returns a message for the first name in s that is not a valid
// identifier, or "" when every name is valid.
func checkNames(s Step) string {
	names := []struct {
		role  string
		value string
	}{
		{"unit", s.Unit},
		{"link target", s.Into},
		{"grantee", s.Grantee},
		{"method", s.Method},
	}
	for _, n := range names {
		if n.value != "" && !ValidIdentifier(n.value) {
			return fmt.Sprintf("invalid %s name %q", n.role, n.value)
		}
	}
	return ""
}
